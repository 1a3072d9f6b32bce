// Package queue implements a lock-free multi-producer/multi-consumer FIFO
// used as the pipeline ingress buffer. The algorithm is the Michael–Scott
// linked queue: a sentinel node, CAS append on the tail's successor, and
// head advancement past the sentinel on dequeue. Node reclamation is left to
// the Go garbage collector, which removes the use-after-free/ABA hazard that
// manual-memory implementations must solve with epochs or hazard pointers.
package queue

import (
	"sync/atomic"
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is an unbounded-by-default concurrent FIFO. A soft capacity can be
// set to reject enqueues once the sampled size reaches it; the check is
// advisory, so a small transient overshoot under heavy contention is
// expected and not a correctness bug.
type Queue[T any] struct {
	head atomic.Pointer[node[T]] // sentinel
	tail atomic.Pointer[node[T]]

	length   atomic.Int64
	capacity atomic.Int64 // <= 0 means unbounded
	enqueued atomic.Uint64
	dequeued atomic.Uint64
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// NewWithCapacity creates a queue with a soft capacity. capacity <= 0 means
// unbounded.
func NewWithCapacity[T any](capacity int) *Queue[T] {
	q := New[T]()
	q.capacity.Store(int64(capacity))
	return q
}

// Enqueue appends value to the tail. It returns false only when a soft
// capacity is configured and the sampled size has reached it. It never
// blocks.
func (q *Queue[T]) Enqueue(value T) bool {
	if c := q.capacity.Load(); c > 0 && q.length.Load() >= c {
		return false
	}

	n := &node[T]{value: value}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// Tail is lagging; help advance it.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Add(1)
			q.enqueued.Add(1)
			return true
		}
	}
}

// Dequeue removes and returns the oldest item. The second result is false
// when the queue is empty. It never blocks.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			return zero, false
		}
		if head == tail {
			// Tail is lagging behind a concurrent enqueue; help it along.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if q.head.CompareAndSwap(head, next) {
			// next is the new sentinel. Its value field must stay intact:
			// a concurrent Peek may still be reading it. The reference is
			// unlinked, and collected, on the following dequeue.
			q.length.Add(-1)
			q.dequeued.Add(1)
			return next.value, true
		}
	}
}

// Peek returns the current front without removing it. The read is advisory:
// it is not linearizable with concurrent dequeues and may return an item
// another consumer is about to take.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	next := q.head.Load().next.Load()
	if next == nil {
		return zero, false
	}
	return next.value, true
}

// Len returns the sampled number of items in the queue.
func (q *Queue[T]) Len() int {
	n := q.length.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Capacity returns the configured soft capacity; 0 means unbounded.
func (q *Queue[T]) Capacity() int {
	c := q.capacity.Load()
	if c < 0 {
		return 0
	}
	return int(c)
}

// SetCapacity updates the soft capacity. capacity <= 0 removes the bound.
// Items already queued beyond a smaller capacity are retained.
func (q *Queue[T]) SetCapacity(capacity int) {
	q.capacity.Store(int64(capacity))
}

// EnqueueCount returns the total number of successful enqueues.
func (q *Queue[T]) EnqueueCount() uint64 {
	return q.enqueued.Load()
}

// DequeueCount returns the total number of successful dequeues.
func (q *Queue[T]) DequeueCount() uint64 {
	return q.dequeued.Load()
}

// Clear drains the queue. Drained items count as dequeued, so the
// enqueued-dequeued == length invariant holds across a Clear.
func (q *Queue[T]) Clear() {
	for {
		if _, ok := q.Dequeue(); !ok {
			return
		}
	}
}
