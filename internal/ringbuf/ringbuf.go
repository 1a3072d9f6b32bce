// Package ringbuf provides a fixed-capacity ring buffer retaining the most
// recent N items for history queries. One goroutine writes; any number of
// goroutines read. Readers detect torn or overwritten slots through per-slot
// sequence stamps and retry, so a snapshot is always a consistent (possibly
// slightly stale) view.
package ringbuf

import (
	"sync/atomic"
	"time"
)

type slot[T any] struct {
	// seq is 2*(generation+1) after the generation-th write to this slot
	// completes, and odd while a write is in progress.
	seq   atomic.Uint64
	value T
}

// Buffer is a single-writer, multi-reader ring. Capacity is rounded up to a
// power of two for cheap index masking, the same trick the ingress ring of
// most perf buffers uses.
type Buffer[T any] struct {
	slots    []slot[T]
	capacity uint64
	mask     uint64

	written atomic.Uint64 // total items ever written

	// timestampOf enables Range queries; nil disables them.
	timestampOf func(T) time.Time
}

// Option configures a Buffer.
type Option[T any] func(*Buffer[T])

// WithTimestamp supplies the accessor Range uses for time-bounded queries.
// Items must be written in non-decreasing timestamp order for Range to be
// meaningful.
func WithTimestamp[T any](fn func(T) time.Time) Option[T] {
	return func(b *Buffer[T]) { b.timestampOf = fn }
}

// New creates a ring buffer holding at least capacity items.
func New[T any](capacity int, opts ...Option[T]) *Buffer[T] {
	size := nextPow2(uint64(capacity))
	if size == 0 {
		size = 1024
	}
	b := &Buffer[T]{
		slots:    make([]slot[T], size),
		capacity: size,
		mask:     size - 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func nextPow2(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return v
}

// Write stores value, overwriting the oldest slot when full. It always
// succeeds. Only one goroutine may call Write.
func (b *Buffer[T]) Write(value T) {
	w := b.written.Load()
	s := &b.slots[w&b.mask]
	s.seq.Add(1) // odd: write in progress
	s.value = value
	s.seq.Add(1) // even: stable at generation w/capacity
	b.written.Store(w + 1)
}

// Len returns the number of items currently retained.
func (b *Buffer[T]) Len() int {
	w := b.written.Load()
	if w > b.capacity {
		return int(b.capacity)
	}
	return int(w)
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return int(b.capacity)
}

// Written returns the total number of items ever written.
func (b *Buffer[T]) Written() uint64 {
	return b.written.Load()
}

// readAt reads the item at logical index i (0-based over all writes).
// Returns false when the slot was overwritten or mid-write, in which case
// the caller should restart from a fresh written position.
func (b *Buffer[T]) readAt(i uint64) (T, bool) {
	var zero T
	s := &b.slots[i&b.mask]
	want := 2 * (i/b.capacity + 1)

	seq1 := s.seq.Load()
	if seq1 != want {
		return zero, false
	}
	value := s.value
	if s.seq.Load() != seq1 {
		return zero, false
	}
	return value, true
}

// Snapshot returns up to count most recent items, newest-last, without
// mutating the buffer.
func (b *Buffer[T]) Snapshot(count int) []T {
	if count <= 0 {
		return nil
	}
	for {
		w := b.written.Load()
		n := uint64(count)
		if n > w {
			n = w
		}
		if n > b.capacity {
			n = b.capacity
		}
		if n == 0 {
			return nil
		}

		out := make([]T, 0, n)
		torn := false
		for i := w - n; i < w; i++ {
			v, ok := b.readAt(i)
			if !ok {
				torn = true
				break
			}
			out = append(out, v)
		}
		if !torn {
			return out
		}
	}
}

// Range returns items whose timestamp lies in the closed interval
// [start, end], oldest first. Timestamps are assumed non-decreasing in write
// order, which lets the window bounds be located by binary search. Returns
// nil when no timestamp accessor was configured.
func (b *Buffer[T]) Range(start, end time.Time) []T {
	if b.timestampOf == nil || end.Before(start) {
		return nil
	}
	for {
		w := b.written.Load()
		n := w
		if n > b.capacity {
			n = b.capacity
		}
		if n == 0 {
			return nil
		}
		base := w - n

		tsAt := func(i uint64) (time.Time, bool) {
			v, ok := b.readAt(base + i)
			if !ok {
				return time.Time{}, false
			}
			return b.timestampOf(v), true
		}

		lo, ok := searchIdx(n, func(i uint64) (bool, bool) {
			ts, ok := tsAt(i)
			return !ts.Before(start), ok
		})
		if !ok {
			continue
		}
		hi, ok := searchIdx(n, func(i uint64) (bool, bool) {
			ts, ok := tsAt(i)
			return ts.After(end), ok
		})
		if !ok {
			continue
		}
		if lo >= hi {
			return nil
		}

		out := make([]T, 0, hi-lo)
		torn := false
		for i := lo; i < hi; i++ {
			v, ok := b.readAt(base + i)
			if !ok {
				torn = true
				break
			}
			out = append(out, v)
		}
		if !torn {
			return out
		}
	}
}

// searchIdx is sort.Search over [0, n) where the predicate can fail on a
// torn read. The second result is false when the search must be restarted.
func searchIdx(n uint64, pred func(uint64) (bool, bool)) (uint64, bool) {
	lo, hi := uint64(0), n
	for lo < hi {
		mid := (lo + hi) / 2
		v, ok := pred(mid)
		if !ok {
			return 0, false
		}
		if v {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, true
}

// Reset discards all retained items. The caller must guarantee the writer is
// quiescent; Reset is not safe against a concurrent Write.
func (b *Buffer[T]) Reset() {
	for i := range b.slots {
		b.slots[i].seq.Store(0)
		var zero T
		b.slots[i].value = zero
	}
	b.written.Store(0)
}

// Load replaces the buffer contents with items, in order. Same quiescence
// requirement as Reset.
func (b *Buffer[T]) Load(items []T) {
	b.Reset()
	for _, v := range items {
		b.Write(v)
	}
}
