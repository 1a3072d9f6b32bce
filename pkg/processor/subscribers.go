package processor

import (
	"sync"

	"go.uber.org/zap"
)

// registry holds one notification kind's subscribers, keyed by
// caller-supplied id. Duplicate ids overwrite. Dispatch snapshots the
// callbacks under the lock and invokes them outside it, so a slow or
// reentrant callback cannot stall subscribe/unsubscribe from other
// goroutines.
type registry[T any] struct {
	kind   string
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]func(T)
}

func newRegistry[T any](kind string, logger *zap.Logger) *registry[T] {
	return &registry[T]{
		kind:   kind,
		logger: logger,
		subs:   make(map[string]func(T)),
	}
}

func (r *registry[T]) subscribe(id string, cb func(T)) {
	r.mu.Lock()
	r.subs[id] = cb
	r.mu.Unlock()
}

// unsubscribe of an unknown id is a no-op; unsubscribe stays idempotent.
func (r *registry[T]) unsubscribe(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

func (r *registry[T]) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *registry[T]) dispatch(v T) {
	r.mu.RLock()
	snapshot := make([]func(T), 0, len(r.subs))
	for _, cb := range r.subs {
		snapshot = append(snapshot, cb)
	}
	r.mu.RUnlock()

	for _, cb := range snapshot {
		r.invoke(cb, v)
	}
}

func (r *registry[T]) invoke(cb func(T), v T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber callback panicked",
				zap.String("kind", r.kind),
				zap.Any("panic", rec))
		}
	}()
	cb(v)
}
