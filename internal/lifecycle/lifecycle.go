// Package lifecycle manages named goroutine groups with cooperative
// cancellation and bounded-time joins. The processor owns one group per
// thread tier so shutdown can join tiers in a fixed order.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrShutdownTimeout is returned when a group fails to join within the
// allotted time.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Group supervises a set of goroutines that share a stop signal.
type Group struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stopCh chan struct{}
	logger *zap.Logger

	running atomic.Int32
	stopped atomic.Bool
}

// NewGroup creates a goroutine group derived from parent.
func NewGroup(parent context.Context, name string, logger *zap.Logger) *Group {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Go launches fn under the group. fn should return promptly once the group's
// stop channel closes or its context is cancelled.
func (g *Group) Go(name string, fn func()) {
	g.wg.Add(1)
	g.running.Add(1)

	go func() {
		defer g.wg.Done()
		defer g.running.Add(-1)

		if g.logger != nil {
			g.logger.Debug("goroutine started",
				zap.String("group", g.name),
				zap.String("name", name))
			defer g.logger.Debug("goroutine stopped",
				zap.String("group", g.name),
				zap.String("name", name))
		}

		fn()
	}()
}

// Stop signals the group and waits up to timeout for every goroutine to
// exit. Safe to call more than once.
func (g *Group) Stop(timeout time.Duration) error {
	if g.stopped.CompareAndSwap(false, true) {
		close(g.stopCh)
		g.cancel()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		if g.logger != nil {
			g.logger.Warn("shutdown timeout exceeded",
				zap.String("group", g.name),
				zap.Int32("still_running", g.running.Load()))
		}
		return ErrShutdownTimeout
	}
}

// Context returns the group context, cancelled on Stop.
func (g *Group) Context() context.Context {
	return g.ctx
}

// StopChannel returns the channel closed when Stop is initiated.
func (g *Group) StopChannel() <-chan struct{} {
	return g.stopCh
}

// Stopping reports whether Stop has been initiated.
func (g *Group) Stopping() bool {
	select {
	case <-g.stopCh:
		return true
	default:
		return false
	}
}

// Running returns the number of live goroutines in the group.
func (g *Group) Running() int32 {
	return g.running.Load()
}
