// Package events turns sliding windows of telemetry samples into discrete
// flight events through an ordered registry of pluggable detectors.
package events

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/flightbus/simtel/pkg/domain"
)

var (
	// ErrDuplicateDetector is returned when registering an already-known tag.
	ErrDuplicateDetector = errors.New("detector tag already registered")
	// ErrUnknownDetector is returned for operations on an unregistered tag.
	ErrUnknownDetector = errors.New("unknown detector tag")
)

// Window is a contiguous slice of recent samples, oldest first.
type Window []domain.TelemetrySample

// StreamState is the cross-call state a detector may consult. It binds an
// Engine to exactly one logical telemetry stream: state accumulated from one
// session is meaningless for another, so use one Engine per session.
type StreamState struct {
	Seen           bool
	LastPhase      domain.FlightPhase
	LastOnGround   bool
	LastStalled    bool
	LastInstructor string

	knownFailures map[string]struct{}
}

// KnownFailure reports whether a failure flag was already active in a
// previous window.
func (s *StreamState) KnownFailure(name string) bool {
	_, ok := s.knownFailures[name]
	return ok
}

// DetectorFunc evaluates a window against the previous stream state and
// returns at most one event, or nil.
type DetectorFunc func(w Window, prev *StreamState) *domain.Event

type registration struct {
	fn          DetectorFunc
	description string
	severity    domain.Severity
	enabled     bool
}

// Engine runs every enabled detector over each window in registration
// order. Registry mutation is serialized by a lock distinct from dispatch:
// DetectEvents snapshots the enabled detectors and runs them outside any
// critical section.
type Engine struct {
	sessionID string
	logger    *zap.Logger

	mu        sync.RWMutex
	order     []domain.EventType
	detectors map[domain.EventType]*registration

	state StreamState
}

// NewEngine creates a detection engine bound to one telemetry session, with
// the default detector set registered and enabled.
func NewEngine(sessionID string, thresholds Thresholds, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		sessionID: sessionID,
		logger:    logger.Named("events"),
		detectors: make(map[domain.EventType]*registration),
		state: StreamState{
			knownFailures: make(map[string]struct{}),
		},
	}
	registerDefaults(e, thresholds)
	return e
}

// SessionID returns the session this engine is bound to.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// RegisterDetector adds a detector under tag. Fails with
// ErrDuplicateDetector if the tag is taken. New detectors start enabled.
func (e *Engine) RegisterDetector(tag domain.EventType, fn DetectorFunc, description string, severity domain.Severity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.detectors[tag]; ok {
		return ErrDuplicateDetector
	}
	e.detectors[tag] = &registration{
		fn:          fn,
		description: description,
		severity:    severity,
		enabled:     true,
	}
	e.order = append(e.order, tag)
	e.logger.Debug("detector registered", zap.String("tag", string(tag)))
	return nil
}

// UnregisterDetector removes tag. Fails with ErrUnknownDetector.
func (e *Engine) UnregisterDetector(tag domain.EventType) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.detectors[tag]; !ok {
		return ErrUnknownDetector
	}
	delete(e.detectors, tag)
	for i, t := range e.order {
		if t == tag {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetEnabled toggles a detector. Disabled detectors are skipped entirely.
func (e *Engine) SetEnabled(tag domain.EventType, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	reg, ok := e.detectors[tag]
	if !ok {
		return ErrUnknownDetector
	}
	reg.enabled = enabled
	return nil
}

// IsEnabled reports whether tag exists and is enabled.
func (e *Engine) IsEnabled(tag domain.EventType) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	reg, ok := e.detectors[tag]
	return ok && reg.enabled
}

// Tags returns the registered tags in registration order.
func (e *Engine) Tags() []domain.EventType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.EventType, len(e.order))
	copy(out, e.order)
	return out
}

// DetectorInfo describes one registry entry.
type DetectorInfo struct {
	Tag         domain.EventType
	Description string
	Severity    domain.Severity
	Enabled     bool
}

// Detectors returns the registry contents in registration order.
func (e *Engine) Detectors() []DetectorInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]DetectorInfo, 0, len(e.order))
	for _, tag := range e.order {
		reg := e.detectors[tag]
		out = append(out, DetectorInfo{
			Tag:         tag,
			Description: reg.description,
			Severity:    reg.severity,
			Enabled:     reg.enabled,
		})
	}
	return out
}

// DetectEvents runs every enabled detector over the window in registration
// order; each detector emits at most one event. A panicking detector is
// logged and isolated, never unwinding into the caller. Stream state is
// advanced once, after all detectors ran against the previous state.
func (e *Engine) DetectEvents(w Window) []domain.Event {
	if len(w) == 0 {
		return nil
	}

	type pass struct {
		tag domain.EventType
		fn  DetectorFunc
	}
	e.mu.RLock()
	passes := make([]pass, 0, len(e.order))
	for _, tag := range e.order {
		if reg := e.detectors[tag]; reg.enabled {
			passes = append(passes, pass{tag: tag, fn: reg.fn})
		}
	}
	e.mu.RUnlock()

	var out []domain.Event
	for _, p := range passes {
		if ev := e.runDetector(p.tag, p.fn, w); ev != nil {
			out = append(out, *ev)
		}
	}

	e.advanceState(w)
	return out
}

func (e *Engine) runDetector(tag domain.EventType, fn DetectorFunc, w Window) (ev *domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detector panicked",
				zap.String("tag", string(tag)),
				zap.Any("panic", r))
			ev = nil
		}
	}()
	return fn(w, &e.state)
}

func (e *Engine) advanceState(w Window) {
	last := &w[len(w)-1]
	e.state.Seen = true
	e.state.LastPhase = last.Phase()
	e.state.LastOnGround = last.OnGround
	e.state.LastStalled = last.Stalled
	if last.InstructorAction != "" {
		e.state.LastInstructor = last.InstructorAction
	} else {
		e.state.LastInstructor = ""
	}
	for _, s := range w {
		for _, f := range s.ActiveFailures {
			e.state.knownFailures[f] = struct{}{}
		}
	}
}
