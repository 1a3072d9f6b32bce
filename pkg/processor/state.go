package processor

import (
	"errors"
	"time"
)

// State is the pipeline lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
	StateError    State = "error"
)

var (
	// ErrNotInitialized is returned by Start before a successful Initialize.
	ErrNotInitialized = errors.New("pipeline not initialized")
	// ErrAlreadyRunning is returned by Start when the pipeline is not stopped.
	ErrAlreadyRunning = errors.New("pipeline already running")
	// ErrInvalidStateTransition is returned for any other disallowed
	// lifecycle move, wrapped with the offending states.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrRecordingActive is returned by StartRecording while one is running.
	ErrRecordingActive = errors.New("recording already active")
	// ErrNotRecording is returned by StopRecording with no active recording.
	ErrNotRecording = errors.New("no active recording")
)

// StatusChange is delivered to status subscribers on every lifecycle
// transition.
type StatusChange struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}
