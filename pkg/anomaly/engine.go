package anomaly

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/flightbus/simtel/pkg/domain"
)

var (
	// ErrDuplicateModel is returned when registering an already-known name.
	ErrDuplicateModel = errors.New("model name already registered")
	// ErrUnknownModel is returned for operations on an unregistered name.
	ErrUnknownModel = errors.New("unknown model name")
)

type modelEntry struct {
	model   Model
	enabled bool
}

// Engine runs every enabled model over each window in registration order
// and concatenates their findings verbatim. Registry mutation is serialized
// by a lock distinct from dispatch: Detect snapshots the enabled models and
// runs them outside any critical section.
type Engine struct {
	logger *zap.Logger

	mu     sync.RWMutex
	order  []string
	models map[string]*modelEntry
}

// NewEngine creates an empty model registry.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger.Named("anomaly"),
		models: make(map[string]*modelEntry),
	}
}

// RegisterModel adds a model under its own Name. Fails with
// ErrDuplicateModel if the name is taken. New models start enabled.
func (e *Engine) RegisterModel(m Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := m.Name()
	if _, ok := e.models[name]; ok {
		return ErrDuplicateModel
	}
	e.models[name] = &modelEntry{model: m, enabled: true}
	e.order = append(e.order, name)
	e.logger.Debug("model registered",
		zap.String("model", name),
		zap.String("type", m.ModelType()))
	return nil
}

// UnregisterModel removes a model. Fails with ErrUnknownModel.
func (e *Engine) UnregisterModel(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.models[name]; !ok {
		return ErrUnknownModel
	}
	delete(e.models, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetModelEnabled toggles a model. Disabled models are skipped entirely.
func (e *Engine) SetModelEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.models[name]
	if !ok {
		return ErrUnknownModel
	}
	entry.enabled = enabled
	return nil
}

// IsModelEnabled reports whether name exists and is enabled.
func (e *Engine) IsModelEnabled(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.models[name]
	return ok && entry.enabled
}

// ConfigureModel forwards settings to the named model's Initialize.
func (e *Engine) ConfigureModel(name string, settings map[string]float64) error {
	e.mu.RLock()
	entry, ok := e.models[name]
	e.mu.RUnlock()
	if !ok {
		return ErrUnknownModel
	}
	return entry.model.Initialize(settings)
}

// TrainModel forwards training samples to the named model.
func (e *Engine) TrainModel(name string, samples []domain.TelemetrySample) error {
	e.mu.RLock()
	entry, ok := e.models[name]
	e.mu.RUnlock()
	if !ok {
		return ErrUnknownModel
	}
	return entry.model.Train(samples)
}

// Names returns the registered model names in registration order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Detect runs every enabled model over the window in registration order.
// A panicking model is logged and isolated; its findings for that window
// are lost, the other models' findings survive.
func (e *Engine) Detect(w Window) []domain.Anomaly {
	if len(w) == 0 {
		return nil
	}

	e.mu.RLock()
	active := make([]Model, 0, len(e.order))
	for _, name := range e.order {
		if entry := e.models[name]; entry.enabled {
			active = append(active, entry.model)
		}
	}
	e.mu.RUnlock()

	var out []domain.Anomaly
	for _, m := range active {
		out = append(out, e.runModel(m, w)...)
	}
	return out
}

func (e *Engine) runModel(m Model, w Window) (found []domain.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("model panicked",
				zap.String("model", m.Name()),
				zap.Any("panic", r))
			found = nil
		}
	}()
	return m.Detect(w)
}
