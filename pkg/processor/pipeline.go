// Package processor wires the ingress queue, ring buffer, detection engines
// and recording into one lifecycle-managed telemetry pipeline.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flightbus/simtel/internal/lifecycle"
	"github.com/flightbus/simtel/internal/queue"
	"github.com/flightbus/simtel/internal/ringbuf"
	"github.com/flightbus/simtel/pkg/anomaly"
	"github.com/flightbus/simtel/pkg/config"
	"github.com/flightbus/simtel/pkg/domain"
	"github.com/flightbus/simtel/pkg/events"
	"github.com/flightbus/simtel/pkg/recording"
)

const stopTimeout = 5 * time.Second

// envelope carries a sample through the queues with its arrival time, so
// queue-to-ring latency can be measured.
type envelope struct {
	sample     domain.TelemetrySample
	enqueuedAt time.Time
}

// Pipeline is the telemetry processing pipeline. Create with New, then
// Initialize with a configuration before Start. Producers feed it through
// ProcessSample, which never blocks: a full queue drops the sample and
// bumps a counter instead.
type Pipeline struct {
	logger  *zap.Logger
	metrics *pipelineMetrics

	stateMu     sync.Mutex
	state       State
	initialized bool

	cfg       *config.Config
	sessionID string

	ingress  *queue.Queue[envelope]
	recQueue *queue.Queue[envelope]

	// ring is a single-writer seqlock; writeMu serializes the worker pool
	// and LoadRecording on the writer side. Readers stay lock-free.
	writeMu sync.Mutex
	ring    *ringbuf.Buffer[domain.TelemetrySample]

	eventLog   *ringbuf.Buffer[domain.Event]
	anomalyLog *ringbuf.Buffer[domain.Anomaly]

	eventEngine   *events.Engine
	anomalyEngine *anomaly.Engine

	telemetrySubs *registry[domain.TelemetrySample]
	eventSubs     *registry[domain.Event]
	anomalySubs   *registry[domain.Anomaly]
	statusSubs    *registry[StatusChange]

	procGroup   *lifecycle.Group
	detectGroup *lifecycle.Group
	auxGroup    *lifecycle.Group

	paused    atomic.Bool
	recActive atomic.Bool

	recMu     sync.Mutex
	recWriter *recording.Writer

	received   atomic.Int64
	processed  atomic.Int64
	dropped    atomic.Int64
	eventCount atomic.Int64
	anomalyCnt atomic.Int64
	recDropped atomic.Int64
	latencySum atomic.Int64
	latencyN   atomic.Int64
	lastSample atomic.Int64
	sampleRate atomic.Uint64
	startedAt  atomic.Int64
}

// New creates an uninitialized pipeline in the Stopped state.
func New(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pipeline")
	return &Pipeline{
		logger:        logger,
		metrics:       newPipelineMetrics(logger),
		state:         StateStopped,
		telemetrySubs: newRegistry[domain.TelemetrySample]("telemetry", logger),
		eventSubs:     newRegistry[domain.Event]("events", logger),
		anomalySubs:   newRegistry[domain.Anomaly]("anomalies", logger),
		statusSubs:    newRegistry[StatusChange]("status", logger),
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

// SessionID returns the session label applied to this run's samples.
// Empty before Initialize.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// setStateLocked transitions and notifies status subscribers. Caller holds
// stateMu.
func (p *Pipeline) setStateLocked(to State) {
	from := p.state
	if from == to {
		return
	}
	p.state = to
	p.logger.Info("pipeline state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	change := StatusChange{From: from, To: to, Timestamp: time.Now()}
	// Dispatch without stateMu so a status callback may query State().
	go p.statusSubs.dispatch(change)
}

// Initialize builds the pipeline's internal structures from cfg. Allowed
// from Stopped or Error. A validation or model construction failure leaves
// the pipeline in the Error state and is returned.
func (p *Pipeline) Initialize(cfg *config.Config) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state != StateStopped && p.state != StateError {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidStateTransition, p.state)
	}

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		p.setStateLocked(StateError)
		return err
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	anomalyEngine := anomaly.NewEngine(p.logger)
	for _, mc := range cfg.Anomaly.Models {
		model, err := buildModel(mc)
		if err != nil {
			p.setStateLocked(StateError)
			return fmt.Errorf("model %q: %w", mc.Name, err)
		}
		if err := anomalyEngine.RegisterModel(model); err != nil {
			p.setStateLocked(StateError)
			return fmt.Errorf("model %q: %w", mc.Name, err)
		}
		if !mc.Enabled {
			if err := anomalyEngine.SetModelEnabled(mc.Name, false); err != nil {
				p.setStateLocked(StateError)
				return fmt.Errorf("model %q: %w", mc.Name, err)
			}
		}
	}

	p.cfg = cfg
	p.sessionID = sessionID
	p.ingress = queue.NewWithCapacity[envelope](cfg.Ingest.QueueCapacity)
	p.recQueue = queue.NewWithCapacity[envelope](cfg.Recording.QueueCapacity)
	p.ring = ringbuf.New(cfg.Ingest.BufferCapacity,
		ringbuf.WithTimestamp(func(s domain.TelemetrySample) time.Time { return s.Timestamp }))
	p.eventLog = ringbuf.New(cfg.Detection.EventLogCapacity,
		ringbuf.WithTimestamp(func(e domain.Event) time.Time { return e.Timestamp }))
	p.anomalyLog = ringbuf.New(cfg.Anomaly.LogCapacity,
		ringbuf.WithTimestamp(func(a domain.Anomaly) time.Time { return a.Timestamp }))
	p.eventEngine = events.NewEngine(sessionID, cfg.Detection.Thresholds, p.logger)
	p.anomalyEngine = anomalyEngine
	p.initialized = true
	p.setStateLocked(StateStopped)

	p.logger.Info("pipeline initialized",
		zap.String("session_id", sessionID),
		zap.Int("queue_capacity", cfg.Ingest.QueueCapacity),
		zap.Int("buffer_capacity", cfg.Ingest.BufferCapacity),
		zap.Int("workers", cfg.Ingest.Workers))
	return nil
}

func buildModel(mc config.ModelConfig) (anomaly.Model, error) {
	switch mc.Type {
	case "statistical":
		m := anomaly.NewStatisticalModel(mc.Name)
		if err := m.Initialize(mc.Settings); err != nil {
			return nil, err
		}
		return m, nil
	case "rule":
		m := anomaly.NewRuleModel(mc.Name)
		if err := m.Initialize(mc.Settings); err != nil {
			return nil, err
		}
		for _, r := range mc.Rules {
			if err := m.AddRule(r); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model type %q", mc.Type)
	}
}

// EventEngine exposes the event detector registry for configuration-time
// registration of custom detectors.
func (p *Pipeline) EventEngine() *events.Engine {
	return p.eventEngine
}

// AnomalyEngine exposes the anomaly model registry.
func (p *Pipeline) AnomalyEngine() *anomaly.Engine {
	return p.anomalyEngine
}

// Start spawns the worker pool and the periodic goroutines. Requires a
// successful Initialize and the Stopped state.
func (p *Pipeline) Start(ctx context.Context) error {
	p.stateMu.Lock()
	if !p.initialized {
		p.stateMu.Unlock()
		return ErrNotInitialized
	}
	switch p.state {
	case StateStopped:
	case StateStarting, StateRunning, StatePaused:
		p.stateMu.Unlock()
		return ErrAlreadyRunning
	default:
		st := p.state
		p.stateMu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidStateTransition, st)
	}
	p.setStateLocked(StateStarting)
	p.stateMu.Unlock()

	p.paused.Store(false)
	p.startedAt.Store(time.Now().UnixNano())

	p.procGroup = lifecycle.NewGroup(ctx, "processing", p.logger)
	p.detectGroup = lifecycle.NewGroup(ctx, "detection", p.logger)
	p.auxGroup = lifecycle.NewGroup(ctx, "aux", p.logger)

	for i := 0; i < p.cfg.Ingest.Workers; i++ {
		p.procGroup.Go(fmt.Sprintf("worker-%d", i), func() {
			p.workerLoop(p.procGroup.StopChannel())
		})
	}
	p.detectGroup.Go("events", func() {
		p.detectionLoop(p.detectGroup.StopChannel())
	})
	p.detectGroup.Go("anomalies", func() {
		p.anomalyLoop(p.detectGroup.StopChannel())
	})
	p.auxGroup.Go("stats", func() {
		p.statsLoop(p.auxGroup.StopChannel())
	})
	p.auxGroup.Go("recording", func() {
		p.recordingLoop(p.auxGroup.StopChannel())
	})

	p.stateMu.Lock()
	p.setStateLocked(StateRunning)
	p.stateMu.Unlock()
	return nil
}

// Stop joins every owned goroutine before returning: the worker pool
// first, then the detection goroutines, then statistics and recording. No
// subscriber callback fires for a sample submitted after Stop returns.
func (p *Pipeline) Stop() error {
	p.stateMu.Lock()
	switch p.state {
	case StateRunning, StatePaused:
	default:
		st := p.state
		p.stateMu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidStateTransition, st)
	}
	p.setStateLocked(StateStopping)
	p.stateMu.Unlock()

	var errs []error
	if err := p.procGroup.Stop(stopTimeout); err != nil {
		errs = append(errs, fmt.Errorf("processing: %w", err))
	}
	if err := p.detectGroup.Stop(stopTimeout); err != nil {
		errs = append(errs, fmt.Errorf("detection: %w", err))
	}
	if err := p.auxGroup.Stop(stopTimeout); err != nil {
		errs = append(errs, fmt.Errorf("aux: %w", err))
	}

	if p.recActive.Load() {
		if err := p.StopRecording(); err != nil && !errors.Is(err, ErrNotRecording) {
			errs = append(errs, fmt.Errorf("recording: %w", err))
		}
	}

	p.stateMu.Lock()
	p.setStateLocked(StateStopped)
	p.stateMu.Unlock()

	// Subscriptions survive a stop; callbacks resume on the next Start.
	p.logger.Info("pipeline stopped",
		zap.Int64("samples_processed", p.processed.Load()),
		zap.Int("telemetry_subscribers", p.telemetrySubs.count()),
		zap.Int("event_subscribers", p.eventSubs.count()),
		zap.Int("anomaly_subscribers", p.anomalySubs.count()))

	return errors.Join(errs...)
}

// Pause halts queue draining and detection cycles. Samples submitted while
// paused still enter the ingress queue, so the producer is never blocked.
func (p *Pipeline) Pause() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state != StateRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidStateTransition, p.state)
	}
	p.paused.Store(true)
	p.setStateLocked(StatePaused)
	return nil
}

// Resume continues a paused pipeline.
func (p *Pipeline) Resume() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidStateTransition, p.state)
	}
	p.paused.Store(false)
	p.setStateLocked(StateRunning)
	return nil
}

// ProcessSample attempts a non-blocking enqueue of one sample. A full
// queue or a non-accepting state drops the sample, bumps the dropped
// counter and returns false. The producer is never blocked.
func (p *Pipeline) ProcessSample(s *domain.TelemetrySample) bool {
	p.received.Add(1)
	if p.metrics.samplesReceived != nil {
		p.metrics.samplesReceived.Add(context.Background(), 1)
	}

	st := p.State()
	if st != StateRunning && st != StatePaused {
		p.markDropped()
		return false
	}

	sample := *s
	if sample.SessionID == "" {
		sample.SessionID = p.sessionID
	}
	env := envelope{sample: sample, enqueuedAt: time.Now()}
	if !p.ingress.Enqueue(env) {
		p.markDropped()
		return false
	}

	if p.recActive.Load() {
		if !p.recQueue.Enqueue(env) {
			p.recDropped.Add(1)
		}
	}
	return true
}

func (p *Pipeline) markDropped() {
	p.dropped.Add(1)
	if p.metrics.samplesDropped != nil {
		p.metrics.samplesDropped.Add(context.Background(), 1)
	}
}

func (p *Pipeline) workerLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if p.paused.Load() {
			if !sleepOrStop(stop, 5*time.Millisecond) {
				return
			}
			continue
		}

		env, ok := p.ingress.Dequeue()
		if !ok {
			if !sleepOrStop(stop, time.Millisecond) {
				return
			}
			continue
		}
		p.handleSample(env)
	}
}

func (p *Pipeline) handleSample(env envelope) {
	p.writeMu.Lock()
	p.ring.Write(env.sample)
	p.writeMu.Unlock()

	latency := time.Since(env.enqueuedAt)
	p.latencySum.Add(int64(latency))
	p.latencyN.Add(1)
	p.processed.Add(1)
	p.lastSample.Store(env.sample.Timestamp.UnixNano())

	if p.metrics.samplesProcessed != nil {
		p.metrics.samplesProcessed.Add(context.Background(), 1)
	}
	if p.metrics.processingTime != nil {
		p.metrics.processingTime.Record(context.Background(), latency.Seconds())
	}

	p.telemetrySubs.dispatch(env.sample)
}

func (p *Pipeline) detectionLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.Detection.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if p.paused.Load() {
			continue
		}

		window := p.ring.Snapshot(p.cfg.Detection.WindowSize)
		if len(window) == 0 {
			continue
		}
		for _, ev := range p.eventEngine.DetectEvents(window) {
			p.eventLog.Write(ev)
			p.eventCount.Add(1)
			if p.metrics.eventsDetected != nil {
				p.metrics.eventsDetected.Add(context.Background(), 1)
			}
			p.logger.Debug("event detected",
				zap.String("type", string(ev.Type)),
				zap.String("severity", string(ev.Severity)))
			p.eventSubs.dispatch(ev)
		}
	}
}

func (p *Pipeline) anomalyLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.Anomaly.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if p.paused.Load() {
			continue
		}

		window := p.ring.Snapshot(p.cfg.Detection.WindowSize)
		if len(window) == 0 {
			continue
		}
		for _, a := range p.anomalyEngine.Detect(window) {
			p.anomalyLog.Write(a)
			p.anomalyCnt.Add(1)
			if p.metrics.anomaliesFound != nil {
				p.metrics.anomaliesFound.Add(context.Background(), 1)
			}
			p.logger.Debug("anomaly detected",
				zap.String("parameter", a.Parameter),
				zap.String("model", a.Model),
				zap.Float64("confidence", a.Confidence))
			p.anomalySubs.dispatch(a)
		}
	}
}

func (p *Pipeline) statsLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.Stats.Interval)
	defer ticker.Stop()

	prev := p.processed.Load()
	prevAt := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		now := time.Now()
		cur := p.processed.Load()
		elapsed := now.Sub(prevAt).Seconds()
		if elapsed > 0 {
			rate := float64(cur-prev) / elapsed
			p.sampleRate.Store(uint64(rate * 1000)) // milli-Hz
		}
		prev, prevAt = cur, now

		if p.metrics.queueDepth != nil {
			p.metrics.queueDepth.Record(context.Background(), int64(p.ingress.Len()))
		}
	}
}

func (p *Pipeline) recordingLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		// Dequeue and append under the same recMu hold. StopRecording
		// drains the queue under recMu before closing the writer, so an
		// envelope is always either still queued or already in the file,
		// never in between.
		p.recMu.Lock()
		env, ok := p.recQueue.Dequeue()
		var err error
		if ok && p.recWriter != nil {
			err = p.recWriter.Append(&env.sample)
		}
		p.recMu.Unlock()

		if err != nil {
			p.logger.Error("recording append failed", zap.Error(err))
		}
		if !ok {
			if !sleepOrStop(stop, 2*time.Millisecond) {
				return
			}
		}
	}
}

// sleepOrStop waits for d; returns false if stop fired first.
func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// GetStatistics assembles a snapshot from the atomic counters and gauges.
// Safe from any goroutine in any state.
func (p *Pipeline) GetStatistics() domain.Statistics {
	stats := domain.Statistics{
		SamplesReceived:   p.received.Load(),
		SamplesProcessed:  p.processed.Load(),
		SamplesDropped:    p.dropped.Load(),
		EventsDetected:    p.eventCount.Load(),
		AnomaliesDetected: p.anomalyCnt.Load(),
		SampleRateHz:      float64(p.sampleRate.Load()) / 1000,
		State:             string(p.State()),
	}
	if p.ring != nil {
		stats.BufferUtilization = float64(p.ring.Len()) / float64(p.ring.Cap())
	}
	if p.ingress != nil {
		stats.QueueDepth = p.ingress.Len()
	}
	if n := p.latencyN.Load(); n > 0 {
		stats.AverageLatency = time.Duration(p.latencySum.Load() / n)
	}
	if ts := p.lastSample.Load(); ts != 0 {
		stats.LastSampleTime = time.Unix(0, ts)
	}
	if at := p.startedAt.Load(); at != 0 {
		stats.Uptime = time.Since(time.Unix(0, at))
	}
	return stats
}
