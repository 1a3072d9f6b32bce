package processor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flightbus/simtel/pkg/domain"
	"github.com/flightbus/simtel/pkg/recording"
)

var errNilCallback = errors.New("nil callback")

// SubscribeTelemetry registers a per-sample callback under id. A duplicate
// id overwrites the previous callback.
func (p *Pipeline) SubscribeTelemetry(id string, cb func(domain.TelemetrySample)) error {
	if cb == nil {
		return errNilCallback
	}
	p.telemetrySubs.subscribe(id, cb)
	return nil
}

// UnsubscribeTelemetry removes id; unknown ids are a no-op.
func (p *Pipeline) UnsubscribeTelemetry(id string) error {
	p.telemetrySubs.unsubscribe(id)
	return nil
}

// SubscribeEvents registers a flight-event callback under id.
func (p *Pipeline) SubscribeEvents(id string, cb func(domain.Event)) error {
	if cb == nil {
		return errNilCallback
	}
	p.eventSubs.subscribe(id, cb)
	return nil
}

// UnsubscribeEvents removes id; unknown ids are a no-op.
func (p *Pipeline) UnsubscribeEvents(id string) error {
	p.eventSubs.unsubscribe(id)
	return nil
}

// SubscribeAnomalies registers an anomaly callback under id.
func (p *Pipeline) SubscribeAnomalies(id string, cb func(domain.Anomaly)) error {
	if cb == nil {
		return errNilCallback
	}
	p.anomalySubs.subscribe(id, cb)
	return nil
}

// UnsubscribeAnomalies removes id; unknown ids are a no-op.
func (p *Pipeline) UnsubscribeAnomalies(id string) error {
	p.anomalySubs.unsubscribe(id)
	return nil
}

// SubscribeStatus registers a lifecycle transition callback under id.
func (p *Pipeline) SubscribeStatus(id string, cb func(StatusChange)) error {
	if cb == nil {
		return errNilCallback
	}
	p.statusSubs.subscribe(id, cb)
	return nil
}

// UnsubscribeStatus removes id; unknown ids are a no-op.
func (p *Pipeline) UnsubscribeStatus(id string) error {
	p.statusSubs.unsubscribe(id)
	return nil
}

// HistoricalData returns the buffered samples with timestamps in
// [start, end], oldest first.
func (p *Pipeline) HistoricalData(start, end time.Time) []domain.TelemetrySample {
	if p.ring == nil {
		return nil
	}
	return p.ring.Range(start, end)
}

// HistoricalEvents returns logged events with timestamps in [start, end].
func (p *Pipeline) HistoricalEvents(start, end time.Time) []domain.Event {
	if p.eventLog == nil {
		return nil
	}
	return p.eventLog.Range(start, end)
}

// HistoricalAnomalies returns logged anomalies with timestamps in
// [start, end].
func (p *Pipeline) HistoricalAnomalies(start, end time.Time) []domain.Anomaly {
	if p.anomalyLog == nil {
		return nil
	}
	return p.anomalyLog.Range(start, end)
}

// RecentData returns up to count most recent samples, oldest first.
func (p *Pipeline) RecentData(count int) []domain.TelemetrySample {
	if p.ring == nil {
		return nil
	}
	return p.ring.Snapshot(count)
}

// StartRecording begins persisting every accepted sample to path. Fails
// with ErrRecordingActive if a recording is already running.
func (p *Pipeline) StartRecording(path string) error {
	if !p.initialized {
		return ErrNotInitialized
	}

	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.recWriter != nil {
		return ErrRecordingActive
	}

	w, err := recording.NewWriter(path, p.sessionID)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	// A producer that observed the previous recording as active may have
	// enqueued after its final drain; such leftovers belong to that
	// session, not this one.
	p.recQueue.Clear()
	p.recWriter = w
	p.recActive.Store(true)
	p.logger.Info("recording started", zap.String("path", path))
	return nil
}

// StopRecording drains the pending recording queue, closes the file and
// returns. Fails with ErrNotRecording if none is active.
func (p *Pipeline) StopRecording() error {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.recWriter == nil {
		return ErrNotRecording
	}
	p.recActive.Store(false)

	// Flush what the recording goroutine has not yet drained.
	var appendErr error
	for {
		env, ok := p.recQueue.Dequeue()
		if !ok {
			break
		}
		if err := p.recWriter.Append(&env.sample); err != nil && appendErr == nil {
			appendErr = err
		}
	}

	count := p.recWriter.Count()
	closeErr := p.recWriter.Close()
	p.recWriter = nil
	p.logger.Info("recording stopped", zap.Int64("samples", count))

	if appendErr != nil {
		return fmt.Errorf("stop recording: %w", appendErr)
	}
	if closeErr != nil {
		return fmt.Errorf("stop recording: %w", closeErr)
	}
	return nil
}

// Recording reports whether a recording is currently active.
func (p *Pipeline) Recording() bool {
	return p.recActive.Load()
}

// LoadRecording reads the samples of a recording file into the ring
// buffer. With append false the current buffered history is replaced; with
// true the file's samples are written after it. Returns the number of
// samples loaded.
func (p *Pipeline) LoadRecording(path string, appendTo bool) (int, error) {
	if !p.initialized {
		return 0, ErrNotInitialized
	}

	r, err := recording.NewReader(path)
	if err != nil {
		return 0, fmt.Errorf("load recording: %w", err)
	}
	defer r.Close()

	samples, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("load recording: %w", err)
	}

	p.writeMu.Lock()
	if appendTo {
		for i := range samples {
			p.ring.Write(samples[i])
		}
	} else {
		p.ring.Load(samples)
	}
	p.writeMu.Unlock()

	p.logger.Info("recording loaded",
		zap.String("path", path),
		zap.Int("samples", len(samples)))
	return len(samples), nil
}
