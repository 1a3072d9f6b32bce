package domain

import "time"

// Statistics is a read-only snapshot of pipeline counters and gauges,
// assembled from atomics and safe to request from any goroutine.
type Statistics struct {
	SamplesReceived   int64 `json:"samples_received"`
	SamplesProcessed  int64 `json:"samples_processed"`
	SamplesDropped    int64 `json:"samples_dropped"`
	EventsDetected    int64 `json:"events_detected"`
	AnomaliesDetected int64 `json:"anomalies_detected"`

	SampleRateHz      float64       `json:"sample_rate_hz"`
	AverageLatency    time.Duration `json:"average_latency"`
	BufferUtilization float64       `json:"buffer_utilization"`
	QueueDepth        int           `json:"queue_depth"`

	LastSampleTime time.Time     `json:"last_sample_time"`
	Uptime         time.Duration `json:"uptime"`
	State          string        `json:"state"`
}
