// Package config holds the pipeline configuration model, its defaults and
// validation, and a loader that merges file, environment and programmatic
// sources.
package config

import (
	"time"

	"github.com/flightbus/simtel/pkg/anomaly"
	"github.com/flightbus/simtel/pkg/events"
)

// Config is the full configuration of a telemetry pipeline instance.
type Config struct {
	// SessionID labels every sample, event and anomaly of this run. Empty
	// means the pipeline generates one at Initialize.
	SessionID string `yaml:"session_id" mapstructure:"session_id"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`

	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Anomaly   AnomalyConfig   `yaml:"anomaly" mapstructure:"anomaly"`
	Recording RecordingConfig `yaml:"recording" mapstructure:"recording"`
	Stats     StatsConfig     `yaml:"stats" mapstructure:"stats"`
}

// IngestConfig tunes the sample path from producers to the ring buffer.
type IngestConfig struct {
	// QueueCapacity bounds the pending-sample queue; full means drop.
	QueueCapacity int `yaml:"queue_capacity" mapstructure:"queue_capacity"`

	// BufferCapacity is the ring buffer depth, rounded up to a power of 2.
	BufferCapacity int `yaml:"buffer_capacity" mapstructure:"buffer_capacity"`

	// Workers drain the queue into the ring buffer. The default of 1
	// keeps ring writes in dequeue order; with more workers, samples with
	// near-identical timestamps may land out of order, and time-range
	// queries over such a stretch can miss its edges.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// DetectionConfig tunes the event detection pass.
type DetectionConfig struct {
	// WindowSize is the number of recent samples each pass sees.
	WindowSize int `yaml:"window_size" mapstructure:"window_size"`

	// Interval is the cadence of detection passes.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// EventLogCapacity bounds the queryable event history.
	EventLogCapacity int `yaml:"event_log_capacity" mapstructure:"event_log_capacity"`

	Thresholds events.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
}

// ModelConfig declares one anomaly model instance.
type ModelConfig struct {
	Name     string             `yaml:"name" mapstructure:"name"`
	Type     string             `yaml:"type" mapstructure:"type"`
	Enabled  bool               `yaml:"enabled" mapstructure:"enabled"`
	Settings map[string]float64 `yaml:"settings" mapstructure:"settings"`
	Rules    []anomaly.Rule     `yaml:"rules" mapstructure:"rules"`
}

// AnomalyConfig tunes the anomaly detection pass.
type AnomalyConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// LogCapacity bounds the queryable anomaly history.
	LogCapacity int `yaml:"log_capacity" mapstructure:"log_capacity"`

	Models []ModelConfig `yaml:"models" mapstructure:"models"`
}

// RecordingConfig tunes session persistence.
type RecordingConfig struct {
	// Directory receives recording files; empty disables auto-recording.
	Directory string `yaml:"directory" mapstructure:"directory"`

	// QueueCapacity bounds the recording queue; full means drop.
	QueueCapacity int `yaml:"queue_capacity" mapstructure:"queue_capacity"`
}

// StatsConfig tunes the statistics refresh loop.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultConfig returns a configuration that runs without any file.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Ingest.QueueCapacity == 0 {
		c.Ingest.QueueCapacity = 10000
	}
	if c.Ingest.BufferCapacity == 0 {
		c.Ingest.BufferCapacity = 8192
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 1
	}
	if c.Detection.WindowSize == 0 {
		c.Detection.WindowSize = 64
	}
	if c.Detection.Interval == 0 {
		c.Detection.Interval = 250 * time.Millisecond
	}
	if c.Detection.EventLogCapacity == 0 {
		c.Detection.EventLogCapacity = 4096
	}
	if c.Anomaly.Interval == 0 {
		c.Anomaly.Interval = time.Second
	}
	if c.Anomaly.LogCapacity == 0 {
		c.Anomaly.LogCapacity = 4096
	}
	if c.Recording.QueueCapacity == 0 {
		c.Recording.QueueCapacity = 10000
	}
	if c.Stats.Interval == 0 {
		c.Stats.Interval = time.Second
	}
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
	validModelTypes = []string{"statistical", "rule"}
)

// Validate checks cross-field consistency. Call after ApplyDefaults.
func (c *Config) Validate() error {
	var errs []ValidationError

	if !contains(validLogLevels, c.LogLevel) {
		errs = append(errs, NewValidationError("log_level",
			"unknown log level "+c.LogLevel, validLogLevels))
	}
	if !contains(validLogFormats, c.LogFormat) {
		errs = append(errs, NewValidationError("log_format",
			"unknown log format "+c.LogFormat, validLogFormats))
	}
	if c.Ingest.QueueCapacity < 0 {
		errs = append(errs, NewValidationError("ingest.queue_capacity",
			"must not be negative", nil))
	}
	if c.Ingest.BufferCapacity < 1 {
		errs = append(errs, NewValidationError("ingest.buffer_capacity",
			"must be at least 1", nil))
	}
	if c.Ingest.Workers < 1 {
		errs = append(errs, NewValidationError("ingest.workers",
			"must be at least 1", nil))
	}
	if c.Detection.WindowSize < 1 {
		errs = append(errs, NewValidationError("detection.window_size",
			"must be at least 1", nil))
	}
	if c.Detection.WindowSize > c.Ingest.BufferCapacity {
		errs = append(errs, NewValidationError("detection.window_size",
			"must not exceed ingest.buffer_capacity", nil))
	}
	if c.Detection.Interval < time.Millisecond {
		errs = append(errs, NewValidationError("detection.interval",
			"must be at least 1ms", nil))
	}
	if c.Anomaly.Interval < time.Millisecond {
		errs = append(errs, NewValidationError("anomaly.interval",
			"must be at least 1ms", nil))
	}

	seen := make(map[string]struct{})
	for _, m := range c.Anomaly.Models {
		if m.Name == "" {
			errs = append(errs, NewValidationError("anomaly.models",
				"model name must not be empty", nil))
			continue
		}
		if _, dup := seen[m.Name]; dup {
			errs = append(errs, NewValidationError("anomaly.models",
				"duplicate model name "+m.Name, nil))
		}
		seen[m.Name] = struct{}{}
		if !contains(validModelTypes, m.Type) {
			errs = append(errs, NewValidationError("anomaly.models."+m.Name+".type",
				"unknown model type "+m.Type, validModelTypes))
		}
	}

	if len(errs) > 0 {
		return ValidationErrors{Errors: errs}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
