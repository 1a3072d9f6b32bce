package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10000, cfg.Ingest.QueueCapacity)
	assert.Equal(t, 8192, cfg.Ingest.BufferCapacity)
	assert.Equal(t, 64, cfg.Detection.WindowSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Detection.Interval)
	assert.Equal(t, time.Second, cfg.Stats.Interval)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	cfg.Ingest.BufferCapacity = 256
	cfg.ApplyDefaults()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 256, cfg.Ingest.BufferCapacity)
	assert.Equal(t, 1, cfg.Ingest.Workers)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.Ingest.Workers = -1
	cfg.Detection.WindowSize = cfg.Ingest.BufferCapacity + 1
	cfg.Anomaly.Models = []ModelConfig{
		{Name: "m", Type: "statistical"},
		{Name: "m", Type: "quantum"},
	}

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make(map[string]bool)
	for _, e := range verrs.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["log_level"])
	assert.True(t, fields["ingest.workers"])
	assert.True(t, fields["detection.window_size"])
	assert.True(t, fields["anomaly.models"])
	assert.True(t, fields["anomaly.models.m.type"])
}

func TestLoaderReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simtel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session_id: sess-file
log_level: debug
ingest:
  queue_capacity: 500
  buffer_capacity: 1024
  workers: 4
detection:
  window_size: 32
  interval: 100ms
  thresholds:
    overspeed_kt: 300
anomaly:
  models:
    - name: baseline
      type: statistical
      enabled: true
      settings:
        sigma_threshold: 2.5
`), 0o644))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "sess-file", cfg.SessionID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500, cfg.Ingest.QueueCapacity)
	assert.Equal(t, 1024, cfg.Ingest.BufferCapacity)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 32, cfg.Detection.WindowSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Detection.Interval)
	assert.InDelta(t, 300, cfg.Detection.Thresholds.OverspeedKt, 1e-9)

	require.Len(t, cfg.Anomaly.Models, 1)
	assert.Equal(t, "baseline", cfg.Anomaly.Models[0].Name)
	assert.InDelta(t, 2.5, cfg.Anomaly.Models[0].Settings["sigma_threshold"], 1e-9)

	// Unset sections fall back to defaults.
	assert.Equal(t, time.Second, cfg.Anomaly.Interval)
}

func TestLoaderEnvOverrides(t *testing.T) {
	t.Setenv("SIMTEL_LOG_LEVEL", "debug")
	t.Setenv("SIMTEL_INGEST_WORKERS", "7")
	t.Setenv("SIMTEL_STATS_INTERVAL", "250ms")
	t.Setenv("SIMTEL_DETECTION_THRESHOLDS_OVERSPEED_KT", "305")

	cfg, err := NewLoader().WithSearchPaths([]string{t.TempDir()}).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Ingest.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Stats.Interval)
	assert.InDelta(t, 305, cfg.Detection.Thresholds.OverspeedKt, 1e-9)
}

func TestLoaderEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simtel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))
	t.Setenv("SIMTEL_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoaderMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithSearchPaths([]string{t.TempDir()}).Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoaderRejectsPinnedMissingFile(t *testing.T) {
	_, err := NewLoader().WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Error(t, err)
}

func TestLoaderRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simtel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: shouting\n"), 0o644))

	_, err := NewLoader().WithConfigFile(path).Load()
	require.Error(t, err)

	var verrs ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestLoaderRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simtel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingest: [unclosed\n"), 0o644))

	_, err := NewLoader().WithConfigFile(path).Load()
	require.Error(t, err)

	var cerr ConfigError
	assert.ErrorAs(t, err, &cerr)
}
