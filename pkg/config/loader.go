package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/flightbus/simtel/pkg/events"
)

// Loader merges configuration sources in priority order: defaults, then a
// YAML file, then SIMTEL_* environment variables.
type Loader struct {
	configFile   string
	searchPaths  []string
	envPrefix    string
	allowMissing bool
}

// NewLoader creates a loader with the standard search paths. A missing
// config file is not an error; defaults apply.
func NewLoader() *Loader {
	return &Loader{
		searchPaths:  defaultSearchPaths(),
		envPrefix:    "SIMTEL",
		allowMissing: true,
	}
}

func defaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".simtel"))
	}
	paths = append(paths, "/etc/simtel")
	return paths
}

// WithConfigFile pins the loader to one specific file and makes it
// mandatory.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	l.allowMissing = false
	return l
}

// WithSearchPaths replaces the directories searched for simtel.yaml.
func (l *Loader) WithSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// WithEnvPrefix replaces the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// registerDefaults declares every configuration key to viper with its
// default value. AutomaticEnv only resolves keys viper knows about, so each
// key must be registered here for its SIMTEL_* variable to take effect.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("session_id", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("ingest.queue_capacity", 10000)
	v.SetDefault("ingest.buffer_capacity", 8192)
	v.SetDefault("ingest.workers", 1)

	v.SetDefault("detection.window_size", 64)
	v.SetDefault("detection.interval", 250*time.Millisecond)
	v.SetDefault("detection.event_log_capacity", 4096)
	th := events.DefaultThresholds()
	v.SetDefault("detection.thresholds.overspeed_kt", th.OverspeedKt)
	v.SetDefault("detection.thresholds.max_bank_deg", th.MaxBankDeg)
	v.SetDefault("detection.thresholds.max_pitch_up_deg", th.MaxPitchUpDeg)
	v.SetDefault("detection.thresholds.max_pitch_down_deg", th.MaxPitchDownDeg)
	v.SetDefault("detection.thresholds.altitude_deviation_ft", th.AltDeviationFt)
	v.SetDefault("detection.thresholds.heading_deviation_deg", th.HdgDeviationDeg)
	v.SetDefault("detection.thresholds.speed_deviation_kt", th.SpdDeviationKt)
	v.SetDefault("detection.thresholds.gear_extended_kt", th.GearExtendedKt)
	v.SetDefault("detection.thresholds.flaps_extended_kt", th.FlapsExtendedKt)
	v.SetDefault("detection.thresholds.nav_deviation_dots", th.NavDeviationDots)

	v.SetDefault("anomaly.interval", time.Second)
	v.SetDefault("anomaly.log_capacity", 4096)

	v.SetDefault("recording.directory", "")
	v.SetDefault("recording.queue_capacity", 10000)

	v.SetDefault("stats.interval", time.Second)
}

// Load resolves the final configuration. The returned Config has defaults
// applied and passed validation.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("simtel")
		for _, p := range l.searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && l.allowMissing {
			// Run on defaults and environment alone.
		} else if os.IsNotExist(err) && l.allowMissing {
			// SetConfigFile paths surface plain fs errors.
		} else {
			return nil, NewConfigError("read", v.ConfigFileUsed(),
				fmt.Sprintf("cannot read configuration: %v", err))
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, NewConfigError("decode", v.ConfigFileUsed(),
			fmt.Sprintf("cannot decode configuration: %v", err))
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
