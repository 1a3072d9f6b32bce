// Package anomaly scores telemetry windows against baseline flight behavior
// through a registry of pluggable models. Each model speaks for itself; the
// engine never merges or deduplicates findings across models.
package anomaly

import (
	"sort"

	"github.com/flightbus/simtel/pkg/domain"
)

// Window is a contiguous slice of recent samples, oldest first.
type Window []domain.TelemetrySample

// Model is a pluggable anomaly detector. Implementations are driven from a
// single goroutine; the engine never calls one model concurrently with
// itself.
type Model interface {
	// Name identifies the model instance in the registry and in findings.
	Name() string

	// ModelType describes the technique, e.g. "statistical" or "rule".
	ModelType() string

	// Initialize applies model-specific numeric settings. Unknown keys are
	// an error so that configuration typos surface early.
	Initialize(settings map[string]float64) error

	// Train updates the model's baseline from labeled-normal samples.
	Train(samples []domain.TelemetrySample) error

	// Detect scores a window and returns zero or more findings.
	Detect(w Window) []domain.Anomaly
}

// extractor pulls one scalar telemetry channel out of a sample.
type extractor func(s *domain.TelemetrySample) float64

// parameterExtractors maps channel names to accessors. Models that score
// per-parameter baselines iterate this set.
var parameterExtractors = map[string]extractor{
	"altitude_msl":   func(s *domain.TelemetrySample) float64 { return s.AltitudeMSL },
	"altitude_agl":   func(s *domain.TelemetrySample) float64 { return s.AltitudeAGL },
	"ias":            func(s *domain.TelemetrySample) float64 { return s.IndicatedAirspeed },
	"ground_speed":   func(s *domain.TelemetrySample) float64 { return s.GroundSpeed },
	"vertical_speed": func(s *domain.TelemetrySample) float64 { return s.VerticalSpeed },
	"pitch":          func(s *domain.TelemetrySample) float64 { return s.Pitch },
	"bank":           func(s *domain.TelemetrySample) float64 { return s.Bank },
	"heading":        func(s *domain.TelemetrySample) float64 { return s.Heading },
	"throttle": func(s *domain.TelemetrySample) float64 {
		if len(s.Throttle) == 0 {
			return 0
		}
		return s.Throttle[0]
	},
	"aileron":  func(s *domain.TelemetrySample) float64 { return s.Aileron },
	"elevator": func(s *domain.TelemetrySample) float64 { return s.Elevator },
	"rudder":   func(s *domain.TelemetrySample) float64 { return s.Rudder },
	"engine_rpm": func(s *domain.TelemetrySample) float64 {
		if len(s.EngineRPM) == 0 {
			return 0
		}
		return s.EngineRPM[0]
	},
	"wind_speed":     func(s *domain.TelemetrySample) float64 { return s.WindSpeed },
	"oat":            func(s *domain.TelemetrySample) float64 { return s.OutsideAirTemp },
	"localizer_dev":  func(s *domain.TelemetrySample) float64 { return s.LocalizerDeviation },
	"glideslope_dev": func(s *domain.TelemetrySample) float64 { return s.GlideslopeDeviation },
	"selected_alt":   func(s *domain.TelemetrySample) float64 { return s.SelectedAltitude },
	"selected_ias":   func(s *domain.TelemetrySample) float64 { return s.SelectedAirspeed },
	"selected_hdg":   func(s *domain.TelemetrySample) float64 { return s.SelectedHeading },
}

// Parameters returns the supported channel names, sorted.
func Parameters() []string {
	out := make([]string, 0, len(parameterExtractors))
	for name := range parameterExtractors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ExtractParameter reads a named channel from a sample. The second return
// is false for unknown names.
func ExtractParameter(name string, s *domain.TelemetrySample) (float64, bool) {
	fn, ok := parameterExtractors[name]
	if !ok {
		return 0, false
	}
	return fn(s), true
}
