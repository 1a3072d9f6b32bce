package events

import (
	"fmt"
	"math"

	"github.com/flightbus/simtel/pkg/domain"
)

// Thresholds holds the tunables of the default detector set. Values come
// from processor configuration; zero values are replaced by defaults.
type Thresholds struct {
	OverspeedKt      float64 `yaml:"overspeed_kt" mapstructure:"overspeed_kt"`
	MaxBankDeg       float64 `yaml:"max_bank_deg" mapstructure:"max_bank_deg"`
	MaxPitchUpDeg    float64 `yaml:"max_pitch_up_deg" mapstructure:"max_pitch_up_deg"`
	MaxPitchDownDeg  float64 `yaml:"max_pitch_down_deg" mapstructure:"max_pitch_down_deg"`
	AltDeviationFt   float64 `yaml:"altitude_deviation_ft" mapstructure:"altitude_deviation_ft"`
	HdgDeviationDeg  float64 `yaml:"heading_deviation_deg" mapstructure:"heading_deviation_deg"`
	SpdDeviationKt   float64 `yaml:"speed_deviation_kt" mapstructure:"speed_deviation_kt"`
	GearExtendedKt   float64 `yaml:"gear_extended_kt" mapstructure:"gear_extended_kt"`
	FlapsExtendedKt  float64 `yaml:"flaps_extended_kt" mapstructure:"flaps_extended_kt"`
	NavDeviationDots float64 `yaml:"nav_deviation_dots" mapstructure:"nav_deviation_dots"`
}

// DefaultThresholds returns the stock limits, roughly those of a light
// transport aircraft.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OverspeedKt:      340,
		MaxBankDeg:       60,
		MaxPitchUpDeg:    30,
		MaxPitchDownDeg:  -20,
		AltDeviationFt:   300,
		HdgDeviationDeg:  15,
		SpdDeviationKt:   15,
		GearExtendedKt:   200,
		FlapsExtendedKt:  230,
		NavDeviationDots: 1.0,
	}
}

func (t *Thresholds) applyDefaults() {
	d := DefaultThresholds()
	if t.OverspeedKt == 0 {
		t.OverspeedKt = d.OverspeedKt
	}
	if t.MaxBankDeg == 0 {
		t.MaxBankDeg = d.MaxBankDeg
	}
	if t.MaxPitchUpDeg == 0 {
		t.MaxPitchUpDeg = d.MaxPitchUpDeg
	}
	if t.MaxPitchDownDeg == 0 {
		t.MaxPitchDownDeg = d.MaxPitchDownDeg
	}
	if t.AltDeviationFt == 0 {
		t.AltDeviationFt = d.AltDeviationFt
	}
	if t.HdgDeviationDeg == 0 {
		t.HdgDeviationDeg = d.HdgDeviationDeg
	}
	if t.SpdDeviationKt == 0 {
		t.SpdDeviationKt = d.SpdDeviationKt
	}
	if t.GearExtendedKt == 0 {
		t.GearExtendedKt = d.GearExtendedKt
	}
	if t.FlapsExtendedKt == 0 {
		t.FlapsExtendedKt = d.FlapsExtendedKt
	}
	if t.NavDeviationDots == 0 {
		t.NavDeviationDots = d.NavDeviationDots
	}
}

// headingDiff returns the absolute angular difference in [0, 180].
func headingDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func registerDefaults(e *Engine, t Thresholds) {
	t.applyDefaults()

	register := func(tag domain.EventType, desc string, sev domain.Severity, fn DetectorFunc) {
		// Tags are unique here; registration cannot fail.
		_ = e.RegisterDetector(tag, fn, desc, sev)
	}

	register(domain.EventTakeoff, "aircraft became airborne", domain.SeverityInfo,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if prev.Seen && prev.LastOnGround && !last.OnGround && last.VerticalSpeed > 0 {
				ev := domain.NewEvent(domain.EventTakeoff, domain.SeverityInfo,
					"aircraft became airborne", last)
				return &ev
			}
			return nil
		})

	register(domain.EventLanding, "aircraft touched down", domain.SeverityInfo,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if prev.Seen && !prev.LastOnGround && last.OnGround {
				ev := domain.NewEvent(domain.EventLanding, domain.SeverityInfo,
					"aircraft touched down", last)
				return &ev
			}
			return nil
		})

	register(domain.EventStall, "aerodynamic stall entered", domain.SeverityCritical,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.Stalled && !prev.LastStalled {
				ev := domain.NewEvent(domain.EventStall, domain.SeverityCritical,
					"aerodynamic stall entered", last)
				return &ev
			}
			return nil
		})

	register(domain.EventOverspeed, "airspeed above structural limit", domain.SeverityCritical,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.IndicatedAirspeed > t.OverspeedKt {
				ev := domain.NewEvent(domain.EventOverspeed, domain.SeverityCritical,
					fmt.Sprintf("airspeed %.0f kt exceeds limit %.0f kt",
						last.IndicatedAirspeed, t.OverspeedKt), last)
				return &ev
			}
			return nil
		})

	register(domain.EventBankAngleExceeded, "bank angle limit exceeded", domain.SeverityCaution,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if math.Abs(last.Bank) > t.MaxBankDeg {
				ev := domain.NewEvent(domain.EventBankAngleExceeded, domain.SeverityCaution,
					fmt.Sprintf("bank angle %.0f° exceeds %.0f°", last.Bank, t.MaxBankDeg), last)
				return &ev
			}
			return nil
		})

	register(domain.EventPitchAngleExceeded, "pitch angle limit exceeded", domain.SeverityCaution,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.Pitch > t.MaxPitchUpDeg || last.Pitch < t.MaxPitchDownDeg {
				ev := domain.NewEvent(domain.EventPitchAngleExceeded, domain.SeverityCaution,
					fmt.Sprintf("pitch angle %.0f° outside [%.0f°, %.0f°]",
						last.Pitch, t.MaxPitchDownDeg, t.MaxPitchUpDeg), last)
				return &ev
			}
			return nil
		})

	register(domain.EventAltitudeDeviation, "altitude deviation from selected", domain.SeverityWarning,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.SelectedAltitude <= 0 || last.OnGround {
				return nil
			}
			if dev := math.Abs(last.AltitudeMSL - last.SelectedAltitude); dev > t.AltDeviationFt {
				ev := domain.NewEvent(domain.EventAltitudeDeviation, domain.SeverityWarning,
					fmt.Sprintf("altitude %.0f ft deviates %.0f ft from selected %.0f ft",
						last.AltitudeMSL, dev, last.SelectedAltitude), last)
				return &ev
			}
			return nil
		})

	register(domain.EventHeadingDeviation, "heading deviation from selected", domain.SeverityWarning,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.SelectedHeading <= 0 || last.OnGround {
				return nil
			}
			if dev := headingDiff(last.Heading, last.SelectedHeading); dev > t.HdgDeviationDeg {
				ev := domain.NewEvent(domain.EventHeadingDeviation, domain.SeverityWarning,
					fmt.Sprintf("heading %.0f° deviates %.0f° from selected %.0f°",
						last.Heading, dev, last.SelectedHeading), last)
				return &ev
			}
			return nil
		})

	register(domain.EventSpeedDeviation, "airspeed deviation from selected", domain.SeverityWarning,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.SelectedAirspeed <= 0 || last.OnGround {
				return nil
			}
			if dev := math.Abs(last.IndicatedAirspeed - last.SelectedAirspeed); dev > t.SpdDeviationKt {
				ev := domain.NewEvent(domain.EventSpeedDeviation, domain.SeverityWarning,
					fmt.Sprintf("airspeed %.0f kt deviates %.0f kt from selected %.0f kt",
						last.IndicatedAirspeed, dev, last.SelectedAirspeed), last)
				return &ev
			}
			return nil
		})

	register(domain.EventConfigurationMismatch, "gear/flap configuration vs speed", domain.SeverityWarning,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.GearDown && !last.OnGround && last.IndicatedAirspeed > t.GearExtendedKt {
				ev := domain.NewEvent(domain.EventConfigurationMismatch, domain.SeverityWarning,
					fmt.Sprintf("gear down at %.0f kt (limit %.0f kt)",
						last.IndicatedAirspeed, t.GearExtendedKt), last)
				return &ev
			}
			if last.Flaps > 0.3 && last.IndicatedAirspeed > t.FlapsExtendedKt {
				ev := domain.NewEvent(domain.EventConfigurationMismatch, domain.SeverityWarning,
					fmt.Sprintf("flaps %.0f%% at %.0f kt (limit %.0f kt)",
						last.Flaps*100, last.IndicatedAirspeed, t.FlapsExtendedKt), last)
				return &ev
			}
			return nil
		})

	register(domain.EventSystemFailure, "simulated system failure activated", domain.SeverityCritical,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			for _, f := range last.ActiveFailures {
				if !prev.KnownFailure(f) {
					ev := domain.NewEvent(domain.EventSystemFailure, domain.SeverityCritical,
						fmt.Sprintf("system failure active: %s", f), last)
					return &ev
				}
			}
			return nil
		})

	register(domain.EventPhaseChange, "flight phase transition", domain.SeverityInfo,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			phase := last.Phase()
			if prev.Seen && phase != prev.LastPhase {
				ev := domain.NewEvent(domain.EventPhaseChange, domain.SeverityInfo,
					fmt.Sprintf("flight phase %s -> %s", prev.LastPhase, phase), last)
				return &ev
			}
			return nil
		})

	register(domain.EventNavigationDeviation, "localizer/glideslope deviation", domain.SeverityCaution,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.Phase() != domain.PhaseApproach {
				return nil
			}
			if math.Abs(last.LocalizerDeviation) > t.NavDeviationDots ||
				math.Abs(last.GlideslopeDeviation) > t.NavDeviationDots {
				ev := domain.NewEvent(domain.EventNavigationDeviation, domain.SeverityCaution,
					fmt.Sprintf("nav deviation loc=%.1f gs=%.1f dots",
						last.LocalizerDeviation, last.GlideslopeDeviation), last)
				return &ev
			}
			return nil
		})

	register(domain.EventInstructorAction, "instructor station input", domain.SeverityInfo,
		func(w Window, prev *StreamState) *domain.Event {
			last := &w[len(w)-1]
			if last.InstructorAction != "" && last.InstructorAction != prev.LastInstructor {
				ev := domain.NewEvent(domain.EventInstructorAction, domain.SeverityInfo,
					fmt.Sprintf("instructor action: %s", last.InstructorAction), last)
				return &ev
			}
			return nil
		})
}
