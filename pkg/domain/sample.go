// Package domain defines the data model shared by the simtel pipeline:
// telemetry samples, flight events, anomalies and statistics snapshots.
package domain

import (
	"time"
)

// TelemetrySample is one timestamped record of simulator state. Samples are
// immutable after production; the processor copies them into its ring buffer
// and into every dispatched callback.
type TelemetrySample struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// Position
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	AltitudeMSL float64 `json:"altitude_msl_ft"`
	AltitudeAGL float64 `json:"altitude_agl_ft"`

	// Attitude (degrees)
	Pitch   float64 `json:"pitch_deg"`
	Bank    float64 `json:"bank_deg"`
	Heading float64 `json:"heading_deg"`

	// Speeds
	IndicatedAirspeed float64 `json:"ias_kt"`
	GroundSpeed       float64 `json:"ground_speed_kt"`
	VerticalSpeed     float64 `json:"vertical_speed_fpm"`

	// Engine and controls
	EngineRPM []float64 `json:"engine_rpm,omitempty"`
	Throttle  []float64 `json:"throttle,omitempty"`
	Aileron   float64   `json:"aileron"`
	Elevator  float64   `json:"elevator"`
	Rudder    float64   `json:"rudder"`
	Flaps     float64   `json:"flaps"` // 0.0 retracted .. 1.0 full
	GearDown  bool      `json:"gear_down"`

	// Navigation and guidance targets
	SelectedAltitude    float64 `json:"selected_altitude_ft"`
	SelectedHeading     float64 `json:"selected_heading_deg"`
	SelectedAirspeed    float64 `json:"selected_airspeed_kt"`
	LocalizerDeviation  float64 `json:"localizer_deviation_dots"`
	GlideslopeDeviation float64 `json:"glideslope_deviation_dots"`
	AutopilotEngaged    bool    `json:"autopilot_engaged"`

	// Environment
	WindSpeed      float64 `json:"wind_speed_kt"`
	WindDirection  float64 `json:"wind_direction_deg"`
	OutsideAirTemp float64 `json:"oat_c"`

	// State flags
	OnGround         bool     `json:"on_ground"`
	Stalled          bool     `json:"stalled"`
	InstructorAction string   `json:"instructor_action,omitempty"`
	ActiveFailures   []string `json:"active_failures,omitempty"`
}

// FlightPhase classifies where in the flight profile a sample sits.
type FlightPhase string

const (
	PhaseUnknown  FlightPhase = "unknown"
	PhaseTaxi     FlightPhase = "taxi"
	PhaseTakeoff  FlightPhase = "takeoff"
	PhaseClimb    FlightPhase = "climb"
	PhaseCruise   FlightPhase = "cruise"
	PhaseDescent  FlightPhase = "descent"
	PhaseApproach FlightPhase = "approach"
	PhaseLanding  FlightPhase = "landing"
)

// Phase derives the flight phase from a single sample. The classification is
// intentionally coarse; detectors that need trend information keep their own
// cross-call state.
func (s *TelemetrySample) Phase() FlightPhase {
	if s.OnGround {
		if s.GroundSpeed >= 40 {
			if s.Throttle != nil && maxOf(s.Throttle) > 0.7 {
				return PhaseTakeoff
			}
			return PhaseLanding
		}
		return PhaseTaxi
	}

	switch {
	case s.AltitudeAGL < 1500 && s.VerticalSpeed < -300 && s.GearDown:
		return PhaseApproach
	case s.VerticalSpeed > 500:
		return PhaseClimb
	case s.VerticalSpeed < -500:
		return PhaseDescent
	default:
		return PhaseCruise
	}
}

func maxOf(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}
