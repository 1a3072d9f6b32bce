package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a discrete flight event.
type EventType string

const (
	EventTakeoff               EventType = "flight.takeoff"
	EventLanding               EventType = "flight.landing"
	EventStall                 EventType = "flight.stall"
	EventOverspeed             EventType = "flight.overspeed"
	EventBankAngleExceeded     EventType = "attitude.bank_angle"
	EventPitchAngleExceeded    EventType = "attitude.pitch_angle"
	EventAltitudeDeviation     EventType = "guidance.altitude_deviation"
	EventHeadingDeviation      EventType = "guidance.heading_deviation"
	EventSpeedDeviation        EventType = "guidance.speed_deviation"
	EventConfigurationMismatch EventType = "config.gear_flap_speed"
	EventSystemFailure         EventType = "system.failure"
	EventPhaseChange           EventType = "flight.phase_change"
	EventNavigationDeviation   EventType = "guidance.navigation_deviation"
	EventInstructorAction      EventType = "instructor.action"
)

// Severity grades events from advisory to critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCaution  Severity = "caution"
	SeverityCritical Severity = "critical"
)

// SampleSnapshot captures the key fields of the sample that triggered an
// event, so consumers do not need a ring-buffer lookup to interpret it.
type SampleSnapshot struct {
	AltitudeMSL   float64     `json:"altitude_msl_ft"`
	AltitudeAGL   float64     `json:"altitude_agl_ft"`
	Airspeed      float64     `json:"ias_kt"`
	VerticalSpeed float64     `json:"vertical_speed_fpm"`
	Pitch         float64     `json:"pitch_deg"`
	Bank          float64     `json:"bank_deg"`
	Heading       float64     `json:"heading_deg"`
	Phase         FlightPhase `json:"phase"`
	OnGround      bool        `json:"on_ground"`
}

// Event is a discrete occurrence derived from a window of samples. Created
// only by the event detection engine; read-only afterward.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Severity    Severity       `json:"severity"`
	SessionID   string         `json:"session_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description"`
	Snapshot    SampleSnapshot `json:"snapshot"`
}

// NewEvent builds an event from the sample that triggered it.
func NewEvent(t EventType, sev Severity, desc string, s *TelemetrySample) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		Severity:    sev,
		SessionID:   s.SessionID,
		Timestamp:   s.Timestamp,
		Description: desc,
		Snapshot: SampleSnapshot{
			AltitudeMSL:   s.AltitudeMSL,
			AltitudeAGL:   s.AltitudeAGL,
			Airspeed:      s.IndicatedAirspeed,
			VerticalSpeed: s.VerticalSpeed,
			Pitch:         s.Pitch,
			Bank:          s.Bank,
			Heading:       s.Heading,
			Phase:         s.Phase(),
			OnGround:      s.OnGround,
		},
	}
}
