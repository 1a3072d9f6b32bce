package domain

import (
	"time"

	"github.com/google/uuid"
)

// Anomaly is a confidence-scored deviation from baseline behavior, produced
// by exactly one anomaly model. Models speak independently: the pipeline
// performs no cross-model deduplication.
type Anomaly struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// Parameter names the telemetry channel that deviated.
	Parameter string `json:"parameter"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`

	// Expected and Actual describe the deviation in human terms.
	Expected string `json:"expected"`
	Actual   string `json:"actual"`

	// DeviationScore is the model-specific magnitude (e.g. sigmas).
	DeviationScore float64 `json:"deviation_score"`

	// Model is the name of the model that produced this anomaly.
	Model string `json:"model"`
}

// NewAnomaly stamps a fresh anomaly ID and binds it to the sample context.
func NewAnomaly(typ, parameter, model string, s *TelemetrySample) Anomaly {
	return Anomaly{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: s.SessionID,
		Timestamp: s.Timestamp,
		Parameter: parameter,
		Model:     model,
	}
}
