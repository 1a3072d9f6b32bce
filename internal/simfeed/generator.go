// Package simfeed produces a synthetic but plausible flight profile for
// demo and soak runs: taxi, takeoff roll, climb, cruise with gentle
// variation. It is a stand-in for a real simulator feed.
package simfeed

import (
	"math"
	"math/rand"
	"time"

	"github.com/flightbus/simtel/pkg/domain"
)

type phase int

const (
	phaseTaxi phase = iota
	phaseRoll
	phaseClimb
	phaseCruise
)

// Generator emits one sample per Next call, advancing an internal flight
// profile by the configured sample period. Not safe for concurrent use.
type Generator struct {
	sessionID string
	period    time.Duration
	rng       *rand.Rand

	clock    time.Time
	phase    phase
	ias      float64
	altMSL   float64
	heading  float64
	fieldElv float64
	elapsed  time.Duration
}

// New creates a generator producing samples sampleRateHz times per second
// of simulated time, starting on the ground.
func New(sessionID string, sampleRateHz float64, seed int64) *Generator {
	if sampleRateHz <= 0 {
		sampleRateHz = 30
	}
	return &Generator{
		sessionID: sessionID,
		period:    time.Duration(float64(time.Second) / sampleRateHz),
		rng:       rand.New(rand.NewSource(seed)),
		clock:     time.Now(),
		ias:       8,
		altMSL:    1900,
		heading:   260,
		fieldElv:  1900,
	}
}

// Period returns the simulated time between consecutive samples.
func (g *Generator) Period() time.Duration {
	return g.period
}

// Next advances the profile and returns the sample for the new instant.
func (g *Generator) Next() domain.TelemetrySample {
	g.clock = g.clock.Add(g.period)
	g.elapsed += g.period
	dt := g.period.Seconds()

	switch g.phase {
	case phaseTaxi:
		if g.elapsed > 20*time.Second {
			g.phase = phaseRoll
		}
	case phaseRoll:
		g.ias += 35 * dt
		if g.ias >= 130 {
			g.phase = phaseClimb
		}
	case phaseClimb:
		g.ias = math.Min(g.ias+4*dt, 250)
		g.altMSL += 1800.0 / 60 * dt // 1800 fpm
		if g.altMSL >= g.fieldElv+10000 {
			g.phase = phaseCruise
		}
	case phaseCruise:
		g.ias = 250 + g.rng.Float64()*6 - 3
		g.altMSL += g.rng.Float64()*20 - 10
		g.heading += g.rng.Float64()*0.4 - 0.2
	}

	onGround := g.phase == phaseTaxi || g.phase == phaseRoll
	agl := g.altMSL - g.fieldElv

	s := domain.TelemetrySample{
		SessionID:         g.sessionID,
		Timestamp:         g.clock,
		Latitude:          47.26,
		Longitude:         11.34,
		AltitudeMSL:       g.altMSL,
		AltitudeAGL:       agl,
		Heading:           norm360(g.heading),
		IndicatedAirspeed: g.ias,
		GroundSpeed:       g.ias * 1.05,
		OnGround:          onGround,
		GearDown:          onGround || agl < 1500,
		EngineRPM:         []float64{2200 + g.rng.Float64()*50},
		Throttle:          []float64{throttleFor(g.phase)},
	}

	switch g.phase {
	case phaseTaxi:
		s.VerticalSpeed = 0
	case phaseRoll:
		s.Pitch = 2
	case phaseClimb:
		s.Pitch = 10
		s.VerticalSpeed = 1800
	case phaseCruise:
		s.Pitch = 2 + g.rng.Float64()
		s.VerticalSpeed = g.rng.Float64()*200 - 100
		s.SelectedAltitude = g.fieldElv + 10000
		s.SelectedHeading = 260
		s.AutopilotEngaged = true
	}
	return s
}

func throttleFor(p phase) float64 {
	switch p {
	case phaseTaxi:
		return 0.15
	case phaseRoll:
		return 0.95
	case phaseClimb:
		return 0.85
	default:
		return 0.65
	}
}

func norm360(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
