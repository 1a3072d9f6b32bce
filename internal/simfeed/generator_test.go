package simfeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_ProfileProgression(t *testing.T) {
	g := New("sess-demo", 30, 42)
	assert.Equal(t, time.Second/30, g.Period())

	first := g.Next()
	assert.Equal(t, "sess-demo", first.SessionID)
	assert.True(t, first.OnGround)

	// Run 10 simulated minutes; the profile must reach cruise.
	var last = first
	steps := int(10 * time.Minute / g.Period())
	for i := 0; i < steps; i++ {
		s := g.Next()
		require.True(t, s.Timestamp.After(last.Timestamp), "timestamps must be strictly increasing")
		last = s
	}
	assert.False(t, last.OnGround)
	assert.False(t, last.GearDown)
	assert.Greater(t, last.AltitudeAGL, 9000.0)
	assert.InDelta(t, 250, last.IndicatedAirspeed, 10)
	assert.True(t, last.AutopilotEngaged)
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := New("s", 30, 7), New("s", 30, 7)
	for i := 0; i < 100; i++ {
		sa, sb := a.Next(), b.Next()
		sa.Timestamp, sb.Timestamp = time.Time{}, time.Time{}
		require.Equal(t, sa, sb, "step %d", i)
	}
}
