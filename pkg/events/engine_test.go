package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flightbus/simtel/pkg/domain"
)

func groundSample(ts time.Time) domain.TelemetrySample {
	return domain.TelemetrySample{
		SessionID:         "sess-1",
		Timestamp:         ts,
		AltitudeAGL:       0,
		IndicatedAirspeed: 10,
		GroundSpeed:       10,
		Throttle:          []float64{0.1},
		OnGround:          true,
		GearDown:          true,
	}
}

func cruiseSample(ts time.Time) domain.TelemetrySample {
	return domain.TelemetrySample{
		SessionID:         "sess-1",
		Timestamp:         ts,
		AltitudeMSL:       12000,
		AltitudeAGL:       11000,
		IndicatedAirspeed: 250,
		GroundSpeed:       260,
		VerticalSpeed:     0,
		Throttle:          []float64{0.7},
		OnGround:          false,
	}
}

func collectTypes(events []domain.Event) map[domain.EventType]int {
	out := make(map[domain.EventType]int)
	for _, ev := range events {
		out[ev.Type]++
	}
	return out
}

func TestEngine_TakeoffAndLanding(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()

	// Prime state on ground. First window never fires transitions.
	got := e.DetectEvents(Window{groundSample(base)})
	assert.NotContains(t, collectTypes(got), domain.EventTakeoff)
	assert.NotContains(t, collectTypes(got), domain.EventLanding)

	air := cruiseSample(base.Add(time.Second))
	air.AltitudeAGL = 50
	air.AltitudeMSL = 1050
	air.VerticalSpeed = 800
	air.IndicatedAirspeed = 120
	got = e.DetectEvents(Window{air})
	assert.Contains(t, collectTypes(got), domain.EventTakeoff)

	// Still airborne: no second takeoff.
	got = e.DetectEvents(Window{air})
	assert.NotContains(t, collectTypes(got), domain.EventTakeoff)

	down := groundSample(base.Add(2 * time.Second))
	down.IndicatedAirspeed = 80
	got = e.DetectEvents(Window{down})
	assert.Contains(t, collectTypes(got), domain.EventLanding)
}

func TestEngine_StallEdgeTriggered(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()

	s := cruiseSample(base)
	s.Stalled = true
	got := e.DetectEvents(Window{s})
	types := collectTypes(got)
	require.Contains(t, types, domain.EventStall)

	for _, ev := range got {
		if ev.Type == domain.EventStall {
			assert.Equal(t, domain.SeverityCritical, ev.Severity)
			assert.Equal(t, "sess-1", ev.SessionID)
		}
	}

	// Sustained stall does not re-fire.
	got = e.DetectEvents(Window{s})
	assert.NotContains(t, collectTypes(got), domain.EventStall)

	// Recover, then stall again.
	r := cruiseSample(base.Add(time.Second))
	e.DetectEvents(Window{r})
	got = e.DetectEvents(Window{s})
	assert.Contains(t, collectTypes(got), domain.EventStall)
}

func TestEngine_ExceedanceDetectors(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()
	e.DetectEvents(Window{cruiseSample(base)})

	s := cruiseSample(base.Add(time.Second))
	s.IndicatedAirspeed = 350
	s.Bank = -70
	s.Pitch = 35
	got := collectTypes(e.DetectEvents(Window{s}))

	assert.Contains(t, got, domain.EventOverspeed)
	assert.Contains(t, got, domain.EventBankAngleExceeded)
	assert.Contains(t, got, domain.EventPitchAngleExceeded)
}

func TestEngine_GuidanceDeviations(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()
	e.DetectEvents(Window{cruiseSample(base)})

	s := cruiseSample(base.Add(time.Second))
	s.SelectedAltitude = 12500 // 500 ft off, threshold 300
	s.SelectedHeading = 90
	s.Heading = 120 // 30° off, threshold 15
	s.SelectedAirspeed = 220
	s.IndicatedAirspeed = 250 // 30 kt off, threshold 15
	got := collectTypes(e.DetectEvents(Window{s}))

	assert.Contains(t, got, domain.EventAltitudeDeviation)
	assert.Contains(t, got, domain.EventHeadingDeviation)
	assert.Contains(t, got, domain.EventSpeedDeviation)

	// Within limits: quiet.
	s.AltitudeMSL = 12400
	s.Heading = 95
	s.IndicatedAirspeed = 225
	got = collectTypes(e.DetectEvents(Window{s}))
	assert.NotContains(t, got, domain.EventAltitudeDeviation)
	assert.NotContains(t, got, domain.EventHeadingDeviation)
	assert.NotContains(t, got, domain.EventSpeedDeviation)
}

func TestEngine_HeadingDeviationWrapsAround(t *testing.T) {
	assert.InDelta(t, 20, headingDiff(350, 10), 1e-9)
	assert.InDelta(t, 180, headingDiff(0, 180), 1e-9)
	assert.InDelta(t, 0, headingDiff(360, 0), 1e-9)
}

func TestEngine_ConfigurationMismatch(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()

	s := cruiseSample(base)
	s.GearDown = true
	s.IndicatedAirspeed = 250
	got := collectTypes(e.DetectEvents(Window{s}))
	assert.Contains(t, got, domain.EventConfigurationMismatch)

	s.GearDown = false
	s.Flaps = 0.5
	got = collectTypes(e.DetectEvents(Window{s}))
	assert.Contains(t, got, domain.EventConfigurationMismatch)
}

func TestEngine_SystemFailureDeduplicated(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()

	s := cruiseSample(base)
	s.ActiveFailures = []string{"engine_1_fire"}
	got := collectTypes(e.DetectEvents(Window{s}))
	assert.Contains(t, got, domain.EventSystemFailure)

	// Same failure again: known, silent.
	got = collectTypes(e.DetectEvents(Window{s}))
	assert.NotContains(t, got, domain.EventSystemFailure)

	// A new failure fires again.
	s.ActiveFailures = []string{"engine_1_fire", "hydraulics_a"}
	got = collectTypes(e.DetectEvents(Window{s}))
	assert.Contains(t, got, domain.EventSystemFailure)
}

func TestEngine_PhaseChange(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()

	e.DetectEvents(Window{groundSample(base)})
	got := collectTypes(e.DetectEvents(Window{cruiseSample(base.Add(time.Second))}))
	assert.Contains(t, got, domain.EventPhaseChange)

	got = collectTypes(e.DetectEvents(Window{cruiseSample(base.Add(2 * time.Second))}))
	assert.NotContains(t, got, domain.EventPhaseChange)
}

func TestEngine_InstructorActionDeduplicated(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	base := time.Now()

	s := cruiseSample(base)
	s.InstructorAction = "freeze_position"
	got := collectTypes(e.DetectEvents(Window{s}))
	assert.Contains(t, got, domain.EventInstructorAction)

	got = collectTypes(e.DetectEvents(Window{s}))
	assert.NotContains(t, got, domain.EventInstructorAction)

	s.InstructorAction = "reposition"
	got = collectTypes(e.DetectEvents(Window{s}))
	assert.Contains(t, got, domain.EventInstructorAction)
}

func TestEngine_RegistryOperations(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))

	custom := domain.EventType("custom.always")
	fired := 0
	err := e.RegisterDetector(custom, func(w Window, prev *StreamState) *domain.Event {
		fired++
		ev := domain.NewEvent(custom, domain.SeverityInfo, "always", &w[len(w)-1])
		return &ev
	}, "fires on every window", domain.SeverityInfo)
	require.NoError(t, err)

	err = e.RegisterDetector(custom, nil, "dup", domain.SeverityInfo)
	assert.ErrorIs(t, err, ErrDuplicateDetector)

	got := collectTypes(e.DetectEvents(Window{cruiseSample(time.Now())}))
	assert.Contains(t, got, custom)
	assert.Equal(t, 1, fired)

	// Disable skips the detector; enable is idempotent.
	require.NoError(t, e.SetEnabled(custom, false))
	assert.False(t, e.IsEnabled(custom))
	got = collectTypes(e.DetectEvents(Window{cruiseSample(time.Now())}))
	assert.NotContains(t, got, custom)
	assert.Equal(t, 1, fired)

	require.NoError(t, e.SetEnabled(custom, true))
	require.NoError(t, e.SetEnabled(custom, true))
	assert.True(t, e.IsEnabled(custom))

	require.NoError(t, e.UnregisterDetector(custom))
	assert.ErrorIs(t, e.UnregisterDetector(custom), ErrUnknownDetector)
	assert.ErrorIs(t, e.SetEnabled(custom, true), ErrUnknownDetector)
	assert.False(t, e.IsEnabled(custom))
}

func TestEngine_DetectorsExposeMetadata(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))

	custom := domain.EventType("custom.meta")
	require.NoError(t, e.RegisterDetector(custom, func(w Window, prev *StreamState) *domain.Event {
		return nil
	}, "never fires", domain.SeverityCaution))
	require.NoError(t, e.SetEnabled(custom, false))

	infos := e.Detectors()
	require.Len(t, infos, len(e.Tags()))
	assert.Equal(t, custom, infos[len(infos)-1].Tag)
	assert.Equal(t, "never fires", infos[len(infos)-1].Description)
	assert.Equal(t, domain.SeverityCaution, infos[len(infos)-1].Severity)
	assert.False(t, infos[len(infos)-1].Enabled)

	// Default detectors report themselves enabled with their tags in
	// registration order.
	for i, tag := range e.Tags() {
		assert.Equal(t, tag, infos[i].Tag)
	}
	assert.True(t, infos[0].Enabled)
	assert.NotEmpty(t, infos[0].Description)
}

func TestEngine_RegistrationOrderPreserved(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))

	a := domain.EventType("custom.a")
	b := domain.EventType("custom.b")
	mk := func(tag domain.EventType) DetectorFunc {
		return func(w Window, prev *StreamState) *domain.Event {
			ev := domain.NewEvent(tag, domain.SeverityInfo, string(tag), &w[len(w)-1])
			return &ev
		}
	}
	require.NoError(t, e.RegisterDetector(a, mk(a), "a", domain.SeverityInfo))
	require.NoError(t, e.RegisterDetector(b, mk(b), "b", domain.SeverityInfo))

	tags := e.Tags()
	require.GreaterOrEqual(t, len(tags), 2)
	assert.Equal(t, a, tags[len(tags)-2])
	assert.Equal(t, b, tags[len(tags)-1])

	got := e.DetectEvents(Window{cruiseSample(time.Now())})
	var customs []domain.EventType
	for _, ev := range got {
		if ev.Type == a || ev.Type == b {
			customs = append(customs, ev.Type)
		}
	}
	assert.Equal(t, []domain.EventType{a, b}, customs)
}

func TestEngine_PanickingDetectorIsolated(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))

	bad := domain.EventType("custom.panics")
	require.NoError(t, e.RegisterDetector(bad, func(w Window, prev *StreamState) *domain.Event {
		panic("detector bug")
	}, "panics", domain.SeverityInfo))

	ok := domain.EventType("custom.after")
	require.NoError(t, e.RegisterDetector(ok, func(w Window, prev *StreamState) *domain.Event {
		ev := domain.NewEvent(ok, domain.SeverityInfo, "ran", &w[len(w)-1])
		return &ev
	}, "runs after the panicking one", domain.SeverityInfo))

	got := collectTypes(e.DetectEvents(Window{cruiseSample(time.Now())}))
	assert.Contains(t, got, ok)
	assert.NotContains(t, got, bad)
}

func TestEngine_EmptyWindow(t *testing.T) {
	e := NewEngine("sess-1", DefaultThresholds(), zaptest.NewLogger(t))
	assert.Nil(t, e.DetectEvents(nil))
	assert.Nil(t, e.DetectEvents(Window{}))
}
