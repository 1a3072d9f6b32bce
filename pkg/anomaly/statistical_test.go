package anomaly

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightbus/simtel/pkg/domain"
)

// trainingSamples produces n samples whose IAS is uniform in [10, 20] and
// whose other channels are held constant at cruise-like values.
func trainingSamples(n int, rng *rand.Rand) []domain.TelemetrySample {
	base := time.Now()
	out := make([]domain.TelemetrySample, n)
	for i := range out {
		out[i] = domain.TelemetrySample{
			SessionID:         "sess-1",
			Timestamp:         base.Add(time.Duration(i) * 100 * time.Millisecond),
			AltitudeMSL:       10000,
			AltitudeAGL:       9000,
			IndicatedAirspeed: 10 + rng.Float64()*10,
			GroundSpeed:       15,
			Heading:           90,
		}
	}
	return out
}

func TestStatisticalModel_ThresholdBehavior(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := NewStatisticalModel("baseline")
	require.NoError(t, m.Train(trainingSamples(100, rng)))

	probe := domain.TelemetrySample{
		SessionID:         "sess-1",
		Timestamp:         time.Now(),
		AltitudeMSL:       10000,
		AltitudeAGL:       9000,
		IndicatedAirspeed: 100,
		GroundSpeed:       15,
		Heading:           90,
	}
	found := m.Detect(Window{probe})
	require.NotEmpty(t, found)

	var ias *domain.Anomaly
	for i := range found {
		if found[i].Parameter == "ias" {
			ias = &found[i]
		}
	}
	require.NotNil(t, ias, "expected an IAS finding, got %+v", found)
	assert.Equal(t, "statistical_deviation", ias.Type)
	assert.Equal(t, "baseline", ias.Model)
	assert.Greater(t, ias.DeviationScore, 3.0)
	assert.Greater(t, ias.Confidence, 0.0)
	assert.LessOrEqual(t, ias.Confidence, 1.0)
	assert.Equal(t, "sess-1", ias.SessionID)

	// A value inside the trained band is quiet.
	probe.IndicatedAirspeed = 15
	for _, a := range m.Detect(Window{probe}) {
		assert.NotEqual(t, "ias", a.Parameter)
	}
}

func TestStatisticalModel_RequiresTraining(t *testing.T) {
	m := NewStatisticalModel("untrained")
	probe := domain.TelemetrySample{IndicatedAirspeed: 9999, Timestamp: time.Now()}
	assert.Empty(t, m.Detect(Window{probe}))
}

func TestStatisticalModel_MinTrainCount(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	m := NewStatisticalModel("few")
	require.NoError(t, m.Train(trainingSamples(10, rng)))

	// 10 < default floor of 30: still quiet.
	probe := domain.TelemetrySample{IndicatedAirspeed: 9999, Timestamp: time.Now()}
	assert.Empty(t, m.Detect(Window{probe}))

	// Lower the floor and the same baseline fires.
	require.NoError(t, m.Initialize(map[string]float64{"min_train_count": 5}))
	assert.NotEmpty(t, m.Detect(Window{probe}))
}

func TestStatisticalModel_InitializeValidation(t *testing.T) {
	m := NewStatisticalModel("v")
	assert.Error(t, m.Initialize(map[string]float64{"sigma_threshold": 0}))
	assert.Error(t, m.Initialize(map[string]float64{"min_train_count": 1}))
	assert.Error(t, m.Initialize(map[string]float64{"no_such_knob": 1}))
	assert.NoError(t, m.Initialize(map[string]float64{"sigma_threshold": 2.5, "min_train_count": 10}))
}

func TestStatisticalModel_EmptyTrainingSet(t *testing.T) {
	m := NewStatisticalModel("e")
	assert.Error(t, m.Train(nil))
}

func TestStatisticalModel_CumulativeTraining(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := NewStatisticalModel("inc")
	require.NoError(t, m.Train(trainingSamples(50, rng)))
	require.NoError(t, m.Train(trainingSamples(50, rng)))

	probe := domain.TelemetrySample{
		SessionID:         "sess-1",
		Timestamp:         time.Now(),
		AltitudeMSL:       10000,
		AltitudeAGL:       9000,
		IndicatedAirspeed: 100,
		GroundSpeed:       15,
		Heading:           90,
	}
	var hit bool
	for _, a := range m.Detect(Window{probe}) {
		if a.Parameter == "ias" {
			hit = true
		}
	}
	assert.True(t, hit)
}
