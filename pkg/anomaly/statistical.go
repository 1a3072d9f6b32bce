package anomaly

import (
	"fmt"
	"math"

	"github.com/flightbus/simtel/pkg/domain"
)

// StatisticalModel keeps a running per-parameter baseline (mean, standard
// deviation, min, max) learned from normal flight data and flags samples
// whose channels land further than sigmaThreshold standard deviations from
// the mean.
//
// The running moments use Welford's algorithm so training can be fed
// incrementally without storing history.
type StatisticalModel struct {
	name           string
	sigmaThreshold float64
	minTrainCount  float64

	baselines map[string]*runningStats
}

type runningStats struct {
	count float64
	mean  float64
	m2    float64
	min   float64
	max   float64
}

func (r *runningStats) add(v float64) {
	if r.count == 0 {
		r.min, r.max = v, v
	} else {
		if v < r.min {
			r.min = v
		}
		if v > r.max {
			r.max = v
		}
	}
	r.count++
	delta := v - r.mean
	r.mean += delta / r.count
	r.m2 += delta * (v - r.mean)
}

func (r *runningStats) stddev() float64 {
	if r.count < 2 {
		return 0
	}
	return math.Sqrt(r.m2 / (r.count - 1))
}

// NewStatisticalModel creates a model with a 3-sigma threshold and a
// 30-sample training floor.
func NewStatisticalModel(name string) *StatisticalModel {
	return &StatisticalModel{
		name:           name,
		sigmaThreshold: 3.0,
		minTrainCount:  30,
		baselines:      make(map[string]*runningStats),
	}
}

func (m *StatisticalModel) Name() string      { return m.name }
func (m *StatisticalModel) ModelType() string { return "statistical" }

// Initialize accepts "sigma_threshold" and "min_train_count".
func (m *StatisticalModel) Initialize(settings map[string]float64) error {
	for key, v := range settings {
		switch key {
		case "sigma_threshold":
			if v <= 0 {
				return fmt.Errorf("sigma_threshold must be positive, got %v", v)
			}
			m.sigmaThreshold = v
		case "min_train_count":
			if v < 2 {
				return fmt.Errorf("min_train_count must be at least 2, got %v", v)
			}
			m.minTrainCount = v
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	return nil
}

// Train folds samples into the running baselines. Training is cumulative
// across calls.
func (m *StatisticalModel) Train(samples []domain.TelemetrySample) error {
	if len(samples) == 0 {
		return fmt.Errorf("empty training set")
	}
	for i := range samples {
		s := &samples[i]
		for name, fn := range parameterExtractors {
			rs, ok := m.baselines[name]
			if !ok {
				rs = &runningStats{}
				m.baselines[name] = rs
			}
			rs.add(fn(s))
		}
	}
	return nil
}

// Detect scores the newest sample of the window against the baselines.
// Untrained or under-trained parameters never fire.
func (m *StatisticalModel) Detect(w Window) []domain.Anomaly {
	if len(w) == 0 {
		return nil
	}
	last := &w[len(w)-1]

	var out []domain.Anomaly
	for _, name := range Parameters() {
		rs, ok := m.baselines[name]
		if !ok || rs.count < m.minTrainCount {
			continue
		}
		sd := rs.stddev()
		if sd == 0 {
			continue
		}
		v, _ := ExtractParameter(name, last)
		sigmas := math.Abs(v-rs.mean) / sd
		if sigmas <= m.sigmaThreshold {
			continue
		}

		a := domain.NewAnomaly("statistical_deviation", name, m.name, last)
		a.DeviationScore = sigmas
		// Confidence grows with the exceedance, capped at 1.
		a.Confidence = math.Min(1, sigmas/(2*m.sigmaThreshold))
		a.Expected = fmt.Sprintf("%.2f ± %.2f", rs.mean, m.sigmaThreshold*sd)
		a.Actual = fmt.Sprintf("%.2f (%.1fσ)", v, sigmas)
		out = append(out, a)
	}
	return out
}
