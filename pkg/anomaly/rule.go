package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/flightbus/simtel/pkg/domain"
)

// Rule bounds one telemetry channel to a closed interval.
type Rule struct {
	Parameter string  `yaml:"parameter" mapstructure:"parameter"`
	Min       float64 `yaml:"min" mapstructure:"min"`
	Max       float64 `yaml:"max" mapstructure:"max"`
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
}

// RuleModel flags samples whose channels leave fixed operator-defined
// envelopes. It needs no training; Train is a no-op so a RuleModel can sit
// in the same registry as trained models.
type RuleModel struct {
	name       string
	confidence float64
	rules      map[string]*Rule
}

// NewRuleModel creates an empty rule model with a fixed 0.9 confidence.
func NewRuleModel(name string) *RuleModel {
	return &RuleModel{
		name:       name,
		confidence: 0.9,
		rules:      make(map[string]*Rule),
	}
}

func (m *RuleModel) Name() string      { return m.name }
func (m *RuleModel) ModelType() string { return "rule" }

// AddRule installs or replaces the envelope for a parameter. Unknown
// parameters and inverted bounds are rejected.
func (m *RuleModel) AddRule(r Rule) error {
	if _, ok := parameterExtractors[r.Parameter]; !ok {
		return fmt.Errorf("unknown parameter %q", r.Parameter)
	}
	if r.Min > r.Max {
		return fmt.Errorf("rule for %q has min %v > max %v", r.Parameter, r.Min, r.Max)
	}
	rule := r
	m.rules[r.Parameter] = &rule
	return nil
}

// RemoveRule drops the envelope for a parameter, if any.
func (m *RuleModel) RemoveRule(parameter string) {
	delete(m.rules, parameter)
}

// SetRuleEnabled toggles one rule without removing its bounds.
func (m *RuleModel) SetRuleEnabled(parameter string, enabled bool) error {
	r, ok := m.rules[parameter]
	if !ok {
		return fmt.Errorf("no rule for parameter %q", parameter)
	}
	r.Enabled = enabled
	return nil
}

// Initialize accepts "confidence" plus per-parameter bounds in the form
// "<parameter>.min" and "<parameter>.max". Bounds given this way arrive
// enabled.
func (m *RuleModel) Initialize(settings map[string]float64) error {
	// Deterministic application order so min/max pairs land together.
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := settings[key]
		if key == "confidence" {
			if v <= 0 || v > 1 {
				return fmt.Errorf("confidence must be in (0, 1], got %v", v)
			}
			m.confidence = v
			continue
		}

		param, bound, ok := splitBoundKey(key)
		if !ok {
			return fmt.Errorf("unknown setting %q", key)
		}
		if _, known := parameterExtractors[param]; !known {
			return fmt.Errorf("unknown parameter %q", param)
		}
		r, exists := m.rules[param]
		if !exists {
			r = &Rule{Parameter: param, Min: math.Inf(-1), Max: math.Inf(1), Enabled: true}
			m.rules[param] = r
		}
		if bound == "min" {
			r.Min = v
		} else {
			r.Max = v
		}
	}

	for _, r := range m.rules {
		if r.Min > r.Max {
			return fmt.Errorf("rule for %q has min %v > max %v", r.Parameter, r.Min, r.Max)
		}
	}
	return nil
}

func splitBoundKey(key string) (param, bound string, ok bool) {
	for _, suffix := range []string{".min", ".max"} {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			return key[:len(key)-len(suffix)], suffix[1:], true
		}
	}
	return "", "", false
}

// Train is a no-op; rule envelopes are configured, not learned.
func (m *RuleModel) Train(samples []domain.TelemetrySample) error {
	return nil
}

// Detect checks the newest sample of the window against every enabled rule.
func (m *RuleModel) Detect(w Window) []domain.Anomaly {
	if len(w) == 0 {
		return nil
	}
	last := &w[len(w)-1]

	params := make([]string, 0, len(m.rules))
	for p := range m.rules {
		params = append(params, p)
	}
	sort.Strings(params)

	var out []domain.Anomaly
	for _, p := range params {
		r := m.rules[p]
		if !r.Enabled {
			continue
		}
		v, _ := ExtractParameter(p, last)
		if v >= r.Min && v <= r.Max {
			continue
		}

		var overshoot float64
		if v < r.Min {
			overshoot = r.Min - v
		} else {
			overshoot = v - r.Max
		}

		a := domain.NewAnomaly("rule_violation", p, m.name, last)
		a.Confidence = m.confidence
		a.DeviationScore = overshoot
		a.Expected = fmt.Sprintf("[%.2f, %.2f]", r.Min, r.Max)
		a.Actual = fmt.Sprintf("%.2f", v)
		out = append(out, a)
	}
	return out
}
