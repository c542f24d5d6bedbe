// Package classify turns colour features, and optionally a trained
// network's output, into a condition verdict with a confidence score and a
// disease catalog index.
package classify

import (
	"errors"
	"fmt"
	"math"

	"github.com/agrisense/cropdoc/internal/features"
	"github.com/agrisense/cropdoc/internal/remedy"
)

// Confidence bounds. Scores never reach 0 or 1.
const (
	MinConfidence = 0.5
	MaxConfidence = 0.98
)

// RuleFallback names the branch taken when no rule matches.
const RuleFallback = "fallback"

// ErrBadProbabilities is returned for a network output that is not three
// finite probabilities.
var ErrBadProbabilities = errors.New("invalid network output")

// Result is one classification verdict.
type Result struct {
	Condition    Condition `json:"condition"`
	Confidence   float64   `json:"confidence"`
	DiseaseIndex int       `json:"diseaseIndex"`
	// Rule names the branch that produced the verdict.
	Rule string `json:"rule"`
	// Fallback is set when the disease index came from the Picker and may
	// differ between runs.
	Fallback bool `json:"fallback,omitempty"`
}

type rule struct {
	name       string
	condition  Condition
	disease    int
	match      func(features.FeatureVector) bool
	confidence func(features.FeatureVector) float64
}

// Classifier evaluates the rule cascade. Rules are tried in order and the
// first match wins.
type Classifier struct {
	th     Thresholds
	rules  []rule
	picker Picker
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithThresholds replaces the default cut points.
func WithThresholds(th Thresholds) Option {
	return func(c *Classifier) { c.th = th }
}

// WithPicker sets the fallback disease picker.
func WithPicker(p Picker) Option {
	return func(c *Classifier) {
		if p != nil {
			c.picker = p
		}
	}
}

// New returns a Classifier using DefaultThresholds and a FingerprintPicker
// unless configured otherwise.
func New(opts ...Option) *Classifier {
	c := &Classifier{th: DefaultThresholds(), picker: FingerprintPicker{}}
	for _, opt := range opts {
		opt(c)
	}
	c.rules = buildRules(c.th)
	return c
}

// Thresholds returns the cut points in use.
func (c *Classifier) Thresholds() Thresholds {
	return c.th
}

func buildRules(th Thresholds) []rule {
	return []rule{
		{
			name: "healthy", condition: Healthy, disease: remedy.Healthy,
			match: func(f features.FeatureVector) bool {
				return f.GreenMean > th.HealthyGreenMin && f.RedStd < th.HealthyRedStdMax &&
					f.GreenStd < th.HealthyGreenStdMax && f.BlueMean < th.HealthyBlueMax
			},
			confidence: func(f features.FeatureVector) float64 { return 0.8 + (f.GreenMean-th.HealthyGreenMin)*0.4 },
		},
		{
			name: "moderately-healthy", condition: Healthy, disease: remedy.Healthy,
			match: func(f features.FeatureVector) bool {
				return f.GreenMean > th.ModerateGreenMin && f.GreenMean <= th.HealthyGreenMin &&
					f.RedStd < th.ModerateRedStdMax
			},
			confidence: func(f features.FeatureVector) float64 { return 0.7 + (f.GreenMean-th.ModerateGreenMin)*0.6 },
		},
		{
			name: "late-blight", condition: DiseaseDetected, disease: remedy.LateBlight,
			match: func(f features.FeatureVector) bool {
				return f.RedMean > th.LateBlightRedMin && f.GreenMean < th.LateBlightGreenMax &&
					f.BlueStd > th.LateBlightBlueStdMin
			},
			confidence: func(f features.FeatureVector) float64 { return 0.75 + (f.RedMean-th.LateBlightRedMin)*0.5 },
		},
		{
			name: "early-blight", condition: DiseaseDetected, disease: remedy.EarlyBlight,
			match: func(f features.FeatureVector) bool {
				return f.GreenMean < th.EarlyBlightGreenMax && f.RedMean > th.EarlyBlightRedMin
			},
			confidence: func(f features.FeatureVector) float64 { return 0.7 + (th.EarlyBlightGreenMax-f.GreenMean)*0.6 },
		},
		{
			name: "powdery-mildew", condition: DiseaseDetected, disease: remedy.PowderyMildew,
			match: func(f features.FeatureVector) bool {
				return f.RedMean > th.MildewRedMin && f.GreenMean > th.MildewGreenMin && f.BlueStd < th.MildewBlueStdMax
			},
			confidence: func(f features.FeatureVector) float64 { return 0.7 + (f.RedMean-th.MildewRedMin)*0.6 },
		},
		{
			name: "leaf-spot", condition: DiseaseDetected, disease: remedy.LeafSpot,
			match: func(f features.FeatureVector) bool {
				return f.GreenMean > th.LeafSpotGreenMin && f.GreenMean < th.ModerateGreenMin &&
					f.RedStd > th.LeafSpotRedStdMin
			},
			confidence: func(f features.FeatureVector) float64 { return 0.65 + f.RedStd*0.3 },
		},
		{
			name: "nutrient-deficiency", condition: NeedsAttention, disease: remedy.NutrientDeficiency,
			match: func(f features.FeatureVector) bool {
				return f.BlueMean > th.DeficiencyBlueMin && f.GreenMean < th.DeficiencyGreenMax
			},
			confidence: func(f features.FeatureVector) float64 { return 0.75 - f.GreenMean*0.3 },
		},
		{
			name: "pest-infestation", condition: NeedsAttention, disease: remedy.PestInfestation,
			match: func(f features.FeatureVector) bool {
				return f.RedStd > th.PestStdMin && f.GreenStd > th.PestStdMin && f.BlueStd > th.PestStdMin
			},
			confidence: func(f features.FeatureVector) float64 { return 0.6 + f.RedStd*0.2 },
		},
	}
}

// Classify runs the rule cascade over fv. Only the fallback branch consults
// the Picker; every other branch is a pure function of fv.
func (c *Classifier) Classify(fv features.FeatureVector) Result {
	for _, r := range c.rules {
		if r.match(fv) {
			return Result{
				Condition:    r.condition,
				Confidence:   Clamp(r.confidence(fv)),
				DiseaseIndex: r.disease,
				Rule:         r.name,
			}
		}
	}
	return Result{
		Condition:    NeedsAttention,
		Confidence:   Clamp(0.6 + math.Abs(fv.GreenMean-0.4)*0.6),
		DiseaseIndex: c.picker.Pick(fv),
		Rule:         RuleFallback,
		Fallback:     true,
	}
}

// ClassifyNetwork builds a verdict from a trained network's probabilities
// over {Healthy, NeedsAttention, DiseaseDetected}. The arg-max gives the
// condition and its probability the confidence. The disease index is taken
// from the rule cascade over fv when that agrees on the condition, and from
// the Picker otherwise.
func (c *Classifier) ClassifyNetwork(probs []float32, fv features.FeatureVector) (Result, error) {
	cond, p, err := ArgMax(probs)
	if err != nil {
		return Result{}, err
	}
	res := Result{Condition: cond, Confidence: Clamp(p), Rule: "network"}
	if cond == Healthy {
		res.DiseaseIndex = remedy.Healthy
		return res, nil
	}
	if rules := c.Classify(fv); rules.Condition == cond && !rules.Fallback {
		res.DiseaseIndex = rules.DiseaseIndex
		return res, nil
	}
	res.DiseaseIndex = c.picker.Pick(fv)
	res.Fallback = true
	return res, nil
}

// ArgMax returns the most probable condition and its probability.
func ArgMax(probs []float32) (Condition, float64, error) {
	if len(probs) != len(conditionNames) {
		return 0, 0, fmt.Errorf("%w: want %d values, got %d", ErrBadProbabilities, len(conditionNames), len(probs))
	}
	best := 0
	for i, v := range probs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0, 0, fmt.Errorf("%w: non-finite value at %d", ErrBadProbabilities, i)
		}
		if v > probs[best] {
			best = i
		}
	}
	return Condition(best), float64(probs[best]), nil
}

// Clamp bounds a raw confidence to [MinConfidence, MaxConfidence].
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinConfidence
	}
	return math.Min(MaxConfidence, math.Max(MinConfidence, v))
}
