package momentum

import "github.com/rewired-gh/mvrvdca/internal/models"

type classifyInput struct {
	z      float64
	slope  float64
	enough bool
}

type rule struct {
	phase models.Phase
	match func(in classifyInput) bool
}

// Classifier maps (smoothed Z, slope) to a phase. Rules are evaluated in order and
// the first match wins; their ranges overlap, so the order is part of the contract.
// A Classifier keeps no memory between calls.
type Classifier struct {
	rules []rule
}

// NewClassifier builds the ordered rule list for t.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{rules: []rule{
		{models.PhaseDataGathering, func(in classifyInput) bool { return !in.enough }},
		{models.PhaseAccumulation, func(in classifyInput) bool { return in.z < t.Low }},
		{models.PhaseRapidAscent, func(in classifyInput) bool { return in.slope > t.SlopeBull && in.z > t.Low }},
		{models.PhasePlateau, func(in classifyInput) bool {
			return in.slope >= t.SlopeFlatNeg && in.slope <= t.SlopeFlatPos && in.z > t.High
		}},
		{models.PhaseDecline, func(in classifyInput) bool { return in.slope < t.SlopeBear }},
	}}
}

// Classify returns the first matching phase, or TRANSITION when none match.
func (c *Classifier) Classify(smoothedZ, slope float64, hasEnoughHistory bool) models.Phase {
	in := classifyInput{z: smoothedZ, slope: slope, enough: hasEnoughHistory}
	for _, r := range c.rules {
		if r.match(in) {
			return r.phase
		}
	}
	return models.PhaseTransition
}
