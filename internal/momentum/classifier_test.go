package momentum

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rewired-gh/mvrvdca/internal/models"
)

func TestClassifier_PriorityOrder(t *testing.T) {
	c := NewClassifier(DefaultThresholds())

	tests := []struct {
		name   string
		z      float64
		slope  float64
		enough bool
		want   models.Phase
	}{
		{"not enough history wins over everything", 5.0, -1.0, false, models.PhaseDataGathering},
		{"low z regardless of steep rise", 1.2, 0.5, true, models.PhaseAccumulation},
		{"low z regardless of steep fall", -0.5, -0.5, true, models.PhaseAccumulation},
		{"rapid ascent", 2.0, 0.06, true, models.PhaseRapidAscent},
		{"rapid ascent beats plateau z range", 4.0, 0.08, true, models.PhaseRapidAscent},
		{"plateau flat high", 4.0, 0.0, true, models.PhasePlateau},
		{"plateau at lower flat edge", 3.5, -0.03, true, models.PhasePlateau},
		{"plateau at upper flat edge", 3.5, 0.03, true, models.PhasePlateau},
		{"plateau needs z strictly above high", 3.0, 0.0, true, models.PhaseTransition},
		{"decline", 2.5, -0.06, true, models.PhaseDecline},
		{"decline at high z", 6.0, -0.2, true, models.PhaseDecline},
		{"flat mid-range is transition", 2.0, 0.0, true, models.PhaseTransition},
		{"gap between flat and bull", 4.0, 0.04, true, models.PhaseTransition},
		{"gap between bear and flat", 4.0, -0.04, true, models.PhaseTransition},
		{"slope exactly bull is not ascent", 2.0, 0.05, true, models.PhaseTransition},
		{"slope exactly bear is not decline", 2.0, -0.05, true, models.PhaseTransition},
		{"z exactly low is not accumulation", 1.5, 0.1, true, models.PhaseTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.z, tt.slope, tt.enough))
		})
	}
}

func TestClassifier_IsStateless(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	inputs := [][2]float64{{4.0, 0.0}, {2.0, 0.06}, {1.0, 0.0}, {2.5, -0.2}, {2.0, 0.0}}

	first := make([]models.Phase, len(inputs))
	for i, in := range inputs {
		first[i] = c.Classify(in[0], in[1], true)
	}
	for i := len(inputs) - 1; i >= 0; i-- {
		assert.Equal(t, first[i], c.Classify(inputs[i][0], inputs[i][1], true))
	}
}

func TestClassifier_CustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.Low = 0.5
	th.High = 1.0
	c := NewClassifier(th)

	assert.Equal(t, models.PhasePlateau, c.Classify(1.2, 0.0, true))
	assert.Equal(t, models.PhaseTransition, c.Classify(0.8, 0.0, true))
}
