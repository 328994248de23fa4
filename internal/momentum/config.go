// Package momentum implements the MVRV Z-Score momentum pipeline: EMA smoothing,
// trailing OLS slope, phase classification, and DCA-out sell rate sizing.
package momentum

import (
	"errors"
	"fmt"
	"math"

	"github.com/rewired-gh/mvrvdca/internal/models"
)

// ErrInvalidConfig is returned when an analyzer configuration fails validation.
var ErrInvalidConfig = errors.New("invalid analyzer config")

// Thresholds are the phase boundaries on smoothed Z and slope.
type Thresholds struct {
	Low          float64
	High         float64
	SlopeBull    float64
	SlopeFlatNeg float64
	SlopeFlatPos float64
	SlopeBear    float64
}

// Rate is the sizing pair for a priced phase.
type Rate struct {
	Base       float64
	Multiplier float64
}

// Config holds the analyzer periods, phase boundaries and sizing table.
type Config struct {
	EMAPeriod   int
	SlopePeriod int
	Thresholds  Thresholds
	ZNorm       float64
	MaxSellRate float64
	Rates       map[models.Phase]Rate
}

// DefaultThresholds returns the stock phase boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:          1.5,
		High:         3.0,
		SlopeBull:    0.05,
		SlopeFlatNeg: -0.03,
		SlopeFlatPos: 0.03,
		SlopeBear:    -0.05,
	}
}

// DefaultRates returns the stock sizing table for every priced phase.
func DefaultRates() map[models.Phase]Rate {
	return map[models.Phase]Rate{
		models.PhaseRapidAscent: {Base: 0.002, Multiplier: 0.5},
		models.PhasePlateau:     {Base: 0.010, Multiplier: 2.5},
		models.PhaseDecline:     {Base: 0.010, Multiplier: 4.0},
		models.PhaseTransition:  {Base: 0.005, Multiplier: 1.0},
	}
}

// DefaultConfig returns a 14-sample EMA, 7-sample slope configuration.
func DefaultConfig() Config {
	return Config{
		EMAPeriod:   14,
		SlopePeriod: 7,
		Thresholds:  DefaultThresholds(),
		ZNorm:       2.0,
		MaxSellRate: 0.10,
		Rates:       DefaultRates(),
	}
}

// Validate checks that the configuration describes a usable analyzer.
func (c Config) Validate() error {
	if c.EMAPeriod < 1 {
		return fmt.Errorf("%w: ema period must be at least 1, got %d", ErrInvalidConfig, c.EMAPeriod)
	}
	if c.SlopePeriod < 2 {
		return fmt.Errorf("%w: slope period must be at least 2, got %d", ErrInvalidConfig, c.SlopePeriod)
	}

	t := c.Thresholds
	for name, v := range map[string]float64{
		"threshold low":  t.Low,
		"threshold high": t.High,
		"slope bull":     t.SlopeBull,
		"slope flat neg": t.SlopeFlatNeg,
		"slope flat pos": t.SlopeFlatPos,
		"slope bear":     t.SlopeBear,
	} {
		if !finite(v) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidConfig, name)
		}
	}
	if t.Low > t.High {
		return fmt.Errorf("%w: threshold low %.4f exceeds threshold high %.4f", ErrInvalidConfig, t.Low, t.High)
	}
	if t.SlopeFlatNeg > t.SlopeFlatPos {
		return fmt.Errorf("%w: flat slope band is inverted (%.4f > %.4f)", ErrInvalidConfig, t.SlopeFlatNeg, t.SlopeFlatPos)
	}

	if !finite(c.ZNorm) || c.ZNorm == 0 {
		return fmt.Errorf("%w: z norm must be finite and non-zero", ErrInvalidConfig)
	}
	if !finite(c.MaxSellRate) || c.MaxSellRate <= 0 || c.MaxSellRate > 1 {
		return fmt.Errorf("%w: max sell rate must be in (0, 1], got %v", ErrInvalidConfig, c.MaxSellRate)
	}

	for _, phase := range models.AllPhases {
		if _, ok := c.Rates[phase]; phase.Priced() && !ok {
			return fmt.Errorf("%w: missing rate for %s", ErrInvalidConfig, phase)
		}
	}
	for phase, r := range c.Rates {
		if !phase.Priced() {
			return fmt.Errorf("%w: phase %s cannot carry a sell rate", ErrInvalidConfig, phase)
		}
		if !finite(r.Base) || !finite(r.Multiplier) {
			return fmt.Errorf("%w: rate for %s must be finite", ErrInvalidConfig, phase)
		}
	}
	return nil
}

// historyCapacity is the longest window any component reads.
func (c Config) historyCapacity() int {
	if c.EMAPeriod > c.SlopePeriod {
		return c.EMAPeriod
	}
	return c.SlopePeriod
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
