package backtest

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mvrvdca/internal/models"
	"github.com/rewired-gh/mvrvdca/internal/momentum"
)

func fastAnalyzer() momentum.Config {
	cfg := momentum.DefaultConfig()
	cfg.EMAPeriod = 1
	cfg.SlopePeriod = 3
	return cfg
}

func flatReadings(n int, z, price float64) []models.Reading {
	out := make([]models.Reading, n)
	for i := range out {
		out[i] = models.Reading{Z: z, Price: price}
	}
	return out
}

func TestRun_PlateauSellsTradeBucketOnly(t *testing.T) {
	r := &Runner{
		Analyzer: fastAnalyzer(),
		Config:   Config{InitialCapital: 1000, InvestEvery: 1, CoreRatio: 0.4},
	}

	rep, err := r.Run(flatReadings(5, 4.0, 100))
	require.NoError(t, err)

	assert.Equal(t, 5, rep.Samples)
	assert.Equal(t, 2, rep.PhaseCounts[models.PhaseDataGathering])
	assert.Equal(t, 3, rep.PhaseCounts[models.PhasePlateau])
	assert.Equal(t, 3, rep.Sells)

	// 10 units bought, 4 held as core and never sold.
	assert.True(t, rep.CoreUnits.Equal(decimal.NewFromInt(4)), "core = %s", rep.CoreUnits)
	assert.True(t, rep.HODLUnits.Equal(decimal.NewFromInt(10)), "hodl = %s", rep.HODLUnits)

	// Plateau at z=4 sells 5% of the trade bucket three times.
	wantTrade := 6 * math.Pow(0.95, 3)
	assert.InDelta(t, wantTrade, rep.TradeUnits.InexactFloat64(), 1e-9)
	assert.InDelta(t, 6-wantTrade, rep.SoldUnits.InexactFloat64(), 1e-9)

	// Flat price and no fee: value is conserved.
	assert.InDelta(t, 1000, rep.FinalValue.InexactFloat64(), 1e-9)
	assert.InDelta(t, 0, rep.ROI.InexactFloat64(), 1e-12)
	assert.InDelta(t, 0, rep.HODLROI.InexactFloat64(), 1e-12)
}

func TestRun_InvestCadence(t *testing.T) {
	r := &Runner{
		Analyzer: fastAnalyzer(),
		Config:   Config{PeriodicInvest: 100, InvestEvery: 3, CoreRatio: 0.5},
	}

	var bought []int
	r.OnStep = func(s Step) error {
		if s.Bought.IsPositive() {
			bought = append(bought, s.Seq)
		}
		return nil
	}

	rep, err := r.Run(flatReadings(7, 0.5, 50))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3, 6}, bought)
	assert.True(t, rep.Invested.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 0, rep.Sells)
	assert.Equal(t, 5, rep.PhaseCounts[models.PhaseAccumulation])
	assert.True(t, rep.Units().Equal(rep.HODLUnits))
	assert.True(t, rep.ROI.Equal(rep.HODLROI))
}

func TestRun_FeesReduceUnits(t *testing.T) {
	r := &Runner{
		Analyzer: fastAnalyzer(),
		Config:   Config{InitialCapital: 1000, InvestEvery: 1, CoreRatio: 1, FeeRate: 0.01},
	}

	rep, err := r.Run(flatReadings(1, 0.5, 100))
	require.NoError(t, err)

	assert.True(t, rep.HODLUnits.Equal(decimal.RequireFromString("9.9")), "units = %s", rep.HODLUnits)
	assert.InDelta(t, -0.01, rep.ROI.InexactFloat64(), 1e-12)
}

func TestRun_CoreTracksRatioAcrossContributions(t *testing.T) {
	r := &Runner{
		Analyzer: fastAnalyzer(),
		Config:   Config{InitialCapital: 500, PeriodicInvest: 70, InvestEvery: 2, CoreRatio: 0.4, FeeRate: 0.001},
	}

	readings := make([]models.Reading, 12)
	for i := range readings {
		readings[i] = models.Reading{Z: 2.0 + 0.25*float64(i), Price: 20000 + 750*float64(i)}
	}

	rep, err := r.Run(readings)
	require.NoError(t, err)

	assert.Greater(t, rep.Sells, 0)
	assert.True(t, rep.CoreUnits.Equal(rep.HODLUnits.Mul(decimal.NewFromFloat(0.4))),
		"core %s != hodl %s * 0.4", rep.CoreUnits, rep.HODLUnits)
	assert.True(t, rep.Cash.IsPositive())
	assert.True(t, rep.Units().Add(rep.SoldUnits).Equal(rep.HODLUnits))
}

func TestRun_MinSellFraction(t *testing.T) {
	r := &Runner{
		Analyzer: fastAnalyzer(),
		Config:   Config{InitialCapital: 1000, InvestEvery: 1, CoreRatio: 0.4, MinSellFraction: 0.06},
	}

	rep, err := r.Run(flatReadings(5, 4.0, 100))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Sells)
	assert.True(t, rep.Cash.IsZero())
}

func TestRun_SkipsUnpricedReadings(t *testing.T) {
	r := &Runner{
		Analyzer: fastAnalyzer(),
		Config:   Config{InitialCapital: 100, InvestEvery: 1},
	}

	readings := []models.Reading{{Z: 1.0}, {Z: 1.0, Price: 10}, {Z: 1.0}}
	rep, err := r.Run(readings)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Samples)
	assert.Equal(t, 2, rep.Skipped)

	_, err = r.Run(flatReadings(3, 1.0, 0))
	assert.ErrorIs(t, err, ErrNoPricedReadings)
}

func TestRun_Errors(t *testing.T) {
	valid := Config{InitialCapital: 100, InvestEvery: 1}

	t.Run("invalid reading", func(t *testing.T) {
		r := &Runner{Analyzer: fastAnalyzer(), Config: valid}
		_, err := r.Run([]models.Reading{{Z: math.NaN(), Price: 10}})
		assert.ErrorIs(t, err, momentum.ErrInvalidReading)
	})

	t.Run("invalid analyzer", func(t *testing.T) {
		bad := fastAnalyzer()
		bad.SlopePeriod = 1
		r := &Runner{Analyzer: bad, Config: valid}
		_, err := r.Run(flatReadings(3, 1, 10))
		assert.ErrorIs(t, err, momentum.ErrInvalidConfig)
	})

	t.Run("step callback", func(t *testing.T) {
		boom := errors.New("journal full")
		r := &Runner{Analyzer: fastAnalyzer(), Config: valid, OnStep: func(Step) error { return boom }}
		_, err := r.Run(flatReadings(3, 1, 10))
		assert.ErrorIs(t, err, boom)
	})
}

func TestCheck(t *testing.T) {
	r := &Runner{Analyzer: fastAnalyzer(), Config: Config{InitialCapital: 100, InvestEvery: 1}}

	assert.NoError(t, r.Check([]models.Reading{{Z: 1}, {Z: 1, Price: 10}}))
	assert.ErrorIs(t, r.Check([]models.Reading{{Z: 1}}), ErrNoPricedReadings)
	assert.ErrorIs(t, r.Check(nil), ErrNoPricedReadings)

	r.Config.InvestEvery = 0
	assert.Error(t, r.Check(flatReadings(1, 1, 10)))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{InitialCapital: 1, InvestEvery: 1, CoreRatio: 0.4, FeeRate: 0.001}, true},
		{"no money", Config{InvestEvery: 1}, false},
		{"negative capital", Config{InitialCapital: -1, PeriodicInvest: 5, InvestEvery: 1}, false},
		{"zero cadence", Config{InitialCapital: 1}, false},
		{"core ratio", Config{InitialCapital: 1, InvestEvery: 1, CoreRatio: 1.5}, false},
		{"fee", Config{InitialCapital: 1, InvestEvery: 1, FeeRate: 1}, false},
		{"min sell", Config{InitialCapital: 1, InvestEvery: 1, MinSellFraction: -0.1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
