// Package backtest replays a priced Z-Score history through a fresh analyzer and
// simulates a DCA-in / DCA-out portfolio against a buy-and-hold baseline.
//
// Every InvestEvery-th sample a fixed contribution buys units (fee deducted) that
// are split into a core bucket, which is never sold, and a trade bucket. On each
// sample the trade bucket is reduced by the analyzer's sell percentage.
package backtest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/mvrvdca/internal/models"
	"github.com/rewired-gh/mvrvdca/internal/momentum"
)

// ErrNoPricedReadings is returned when the input contains no reading with a price.
var ErrNoPricedReadings = errors.New("no priced readings to replay")

// Config holds the portfolio parameters of a replay.
type Config struct {
	InitialCapital  float64
	PeriodicInvest  float64
	InvestEvery     int
	CoreRatio       float64
	FeeRate         float64
	MinSellFraction float64
}

// Validate checks the portfolio parameters.
func (c Config) Validate() error {
	if c.InitialCapital < 0 || c.PeriodicInvest < 0 {
		return fmt.Errorf("contributions must not be negative")
	}
	if c.InitialCapital == 0 && c.PeriodicInvest == 0 {
		return fmt.Errorf("initial capital or periodic investment is required")
	}
	if c.InvestEvery < 1 {
		return fmt.Errorf("invest every must be at least 1, got %d", c.InvestEvery)
	}
	if c.CoreRatio < 0 || c.CoreRatio > 1 {
		return fmt.Errorf("core ratio must be between 0.0 and 1.0, got %f", c.CoreRatio)
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		return fmt.Errorf("fee rate must be in [0.0, 1.0), got %f", c.FeeRate)
	}
	if c.MinSellFraction < 0 || c.MinSellFraction > 1 {
		return fmt.Errorf("min sell fraction must be between 0.0 and 1.0, got %f", c.MinSellFraction)
	}
	return nil
}

// Step is the state after one replayed sample.
type Step struct {
	Seq        int
	Reading    models.Reading
	Result     models.AnalysisResult
	Bought     decimal.Decimal
	Sold       decimal.Decimal
	CoreUnits  decimal.Decimal
	TradeUnits decimal.Decimal
	Cash       decimal.Decimal
}

// Report summarises a replay.
type Report struct {
	Samples     int
	Skipped     int // readings without a price
	Invested    decimal.Decimal
	CoreUnits   decimal.Decimal
	TradeUnits  decimal.Decimal
	Cash        decimal.Decimal
	FinalPrice  decimal.Decimal
	FinalValue  decimal.Decimal
	ROI         decimal.Decimal
	Sells       int
	SoldUnits   decimal.Decimal
	HODLUnits   decimal.Decimal
	HODLValue   decimal.Decimal
	HODLROI     decimal.Decimal
	PhaseCounts map[models.Phase]int
}

// Units is the total number of units held.
func (r *Report) Units() decimal.Decimal { return r.CoreUnits.Add(r.TradeUnits) }

// Runner replays readings. OnStep, when set, is called after every sample;
// an error from it aborts the replay.
type Runner struct {
	Analyzer momentum.Config
	Config   Config
	OnStep   func(Step) error
}

// Check reports whether Run could start on readings: both configs are valid and
// at least one reading carries a price.
func (r *Runner) Check(readings []models.Reading) error {
	if err := r.Config.Validate(); err != nil {
		return fmt.Errorf("invalid backtest config: %w", err)
	}
	if err := r.Analyzer.Validate(); err != nil {
		return err
	}
	for _, rd := range readings {
		if rd.Price > 0 {
			return nil
		}
	}
	return ErrNoPricedReadings
}

// Run replays readings in order. Readings without a price are skipped.
func (r *Runner) Run(readings []models.Reading) (*Report, error) {
	if err := r.Check(readings); err != nil {
		return nil, err
	}
	analyzer, err := momentum.New(r.Analyzer)
	if err != nil {
		return nil, err
	}

	var (
		one       = decimal.NewFromInt(1)
		fee       = decimal.NewFromFloat(r.Config.FeeRate)
		keep      = one.Sub(fee)
		coreRatio = decimal.NewFromFloat(r.Config.CoreRatio)
		minSell   = decimal.NewFromFloat(r.Config.MinSellFraction)
		initial   = decimal.NewFromFloat(r.Config.InitialCapital)
		periodic  = decimal.NewFromFloat(r.Config.PeriodicInvest)
	)

	rep := &Report{PhaseCounts: make(map[models.Phase]int)}
	seq := 0

	for i, rd := range readings {
		if rd.Price <= 0 {
			rep.Skipped++
			continue
		}
		res, err := analyzer.Update(rd.Z)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		price := decimal.NewFromFloat(rd.Price)
		step := Step{Seq: seq, Reading: rd, Result: res}

		contribution := decimal.Zero
		if seq == 0 {
			contribution = initial
		}
		if seq%r.Config.InvestEvery == 0 {
			contribution = contribution.Add(periodic)
		}
		if contribution.IsPositive() {
			units := contribution.Mul(keep).Div(price)
			core := units.Mul(coreRatio)
			rep.Invested = rep.Invested.Add(contribution)
			rep.CoreUnits = rep.CoreUnits.Add(core)
			rep.TradeUnits = rep.TradeUnits.Add(units.Sub(core))
			rep.HODLUnits = rep.HODLUnits.Add(units)
			step.Bought = units
		}

		sellPct := decimal.NewFromFloat(res.SellPercentage)
		if sellPct.IsPositive() && sellPct.GreaterThanOrEqual(minSell) && rep.TradeUnits.IsPositive() {
			sold := rep.TradeUnits.Mul(sellPct)
			rep.TradeUnits = rep.TradeUnits.Sub(sold)
			rep.Cash = rep.Cash.Add(sold.Mul(price).Mul(keep))
			rep.SoldUnits = rep.SoldUnits.Add(sold)
			rep.Sells++
			step.Sold = sold
		}

		rep.PhaseCounts[res.Phase]++
		rep.FinalPrice = price
		rep.Samples++
		seq++

		step.CoreUnits = rep.CoreUnits
		step.TradeUnits = rep.TradeUnits
		step.Cash = rep.Cash
		if r.OnStep != nil {
			if err := r.OnStep(step); err != nil {
				return nil, fmt.Errorf("step %d: %w", step.Seq, err)
			}
		}
	}

	rep.FinalValue = rep.Units().Mul(rep.FinalPrice).Add(rep.Cash)
	rep.HODLValue = rep.HODLUnits.Mul(rep.FinalPrice)
	rep.ROI = roi(rep.FinalValue, rep.Invested)
	rep.HODLROI = roi(rep.HODLValue, rep.Invested)
	return rep, nil
}

// roi is (value - invested) / invested, or zero when nothing was invested.
func roi(value, invested decimal.Decimal) decimal.Decimal {
	if invested.IsZero() {
		return decimal.Zero
	}
	return value.Sub(invested).Div(invested)
}
