package momentum

import (
	"fmt"

	"github.com/rewired-gh/mvrvdca/internal/models"
)

// Analyzer runs one series through smoothing, trend, classification and sizing.
// It has a single owner: Update must be called once per sample in arrival order
// and is not safe for concurrent use.
type Analyzer struct {
	cfg        Config
	smoother   *Smoother
	trend      TrendEstimator
	classifier *Classifier
	sizer      *Sizer
}

// New validates cfg and returns an empty analyzer.
func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Rates = copyRates(cfg.Rates)

	return &Analyzer{
		cfg:        cfg,
		smoother:   NewSmoother(cfg.EMAPeriod, cfg.historyCapacity()),
		trend:      TrendEstimator{Period: cfg.SlopePeriod},
		classifier: NewClassifier(cfg.Thresholds),
		sizer:      NewSizer(cfg.Rates, cfg.ZNorm, cfg.MaxSellRate),
	}, nil
}

// Update feeds one raw reading and returns the analysis for the new state.
// Invalid readings are rejected without touching the history.
func (a *Analyzer) Update(raw float64) (models.AnalysisResult, error) {
	if _, err := a.smoother.Update(raw); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to update analyzer: %w", err)
	}
	return a.Analyze(), nil
}

// Analyze evaluates the current state without consuming a sample.
func (a *Analyzer) Analyze() models.AnalysisResult {
	smoothed := a.smoother.Last()
	if !a.HasEnoughHistory() {
		return models.AnalysisResult{
			Phase:     models.PhaseDataGathering,
			SmoothedZ: smoothed,
		}
	}

	slope := a.trend.Slope(a.smoother.smoothed.values())
	phase := a.classifier.Classify(smoothed, slope, true)

	return models.AnalysisResult{
		Phase:          phase,
		Slope:          slope,
		SmoothedZ:      smoothed,
		SellPercentage: a.sizer.SellRate(phase, smoothed),
	}
}

// HasEnoughHistory reports whether a full slope window has been observed.
func (a *Analyzer) HasEnoughHistory() bool {
	return a.smoother.Count() >= a.cfg.SlopePeriod
}

// Count returns the number of accepted samples.
func (a *Analyzer) Count() int { return a.smoother.Count() }

// RawHistory returns the retained raw readings, oldest first.
func (a *Analyzer) RawHistory() []float64 { return a.smoother.raw.values() }

// SmoothedHistory returns the retained smoothed values, oldest first.
func (a *Analyzer) SmoothedHistory() []float64 { return a.smoother.smoothed.values() }

// Config returns a copy of the analyzer configuration.
func (a *Analyzer) Config() Config {
	cfg := a.cfg
	cfg.Rates = copyRates(a.cfg.Rates)
	return cfg
}

func copyRates(in map[models.Phase]Rate) map[models.Phase]Rate {
	out := make(map[models.Phase]Rate, len(in))
	for p, r := range in {
		out[p] = r
	}
	return out
}
