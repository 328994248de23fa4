package momentum

import "github.com/rewired-gh/mvrvdca/internal/logger"

// TrendEstimator computes the OLS slope over the trailing Period smoothed values.
//
// The x axis is the synthetic sample index 0..n-1, not elapsed time, so the slope
// is in Z-score per sample. An irregular upstream cadence changes its meaning.
type TrendEstimator struct {
	Period int
}

// Slope returns 0 when history holds fewer than Period values, otherwise the
// OLS slope of the newest Period values. history is ordered oldest first.
func (t TrendEstimator) Slope(history []float64) float64 {
	if len(history) < t.Period {
		return 0.0
	}
	return OLSSlope(history[len(history)-t.Period:])
}

// OLSSlope returns cov(x, y) / var(x) for y against x = 0..len(y)-1.
// Degenerate inputs yield 0.
func OLSSlope(y []float64) float64 {
	n := len(y)
	if n < 2 {
		logger.Debug("OLS slope over %d points is undefined, using 0", n)
		return 0.0
	}

	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range y {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 {
		logger.Debug("OLS slope has zero x variance over %d points, using 0", n)
		return 0.0
	}

	slope := num / den
	if !finite(slope) {
		logger.Debug("OLS slope is not finite (num=%g den=%g), using 0", num, den)
		return 0.0
	}
	return slope
}
