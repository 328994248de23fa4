package momentum

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidReading is returned for NaN or infinite raw readings.
var ErrInvalidReading = errors.New("invalid reading")

// Smoother maintains an EMA of the raw signal plus the bounded raw and smoothed histories.
type Smoother struct {
	alpha    float64
	raw      *window
	smoothed *window
	count    int
}

// NewSmoother creates a smoother with alpha = 2/(period+1) that retains the
// newest capacity raw and smoothed values.
func NewSmoother(period, capacity int) *Smoother {
	return &Smoother{
		alpha:    2 / (float64(period) + 1),
		raw:      newWindow(capacity),
		smoothed: newWindow(capacity),
	}
}

// Update validates raw, folds it into the EMA and records both values.
// The first accepted sample seeds the average unchanged.
func (s *Smoother) Update(raw float64) (float64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidReading, raw)
	}

	smoothed := raw
	if prev, ok := s.smoothed.last(); ok {
		// alpha*raw + (1-alpha)*prev, arranged so a constant input stays exact.
		smoothed = prev + s.alpha*(raw-prev)
	}

	s.raw.push(raw)
	s.smoothed.push(smoothed)
	s.count++
	return smoothed, nil
}

// Alpha returns the decay factor.
func (s *Smoother) Alpha() float64 { return s.alpha }

// Count returns the number of accepted samples since construction.
func (s *Smoother) Count() int { return s.count }

// Last returns the newest smoothed value, or 0 before the first sample.
func (s *Smoother) Last() float64 {
	v, _ := s.smoothed.last()
	return v
}
