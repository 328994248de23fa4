package momentum

import "github.com/rewired-gh/mvrvdca/internal/models"

// Sizer turns a phase and smoothed Z into a sell fraction in [0, MaxSellRate].
type Sizer struct {
	rates   map[models.Phase]Rate
	zNorm   float64
	maxRate float64
}

// NewSizer copies rates; the caller may reuse the map.
func NewSizer(rates map[models.Phase]Rate, zNorm, maxRate float64) *Sizer {
	copied := make(map[models.Phase]Rate, len(rates))
	for p, r := range rates {
		copied[p] = r
	}
	return &Sizer{rates: copied, zNorm: zNorm, maxRate: maxRate}
}

// SellRate computes base * multiplier * (z / zNorm) for priced phases and 0 otherwise.
func (s *Sizer) SellRate(phase models.Phase, smoothedZ float64) float64 {
	if !phase.Priced() {
		return 0.0
	}
	r, ok := s.rates[phase]
	if !ok {
		return 0.0
	}

	intensity := smoothedZ / s.zNorm
	pct := r.Base * r.Multiplier * intensity

	switch {
	case !finite(pct) || pct <= 0:
		return 0.0
	case pct > s.maxRate:
		return s.maxRate
	default:
		return pct
	}
}
