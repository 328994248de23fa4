// Package models defines the core domain entities: readings, analysis results, and phase signals.
package models

import (
	"errors"
	"math"
	"time"
)

// Reading is one raw MVRV Z-Score observation as delivered by the upstream feed.
// ObservedAt and Price are carried for reporting and backtests; the analyzer only
// relies on arrival order and Z.
type Reading struct {
	ObservedAt time.Time `json:"observed_at"`
	Z          float64   `json:"z"`
	Price      float64   `json:"price,omitempty"`
}

// Validate checks reading field constraints.
func (r *Reading) Validate() error {
	if math.IsNaN(r.Z) || math.IsInf(r.Z, 0) {
		return errors.New("z-score must be a finite number")
	}
	if math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
		return errors.New("price must be a finite number")
	}
	if r.Price < 0 {
		return errors.New("price must not be negative")
	}
	return nil
}
