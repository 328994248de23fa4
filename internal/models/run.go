package models

import (
	"errors"
	"time"
)

// Run identifies one pass of a feed through an analyzer.
type Run struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	EMAPeriod   int       `json:"ema_period"`
	SlopePeriod int       `json:"slope_period"`
	StartedAt   time.Time `json:"started_at"`
}

// Validate checks run field constraints.
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.EMAPeriod < 1 {
		return errors.New("ema period must be at least 1")
	}
	if r.SlopePeriod < 2 {
		return errors.New("slope period must be at least 2")
	}
	if r.StartedAt.IsZero() {
		return errors.New("started at must be set")
	}
	return nil
}

// ResultRecord is one journaled analysis step.
type ResultRecord struct {
	RunID   string
	Seq     int
	Reading Reading
	Result  AnalysisResult
}
