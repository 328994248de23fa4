package models

import "time"

// AnalysisResult is the per-sample output of the analyzer.
type AnalysisResult struct {
	Phase          Phase   `json:"phase"`
	Slope          float64 `json:"slope"`
	SmoothedZ      float64 `json:"smoothed_z"`
	SellPercentage float64 `json:"sell_percentage"`
}

// Signal is raised when the classified phase changes between consecutive samples.
type Signal struct {
	ID       string
	RunID    string
	From     Phase
	To       Phase
	Seq      int
	Reading  Reading
	Result   AnalysisResult
	Advisory bool

	DetectedAt time.Time
	Notified   bool
}
