package model

import "time"

// ScoreDistribution is the five-bucket histogram of scores for one file.
type ScoreDistribution struct {
	Exceptional int `json:"exceptional"` // >= 90
	Excellent   int `json:"excellent"`   // 70-89
	Good        int `json:"good"`        // 50-69
	Fair        int `json:"fair"`        // 30-49
	Poor        int `json:"poor"`        // 0-29
}

// Total returns the number of observations across all buckets.
func (d ScoreDistribution) Total() int {
	return d.Exceptional + d.Excellent + d.Good + d.Fair + d.Poor
}

// ReportStats summarizes every scored record in a run, including those that
// did not enter either bounded result set.
type ReportStats struct {
	TotalVehicles     int               `json:"totalVehicles"`
	AverageScore      float64           `json:"averageScore"`
	TopScore          float64           `json:"topScore"`
	ScoreDistribution ScoreDistribution `json:"scoreDistribution"`
}

// DetectedFormat records how the column layout was identified, for
// user-facing transparency and debugging of mis-detected columns.
type DetectedFormat struct {
	Format           string `json:"format"`
	HeaderRow        int    `json:"headerRow"`
	UsedFallback     bool   `json:"usedFallback,omitempty"`
	UsedSavedMapping bool   `json:"usedSavedMapping,omitempty"`
}

// ScoringInfo documents the formula, weights, and assumptions applied to a
// run so results remain auditable after the fact.
type ScoringInfo struct {
	Formula     string             `json:"formula"`
	Mode        string             `json:"mode"`
	Weights     map[string]float64 `json:"weights"`
	Assumptions map[string]float64 `json:"assumptions"`
}

// Report is the final payload for one analyzed rate sheet. It is the only
// entity that outlives the run.
type Report struct {
	Success        bool           `json:"success"`
	RunID          string         `json:"runId"`
	FileName       string         `json:"fileName"`
	Stats          ReportStats    `json:"stats"`
	TopDeals       []ScoredDeal   `json:"topDeals"`
	AllVehicles    []LightDeal    `json:"allVehicles"`
	ColumnMappings map[string]int `json:"columnMappings"`
	DetectedFormat DetectedFormat `json:"detectedFormat"`
	ScoringInfo    ScoringInfo    `json:"scoringInfo"`
	ProcessedAt    time.Time      `json:"processedAt"`
}

// ErrorEnvelope is the single failure payload surfaced at every boundary;
// no partial data accompanies it.
type ErrorEnvelope struct {
	Error string `json:"error"`
}
