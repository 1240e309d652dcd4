package model

import "time"

// DemographicArea is a zip-code keyed income baseline.
type DemographicArea struct {
	ZipCode      string  `json:"zip_code" yaml:"zip_code"`
	MedianIncome float64 `json:"median_income" yaml:"median_income"`
	Population   *int    `json:"population,omitempty" yaml:"population"`
	County       string  `json:"county,omitempty" yaml:"county"`
}

// ScoreResult is the output of the accessibility scoring model for a single
// (area, facility) pair.
type ScoreResult struct {
	AccessibilityScore  float64 `json:"accessibilityScore"`
	DistanceMiles       float64 `json:"distanceMiles"`
	EstimatedAnnualCost int     `json:"estimatedAnnualCost"`
	TransportScore      int     `json:"transportScore"`
}

// AccessibilityScoreRecord is a persisted ScoreResult, unique per
// (ZipCode, FacilityID).
type AccessibilityScoreRecord struct {
	ZipCode      string    `json:"zip_code"`
	FacilityID   string    `json:"facility_id"`
	FacilityKind Kind      `json:"facility_kind"`
	ComputedAt   time.Time `json:"computed_at"`
	ScoreResult
}
