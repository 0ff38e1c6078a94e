package models

// SignalsRequest filters the ranked signals for a run date.
// Note: transport DTO only; domain code never depends on it.
type SignalsRequest struct {
	RunDate  string  `query:"run_date" validate:"omitempty,datetime=2006-01-02"`
	MinScore float64 `query:"min_score" validate:"gte=0"`
	Limit    int     `query:"limit" default:"50" validate:"gte=0,lte=500"`
}

// ScanRequest triggers a pipeline run, optionally for an explicit run date.
type ScanRequest struct {
	RunDate string `json:"run_date" validate:"omitempty,datetime=2006-01-02"`
}
