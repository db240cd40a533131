package models

import "time"

// ManualGrantInput is the payload for the manual-entry path, which bypasses
// the sync pagination loop and writes directly to the catalog after
// validation.
type ManualGrantInput struct {
	ExternalID         string     `json:"external_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Agency             string     `json:"agency"`
	OpportunityNumber  string     `json:"opportunity_number"`
	EstimatedFunding   *float64   `json:"estimated_funding"`
	AwardFloor         *float64   `json:"award_floor"`
	AwardCeiling       *float64   `json:"award_ceiling"`
	ExpectedAwards     *int       `json:"expected_awards"`
	FundingCategory    string     `json:"funding_category"`
	EligibleApplicants []string   `json:"eligible_applicants"`
	CostSharing        bool       `json:"cost_sharing"`
	PostedDate         *time.Time `json:"posted_date"`
	OpenDate           *time.Time `json:"open_date"`
	CloseDate          *time.Time `json:"close_date"`
	Status             string     `json:"status"`
	CFDANumbers        []string   `json:"cfda_numbers"`
	SourceURL          string     `json:"source_url"`
	ApplyURL           string     `json:"apply_url"`
}

// ValidationResult reports the outcome of manual-entry validation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}
