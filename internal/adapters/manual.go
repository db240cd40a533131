package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grantpipe/grant-ingestor/internal/contenthash"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

// MaxManualTitleLength bounds manually entered titles.
const MaxManualTitleLength = 500

// ManualAdapter backs manually entered records. It never performs network
// I/O: fetching yields an empty page or "not found", and its real behavior
// is normalization plus input validation for the manual-entry path, which
// bypasses the sync pagination loop and writes directly to the catalog.
type ManualAdapter struct {
	sourceKey string
	rateLimit int
}

// NewManualAdapter creates the adapter for manually entered grants.
func NewManualAdapter(source *models.Source) *ManualAdapter {
	return &ManualAdapter{
		sourceKey: source.Key,
		rateLimit: source.EffectiveRateLimit(),
	}
}

func (a *ManualAdapter) SourceKey() string {
	return a.sourceKey
}

func (a *ManualAdapter) RateLimit() int {
	return a.rateLimit
}

// FetchGrants always returns an empty page; there is no upstream.
func (a *ManualAdapter) FetchGrants(_ context.Context, params FetchParams) (*Page, error) {
	return &Page{
		Records:    nil,
		Page:       params.Page,
		TotalCount: 0,
		HasMore:    false,
	}, nil
}

// FetchSingle always reports "not found"; there is no upstream.
func (a *ManualAdapter) FetchSingle(_ context.Context, _ string) (json.RawMessage, error) {
	return nil, nil
}

// Normalize transforms a manual-entry payload into the canonical schema.
func (a *ManualAdapter) Normalize(raw json.RawMessage) (*models.Grant, error) {
	var input models.ManualGrantInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, &ValidationError{Field: "record", Message: fmt.Sprintf("malformed payload: %v", err)}
	}
	return a.NormalizeInput(&input)
}

// NormalizeInput builds a catalog record from validated manual input.
func (a *ManualAdapter) NormalizeInput(input *models.ManualGrantInput) (*models.Grant, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}

	status := input.Status
	if status == "" {
		status = models.GrantStatusPosted
	}

	agency := strings.TrimSpace(input.Agency)

	grant := &models.Grant{
		SourceKey:          a.sourceKey,
		ExternalID:         strings.TrimSpace(input.ExternalID),
		Title:              title,
		Description:        strings.TrimSpace(input.Description),
		Agency:             agency,
		OpportunityNumber:  strings.TrimSpace(input.OpportunityNumber),
		EstimatedFunding:   input.EstimatedFunding,
		AwardFloor:         input.AwardFloor,
		AwardCeiling:       input.AwardCeiling,
		ExpectedAwards:     input.ExpectedAwards,
		FundingCategory:    strings.TrimSpace(input.FundingCategory),
		EligibleApplicants: input.EligibleApplicants,
		CostSharing:        input.CostSharing,
		PostedDate:         input.PostedDate,
		OpenDate:           input.OpenDate,
		CloseDate:          input.CloseDate,
		Status:             status,
		CFDANumbers:        input.CFDANumbers,
		SourceURL:          strings.TrimSpace(input.SourceURL),
		ApplyURL:           strings.TrimSpace(input.ApplyURL),
		ContentHash:        contenthash.Compute(title, agency, input.CloseDate),
	}
	grant.Refresh()

	return grant, nil
}

// ValidateInput checks a manual-entry payload before it touches the
// catalog. No catalog write may happen on an invalid result.
func ValidateInput(input *models.ManualGrantInput) models.ValidationResult {
	var errs []string

	title := strings.TrimSpace(input.Title)
	if title == "" {
		errs = append(errs, "title is required")
	} else if len(title) > MaxManualTitleLength {
		errs = append(errs, fmt.Sprintf("title must be at most %d characters", MaxManualTitleLength))
	}

	if input.OpenDate != nil && input.CloseDate != nil && input.CloseDate.Before(*input.OpenDate) {
		errs = append(errs, "close date cannot be before open date")
	}

	if input.AwardFloor != nil && input.AwardCeiling != nil && *input.AwardFloor > *input.AwardCeiling {
		errs = append(errs, "award floor cannot exceed award ceiling")
	}

	for name, v := range map[string]*float64{
		"estimated_funding": input.EstimatedFunding,
		"award_floor":       input.AwardFloor,
		"award_ceiling":     input.AwardCeiling,
	} {
		if v != nil && *v < 0 {
			errs = append(errs, name+" cannot be negative")
		}
	}
	if input.ExpectedAwards != nil && *input.ExpectedAwards < 0 {
		errs = append(errs, "expected_awards cannot be negative")
	}

	return models.ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}
