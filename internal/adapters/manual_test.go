package adapters

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

func manualSource() *models.Source {
	return &models.Source{
		Key:      SourceKeyManual,
		Name:     "Manual Entry",
		Category: models.CategoryCustom,
	}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func timePtr(t time.Time) *time.Time {
	return &t
}

func TestManualAdapter_FetchGrantsAlwaysEmpty(t *testing.T) {
	adapter := NewManualAdapter(manualSource())

	page, err := adapter.FetchGrants(context.Background(), FetchParams{Page: 1, PageSize: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.False(t, page.HasMore)
	assert.Zero(t, page.TotalCount)
}

func TestManualAdapter_FetchSingleAlwaysNotFound(t *testing.T) {
	adapter := NewManualAdapter(manualSource())

	raw, err := adapter.FetchSingle(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestManualAdapter_NormalizeInput(t *testing.T) {
	adapter := NewManualAdapter(manualSource())

	grant, err := adapter.NormalizeInput(&models.ManualGrantInput{
		ExternalID: "local-1",
		Title:      "  City Arts Program  ",
		Agency:     "City of Springfield",
		Status:     models.GrantStatusForecasted,
	})
	require.NoError(t, err)

	assert.Equal(t, "City Arts Program", grant.Title)
	assert.Equal(t, SourceKeyManual, grant.SourceKey)
	assert.Equal(t, models.GrantStatusForecasted, grant.Status)
	assert.True(t, grant.IsActive)
	assert.NotEmpty(t, grant.ContentHash)
}

func TestManualAdapter_NormalizeInput_DefaultsStatus(t *testing.T) {
	adapter := NewManualAdapter(manualSource())

	grant, err := adapter.NormalizeInput(&models.ManualGrantInput{Title: "Untitled Program"})
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusPosted, grant.Status)
}

func TestValidateInput(t *testing.T) {
	open := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	closeBefore := open.AddDate(0, 0, -10)

	tests := []struct {
		name      string
		input     models.ManualGrantInput
		wantValid bool
		wantError string
	}{
		{
			name:      "valid minimal input",
			input:     models.ManualGrantInput{Title: "City Arts Program"},
			wantValid: true,
		},
		{
			name:      "missing title",
			input:     models.ManualGrantInput{Title: "   "},
			wantValid: false,
			wantError: "title is required",
		},
		{
			name: "title too long",
			input: models.ManualGrantInput{
				Title: strings.Repeat("a", MaxManualTitleLength+1),
			},
			wantValid: false,
			wantError: "title must be at most 500 characters",
		},
		{
			name: "close date before open date",
			input: models.ManualGrantInput{
				Title:     "City Arts Program",
				OpenDate:  timePtr(open),
				CloseDate: timePtr(closeBefore),
			},
			wantValid: false,
			wantError: "close date cannot be before open date",
		},
		{
			name: "floor above ceiling",
			input: models.ManualGrantInput{
				Title:        "City Arts Program",
				AwardFloor:   floatPtr(500),
				AwardCeiling: floatPtr(100),
			},
			wantValid: false,
			wantError: "award floor cannot exceed award ceiling",
		},
		{
			name: "negative funding",
			input: models.ManualGrantInput{
				Title:            "City Arts Program",
				EstimatedFunding: floatPtr(-1),
			},
			wantValid: false,
			wantError: "estimated_funding cannot be negative",
		},
		{
			name: "negative expected awards",
			input: models.ManualGrantInput{
				Title:          "City Arts Program",
				ExpectedAwards: intPtr(-3),
			},
			wantValid: false,
			wantError: "expected_awards cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateInput(&tt.input)

			assert.Equal(t, tt.wantValid, result.Valid)
			if tt.wantError != "" {
				assert.Contains(t, result.Errors, tt.wantError)
			}
		})
	}
}

func TestFactory_ForSource(t *testing.T) {
	factory := NewFactory(Credentials{}, nil, logger.NewNop())

	tests := []struct {
		name    string
		source  *models.Source
		wantErr bool
	}{
		{name: "federal registry", source: federalSource("https://registry.example.gov")},
		{name: "aggregator", source: aggregatorSource("https://api.example.com")},
		{name: "manual", source: manualSource()},
		{
			name:   "custom category falls back to manual adapter",
			source: &models.Source{Key: "my-spreadsheet", Category: models.CategoryCustom},
		},
		{
			name:    "unknown source",
			source:  &models.Source{Key: "mystery", Category: models.CategoryState},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := factory.ForSource(tt.source)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownSource)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, adapter)
		})
	}
}
