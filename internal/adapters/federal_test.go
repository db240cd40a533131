package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

func federalSource(baseURL string) *models.Source {
	return &models.Source{
		Key:                SourceKeyFederal,
		Name:               "Federal Registry",
		Category:           models.CategoryFederal,
		BaseURL:            baseURL,
		RateLimitPerMinute: 120,
	}
}

func TestFederalAdapter_FetchGrants(t *testing.T) {
	var gotBody federalSearchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, federalSearchPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"errorcode": 0,
			"data": map[string]any{
				"hitCount": 150,
				"oppHits": []map[string]any{
					{"id": 1001, "title": "Rural Broadband Expansion", "agency": "USDA"},
					{"id": 1002, "title": "Clean Water Infrastructure", "agency": "EPA"},
				},
			},
		})
	}))
	defer server.Close()

	adapter := NewFederalAdapter(federalSource(server.URL), "test-key", server.Client(), logger.NewNop())

	page, err := adapter.FetchGrants(context.Background(), FetchParams{Page: 2, PageSize: 50})
	require.NoError(t, err)

	assert.Equal(t, 50, gotBody.StartRecordNum, "page 2 with size 50 starts at record 50")
	assert.Equal(t, 50, gotBody.Rows)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 150, page.TotalCount)
	assert.True(t, page.HasMore)
}

func TestFederalAdapter_FetchGrants_ModifiedSince(t *testing.T) {
	var gotBody federalSearchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errorcode": 0,
			"data":      map[string]any{"hitCount": 0, "oppHits": []any{}},
		})
	}))
	defer server.Close()

	adapter := NewFederalAdapter(federalSource(server.URL), "", server.Client(), logger.NewNop())

	since := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	page, err := adapter.FetchGrants(context.Background(), FetchParams{Page: 1, PageSize: 100, ModifiedSince: &since})
	require.NoError(t, err)

	assert.Equal(t, "01/15/2026", gotBody.PostedFrom)
	assert.False(t, page.HasMore)
}

func TestFederalAdapter_FetchGrants_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewFederalAdapter(federalSource(server.URL), "", server.Client(), logger.NewNop())

	_, err := adapter.FetchGrants(context.Background(), FetchParams{Page: 1, PageSize: 100})
	require.Error(t, err)

	var unavailable *SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, http.StatusBadGateway, unavailable.StatusCode)
	assert.Equal(t, SourceKeyFederal, unavailable.SourceKey)
}

func TestFederalAdapter_FetchSingle_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewFederalAdapter(federalSource(server.URL), "", server.Client(), logger.NewNop())

	raw, err := adapter.FetchSingle(context.Background(), "9999")
	require.NoError(t, err, "upstream 404 is absence, not an error")
	assert.Nil(t, raw)
}

func TestFederalAdapter_FetchSingle_RegistryNotFoundCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errorcode": 2,
			"msg":       "Opportunity not found",
		})
	}))
	defer server.Close()

	adapter := NewFederalAdapter(federalSource(server.URL), "", server.Client(), logger.NewNop())

	raw, err := adapter.FetchSingle(context.Background(), "9999")
	require.NoError(t, err, "a registry not-found answer is absence, not an error")
	assert.Nil(t, raw)
}

func TestFederalAdapter_FetchSingle_RegistryErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errorcode": 5,
			"msg":       "service temporarily unavailable",
		})
	}))
	defer server.Close()

	adapter := NewFederalAdapter(federalSource(server.URL), "", server.Client(), logger.NewNop())

	_, err := adapter.FetchSingle(context.Background(), "1001")
	require.Error(t, err)

	var unavailable *SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, err.Error(), "registry error 5")
}

func TestFederalAdapter_FetchSingle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, federalFetchPath, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errorcode": 0,
			"data":      map[string]any{"id": 1001, "title": "Rural Broadband Expansion"},
		})
	}))
	defer server.Close()

	adapter := NewFederalAdapter(federalSource(server.URL), "", server.Client(), logger.NewNop())

	raw, err := adapter.FetchSingle(context.Background(), "1001")
	require.NoError(t, err)
	require.NotNil(t, raw)

	grant, err := adapter.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "1001", grant.ExternalID)
}

func TestFederalAdapter_Normalize(t *testing.T) {
	adapter := NewFederalAdapter(federalSource("https://registry.example.gov"), "", nil, logger.NewNop())

	raw := json.RawMessage(`{
		"id": 1001,
		"number": "USDA-RD-2026-01",
		"title": "  Rural Broadband Expansion  ",
		"agency": "USDA Rural Development",
		"openDate": "01/15/2026",
		"closeDate": "03/15/2026",
		"postedDate": "01/10/2026",
		"oppStatus": "posted",
		"fundingCategory": "Infrastructure",
		"estimatedFunding": "$5,000,000",
		"awardFloor": "50000",
		"awardCeiling": "500000",
		"expectedNumberOfAwards": "10",
		"costSharing": "Yes",
		"applicantTypes": ["State governments", "Nonprofits"],
		"cfdaList": ["10.752"]
	}`)

	grant, err := adapter.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "1001", grant.ExternalID)
	assert.Equal(t, "Rural Broadband Expansion", grant.Title, "title is trimmed")
	assert.Equal(t, "USDA Rural Development", grant.Agency)
	assert.Equal(t, models.GrantStatusPosted, grant.Status)
	assert.True(t, grant.IsActive)
	require.NotNil(t, grant.EstimatedFunding)
	assert.InDelta(t, 5_000_000, *grant.EstimatedFunding, 0.01)
	require.NotNil(t, grant.AwardFloor)
	assert.InDelta(t, 50_000, *grant.AwardFloor, 0.01)
	require.NotNil(t, grant.ExpectedAwards)
	assert.Equal(t, 10, *grant.ExpectedAwards)
	assert.True(t, grant.CostSharing)
	require.NotNil(t, grant.CloseDate)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *grant.CloseDate)
	assert.NotEmpty(t, grant.ContentHash)
}

func TestFederalAdapter_Normalize_MissingTitle(t *testing.T) {
	adapter := NewFederalAdapter(federalSource("https://registry.example.gov"), "", nil, logger.NewNop())

	_, err := adapter.Normalize(json.RawMessage(`{"id": 1001, "title": "   "}`))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestNormalizeFederalStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"posted", models.GrantStatusPosted},
		{"Forecasted", models.GrantStatusForecasted},
		{"closed", models.GrantStatusClosed},
		{"archived", models.GrantStatusArchived},
		{"", models.GrantStatusArchived},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeFederalStatus(tt.in), "status %q", tt.in)
	}
}
