package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grantpipe/grant-ingestor/internal/contenthash"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/retry"
)

const aggregatorOpportunitiesPath = "/api/v1/opportunities"

// AggregatorAdapter pulls opportunities from the third-party aggregator
// API: a REST endpoint paginated by page number with an updated_since
// filter, authenticated by an API key header.
type AggregatorAdapter struct {
	sourceKey string
	baseURL   string
	apiKey    string
	rateLimit int
	client    *http.Client
	log       logger.Logger
	retryCfg  retry.Config
}

// NewAggregatorAdapter creates an adapter for the aggregator API.
func NewAggregatorAdapter(source *models.Source, apiKey string, client *http.Client, log logger.Logger) *AggregatorAdapter {
	return &AggregatorAdapter{
		sourceKey: source.Key,
		baseURL:   strings.TrimRight(source.BaseURL, "/"),
		apiKey:    apiKey,
		rateLimit: source.EffectiveRateLimit(),
		client:    client,
		log:       log,
		retryCfg:  retry.DefaultConfig(),
	}
}

func (a *AggregatorAdapter) SourceKey() string {
	return a.sourceKey
}

func (a *AggregatorAdapter) RateLimit() int {
	return a.rateLimit
}

type aggregatorListResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Page    int  `json:"page"`
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	} `json:"meta"`
}

// FetchGrants requests one page of the opportunities listing.
func (a *AggregatorAdapter) FetchGrants(ctx context.Context, params FetchParams) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("per_page", strconv.Itoa(params.PageSize))
	if params.Keyword != "" {
		q.Set("q", params.Keyword)
	}
	if len(params.Categories) > 0 {
		q.Set("categories", strings.Join(params.Categories, ","))
	}
	if len(params.Agencies) > 0 {
		q.Set("agencies", strings.Join(params.Agencies, ","))
	}
	if len(params.Statuses) > 0 {
		q.Set("statuses", strings.Join(params.Statuses, ","))
	}
	if params.ModifiedSince != nil {
		q.Set("updated_since", params.ModifiedSince.UTC().Format(time.RFC3339))
	}

	body, err := a.get(ctx, aggregatorOpportunitiesPath+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp aggregatorListResponse
	if unmarshalErr := json.Unmarshal(body, &resp); unmarshalErr != nil {
		return nil, &SourceUnavailableError{
			SourceKey: a.sourceKey,
			Err:       fmt.Errorf("decode list response: %w", unmarshalErr),
		}
	}

	a.log.Debug("Fetched aggregator page",
		logger.String("source_key", a.sourceKey),
		logger.Int("page", params.Page),
		logger.Int("records", len(resp.Data)),
		logger.Int("total", resp.Meta.Total),
	)

	return &Page{
		Records:    resp.Data,
		Page:       params.Page,
		TotalCount: resp.Meta.Total,
		HasMore:    resp.Meta.HasMore,
	}, nil
}

// FetchSingle retrieves one opportunity by external id; a 404 answer is
// (nil, nil), not an error.
func (a *AggregatorAdapter) FetchSingle(ctx context.Context, externalID string) (json.RawMessage, error) {
	body, err := a.get(ctx, aggregatorOpportunitiesPath+"/"+url.PathEscape(externalID))
	if err != nil {
		var unavailable *SourceUnavailableError
		if errors.As(err, &unavailable) && unavailable.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if unmarshalErr := json.Unmarshal(body, &wrapper); unmarshalErr != nil {
		return nil, &SourceUnavailableError{
			SourceKey: a.sourceKey,
			Err:       fmt.Errorf("decode detail response: %w", unmarshalErr),
		}
	}
	if len(wrapper.Data) == 0 || string(wrapper.Data) == "null" {
		return nil, nil
	}

	return wrapper.Data, nil
}

// aggregatorOpportunity is the raw aggregator record shape: flat snake_case
// JSON with RFC3339 dates and numeric amounts.
type aggregatorOpportunity struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Funder             string   `json:"funder"`
	OpportunityNumber  string   `json:"opportunity_number"`
	EstimatedFunding   *float64 `json:"estimated_funding"`
	AwardFloor         *float64 `json:"award_floor"`
	AwardCeiling       *float64 `json:"award_ceiling"`
	ExpectedAwards     *int     `json:"expected_awards"`
	Category           string   `json:"category"`
	EligibleApplicants []string `json:"eligible_applicants"`
	CostSharing        bool     `json:"cost_sharing"`
	PostedAt           string   `json:"posted_at"`
	OpensAt            string   `json:"opens_at"`
	ClosesAt           string   `json:"closes_at"`
	Status             string   `json:"status"`
	CFDANumbers        []string `json:"cfda_numbers"`
	URL                string   `json:"url"`
	ApplyURL           string   `json:"apply_url"`
}

// Normalize transforms a raw aggregator record into the canonical schema.
func (a *AggregatorAdapter) Normalize(raw json.RawMessage) (*models.Grant, error) {
	var opp aggregatorOpportunity
	if err := json.Unmarshal(raw, &opp); err != nil {
		return nil, &ValidationError{Field: "record", Message: fmt.Sprintf("malformed payload: %v", err)}
	}

	title := strings.TrimSpace(opp.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}
	if strings.TrimSpace(opp.ID) == "" {
		return nil, &ValidationError{Field: "external_id", Message: "id is required"}
	}

	agency := strings.TrimSpace(opp.Funder)
	closeDate := parseRFC3339(opp.ClosesAt)

	grant := &models.Grant{
		SourceKey:          a.sourceKey,
		ExternalID:         opp.ID,
		Title:              title,
		Description:        strings.TrimSpace(opp.Description),
		Agency:             agency,
		OpportunityNumber:  strings.TrimSpace(opp.OpportunityNumber),
		EstimatedFunding:   opp.EstimatedFunding,
		AwardFloor:         opp.AwardFloor,
		AwardCeiling:       opp.AwardCeiling,
		ExpectedAwards:     opp.ExpectedAwards,
		FundingCategory:    strings.TrimSpace(opp.Category),
		EligibleApplicants: opp.EligibleApplicants,
		CostSharing:        opp.CostSharing,
		PostedDate:         parseRFC3339(opp.PostedAt),
		OpenDate:           parseRFC3339(opp.OpensAt),
		CloseDate:          closeDate,
		Status:             normalizeAggregatorStatus(opp.Status),
		CFDANumbers:        opp.CFDANumbers,
		SourceURL:          opp.URL,
		ApplyURL:           opp.ApplyURL,
		ContentHash:        contenthash.Compute(title, agency, closeDate),
	}
	grant.Refresh()

	return grant, nil
}

func normalizeAggregatorStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forecast", "forecasted", "upcoming":
		return models.GrantStatusForecasted
	case "open", "active", "posted":
		return models.GrantStatusPosted
	case "closed", "expired":
		return models.GrantStatusClosed
	default:
		return models.GrantStatusArchived
	}
}

// get issues a GET with retry on transient transport failures.
func (a *AggregatorAdapter) get(ctx context.Context, pathAndQuery string) ([]byte, error) {
	var respBody []byte

	doErr := retry.Do(ctx, a.retryCfg, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+pathAndQuery, http.NoBody)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Accept", "application/json")
		if a.apiKey != "" {
			req.Header.Set("X-API-Key", a.apiKey)
		}

		resp, httpErr := a.client.Do(req)
		if httpErr != nil {
			return httpErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return &SourceUnavailableError{
				SourceKey:  a.sourceKey,
				StatusCode: resp.StatusCode,
				Body:       truncate(string(body), maxErrorBodyBytes),
			}
		}

		respBody = body
		return nil
	})

	if doErr != nil {
		var unavailable *SourceUnavailableError
		if errors.As(doErr, &unavailable) {
			return nil, unavailable
		}
		return nil, &SourceUnavailableError{SourceKey: a.sourceKey, Err: doErr}
	}

	return respBody, nil
}

func parseRFC3339(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
