package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grantpipe/grant-ingestor/internal/contenthash"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/retry"
)

const (
	federalSearchPath = "/v1/api/search2"
	federalFetchPath  = "/v1/api/fetchOpportunity"

	// federalDateLayout is the MM/DD/YYYY layout used by the registry API.
	federalDateLayout = "01/02/2006"

	maxErrorBodyBytes = 512
)

// FederalAdapter pulls opportunities from the federal grant registry API.
// The search endpoint is a JSON POST paginated by start record number;
// details are fetched per opportunity id.
type FederalAdapter struct {
	sourceKey string
	baseURL   string
	apiKey    string
	rateLimit int
	client    *http.Client
	log       logger.Logger
	retryCfg  retry.Config
}

// NewFederalAdapter creates an adapter for the federal registry. The API
// key is injected explicitly; the adapter never reads process-global state.
func NewFederalAdapter(source *models.Source, apiKey string, client *http.Client, log logger.Logger) *FederalAdapter {
	return &FederalAdapter{
		sourceKey: source.Key,
		baseURL:   strings.TrimRight(source.BaseURL, "/"),
		apiKey:    apiKey,
		rateLimit: source.EffectiveRateLimit(),
		client:    client,
		log:       log,
		retryCfg:  retry.DefaultConfig(),
	}
}

func (a *FederalAdapter) SourceKey() string {
	return a.sourceKey
}

func (a *FederalAdapter) RateLimit() int {
	return a.rateLimit
}

type federalSearchRequest struct {
	Keyword           string `json:"keyword,omitempty"`
	Rows              int    `json:"rows"`
	StartRecordNum    int    `json:"startRecordNum"`
	OppStatuses       string `json:"oppStatuses,omitempty"`
	Agencies          string `json:"agencies,omitempty"`
	FundingCategories string `json:"fundingCategories,omitempty"`
	PostedFrom        string `json:"postedFrom,omitempty"`
}

type federalSearchResponse struct {
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
	Data      struct {
		HitCount int               `json:"hitCount"`
		OppHits  []json.RawMessage `json:"oppHits"`
	} `json:"data"`
}

// FetchGrants requests one page of the search endpoint. The registry
// paginates by absolute start record, so the page number is translated
// before the request.
func (a *FederalAdapter) FetchGrants(ctx context.Context, params FetchParams) (*Page, error) {
	start := (params.Page - 1) * params.PageSize

	reqBody := federalSearchRequest{
		Keyword:           params.Keyword,
		Rows:              params.PageSize,
		StartRecordNum:    start,
		OppStatuses:       strings.Join(params.Statuses, "|"),
		Agencies:          strings.Join(params.Agencies, "|"),
		FundingCategories: strings.Join(params.Categories, "|"),
	}
	if params.ModifiedSince != nil {
		reqBody.PostedFrom = params.ModifiedSince.Format(federalDateLayout)
	}

	body, err := a.post(ctx, federalSearchPath, reqBody)
	if err != nil {
		return nil, err
	}

	var resp federalSearchResponse
	if unmarshalErr := json.Unmarshal(body, &resp); unmarshalErr != nil {
		return nil, &SourceUnavailableError{
			SourceKey: a.sourceKey,
			Err:       fmt.Errorf("decode search response: %w", unmarshalErr),
		}
	}
	if resp.ErrorCode != 0 {
		return nil, &SourceUnavailableError{
			SourceKey: a.sourceKey,
			Err:       fmt.Errorf("registry error %d: %s", resp.ErrorCode, resp.Msg),
		}
	}

	a.log.Debug("Fetched registry page",
		logger.String("source_key", a.sourceKey),
		logger.Int("page", params.Page),
		logger.Int("records", len(resp.Data.OppHits)),
		logger.Int("hit_count", resp.Data.HitCount),
	)

	return &Page{
		Records:    resp.Data.OppHits,
		Page:       params.Page,
		TotalCount: resp.Data.HitCount,
		HasMore:    start+len(resp.Data.OppHits) < resp.Data.HitCount,
	}, nil
}

type federalFetchRequest struct {
	OpportunityID string `json:"opportunityId"`
}

type federalFetchResponse struct {
	ErrorCode int             `json:"errorcode"`
	Msg       string          `json:"msg"`
	Data      json.RawMessage `json:"data"`
}

// FetchSingle retrieves one opportunity by id. A registry "not found"
// answer yields (nil, nil) rather than an error.
func (a *FederalAdapter) FetchSingle(ctx context.Context, externalID string) (json.RawMessage, error) {
	body, err := a.post(ctx, federalFetchPath, federalFetchRequest{OpportunityID: externalID})
	if err != nil {
		var unavailable *SourceUnavailableError
		if errors.As(err, &unavailable) && unavailable.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var resp federalFetchResponse
	if unmarshalErr := json.Unmarshal(body, &resp); unmarshalErr != nil {
		return nil, &SourceUnavailableError{
			SourceKey: a.sourceKey,
			Err:       fmt.Errorf("decode fetch response: %w", unmarshalErr),
		}
	}
	if resp.ErrorCode != 0 {
		// The registry reports "no such opportunity" through the same
		// errorcode field as transient failures; only the former is absence.
		if strings.Contains(strings.ToLower(resp.Msg), "not found") {
			return nil, nil
		}
		return nil, &SourceUnavailableError{
			SourceKey: a.sourceKey,
			Err:       fmt.Errorf("registry error %d: %s", resp.ErrorCode, resp.Msg),
		}
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, nil
	}

	return resp.Data, nil
}

// federalOpportunity is the raw registry record shape; the search endpoint
// returns a summary subset, the fetch endpoint adds synopsis fields.
type federalOpportunity struct {
	ID                json.Number `json:"id"`
	Number            string      `json:"number"`
	Title             string      `json:"title"`
	Agency            string      `json:"agency"`
	AgencyCode        string      `json:"agencyCode"`
	Description       string      `json:"description"`
	OpenDate          string      `json:"openDate"`
	CloseDate         string      `json:"closeDate"`
	PostedDate        string      `json:"postedDate"`
	OppStatus         string      `json:"oppStatus"`
	FundingCategory   string      `json:"fundingCategory"`
	EstimatedFunding  string      `json:"estimatedFunding"`
	AwardFloor        string      `json:"awardFloor"`
	AwardCeiling      string      `json:"awardCeiling"`
	ExpectedAwards    string      `json:"expectedNumberOfAwards"`
	CostSharing       string      `json:"costSharing"`
	EligibleApplicant []string    `json:"applicantTypes"`
	CFDAList          []string    `json:"cfdaList"`
}

// Normalize transforms a raw registry record into the canonical schema.
func (a *FederalAdapter) Normalize(raw json.RawMessage) (*models.Grant, error) {
	var opp federalOpportunity
	if err := json.Unmarshal(raw, &opp); err != nil {
		return nil, &ValidationError{Field: "record", Message: fmt.Sprintf("malformed payload: %v", err)}
	}

	title := strings.TrimSpace(opp.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}

	externalID := opp.ID.String()
	if externalID == "" {
		return nil, &ValidationError{Field: "external_id", Message: "opportunity id is required"}
	}

	agency := strings.TrimSpace(opp.Agency)
	if agency == "" {
		agency = strings.TrimSpace(opp.AgencyCode)
	}

	status := normalizeFederalStatus(opp.OppStatus)
	closeDate := parseUSDate(opp.CloseDate)

	grant := &models.Grant{
		SourceKey:          a.sourceKey,
		ExternalID:         externalID,
		Title:              title,
		Description:        strings.TrimSpace(opp.Description),
		Agency:             agency,
		OpportunityNumber:  strings.TrimSpace(opp.Number),
		EstimatedFunding:   parseMoney(opp.EstimatedFunding),
		AwardFloor:         parseMoney(opp.AwardFloor),
		AwardCeiling:       parseMoney(opp.AwardCeiling),
		ExpectedAwards:     parseCount(opp.ExpectedAwards),
		FundingCategory:    strings.TrimSpace(opp.FundingCategory),
		EligibleApplicants: opp.EligibleApplicant,
		CostSharing:        strings.EqualFold(opp.CostSharing, "yes"),
		PostedDate:         parseUSDate(opp.PostedDate),
		OpenDate:           parseUSDate(opp.OpenDate),
		CloseDate:          closeDate,
		Status:             status,
		CFDANumbers:        opp.CFDAList,
		SourceURL:          fmt.Sprintf("%s/search-results-detail/%s", a.baseURL, externalID),
		ApplyURL:           fmt.Sprintf("%s/apply/%s", a.baseURL, externalID),
		ContentHash:        contenthash.Compute(title, agency, closeDate),
	}
	grant.Refresh()

	return grant, nil
}

func normalizeFederalStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forecasted", "forecast":
		return models.GrantStatusForecasted
	case "posted", "open":
		return models.GrantStatusPosted
	case "closed":
		return models.GrantStatusClosed
	default:
		return models.GrantStatusArchived
	}
}

// post issues a JSON POST with retry on transient transport failures.
// Non-2xx responses surface as SourceUnavailable with the upstream status.
func (a *FederalAdapter) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var respBody []byte

	doErr := retry.Do(ctx, a.retryCfg, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(reqBytes))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if a.apiKey != "" {
			req.Header.Set("X-Api-Key", a.apiKey)
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

// parseUSDate parses an MM/DD/YYYY date, returning nil for empty or
// malformed input.
func parseUSDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(federalDateLayout, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// parseMoney parses a monetary amount that may carry a dollar sign and
// thousands separators.
func parseMoney(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if s == "" || strings.EqualFold(s, "none") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseCount(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
