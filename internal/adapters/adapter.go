// Package adapters implements the source adapters that pull opportunity
// data from external grant providers and normalize it into the canonical
// catalog schema.
package adapters

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grantpipe/grant-ingestor/internal/models"
)

// FetchParams are the pagination and filter parameters for a page fetch.
type FetchParams struct {
	// Page is 1-based.
	Page     int
	PageSize int

	Keyword    string
	Categories []string
	Agencies   []string
	Statuses   []string

	// ModifiedSince bounds an incremental fetch to records modified after
	// the source's last-sync watermark.
	ModifiedSince *time.Time
}

// Page is one page of raw source records plus pagination metadata.
type Page struct {
	Records    []json.RawMessage
	Page       int
	TotalCount int
	HasMore    bool
}

// Adapter is the per-source capability set: fetch a page, fetch one record,
// normalize a raw record into the canonical schema.
//
// FetchGrants and FetchSingle fail with *SourceUnavailableError on
// transport or non-2xx HTTP failures. FetchSingle returns (nil, nil) when
// the id does not exist upstream; absence is not an error. Normalize is
// pure and fails with *ValidationError when a structurally required field
// is missing after cleaning.
type Adapter interface {
	SourceKey() string
	FetchGrants(ctx context.Context, params FetchParams) (*Page, error)
	FetchSingle(ctx context.Context, externalID string) (json.RawMessage, error)
	Normalize(raw json.RawMessage) (*models.Grant, error)
	// RateLimit is the requests-per-minute ceiling the orchestrator must
	// respect between page fetches.
	RateLimit() int
}
