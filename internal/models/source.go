// Package models defines the persisted data model for the grant ingestor:
// sources, sync jobs, catalog grants, and duplicate matches.
package models

import (
	"time"
)

// Source category values.
const (
	CategoryFederal = "federal"
	CategoryState   = "state"
	CategoryPrivate = "private"
	CategoryCustom  = "custom"
)

// DefaultRateLimitPerMinute is used when a source does not specify a
// requests-per-minute ceiling.
const DefaultRateLimitPerMinute = 60

// Source is the configuration for one external grant provider. Rows are
// seeded once and mutated only by the orchestrator (watermark and sync-lock
// updates); they are never deleted in normal operation.
type Source struct {
	Key                string     `json:"key"                  db:"key"`
	Name               string     `json:"name"                 db:"name"`
	Category           string     `json:"category"             db:"category"`
	APIEnabled         bool       `json:"api_enabled"          db:"api_enabled"`
	BaseURL            string     `json:"base_url"             db:"base_url"`
	APIKeyRequired     bool       `json:"api_key_required"     db:"api_key_required"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute" db:"rate_limit_per_minute"`
	SyncEnabled        bool       `json:"sync_enabled"         db:"sync_enabled"`
	SyncInProgress     bool       `json:"sync_in_progress"     db:"sync_in_progress"`
	LastSyncAt         *time.Time `json:"last_sync_at"         db:"last_sync_at"`
	CreatedAt          time.Time  `json:"created_at"           db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"           db:"updated_at"`
}

// EffectiveRateLimit returns the source's requests-per-minute ceiling,
// falling back to the default when unset.
func (s *Source) EffectiveRateLimit() int {
	if s.RateLimitPerMinute <= 0 {
		return DefaultRateLimitPerMinute
	}
	return s.RateLimitPerMinute
}
