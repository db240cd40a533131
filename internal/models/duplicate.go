package models

import "time"

// Duplicate match methods.
const (
	MatchMethodTitleHash = "title_hash"
	MatchMethodFuzzy     = "fuzzy"
	MatchMethodManual    = "manual"
)

// DuplicateMatch links two catalog records flagged as likely duplicates.
// Rows are upserted keyed on (primary, duplicate) so repeated detection
// passes are idempotent.
type DuplicateMatch struct {
	ID               string    `json:"id"                 db:"id"`
	PrimaryGrantID   string    `json:"primary_grant_id"   db:"primary_grant_id"`
	DuplicateGrantID string    `json:"duplicate_grant_id" db:"duplicate_grant_id"`
	Score            float64   `json:"score"              db:"score"`
	Method           string    `json:"method"             db:"method"`
	Confirmed        bool      `json:"confirmed"          db:"confirmed"`
	CreatedAt        time.Time `json:"created_at"         db:"created_at"`
}
