package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Grant status values.
const (
	GrantStatusForecasted = "forecasted"
	GrantStatusPosted     = "posted"
	GrantStatusClosed     = "closed"
	GrantStatusArchived   = "archived"
)

// StringArray is stored as a JSONB column.
type StringArray []string

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported string array type %T", value)
	}
	return json.Unmarshal(bytes, a)
}

// Grant is a catalog record in the canonical schema every adapter must
// produce. (SourceKey, ExternalID) is the natural key: the reconciler looks
// up by this pair before deciding insert vs update, and a row is never
// duplicated or hard-deleted by sync.
type Grant struct {
	ID                 string      `json:"id"                  db:"id"`
	SourceKey          string      `json:"source_key"          db:"source_key"`
	ExternalID         string      `json:"external_id"         db:"external_id"`
	Title              string      `json:"title"               db:"title"`
	Description        string      `json:"description"         db:"description"`
	Agency             string      `json:"agency"              db:"agency"`
	OpportunityNumber  string      `json:"opportunity_number"  db:"opportunity_number"`
	EstimatedFunding   *float64    `json:"estimated_funding"   db:"estimated_funding"`
	AwardFloor         *float64    `json:"award_floor"         db:"award_floor"`
	AwardCeiling       *float64    `json:"award_ceiling"       db:"award_ceiling"`
	ExpectedAwards     *int        `json:"expected_awards"     db:"expected_awards"`
	FundingCategory    string      `json:"funding_category"    db:"funding_category"`
	EligibleApplicants StringArray `json:"eligible_applicants" db:"eligible_applicants"`
	CostSharing        bool        `json:"cost_sharing"        db:"cost_sharing"`
	PostedDate         *time.Time  `json:"posted_date"         db:"posted_date"`
	OpenDate           *time.Time  `json:"open_date"           db:"open_date"`
	CloseDate          *time.Time  `json:"close_date"          db:"close_date"`
	Status             string      `json:"status"              db:"status"`
	CFDANumbers        StringArray `json:"cfda_numbers"        db:"cfda_numbers"`
	SourceURL          string      `json:"source_url"          db:"source_url"`
	ApplyURL           string      `json:"apply_url"           db:"apply_url"`
	ContentHash        string      `json:"content_hash"        db:"content_hash"`
	IsActive           bool        `json:"is_active"           db:"is_active"`
	FirstSeenAt        time.Time   `json:"first_seen_at"       db:"first_seen_at"`
	LastUpdatedAt      time.Time   `json:"last_updated_at"     db:"last_updated_at"`
	LastSyncedAt       time.Time   `json:"last_synced_at"      db:"last_synced_at"`
}

// ActiveFromStatus derives the is_active flag from a grant status. It is
// recomputed on every catalog touch.
func ActiveFromStatus(status string) bool {
	return status == GrantStatusPosted || status == GrantStatusForecasted
}

// Refresh recomputes derived fields before a catalog write.
func (g *Grant) Refresh() {
	g.IsActive = ActiveFromStatus(g.Status)
}
