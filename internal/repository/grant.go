package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

// ErrGrantNotFound is returned when a catalog lookup matches no row.
var ErrGrantNotFound = errors.New("grant not found")

const grantColumns = `id, source_key, external_id, title, description, agency,
       opportunity_number, estimated_funding, award_floor, award_ceiling,
       expected_awards, funding_category, eligible_applicants, cost_sharing,
       posted_date, open_date, close_date, status, cfda_numbers, source_url,
       apply_url, content_hash, is_active, first_seen_at, last_updated_at,
       last_synced_at`

type GrantRepository struct {
	db     *sqlx.DB
	logger logger.Logger
}

func NewGrantRepository(db *sqlx.DB, log logger.Logger) *GrantRepository {
	return &GrantRepository{
		db:     db,
		logger: log,
	}
}

// GetByNaturalKey looks up a catalog row by (source_key, external_id),
// the pair the reconciler keys insert-vs-update decisions on.
func (r *GrantRepository) GetByNaturalKey(ctx context.Context, sourceKey, externalID string) (*models.Grant, error) {
	var grant models.Grant
	query := `SELECT ` + grantColumns + ` FROM grants WHERE source_key = $1 AND external_id = $2`

	err := r.db.GetContext(ctx, &grant, query, sourceKey, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrGrantNotFound, sourceKey, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("query grant: %w", err)
	}

	return &grant, nil
}

// GetByID retrieves a catalog row by id.
func (r *GrantRepository) GetByID(ctx context.Context, id string) (*models.Grant, error) {
	var grant models.Grant
	query := `SELECT ` + grantColumns + ` FROM grants WHERE id = $1`

	err := r.db.GetContext(ctx, &grant, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGrantNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query grant: %w", err)
	}

	return &grant, nil
}

// Insert writes a new catalog row. Missing id is filled in.
func (r *GrantRepository) Insert(ctx context.Context, grant *models.Grant) error {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}

	query := `
		INSERT INTO grants (
			id, source_key, external_id, title, description, agency,
			opportunity_number, estimated_funding, award_floor, award_ceiling,
			expected_awards, funding_category, eligible_applicants, cost_sharing,
			posted_date, open_date, close_date, status, cfda_numbers, source_url,
			apply_url, content_hash, is_active, first_seen_at, last_updated_at,
			last_synced_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
	`

	_, err := r.db.ExecContext(ctx, query, grantArgs(grant)...)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}

	return nil
}

// Update rewrites all mutable fields of an existing catalog row.
func (r *GrantRepository) Update(ctx context.Context, grant *models.Grant) error {
	query := `
		UPDATE grants
		SET source_key = $2, external_id = $3, title = $4, description = $5,
		    agency = $6, opportunity_number = $7,
		    estimated_funding = $8, award_floor = $9, award_ceiling = $10,
		    expected_awards = $11, funding_category = $12,
		    eligible_applicants = $13, cost_sharing = $14, posted_date = $15,
		    open_date = $16, close_date = $17, status = $18, cfda_numbers = $19,
		    source_url = $20, apply_url = $21, content_hash = $22,
		    is_active = $23, first_seen_at = $24, last_updated_at = $25,
		    last_synced_at = $26
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, grantArgs(grant)...)
	if err != nil {
		return fmt.Errorf("update grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, grant.ID)
	}

	return nil
}

// TouchSynced updates only last_synced_at, the cheap fast path for the
// common case where the content hash is unchanged.
func (r *GrantRepository) TouchSynced(ctx context.Context, id string, t time.Time) error {
	query := `UPDATE grants SET last_synced_at = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, t)
	if err != nil {
		return fmt.Errorf("touch grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, id)
	}

	return nil
}

// GrantFilter holds optional filters for List.
type GrantFilter struct {
	SourceKey  string
	Status     string
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

const defaultGrantListLimit = 50

// List returns catalog rows, most recently updated first.
func (r *GrantRepository) List(ctx context.Context, filter GrantFilter) ([]models.Grant, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultGrantListLimit
	}

	var clauses []string
	args := []any{}
	pos := 1

	if filter.SourceKey != "" {
		clauses = append(clauses, fmt.Sprintf("source_key = $%d", pos))
		args = append(args, filter.SourceKey)
		pos++
	}
	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", pos))
		args = append(args, filter.Status)
		pos++
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active = true")
	}
	if filter.Search != "" {
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR agency ILIKE $%d)", pos, pos))
		args = append(args, "%"+filter.Search+"%")
		pos++
	}

	query := `SELECT ` + grantColumns + ` FROM grants`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY last_updated_at DESC LIMIT $%d OFFSET $%d", pos, pos+1)
	args = append(args, filter.Limit, filter.Offset)

	grants := make([]models.Grant, 0)
	if err := r.db.SelectContext(ctx, &grants, query, args...); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}

	return grants, nil
}

// CountBySource returns the catalog row count for one source.
func (r *GrantRepository) CountBySource(ctx context.Context, sourceKey string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM grants WHERE source_key = $1`

	if err := r.db.GetContext(ctx, &count, query, sourceKey); err != nil {
		return 0, fmt.Errorf("count grants: %w", err)
	}
	return count, nil
}

// FindTitleMatches returns grants from other sources whose normalized
// title matches, used by duplicate detection.
func (r *GrantRepository) FindTitleMatches(ctx context.Context, grant *models.Grant) ([]models.Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants
		WHERE lower(trim(title)) = lower(trim($1))
		  AND id <> $2
		  AND source_key <> $3`

	matches := make([]models.Grant, 0)
	if err := r.db.SelectContext(ctx, &matches, query, grant.Title, grant.ID, grant.SourceKey); err != nil {
		return nil, fmt.Errorf("find title matches: %w", err)
	}

	return matches, nil
}

func grantArgs(grant *models.Grant) []any {
	return []any{
		grant.ID,
		grant.SourceKey,
		grant.ExternalID,
		grant.Title,
		grant.Description,
		grant.Agency,
		grant.OpportunityNumber,
		grant.EstimatedFunding,
		grant.AwardFloor,
		grant.AwardCeiling,
		grant.ExpectedAwards,
		grant.FundingCategory,
		grant.EligibleApplicants,
		grant.CostSharing,
		grant.PostedDate,
		grant.OpenDate,
		grant.CloseDate,
		grant.Status,
		grant.CFDANumbers,
		grant.SourceURL,
		grant.ApplyURL,
		grant.ContentHash,
		grant.IsActive,
		grant.FirstSeenAt,
		grant.LastUpdatedAt,
		grant.LastSyncedAt,
	}
}
