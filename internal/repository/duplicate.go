package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

type DuplicateRepository struct {
	db     *sqlx.DB
	logger logger.Logger
}

func NewDuplicateRepository(db *sqlx.DB, log logger.Logger) *DuplicateRepository {
	return &DuplicateRepository{
		db:     db,
		logger: log,
	}
}

// Upsert records a duplicate link keyed on (primary, duplicate), ignoring
// conflicts so repeated detection passes are idempotent. Returns true when
// a new row was written.
func (r *DuplicateRepository) Upsert(ctx context.Context, match *models.DuplicateMatch) (bool, error) {
	if match.ID == "" {
		match.ID = uuid.New().String()
	}

	query := `
		INSERT INTO duplicate_matches (
			id, primary_grant_id, duplicate_grant_id, score, method, confirmed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (primary_grant_id, duplicate_grant_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx,
		query,
		match.ID,
		match.PrimaryGrantID,
		match.DuplicateGrantID,
		match.Score,
		match.Method,
		match.Confirmed,
	)
	if err != nil {
		return false, fmt.Errorf("upsert duplicate match: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rows > 0, nil
}

// ListForGrant returns matches where the grant is the primary side.
func (r *DuplicateRepository) ListForGrant(ctx context.Context, grantID string) ([]models.DuplicateMatch, error) {
	query := `
		SELECT id, primary_grant_id, duplicate_grant_id, score, method, confirmed, created_at
		FROM duplicate_matches
		WHERE primary_grant_id = $1
		ORDER BY score DESC, created_at
	`

	matches := make([]models.DuplicateMatch, 0)
	if err := r.db.SelectContext(ctx, &matches, query, grantID); err != nil {
		return nil, fmt.Errorf("list duplicate matches: %w", err)
	}

	return matches, nil
}
