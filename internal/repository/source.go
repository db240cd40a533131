// Package repository implements PostgreSQL persistence for sources, sync
// jobs, catalog grants, and duplicate matches.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

// ErrSourceNotFound is returned when a source key has no configuration row.
var ErrSourceNotFound = errors.New("source not found")

// ErrSyncInProgress is returned when a run is already holding a source's
// sync lock.
var ErrSyncInProgress = errors.New("sync already in progress for source")

const sourceColumns = `key, name, category, api_enabled, base_url, api_key_required,
       rate_limit_per_minute, sync_enabled, sync_in_progress, last_sync_at,
       created_at, updated_at`

type SourceRepository struct {
	db     *sqlx.DB
	logger logger.Logger
}

func NewSourceRepository(db *sqlx.DB, log logger.Logger) *SourceRepository {
	return &SourceRepository{
		db:     db,
		logger: log,
	}
}

// GetByKey looks up one source's configuration.
func (r *SourceRepository) GetByKey(ctx context.Context, key string) (*models.Source, error) {
	var source models.Source
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE key = $1`

	err := r.db.GetContext(ctx, &source, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}

	return &source, nil
}

// List returns all configured sources.
func (r *SourceRepository) List(ctx context.Context) ([]models.Source, error) {
	sources := make([]models.Source, 0)
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY key`

	if err := r.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// ListSyncEnabled returns the sources the scheduler should run.
func (r *SourceRepository) ListSyncEnabled(ctx context.Context) ([]models.Source, error) {
	sources := make([]models.Source, 0)
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE sync_enabled = true ORDER BY key`

	if err := r.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("list sync-enabled sources: %w", err)
	}
	return sources, nil
}

// UpdateLastSync advances the source's watermark after a completed run.
func (r *SourceRepository) UpdateLastSync(ctx context.Context, key string, t time.Time) error {
	query := `UPDATE sources SET last_sync_at = $2, updated_at = NOW() WHERE key = $1`

	result, err := r.db.ExecContext(ctx, query, key, t)
	if err != nil {
		return fmt.Errorf("update last sync: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, key)
	}

	return nil
}

// TryAcquireSyncLock atomically sets the source's in-progress flag. It
// fails with ErrSyncInProgress when another run holds the lock, preventing
// two concurrent runs from racing on the same catalog rows.
func (r *SourceRepository) TryAcquireSyncLock(ctx context.Context, key string) error {
	query := `
		UPDATE sources
		SET sync_in_progress = true, updated_at = NOW()
		WHERE key = $1 AND sync_in_progress = false
	`

	result, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the source is missing or the lock is held; disambiguate.
		if _, getErr := r.GetByKey(ctx, key); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: %s", ErrSyncInProgress, key)
	}

	return nil
}

// ReleaseSyncLock clears the source's in-progress flag.
func (r *SourceRepository) ReleaseSyncLock(ctx context.Context, key string) error {
	query := `UPDATE sources SET sync_in_progress = false, updated_at = NOW() WHERE key = $1`

	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("release sync lock: %w", err)
	}
	return nil
}
