package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

// ErrJobNotFound is returned when a job id has no row.
var ErrJobNotFound = errors.New("sync job not found")

const jobColumns = `id, source_key, job_type, status, grants_fetched, grants_created,
       grants_updated, grants_skipped, duplicates_found, error_message, errors,
       started_at, completed_at, created_at`

type SyncJobRepository struct {
	db     *sqlx.DB
	logger logger.Logger
}

func NewSyncJobRepository(db *sqlx.DB, log logger.Logger) *SyncJobRepository {
	return &SyncJobRepository{
		db:     db,
		logger: log,
	}
}

// Create inserts a new job row. Missing id and created_at are filled in.
func (r *SyncJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO sync_jobs (
			id, source_key, job_type, status, grants_fetched, grants_created,
			grants_updated, grants_skipped, duplicates_found, error_message,
			errors, started_at, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		job.ID,
		job.SourceKey,
		job.JobType,
		job.Status,
		job.GrantsFetched,
		job.GrantsCreated,
		job.GrantsUpdated,
		job.GrantsSkipped,
		job.DuplicatesFound,
		job.ErrorMessage,
		job.Errors,
		job.StartedAt,
		job.CompletedAt,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync job: %w", err)
	}

	return nil
}

// Update persists the job's current state. Terminal jobs are owned by the
// finishing run; nothing else mutates them afterwards.
func (r *SyncJobRepository) Update(ctx context.Context, job *models.SyncJob) error {
	query := `
		UPDATE sync_jobs
		SET status = $2, grants_fetched = $3, grants_created = $4,
		    grants_updated = $5, grants_skipped = $6, duplicates_found = $7,
		    error_message = $8, errors = $9, started_at = $10, completed_at = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx,
		query,
		job.ID,
		job.Status,
		job.GrantsFetched,
		job.GrantsCreated,
		job.GrantsUpdated,
		job.GrantsSkipped,
		job.DuplicatesFound,
		job.ErrorMessage,
		job.Errors,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update sync job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	return nil
}

// GetByID retrieves a job by its id.
func (r *SyncJobRepository) GetByID(ctx context.Context, id string) (*models.SyncJob, error) {
	var job models.SyncJob
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = $1`

	err := r.db.GetContext(ctx, &job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query sync job: %w", err)
	}

	return &job, nil
}

// JobFilter holds optional filters for List.
type JobFilter struct {
	SourceKey string
	Status    string
	Limit     int
	Offset    int
}

const defaultJobListLimit = 50

// List returns jobs most recent first.
func (r *SyncJobRepository) List(ctx context.Context, filter JobFilter) ([]models.SyncJob, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultJobListLimit
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE 1=1`
	args := []any{}
	pos := 1

	if filter.SourceKey != "" {
		query += fmt.Sprintf(" AND source_key = $%d", pos)
		args = append(args, filter.SourceKey)
		pos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", pos)
		args = append(args, filter.Status)
		pos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", pos, pos+1)
	args = append(args, filter.Limit, filter.Offset)

	jobs := make([]models.SyncJob, 0)
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list sync jobs: %w", err)
	}

	return jobs, nil
}

// FailStale marks running jobs older than the cutoff as failed. A run that
// dies mid-flight leaves its job in running state; this janitor keeps the
// job table honest.
func (r *SyncJobRepository) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		UPDATE sync_jobs
		SET status = $1, error_message = 'job exceeded stale timeout', completed_at = NOW()
		WHERE status = $2 AND started_at < $3
	`

	result, err := r.db.ExecContext(ctx, query, models.JobStatusFailed, models.JobStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	if rows > 0 {
		r.logger.Warn("Marked stale running jobs as failed",
			logger.Int64("count", rows),
			logger.Duration("older_than", olderThan),
		)
	}

	return rows, nil
}
