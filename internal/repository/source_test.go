package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantpipe/grant-ingestor/internal/logger"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func sourceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"key", "name", "category", "api_enabled", "base_url", "api_key_required",
		"rate_limit_per_minute", "sync_enabled", "sync_in_progress", "last_sync_at",
		"created_at", "updated_at",
	})
}

func TestSourceRepository_GetByKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db, logger.NewNop())

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM sources WHERE key = \$1`).
		WithArgs("federal-registry").
		WillReturnRows(sourceRows().AddRow(
			"federal-registry", "Federal Registry", "federal", true,
			"https://registry.example.gov", true, 120, true, false, nil, now, now,
		))

	source, err := repo.GetByKey(context.Background(), "federal-registry")
	require.NoError(t, err)

	assert.Equal(t, "federal-registry", source.Key)
	assert.Equal(t, 120, source.RateLimitPerMinute)
	assert.Nil(t, source.LastSyncAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepository_GetByKey_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db, logger.NewNop())

	mock.ExpectQuery(`SELECT .+ FROM sources WHERE key = \$1`).
		WithArgs("missing").
		WillReturnRows(sourceRows())

	_, err := repo.GetByKey(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSourceNotFound)
}

func TestSourceRepository_TryAcquireSyncLock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db, logger.NewNop())

	mock.ExpectExec(`UPDATE sources\s+SET sync_in_progress = true`).
		WithArgs("aggregator").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TryAcquireSyncLock(context.Background(), "aggregator"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepository_TryAcquireSyncLock_AlreadyHeld(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db, logger.NewNop())

	now := time.Now()
	mock.ExpectExec(`UPDATE sources\s+SET sync_in_progress = true`).
		WithArgs("aggregator").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Disambiguation lookup: the source exists, so the lock must be held.
	mock.ExpectQuery(`SELECT .+ FROM sources WHERE key = \$1`).
		WithArgs("aggregator").
		WillReturnRows(sourceRows().AddRow(
			"aggregator", "Grant Aggregator", "private", true,
			"https://api.example.com", true, 30, true, true, now, now, now,
		))

	err := repo.TryAcquireSyncLock(context.Background(), "aggregator")
	require.ErrorIs(t, err, ErrSyncInProgress)
}

func TestSourceRepository_TryAcquireSyncLock_MissingSource(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db, logger.NewNop())

	mock.ExpectExec(`UPDATE sources\s+SET sync_in_progress = true`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM sources WHERE key = \$1`).
		WithArgs("ghost").
		WillReturnRows(sourceRows())

	err := repo.TryAcquireSyncLock(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrSourceNotFound)
}

func TestSourceRepository_UpdateLastSync(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db, logger.NewNop())

	watermark := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE sources SET last_sync_at = \$2`).
		WithArgs("federal-registry", watermark).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateLastSync(context.Background(), "federal-registry", watermark))
	assert.NoError(t, mock.ExpectationsWereMet())
}
