// Package sync drives sync runs: one orchestrated pass per source that
// paginates the source adapter, normalizes and hashes each record, and
// reconciles it against the grant catalog.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grantpipe/grant-ingestor/internal/adapters"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
)

const msPerMinute = 60_000

// SourceStore is the source configuration persistence the orchestrator
// needs.
type SourceStore interface {
	GetByKey(ctx context.Context, key string) (*models.Source, error)
	UpdateLastSync(ctx context.Context, key string, t time.Time) error
	TryAcquireSyncLock(ctx context.Context, key string) error
	ReleaseSyncLock(ctx context.Context, key string) error
}

// JobStore persists sync job records.
type JobStore interface {
	Create(ctx context.Context, job *models.SyncJob) error
	Update(ctx context.Context, job *models.SyncJob) error
}

// GrantStore is the catalog persistence the reconciler needs.
type GrantStore interface {
	GetByNaturalKey(ctx context.Context, sourceKey, externalID string) (*models.Grant, error)
	Insert(ctx context.Context, grant *models.Grant) error
	Update(ctx context.Context, grant *models.Grant) error
	TouchSynced(ctx context.Context, id string, t time.Time) error
}

// AdapterFactory selects the adapter for a source.
type AdapterFactory interface {
	ForSource(source *models.Source) (adapters.Adapter, error)
}

// Notifier receives terminal jobs, e.g. for event publishing. A nil
// Notifier is a no-op.
type Notifier interface {
	JobFinished(ctx context.Context, job *models.SyncJob)
}

// Recorder observes terminal jobs for metrics. A nil Recorder is a no-op.
type Recorder interface {
	ObserveJob(job *models.SyncJob)
}

// Options tunes a sync run.
type Options struct {
	PageSize int
	// MaxPages bounds the pagination loop against a misbehaving upstream
	// has_more flag.
	MaxPages int
}

// RunOptions select the strategy for one run.
type RunOptions struct {
	// JobType is full, incremental, or single. Incremental falls back to
	// full when the source has no watermark yet.
	JobType string
	// GrantID is the external id for a single-grant run.
	GrantID string
}

// Orchestrator drives one sync run for one source through the job state
// machine: pending -> running -> completed | failed. Terminal states are
// final; a retry is a fresh job.
type Orchestrator struct {
	sources  SourceStore
	jobs     JobStore
	grants   GrantStore
	factory  AdapterFactory
	notifier Notifier
	recorder Recorder
	opts     Options
	log      logger.Logger

	// sleep and now are injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewOrchestrator creates a sync orchestrator. notifier and recorder may
// be nil.
func NewOrchestrator(
	sources SourceStore,
	jobs JobStore,
	grants GrantStore,
	factory AdapterFactory,
	notifier Notifier,
	recorder Recorder,
	opts Options,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		sources:  sources,
		jobs:     jobs,
		grants:   grants,
		factory:  factory,
		notifier: notifier,
		recorder: recorder,
		opts:     opts,
		log:      log,
		sleep:    sleepContext,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one sync run for one source. It returns the terminal job
// and, for run-level failures, the error that was persisted to it; the job
// is never left in an ambiguous state.
func (o *Orchestrator) Run(ctx context.Context, sourceKey string, runOpts RunOptions) (*models.SyncJob, error) {
	source, err := o.sources.GetByKey(ctx, sourceKey)
	if err != nil {
		return nil, err
	}

	if lockErr := o.sources.TryAcquireSyncLock(ctx, sourceKey); lockErr != nil {
		return nil, lockErr
	}
	defer func() {
		if releaseErr := o.sources.ReleaseSyncLock(ctx, sourceKey); releaseErr != nil {
			o.log.Error("Failed to release sync lock",
				logger.String("source_key", sourceKey),
				logger.Error(releaseErr),
			)
		}
	}()

	adapter, err := o.factory.ForSource(source)
	if err != nil {
		return nil, err
	}

	jobType := resolveJobType(source, runOpts)
	started := o.now()

	job := &models.SyncJob{
		SourceKey: sourceKey,
		JobType:   jobType,
		Status:    models.JobStatusPending,
		StartedAt: &started,
	}
	if transitionErr := job.Transition(models.JobStatusRunning); transitionErr != nil {
		return nil, transitionErr
	}
	if createErr := o.jobs.Create(ctx, job); createErr != nil {
		return nil, fmt.Errorf("create sync job: %w", createErr)
	}

	o.log.Info("Sync run started",
		logger.String("source_key", sourceKey),
		logger.String("job_id", job.ID),
		logger.String("job_type", jobType),
	)

	runErr := o.execute(ctx, source, adapter, job, runOpts)
	return o.finalize(ctx, source, job, runErr)
}

// finalize writes the job's terminal state. Run-level failures are
// persisted to the job, then returned to the caller.
func (o *Orchestrator) finalize(ctx context.Context, source *models.Source, job *models.SyncJob, runErr error) (*models.SyncJob, error) {
	completed := o.now()
	job.CompletedAt = &completed

	if runErr != nil {
		msg := runErr.Error()
		job.ErrorMessage = &msg
		if transitionErr := job.Transition(models.JobStatusFailed); transitionErr != nil {
			o.log.Error("Invalid job transition on failure", logger.Error(transitionErr))
		}
		if updateErr := o.jobs.Update(ctx, job); updateErr != nil {
			o.log.Error("Failed to persist failed job",
				logger.String("job_id", job.ID),
				logger.Error(updateErr),
			)
		}
		o.finish(ctx, job)

		o.log.Error("Sync run failed",
			logger.String("source_key", job.SourceKey),
			logger.String("job_id", job.ID),
			logger.Error(runErr),
		)
		return job, runErr
	}

	if transitionErr := job.Transition(models.JobStatusCompleted); transitionErr != nil {
		return job, transitionErr
	}
	if updateErr := o.jobs.Update(ctx, job); updateErr != nil {
		return job, fmt.Errorf("persist completed job: %w", updateErr)
	}

	// The watermark is the run's start time, not record timestamps, so the
	// next incremental run never skips records modified during this one.
	// Single-grant refreshes never scan the modified window, so they must
	// not advance it.
	if job.JobType != models.JobTypeSingle {
		if watermarkErr := o.sources.UpdateLastSync(ctx, source.Key, *job.StartedAt); watermarkErr != nil {
			return job, fmt.Errorf("update watermark: %w", watermarkErr)
		}
	}

	o.finish(ctx, job)

	o.log.Info("Sync run completed",
		logger.String("source_key", job.SourceKey),
		logger.String("job_id", job.ID),
		logger.Int("fetched", job.GrantsFetched),
		logger.Int("created", job.GrantsCreated),
		logger.Int("updated", job.GrantsUpdated),
		logger.Int("skipped", job.GrantsSkipped),
		logger.Int("errors", len(job.Errors)),
	)

	return job, nil
}

func (o *Orchestrator) finish(ctx context.Context, job *models.SyncJob) {
	if o.notifier != nil {
		o.notifier.JobFinished(ctx, job)
	}
	if o.recorder != nil {
		o.recorder.ObserveJob(job)
	}
}

// execute runs the fetch strategy for the job type. Record-level problems
// accumulate on the job; only run-level problems return an error.
func (o *Orchestrator) execute(ctx context.Context, source *models.Source, adapter adapters.Adapter, job *models.SyncJob, runOpts RunOptions) error {
	if job.JobType == models.JobTypeSingle {
		return o.executeSingle(ctx, adapter, job, runOpts.GrantID)
	}
	return o.paginate(ctx, source, adapter, job)
}

// executeSingle fetches exactly one record by external id. Upstream
// absence is a NOT_FOUND job error, not a run failure.
func (o *Orchestrator) executeSingle(ctx context.Context, adapter adapters.Adapter, job *models.SyncJob, externalID string) error {
	raw, err := adapter.FetchSingle(ctx, externalID)
	if err != nil {
		job.AddError(models.ErrCodeFetch, err.Error(), externalID)
		return err
	}
	if raw == nil {
		job.AddError(models.ErrCodeNotFound, "grant not found upstream", externalID)
		return nil
	}

	job.GrantsFetched++
	o.processRecord(ctx, adapter, job, raw)
	return nil
}

// paginate walks the adapter's pages in ascending order, reconciling each
// record, sleeping between pages to respect the adapter's rate ceiling.
func (o *Orchestrator) paginate(ctx context.Context, source *models.Source, adapter adapters.Adapter, job *models.SyncJob) error {
	params := adapters.FetchParams{
		PageSize: o.opts.PageSize,
	}
	if job.JobType == models.JobTypeIncremental {
		params.ModifiedSince = source.LastSyncAt
	}

	rate := adapter.RateLimit()
	if rate <= 0 {
		rate = models.DefaultRateLimitPerMinute
	}
	pageDelay := time.Duration(msPerMinute/rate) * time.Millisecond

	for page := 1; ; page++ {
		params.Page = page

		result, err := adapter.FetchGrants(ctx, params)
		if err != nil {
			job.AddError(models.ErrCodeFetch, err.Error(), "")
			return err
		}

		job.GrantsFetched += len(result.Records)
		for _, raw := range result.Records {
			o.processRecord(ctx, adapter, job, raw)
		}

		if !result.HasMore {
			return nil
		}
		if page >= o.opts.MaxPages {
			o.log.Warn("Pagination safety cap reached",
				logger.String("source_key", source.Key),
				logger.Int("max_pages", o.opts.MaxPages),
				logger.Int("total_count", result.TotalCount),
			)
			return nil
		}

		if sleepErr := o.sleep(ctx, pageDelay); sleepErr != nil {
			return sleepErr
		}
	}
}

// processRecord normalizes and reconciles one raw record. Failures are
// absorbed into the job's error list so the rest of the page proceeds.
func (o *Orchestrator) processRecord(ctx context.Context, adapter adapters.Adapter, job *models.SyncJob, raw json.RawMessage) {
	grant, err := adapter.Normalize(raw)
	if err != nil {
		code := models.ErrCodeProcessing
		if adapters.IsValidation(err) {
			code = models.ErrCodeNormalization
		}
		job.AddError(code, err.Error(), "")
		return
	}

	o.reconcile(ctx, job, grant)
}

// reconcile upserts one normalized record against the catalog, keyed on
// (source_key, external_id). The content hash decides update vs skip.
func (o *Orchestrator) reconcile(ctx context.Context, job *models.SyncJob, grant *models.Grant) {
	now := o.now()

	existing, err := o.grants.GetByNaturalKey(ctx, grant.SourceKey, grant.ExternalID)
	if err != nil && !errors.Is(err, repository.ErrGrantNotFound) {
		job.AddError(models.ErrCodeProcessing, err.Error(), grant.ExternalID)
		return
	}

	switch {
	case existing == nil:
		grant.FirstSeenAt = now
		grant.LastUpdatedAt = now
		grant.LastSyncedAt = now
		grant.Refresh()
		if insertErr := o.grants.Insert(ctx, grant); insertErr != nil {
			job.AddError(models.ErrCodeProcessing, insertErr.Error(), grant.ExternalID)
			return
		}
		job.GrantsCreated++

	case existing.ContentHash != grant.ContentHash:
		grant.ID = existing.ID
		grant.FirstSeenAt = existing.FirstSeenAt
		grant.LastUpdatedAt = now
		grant.LastSyncedAt = now
		grant.Refresh()
		if updateErr := o.grants.Update(ctx, grant); updateErr != nil {
			job.AddError(models.ErrCodeProcessing, updateErr.Error(), grant.ExternalID)
			return
		}
		job.GrantsUpdated++

	default:
		if touchErr := o.grants.TouchSynced(ctx, existing.ID, now); touchErr != nil {
			job.AddError(models.ErrCodeProcessing, touchErr.Error(), grant.ExternalID)
			return
		}
		job.GrantsSkipped++
	}
}

// resolveJobType decides the run strategy: incremental only when requested
// and a watermark exists, otherwise full; single passes through.
func resolveJobType(source *models.Source, runOpts RunOptions) string {
	if runOpts.JobType == models.JobTypeSingle || runOpts.GrantID != "" {
		return models.JobTypeSingle
	}
	if runOpts.JobType == models.JobTypeIncremental && source.LastSyncAt != nil {
		return models.JobTypeIncremental
	}
	return models.JobTypeFull
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
