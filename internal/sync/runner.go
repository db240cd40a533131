package sync

import (
	"context"
	"time"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

// JobRunner executes one sync run for one source.
type JobRunner interface {
	Run(ctx context.Context, sourceKey string, runOpts RunOptions) (*models.SyncJob, error)
}

// SourceLister enumerates the sources eligible for scheduled sync.
type SourceLister interface {
	ListSyncEnabled(ctx context.Context) ([]models.Source, error)
}

// SourceSummary is the per-source outcome of a sweep across all
// sync-enabled sources.
type SourceSummary struct {
	SourceKey string `json:"source_key"`
	JobID     string `json:"job_id,omitempty"`
	Status    string `json:"status"`
	Fetched   int    `json:"fetched"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
	Error     string `json:"error,omitempty"`
}

// Runner sweeps every sync-enabled source, isolating failures so one bad
// source never blocks the rest.
type Runner struct {
	sources SourceLister
	jobs    JobRunner
	log     logger.Logger
}

func NewRunner(sources SourceLister, jobs JobRunner, log logger.Logger) *Runner {
	return &Runner{
		sources: sources,
		jobs:    jobs,
		log:     log,
	}
}

// RunAll syncs every sync-enabled source in sequence and returns one
// summary per source. Sources with a watermark sync incrementally, the
// rest run full.
func (r *Runner) RunAll(ctx context.Context) ([]SourceSummary, error) {
	sources, err := r.sources.ListSyncEnabled(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]SourceSummary, 0, len(sources))
	for i := range sources {
		source := &sources[i]
		summaries = append(summaries, r.runOne(ctx, source))
	}

	return summaries, nil
}

func (r *Runner) runOne(ctx context.Context, source *models.Source) SourceSummary {
	jobType := models.JobTypeFull
	if source.LastSyncAt != nil {
		jobType = models.JobTypeIncremental
	}

	job, err := r.jobs.Run(ctx, source.Key, RunOptions{JobType: jobType})
	if err != nil && job == nil {
		// Run never started: lock held, unknown source, adapter missing.
		r.log.Warn("Skipping source",
			logger.String("source_key", source.Key),
			logger.Error(err),
		)
		return SourceSummary{
			SourceKey: source.Key,
			Status:    models.JobStatusFailed,
			Error:     err.Error(),
		}
	}

	summary := SourceSummary{
		SourceKey: source.Key,
		JobID:     job.ID,
		Status:    job.Status,
		Fetched:   job.GrantsFetched,
		Created:   job.GrantsCreated,
		Updated:   job.GrantsUpdated,
		Skipped:   job.GrantsSkipped,
		Errors:    len(job.Errors),
	}
	if err != nil {
		summary.Error = err.Error()
	}
	return summary
}

// StaleJobJanitor fails jobs stuck in running longer than the timeout,
// typically after an unclean shutdown.
type StaleJobJanitor interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// FailStaleJobs runs the janitor once and logs the result. Called at
// startup before the scheduler begins.
func FailStaleJobs(ctx context.Context, janitor StaleJobJanitor, olderThan time.Duration, log logger.Logger) {
	count, err := janitor.FailStale(ctx, olderThan)
	if err != nil {
		log.Error("Failed to clean up stale jobs", logger.Error(err))
		return
	}
	if count > 0 {
		log.Warn("Marked stale running jobs as failed",
			logger.Int64("stale_jobs", count),
			logger.Duration("older_than", olderThan),
		)
	}
}
