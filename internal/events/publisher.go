// Package events publishes sync lifecycle events to a Redis stream so
// downstream consumers (search indexers, notifiers) can react to catalog
// changes without polling.
package events

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

// DefaultStream is the stream sync events are appended to.
const DefaultStream = "grants:sync:events"

// maxStreamLen caps the stream with approximate trimming so an unconsumed
// stream cannot grow without bound.
const maxStreamLen = 10_000

// Publisher appends sync job outcomes to a Redis stream. Publishing is
// best-effort: failures are logged, never surfaced to the sync run.
type Publisher struct {
	client *redis.Client
	stream string
	log    logger.Logger
}

func NewPublisher(client *redis.Client, stream string, log logger.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		log:    log,
	}
}

// JobFinished publishes a terminal job. Safe to call on a nil Publisher or
// with no Redis client configured.
func (p *Publisher) JobFinished(ctx context.Context, job *models.SyncJob) {
	if p == nil || p.client == nil {
		return
	}

	values := map[string]any{
		"event":      "sync." + job.Status,
		"job_id":     job.ID,
		"source_key": job.SourceKey,
		"job_type":   job.JobType,
		"fetched":    strconv.Itoa(job.GrantsFetched),
		"created":    strconv.Itoa(job.GrantsCreated),
		"updated":    strconv.Itoa(job.GrantsUpdated),
		"skipped":    strconv.Itoa(job.GrantsSkipped),
		"errors":     strconv.Itoa(len(job.Errors)),
	}
	if job.ErrorMessage != nil {
		values["error_message"] = *job.ErrorMessage
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		p.log.Warn("Failed to publish sync event",
			logger.String("stream", p.stream),
			logger.String("job_id", job.ID),
			logger.Error(err),
		)
	}
}
