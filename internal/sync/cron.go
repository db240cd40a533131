package sync

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/grantpipe/grant-ingestor/internal/logger"
)

// CronScheduler runs the full-sweep runner on a cron schedule.
type CronScheduler struct {
	cron   *cron.Cron
	runner *Runner
	log    logger.Logger
}

func NewCronScheduler(runner *Runner, log logger.Logger) *CronScheduler {
	return &CronScheduler{
		cron:   cron.New(),
		runner: runner,
		log:    log,
	}
}

// Start registers the sweep under the given cron expression and starts the
// scheduler in its own goroutine.
func (s *CronScheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx := context.Background()
		summaries, runErr := s.runner.RunAll(ctx)
		if runErr != nil {
			s.log.Error("Scheduled sync sweep failed", logger.Error(runErr))
			return
		}
		for _, summary := range summaries {
			s.log.Info("Scheduled sync finished",
				logger.String("source_key", summary.SourceKey),
				logger.String("status", summary.Status),
				logger.Int("created", summary.Created),
				logger.Int("updated", summary.Updated),
				logger.Int("skipped", summary.Skipped),
			)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Sync scheduler started", logger.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Sync scheduler stopped")
}
