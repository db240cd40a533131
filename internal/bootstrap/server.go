package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grantpipe/grant-ingestor/internal/api"
	"github.com/grantpipe/grant-ingestor/internal/handlers"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/sync"
)

const shutdownTimeout = 10 * time.Second

// Serve assembles the HTTP API and the cron scheduler and runs until
// SIGINT/SIGTERM.
func (a *App) Serve() error {
	cfg := a.Config
	log := a.Logger

	// Clean up jobs orphaned by a previous unclean shutdown before any new
	// runs start.
	sync.FailStaleJobs(context.Background(), a.Jobs, cfg.Sync.StaleJobTimeout, log)

	router := api.NewRouter(api.Deps{
		Sync:         handlers.NewSyncHandler(a.Runner, a.Orchestrator, log),
		Jobs:         handlers.NewJobHandler(a.Jobs, log),
		Sources:      handlers.NewSourceHandler(a.Sources, a.Grants, log),
		Grants:       handlers.NewGrantHandler(a.Grants, a.ManualEntry, a.Finder, a.Duplicates, log),
		AllowOrigins: cfg.Server.CORSOrigins,
		Metrics:      a.Registry,
		Logger:       log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var scheduler *sync.CronScheduler
	if cfg.Scheduler.Enabled {
		scheduler = sync.NewCronScheduler(a.Runner, log)
		if err := scheduler.Start(cfg.Scheduler.Spec); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server",
			logger.String("host", cfg.Server.Host),
			logger.Int("port", cfg.Server.Port),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("Shutting down", logger.String("signal", sig.String()))
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}
