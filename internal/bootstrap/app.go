// Package bootstrap handles application initialization and lifecycle
// management for the grant ingestor.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grantpipe/grant-ingestor/internal/adapters"
	"github.com/grantpipe/grant-ingestor/internal/config"
	"github.com/grantpipe/grant-ingestor/internal/database"
	"github.com/grantpipe/grant-ingestor/internal/dedupe"
	"github.com/grantpipe/grant-ingestor/internal/events"
	"github.com/grantpipe/grant-ingestor/internal/httpclient"
	"github.com/grantpipe/grant-ingestor/internal/importer"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/metrics"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
	"github.com/grantpipe/grant-ingestor/internal/sync"
)

// App holds the wired application components. CLI commands and the HTTP
// server both run off the same wiring.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	Registry *prometheus.Registry

	Sources    *repository.SourceRepository
	Jobs       *repository.SyncJobRepository
	Grants     *repository.GrantRepository
	Duplicates *repository.DuplicateRepository

	Orchestrator *sync.Orchestrator
	Runner       *sync.Runner
	ManualEntry  *sync.ManualEntry
	Finder       *dedupe.Finder
	Importer     *importer.Importer

	db        *database.DB
	publisher *events.Publisher
}

// NewApp wires the full application from configuration.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	db, err := SetupDatabase(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	publisher := SetupEventPublisher(cfg, log)

	registry := prometheus.NewRegistry()
	syncMetrics := metrics.New(registry)

	sources := repository.NewSourceRepository(db.DB(), log)
	jobs := repository.NewSyncJobRepository(db.DB(), log)
	grants := repository.NewGrantRepository(db.DB(), log)
	duplicates := repository.NewDuplicateRepository(db.DB(), log)

	client := httpclient.New(&httpclient.Config{Timeout: cfg.Sync.HTTPClientTimeout})
	factory := adapters.NewFactory(adapters.Credentials{
		FederalAPIKey:    cfg.Sources.FederalAPIKey,
		AggregatorAPIKey: cfg.Sources.AggregatorAPIKey,
	}, client, log)

	orchestrator := sync.NewOrchestrator(
		sources, jobs, grants, factory,
		publisher, syncMetrics,
		sync.Options{
			PageSize: cfg.Sync.PageSize,
			MaxPages: cfg.Sync.MaxPages,
		},
		log,
	)
	runner := sync.NewRunner(sources, orchestrator, log)

	manualSource, err := sources.GetByKey(context.Background(), adapters.SourceKeyManual)
	if err != nil {
		// The manual source row is seeded by migrations; fall back to a
		// bare key so manual entry still works on an unseeded database.
		log.Warn("Manual source not configured, using defaults", logger.Error(err))
		manualSource = &models.Source{Key: adapters.SourceKeyManual}
	}
	entry := sync.NewManualEntry(adapters.NewManualAdapter(manualSource), grants)

	finder := dedupe.NewFinder(grants, duplicates, log, dedupe.NewTitleMatcher(grants))

	return &App{
		Config:       cfg,
		Logger:       log,
		Registry:     registry,
		Sources:      sources,
		Jobs:         jobs,
		Grants:       grants,
		Duplicates:   duplicates,
		Orchestrator: orchestrator,
		Runner:       runner,
		ManualEntry:  entry,
		Finder:       finder,
		Importer:     importer.NewImporter(entry, log),
		db:           db,
		publisher:    publisher,
	}, nil
}

// Close releases the app's connections.
func (a *App) Close() {
	if err := a.db.Close(); err != nil {
		a.Logger.Error("Failed to close database", logger.Error(err))
	}
}
