package bootstrap

import (
	"fmt"

	"github.com/grantpipe/grant-ingestor/internal/config"
	"github.com/grantpipe/grant-ingestor/internal/logger"
)

// LoadConfig loads and validates configuration from the given path.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// CreateLogger creates the service logger from configuration.
func CreateLogger(cfg *config.Config, version string) (logger.Logger, error) {
	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		logger.String("service", "grant-ingestor"),
		logger.String("version", version),
	), nil
}
