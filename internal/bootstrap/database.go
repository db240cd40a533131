package bootstrap

import (
	"fmt"

	"github.com/grantpipe/grant-ingestor/internal/config"
	"github.com/grantpipe/grant-ingestor/internal/database"
	"github.com/grantpipe/grant-ingestor/internal/logger"
)

// SetupDatabase creates the database connection pool.
func SetupDatabase(cfg *config.Config, log logger.Logger) (*database.DB, error) {
	db, err := database.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	return db, nil
}
