package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  user: grants
  dbname: grant_ingestor
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, defaultServerPort, cfg.Server.Port)
	assert.Equal(t, defaultSyncPageSize, cfg.Sync.PageSize)
	assert.Equal(t, defaultSyncMaxPages, cfg.Sync.MaxPages)
	assert.Equal(t, 2*time.Hour, cfg.Sync.StaleJobTimeout)
	assert.Equal(t, defaultSchedulerSpec, cfg.Scheduler.Spec)
	assert.Equal(t, defaultDatabasePort, cfg.Database.Port)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("FEDERAL_API_KEY", "secret-key")

	path := writeConfig(t, `
server:
  port: 8060
database:
  host: localhost
  user: grants
  dbname: grant_ingestor
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "secret-key", cfg.Sources.FederalAPIKey)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "grants")
	t.Setenv("DB_NAME", "grant_ingestor")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestValidate_RejectsMissingDatabase(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 8060
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.host is required")
}

func TestValidate_RejectsNonPositivePageSize(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8060
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "grants"
	cfg.Database.DBName = "grant_ingestor"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.page_size")
}
