// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultServerPort      = 8060
	defaultServerTimeout   = 30
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5
	defaultRedisAddress    = "localhost:6379"

	defaultSyncPageSize      = 100
	defaultSyncMaxPages      = 50
	defaultStaleJobTimeout   = 2 * time.Hour
	defaultSchedulerSpec     = "0 3 * * *"
	defaultHTTPClientTimeout = 30 * time.Second
)

type Config struct {
	Debug     bool            `env:"APP_DEBUG"  yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Sync      SyncConfig      `yaml:"sync"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sources   SourcesConfig   `yaml:"sources"`
}

type ServerConfig struct {
	Host         string        `env:"SERVER_HOST"  yaml:"host"`
	Port         int           `env:"SERVER_PORT"  yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration for sync event publishing.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"        yaml:"address"`
	Password string `env:"REDIS_PASSWORD"       yaml:"password"`
	DB       int    `env:"REDIS_DB"             yaml:"db"`
	Enabled  bool   `env:"REDIS_EVENTS_ENABLED" yaml:"enabled"`
}

// SyncConfig tunes the sync orchestrator.
type SyncConfig struct {
	PageSize int `yaml:"page_size"`
	// MaxPages bounds a single run against a misbehaving upstream
	// has_more flag.
	MaxPages          int           `yaml:"max_pages"`
	StaleJobTimeout   time.Duration `yaml:"stale_job_timeout"`
	HTTPClientTimeout time.Duration `yaml:"http_client_timeout"`
}

// SchedulerConfig controls the internal cron trigger.
type SchedulerConfig struct {
	Enabled bool   `env:"SCHEDULER_ENABLED" yaml:"enabled"`
	Spec    string `env:"SCHEDULER_SPEC"    yaml:"spec"`
}

// SourcesConfig carries per-source credentials, injected into adapters at
// construction rather than read from process-global state.
type SourcesConfig struct {
	FederalAPIKey    string `env:"FEDERAL_API_KEY"    yaml:"federal_api_key"`
	AggregatorAPIKey string `env:"AGGREGATOR_API_KEY" yaml:"aggregator_api_key"`
}

func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 {
		return errors.New("server.port is required and must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 {
		return errors.New("database.port is required and must be positive")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Sync.PageSize <= 0 {
		return errors.New("sync.page_size must be positive")
	}
	if c.Sync.MaxPages <= 0 {
		return errors.New("sync.max_pages must be positive")
	}
	return nil
}

func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	setDefaults(cfg)

	// Env always wins, including over defaults
	applyEnvOverridesTo(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultServerTimeout * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultServerTimeout * time.Second
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultDatabasePort
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = defaultConnMaxLifetime * time.Minute
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = defaultSyncPageSize
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = defaultSyncMaxPages
	}
	if cfg.Sync.StaleJobTimeout == 0 {
		cfg.Sync.StaleJobTimeout = defaultStaleJobTimeout
	}
	if cfg.Sync.HTTPClientTimeout == 0 {
		cfg.Sync.HTTPClientTimeout = defaultHTTPClientTimeout
	}
	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = defaultSchedulerSpec
	}
}
