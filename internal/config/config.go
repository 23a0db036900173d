// Package config loads the importer service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/importer/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/importer/internal/database"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const (
	defaultServerAddress     = ":8060"
	defaultServerTimeout     = 30 * time.Second
	defaultLockTTL           = 60 * time.Second
	defaultLimit             = 50
	defaultRequestTimeout    = 30 * time.Second
	defaultRequestsPerSecond = 2.0
	defaultMaxRetries        = 3
	defaultConcurrency       = 4
	defaultMaxSteps          = 1000
	defaultStreamMaxLen      = 10000
)

// Config is the service configuration.
type Config struct {
	Service   ServiceConfig      `mapstructure:"service"`
	Logging   infralogger.Config `mapstructure:"logging"`
	Database  database.Config    `mapstructure:"database"`
	Redis     infraredis.Config  `mapstructure:"redis"`
	Server    ServerConfig       `mapstructure:"server"`
	Importer  ImporterConfig     `mapstructure:"importer"`
	Scheduler SchedulerConfig    `mapstructure:"scheduler"`
	Events    EventsConfig       `mapstructure:"events"`
}

type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ImporterConfig tunes pipeline steps and fetching.
type ImporterConfig struct {
	// Storage selects the persistence backend: postgres or memory.
	Storage           string        `mapstructure:"storage"`
	CatalogPath       string        `mapstructure:"catalog_path"`
	WatchCatalog      bool          `mapstructure:"watch_catalog"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	DefaultLimit      int           `mapstructure:"default_limit"`
	DownloadDir       string        `mapstructure:"download_dir"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// SchedulerConfig controls periodic imports.
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Cron        string `mapstructure:"cron"`
	Concurrency int    `mapstructure:"concurrency"`
	// MaxSteps bounds the steps one batch run may take for a single source.
	MaxSteps int `mapstructure:"max_steps"`
}

// EventsConfig controls completion event publishing.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Stream  string `mapstructure:"stream"`
	MaxLen  int64  `mapstructure:"max_len"`
}

// Load reads configuration from the file at path, .env files and the
// environment. A missing file is an error only when path was given explicitly.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "importer")
	v.SetDefault("service.version", "dev")

	v.SetDefault("logging.level", infralogger.DefaultLevel)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "importer")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", database.DefaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", database.DefaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", database.DefaultConnMaxLifetime)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.address", defaultServerAddress)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)

	v.SetDefault("importer.storage", StoragePostgres)
	v.SetDefault("importer.catalog_path", "source_types.yml")
	v.SetDefault("importer.watch_catalog", false)
	v.SetDefault("importer.lock_ttl", defaultLockTTL)
	v.SetDefault("importer.default_limit", defaultLimit)
	v.SetDefault("importer.download_dir", os.TempDir())
	v.SetDefault("importer.user_agent", "north-cloud-importer/1.0")
	v.SetDefault("importer.request_timeout", defaultRequestTimeout)
	v.SetDefault("importer.requests_per_second", defaultRequestsPerSecond)
	v.SetDefault("importer.max_retries", defaultMaxRetries)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "@every 1m")
	v.SetDefault("scheduler.concurrency", defaultConcurrency)
	v.SetDefault("scheduler.max_steps", defaultMaxSteps)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.stream", "importer:events")
	v.SetDefault("events.max_len", defaultStreamMaxLen)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Importer.Storage {
	case StoragePostgres:
		if c.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if c.Database.DBName == "" {
			return errors.New("database.dbname is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("importer.storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Importer.Storage)
	}
	if c.Importer.CatalogPath == "" {
		return errors.New("importer.catalog_path is required")
	}
	if c.Importer.DefaultLimit < 0 {
		return errors.New("importer.default_limit must not be negative")
	}
	if c.Importer.LockTTL <= 0 {
		return errors.New("importer.lock_ttl must be positive")
	}
	if c.Importer.RequestsPerSecond < 0 {
		return errors.New("importer.requests_per_second must not be negative")
	}
	if (c.Events.Enabled || c.Redis.Enabled) && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis or events are enabled")
	}
	if c.Events.Enabled && !c.Redis.Enabled {
		return errors.New("events.enabled requires redis.enabled")
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.Cron == "" {
			return errors.New("scheduler.cron is required when the scheduler is enabled")
		}
		if c.Scheduler.Concurrency <= 0 {
			return errors.New("scheduler.concurrency must be positive")
		}
	}
	return nil
}
