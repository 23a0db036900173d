package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/importer/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
importer:
  storage: memory
  catalog_path: /etc/importer/source_types.yml
  default_limit: 25
  lock_ttl: 2m
scheduler:
  enabled: true
  cron: "*/5 * * * *"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.StorageMemory, cfg.Importer.Storage)
	assert.Equal(t, "/etc/importer/source_types.yml", cfg.Importer.CatalogPath)
	assert.Equal(t, 25, cfg.Importer.DefaultLimit)
	assert.Equal(t, 2*time.Minute, cfg.Importer.LockTTL)
	assert.Equal(t, 30*time.Second, cfg.Importer.RequestTimeout)
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 4, cfg.Scheduler.Concurrency)
	assert.Equal(t, "importer", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("IMPORTER_DEFAULT_LIMIT", "7")
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := config.Load(writeConfig(t, "importer:\n  storage: postgres\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Importer.DefaultLimit)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		return &config.Config{
			Importer: config.ImporterConfig{
				Storage:     config.StorageMemory,
				CatalogPath: "source_types.yml",
				LockTTL:     time.Minute,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "unknown storage", mutate: func(c *config.Config) { c.Importer.Storage = "s3" }, wantErr: "importer.storage"},
		{name: "postgres without host", mutate: func(c *config.Config) { c.Importer.Storage = config.StoragePostgres }, wantErr: "database.host"},
		{name: "no catalog", mutate: func(c *config.Config) { c.Importer.CatalogPath = "" }, wantErr: "catalog_path"},
		{name: "zero lock ttl", mutate: func(c *config.Config) { c.Importer.LockTTL = 0 }, wantErr: "lock_ttl"},
		{name: "events without redis", mutate: func(c *config.Config) {
			c.Events.Enabled = true
			c.Redis.Address = "localhost:6379"
		}, wantErr: "events.enabled"},
		{name: "scheduler without cron", mutate: func(c *config.Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Concurrency = 1
		}, wantErr: "scheduler.cron"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
