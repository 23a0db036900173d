package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/api"
	"github.com/jonesrussell/north-cloud/importer/internal/config"
	"github.com/jonesrussell/north-cloud/importer/internal/database"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
	"github.com/jonesrussell/north-cloud/importer/internal/processor"
	"github.com/jonesrussell/north-cloud/importer/internal/store/memory"
)

// storage bundles one persistence backend.
type storage struct {
	sources   SourceStore
	records   processor.RecordStore
	links     processor.LinkStore
	httpState fetcher.HTTPStateStore
	sink      domain.LogSink
	logs      api.LogReader
	ping      func(context.Context) error
	close     func() error
}

func setupStorage(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*storage, error) {
	if cfg.Importer.Storage == config.StorageMemory {
		log.Warn("Using in-memory storage, state is lost on exit")
		return memoryStorage(), nil
	}

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Connected to database",
		infralogger.String("host", cfg.Database.Host),
		infralogger.String("dbname", cfg.Database.DBName),
	)
	return postgresStorage(db, log), nil
}

func memoryStorage() *storage {
	logs := memory.NewLogs()
	return &storage{
		sources:   memory.NewSources(),
		records:   memory.NewRecords(),
		links:     memory.NewLinks(),
		httpState: memory.NewHTTPStates(),
		sink:      logs,
		logs:      logs,
		close:     func() error { return nil },
	}
}

func postgresStorage(db *sqlx.DB, log infralogger.Logger) *storage {
	logs := database.NewLogRepository(db, log)
	return &storage{
		sources:   database.NewSourceRepository(db),
		records:   database.NewRecordRepository(db),
		links:     database.NewItemLinkRepository(db),
		httpState: database.NewHTTPStateRepository(db),
		sink:      logs,
		logs:      logs,
		ping:      db.PingContext,
		close:     db.Close,
	}
}

// OpenMigrator connects to the configured database for schema migrations.
// Closing the migrator closes the connection.
func OpenMigrator(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*database.Migrator, error) {
	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	m, err := database.NewMigrator(db.DB, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}
