package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// LogRepository persists import log entries. It is a domain.LogSink: write
// failures are reported to the application logger and never interrupt an import.
type LogRepository struct {
	db  *sqlx.DB
	log infralogger.Logger
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *sqlx.DB, log infralogger.Logger) *LogRepository {
	if log == nil {
		log = infralogger.NewNop()
	}
	return &LogRepository{db: db, log: log}
}

// Log stores one entry.
func (r *LogRepository) Log(
	ctx context.Context, sourceID string, kind domain.PipelineKind, message string, severity domain.Severity,
) {
	query := `INSERT INTO import_log (source_id, kind, message, severity) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, sourceID, kind, message, severity); err != nil {
		r.log.Error("Failed to write import log entry",
			infralogger.SourceID(sourceID),
			infralogger.Pipeline(string(kind)),
			infralogger.Error(err),
		)
	}
}

// List returns the newest entries of a source, newest first.
func (r *LogRepository) List(ctx context.Context, sourceID string, limit int) ([]domain.LogEntry, error) {
	query := `SELECT id, source_id, kind, message, severity, created_at FROM import_log
		WHERE source_id = $1 ORDER BY id DESC` + limitClause(limit)

	entries := []domain.LogEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, sourceID); err != nil {
		return nil, fmt.Errorf("failed to list import log: %w", err)
	}
	return entries, nil
}
