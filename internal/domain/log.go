package domain

import (
	"context"
	"time"
)

// Severity of a diagnostic log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogSink records per-source diagnostics. Log never fails; implementations
// swallow their own errors.
type LogSink interface {
	Log(ctx context.Context, sourceID string, kind PipelineKind, message string, severity Severity)
}

// LogEntry is one stored diagnostic.
type LogEntry struct {
	ID        int64        `db:"id"         json:"id"`
	SourceID  string       `db:"source_id"  json:"source_id"`
	Kind      PipelineKind `db:"kind"       json:"kind"`
	Message   string       `db:"message"    json:"message"`
	Severity  Severity     `db:"severity"   json:"severity"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
