package pipeline

import (
	"context"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// LoggerSink writes import log entries to the application logger.
type LoggerSink struct {
	log infralogger.Logger
}

// NewLoggerSink creates a LoggerSink.
func NewLoggerSink(log infralogger.Logger) *LoggerSink {
	return &LoggerSink{log: log}
}

// Log writes one entry at the level matching its severity.
func (s *LoggerSink) Log(_ context.Context, sourceID string, kind domain.PipelineKind, message string, severity domain.Severity) {
	fields := []infralogger.Field{infralogger.SourceID(sourceID), infralogger.Pipeline(string(kind))}
	switch severity {
	case domain.SeverityError:
		s.log.Error(message, fields...)
	case domain.SeverityWarning:
		s.log.Warn(message, fields...)
	default:
		s.log.Info(message, fields...)
	}
}

// MultiSink fans entries out to several sinks.
type MultiSink []domain.LogSink

// Log forwards the entry to every sink.
func (m MultiSink) Log(ctx context.Context, sourceID string, kind domain.PipelineKind, message string, severity domain.Severity) {
	for _, s := range m {
		s.Log(ctx, sourceID, kind, message, severity)
	}
}
