package logger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	log, err := logger.New(logger.Config{Level: "debug", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.NotNil(t, log.With(logger.SourceID("src-1")))
}

func TestNewFromZap_WritesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	log := logger.NewFromZap(zap.New(core)).With(logger.Pipeline("import"))

	log.Info("step finished", logger.SourceID("src-1"), logger.Error(errors.New("boom")))
	log.Debug("ignored")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "import", fields["pipeline"])
	assert.Equal(t, "src-1", fields["source_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &logger.NoOpLogger{}, logger.FromContext(context.Background()))

	nop := logger.NewNop()
	ctx := logger.WithContext(context.Background(), nop)
	assert.Same(t, nop, logger.FromContext(ctx))
}
