package scheduler_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/catalog"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/scheduler"
	"github.com/jonesrussell/north-cloud/importer/internal/store/memory"
)

// scriptedSteps returns queued results per pipeline and records every call.
type scriptedSteps struct {
	mu      sync.Mutex
	results map[domain.PipelineKind][]result
	calls   []string
}

type result struct {
	progress float64
	err      error
}

func newScriptedSteps() *scriptedSteps {
	return &scriptedSteps{results: make(map[domain.PipelineKind][]result)}
}

func (s *scriptedSteps) queue(kind domain.PipelineKind, rs ...result) {
	s.results[kind] = append(s.results[kind], rs...)
}

func (s *scriptedSteps) next(kind domain.PipelineKind, id string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, string(kind)+":"+id)
	queued := s.results[kind]
	if len(queued) == 0 {
		return 1, nil
	}
	r := queued[0]
	s.results[kind] = queued[1:]
	return r.progress, r.err
}

func (s *scriptedSteps) Import(_ context.Context, id string) (float64, error) {
	return s.next(domain.KindImport, id)
}

func (s *scriptedSteps) Clear(_ context.Context, id string) (float64, error) {
	return s.next(domain.KindClear, id)
}

func (s *scriptedSteps) Expire(_ context.Context, id string) (float64, error) {
	return s.next(domain.KindExpire, id)
}

func (s *scriptedSteps) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func TestBatch_RunUntilComplete(t *testing.T) {
	t.Parallel()

	steps := newScriptedSteps()
	steps.queue(domain.KindImport, result{progress: 0.25}, result{progress: 0.5}, result{progress: 1})

	var reported []float64
	batch := scheduler.NewBatch(steps, infralogger.NewNop(),
		scheduler.WithProgress(func(_ string, _ domain.PipelineKind, p float64) {
			reported = append(reported, p)
		}))

	progress, err := batch.Run(context.Background(), "src-1", domain.KindImport)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, progress, 0)
	assert.Equal(t, []float64{0.25, 0.5, 1}, reported)
	assert.Len(t, steps.recorded(), 3)
}

func TestBatch_RetriesLockedSource(t *testing.T) {
	t.Parallel()

	steps := newScriptedSteps()
	steps.queue(domain.KindClear,
		result{err: &domain.LockError{SourceID: "src-1"}},
		result{progress: 1},
	)
	batch := scheduler.NewBatch(steps, infralogger.NewNop(),
		scheduler.WithLockRetry(3, time.Millisecond))

	progress, err := batch.Run(context.Background(), "src-1", domain.KindClear)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, progress, 0)
	assert.Equal(t, []string{"clear:src-1", "clear:src-1"}, steps.recorded())
}

func TestBatch_LockRetriesExhausted(t *testing.T) {
	t.Parallel()

	steps := newScriptedSteps()
	for range 2 {
		steps.queue(domain.KindImport, result{err: &domain.LockError{SourceID: "src-1"}})
	}
	batch := scheduler.NewBatch(steps, infralogger.NewNop(),
		scheduler.WithLockRetry(2, time.Millisecond))

	_, err := batch.Run(context.Background(), "src-1", domain.KindImport)
	var lockErr *domain.LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Len(t, steps.recorded(), 2)
}

func TestBatch_StageErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	fetchErr := &domain.FetchError{SourceID: "src-1", StatusCode: 500}
	steps := newScriptedSteps()
	steps.queue(domain.KindImport, result{progress: 0.5}, result{progress: 0.5, err: fetchErr})
	batch := scheduler.NewBatch(steps, infralogger.NewNop(),
		scheduler.WithLockRetry(3, time.Millisecond))

	progress, err := batch.Run(context.Background(), "src-1", domain.KindImport)
	require.ErrorIs(t, err, fetchErr)
	assert.InDelta(t, 0.5, progress, 0)
	assert.Len(t, steps.recorded(), 2)
}

func TestBatch_StepLimit(t *testing.T) {
	t.Parallel()

	steps := newScriptedSteps()
	for range 5 {
		steps.queue(domain.KindImport, result{progress: 0.1})
	}
	batch := scheduler.NewBatch(steps, infralogger.NewNop(), scheduler.WithMaxSteps(3))

	progress, err := batch.Run(context.Background(), "src-1", domain.KindImport)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, progress, 0)
	assert.Len(t, steps.recorded(), 3)
}

func TestBatch_UnknownPipeline(t *testing.T) {
	t.Parallel()

	batch := scheduler.NewBatch(newScriptedSteps(), nil)
	_, err := batch.Run(context.Background(), "src-1", domain.PipelineKind("rebuild"))
	require.ErrorIs(t, err, scheduler.ErrUnknownPipeline)

	_, err = batch.Step(context.Background(), "src-1", domain.PipelineKind("rebuild"))
	require.ErrorIs(t, err, scheduler.ErrUnknownPipeline)
}

func TestNewCron_RejectsBadExpression(t *testing.T) {
	t.Parallel()

	_, err := scheduler.NewCron("every now and then", nil, nil, nil, nil)
	require.Error(t, err)
}

func TestCron_TickRunsDueSources(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	stale := now.Add(-2 * time.Hour)

	types, err := catalog.New([]*domain.SourceType{
		{ID: "feed", ImportPeriod: 30 * time.Minute},
		{ID: "manual", ImportPeriod: domain.ImportPeriodNever},
	})
	require.NoError(t, err)

	sources := memory.NewSources()
	for _, src := range []*domain.Source{
		{ID: "fresh", TypeID: "feed", Imported: &recent},
		{ID: "stale", TypeID: "feed", Imported: &stale},
		{ID: "never", TypeID: "feed"},
		{ID: "manual", TypeID: "manual"},
		{ID: "orphan", TypeID: "missing"},
	} {
		require.NoError(t, sources.Create(ctx, src))
	}

	steps := newScriptedSteps()
	steps.queue(domain.KindImport, result{err: errors.New("boom")})
	batch := scheduler.NewBatch(steps, infralogger.NewNop(), scheduler.WithLockRetry(1, time.Millisecond))
	c, err := scheduler.NewCron("*/5 * * * *", batch, sources, types, infralogger.NewNop(),
		scheduler.WithConcurrency(1),
		scheduler.WithCronClock(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.TickResult{Due: 2, Completed: 1, Failed: 1}, res)

	// Sources are listed by ID, so "never" runs first and takes the failure.
	assert.Equal(t, []string{"import:never", "import:stale", "expire:stale"}, steps.recorded())
}

func TestCron_TickRunsManualSourceWithImportInProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	types, err := catalog.New([]*domain.SourceType{{ID: "manual", ImportPeriod: domain.ImportPeriodNever}})
	require.NoError(t, err)

	src := &domain.Source{ID: "manual", TypeID: "manual"}
	src.Pipeline().State(domain.StageFetch).Report(2, 1)
	sources := memory.NewSources()
	require.NoError(t, sources.Create(ctx, src))

	steps := newScriptedSteps()
	steps.queue(domain.KindImport, result{progress: 0.5})
	c, err := scheduler.NewCron("@every 1m", scheduler.NewBatch(steps, nil, scheduler.WithMaxSteps(1)),
		sources, types, nil)
	require.NoError(t, err)

	res, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.TickResult{Due: 1, Partial: 1}, res)
	assert.Equal(t, []string{"import:manual"}, steps.recorded())

	res, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.TickResult{Due: 1, Completed: 1}, res)
	assert.Equal(t, []string{"import:manual", "import:manual", "expire:manual"}, steps.recorded())
}
