package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
	"github.com/jonesrussell/north-cloud/importer/internal/lock"
	"github.com/jonesrussell/north-cloud/importer/internal/pipeline"
	"github.com/jonesrussell/north-cloud/importer/internal/processor"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
	"github.com/jonesrussell/north-cloud/importer/internal/store/memory"
	mocklock "github.com/jonesrussell/north-cloud/importer/testutils/mocks/lock"
)

const sourceID = "s1"

type stubFetcher struct {
	calls   int
	cleared int
	outcome fetcher.Outcome
	err     error
}

func (f *stubFetcher) Fetch(_ context.Context, _ *domain.Source) (fetcher.Outcome, error) {
	f.calls++
	if f.err != nil {
		return fetcher.Outcome{}, f.err
	}
	return f.outcome, nil
}

func (f *stubFetcher) Clear(_ context.Context, _ *domain.Source) error {
	f.cleared++
	return nil
}

// chunkParser returns one chunk per call. A single chunk leaves the parse
// stage untouched, as non-resumable parsers do.
type chunkParser struct {
	calls  int
	chunks [][]domain.Item
	err    error
}

func (p *chunkParser) Parse(_ context.Context, src *domain.Source, _ *domain.FetchResult) (*domain.ParserResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.chunks) == 1 {
		return &domain.ParserResult{Items: p.chunks[0]}, nil
	}
	st := src.Pipeline().State(domain.StageParse)
	idx := st.Pointer
	st.Pointer = idx + 1
	st.Report(int64(len(p.chunks)), idx+1)
	return &domain.ParserResult{Items: p.chunks[idx]}, nil
}

type staticResolver struct {
	plugins *pipeline.Plugins
}

func (r staticResolver) Resolve(_ *domain.Source) (*pipeline.Plugins, error) {
	return r.plugins, nil
}

type recordingPublisher struct {
	summaries []domain.ImportSummary
}

func (p *recordingPublisher) PublishCompletion(_ context.Context, _ *domain.Source, s domain.ImportSummary) error {
	p.summaries = append(p.summaries, s)
	return nil
}

type harness struct {
	sources   *memory.Sources
	records   *memory.Records
	links     *memory.Links
	logs      *memory.Logs
	locker    *lock.MemoryLocker
	fetcher   *stubFetcher
	parser    *chunkParser
	publisher *recordingPublisher
	runner    *pipeline.Runner
}

func newHarness(t *testing.T, cfg processor.Config, chunks ...[]domain.Item) *harness {
	t.Helper()
	return newHarnessWith(t, cfg, nil, nil, chunks...)
}

// newHarnessWith overrides the fetcher or the record store the processor
// writes through when they are non-nil.
func newHarnessWith(
	t *testing.T,
	cfg processor.Config,
	fetch fetcher.Fetcher,
	records processor.RecordStore,
	chunks ...[]domain.Item,
) *harness {
	t.Helper()

	h := &harness{
		sources:   memory.NewSources(),
		records:   memory.NewRecords(),
		links:     memory.NewLinks(),
		logs:      memory.NewLogs(),
		locker:    lock.NewMemoryLocker(),
		fetcher:   &stubFetcher{outcome: fetcher.Data(&domain.FetchResult{Raw: []byte("content")})},
		parser:    &chunkParser{chunks: chunks},
		publisher: &recordingPublisher{},
	}
	require.NoError(t, h.sources.Create(context.Background(), &domain.Source{ID: sourceID, TypeID: "feed"}))

	if records == nil {
		records = h.records
	}
	if fetch == nil {
		fetch = h.fetcher
	}

	proc, err := processor.New(cfg, records, h.links, h.logs, infralogger.NewNop())
	require.NoError(t, err)

	resolver := staticResolver{plugins: &pipeline.Plugins{Fetcher: fetch, Parser: h.parser, Processor: proc}}
	h.runner = pipeline.NewRunner(h.sources, resolver, h.locker, infralogger.NewNop(),
		pipeline.WithPublisher(h.publisher))
	return h
}

func (h *harness) source(t *testing.T) *domain.Source {
	t.Helper()
	src, err := h.sources.Get(context.Background(), sourceID)
	require.NoError(t, err)
	return src
}

func feedConfig(limit int) processor.Config {
	return processor.Config{
		Limit: limit,
		Mappings: []processor.Mapping{
			{Source: "guid", Target: "guid", Unique: true},
			{Source: "title", Target: "title"},
		},
	}
}

func items(from, n int) []domain.Item {
	out := make([]domain.Item, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, domain.Item{"guid": fmt.Sprintf("g%d", i), "title": fmt.Sprintf("Item %d", i)})
	}
	return out
}

func TestImport_TenItemsLimitFive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(5), items(0, 10))
	ctx := context.Background()

	fraction, err := h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	assert.Less(t, fraction, progress.Complete)
	assert.InDelta(t, 0.5, fraction, 1e-9)
	assert.Equal(t, 5, h.records.Count())
	assert.Equal(t, 5, h.source(t).State.State(domain.StageProcess).Created)

	polled, err := h.runner.ProgressImporting(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, fraction, polled, 1e-9)

	fraction, err = h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, fraction, 1e-9)
	assert.Equal(t, 10, h.records.Count())

	src := h.source(t)
	assert.Nil(t, src.State)
	assert.Nil(t, src.FetchResult)
	require.NotNil(t, src.Imported)
	require.NotNil(t, src.LastResult)
	assert.Equal(t, 10, src.LastResult.Created)
	assert.Equal(t, 1, h.fetcher.calls)
	require.Len(t, h.publisher.summaries, 1)
	assert.Equal(t, domain.KindImport, h.publisher.summaries[0].Pipeline)
}

func TestImport_ResumesMidParseWithoutRefetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(0), items(0, 3), items(3, 3))
	ctx := context.Background()

	fraction, err := h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, fraction, 1e-9)
	require.NotNil(t, h.source(t).FetchResult)

	fraction, err = h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, fraction, 1e-9)

	assert.Equal(t, 1, h.fetcher.calls)
	assert.Equal(t, 2, h.parser.calls)
	assert.Equal(t, 6, h.records.Count())
	assert.Equal(t, 6, h.source(t).LastResult.Created)
}

// pagedFetcher serves one page per call and reports fetch progress like a
// resumable fetcher.
type pagedFetcher struct {
	pages int64
	calls int
}

func (f *pagedFetcher) Fetch(_ context.Context, src *domain.Source) (fetcher.Outcome, error) {
	f.calls++
	st := src.Pipeline().State(domain.StageFetch)
	if st.IsComplete() {
		st.Pointer = 0
	}
	st.Pointer++
	st.Report(f.pages, st.Pointer)
	return fetcher.Data(&domain.FetchResult{Raw: []byte(fmt.Sprintf("page %d", st.Pointer))}), nil
}

// pageParser returns two items per page, numbered by the fetch pointer.
type pageParser struct{}

func (pageParser) Parse(_ context.Context, src *domain.Source, _ *domain.FetchResult) (*domain.ParserResult, error) {
	page := int(src.Pipeline().State(domain.StageFetch).Pointer)
	return &domain.ParserResult{Items: items((page-1)*2, 2)}, nil
}

func TestImport_RefetchesUntilFetchStageCompletes(t *testing.T) {
	t.Parallel()

	pages := &pagedFetcher{pages: 3}
	h := newHarnessWith(t, feedConfig(0), pages, nil)
	proc, err := processor.New(feedConfig(0), h.records, h.links, h.logs, infralogger.NewNop())
	require.NoError(t, err)
	h.runner = pipeline.NewRunner(h.sources,
		staticResolver{plugins: &pipeline.Plugins{Fetcher: pages, Parser: pageParser{}, Processor: proc}},
		h.locker, infralogger.NewNop())
	ctx := context.Background()

	var fractions []float64
	for range 3 {
		fraction, runErr := h.runner.Import(ctx, sourceID)
		require.NoError(t, runErr)
		fractions = append(fractions, fraction)
	}

	require.Len(t, fractions, 3)
	assert.InDelta(t, 1.0/3, fractions[0], 1e-9)
	assert.InDelta(t, 2.0/3, fractions[1], 1e-9)
	assert.InDelta(t, progress.Complete, fractions[2], 1e-9)
	assert.Equal(t, 3, pages.calls)
	assert.Equal(t, 6, h.records.Count())

	src := h.source(t)
	assert.Nil(t, src.State)
	require.NotNil(t, src.LastResult)
	assert.Equal(t, 6, src.LastResult.Created)
}

// flakyRecords fails deletes while deleteErr is set.
type flakyRecords struct {
	*memory.Records
	deleteErr error
}

func (r *flakyRecords) Delete(ctx context.Context, ids []string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.Records.Delete(ctx, ids)
}

func TestImport_FailedCleanupKeepsStateForRetry(t *testing.T) {
	t.Parallel()

	cfg := feedConfig(0)
	cfg.UpdateNonExistent = processor.NonExistentDelete
	records := &flakyRecords{Records: memory.NewRecords()}
	h := newHarnessWith(t, cfg, nil, records, items(0, 3))
	ctx := context.Background()

	fraction, err := h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	require.InDelta(t, progress.Complete, fraction, 1e-9)
	require.Equal(t, 3, records.Count())
	firstImported := *h.source(t).Imported

	h.parser.chunks = [][]domain.Item{items(0, 2)}
	records.deleteErr = errors.New("db down")

	fraction, err = h.runner.Import(ctx, sourceID)
	require.Error(t, err)
	assert.ErrorContains(t, err, "db down")
	assert.InDelta(t, progress.NearlyComplete, fraction, 1e-9)
	assert.Equal(t, 3, records.Count())

	src := h.source(t)
	require.NotNil(t, src.State)
	assert.True(t, src.State.Finishing)
	assert.Len(t, src.State.RemoveList, 1)
	assert.True(t, src.State.InProgress(domain.KindImport))
	require.NotNil(t, src.Imported)
	assert.Equal(t, firstImported, *src.Imported)
	require.Len(t, h.publisher.summaries, 1)

	records.deleteErr = nil
	fraction, err = h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, fraction, 1e-9)
	assert.Equal(t, 2, records.Count())
	assert.Equal(t, 2, h.fetcher.calls)

	src = h.source(t)
	assert.Nil(t, src.State)
	require.NotNil(t, src.LastResult)
	assert.Equal(t, 1, src.LastResult.Deleted)
	require.Len(t, h.publisher.summaries, 2)
}

func TestImport_SecondRunSkipsUnchanged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(0), items(0, 4))
	ctx := context.Background()

	for range 2 {
		fraction, err := h.runner.Import(ctx, sourceID)
		require.NoError(t, err)
		require.InDelta(t, progress.Complete, fraction, 1e-9)
	}

	require.Len(t, h.publisher.summaries, 2)
	first, second := h.publisher.summaries[0], h.publisher.summaries[1]
	assert.Equal(t, 4, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 4, second.Skipped)
}

func TestImport_NotModifiedCompletesWithNothingNew(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(0), items(0, 2))
	h.fetcher.outcome = fetcher.NotModified()

	fraction, err := h.runner.Import(context.Background(), sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, fraction, 1e-9)
	assert.Zero(t, h.parser.calls)
	assert.Zero(t, h.records.Count())
	assert.Contains(t, h.logs.Messages(sourceID), "There are no new item records.")
}

func TestImport_LockedSourceFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(0), items(0, 2))
	ctx := context.Background()

	other := h.locker.NewOwner()
	token, ok, err := other.Acquire(ctx, lock.Name(sourceID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.runner.Import(ctx, sourceID)
	var lockErr *domain.LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, sourceID, lockErr.SourceID)
	assert.Zero(t, h.fetcher.calls)

	require.NoError(t, other.Release(ctx, lock.Name(sourceID), token))
	fraction, err := h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, fraction, 1e-9)
}

func TestImport_LockBackendError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	locker := mocklock.NewMockLocker(ctrl)
	backendErr := errors.New("redis unavailable")
	locker.EXPECT().Acquire(gomock.Any(), lock.Name(sourceID), lock.DefaultTTL).Return("", false, backendErr)

	h := newHarness(t, feedConfig(0), items(0, 1))
	runner := pipeline.NewRunner(h.sources, staticResolver{plugins: &pipeline.Plugins{
		Fetcher: h.fetcher, Parser: h.parser,
	}}, locker, nil)

	_, err := runner.Import(context.Background(), sourceID)
	var lockErr *domain.LockError
	require.ErrorAs(t, err, &lockErr)
	require.ErrorIs(t, err, backendErr)
	assert.Zero(t, h.fetcher.calls)
}

func TestImport_ReleasesLockAfterEachStep(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	locker := mocklock.NewMockLocker(ctrl)
	name := lock.Name(sourceID)
	gomock.InOrder(
		locker.EXPECT().Acquire(gomock.Any(), name, gomock.Any()).Return("t1", true, nil),
		locker.EXPECT().Release(gomock.Any(), name, "t1").Return(nil),
	)

	h := newHarness(t, feedConfig(0), items(0, 1))
	h.fetcher.err = errors.New("connection refused")
	proc, err := processor.New(feedConfig(0), h.records, h.links, h.logs, nil)
	require.NoError(t, err)
	runner := pipeline.NewRunner(h.sources, staticResolver{plugins: &pipeline.Plugins{
		Fetcher: h.fetcher, Parser: h.parser, Processor: proc,
	}}, locker, nil)

	_, err = runner.Import(context.Background(), sourceID)
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestImport_StageErrorsReleaseLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(0), items(0, 2), items(2, 2))
	ctx := context.Background()

	_, err := h.runner.Import(ctx, sourceID)
	require.NoError(t, err)

	h.parser.err = errors.New("disk read failed")
	_, err = h.runner.Import(ctx, sourceID)
	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)

	src := h.source(t)
	assert.Nil(t, src.FetchResult)
	assert.Nil(t, src.State)

	h.parser.err = nil
	h.fetcher.err = errors.New("timeout")
	_, err = h.runner.Import(ctx, sourceID)
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)

	_, ok, err := h.locker.NewOwner().Acquire(ctx, lock.Name(sourceID), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock is released after a failed step")
}

func TestClear_EighteenRecordsInFourSteps(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(5), items(0, 18))
	ctx := context.Background()

	for {
		fraction, err := h.runner.Import(ctx, sourceID)
		require.NoError(t, err)
		if fraction >= progress.Complete {
			break
		}
	}
	require.Equal(t, 18, h.records.Count())

	var fractions []float64
	for range 10 {
		fraction, err := h.runner.Clear(ctx, sourceID)
		require.NoError(t, err)
		fractions = append(fractions, fraction)
		if fraction >= progress.Complete {
			break
		}
		polled, pollErr := h.runner.ProgressClearing(ctx, sourceID)
		require.NoError(t, pollErr)
		assert.InDelta(t, fraction, polled, 1e-9)
	}

	require.Len(t, fractions, 4)
	assert.InDelta(t, 5.0/18, fractions[0], 1e-9)
	assert.InDelta(t, 10.0/18, fractions[1], 1e-9)
	assert.InDelta(t, 15.0/18, fractions[2], 1e-9)
	assert.InDelta(t, progress.Complete, fractions[3], 1e-9)
	assert.Zero(t, h.records.Count())
	assert.Equal(t, 1, h.fetcher.cleared)
	assert.Nil(t, h.source(t).State)

	last := h.publisher.summaries[len(h.publisher.summaries)-1]
	assert.Equal(t, domain.KindClear, last.Pipeline)
	assert.Equal(t, 18, last.Deleted)
}

func TestExpire_DisabledSkipsLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(0), items(0, 1))
	ctx := context.Background()

	_, ok, err := h.locker.NewOwner().Acquire(ctx, lock.Name(sourceID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	fraction, err := h.runner.Expire(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, fraction, 1e-9)
}

func TestExpire_RemovesOldRecords(t *testing.T) {
	t.Parallel()

	cfg := feedConfig(0)
	cfg.Expire = "1h"
	h := newHarness(t, cfg, items(0, 3))
	ctx := context.Background()

	_, err := h.runner.Import(ctx, sourceID)
	require.NoError(t, err)
	for _, r := range h.records.All()[:2] {
		h.links.SetImported("item", r.ID, time.Now().Add(-2*time.Hour))
	}

	fraction, err := h.runner.Expire(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, fraction, 1e-9)
	assert.Equal(t, 1, h.records.Count())

	expiring, err := h.runner.ProgressExpiring(ctx, sourceID)
	require.NoError(t, err)
	assert.InDelta(t, progress.Complete, expiring, 1e-9)
}

func TestRunner_UnknownSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, feedConfig(0), items(0, 1))
	_, err := h.runner.Import(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
}
