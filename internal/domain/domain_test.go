package domain_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
)

func TestPipelineState_LazyStages(t *testing.T) {
	t.Parallel()

	p := domain.NewPipelineState()
	assert.InDelta(t, progress.Complete, p.Progress(domain.StageParse), 0)
	assert.NotContains(t, p.Stages, domain.StageParse)

	st := p.State(domain.StageParse)
	st.Report(4, 1)
	assert.Same(t, st, p.State(domain.StageParse))
	assert.InDelta(t, 0.25, p.Progress(domain.StageParse), 1e-9)
	assert.True(t, p.InProgress(domain.KindImport))
	assert.False(t, p.InProgress(domain.KindClear))
}

func TestPipelineState_ClearImport(t *testing.T) {
	t.Parallel()

	p := domain.NewPipelineState()
	p.State(domain.StageFetch).Report(3, 1)
	p.State(domain.StageClear).Report(10, 5)
	p.Pending = []domain.Item{{"title": "a"}}
	p.RemoveList = []string{"r1"}
	p.RemoveListReady = true

	p.Clear(domain.KindImport)

	assert.Empty(t, p.Pending)
	assert.Empty(t, p.RemoveList)
	assert.False(t, p.RemoveListReady)
	assert.NotContains(t, p.Stages, domain.StageFetch)
	assert.Contains(t, p.Stages, domain.StageClear)
}

func TestSource_DueForImport(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-2 * time.Hour)

	fresh := &domain.Source{ID: "a"}
	assert.True(t, fresh.DueForImport(time.Hour, now))
	assert.False(t, fresh.DueForImport(domain.ImportPeriodNever, now))

	recent := &domain.Source{ID: "b", Imported: &earlier}
	assert.True(t, recent.DueForImport(time.Hour, now))
	assert.False(t, recent.DueForImport(3*time.Hour, now))

	recent.Pipeline().Pending = []domain.Item{{}}
	assert.True(t, recent.DueForImport(3*time.Hour, now))
}

func TestItem_String(t *testing.T) {
	t.Parallel()

	item := domain.Item{"title": "  Hello ", "count": 3, "nil": nil}
	assert.Equal(t, "Hello", item.String("title"))
	assert.Equal(t, "3", item.String("count"))
	assert.Empty(t, item.String("nil"))
	assert.Empty(t, item.String("missing"))
}

func TestFetchResult_SpillsRawToFile(t *testing.T) {
	t.Parallel()

	r := &domain.FetchResult{Raw: []byte("a,b\n1,2\n")}
	path, err := r.GetFilePath()
	require.NoError(t, err)
	assert.True(t, r.Temporary)

	raw, err := r.GetRaw()
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(raw))

	require.NoError(t, r.Cleanup())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestErrors_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	var err error = &domain.FetchError{SourceID: "s1", URL: "http://x", StatusCode: 502, Cause: cause}

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "HTTP 502")

	lockErr := &domain.LockError{SourceID: "s1"}
	assert.Contains(t, lockErr.Error(), "locked")
}
