package fetcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileFetcher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	full := filepath.Join(dir, "items.csv")
	empty := filepath.Join(dir, "empty.csv")
	writeFile(t, full, "title\nA\n")
	writeFile(t, empty, "")

	f, err := fetcher.DefaultRegistry().New("file", map[string]any{"extensions": []string{"csv"}}, fetcher.Deps{})
	require.NoError(t, err)

	out, err := f.Fetch(context.Background(), &domain.Source{ID: "s", Config: domain.SourceConfig{"fetcher": {"path": full}}})
	require.NoError(t, err)
	require.Equal(t, fetcher.OutcomeData, out.Kind)
	assert.Equal(t, full, out.Result.Path)

	out, err = f.Fetch(context.Background(), &domain.Source{ID: "s", Config: domain.SourceConfig{"fetcher": {"path": empty}}})
	require.NoError(t, err)
	assert.Equal(t, fetcher.OutcomeEmpty, out.Kind)

	_, err = f.Fetch(context.Background(), &domain.Source{ID: "s", Config: domain.SourceConfig{"fetcher": {"path": filepath.Join(dir, "x.txt")}}})
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestDirectoryFetcher_OneFilePerCall(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.csv"), "x")
	writeFile(t, filepath.Join(dir, "a.csv"), "x")
	writeFile(t, filepath.Join(dir, "c.csv"), "x")
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o750))
	writeFile(t, filepath.Join(dir, "nested", "d.csv"), "x")

	f, err := fetcher.DefaultRegistry().New("directory", map[string]any{"extensions": "csv"}, fetcher.Deps{})
	require.NoError(t, err)

	src := &domain.Source{ID: "dir", Config: domain.SourceConfig{"fetcher": {"path": dir}}}
	var got []string
	for range 3 {
		out, fetchErr := f.Fetch(context.Background(), src)
		require.NoError(t, fetchErr)
		got = append(got, filepath.Base(out.Result.Path))
	}

	assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, got)
	st := src.Pipeline().State(domain.StageFetch)
	assert.True(t, st.IsComplete())
	assert.Equal(t, int64(3), st.Total)
}

func TestDirectoryFetcher_ReportsPartialProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.xml"), "x")
	writeFile(t, filepath.Join(dir, "b.xml"), "x")

	f, err := fetcher.DefaultRegistry().New("directory", nil, fetcher.Deps{})
	require.NoError(t, err)

	src := &domain.Source{ID: "dir", Config: domain.SourceConfig{"fetcher": {"path": dir}}}
	_, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, src.Pipeline().Progress(domain.StageFetch), 1e-9)
}

func TestDirectoryFetcher_EmptyDirectory(t *testing.T) {
	t.Parallel()

	f, err := fetcher.DefaultRegistry().New("directory", nil, fetcher.Deps{})
	require.NoError(t, err)

	out, err := f.Fetch(context.Background(), &domain.Source{ID: "d", Config: domain.SourceConfig{"fetcher": {"path": t.TempDir()}}})
	require.NoError(t, err)
	assert.Equal(t, fetcher.OutcomeEmpty, out.Kind)
}

func TestRegistry_UnknownPlugin(t *testing.T) {
	t.Parallel()

	r := fetcher.DefaultRegistry()
	_, err := r.New("ftp", nil, fetcher.Deps{})
	require.ErrorIs(t, err, fetcher.ErrUnknownPlugin)
	assert.Equal(t, []string{"directory", "file", "http"}, r.IDs())
	assert.True(t, r.Has("http"))
}
