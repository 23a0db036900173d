package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/importer/internal/catalog"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const sampleCatalog = `
source_types:
  - id: news_feed
    name: News feed
    import_period: 15m
    fetcher:
      plugin: http
      config:
        timeout: 10s
    parser:
      plugin: syndication
    processor:
      config:
        update_existing: update
        mappings:
          - {source: guid, target: guid, unique: true}
          - {source: title, target: title}
  - id: products
    import_period: never
    fetcher: {plugin: file}
    parser: {plugin: csv, config: {delimiter: ";"}}
`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source_types.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParse(t *testing.T) {
	t.Parallel()

	types, err := catalog.Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, types, 2)

	news := types["news_feed"]
	assert.Equal(t, "News feed", news.Name)
	assert.Equal(t, 15*time.Minute, news.ImportPeriod)
	assert.Equal(t, "http", news.Fetcher.Plugin)
	assert.Equal(t, "10s", news.Fetcher.Config["timeout"])
	assert.Equal(t, "update", news.Processor.Config["update_existing"])
	assert.True(t, news.Schedulable())

	products := types["products"]
	assert.Equal(t, "products", products.Name)
	assert.Equal(t, domain.ImportPeriodNever, products.ImportPeriod)
	assert.False(t, products.Schedulable())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "empty", body: "source_types: []", want: catalog.ErrNoSourceTypes},
		{name: "missing id", body: "source_types:\n  - fetcher: {plugin: http}\n    parser: {plugin: csv}", want: catalog.ErrMissingRequiredField},
		{name: "missing parser", body: "source_types:\n  - id: a\n    fetcher: {plugin: http}", want: catalog.ErrMissingRequiredField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := catalog.Parse([]byte(tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := catalog.Parse([]byte("source_types:\n  - id: a\n    import_period: soon\n    fetcher: {plugin: http}\n    parser: {plugin: csv}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import_period")
}

func TestLoad_GetAndValidator(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, sampleCatalog)
	c, err := catalog.Load(path)
	require.NoError(t, err)

	st, err := c.Get("products")
	require.NoError(t, err)
	assert.Equal(t, "csv", st.Parser.Plugin)

	_, err = c.Get("unknown")
	require.ErrorIs(t, err, domain.ErrSourceTypeNotFound)

	ids := make([]string, 0, 2)
	for _, st := range c.List() {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"news_feed", "products"}, ids)

	errUnsupported := errors.New("unsupported parser")
	_, err = catalog.Load(path, catalog.WithValidator(func(st *domain.SourceType) error {
		if st.Parser.Plugin == "csv" {
			return errUnsupported
		}
		return nil
	}))
	require.ErrorIs(t, err, errUnsupported)
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, sampleCatalog)
	c, err := catalog.Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("source_types: ["), 0o600))
	require.Error(t, c.Reload())

	_, err = c.Get("news_feed")
	require.NoError(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, sampleCatalog)
	c, err := catalog.Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	updated := sampleCatalog + `
  - id: sitemap
    fetcher: {plugin: http}
    parser: {plugin: sitemap}
`
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o600)
		_, getErr := c.Get("sitemap")
		return getErr == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
