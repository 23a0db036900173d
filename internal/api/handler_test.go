package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/importer/infrastructure/health"
	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/api"
	"github.com/jonesrussell/north-cloud/importer/internal/catalog"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/metrics"
	"github.com/jonesrussell/north-cloud/importer/internal/pipeline"
	"github.com/jonesrussell/north-cloud/importer/internal/store/memory"
)

type fakePipelines struct {
	progress float64
	err      error
	calls    []string
}

func (f *fakePipelines) run(kind, id string) (float64, error) {
	f.calls = append(f.calls, kind+":"+id)
	return f.progress, f.err
}

func (f *fakePipelines) Import(_ context.Context, id string) (float64, error) {
	return f.run("import", id)
}

func (f *fakePipelines) Clear(_ context.Context, id string) (float64, error) {
	return f.run("clear", id)
}

func (f *fakePipelines) Expire(_ context.Context, id string) (float64, error) {
	return f.run("expire", id)
}

func (f *fakePipelines) Progress(_ context.Context, id string) (pipeline.Snapshot, error) {
	if f.err != nil {
		return pipeline.Snapshot{}, f.err
	}
	return pipeline.Snapshot{SourceID: id, Importing: f.progress, Clearing: 1, Expiring: 1}, nil
}

type apiFixture struct {
	router    *gin.Engine
	sources   *memory.Sources
	logs      *memory.Logs
	pipelines *fakePipelines
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	types, err := catalog.New([]*domain.SourceType{{
		ID:           "news_feed",
		Name:         "News feed",
		Fetcher:      domain.PluginSpec{Plugin: "http"},
		Parser:       domain.PluginSpec{Plugin: "feed"},
		Processor:    domain.PluginSpec{Plugin: "node"},
		ImportPeriod: time.Hour,
	}})
	require.NoError(t, err)

	f := &apiFixture{
		sources:   memory.NewSources(),
		logs:      memory.NewLogs(),
		pipelines: &fakePipelines{progress: 0.5},
	}
	require.NoError(t, f.sources.Create(context.Background(), &domain.Source{ID: "src-1", TypeID: "news_feed"}))

	reg := prometheus.NewRegistry()
	h := api.NewHandler(f.sources, f.pipelines, types, f.logs, infralogger.NewNop())
	f.router = gin.New()
	api.Routes(h, health.NewChecker(), metrics.New(reg), reg)(f.router)
	return f
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestStep_ReportsProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/sources/src-1/import", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "import", resp["pipeline"])
	assert.InDelta(t, 0.5, resp["progress"], 0)
	assert.Equal(t, false, resp["complete"])

	f.pipelines.progress = 1
	w = f.do(http.MethodPost, "/api/v1/sources/src-1/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"complete":true`)
	assert.Equal(t, []string{"import:src-1", "clear:src-1"}, f.pipelines.calls)
}

func TestStep_ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"locked", &domain.LockError{SourceID: "src-1"}, http.StatusConflict},
		{"unknown source", domain.ErrSourceNotFound, http.StatusNotFound},
		{"fetch", &domain.FetchError{SourceID: "src-1", StatusCode: 500}, http.StatusBadGateway},
		{"parse", &domain.ParseError{SourceID: "src-1", Cause: errors.New("bad xml")}, http.StatusUnprocessableEntity},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.pipelines.err = tt.err

			w := f.do(http.MethodPost, "/api/v1/sources/src-1/expire", "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/sources/src-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type_id":"news_feed"`)

	w = f.do(http.MethodGet, "/api/v1/sources/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/sources",
		`{"type_id":"news_feed","config":{"fetcher":{"url":"https://example.com/rss"}}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created domain.Source
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	stored, err := f.sources.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/rss", stored.PluginConfig(domain.RoleFetcher)["url"])

	w = f.do(http.MethodPost, "/api/v1/sources", `{"type_id":"podcast"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/sources", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSourcesAndTypes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/sources", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = f.do(http.MethodGet, "/api/v1/source-types", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"import_period":"1h0m0s"`)
}

func TestProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/sources/src-1/progress", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, pipeline.Snapshot{SourceID: "src-1", Importing: 0.5, Clearing: 1, Expiring: 1}, snap)
}

func TestLog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx := context.Background()
	f.logs.Log(ctx, "src-1", domain.KindImport, "Created 2 item records.", domain.SeverityInfo)
	f.logs.Log(ctx, "src-1", domain.KindImport, "There are no new item records.", domain.SeverityInfo)

	w := f.do(http.MethodGet, "/api/v1/sources/src-1/log?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "There are no new item records.")
	assert.NotContains(t, w.Body.String(), "Created 2")

	w = f.do(http.MethodGet, "/api/v1/sources/src-1/log?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/sources/missing/log", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)

	f.do(http.MethodPost, "/api/v1/sources/src-1/import", "")
	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "importer_http_requests_total")
}
