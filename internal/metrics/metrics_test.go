package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/metrics"
)

func TestObserveStepAndSummary(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	m.ObserveStep(domain.KindImport, "news_feed", "partial", 200*time.Millisecond)
	m.ObserveStep(domain.KindImport, "news_feed", "complete", 100*time.Millisecond)
	m.ObserveSummary("news_feed", domain.ImportSummary{Pipeline: domain.KindImport, Created: 4, Skipped: 1})

	assert.InDelta(t, 1, testutil.ToFloat64(m.StepsTotal.WithLabelValues("import", "news_feed", "partial")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PipelinesCompleted.WithLabelValues("import", "news_feed")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("import", "news_feed", "created")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("import", "news_feed", "skipped")), 0)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	m := metrics.New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/v1/sources/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sources/abc", nil))

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/sources/:id", "404")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ActiveRequests), 0)
}
