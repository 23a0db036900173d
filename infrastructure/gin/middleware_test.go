package gin_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	infragin "github.com/jonesrussell/north-cloud/importer/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
)

func newTestRouter(t *testing.T) *ginpkg.Engine {
	t.Helper()
	ginpkg.SetMode(ginpkg.TestMode)

	log := logger.NewNop()
	router := ginpkg.New()
	router.Use(infragin.RecoveryMiddleware(log))
	router.Use(infragin.RequestIDMiddleware(log))
	router.Use(infragin.LoggerMiddleware(log))
	router.GET("/test", func(c *ginpkg.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/panic", func(*ginpkg.Context) { panic("boom") })
	return router
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	// uuid string form
	assert.Len(t, w.Header().Get(infragin.RequestIDHeader), 36)
}

func TestRequestIDMiddleware_PreservesExistingID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set(infragin.RequestIDHeader, "trace-abc123")
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, req)

	assert.Equal(t, "trace-abc123", w.Header().Get(infragin.RequestIDHeader))
}

func TestRequestIDMiddleware_RejectsOversizedID(t *testing.T) {
	t.Parallel()

	oversized := strings.Repeat("x", 200)
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set(infragin.RequestIDHeader, oversized)
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, req)

	got := w.Header().Get(infragin.RequestIDHeader)
	assert.NotEmpty(t, got)
	assert.NotEqual(t, oversized, got)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}
