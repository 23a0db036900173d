package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/importer/infrastructure/health"
)

func TestChecker(t *testing.T) {
	t.Parallel()

	c := health.NewChecker()
	c.Register("database", func(context.Context) error { return nil })

	status, results := c.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, status)
	assert.Equal(t, map[string]string{"database": "ok"}, results)

	c.Register("redis", func(context.Context) error { return errors.New("connection refused") })
	status, results = c.Check(context.Background())
	assert.Equal(t, health.StatusUnhealthy, status)
	assert.Equal(t, "error: connection refused", results["redis"])
}

func TestGinHandler(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	c := health.NewChecker()
	c.Register("redis", func(context.Context) error { return errors.New("down") })
	r := gin.New()
	health.RegisterRoutes(r, c)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
}
