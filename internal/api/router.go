package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/importer/infrastructure/health"
	"github.com/jonesrussell/north-cloud/importer/internal/metrics"
)

// Routes returns the route setup for the HTTP server. m may be nil.
func Routes(h *Handler, checker *health.Checker, m *metrics.Metrics, gatherer prometheus.Gatherer) func(*gin.Engine) {
	return func(r *gin.Engine) {
		if m != nil {
			r.Use(m.Middleware())
		}
		health.RegisterRoutes(r, checker)
		if gatherer != nil {
			r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
		}
		h.Register(r.Group("/api/v1"))
	}
}
