// Package metrics exposes Prometheus metrics for pipeline steps and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const (
	// MetricsNamespace is the namespace for all importer metrics.
	MetricsNamespace = "importer"
)

// Metrics holds all Prometheus metrics of the importer.
type Metrics struct {
	// Pipeline metrics
	StepsTotal          *prometheus.CounterVec
	StepDurationSeconds *prometheus.HistogramVec
	ItemsTotal          *prometheus.CounterVec
	PipelinesCompleted  *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	ActiveRequests         prometheus.Gauge
}

// New creates and registers all metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}
	m.initPipelineMetrics(factory)
	m.initHTTPMetrics(factory)
	return m
}

func (m *Metrics) initPipelineMetrics(factory promauto.Factory) {
	m.StepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Total number of pipeline steps by outcome",
		},
		[]string{"pipeline", "source_type", "outcome"},
	)

	m.StepDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~5min
		},
		[]string{"pipeline", "source_type"},
	)

	m.ItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "pipeline",
			Name:      "items_total",
			Help:      "Items handled by completed pipelines, by result",
		},
		[]string{"pipeline", "source_type", "result"},
	)

	m.PipelinesCompleted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "pipeline",
			Name:      "completed_total",
			Help:      "Total number of completed pipelines",
		},
		[]string{"pipeline", "source_type"},
	)
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.RequestDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.ActiveRequests = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of HTTP requests in flight",
		},
	)
}

// ObserveStep records one pipeline step.
func (m *Metrics) ObserveStep(kind domain.PipelineKind, sourceType, outcome string, elapsed time.Duration) {
	m.StepsTotal.WithLabelValues(string(kind), sourceType, outcome).Inc()
	m.StepDurationSeconds.WithLabelValues(string(kind), sourceType).Observe(elapsed.Seconds())
}

// ObserveSummary records the counters of a completed pipeline.
func (m *Metrics) ObserveSummary(sourceType string, s domain.ImportSummary) {
	kind := string(s.Pipeline)
	m.PipelinesCompleted.WithLabelValues(kind, sourceType).Inc()
	for result, n := range map[string]int{
		"created": s.Created,
		"updated": s.Updated,
		"deleted": s.Deleted,
		"skipped": s.Skipped,
		"failed":  s.Failed,
	} {
		if n > 0 {
			m.ItemsTotal.WithLabelValues(kind, sourceType, result).Add(float64(n))
		}
	}
}

// Middleware returns gin middleware that tracks request metrics by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.ActiveRequests.Inc()
		defer m.ActiveRequests.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDurationSeconds.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
