// Package api exposes sources and their pipelines over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/pipeline"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// SourceStore reads and registers sources.
type SourceStore interface {
	Get(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context) ([]*domain.Source, error)
	Create(ctx context.Context, src *domain.Source) error
}

// Pipelines runs single pipeline steps and reports progress.
type Pipelines interface {
	Import(ctx context.Context, sourceID string) (float64, error)
	Clear(ctx context.Context, sourceID string) (float64, error)
	Expire(ctx context.Context, sourceID string) (float64, error)
	Progress(ctx context.Context, sourceID string) (pipeline.Snapshot, error)
}

// TypeLookup lists the configured source types.
type TypeLookup interface {
	Get(id string) (*domain.SourceType, error)
	List() []*domain.SourceType
}

// LogReader lists stored diagnostics of a source.
type LogReader interface {
	List(ctx context.Context, sourceID string, limit int) ([]domain.LogEntry, error)
}

// Handler serves the source endpoints.
type Handler struct {
	sources   SourceStore
	pipelines Pipelines
	types     TypeLookup
	logs      LogReader
	logger    infralogger.Logger
}

// NewHandler creates a Handler. logs may be nil.
func NewHandler(
	sources SourceStore,
	pipelines Pipelines,
	types TypeLookup,
	logs LogReader,
	log infralogger.Logger,
) *Handler {
	if log == nil {
		log = infralogger.NewNop()
	}
	return &Handler{sources: sources, pipelines: pipelines, types: types, logs: logs, logger: log}
}

// Register mounts the endpoints on a router group.
func (h *Handler) Register(rg gin.IRouter) {
	rg.GET("/source-types", h.ListTypes)

	sources := rg.Group("/sources")
	sources.GET("", h.List)
	sources.POST("", h.Create)
	sources.GET("/:id", h.Get)
	sources.GET("/:id/progress", h.Progress)
	sources.GET("/:id/log", h.Log)
	sources.POST("/:id/import", h.step(domain.KindImport))
	sources.POST("/:id/clear", h.step(domain.KindClear))
	sources.POST("/:id/expire", h.step(domain.KindExpire))
}

type sourceTypeResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Fetcher      string `json:"fetcher"`
	Parser       string `json:"parser"`
	Processor    string `json:"processor"`
	ImportPeriod string `json:"import_period"`
}

func (h *Handler) ListTypes(c *gin.Context) {
	types := h.types.List()
	out := make([]sourceTypeResponse, 0, len(types))
	for _, t := range types {
		period := "never"
		if t.Schedulable() {
			period = t.ImportPeriod.String()
		}
		out = append(out, sourceTypeResponse{
			ID:           t.ID,
			Name:         t.Name,
			Description:  t.Description,
			Fetcher:      t.Fetcher.Plugin,
			Parser:       t.Parser.Plugin,
			Processor:    t.Processor.Plugin,
			ImportPeriod: period,
		})
	}
	c.JSON(http.StatusOK, gin.H{"source_types": out, "count": len(out)})
}

func (h *Handler) List(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list sources", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

type createSourceRequest struct {
	ID     string              `json:"id"`
	TypeID string              `binding:"required" json:"type_id"`
	Config domain.SourceConfig `json:"config"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if _, err := h.types.Get(req.TypeID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source type", "details": err.Error()})
		return
	}

	src := &domain.Source{ID: req.ID, TypeID: req.TypeID, Config: req.Config}
	if err := h.sources.Create(c.Request.Context(), src); err != nil {
		h.logger.Error("Failed to create source",
			infralogger.String("type_id", req.TypeID),
			infralogger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create source"})
		return
	}

	h.logger.Info("Source created",
		infralogger.SourceID(src.ID),
		infralogger.String("type_id", src.TypeID),
	)
	c.JSON(http.StatusCreated, src)
}

func (h *Handler) Get(c *gin.Context) {
	src, err := h.sources.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get source")
		return
	}
	c.JSON(http.StatusOK, src)
}

func (h *Handler) Progress(c *gin.Context) {
	snap, err := h.pipelines.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to read progress")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) Log(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Import log is not stored"})
		return
	}

	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxLogLimit)
	}

	id := c.Param("id")
	if _, err := h.sources.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err, "Failed to get source")
		return
	}
	entries, err := h.logs.List(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err, "Failed to read import log")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

type stepResponse struct {
	SourceID string              `json:"source_id"`
	Pipeline domain.PipelineKind `json:"pipeline"`
	Progress float64             `json:"progress"`
	Complete bool                `json:"complete"`
}

// step runs one step of a pipeline. Clients poll by calling it again until
// complete is true.
func (h *Handler) step(kind domain.PipelineKind) gin.HandlerFunc {
	run := map[domain.PipelineKind]func(context.Context, string) (float64, error){
		domain.KindImport: h.pipelines.Import,
		domain.KindClear:  h.pipelines.Clear,
		domain.KindExpire: h.pipelines.Expire,
	}[kind]

	return func(c *gin.Context) {
		id := c.Param("id")
		progress, err := run(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err, "Pipeline step failed")
			return
		}
		c.JSON(http.StatusOK, stepResponse{
			SourceID: id,
			Pipeline: kind,
			Progress: progress,
			Complete: progress >= 1,
		})
	}
}

// fail maps domain errors to status codes.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	var (
		lockErr  *domain.LockError
		fetchErr *domain.FetchError
		parseErr *domain.ParseError
	)

	switch {
	case errors.Is(err, domain.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
	case errors.As(err, &lockErr):
		c.JSON(http.StatusConflict, gin.H{"error": "Source is busy, retry later", "details": err.Error()})
	case errors.As(err, &fetchErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Fetching the source failed", "details": err.Error()})
	case errors.As(err, &parseErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Parsing the source failed", "details": err.Error()})
	default:
		h.logger.Error(msg,
			infralogger.SourceID(c.Param("id")),
			infralogger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
