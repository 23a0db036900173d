// Package bootstrap wires the importer from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/north-cloud/importer/infrastructure/health"
	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/api"
	"github.com/jonesrussell/north-cloud/importer/internal/catalog"
	"github.com/jonesrussell/north-cloud/importer/internal/config"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
	"github.com/jonesrussell/north-cloud/importer/internal/lock"
	"github.com/jonesrussell/north-cloud/importer/internal/metrics"
	"github.com/jonesrussell/north-cloud/importer/internal/parser"
	"github.com/jonesrussell/north-cloud/importer/internal/pipeline"
	"github.com/jonesrussell/north-cloud/importer/internal/processor"
	"github.com/jonesrussell/north-cloud/importer/internal/scheduler"
)

// SourceStore is the full source persistence surface.
type SourceStore interface {
	pipeline.SourceStore
	api.SourceStore
	Delete(ctx context.Context, id string) error
}

// App holds the wired importer.
type App struct {
	Config   *config.Config
	Logger   infralogger.Logger
	Sources  SourceStore
	Logs     api.LogReader
	Catalog  *catalog.Catalog
	Runner   *pipeline.Runner
	Batch    *scheduler.Batch
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Health   *health.Checker

	storage *storage
	closers []func() error
}

// New wires every component. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
		Health:   health.NewChecker(),
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(app.Registry)

	if err := app.setup(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) setup(ctx context.Context) error {
	fetchers := fetcher.DefaultRegistry()
	parsers := parser.DefaultRegistry()

	// Phase 1: source type catalog
	types, err := catalog.Load(a.Config.Importer.CatalogPath,
		catalog.WithValidator(pluginValidator(fetchers, parsers)),
		catalog.WithLogger(a.Logger),
	)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	a.Catalog = types

	// Phase 2: storage
	st, err := setupStorage(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.storage = st
	a.Sources = st.sources
	a.Logs = st.logs
	a.closers = append(a.closers, st.close)
	if st.ping != nil {
		a.Health.Register("database", st.ping)
	}

	// Phase 3: lock backend and event publisher
	coord, err := setupRedis(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, coord.close)
	if coord.ping != nil {
		a.Health.Register("redis", coord.ping)
	}

	// Phase 4: pipeline
	resolver := pipeline.NewResolver(pipeline.ResolverConfig{
		Types:        types,
		Fetchers:     fetchers,
		Parsers:      parsers,
		FetcherDeps:  fetcherDeps(a.Config, st.httpState, a.Logger),
		Records:      st.records,
		Links:        st.links,
		Sink:         pipeline.MultiSink{st.sink, pipeline.NewLoggerSink(a.Logger)},
		Logger:       a.Logger,
		DefaultLimit: a.Config.Importer.DefaultLimit,
	})

	opts := []pipeline.Option{
		pipeline.WithLockTTL(a.Config.Importer.LockTTL),
		pipeline.WithObserver(a.Metrics),
	}
	if coord.publisher != nil {
		opts = append(opts, pipeline.WithPublisher(coord.publisher))
	}
	a.Runner = pipeline.NewRunner(st.sources, resolver, coord.locker, a.Logger, opts...)
	a.Batch = scheduler.NewBatch(a.Runner, a.Logger,
		scheduler.WithMaxSteps(a.Config.Scheduler.MaxSteps))
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// pluginValidator rejects source types naming plugins that are not registered
// or carrying processor settings that do not decode.
func pluginValidator(fetchers *fetcher.Registry, parsers *parser.Registry) catalog.Validator {
	return func(t *domain.SourceType) error {
		if !fetchers.Has(t.Fetcher.Plugin) {
			return fmt.Errorf("%w: %q", fetcher.ErrUnknownPlugin, t.Fetcher.Plugin)
		}
		if !parsers.Has(t.Parser.Plugin) {
			return fmt.Errorf("%w: %q", parser.ErrUnknownPlugin, t.Parser.Plugin)
		}
		if _, err := processor.DecodeConfig(t.Processor.Config); err != nil {
			return fmt.Errorf("processor: %w", err)
		}
		return nil
	}
}
