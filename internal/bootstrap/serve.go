package bootstrap

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	infragin "github.com/jonesrussell/north-cloud/importer/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/api"
	"github.com/jonesrussell/north-cloud/importer/internal/scheduler"
)

// NewServer builds the HTTP server for the API.
func (a *App) NewServer() *infragin.Server {
	handler := api.NewHandler(a.Sources, a.Runner, a.Catalog, a.Logs, a.Logger)
	return infragin.NewServer(infragin.Config{
		Address:        a.Config.Server.Address,
		Debug:          a.Config.Logging.Development,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		ServiceName:    a.Config.Service.Name,
		ServiceVersion: a.Config.Service.Version,
	}, a.Logger, api.Routes(handler, a.Health, a.Metrics, a.Registry))
}

// NewCron builds the periodic import scheduler.
func (a *App) NewCron() (*scheduler.Cron, error) {
	return scheduler.NewCron(a.Config.Scheduler.Cron, a.Batch, a.Sources, a.Catalog, a.Logger,
		scheduler.WithConcurrency(a.Config.Scheduler.Concurrency))
}

// Serve runs the API, the scheduler and the catalog watcher until ctx is
// cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	var cron *scheduler.Cron
	if a.Config.Scheduler.Enabled {
		c, err := a.NewCron()
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		cron = c
	}

	g, gctx := errgroup.WithContext(ctx)

	server := a.NewServer()
	g.Go(func() error {
		return server.Run(gctx)
	})

	if cron != nil {
		if err := cron.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		a.Logger.Info("Scheduler disabled")
	}

	if a.Config.Importer.WatchCatalog {
		g.Go(func() error {
			return a.Catalog.Watch(gctx)
		})
		a.Logger.Info("Watching source type catalog",
			infralogger.String("path", a.Config.Importer.CatalogPath))
	}

	return g.Wait()
}
