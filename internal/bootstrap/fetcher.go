package bootstrap

import (
	"net/http"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/importer/internal/config"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
)

func fetcherDeps(cfg *config.Config, state fetcher.HTTPStateStore, log infralogger.Logger) fetcher.Deps {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Importer.MaxRetries

	return fetcher.Deps{
		Logger:            log,
		HTTPClient:        &http.Client{Timeout: cfg.Importer.RequestTimeout},
		HTTPState:         state,
		DownloadDir:       cfg.Importer.DownloadDir,
		UserAgent:         cfg.Importer.UserAgent,
		RequestsPerSecond: cfg.Importer.RequestsPerSecond,
		Retry:             rc,
	}
}
