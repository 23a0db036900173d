// Package common provides shared utilities for command implementations.
package common

import (
	"context"
	"fmt"
	"os"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/importer/internal/config"
)

var (
	// ConfigPath is the --config flag. When empty CONFIG_PATH is used, then
	// ./config.yml and ./config/config.yml.
	ConfigPath string

	// Debug is the --debug flag.
	Debug bool
)

// CommandDeps holds common dependencies for all commands.
type CommandDeps struct {
	Config *config.Config
	Logger infralogger.Logger
}

// NewCommandDeps loads configuration and creates the logger.
func NewCommandDeps() (CommandDeps, error) {
	path := ConfigPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return CommandDeps{}, fmt.Errorf("load config: %w", err)
	}
	if Debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return CommandDeps{}, err
	}
	return CommandDeps{Config: cfg, Logger: log}, nil
}

// NewApp wires the importer. The returned func closes it and flushes logs.
func NewApp(ctx context.Context) (*bootstrap.App, func(), error) {
	deps, err := NewCommandDeps()
	if err != nil {
		return nil, nil, err
	}

	app, err := bootstrap.New(ctx, deps.Config, deps.Logger)
	if err != nil {
		_ = deps.Logger.Sync()
		return nil, nil, fmt.Errorf("initialize importer: %w", err)
	}

	cleanup := func() {
		if closeErr := app.Close(); closeErr != nil {
			deps.Logger.Error("Failed to close importer", infralogger.Error(closeErr))
		}
		_ = deps.Logger.Sync()
	}
	return app, cleanup, nil
}
