package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
)

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The parent directory is watched, since editors often replace files by rename.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(c.path)
	if err = watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if reloadErr := c.Reload(); reloadErr != nil {
				c.log.Error("Failed to reload source type catalog", infralogger.Error(reloadErr))
				continue
			}
			c.log.Info("Reloaded source type catalog", infralogger.Int("source_types", len(c.List())))
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("Catalog watcher error", infralogger.Error(watchErr))
		}
	}
}
