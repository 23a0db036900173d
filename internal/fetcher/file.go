package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/plugin"
)

var errMissingPath = errors.New("no path configured")

// FileConfig configures the file and directory fetchers.
type FileConfig struct {
	Path       string   `mapstructure:"path"`
	Extensions []string `mapstructure:"extensions"`
	Recursive  bool     `mapstructure:"recursive"`
}

func decodeFileConfig(defaults map[string]any, src *domain.Source) (FileConfig, error) {
	var cfg FileConfig
	if err := plugin.Decode(plugin.Merge(defaults, src.PluginConfig(domain.RoleFetcher)), &cfg); err != nil {
		return cfg, err
	}
	if cfg.Path == "" {
		return cfg, errMissingPath
	}
	for i, ext := range cfg.Extensions {
		cfg.Extensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	return cfg, nil
}

func (c FileConfig) allowed(path string) bool {
	if len(c.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return slices.Contains(c.Extensions, ext)
}

// FileFetcher hands a local file to the parser.
type FileFetcher struct {
	defaults map[string]any
}

// NewFileFromConfig is the registry factory for "file".
func NewFileFromConfig(cfg map[string]any, _ Deps) (Fetcher, error) {
	return &FileFetcher{defaults: cfg}, nil
}

func (f *FileFetcher) Fetch(_ context.Context, src *domain.Source) (Outcome, error) {
	cfg, err := decodeFileConfig(f.defaults, src)
	if err != nil {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, Cause: err}
	}
	if !cfg.allowed(cfg.Path) {
		return Outcome{}, &domain.FetchError{
			SourceID: src.ID,
			URL:      cfg.Path,
			Cause:    fmt.Errorf("extension not in %v", cfg.Extensions),
		}
	}

	info, err := os.Stat(cfg.Path)
	if err != nil {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, URL: cfg.Path, Cause: err}
	}
	if info.Size() == 0 {
		return Empty(), nil
	}
	return Data(&domain.FetchResult{URL: cfg.Path, Path: cfg.Path}), nil
}

// DirectoryFetcher returns the files of a directory one per call, sorted by
// path. The fetch stage pointer is the index of the next file.
type DirectoryFetcher struct {
	defaults map[string]any
}

// NewDirectoryFromConfig is the registry factory for "directory".
func NewDirectoryFromConfig(cfg map[string]any, _ Deps) (Fetcher, error) {
	return &DirectoryFetcher{defaults: cfg}, nil
}

func (f *DirectoryFetcher) Fetch(_ context.Context, src *domain.Source) (Outcome, error) {
	cfg, err := decodeFileConfig(f.defaults, src)
	if err != nil {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, Cause: err}
	}

	files, err := listFiles(cfg)
	if err != nil {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, URL: cfg.Path, Cause: err}
	}

	st := src.Pipeline().State(domain.StageFetch)
	if len(files) == 0 {
		st.Report(0, 0)
		return Empty(), nil
	}

	idx := min(max(st.Pointer, 0), int64(len(files)-1))
	st.Pointer = idx + 1
	st.Report(int64(len(files)), idx+1)

	return Data(&domain.FetchResult{URL: files[idx], Path: files[idx]}), nil
}

func listFiles(cfg FileConfig) ([]string, error) {
	var files []string
	err := filepath.WalkDir(cfg.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != cfg.Path && !cfg.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if cfg.allowed(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", cfg.Path, err)
	}
	sort.Strings(files)
	return files, nil
}
