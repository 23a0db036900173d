package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/infrastructure/retry"
)

// ErrUnknownPlugin is returned for an unregistered fetcher id.
var ErrUnknownPlugin = errors.New("unknown fetcher plugin")

// Deps are the shared collaborators handed to fetcher factories.
type Deps struct {
	Logger            infralogger.Logger
	HTTPClient        *http.Client
	HTTPState         HTTPStateStore
	DownloadDir       string
	UserAgent         string
	RequestsPerSecond float64
	Retry             retry.Config
}

// Factory builds a fetcher from its type-level settings.
type Factory func(cfg map[string]any, deps Deps) (Fetcher, error)

// Registry maps plugin ids to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in fetchers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("http", NewHTTPFromConfig)
	r.Register("file", NewFileFromConfig)
	r.Register("directory", NewDirectoryFromConfig)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(id string, f Factory) {
	r.factories[id] = f
}

// New builds the fetcher registered under id.
func (r *Registry) New(id string, cfg map[string]any, deps Deps) (Fetcher, error) {
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, id)
	}
	if deps.Logger == nil {
		deps.Logger = infralogger.NewNop()
	}
	return f(cfg, deps)
}

// IDs lists the registered plugin ids in order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.factories[id]
	return ok
}
