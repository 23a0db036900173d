// Package parser turns fetched content into ordered items.
package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/plugin"
)

// Parser turns a fetch result into items. A resumable parser keeps its offset
// in the source's parse stage state and returns one chunk per call, leaving
// the stage incomplete until the content is exhausted.
type Parser interface {
	Parse(ctx context.Context, src *domain.Source, fr *domain.FetchResult) (*domain.ParserResult, error)
}

// ErrUnknownPlugin is returned for an unregistered parser id.
var ErrUnknownPlugin = errors.New("unknown parser plugin")

// Factory builds a parser from its type-level settings.
type Factory func(cfg map[string]any, log infralogger.Logger) (Parser, error)

// Registry maps plugin ids to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("syndication", NewFeedFromConfig)
	r.Register("csv", NewCSVFromConfig)
	r.Register("sitemap", NewSitemapFromConfig)
	r.Register("xlsx", NewXLSXFromConfig)
	r.Register("html", NewHTMLFromConfig)
	return r
}

func (r *Registry) Register(id string, f Factory) {
	r.factories[id] = f
}

// New builds the parser registered under id.
func (r *Registry) New(id string, cfg map[string]any, log infralogger.Logger) (Parser, error) {
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, id)
	}
	if log == nil {
		log = infralogger.NewNop()
	}
	return f(cfg, log)
}

func (r *Registry) Has(id string) bool {
	_, ok := r.factories[id]
	return ok
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

func decode(defaults map[string]any, src *domain.Source, out any) error {
	return plugin.Decode(plugin.Merge(defaults, src.PluginConfig(domain.RoleParser)), out)
}

func parseErr(src *domain.Source, parser string, err error) error {
	return &domain.ParseError{SourceID: src.ID, Parser: parser, Cause: err}
}
