package pipeline

import (
	"fmt"
	"maps"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
	"github.com/jonesrussell/north-cloud/importer/internal/parser"
	"github.com/jonesrussell/north-cloud/importer/internal/plugin"
	"github.com/jonesrussell/north-cloud/importer/internal/processor"
)

// SourceTypes looks up source type definitions.
type SourceTypes interface {
	Get(id string) (*domain.SourceType, error)
}

// Plugins is the plugin set of one source for one step.
type Plugins struct {
	Fetcher   fetcher.Fetcher
	Parser    parser.Parser
	Processor *processor.Processor
	ParserID  string
}

func (p *Plugins) clearers() []Clearer {
	var out []Clearer
	for _, v := range []any{p.Fetcher, p.Parser} {
		if c, ok := v.(Clearer); ok {
			out = append(out, c)
		}
	}
	return out
}

// Resolver builds plugins from a source's type and the plugin registries.
// Plugins are built fresh per step, so caches they hold never outlive it.
type Resolver struct {
	types        SourceTypes
	fetchers     *fetcher.Registry
	parsers      *parser.Registry
	deps         fetcher.Deps
	records      processor.RecordStore
	links        processor.LinkStore
	sink         domain.LogSink
	log          infralogger.Logger
	defaultLimit int
	procOpts     []processor.Option
}

// ResolverConfig carries the collaborators of a Resolver.
type ResolverConfig struct {
	Types        SourceTypes
	Fetchers     *fetcher.Registry
	Parsers      *parser.Registry
	FetcherDeps  fetcher.Deps
	Records      processor.RecordStore
	Links        processor.LinkStore
	Sink         domain.LogSink
	Logger       infralogger.Logger
	DefaultLimit int
	Processor    []processor.Option
}

// NewResolver creates a Resolver. Nil registries default to the built-in plugins.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Fetchers == nil {
		cfg.Fetchers = fetcher.DefaultRegistry()
	}
	if cfg.Parsers == nil {
		cfg.Parsers = parser.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = infralogger.NewNop()
	}
	if cfg.Sink == nil {
		cfg.Sink = NewLoggerSink(cfg.Logger)
	}
	if cfg.FetcherDeps.Logger == nil {
		cfg.FetcherDeps.Logger = cfg.Logger
	}
	return &Resolver{
		types:        cfg.Types,
		fetchers:     cfg.Fetchers,
		parsers:      cfg.Parsers,
		deps:         cfg.FetcherDeps,
		records:      cfg.Records,
		links:        cfg.Links,
		sink:         cfg.Sink,
		log:          cfg.Logger,
		defaultLimit: cfg.DefaultLimit,
		procOpts:     cfg.Processor,
	}
}

// Resolve builds the fetcher, parser and processor of a source.
func (r *Resolver) Resolve(src *domain.Source) (*Plugins, error) {
	st, err := r.types.Get(src.TypeID)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}

	f, err := r.fetchers.New(st.Fetcher.Plugin, st.Fetcher.Config, r.deps)
	if err != nil {
		return nil, fmt.Errorf("source type %s fetcher: %w", st.ID, err)
	}
	p, err := r.parsers.New(st.Parser.Plugin, st.Parser.Config, r.log)
	if err != nil {
		return nil, fmt.Errorf("source type %s parser: %w", st.ID, err)
	}

	settings := plugin.Merge(st.Processor.Config, src.PluginConfig(domain.RoleProcessor))
	if _, ok := settings["limit"]; !ok && r.defaultLimit > 0 {
		settings = maps.Clone(settings)
		settings["limit"] = r.defaultLimit
	}
	cfg, err := processor.DecodeConfig(settings)
	if err != nil {
		return nil, fmt.Errorf("source type %s processor: %w", st.ID, err)
	}
	proc, err := processor.New(cfg, r.records, r.links, r.sink, r.log, r.procOpts...)
	if err != nil {
		return nil, fmt.Errorf("source type %s processor: %w", st.ID, err)
	}

	return &Plugins{Fetcher: f, Parser: p, Processor: proc, ParserID: st.Parser.Plugin}, nil
}
