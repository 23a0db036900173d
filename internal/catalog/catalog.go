// Package catalog holds the read-only Source Type definitions loaded from YAML.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// DefaultImportPeriod applies when a source type sets no import_period.
const DefaultImportPeriod = 30 * time.Minute

var (
	// ErrNoSourceTypes indicates the catalog file defines nothing.
	ErrNoSourceTypes = errors.New("no source types found in catalog")
	// ErrMissingRequiredField indicates a required field is missing.
	ErrMissingRequiredField = errors.New("missing required field")
)

type pluginEntry struct {
	Plugin string         `yaml:"plugin"`
	Config map[string]any `yaml:"config"`
}

type typeEntry struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Description  string      `yaml:"description"`
	ImportPeriod string      `yaml:"import_period"`
	Fetcher      pluginEntry `yaml:"fetcher"`
	Parser       pluginEntry `yaml:"parser"`
	Processor    pluginEntry `yaml:"processor"`
}

// catalogFile represents the structure of a catalog YAML file.
type catalogFile struct {
	SourceTypes []typeEntry `yaml:"source_types"`
}

// Validator rejects source types the running service cannot serve.
type Validator func(*domain.SourceType) error

// Catalog is a concurrency-safe set of source types.
type Catalog struct {
	mu        sync.RWMutex
	types     map[string]*domain.SourceType
	path      string
	validator Validator
	log       infralogger.Logger
}

// Option customises a Catalog.
type Option func(*Catalog)

// WithValidator checks every source type on load and reload.
func WithValidator(v Validator) Option {
	return func(c *Catalog) { c.validator = v }
}

// WithLogger sets the logger used by Watch.
func WithLogger(log infralogger.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

// New creates a catalog from already parsed source types.
func New(types []*domain.SourceType, opts ...Option) (*Catalog, error) {
	c := newCatalog(opts)
	m := make(map[string]*domain.SourceType, len(types))
	for _, t := range types {
		if err := c.check(t); err != nil {
			return nil, err
		}
		m[t.ID] = t
	}
	c.types = m
	return c, nil
}

// Load reads a catalog file.
func Load(path string, opts ...Option) (*Catalog, error) {
	c := newCatalog(opts)
	c.path = path
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func newCatalog(opts []Option) *Catalog {
	c := &Catalog{types: map[string]*domain.SourceType{}, log: infralogger.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reload re-reads the catalog file. On error the previous definitions stay active.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", c.path, err)
	}
	types, err := Parse(data)
	if err != nil {
		return fmt.Errorf("catalog %s: %w", c.path, err)
	}
	for _, t := range types {
		if err = c.check(t); err != nil {
			return fmt.Errorf("catalog %s: %w", c.path, err)
		}
	}

	c.mu.Lock()
	c.types = types
	c.mu.Unlock()
	return nil
}

func (c *Catalog) check(t *domain.SourceType) error {
	if c.validator == nil {
		return nil
	}
	if err := c.validator(t); err != nil {
		return fmt.Errorf("source type %s: %w", t.ID, err)
	}
	return nil
}

// Get returns a source type by ID.
func (c *Catalog) Get(id string) (*domain.SourceType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceTypeNotFound, id)
	}
	return t, nil
}

// List returns every source type ordered by ID.
func (c *Catalog) List() []*domain.SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.SourceType, 0, len(c.types))
	for _, id := range slices.Sorted(maps.Keys(c.types)) {
		out = append(out, c.types[id])
	}
	return out
}

// Parse decodes catalog YAML into source types keyed by ID.
func Parse(data []byte) (map[string]*domain.SourceType, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(file.SourceTypes) == 0 {
		return nil, ErrNoSourceTypes
	}

	types := make(map[string]*domain.SourceType, len(file.SourceTypes))
	for i, e := range file.SourceTypes {
		t, err := e.toDomain()
		if err != nil {
			return nil, fmt.Errorf("source type %d: %w", i, err)
		}
		if _, dup := types[t.ID]; dup {
			return nil, fmt.Errorf("duplicate source type %q", t.ID)
		}
		types[t.ID] = t
	}
	return types, nil
}

func (e typeEntry) toDomain() (*domain.SourceType, error) {
	switch {
	case e.ID == "":
		return nil, fmt.Errorf("%w: id", ErrMissingRequiredField)
	case e.Fetcher.Plugin == "":
		return nil, fmt.Errorf("%w: fetcher.plugin (%s)", ErrMissingRequiredField, e.ID)
	case e.Parser.Plugin == "":
		return nil, fmt.Errorf("%w: parser.plugin (%s)", ErrMissingRequiredField, e.ID)
	}

	period, err := parsePeriod(e.ImportPeriod)
	if err != nil {
		return nil, fmt.Errorf("source type %s: %w", e.ID, err)
	}

	name := e.Name
	if name == "" {
		name = e.ID
	}
	return &domain.SourceType{
		ID:           e.ID,
		Name:         name,
		Description:  e.Description,
		Fetcher:      domain.PluginSpec{Plugin: e.Fetcher.Plugin, Config: e.Fetcher.Config},
		Parser:       domain.PluginSpec{Plugin: e.Parser.Plugin, Config: e.Parser.Config},
		Processor:    domain.PluginSpec{Plugin: e.Processor.Plugin, Config: e.Processor.Config},
		ImportPeriod: period,
	}, nil
}

func parsePeriod(s string) (time.Duration, error) {
	switch s = strings.TrimSpace(strings.ToLower(s)); s {
	case "":
		return DefaultImportPeriod, nil
	case "-1", "never":
		return domain.ImportPeriodNever, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid import_period %q", s)
	}
	return d, nil
}
