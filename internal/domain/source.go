// Package domain holds the types shared by every importer stage.
package domain

import "time"

// Plugin roles used as keys of a source's configuration.
const (
	RoleFetcher   = "fetcher"
	RoleParser    = "parser"
	RoleProcessor = "processor"
)

// ImportPeriodNever disables scheduled imports for a source type.
const ImportPeriodNever time.Duration = -1

// PluginSpec selects a registered plugin and carries its type-level settings.
type PluginSpec struct {
	Plugin string         `json:"plugin"           yaml:"plugin"`
	Config map[string]any `json:"config,omitempty" yaml:"config"`
}

// SourceType is the configuration bundle a Source is bound to.
type SourceType struct {
	ID           string
	Name         string
	Description  string
	Fetcher      PluginSpec
	Parser       PluginSpec
	Processor    PluginSpec
	ImportPeriod time.Duration
}

// Schedulable reports whether sources of this type are imported periodically.
func (t *SourceType) Schedulable() bool {
	return t.ImportPeriod >= 0
}

// SourceConfig holds per-source plugin settings keyed by plugin role.
type SourceConfig map[string]map[string]any

// Source is one configured origin of external data.
type Source struct {
	ID          string         `json:"id"`
	TypeID      string         `json:"type_id"`
	Config      SourceConfig   `json:"config,omitempty"`
	State       *PipelineState `json:"state,omitempty"`
	FetchResult *FetchResult   `json:"fetch_result,omitempty"`
	Imported    *time.Time     `json:"imported,omitempty"`
	LastResult  *ImportSummary `json:"last_result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PluginConfig returns the per-source settings for a plugin role, never nil.
func (s *Source) PluginConfig(role string) map[string]any {
	if cfg, ok := s.Config[role]; ok && cfg != nil {
		return cfg
	}
	return map[string]any{}
}

// Pipeline returns the source's pipeline state, creating it on first access.
func (s *Source) Pipeline() *PipelineState {
	if s.State == nil {
		s.State = NewPipelineState()
	}
	return s.State
}

// DueForImport reports whether a scheduled import should run at now.
// A source with an import already in progress is always due.
func (s *Source) DueForImport(period time.Duration, now time.Time) bool {
	if s.State != nil && s.State.InProgress(KindImport) {
		return true
	}
	if period < 0 {
		return false
	}
	if s.Imported == nil {
		return true
	}
	return !s.Imported.Add(period).After(now)
}
