package processor

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/plugin"
)

// How matched items are handled.
const (
	UpdateSkip    = "skip"
	UpdateReplace = "replace"
	UpdateMerge   = "update"
)

// How records missing from a completed import are handled.
const (
	NonExistentSkip   = "skip"
	NonExistentDelete = "delete"
)

// ExpireNever disables expiry.
const ExpireNever time.Duration = -1

const defaultRecordType = "item"

// Mapping routes one item source key to one record target.
type Mapping struct {
	Source string `json:"source"           mapstructure:"source"`
	Target string `json:"target"           mapstructure:"target"`
	Unique bool   `json:"unique,omitempty" mapstructure:"unique"`
}

// Config configures a Processor.
type Config struct {
	RecordType     string    `mapstructure:"record_type"`
	Mappings       []Mapping `mapstructure:"mappings"`
	UpdateExisting string    `mapstructure:"update_existing"`
	// InsertNew defaults to true.
	InsertNew         *bool    `mapstructure:"insert_new"`
	SkipHashCheck     bool     `mapstructure:"skip_hash_check"`
	UpdateNonExistent string   `mapstructure:"update_non_existent"`
	Expire            string   `mapstructure:"expire"`
	Limit             int      `mapstructure:"limit"`
	RequiredFields    []string `mapstructure:"required_fields"`

	expireAfter time.Duration
}

// DecodeConfig builds a Config from a settings block.
func DecodeConfig(in map[string]any) (Config, error) {
	var cfg Config
	if err := plugin.Decode(in, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.RecordType == "" {
		c.RecordType = defaultRecordType
	}
	switch c.UpdateExisting {
	case "":
		c.UpdateExisting = UpdateSkip
	case UpdateSkip, UpdateReplace, UpdateMerge:
	default:
		return &domain.ValidationError{Field: "update_existing", Message: fmt.Sprintf("unknown mode %q", c.UpdateExisting)}
	}
	switch c.UpdateNonExistent {
	case "":
		c.UpdateNonExistent = NonExistentSkip
	case NonExistentSkip, NonExistentDelete:
	default:
		return &domain.ValidationError{Field: "update_non_existent", Message: fmt.Sprintf("unknown mode %q", c.UpdateNonExistent)}
	}
	if c.Limit < 0 {
		return &domain.ValidationError{Field: "limit", Message: "must not be negative"}
	}
	for i, m := range c.Mappings {
		if m.Source == "" || m.Target == "" {
			return &domain.ValidationError{Field: fmt.Sprintf("mappings[%d]", i), Message: "source and target are required"}
		}
	}

	switch e := strings.TrimSpace(strings.ToLower(c.Expire)); e {
	case "", "never", "-1":
		c.expireAfter = ExpireNever
	default:
		d, err := time.ParseDuration(e)
		if err != nil || d <= 0 {
			return &domain.ValidationError{Field: "expire", Message: fmt.Sprintf("invalid duration %q", c.Expire)}
		}
		c.expireAfter = d
	}
	return nil
}

func (c *Config) insertNew() bool {
	return c.InsertNew == nil || *c.InsertNew
}
