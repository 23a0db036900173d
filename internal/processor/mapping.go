package processor

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// TargetFunc writes a mapped value to a record in place of the default field write.
type TargetFunc func(rec *domain.Record, target string, value any) error

// Parent sources resolve against the document and the source, not the item.
const (
	parentTitle       = "parent:title"
	parentDescription = "parent:description"
	parentLink        = "parent:link"
	parentSourceID    = "parent:source_id"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func defaultTargets() map[string]TargetFunc {
	return map[string]TargetFunc{
		string(domain.KeyGUID): func(rec *domain.Record, _ string, v any) error {
			rec.Link.GUID = toString(v)
			return nil
		},
		string(domain.KeyURL): func(rec *domain.Record, _ string, v any) error {
			rec.Link.URL = toString(v)
			return nil
		},
		"tags":         mapTags,
		"published_at": mapTime,
	}
}

func sourceValue(src *domain.Source, meta domain.FeedMeta, item domain.Item, key string) any {
	switch key {
	case parentTitle:
		return meta.Title
	case parentDescription:
		return meta.Description
	case parentLink:
		return meta.Link
	case parentSourceID:
		return src.ID
	}
	if v, ok := item[key]; ok && v != nil {
		return v
	}
	return ""
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func mapTags(rec *domain.Record, target string, v any) error {
	var tags []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			add(s)
		}
	case []any:
		for _, s := range t {
			add(toString(s))
		}
	default:
		for _, s := range strings.Split(toString(v), ",") {
			add(s)
		}
	}
	if len(tags) == 0 {
		delete(rec.Fields, target)
		return nil
	}
	rec.Fields[target] = tags
	return nil
}

func mapTime(rec *domain.Record, target string, v any) error {
	s := toString(v)
	if s == "" {
		delete(rec.Fields, target)
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			rec.Fields[target] = t.UTC().Format(time.RFC3339)
			return nil
		}
	}
	return &domain.ValidationError{Field: target, Message: fmt.Sprintf("unrecognised time %q", s)}
}

// mapItem clears every mapped target, then writes each mapping's value.
func (p *Processor) mapItem(src *domain.Source, meta domain.FeedMeta, item domain.Item, rec *domain.Record) error {
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	for _, m := range p.cfg.Mappings {
		switch domain.UniqueKey(m.Target) {
		case domain.KeyGUID:
			rec.Link.GUID = ""
		case domain.KeyURL:
			rec.Link.URL = ""
		default:
			delete(rec.Fields, m.Target)
		}
	}

	for _, m := range p.cfg.Mappings {
		value := sourceValue(src, meta, item, m.Source)
		if fn, ok := p.targets[m.Target]; ok {
			if err := fn(rec, m.Target, value); err != nil {
				return err
			}
			continue
		}
		rec.Fields[m.Target] = value
	}
	return nil
}

func (p *Processor) validate(rec *domain.Record) error {
	for _, field := range p.cfg.RequiredFields {
		var v any
		switch domain.UniqueKey(field) {
		case domain.KeyGUID:
			v = rec.Link.GUID
		case domain.KeyURL:
			v = rec.Link.URL
		default:
			v = rec.Fields[field]
		}
		if toString(v) == "" {
			return &domain.ValidationError{Field: field, Message: "is required"}
		}
	}
	return nil
}
