package domain

import (
	"fmt"
	"os"
	"strings"
)

// Item is one parsed element of a source: string keys to scalar or structured values.
type Item map[string]any

// String returns the value under key rendered as a string, or "".
func (i Item) String(key string) string {
	v, ok := i[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return fmt.Sprint(t)
	}
}

// FeedMeta describes the parsed document as a whole.
type FeedMeta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
}

// ParserResult is one chunk of parsed items plus document metadata.
type ParserResult struct {
	Items []Item
	Meta  FeedMeta
}

// FetchResult is the raw content handle held while an import is in progress.
type FetchResult struct {
	URL         string `json:"url,omitempty"`
	Path        string `json:"path,omitempty"`
	Raw         []byte `json:"raw,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	// Temporary marks Path as owned by the importer and removed on cleanup.
	Temporary bool `json:"temporary,omitempty"`
}

// GetRaw returns the fetched bytes, reading the file when only a path is held.
func (r *FetchResult) GetRaw() ([]byte, error) {
	if r.Raw != nil {
		return r.Raw, nil
	}
	if r.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("read fetched file %s: %w", r.Path, err)
	}
	return data, nil
}

// GetFilePath returns a file holding the fetched content, spilling raw bytes
// to a temporary file when needed.
func (r *FetchResult) GetFilePath() (string, error) {
	if r.Path != "" {
		return r.Path, nil
	}
	f, err := os.CreateTemp("", "importer-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	if _, err = f.Write(r.Raw); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	r.Path = f.Name()
	r.Raw = nil
	r.Temporary = true
	return r.Path, nil
}

// Cleanup removes a temporary file owned by the result.
func (r *FetchResult) Cleanup() error {
	if r == nil || !r.Temporary || r.Path == "" {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", r.Path, err)
	}
	return nil
}
