package sources

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

func TestRenderTable(t *testing.T) {
	t.Parallel()

	imported := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	pending := &domain.Source{ID: "b", TypeID: "products"}
	pending.Pipeline().State(domain.StageClear).Report(10, 5)

	var buf bytes.Buffer
	RenderTable(&buf, []*domain.Source{
		{ID: "a", TypeID: "news_feed", Imported: &imported, LastResult: &domain.ImportSummary{Created: 7}},
		pending,
	})

	out := buf.String()
	assert.Contains(t, out, "2026-03-01 09:30")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "[clear]")
}

func TestSourceConfig(t *testing.T) {
	t.Parallel()

	cfg := sourceConfig(map[string]map[string]string{
		domain.RoleFetcher: {"url": "https://example.com/rss"},
		domain.RoleParser:  nil,
	})
	assert.Equal(t, domain.SourceConfig{domain.RoleFetcher: {"url": "https://example.com/rss"}}, cfg)
}
