package parser

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const htmlParserID = "html"

var errNoItemSelector = errors.New("html parser requires item_selector")

// HTMLConfig configures the HTML list parser. Each field maps an item key to a
// CSS selector relative to the item; a trailing "@attr" reads an attribute
// instead of the text, and an empty selector addresses the item itself.
type HTMLConfig struct {
	ItemSelector string            `mapstructure:"item_selector"`
	Fields       map[string]string `mapstructure:"fields"`
}

// HTMLParser extracts repeated elements of a page as items.
type HTMLParser struct {
	defaults map[string]any
	log      infralogger.Logger
}

// NewHTMLFromConfig is the registry factory for "html".
func NewHTMLFromConfig(cfg map[string]any, log infralogger.Logger) (Parser, error) {
	var probe HTMLConfig
	if err := decode(cfg, &domain.Source{}, &probe); err != nil {
		return nil, err
	}
	return &HTMLParser{defaults: cfg, log: log}, nil
}

func (p *HTMLParser) Parse(ctx context.Context, src *domain.Source, fr *domain.FetchResult) (*domain.ParserResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cfg HTMLConfig
	if err := decode(p.defaults, src, &cfg); err != nil {
		return nil, parseErr(src, htmlParserID, err)
	}
	if cfg.ItemSelector == "" {
		return nil, parseErr(src, htmlParserID, errNoItemSelector)
	}

	raw, err := fr.GetRaw()
	if err != nil {
		return nil, parseErr(src, htmlParserID, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, parseErr(src, htmlParserID, err)
	}

	result := &domain.ParserResult{
		Meta: domain.FeedMeta{
			Title: strings.TrimSpace(doc.Find("title").First().Text()),
			Link:  fr.URL,
		},
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		result.Meta.Description = strings.TrimSpace(desc)
	}

	doc.Find(cfg.ItemSelector).Each(func(_ int, s *goquery.Selection) {
		item := make(domain.Item, len(cfg.Fields))
		for key, sel := range cfg.Fields {
			item[key] = extractField(s, sel)
		}
		result.Items = append(result.Items, item)
	})

	p.log.Debug("Parsed HTML",
		infralogger.SourceID(src.ID),
		infralogger.Int("items", len(result.Items)),
	)
	return result, nil
}

func extractField(s *goquery.Selection, selector string) string {
	sel, attr, hasAttr := strings.Cut(selector, "@")
	target := s
	if sel = strings.TrimSpace(sel); sel != "" {
		target = s.Find(sel).First()
	}
	if hasAttr {
		v, _ := target.Attr(strings.TrimSpace(attr))
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(target.Text())
}
