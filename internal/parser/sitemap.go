package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const (
	sitemapParserID = "sitemap"
	dateOnlyFormat  = "2006-01-02"
)

type xmlURLSet struct {
	URLs []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type xmlSitemapIndex struct {
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

type xmlSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// SitemapParser reads sitemap urlsets and sitemap indexes.
type SitemapParser struct {
	log infralogger.Logger
}

// NewSitemapFromConfig is the registry factory for "sitemap".
func NewSitemapFromConfig(_ map[string]any, log infralogger.Logger) (Parser, error) {
	return &SitemapParser{log: log}, nil
}

func (p *SitemapParser) Parse(ctx context.Context, src *domain.Source, fr *domain.FetchResult) (*domain.ParserResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := fr.GetRaw()
	if err != nil {
		return nil, parseErr(src, sitemapParserID, err)
	}

	root, err := rootElement(raw)
	if err != nil {
		return nil, parseErr(src, sitemapParserID, err)
	}

	result := &domain.ParserResult{Meta: domain.FeedMeta{Link: fr.URL}}
	switch root {
	case "urlset":
		var set xmlURLSet
		if err = xml.Unmarshal(raw, &set); err != nil {
			return nil, parseErr(src, sitemapParserID, err)
		}
		for _, u := range set.URLs {
			result.Items = append(result.Items, domain.Item{
				"loc":        strings.TrimSpace(u.Loc),
				"lastmod":    normalizeLastMod(u.LastMod),
				"changefreq": strings.TrimSpace(u.ChangeFreq),
				"priority":   strings.TrimSpace(u.Priority),
			})
		}
	case "sitemapindex":
		var index xmlSitemapIndex
		if err = xml.Unmarshal(raw, &index); err != nil {
			return nil, parseErr(src, sitemapParserID, err)
		}
		for _, s := range index.Sitemaps {
			result.Items = append(result.Items, domain.Item{
				"loc":     strings.TrimSpace(s.Loc),
				"lastmod": normalizeLastMod(s.LastMod),
				"type":    "sitemap",
			})
		}
	default:
		return nil, parseErr(src, sitemapParserID, fmt.Errorf("unexpected root element <%s>", root))
	}

	p.log.Debug("Parsed sitemap",
		infralogger.SourceID(src.ID),
		infralogger.String("root", root),
		infralogger.Int("items", len(result.Items)),
	)
	return result, nil
}

func rootElement(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", errors.New("no root element")
		}
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// normalizeLastMod renders RFC 3339 and date-only values as RFC 3339, and
// passes anything else through unchanged.
func normalizeLastMod(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	if t, err := time.Parse(dateOnlyFormat, trimmed); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return trimmed
}
