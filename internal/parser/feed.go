package parser

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const feedParserID = "syndication"

// FeedParser parses RSS, Atom and JSON Feed documents in one pass.
type FeedParser struct {
	log infralogger.Logger
}

// NewFeedFromConfig is the registry factory for "syndication".
func NewFeedFromConfig(_ map[string]any, log infralogger.Logger) (Parser, error) {
	return &FeedParser{log: log}, nil
}

func (p *FeedParser) Parse(ctx context.Context, src *domain.Source, fr *domain.FetchResult) (*domain.ParserResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := fr.GetRaw()
	if err != nil {
		return nil, parseErr(src, feedParserID, err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, parseErr(src, feedParserID, err)
	}

	result := &domain.ParserResult{
		Meta: domain.FeedMeta{
			Title:       parsed.Title,
			Description: parsed.Description,
			Link:        parsed.Link,
		},
		Items: make([]domain.Item, 0, len(parsed.Items)),
	}
	for _, entry := range parsed.Items {
		result.Items = append(result.Items, feedItem(entry))
	}

	p.log.Debug("Parsed feed",
		infralogger.SourceID(src.ID),
		infralogger.String("feed_type", parsed.FeedType),
		infralogger.Int("items", len(result.Items)),
	)
	return result, nil
}

func feedItem(entry *gofeed.Item) domain.Item {
	link := extractLink(entry)
	guid := entry.GUID
	if guid == "" {
		guid = link
	}

	item := domain.Item{
		"guid":        guid,
		"url":         link,
		"title":       entry.Title,
		"description": entry.Description,
		"content":     entry.Content,
		"published":   formatTime(entry.PublishedParsed, entry.Published),
		"updated":     formatTime(entry.UpdatedParsed, entry.Updated),
	}
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item["author_name"] = entry.Authors[0].Name
		item["author_email"] = entry.Authors[0].Email
	}
	if len(entry.Categories) > 0 {
		item["tags"] = entry.Categories
	}
	if entry.Image != nil {
		item["image"] = entry.Image.URL
	}
	if len(entry.Enclosures) > 0 {
		urls := make([]string, 0, len(entry.Enclosures))
		for _, enc := range entry.Enclosures {
			urls = append(urls, enc.URL)
		}
		item["enclosures"] = urls
	}
	return item
}

// extractLink prefers the explicit link, falling back to a GUID that is a URL.
func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

func formatTime(t *time.Time, raw string) string {
	if t == nil {
		return raw
	}
	return t.UTC().Format(time.RFC3339)
}
