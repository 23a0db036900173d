package fetcher

import (
	"context"
	"time"
)

// HTTPState is the conditional-request state remembered for a source.
type HTTPState struct {
	SourceID          string     `db:"source_id"          json:"source_id"`
	URL               string     `db:"url"                json:"url"`
	ETag              *string    `db:"etag"               json:"etag,omitempty"`
	LastModified      *string    `db:"last_modified"      json:"last_modified,omitempty"`
	LastFetchedAt     *time.Time `db:"last_fetched_at"    json:"last_fetched_at,omitempty"`
	LastStatus        int        `db:"last_status"        json:"last_status"`
	ConsecutiveErrors int        `db:"consecutive_errors" json:"consecutive_errors"`
	LastError         *string    `db:"last_error"         json:"last_error,omitempty"`
	CreatedAt         time.Time  `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"         json:"updated_at"`
}

// HTTPFetchSuccess carries the caching headers of a successful fetch.
type HTTPFetchSuccess struct {
	URL          string
	ETag         *string
	LastModified *string
	StatusCode   int
}

// HTTPStateStore persists HTTPState between imports.
type HTTPStateStore interface {
	GetOrCreate(ctx context.Context, sourceID, url string) (*HTTPState, error)
	UpdateSuccess(ctx context.Context, sourceID string, result HTTPFetchSuccess) error
	UpdateError(ctx context.Context, sourceID, errMsg string) error
	Delete(ctx context.Context, sourceID string) error
}
