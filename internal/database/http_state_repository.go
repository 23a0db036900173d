package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
)

// httpStateSelectColumns lists columns for SELECT queries on http_state.
const httpStateSelectColumns = `source_id, url, etag, last_modified, last_fetched_at,
	last_status, consecutive_errors, last_error, created_at, updated_at`

// HTTPStateRepository handles database operations for conditional-request state.
type HTTPStateRepository struct {
	db *sqlx.DB
}

// NewHTTPStateRepository creates a new HTTP state repository.
func NewHTTPStateRepository(db *sqlx.DB) *HTTPStateRepository {
	return &HTTPStateRepository{db: db}
}

// GetOrCreate returns the state of a source, creating a default entry if none exists.
// Uses INSERT ... ON CONFLICT DO NOTHING then SELECT.
func (r *HTTPStateRepository) GetOrCreate(ctx context.Context, sourceID, url string) (*fetcher.HTTPState, error) {
	insertQuery := `INSERT INTO http_state (source_id, url) VALUES ($1, $2) ON CONFLICT (source_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, insertQuery, sourceID, url); err != nil {
		return nil, fmt.Errorf("failed to insert http state: %w", err)
	}

	selectQuery := `SELECT ` + httpStateSelectColumns + ` FROM http_state WHERE source_id = $1`

	var state fetcher.HTTPState
	if err := r.db.GetContext(ctx, &state, selectQuery, sourceID); err != nil {
		return nil, fmt.Errorf("failed to select http state: %w", err)
	}

	return &state, nil
}

// UpdateSuccess records a successful fetch.
// Resets consecutive_errors to 0 and clears last_error.
func (r *HTTPStateRepository) UpdateSuccess(ctx context.Context, sourceID string, result fetcher.HTTPFetchSuccess) error {
	query := `
		UPDATE http_state
		SET url = $2, etag = $3, last_modified = $4, last_status = $5, last_fetched_at = NOW(),
			consecutive_errors = 0, last_error = NULL, updated_at = NOW()
		WHERE source_id = $1
	`

	execResult, err := r.db.ExecContext(ctx, query, sourceID, result.URL, result.ETag, result.LastModified, result.StatusCode)
	return execRequireRows(execResult, err, fmt.Errorf("http state not found: %s", sourceID))
}

// UpdateError records a fetch failure, incrementing consecutive_errors.
func (r *HTTPStateRepository) UpdateError(ctx context.Context, sourceID, errMsg string) error {
	query := `
		UPDATE http_state
		SET last_fetched_at = NOW(), consecutive_errors = consecutive_errors + 1,
			last_error = $2, updated_at = NOW()
		WHERE source_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, sourceID, errMsg)
	return execRequireRows(result, err, fmt.Errorf("http state not found: %s", sourceID))
}

// Delete forgets the state of a source. Deleting missing state is not an error.
func (r *HTTPStateRepository) Delete(ctx context.Context, sourceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM http_state WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("failed to delete http state: %w", err)
	}
	return nil
}
