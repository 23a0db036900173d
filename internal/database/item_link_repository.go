package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// ItemLinkRepository tracks which record each imported item produced.
type ItemLinkRepository struct {
	db *sqlx.DB
}

// NewItemLinkRepository creates a new item link repository.
func NewItemLinkRepository(db *sqlx.DB) *ItemLinkRepository {
	return &ItemLinkRepository{db: db}
}

// FindByKey returns the record linked to an item by guid or url.
func (r *ItemLinkRepository) FindByKey(
	ctx context.Context, recordType, sourceID string, key domain.UniqueKey, value string,
) (string, bool, error) {
	var column string
	switch key {
	case domain.KeyGUID:
		column = "guid"
	case domain.KeyURL:
		column = "url"
	default:
		return "", false, fmt.Errorf("unsupported link key %q", key)
	}

	query := `SELECT record_id FROM item_links
		WHERE record_type = $1 AND source_id = $2 AND ` + column + ` = $3
		ORDER BY created_at LIMIT 1`

	var id string
	if err := r.db.GetContext(ctx, &id, query, recordType, sourceID, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to find item link: %w", err)
	}
	return id, true, nil
}

// Hash returns the stored item fingerprint of a record.
func (r *ItemLinkRepository) Hash(ctx context.Context, recordType, recordID string) (string, error) {
	query := `SELECT hash FROM item_links WHERE record_type = $1 AND record_id = $2`

	var hash string
	if err := r.db.GetContext(ctx, &hash, query, recordType, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("item link %s: %w", recordID, domain.ErrRecordNotFound)
		}
		return "", fmt.Errorf("failed to get item hash: %w", err)
	}
	return hash, nil
}

// Save inserts or updates a link.
func (r *ItemLinkRepository) Save(ctx context.Context, link *domain.ItemLink) error {
	query := `
		INSERT INTO item_links (record_type, record_id, source_id, source_type_id, hash, url, guid, imported)
		VALUES (:record_type, :record_id, :source_id, :source_type_id, :hash, :url, :guid, :imported)
		ON CONFLICT (record_type, record_id) DO UPDATE
		SET source_id = EXCLUDED.source_id, source_type_id = EXCLUDED.source_type_id,
			hash = EXCLUDED.hash, url = EXCLUDED.url, guid = EXCLUDED.guid, imported = EXCLUDED.imported
	`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("failed to save item link: %w", err)
	}
	return nil
}

// CountBySource counts the links of a source.
func (r *ItemLinkRepository) CountBySource(ctx context.Context, recordType, sourceID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM item_links WHERE record_type = $1 AND source_id = $2`
	if err := r.db.GetContext(ctx, &n, query, recordType, sourceID); err != nil {
		return 0, fmt.Errorf("failed to count item links: %w", err)
	}
	return n, nil
}

// ListBySource lists linked record IDs, oldest import first. A limit of zero lists all.
func (r *ItemLinkRepository) ListBySource(ctx context.Context, recordType, sourceID string, limit int) ([]string, error) {
	query := `SELECT record_id FROM item_links WHERE record_type = $1 AND source_id = $2
		ORDER BY imported, record_id` + limitClause(limit)

	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, recordType, sourceID); err != nil {
		return nil, fmt.Errorf("failed to list item links: %w", err)
	}
	return ids, nil
}

// CountExpired counts links imported before the given time.
func (r *ItemLinkRepository) CountExpired(ctx context.Context, recordType, sourceID string, before time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM item_links WHERE record_type = $1 AND source_id = $2 AND imported < $3`
	if err := r.db.GetContext(ctx, &n, query, recordType, sourceID, before); err != nil {
		return 0, fmt.Errorf("failed to count expired item links: %w", err)
	}
	return n, nil
}

// ListExpired lists record IDs imported before the given time.
func (r *ItemLinkRepository) ListExpired(
	ctx context.Context, recordType, sourceID string, before time.Time, limit int,
) ([]string, error) {
	query := `SELECT record_id FROM item_links WHERE record_type = $1 AND source_id = $2 AND imported < $3
		ORDER BY imported, record_id` + limitClause(limit)

	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, recordType, sourceID, before); err != nil {
		return nil, fmt.Errorf("failed to list expired item links: %w", err)
	}
	return ids, nil
}

// Delete removes the links of the given records.
func (r *ItemLinkRepository) Delete(ctx context.Context, recordType string, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	query := `DELETE FROM item_links WHERE record_type = $1 AND record_id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, recordType, pq.Array(recordIDs)); err != nil {
		return fmt.Errorf("failed to delete item links: %w", err)
	}
	return nil
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
