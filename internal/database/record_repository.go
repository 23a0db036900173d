package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

type recordRow struct {
	ID        string    `db:"id"`
	Type      string    `db:"record_type"`
	SourceID  string    `db:"source_id"`
	Fields    []byte    `db:"fields"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// RecordRepository stores the records created by imports.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Load returns a record by ID.
func (r *RecordRepository) Load(ctx context.Context, id string) (*domain.Record, error) {
	query := `SELECT id, record_type, source_id, fields, created_at, updated_at FROM records WHERE id = $1`

	var row recordRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, domain.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	rec := &domain.Record{
		ID:        row.ID,
		Type:      row.Type,
		SourceID:  row.SourceID,
		Fields:    make(map[string]any),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := scanJSON(row.Fields, &rec.Fields); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create inserts a record and returns its ID.
func (r *RecordRepository) Create(ctx context.Context, rec *domain.Record) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	fields, err := jsonColumn(rec.Fields)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO records (id, record_type, source_id, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err = r.db.ExecContext(ctx, query, id, rec.Type, rec.SourceID, fields, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	return id, nil
}

// Update overwrites a record's fields.
func (r *RecordRepository) Update(ctx context.Context, rec *domain.Record) error {
	fields, err := jsonColumn(rec.Fields)
	if err != nil {
		return err
	}

	query := `UPDATE records SET fields = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, rec.ID, fields, rec.UpdatedAt)
	return execRequireRows(result, err, fmt.Errorf("record %s: %w", rec.ID, domain.ErrRecordNotFound))
}

// Delete removes records by ID.
func (r *RecordRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// FindUnique finds a record of the source whose field equals value.
func (r *RecordRepository) FindUnique(ctx context.Context, sourceID, field, value string) (string, bool, error) {
	query := `SELECT id FROM records WHERE source_id = $1 AND fields->>$2 = $3 ORDER BY created_at LIMIT 1`

	var id string
	if err := r.db.GetContext(ctx, &id, query, sourceID, field, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to find record by %s: %w", field, err)
	}
	return id, true, nil
}
