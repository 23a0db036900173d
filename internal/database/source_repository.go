package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const sourceSelectColumns = `id, type_id, config, state, fetch_result, imported, last_result, created_at, updated_at`

type sourceRow struct {
	ID          string     `db:"id"`
	TypeID      string     `db:"type_id"`
	Config      []byte     `db:"config"`
	State       []byte     `db:"state"`
	FetchResult []byte     `db:"fetch_result"`
	Imported    *time.Time `db:"imported"`
	LastResult  []byte     `db:"last_result"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r *sourceRow) toDomain() (*domain.Source, error) {
	src := &domain.Source{
		ID:        r.ID,
		TypeID:    r.TypeID,
		Imported:  r.Imported,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := scanJSON(r.Config, &src.Config); err != nil {
		return nil, err
	}
	if len(r.State) > 0 {
		src.State = domain.NewPipelineState()
		if err := scanJSON(r.State, src.State); err != nil {
			return nil, err
		}
	}
	if len(r.FetchResult) > 0 {
		src.FetchResult = &domain.FetchResult{}
		if err := scanJSON(r.FetchResult, src.FetchResult); err != nil {
			return nil, err
		}
	}
	if len(r.LastResult) > 0 {
		src.LastResult = &domain.ImportSummary{}
		if err := scanJSON(r.LastResult, src.LastResult); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// SourceRepository handles database operations for sources and their pipeline state.
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create inserts a source, assigning an ID when empty.
func (r *SourceRepository) Create(ctx context.Context, src *domain.Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	cfg, err := jsonColumn(src.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sources (id, type_id, config)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	if err = r.db.QueryRowxContext(ctx, query, src.ID, src.TypeID, cfg).
		Scan(&src.CreatedAt, &src.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	return nil
}

// Get returns a source by ID.
func (r *SourceRepository) Get(ctx context.Context, id string) (*domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources WHERE id = $1`

	var row sourceRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source %s: %w", id, domain.ErrSourceNotFound)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return row.toDomain()
}

// List returns every source ordered by ID.
func (r *SourceRepository) List(ctx context.Context) ([]*domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources ORDER BY id`

	var rows []sourceRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	sources := make([]*domain.Source, 0, len(rows))
	for i := range rows {
		src, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", rows[i].ID, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Save persists the mutable fields of a source: configuration, pipeline
// state, fetch result and import outcome.
func (r *SourceRepository) Save(ctx context.Context, src *domain.Source) error {
	cfg, err := jsonColumn(src.Config)
	if err != nil {
		return err
	}
	var state any
	if !src.State.Empty() {
		if state, err = jsonColumn(src.State); err != nil {
			return err
		}
	}
	fetchResult, err := jsonColumn(src.FetchResult)
	if err != nil {
		return err
	}
	lastResult, err := jsonColumn(src.LastResult)
	if err != nil {
		return err
	}

	query := `
		UPDATE sources
		SET config = $2, state = $3, fetch_result = $4, imported = $5,
			last_result = $6, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, src.ID, cfg, state, fetchResult, src.Imported, lastResult)
	return execRequireRows(result, err, fmt.Errorf("source %s: %w", src.ID, domain.ErrSourceNotFound))
}

// Delete removes a source.
func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	return execRequireRows(result, err, fmt.Errorf("source %s: %w", id, domain.ErrSourceNotFound))
}
