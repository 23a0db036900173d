package processor

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// RecordStore persists application records.
type RecordStore interface {
	Load(ctx context.Context, id string) (*domain.Record, error)
	Create(ctx context.Context, rec *domain.Record) (string, error)
	Update(ctx context.Context, rec *domain.Record) error
	Delete(ctx context.Context, ids []string) error
	// FindUnique finds a record of the source whose field equals value.
	FindUnique(ctx context.Context, sourceID, field, value string) (string, bool, error)
}

// LinkStore persists the links between records and the items that produced them.
// A limit of zero means no limit.
type LinkStore interface {
	FindByKey(ctx context.Context, recordType, sourceID string, key domain.UniqueKey, value string) (string, bool, error)
	Hash(ctx context.Context, recordType, recordID string) (string, error)
	Save(ctx context.Context, link *domain.ItemLink) error
	CountBySource(ctx context.Context, recordType, sourceID string) (int, error)
	ListBySource(ctx context.Context, recordType, sourceID string, limit int) ([]string, error)
	CountExpired(ctx context.Context, recordType, sourceID string, before time.Time) (int, error)
	ListExpired(ctx context.Context, recordType, sourceID string, before time.Time, limit int) ([]string, error)
	Delete(ctx context.Context, recordType string, recordIDs []string) error
}
