package domain

import "time"

// UniqueKey names a link column usable for matching items to records.
type UniqueKey string

const (
	KeyURL  UniqueKey = "url"
	KeyGUID UniqueKey = "guid"
)

// Record is an application record produced from a parsed item.
type Record struct {
	ID        string         `db:"id"          json:"id"`
	Type      string         `db:"record_type" json:"type"`
	SourceID  string         `db:"source_id"   json:"source_id"`
	Fields    map[string]any `db:"-"           json:"fields"`
	CreatedAt time.Time      `db:"created_at"  json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"  json:"updated_at"`

	// Link is refreshed on every processing of the record.
	Link  ItemLink `db:"-" json:"-"`
	IsNew bool     `db:"-" json:"-"`
}

// ItemLink associates a record with the source item that produced it.
type ItemLink struct {
	RecordType   string    `db:"record_type"    json:"record_type"`
	RecordID     string    `db:"record_id"      json:"record_id"`
	SourceID     string    `db:"source_id"      json:"source_id"`
	SourceTypeID string    `db:"source_type_id" json:"source_type_id"`
	Hash         string    `db:"hash"           json:"hash"`
	URL          string    `db:"url"            json:"url,omitempty"`
	GUID         string    `db:"guid"           json:"guid,omitempty"`
	Imported     time.Time `db:"imported"       json:"imported"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
}

// Key returns the link value for a unique key.
func (l *ItemLink) Key(k UniqueKey) string {
	switch k {
	case KeyURL:
		return l.URL
	case KeyGUID:
		return l.GUID
	default:
		return ""
	}
}

// ImportSummary is the outcome of a completed pipeline.
type ImportSummary struct {
	Pipeline   PipelineKind `json:"pipeline"`
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Deleted    int          `json:"deleted"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	FinishedAt time.Time    `json:"finished_at"`
}
