// Package memory provides in-process stores for tests and for running the
// importer without a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
)

// Sources keeps sources as serialised snapshots, so callers never share state
// with the store.
type Sources struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewSources creates an empty source store.
func NewSources() *Sources {
	return &Sources{data: make(map[string][]byte)}
}

// Create stores a new source, assigning an ID when empty.
func (s *Sources) Create(_ context.Context, src *domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if _, ok := s.data[src.ID]; ok {
		return fmt.Errorf("source %s already exists", src.ID)
	}
	now := time.Now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now
	return s.put(src)
}

// Get returns a copy of a source.
func (s *Sources) Get(_ context.Context, id string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, domain.ErrSourceNotFound)
	}
	var src domain.Source
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("decode source %s: %w", id, err)
	}
	return &src, nil
}

// Save overwrites an existing source.
func (s *Sources) Save(_ context.Context, src *domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[src.ID]; !ok {
		return fmt.Errorf("source %s: %w", src.ID, domain.ErrSourceNotFound)
	}
	src.UpdatedAt = time.Now().UTC()
	return s.put(src)
}

// List returns copies of every source ordered by ID.
func (s *Sources) List(ctx context.Context) ([]*domain.Source, error) {
	s.mu.RLock()
	ids := slices.Sorted(maps.Keys(s.data))
	s.mu.RUnlock()

	out := make([]*domain.Source, 0, len(ids))
	for _, id := range ids {
		src, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// Delete removes a source.
func (s *Sources) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return fmt.Errorf("source %s: %w", id, domain.ErrSourceNotFound)
	}
	delete(s.data, id)
	return nil
}

func (s *Sources) put(src *domain.Source) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode source %s: %w", src.ID, err)
	}
	s.data[src.ID] = raw
	return nil
}

// Records stores application records.
type Records struct {
	mu   sync.RWMutex
	data map[string]domain.Record
}

// NewRecords creates an empty record store.
func NewRecords() *Records {
	return &Records{data: make(map[string]domain.Record)}
}

func cloneRecord(r domain.Record) *domain.Record {
	r.Fields = maps.Clone(r.Fields)
	return &r
}

// Load returns a copy of a record.
func (s *Records) Load(_ context.Context, id string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrRecordNotFound)
	}
	return cloneRecord(rec), nil
}

// Create stores a new record and returns its ID.
func (s *Records) Create(_ context.Context, rec *domain.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	stored := *cloneRecord(*rec)
	stored.ID = id
	stored.IsNew = false
	s.data[id] = stored
	return id, nil
}

// Update overwrites an existing record.
func (s *Records) Update(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[rec.ID]; !ok {
		return fmt.Errorf("record %s: %w", rec.ID, domain.ErrRecordNotFound)
	}
	stored := *cloneRecord(*rec)
	stored.IsNew = false
	s.data[rec.ID] = stored
	return nil
}

// Delete removes records; unknown IDs are ignored.
func (s *Records) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.data, id)
	}
	return nil
}

// FindUnique finds a record of the source whose field renders as value.
func (s *Records) FindUnique(_ context.Context, sourceID, field, value string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range slices.Sorted(maps.Keys(s.data)) {
		rec := s.data[id]
		if rec.SourceID != sourceID {
			continue
		}
		if v, ok := rec.Fields[field]; ok && fmt.Sprint(v) == value {
			return id, true, nil
		}
	}
	return "", false, nil
}

// Count returns the number of stored records.
func (s *Records) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// All returns copies of every record ordered by ID.
func (s *Records) All() []*domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Record, 0, len(s.data))
	for _, id := range slices.Sorted(maps.Keys(s.data)) {
		out = append(out, cloneRecord(s.data[id]))
	}
	return out
}

type linkKey struct {
	recordType string
	recordID   string
}

// Links stores item links.
type Links struct {
	mu   sync.RWMutex
	data map[linkKey]domain.ItemLink
}

// NewLinks creates an empty link store.
func NewLinks() *Links {
	return &Links{data: make(map[linkKey]domain.ItemLink)}
}

// FindByKey returns the record linked to the item with the given guid or url.
func (s *Links) FindByKey(_ context.Context, recordType, sourceID string, key domain.UniqueKey, value string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.sorted(recordType, sourceID) {
		if l.Key(key) == value {
			return l.RecordID, true, nil
		}
	}
	return "", false, nil
}

// Hash returns the stored fingerprint of a record's item.
func (s *Links) Hash(_ context.Context, recordType, recordID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.data[linkKey{recordType, recordID}]
	if !ok {
		return "", fmt.Errorf("link %s/%s: %w", recordType, recordID, domain.ErrRecordNotFound)
	}
	return l.Hash, nil
}

// Save inserts or replaces a link.
func (s *Links) Save(_ context.Context, link *domain.ItemLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := linkKey{link.RecordType, link.RecordID}
	stored := *link
	if prev, ok := s.data[k]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.data[k] = stored
	return nil
}

// CountBySource counts the links of a source.
func (s *Links) CountBySource(_ context.Context, recordType, sourceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sorted(recordType, sourceID)), nil
}

// ListBySource lists linked record IDs of a source, oldest import first.
func (s *Links) ListBySource(_ context.Context, recordType, sourceID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ids(s.sorted(recordType, sourceID), limit), nil
}

// CountExpired counts links imported before the given time.
func (s *Links) CountExpired(_ context.Context, recordType, sourceID string, before time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.expired(recordType, sourceID, before)), nil
}

// ListExpired lists record IDs imported before the given time.
func (s *Links) ListExpired(_ context.Context, recordType, sourceID string, before time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ids(s.expired(recordType, sourceID, before), limit), nil
}

// Delete removes the links of the given records.
func (s *Links) Delete(_ context.Context, recordType string, recordIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range recordIDs {
		delete(s.data, linkKey{recordType, id})
	}
	return nil
}

// Get returns a copy of a link.
func (s *Links) Get(recordType, recordID string) (domain.ItemLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.data[linkKey{recordType, recordID}]
	return l, ok
}

// SetImported rewrites a link's import time.
func (s *Links) SetImported(recordType, recordID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := linkKey{recordType, recordID}
	if l, ok := s.data[k]; ok {
		l.Imported = at
		s.data[k] = l
	}
}

func (s *Links) sorted(recordType, sourceID string) []domain.ItemLink {
	var out []domain.ItemLink
	for k, l := range s.data {
		if k.recordType == recordType && l.SourceID == sourceID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Imported.Equal(out[j].Imported) {
			return out[i].Imported.Before(out[j].Imported)
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out
}

func (s *Links) expired(recordType, sourceID string, before time.Time) []domain.ItemLink {
	return slices.DeleteFunc(s.sorted(recordType, sourceID), func(l domain.ItemLink) bool {
		return !l.Imported.Before(before)
	})
}

func ids(links []domain.ItemLink, limit int) []string {
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.RecordID)
	}
	return out
}

// HTTPStates stores conditional-request state.
type HTTPStates struct {
	mu   sync.Mutex
	data map[string]fetcher.HTTPState
}

// NewHTTPStates creates an empty HTTP state store.
func NewHTTPStates() *HTTPStates {
	return &HTTPStates{data: make(map[string]fetcher.HTTPState)}
}

// GetOrCreate returns the state of a source, creating it when missing.
func (s *HTTPStates) GetOrCreate(_ context.Context, sourceID, url string) (*fetcher.HTTPState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data[sourceID]
	if !ok {
		now := time.Now().UTC()
		st = fetcher.HTTPState{SourceID: sourceID, URL: url, CreatedAt: now, UpdatedAt: now}
		s.data[sourceID] = st
	}
	return &st, nil
}

// UpdateSuccess records a successful fetch and resets the error count.
func (s *HTTPStates) UpdateSuccess(_ context.Context, sourceID string, result fetcher.HTTPFetchSuccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	st := s.data[sourceID]
	st.SourceID = sourceID
	st.URL = result.URL
	st.ETag = result.ETag
	st.LastModified = result.LastModified
	st.LastStatus = result.StatusCode
	st.LastFetchedAt = &now
	st.ConsecutiveErrors = 0
	st.LastError = nil
	st.UpdatedAt = now
	s.data[sourceID] = st
	return nil
}

// UpdateError records a failed fetch.
func (s *HTTPStates) UpdateError(_ context.Context, sourceID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.data[sourceID]
	st.SourceID = sourceID
	st.ConsecutiveErrors++
	st.LastError = &errMsg
	st.UpdatedAt = time.Now().UTC()
	s.data[sourceID] = st
	return nil
}

// Delete forgets a source's state.
func (s *HTTPStates) Delete(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sourceID)
	return nil
}

// Logs collects import log entries.
type Logs struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

// NewLogs creates an empty log.
func NewLogs() *Logs {
	return &Logs{}
}

// Log appends an entry.
func (s *Logs) Log(_ context.Context, sourceID string, kind domain.PipelineKind, message string, severity domain.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, domain.LogEntry{
		ID:        int64(len(s.entries) + 1),
		SourceID:  sourceID,
		Kind:      kind,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	})
}

// Entries returns the entries of a source in insertion order; an empty
// sourceID returns all.
func (s *Logs) Entries(sourceID string) []domain.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.LogEntry
	for _, e := range s.entries {
		if sourceID == "" || e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	return out
}

// Messages returns the messages of a source in insertion order.
func (s *Logs) Messages(sourceID string) []string {
	entries := s.Entries(sourceID)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

// List returns the newest entries of a source, newest first.
func (s *Logs) List(_ context.Context, sourceID string, limit int) ([]domain.LogEntry, error) {
	entries := s.Entries(sourceID)
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return entries, nil
}
