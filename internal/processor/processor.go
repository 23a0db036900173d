// Package processor turns parsed items into persisted records: it matches
// items to earlier imports by unique keys, skips unchanged items by content
// hash, and creates or updates the rest.
package processor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
)

// ErrSkipSave, returned by a PresaveFunc, skips the item without counting a failure.
var ErrSkipSave = errors.New("skip save")

// PresaveFunc runs after mapping and validation. Returning ErrSkipSave skips
// persistence; any other error vetoes the item and counts it as failed.
type PresaveFunc func(ctx context.Context, src *domain.Source, item domain.Item, rec *domain.Record) error

// Processor persists parsed items as records.
type Processor struct {
	cfg     Config
	records RecordStore
	links   LinkStore
	sink    domain.LogSink
	log     infralogger.Logger
	targets map[string]TargetFunc
	presave []PresaveFunc
	now     func() time.Time
}

// Option customises a Processor.
type Option func(*Processor)

// WithTarget registers a target mapper.
func WithTarget(name string, fn TargetFunc) Option {
	return func(p *Processor) { p.targets[name] = fn }
}

// WithPresave adds a presave hook.
func WithPresave(fn PresaveFunc) Option {
	return func(p *Processor) { p.presave = append(p.presave, fn) }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor. The config is normalised; an invalid config is an error.
func New(
	cfg Config,
	records RecordStore,
	links LinkStore,
	sink domain.LogSink,
	log infralogger.Logger,
	opts ...Option,
) (*Processor, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if log == nil {
		log = infralogger.NewNop()
	}
	p := &Processor{
		cfg:     cfg,
		records: records,
		links:   links,
		sink:    sink,
		log:     log,
		targets: defaultTargets(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the normalised configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// Limit is the number of items or deletions handled per call; zero is unlimited.
func (p *Processor) Limit() int {
	return p.cfg.Limit
}

// ExpiryEnabled reports whether Expire has anything to do.
func (p *Processor) ExpiryEnabled() bool {
	return p.cfg.expireAfter != ExpireNever
}

// Process consumes up to Limit pending items of the source. Per-item failures
// are logged and counted; only a failure to prepare the batch is returned.
func (p *Processor) Process(ctx context.Context, src *domain.Source) error {
	ps := src.Pipeline()
	st := ps.State(domain.StageProcess)

	if p.cfg.UpdateNonExistent == NonExistentDelete && !ps.RemoveListReady && len(ps.Pending) > 0 {
		ids, err := p.links.ListBySource(ctx, p.cfg.RecordType, src.ID, 0)
		if err != nil {
			return &domain.PersistenceError{Op: "list", Cause: err}
		}
		ps.RemoveList = ids
		ps.RemoveListReady = true
	}

	n := len(ps.Pending)
	if p.cfg.Limit > 0 {
		n = min(n, p.cfg.Limit)
	}

	consumed := 0
	for _, item := range ps.Pending[:n] {
		if err := ctx.Err(); err != nil {
			break
		}
		p.processItem(ctx, src, item, st)
		consumed++
	}

	if consumed == len(ps.Pending) {
		ps.Pending = nil
	} else {
		ps.Pending = slices.Clone(ps.Pending[consumed:])
	}
	st.Report(int64(ps.ChunkSize), int64(ps.ChunkSize-len(ps.Pending)))

	return ctx.Err()
}

func (p *Processor) processItem(ctx context.Context, src *domain.Source, item domain.Item, st *progress.State) {
	ps := src.Pipeline()

	recordID, err := p.existingRecordID(ctx, src, ps.Meta, item)
	if err != nil {
		p.fail(ctx, src, st, item, nil, err)
		return
	}
	if recordID != "" {
		ps.RemoveList = slices.DeleteFunc(ps.RemoveList, func(id string) bool { return id == recordID })
	}

	if (recordID != "" && p.cfg.UpdateExisting == UpdateSkip) || (recordID == "" && !p.cfg.insertNew()) {
		st.Skipped++
		return
	}

	hash := Fingerprint(item, p.cfg.Mappings)
	if recordID != "" && !p.cfg.SkipHashCheck {
		stored, hashErr := p.links.Hash(ctx, p.cfg.RecordType, recordID)
		if hashErr != nil {
			p.fail(ctx, src, st, item, nil, &domain.PersistenceError{Op: "load hash", RecordID: recordID, Cause: hashErr})
			return
		}
		if stored == hash {
			st.Skipped++
			return
		}
	}

	rec, err := p.buildRecord(ctx, src, recordID)
	if err != nil {
		p.fail(ctx, src, st, item, nil, err)
		return
	}
	rec.Link = domain.ItemLink{
		RecordType:   p.cfg.RecordType,
		RecordID:     recordID,
		SourceID:     src.ID,
		SourceTypeID: src.TypeID,
		Hash:         hash,
		Imported:     p.now().UTC(),
	}

	if err = p.mapItem(src, ps.Meta, item, rec); err != nil {
		p.fail(ctx, src, st, item, rec, err)
		return
	}
	if err = p.validate(rec); err != nil {
		p.fail(ctx, src, st, item, rec, err)
		return
	}
	for _, hook := range p.presave {
		if err = hook(ctx, src, item, rec); err != nil {
			if errors.Is(err, ErrSkipSave) {
				st.Skipped++
				return
			}
			p.fail(ctx, src, st, item, rec, err)
			return
		}
	}

	if err = p.save(ctx, rec); err != nil {
		p.fail(ctx, src, st, item, rec, err)
		return
	}

	if rec.IsNew {
		st.Created++
	} else {
		st.Updated++
	}
}

// existingRecordID looks up unique targets in mapping order; the first match wins.
func (p *Processor) existingRecordID(ctx context.Context, src *domain.Source, meta domain.FeedMeta, item domain.Item) (string, error) {
	for _, m := range p.cfg.Mappings {
		if !m.Unique {
			continue
		}
		value := toString(sourceValue(src, meta, item, m.Source))
		if value == "" {
			continue
		}

		var (
			id    string
			found bool
			err   error
		)
		switch key := domain.UniqueKey(m.Target); key {
		case domain.KeyGUID, domain.KeyURL:
			id, found, err = p.links.FindByKey(ctx, p.cfg.RecordType, src.ID, key, value)
		default:
			id, found, err = p.records.FindUnique(ctx, src.ID, m.Target, value)
		}
		if err != nil {
			return "", &domain.PersistenceError{Op: "find " + m.Target, Cause: err}
		}
		if found {
			return id, nil
		}
	}
	return "", nil
}

func (p *Processor) buildRecord(ctx context.Context, src *domain.Source, recordID string) (*domain.Record, error) {
	now := p.now().UTC()
	if recordID == "" {
		return &domain.Record{
			Type:      p.cfg.RecordType,
			SourceID:  src.ID,
			Fields:    make(map[string]any),
			CreatedAt: now,
			UpdatedAt: now,
			IsNew:     true,
		}, nil
	}

	existing, err := p.records.Load(ctx, recordID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", RecordID: recordID, Cause: err}
	}
	if p.cfg.UpdateExisting == UpdateReplace {
		existing.Fields = make(map[string]any)
	}
	existing.UpdatedAt = now
	existing.IsNew = false
	return existing, nil
}

func (p *Processor) save(ctx context.Context, rec *domain.Record) error {
	if rec.IsNew {
		id, err := p.records.Create(ctx, rec)
		if err != nil {
			return &domain.PersistenceError{Op: "create", Cause: err}
		}
		rec.ID = id
	} else if err := p.records.Update(ctx, rec); err != nil {
		return &domain.PersistenceError{Op: "update", RecordID: rec.ID, Cause: err}
	}

	rec.Link.RecordID = rec.ID
	if err := p.links.Save(ctx, &rec.Link); err != nil {
		return &domain.PersistenceError{Op: "link", RecordID: rec.ID, Cause: err}
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, src *domain.Source, st *progress.State, item domain.Item, rec *domain.Record, err error) {
	st.Failed++

	fields := []infralogger.Field{
		infralogger.SourceID(src.ID),
		infralogger.Error(err),
		infralogger.Any("item", item),
	}
	if rec != nil {
		fields = append(fields, infralogger.Any("record", rec.Fields), infralogger.String("record_id", rec.ID))
	}
	p.log.Warn("Failed to import item", fields...)

	msg := fmt.Sprintf("%v. Original item: %s", err, canonical(item))
	if rec != nil {
		msg += fmt.Sprintf(". Record: %s", canonical(rec.Fields))
	}
	p.emit(ctx, src.ID, domain.KindImport, msg, domain.SeverityError)
}

func (p *Processor) emit(ctx context.Context, sourceID string, kind domain.PipelineKind, msg string, sev domain.Severity) {
	if p.sink != nil {
		p.sink.Log(ctx, sourceID, kind, msg, sev)
	}
}

// Finish runs the end-of-import work: records missing from the import are
// removed when configured, and the summary is emitted.
func (p *Processor) Finish(ctx context.Context, src *domain.Source) (domain.ImportSummary, error) {
	ps := src.Pipeline()
	st := ps.State(domain.StageProcess)

	var cleanErr error
	if p.cfg.UpdateNonExistent == NonExistentDelete && len(ps.RemoveList) > 0 {
		if err := p.deleteRecords(ctx, ps.RemoveList); err != nil {
			cleanErr = err
		} else {
			st.Deleted += len(ps.RemoveList)
			ps.RemoveList = nil
		}
	}

	for _, m := range p.summaryMessages(st) {
		p.emit(ctx, src.ID, domain.KindImport, m.text, m.severity)
	}
	p.log.Info("Import finished",
		infralogger.SourceID(src.ID),
		infralogger.Int("created", st.Created),
		infralogger.Int("updated", st.Updated),
		infralogger.Int("deleted", st.Deleted),
		infralogger.Int("skipped", st.Skipped),
		infralogger.Int("failed", st.Failed),
	)

	return summaryOf(domain.KindImport, st, p.now()), cleanErr
}

// Clear deletes up to Limit records imported from the source.
func (p *Processor) Clear(ctx context.Context, src *domain.Source) error {
	st := src.Pipeline().State(domain.StageClear)

	if st.Total == 0 {
		total, err := p.links.CountBySource(ctx, p.cfg.RecordType, src.ID)
		if err != nil {
			return &domain.PersistenceError{Op: "count", Cause: err}
		}
		st.Total = int64(total)
	}

	ids, err := p.links.ListBySource(ctx, p.cfg.RecordType, src.ID, p.cfg.Limit)
	if err != nil {
		return &domain.PersistenceError{Op: "list", Cause: err}
	}
	if err = p.deleteBatch(ctx, st, ids); err != nil {
		return err
	}

	if st.IsComplete() {
		msg := fmt.Sprintf("Deleted %s.", p.plural(st.Deleted))
		if st.Deleted == 0 {
			msg = fmt.Sprintf("There are no %s records to be deleted.", p.cfg.RecordType)
		}
		p.emit(ctx, src.ID, domain.KindClear, msg, domain.SeverityInfo)
	}
	return nil
}

// Expire deletes up to Limit records older than the configured age.
func (p *Processor) Expire(ctx context.Context, src *domain.Source) error {
	if !p.ExpiryEnabled() {
		return nil
	}
	st := src.Pipeline().State(domain.StageExpire)
	before := p.now().Add(-p.cfg.expireAfter)

	if st.Total == 0 {
		total, err := p.links.CountExpired(ctx, p.cfg.RecordType, src.ID, before)
		if err != nil {
			return &domain.PersistenceError{Op: "count expired", Cause: err}
		}
		st.Total = int64(total)
	}

	ids, err := p.links.ListExpired(ctx, p.cfg.RecordType, src.ID, before, p.cfg.Limit)
	if err != nil {
		return &domain.PersistenceError{Op: "list expired", Cause: err}
	}
	if err = p.deleteBatch(ctx, st, ids); err != nil {
		return err
	}

	if st.IsComplete() && st.Deleted > 0 {
		p.emit(ctx, src.ID, domain.KindExpire, fmt.Sprintf("Expired %s.", p.plural(st.Deleted)), domain.SeverityInfo)
	}
	return nil
}

// deleteBatch deletes ids and reports progress. An empty batch means nothing
// is left even if fewer records were deleted than first counted.
func (p *Processor) deleteBatch(ctx context.Context, st *progress.State, ids []string) error {
	if len(ids) == 0 {
		st.Report(st.Total, st.Total)
		return nil
	}
	if err := p.deleteRecords(ctx, ids); err != nil {
		return err
	}
	st.Deleted += len(ids)
	st.Report(st.Total, int64(st.Deleted))
	return nil
}

func (p *Processor) deleteRecords(ctx context.Context, ids []string) error {
	if err := p.records.Delete(ctx, ids); err != nil {
		return &domain.PersistenceError{Op: "delete", Cause: err}
	}
	if err := p.links.Delete(ctx, p.cfg.RecordType, ids); err != nil {
		return &domain.PersistenceError{Op: "delete links", Cause: err}
	}
	return nil
}
