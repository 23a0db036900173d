package pipeline

import (
	"context"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
)

// Clearer is implemented by plugins that keep per-source side state.
type Clearer interface {
	Clear(ctx context.Context, src *domain.Source) error
}

// Clear runs one bounded step deleting the records imported from a source.
// Completing a clear discards all pipeline state of the source, including an
// unfinished import.
func (r *Runner) Clear(ctx context.Context, sourceID string) (float64, error) {
	s, err := r.begin(ctx, sourceID, domain.KindClear)
	if err != nil {
		return 0, err
	}
	ps := s.src.Pipeline()

	if _, started := ps.Stages[domain.StageClear]; !started {
		for _, c := range s.plugins.clearers() {
			if err = c.Clear(ctx, s.src); err != nil {
				return 0, r.end(ctx, s, err)
			}
		}
	}

	if err = s.plugins.Processor.Clear(ctx, s.src); err != nil {
		return ps.Progress(domain.StageClear), r.end(ctx, s, err)
	}

	st := ps.State(domain.StageClear)
	if !st.IsComplete() {
		r.observe(s, OutcomePartial)
		return reported(st.Progress, false), r.end(ctx, s, nil)
	}

	summary := domain.ImportSummary{Pipeline: domain.KindClear, Deleted: st.Deleted, FinishedAt: r.now().UTC()}
	r.cleanupFetch(s)
	s.src.State = nil

	if err = r.end(ctx, s, nil); err != nil {
		return progress.Complete, err
	}
	r.complete(ctx, s, summary)
	return progress.Complete, nil
}

// Expire runs one bounded step deleting records older than the processor's
// expiry. Sources without an expiry complete immediately and are not locked.
func (r *Runner) Expire(ctx context.Context, sourceID string) (float64, error) {
	src, plugins, err := r.load(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	if !plugins.Processor.ExpiryEnabled() {
		r.log.Debug("Expiry disabled", infralogger.SourceID(sourceID))
		return progress.Complete, nil
	}

	s, err := r.acquire(ctx, src, plugins, domain.KindExpire)
	if err != nil {
		return 0, err
	}
	ps := s.src.Pipeline()

	if err = s.plugins.Processor.Expire(ctx, s.src); err != nil {
		return ps.Progress(domain.StageExpire), r.end(ctx, s, err)
	}

	st := ps.State(domain.StageExpire)
	if !st.IsComplete() {
		r.observe(s, OutcomePartial)
		return reported(st.Progress, false), r.end(ctx, s, nil)
	}

	summary := domain.ImportSummary{Pipeline: domain.KindExpire, Deleted: st.Deleted, FinishedAt: r.now().UTC()}
	ps.Clear(domain.KindExpire)
	dropEmptyState(s.src)

	if err = r.end(ctx, s, nil); err != nil {
		return progress.Complete, err
	}
	r.complete(ctx, s, summary)
	return progress.Complete, nil
}
