package pipeline

import (
	"context"
	"errors"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/fetcher"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
)

// Import runs one bounded import step and returns the overall fraction done;
// 1.0 means the import completed in this step.
//
// A fetch failure keeps the state, so the next call retries the fetch. A
// parse failure discards the fetched content and the import state, since
// re-parsing the same bytes would fail again. A failure in the end-of-import
// work keeps the state and retries only that work on the next call.
func (r *Runner) Import(ctx context.Context, sourceID string) (float64, error) {
	s, err := r.begin(ctx, sourceID, domain.KindImport)
	if err != nil {
		return 0, err
	}

	ps := s.src.Pipeline()
	if !ps.Finishing {
		if err = r.importStep(ctx, s); err != nil {
			var parseErr *domain.ParseError
			if errors.As(err, &parseErr) {
				s.log.Error("Discarding import state after parse failure", infralogger.Error(err))
				r.cleanupFetch(s)
				ps.Clear(domain.KindImport)
				dropEmptyState(s.src)
			}
			return importProgress(s.src.State), r.end(ctx, s, err)
		}

		if !importDone(ps) {
			fraction := importProgress(ps)
			r.observe(s, OutcomePartial)
			s.log.Debug("Import step finished", infralogger.Float64("progress", fraction))
			return fraction, r.end(ctx, s, nil)
		}
		ps.Finishing = true
	}

	summary, err := s.plugins.Processor.Finish(ctx, s.src)
	if err != nil {
		s.log.Error("Import cleanup failed, keeping state for retry", infralogger.Error(err))
		return importProgress(ps), r.end(ctx, s, err)
	}
	r.cleanupFetch(s)
	ps.Clear(domain.KindImport)
	dropEmptyState(s.src)

	finished := r.now().UTC()
	summary.FinishedAt = finished
	s.src.Imported = &finished
	s.src.LastResult = &summary

	if err = r.end(ctx, s, nil); err != nil {
		return progress.Complete, err
	}
	r.complete(ctx, s, summary)
	return progress.Complete, nil
}

func (r *Runner) importStep(ctx context.Context, s *step) error {
	ps := s.src.Pipeline()

	if len(ps.Pending) == 0 {
		if s.src.FetchResult == nil || ps.Progress(domain.StageParse) >= progress.Complete {
			fetched, err := r.fetch(ctx, s)
			if err != nil || !fetched {
				return err
			}
		}
		if err := r.parse(ctx, s); err != nil {
			return err
		}
	}

	return s.plugins.Processor.Process(ctx, s.src)
}

// fetch reports whether new content is held for parsing.
func (r *Runner) fetch(ctx context.Context, s *step) (bool, error) {
	ps := s.src.Pipeline()

	outcome, err := s.plugins.Fetcher.Fetch(ctx, s.src)
	if err != nil {
		var fetchErr *domain.FetchError
		if ctx.Err() == nil && !errors.As(err, &fetchErr) {
			err = &domain.FetchError{SourceID: s.src.ID, Cause: err}
		}
		return false, err
	}

	r.cleanupFetch(s)
	ps.Reset(domain.StageParse)
	ps.ChunkStart = 0
	ps.ChunkSize = 0

	switch outcome.Kind {
	case fetcher.OutcomeNotModified, fetcher.OutcomeEmpty:
		s.log.Info("Nothing to import", infralogger.String("outcome", outcome.Kind.String()))
		return false, nil
	default:
		s.src.FetchResult = outcome.Result
		return outcome.Result != nil, nil
	}
}

func (r *Runner) parse(ctx context.Context, s *step) error {
	ps := s.src.Pipeline()

	if st, ok := ps.Stages[domain.StageParse]; ok && st != nil {
		ps.ChunkStart = st.Progress
	} else {
		ps.ChunkStart = 0
	}

	result, err := s.plugins.Parser.Parse(ctx, s.src, s.src.FetchResult)
	if err != nil {
		var parseErr *domain.ParseError
		if ctx.Err() == nil && !errors.As(err, &parseErr) {
			err = &domain.ParseError{SourceID: s.src.ID, Parser: s.plugins.ParserID, Cause: err}
		}
		return err
	}
	if result == nil {
		result = &domain.ParserResult{}
	}

	ps.Pending = result.Items
	ps.ChunkSize = len(result.Items)
	ps.Meta = result.Meta
	return nil
}

// importDone reports whether every stage of the import is finished.
func importDone(ps *domain.PipelineState) bool {
	if ps == nil {
		return true
	}
	return ps.Progress(domain.StageFetch) >= progress.Complete &&
		ps.Progress(domain.StageParse) >= progress.Complete &&
		len(ps.Pending) == 0
}

// importProgress combines the stages into one fraction. Parsing fills the
// slice of the fetch unit currently held; within a parsed chunk, progress
// advances with the share of items already processed.
func importProgress(ps *domain.PipelineState) float64 {
	if ps != nil && ps.Finishing {
		return progress.NearlyComplete
	}
	if importDone(ps) {
		return progress.Complete
	}

	processed := 1.0
	if ps.ChunkSize > 0 {
		processed = 1 - float64(len(ps.Pending))/float64(ps.ChunkSize)
	}
	parsed := ps.Progress(domain.StageParse)
	inner := ps.ChunkStart + (parsed-ps.ChunkStart)*processed

	slice := 1.0
	if st, ok := ps.Stages[domain.StageFetch]; ok && st != nil && st.Total > 0 {
		slice = 1 / float64(st.Total)
	}
	overall := ps.Progress(domain.StageFetch) - slice + inner*slice

	return reported(overall, false)
}
