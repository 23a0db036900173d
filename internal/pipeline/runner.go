// Package pipeline drives the import, clear and expire pipelines of a source
// one bounded step at a time. Every step runs under the source lock and
// persists its state, so a later call resumes where the previous one stopped.
package pipeline

import (
	"context"
	"errors"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/lock"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
)

// SourceStore loads and persists sources.
type SourceStore interface {
	Get(ctx context.Context, id string) (*domain.Source, error)
	Save(ctx context.Context, src *domain.Source) error
}

// PluginResolver builds the plugins of a source for one step.
type PluginResolver interface {
	Resolve(src *domain.Source) (*Plugins, error)
}

// CompletionPublisher announces completed pipelines.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, src *domain.Source, summary domain.ImportSummary) error
}

// Observer records step timings and outcomes.
type Observer interface {
	ObserveStep(kind domain.PipelineKind, sourceType, outcome string, elapsed time.Duration)
	ObserveSummary(sourceType string, summary domain.ImportSummary)
}

// Step outcomes reported to the Observer.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeLocked   = "locked"
	OutcomeError    = "error"
)

// Runner is the orchestrator.
type Runner struct {
	sources   SourceStore
	resolver  PluginResolver
	locker    lock.Locker
	log       infralogger.Logger
	lockTTL   time.Duration
	publisher CompletionPublisher
	observer  Observer
	now       func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithLockTTL sets how long a step may hold the source lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(r *Runner) {
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithPublisher announces completed pipelines.
func WithPublisher(p CompletionPublisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithObserver records step metrics.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(
	sources SourceStore,
	resolver PluginResolver,
	locker lock.Locker,
	log infralogger.Logger,
	opts ...Option,
) *Runner {
	if log == nil {
		log = infralogger.NewNop()
	}
	r := &Runner{
		sources:  sources,
		resolver: resolver,
		locker:   locker,
		log:      log,
		lockTTL:  lock.DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// step is one locked unit of work on a loaded source.
type step struct {
	src     *domain.Source
	plugins *Plugins
	lock    string
	token   string
	kind    domain.PipelineKind
	started time.Time
	log     infralogger.Logger
}

// load reads the source and resolves its plugins.
func (r *Runner) load(ctx context.Context, sourceID string) (*domain.Source, *Plugins, error) {
	src, err := r.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	plugins, err := r.resolver.Resolve(src)
	if err != nil {
		return nil, nil, err
	}
	return src, plugins, nil
}

// begin loads the source, resolves its plugins and takes the source lock.
func (r *Runner) begin(ctx context.Context, sourceID string, kind domain.PipelineKind) (*step, error) {
	src, plugins, err := r.load(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return r.acquire(ctx, src, plugins, kind)
}

func (r *Runner) acquire(ctx context.Context, src *domain.Source, plugins *Plugins, kind domain.PipelineKind) (*step, error) {
	s := &step{
		src:     src,
		plugins: plugins,
		lock:    lock.Name(src.ID),
		kind:    kind,
		started: r.now(),
		log:     r.log.With(infralogger.SourceID(src.ID), infralogger.Pipeline(string(kind))),
	}

	token, acquired, err := r.locker.Acquire(ctx, s.lock, r.lockTTL)
	if err != nil || !acquired {
		r.observe(s, OutcomeLocked)
		return nil, &domain.LockError{SourceID: src.ID, Cause: err}
	}
	s.token = token
	return s, nil
}

// end persists the source and releases the lock. Both run even when ctx is
// cancelled, so an interrupted step still leaves resumable state behind.
func (r *Runner) end(ctx context.Context, s *step, stepErr error) error {
	ctx = context.WithoutCancel(ctx)

	saveErr := r.sources.Save(ctx, s.src)
	if saveErr != nil {
		s.log.Error("Failed to persist source state", infralogger.Error(saveErr))
	}
	if err := r.locker.Release(ctx, s.lock, s.token); err != nil {
		s.log.Warn("Failed to release source lock", infralogger.Error(err))
	}

	if stepErr != nil {
		r.observe(s, OutcomeError)
	}
	return errors.Join(stepErr, saveErr)
}

func (r *Runner) complete(ctx context.Context, s *step, summary domain.ImportSummary) {
	r.observe(s, OutcomeComplete)
	if r.observer != nil {
		r.observer.ObserveSummary(s.src.TypeID, summary)
	}
	s.log.Info("Pipeline complete",
		infralogger.Int("created", summary.Created),
		infralogger.Int("updated", summary.Updated),
		infralogger.Int("deleted", summary.Deleted),
		infralogger.Int("skipped", summary.Skipped),
		infralogger.Int("failed", summary.Failed),
		infralogger.Duration("elapsed", r.now().Sub(s.started)),
	)

	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishCompletion(context.WithoutCancel(ctx), s.src, summary); err != nil {
		s.log.Warn("Failed to publish completion event", infralogger.Error(err))
	}
}

func (r *Runner) observe(s *step, outcome string) {
	if r.observer != nil {
		r.observer.ObserveStep(s.kind, s.src.TypeID, outcome, r.now().Sub(s.started))
	}
}

// cleanupFetch drops the held fetch result and its temporary file.
func (r *Runner) cleanupFetch(s *step) {
	if s.src.FetchResult == nil {
		return
	}
	if err := s.src.FetchResult.Cleanup(); err != nil {
		s.log.Warn("Failed to remove fetched file", infralogger.Error(err))
	}
	s.src.FetchResult = nil
}

// dropEmptyState forgets the pipeline state once nothing is left in it.
func dropEmptyState(src *domain.Source) {
	if src.State.Empty() {
		src.State = nil
	}
}

// reported keeps an unfinished step's fraction below completion.
func reported(fraction float64, done bool) float64 {
	switch {
	case done:
		return progress.Complete
	case fraction < 0:
		return 0
	case fraction >= progress.Complete:
		return progress.NearlyComplete
	default:
		return fraction
	}
}
