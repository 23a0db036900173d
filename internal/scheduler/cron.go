package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// DefaultConcurrency is the number of sources a tick runs at once.
const DefaultConcurrency = 4

// SourceLister lists every configured source.
type SourceLister interface {
	List(ctx context.Context) ([]*domain.Source, error)
}

// TypeLookup resolves source types.
type TypeLookup interface {
	Get(id string) (*domain.SourceType, error)
}

// TickResult counts what a tick did. Partial counts imports that stopped at
// the step limit and resume on a later tick.
type TickResult struct {
	Due       int
	Completed int
	Partial   int
	Failed    int
}

type runOutcome int

const (
	runFailed runOutcome = iota
	runPartial
	runCompleted
)

// Cron imports due sources on a cron schedule.
type Cron struct {
	spec        string
	cron        *cron.Cron
	batch       *Batch
	sources     SourceLister
	types       TypeLookup
	log         infralogger.Logger
	concurrency int
	now         func() time.Time
}

// CronOption customises a Cron.
type CronOption func(*Cron)

// WithConcurrency bounds how many sources a tick runs at once.
func WithConcurrency(n int) CronOption {
	return func(c *Cron) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithCronClock replaces the time source used to decide what is due.
func WithCronClock(now func() time.Time) CronOption {
	return func(c *Cron) { c.now = now }
}

// NewCron creates a Cron for a standard five-field schedule.
func NewCron(
	spec string,
	batch *Batch,
	sources SourceLister,
	types TypeLookup,
	log infralogger.Logger,
	opts ...CronOption,
) (*Cron, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if log == nil {
		log = infralogger.NewNop()
	}

	c := &Cron{
		spec:        spec,
		batch:       batch,
		sources:     sources,
		types:       types,
		log:         log,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return c, nil
}

// Start schedules ticks until ctx is cancelled.
func (c *Cron) Start(ctx context.Context) error {
	_, err := c.cron.AddFunc(c.spec, func() {
		result, tickErr := c.Tick(ctx)
		if tickErr != nil {
			c.log.Error("Scheduled tick failed", infralogger.Error(tickErr))
			return
		}
		if result.Due > 0 {
			c.log.Info("Scheduled tick finished",
				infralogger.Int("due", result.Due),
				infralogger.Int("completed", result.Completed),
				infralogger.Int("partial", result.Partial),
				infralogger.Int("failed", result.Failed))
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	c.cron.Start()
	c.log.Info("Scheduler started", infralogger.String("cron", c.spec))

	go func() {
		<-ctx.Done()
		<-c.cron.Stop().Done()
		c.log.Info("Scheduler stopped")
	}()
	return nil
}

// Tick runs every due source once. Failures of one source never stop the
// others; they are logged and counted.
func (c *Cron) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult

	due, err := c.dueSources(ctx)
	if err != nil {
		return result, err
	}
	result.Due = len(due)

	outcomes := make([]runOutcome, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, src := range due {
		g.Go(func() error {
			outcomes[i] = c.runSource(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case runCompleted:
			result.Completed++
		case runPartial:
			result.Partial++
		default:
			result.Failed++
		}
	}
	return result, ctx.Err()
}

func (c *Cron) dueSources(ctx context.Context) ([]*domain.Source, error) {
	all, err := c.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	now := c.now()
	due := make([]*domain.Source, 0, len(all))
	for _, src := range all {
		st, typeErr := c.types.Get(src.TypeID)
		if typeErr != nil {
			c.log.Warn("Skipping source with unknown type",
				infralogger.SourceID(src.ID),
				infralogger.String("type_id", src.TypeID))
			continue
		}
		if src.DueForImport(st.ImportPeriod, now) {
			due = append(due, src)
		}
	}
	return due, nil
}

// runSource imports a source and, once the import is complete, expires its
// old records.
func (c *Cron) runSource(ctx context.Context, src *domain.Source) runOutcome {
	log := c.log.With(infralogger.SourceID(src.ID))

	progress, err := c.batch.Run(ctx, src.ID, domain.KindImport)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return runFailed
		}
		log.Error("Scheduled import failed", infralogger.Error(err))
		return runFailed
	}
	if progress < batchComplete {
		return runPartial
	}

	if _, err = c.batch.Run(ctx, src.ID, domain.KindExpire); err != nil {
		log.Error("Scheduled expire failed", infralogger.Error(err))
		return runFailed
	}
	return runCompleted
}
