// Package scheduler drives pipelines to completion, either on demand or on a
// cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// DefaultMaxSteps bounds a single batch run.
const DefaultMaxSteps = 1000

// batchComplete is the progress value of a finished pipeline.
const batchComplete = 1.0

// ErrUnknownPipeline is returned for a pipeline kind Run cannot drive.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Steps runs single pipeline steps.
type Steps interface {
	Import(ctx context.Context, sourceID string) (float64, error)
	Clear(ctx context.Context, sourceID string) (float64, error)
	Expire(ctx context.Context, sourceID string) (float64, error)
}

// ProgressFunc receives the progress after every step.
type ProgressFunc func(sourceID string, kind domain.PipelineKind, progress float64)

// Batch calls pipeline steps until they report completion.
type Batch struct {
	steps      Steps
	log        infralogger.Logger
	maxSteps   int
	retry      retry.Config
	onProgress ProgressFunc
}

// BatchOption customises a Batch.
type BatchOption func(*Batch)

// WithMaxSteps bounds the number of steps a single Run performs.
func WithMaxSteps(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.maxSteps = n
		}
	}
}

// WithLockRetry sets the backoff used while a source is locked elsewhere.
func WithLockRetry(attempts int, initial time.Duration) BatchOption {
	return func(b *Batch) {
		if attempts > 0 {
			b.retry.MaxAttempts = attempts
		}
		if initial > 0 {
			b.retry.InitialDelay = initial
		}
	}
}

// WithProgress reports progress after every step.
func WithProgress(fn ProgressFunc) BatchOption {
	return func(b *Batch) { b.onProgress = fn }
}

// NewBatch creates a Batch.
func NewBatch(steps Steps, log infralogger.Logger, opts ...BatchOption) *Batch {
	if log == nil {
		log = infralogger.NewNop()
	}
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = time.Second
	cfg.IsRetryable = isLockError

	b := &Batch{
		steps:    steps,
		log:      log,
		maxSteps: DefaultMaxSteps,
		retry:    cfg,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func isLockError(err error) bool {
	var lockErr *domain.LockError
	return errors.As(err, &lockErr)
}

// Step runs exactly one step of a pipeline.
func (b *Batch) Step(ctx context.Context, sourceID string, kind domain.PipelineKind) (float64, error) {
	fn, err := b.stepFunc(kind)
	if err != nil {
		return 0, err
	}
	return fn(ctx, sourceID)
}

// Run calls steps of a pipeline until it completes, an error occurs or the
// step limit is reached. A step that finds the source locked is retried with
// backoff. The last reported progress is returned.
func (b *Batch) Run(ctx context.Context, sourceID string, kind domain.PipelineKind) (float64, error) {
	fn, err := b.stepFunc(kind)
	if err != nil {
		return 0, err
	}

	log := b.log.With(infralogger.SourceID(sourceID), infralogger.Pipeline(string(kind)))
	var progress float64
	for step := 1; step <= b.maxSteps; step++ {
		err = retry.Retry(ctx, b.retry, func() error {
			p, stepErr := fn(ctx, sourceID)
			if stepErr != nil {
				if isLockError(stepErr) {
					log.Debug("Source locked, retrying")
				}
				return stepErr
			}
			progress = p
			return nil
		})
		if err != nil {
			return progress, err
		}

		if b.onProgress != nil {
			b.onProgress(sourceID, kind, progress)
		}
		if progress >= batchComplete {
			log.Info("Pipeline complete", infralogger.Int("steps", step))
			return batchComplete, nil
		}
		log.Debug("Pipeline step done", infralogger.Float64("progress", progress))
	}

	log.Warn("Step limit reached, pipeline left in progress",
		infralogger.Int("max_steps", b.maxSteps),
		infralogger.Float64("progress", progress))
	return progress, nil
}

func (b *Batch) stepFunc(kind domain.PipelineKind) (func(context.Context, string) (float64, error), error) {
	switch kind {
	case domain.KindImport:
		return b.steps.Import, nil
	case domain.KindClear:
		return b.steps.Clear, nil
	case domain.KindExpire:
		return b.steps.Expire, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, kind)
	}
}
