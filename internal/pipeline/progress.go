package pipeline

import (
	"context"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
)

// ProgressImporting returns the import fraction without running a step.
func (r *Runner) ProgressImporting(ctx context.Context, sourceID string) (float64, error) {
	src, err := r.sources.Get(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	return importProgress(src.State), nil
}

// ProgressClearing returns the clear fraction without running a step.
func (r *Runner) ProgressClearing(ctx context.Context, sourceID string) (float64, error) {
	return r.stageProgress(ctx, sourceID, domain.StageClear)
}

// ProgressExpiring returns the expire fraction without running a step.
func (r *Runner) ProgressExpiring(ctx context.Context, sourceID string) (float64, error) {
	return r.stageProgress(ctx, sourceID, domain.StageExpire)
}

func (r *Runner) stageProgress(ctx context.Context, sourceID string, stage domain.Stage) (float64, error) {
	src, err := r.sources.Get(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	p := src.State.Progress(stage)
	return reported(p, p >= progress.Complete), nil
}

// Snapshot is the read-only progress of every pipeline of a source.
type Snapshot struct {
	SourceID  string  `json:"source_id"`
	Importing float64 `json:"importing"`
	Clearing  float64 `json:"clearing"`
	Expiring  float64 `json:"expiring"`
}

// Progress returns the progress of all pipelines of a source in one read.
func (r *Runner) Progress(ctx context.Context, sourceID string) (Snapshot, error) {
	src, err := r.sources.Get(ctx, sourceID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		SourceID:  src.ID,
		Importing: importProgress(src.State),
		Clearing:  src.State.Progress(domain.StageClear),
		Expiring:  src.State.Progress(domain.StageExpire),
	}, nil
}
