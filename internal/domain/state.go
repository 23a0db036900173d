package domain

import "github.com/jonesrussell/north-cloud/importer/internal/progress"

// Stage identifies one resumable phase of a pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
	StageProcess Stage = "process"
	StageClear   Stage = "clear"
	StageExpire  Stage = "expire"
)

// PipelineKind is one of import, clear or expire.
type PipelineKind string

const (
	KindImport PipelineKind = "import"
	KindClear  PipelineKind = "clear"
	KindExpire PipelineKind = "expire"
)

// Valid reports whether k names a known pipeline.
func (k PipelineKind) Valid() bool {
	switch k {
	case KindImport, KindClear, KindExpire:
		return true
	default:
		return false
	}
}

// Stages lists the stages a pipeline owns.
func (k PipelineKind) Stages() []Stage {
	switch k {
	case KindImport:
		return []Stage{StageFetch, StageParse, StageProcess}
	case KindClear:
		return []Stage{StageClear}
	case KindExpire:
		return []Stage{StageExpire}
	default:
		return nil
	}
}

// PipelineState is the resumable state of a source between pipeline steps.
// Pending holds parsed items not yet consumed by the processor. ChunkStart is
// the parse progress before the pending chunk was parsed and ChunkSize its
// item count. RemoveList tracks record ids not yet seen in this import.
type PipelineState struct {
	Stages          map[Stage]*progress.State `json:"stages,omitempty"`
	Pending         []Item                    `json:"pending,omitempty"`
	Meta            FeedMeta                  `json:"meta"`
	ChunkStart      float64                   `json:"chunk_start,omitempty"`
	ChunkSize       int                       `json:"chunk_size,omitempty"`
	RemoveList      []string                  `json:"remove_list,omitempty"`
	RemoveListReady bool                      `json:"remove_list_ready,omitempty"`
	// Finishing is set once every item is processed and cleared when the
	// end-of-import work succeeds.
	Finishing bool `json:"finishing,omitempty"`
}

// NewPipelineState returns an empty pipeline state.
func NewPipelineState() *PipelineState {
	return &PipelineState{Stages: make(map[Stage]*progress.State)}
}

// State returns the progress of a stage, creating it on first access.
func (p *PipelineState) State(stage Stage) *progress.State {
	if p.Stages == nil {
		p.Stages = make(map[Stage]*progress.State)
	}
	st, ok := p.Stages[stage]
	if !ok || st == nil {
		st = progress.New()
		p.Stages[stage] = st
	}
	return st
}

// Progress returns a stage's fraction without creating it.
func (p *PipelineState) Progress(stage Stage) float64 {
	if p == nil {
		return progress.Complete
	}
	if st, ok := p.Stages[stage]; ok && st != nil {
		return st.Progress
	}
	return progress.Complete
}

// Reset drops the progress of the given stages.
func (p *PipelineState) Reset(stages ...Stage) {
	for _, s := range stages {
		delete(p.Stages, s)
	}
}

// InProgress reports whether a pipeline has state left from an unfinished run.
func (p *PipelineState) InProgress(kind PipelineKind) bool {
	if p == nil {
		return false
	}
	if kind == KindImport && (len(p.Pending) > 0 || p.Finishing) {
		return true
	}
	for _, s := range kind.Stages() {
		if st, ok := p.Stages[s]; ok && !st.IsComplete() {
			return true
		}
	}
	return false
}

// Clear discards the state owned by a pipeline.
func (p *PipelineState) Clear(kind PipelineKind) {
	p.Reset(kind.Stages()...)
	if kind == KindImport {
		p.Pending = nil
		p.Meta = FeedMeta{}
		p.ChunkStart = 0
		p.ChunkSize = 0
		p.RemoveList = nil
		p.RemoveListReady = false
		p.Finishing = false
	}
}

// Empty reports whether nothing is left in the state.
func (p *PipelineState) Empty() bool {
	return p == nil || (len(p.Stages) == 0 && len(p.Pending) == 0 && len(p.RemoveList) == 0 && !p.Finishing)
}
