// Package fetcher retrieves the raw content of a source.
package fetcher

import (
	"context"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// OutcomeKind distinguishes fetched data from the expected "nothing to do" results.
type OutcomeKind int

const (
	OutcomeData OutcomeKind = iota
	OutcomeNotModified
	OutcomeEmpty
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeData:
		return "data"
	case OutcomeNotModified:
		return "not_modified"
	case OutcomeEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Outcome is the result of one fetch. Result is set only for OutcomeData.
type Outcome struct {
	Kind   OutcomeKind
	Result *domain.FetchResult
}

// Data wraps fetched content.
func Data(r *domain.FetchResult) Outcome {
	return Outcome{Kind: OutcomeData, Result: r}
}

// NotModified reports that the source is unchanged since the last fetch.
func NotModified() Outcome {
	return Outcome{Kind: OutcomeNotModified}
}

// Empty reports that the source has no content.
func Empty() Outcome {
	return Outcome{Kind: OutcomeEmpty}
}

// Fetcher retrieves content for a source. A resumable fetcher reports its own
// progress through the source's fetch stage state and returns one unit per call.
type Fetcher interface {
	Fetch(ctx context.Context, src *domain.Source) (Outcome, error)
}

// Clearer is implemented by fetchers that keep per-source side state.
type Clearer interface {
	Clear(ctx context.Context, src *domain.Source) error
}
