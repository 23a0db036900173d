// Package progress tracks how far one pipeline stage of one source has advanced.
package progress

import (
	"fmt"
	"strings"
)

const (
	// Complete is the fraction reported by a stage with nothing left to do.
	Complete = 1.0
	// NearlyComplete replaces a fraction that rounds to Complete before the stage is done.
	NearlyComplete = 0.99
)

// State is the resumption point and reporting counters of one stage.
// Pointer is free for the owning stage (byte offset, file index).
type State struct {
	Total    int64   `json:"total"`
	Done     int64   `json:"done"`
	Progress float64 `json:"progress"`
	Pointer  int64   `json:"pointer,omitempty"`

	Created int `json:"created,omitempty"`
	Updated int `json:"updated,omitempty"`
	Deleted int `json:"deleted,omitempty"`
	Skipped int `json:"skipped,omitempty"`
	Failed  int `json:"failed,omitempty"`
}

// New returns a state that reports completion until a stage says otherwise.
func New() *State {
	return &State{Progress: Complete}
}

// Report recomputes the fraction from total and done. Negative inputs count as zero.
func (s *State) Report(total, done int64) {
	total = max(total, 0)
	done = max(done, 0)
	s.Total = total
	s.Done = done

	switch {
	case total == 0, done >= total:
		s.Progress = Complete
	default:
		s.Progress = float64(done) / float64(total)
		if s.Progress >= Complete {
			s.Progress = NearlyComplete
		}
	}
}

// IsComplete reports whether the stage has nothing left to do.
func (s *State) IsComplete() bool {
	return s == nil || s.Progress >= Complete
}

// Summary renders the non-zero counters, or an empty string.
func (s *State) Summary() string {
	parts := make([]string, 0, 5)
	for _, c := range []struct {
		label string
		n     int
	}{
		{"created", s.Created},
		{"updated", s.Updated},
		{"deleted", s.Deleted},
		{"skipped", s.Skipped},
		{"failed", s.Failed},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c.label, c.n))
		}
	}
	return strings.Join(parts, " ")
}
