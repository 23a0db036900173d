package processor

import (
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/progress"
)

type message struct {
	text     string
	severity domain.Severity
}

func (p *Processor) plural(n int) string {
	if n == 1 {
		return fmt.Sprintf("1 %s record", p.cfg.RecordType)
	}
	return fmt.Sprintf("%d %s records", n, p.cfg.RecordType)
}

func (p *Processor) summaryMessages(st *progress.State) []message {
	var out []message
	if st.Created > 0 {
		out = append(out, message{fmt.Sprintf("Created %s.", p.plural(st.Created)), domain.SeverityInfo})
	}
	if st.Updated > 0 {
		out = append(out, message{fmt.Sprintf("Updated %s.", p.plural(st.Updated)), domain.SeverityInfo})
	}
	if st.Deleted > 0 {
		out = append(out, message{fmt.Sprintf("Removed %s.", p.plural(st.Deleted)), domain.SeverityInfo})
	}
	if st.Skipped > 0 {
		out = append(out, message{fmt.Sprintf("Skipped %s.", p.plural(st.Skipped)), domain.SeverityInfo})
	}
	if st.Failed > 0 {
		out = append(out, message{fmt.Sprintf("Failed importing %s.", p.plural(st.Failed)), domain.SeverityError})
	}
	if len(out) == 0 {
		out = append(out, message{fmt.Sprintf("There are no new %s records.", p.cfg.RecordType), domain.SeverityInfo})
	}
	return out
}

func summaryOf(kind domain.PipelineKind, st *progress.State, now time.Time) domain.ImportSummary {
	return domain.ImportSummary{
		Pipeline:   kind,
		Created:    st.Created,
		Updated:    st.Updated,
		Deleted:    st.Deleted,
		Skipped:    st.Skipped,
		Failed:     st.Failed,
		FinishedAt: now.UTC(),
	}
}
