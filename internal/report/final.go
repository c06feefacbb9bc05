package report

import (
	"fmt"
	"strings"

	"abfactory/internal/casefile"
	"abfactory/internal/engine"
	"abfactory/internal/format"
	"abfactory/internal/trace"
)

// Final assembles the per-case final report from the already-rendered
// sections.
func Final(runID string, b *casefile.Bundle, o *engine.Outcome, checks []casefile.Check) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Final report: %s\n\nRun: %s\n\n---\n\n", b.Contract.CaseID, runID)
	sb.WriteString(ReaderSummary(b))
	sb.WriteString("\n---\n\n")
	sb.WriteString(ChecksReport(checks))
	sb.WriteString("\n---\n\n")
	sb.WriteString(DecisionMarkdown(o))
	sb.WriteString("\n---\n\n")
	sb.WriteString(Viz(b))
	return sb.String()
}

// Timeline renders the run's trace events, in emission order, from the
// in-memory collector. The trace file itself is never read back.
func Timeline(runID string, events []trace.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Timeline: run %s\n\n", runID)
	t := format.NewTable(format.Markdown)
	t.Header("TS", "Case", "Component", "Step", "Event", "Message")
	for _, ev := range events {
		t.Row(ev.TS, ev.CaseID, ev.Component, ev.Step, ev.Name, format.Truncate(ev.Message, 100))
	}
	sb.WriteString(t.String())
	sb.WriteString("\n")
	return sb.String()
}
