package report

import (
	"fmt"
	"strings"

	"abfactory/internal/engine"
	"abfactory/internal/format"
)

// DecisionMarkdown renders the human-readable companion to decision.json.
func DecisionMarkdown(o *engine.Outcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Decision: %s\n\n", o.CaseID)
	fmt.Fprintf(&sb, "**Verdict: %s** (confidence %.4f)\n\n", o.Decision, o.Confidence)
	fmt.Fprintf(&sb, "Policy: %s v%s\n\n", o.Policy.Name, o.Policy.Version)

	sb.WriteString("Reasons:\n")
	for _, r := range o.Reasons {
		fmt.Fprintf(&sb, "- `%s`\n", r)
	}

	s := o.Signals
	sb.WriteString("\n## Signals\n\n")
	t := format.NewTable(format.Markdown)
	t.Header("Signal", "Value")
	t.Row("Primary metric", s.PrimaryMetric)
	t.Row("Effect", format.Pct(s.EffectRelative))
	t.Row("P-value", format.PValue(s.PValue))
	t.Row("Significant (p < alpha)", format.YesNo(s.Significant))
	t.Row("Alpha", format.PValue(&s.Alpha))
	t.Row("Practical threshold", format.Pct(&s.PracticalThresholdRelative))
	t.Row("Long-term reversal", format.YesNo(s.Reversal))
	sb.WriteString(t.String())
	sb.WriteString("\n")

	if len(s.Guardrails) > 0 {
		sb.WriteString("\n## Guardrails\n\n")
		t := format.NewTable(format.Markdown)
		t.Header("Metric", "Severity", "Effect", "Breached")
		for _, g := range s.Guardrails {
			eff := format.Pct(g.EffectRelative)
			if g.Missing {
				eff = "missing"
			}
			t.Row(g.Metric, g.Severity, eff, format.YesNo(g.Breached))
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}

	if len(s.Segments) > 0 {
		sb.WriteString("\n## Segments\n\n")
		t := format.NewTable(format.Markdown)
		t.Header("Segment", "Effect", "P-value", "Significant")
		for _, seg := range s.Segments {
			eff := seg.EffectRelative
			p := seg.PValue
			t.Row(seg.Segment, format.Pct(&eff), format.PValue(&p), format.YesNo(seg.Significant))
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
		if s.SegmentConflict {
			fmt.Fprintf(&sb, "\nConflict between %q (%s) and %q (%s).\n",
				s.ConflictLow.Segment, format.Pct(&s.ConflictLow.EffectRelative),
				s.ConflictHigh.Segment, format.Pct(&s.ConflictHigh.EffectRelative))
		}
	}

	sb.WriteString("\n## Confidence\n\n")
	ct := format.NewTable(format.Markdown)
	ct.Header("Factor", "Weight")
	for _, f := range o.ConfidenceTrace.Factors {
		ct.Row(f.Name, fmt.Sprintf("%+.2f", f.Weight))
	}
	ct.Footer("score", fmt.Sprintf("%+.4f", o.ConfidenceTrace.Score))
	sb.WriteString(ct.String())
	sb.WriteString("\n\nThe confidence figure is a heuristic display value, not a calibrated probability.\n")
	return sb.String()
}
