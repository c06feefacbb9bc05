// Package report renders the per-case markdown artifacts: the reader
// summary, the data-check report, the metric comparison tables, the decision
// explanation and the assembled final report. Everything here is a pure
// string renderer over already-computed values.
package report

import (
	"fmt"
	"sort"
	"strings"

	"abfactory/internal/casefile"
	"abfactory/internal/format"
)

// ReaderSummary renders the headline facts of a loaded case.
func ReaderSummary(b *casefile.Bundle) string {
	c := b.Contract
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Case summary: %s\n\n", c.CaseID)
	if c.Title != "" {
		fmt.Fprintf(&sb, "%s\n\n", c.Title)
	}

	t := format.NewTable(format.Markdown)
	t.Header("Field", "Value")
	t.Row("Domain", c.Domain)
	t.Row("Unit", c.Unit)
	t.Row("Variants", strings.Join(c.Variants, ", "))
	t.Row("Segments", segmentsOrNone(c.Segments))
	t.Row("Window", fmt.Sprintf("%s .. %s (%d days)", c.Time.StartDate, c.Time.EndDate, c.Time.HorizonDays))
	t.Row("Primary metric", fmt.Sprintf("%s (%s)", c.PrimaryMetric.Name, c.PrimaryMetric.Direction))
	t.Row("Alpha", format.PValue(&c.Stats.Alpha))
	t.Row("Guardrails", guardrailList(c))
	sb.WriteString(t.String())
	sb.WriteString("\n")

	agg := b.TreatmentRow(casefile.AllSegment)
	if agg != nil {
		var eff, p *string
		if v, ok := agg.Effects[c.PrimaryMetric.Name]; ok {
			s := format.Pct(&v)
			eff = &s
		}
		if v, ok := agg.PValues[c.PrimaryMetric.Name]; ok {
			s := format.PValue(&v)
			p = &s
		}
		fmt.Fprintf(&sb, "\nAggregate %s effect: %s (p=%s), n=%s treatment users.\n",
			c.PrimaryMetric.Name, deref(eff), deref(p), format.Count(agg.NUsers))
	}
	if c.Notes != "" {
		fmt.Fprintf(&sb, "\nNotes: %s\n", c.Notes)
	}
	return sb.String()
}

// ChecksReport renders the data sanity checks.
func ChecksReport(checks []casefile.Check) string {
	var sb strings.Builder
	sb.WriteString("# Data checks\n\n")
	t := format.NewTable(format.Markdown)
	t.Header("Check", "Pass", "Detail")
	for _, c := range checks {
		t.Row(c.Name, format.YesNo(c.Pass), format.Truncate(c.Detail, 120))
	}
	sb.WriteString(t.String())
	sb.WriteString("\n")
	if casefile.AllPass(checks) {
		sb.WriteString("\nAll checks passed.\n")
	} else {
		sb.WriteString("\nOne or more checks failed; figures below may be unreliable.\n")
	}
	return sb.String()
}

// Viz renders per-segment metric comparison tables between the control and
// the first treatment arm.
func Viz(b *casefile.Bundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Metric comparison: %s\n", b.Contract.CaseID)
	for _, seg := range b.SegmentsInData() {
		control := b.ControlRow(seg)
		treatment := b.TreatmentRow(seg)
		if control == nil || treatment == nil {
			continue
		}
		fmt.Fprintf(&sb, "\n## Segment: %s\n\n", seg)
		t := format.NewTable(format.Markdown)
		t.Header("Metric", "Control", "Treatment", "Effect", "P-value")
		for _, m := range metricNames(control, treatment) {
			t.Row(m,
				valueCell(control, m),
				valueCell(treatment, m),
				effectCell(treatment, m),
				pValueCell(treatment, m))
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

func metricNames(rows ...*casefile.MetricRow) []string {
	seen := map[string]bool{}
	for _, r := range rows {
		for m := range r.Values {
			seen[m] = true
		}
		for m := range r.Effects {
			seen[m] = true
		}
		for m := range r.PValues {
			seen[m] = true
		}
	}
	names := make([]string, 0, len(seen))
	for m := range seen {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

func valueCell(r *casefile.MetricRow, metric string) string {
	if v, ok := r.Values[metric]; ok {
		return fmt.Sprintf("%.4f", v)
	}
	return "—"
}

func effectCell(r *casefile.MetricRow, metric string) string {
	if v, ok := r.Effects[metric]; ok {
		return format.Pct(&v)
	}
	return "—"
}

func pValueCell(r *casefile.MetricRow, metric string) string {
	if v, ok := r.PValues[metric]; ok {
		return format.PValue(&v)
	}
	return "—"
}

func segmentsOrNone(segs []string) string {
	if len(segs) == 0 {
		return "none"
	}
	return strings.Join(segs, ", ")
}

func guardrailList(c *casefile.Contract) string {
	if len(c.Guardrails) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(c.Guardrails))
	for _, g := range c.Guardrails {
		parts = append(parts, g.Metric)
	}
	return strings.Join(parts, ", ")
}

func deref(s *string) string {
	if s == nil {
		return "—"
	}
	return *s
}
