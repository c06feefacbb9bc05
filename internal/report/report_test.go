package report_test

import (
	"strings"
	"testing"

	"abfactory/internal/casefile"
	"abfactory/internal/engine"
	"abfactory/internal/policy"
	"abfactory/internal/report"
	"abfactory/internal/trace"
)

func testBundle() *casefile.Bundle {
	return &casefile.Bundle{
		Dir: "case_001_uplift",
		Contract: &casefile.Contract{
			CaseID:        "case_001_uplift",
			Title:         "Clean uplift",
			Domain:        "ads_monetization",
			Unit:          "user",
			Variants:      []string{"control", "treatment"},
			Time:          casefile.TimeRange{StartDate: "2026-05-01", EndDate: "2026-05-15", HorizonDays: 14},
			PrimaryMetric: casefile.PrimaryMetricSpec{Name: "revenue", Direction: "up"},
			Stats:         casefile.Stats{Alpha: 0.05},
			DecisionFramework: casefile.DecisionFramework{
				PracticalThresholdRelative: 0.005,
			},
		},
		Rows: []casefile.MetricRow{
			{
				Segment: "all", Variant: "control", NUsers: 100_000,
				Values:  map[string]float64{"revenue": 250_000, "ctr": 0.030, "fillrate": 0.80},
				Effects: map[string]float64{},
				PValues: map[string]float64{},
			},
			{
				Segment: "all", Variant: "treatment", NUsers: 101_000,
				Values:  map[string]float64{"revenue": 255_250, "ctr": 0.030, "fillrate": 0.80},
				Effects: map[string]float64{"revenue": 0.021, "ctr": 0.0},
				PValues: map[string]float64{"revenue": 0.01, "ctr": 0.5},
			},
		},
		HeaderMetrics: map[string]bool{"revenue": true, "ctr": true, "fillrate": true},
	}
}

func testOutcome(t *testing.T, b *casefile.Bundle) *engine.Outcome {
	t.Helper()
	eng, err := engine.New(policy.Default())
	if err != nil {
		t.Fatal(err)
	}
	out, err := eng.Evaluate(b, trace.Discard)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestReaderSummary(t *testing.T) {
	s := report.ReaderSummary(testBundle())
	for _, want := range []string{"case_001_uplift", "revenue", "101,000", "+2.10%"} {
		if !strings.Contains(s, want) {
			t.Errorf("reader summary missing %q:\n%s", want, s)
		}
	}
}

func TestDecisionMarkdown(t *testing.T) {
	b := testBundle()
	md := report.DecisionMarkdown(testOutcome(t, b))
	for _, want := range []string{"Verdict: ship", "primary_uplift", "## Signals", "## Guardrails", "## Confidence"} {
		if !strings.Contains(md, want) {
			t.Errorf("decision markdown missing %q", want)
		}
	}
}

func TestChecksReport(t *testing.T) {
	b := testBundle()
	s := report.ChecksReport(casefile.RunChecks(b))
	if !strings.Contains(s, "All checks passed.") {
		t.Errorf("checks report missing pass line:\n%s", s)
	}
}

func TestVizListsSegmentsAndMetrics(t *testing.T) {
	s := report.Viz(testBundle())
	for _, want := range []string{"## Segment: all", "revenue", "ctr", "fillrate"} {
		if !strings.Contains(s, want) {
			t.Errorf("viz missing %q:\n%s", want, s)
		}
	}
}

func TestFinalAndTimeline(t *testing.T) {
	b := testBundle()
	out := testOutcome(t, b)
	final := report.Final("run-1", b, out, casefile.RunChecks(b))
	for _, want := range []string{"Final report", "run-1", "Verdict: ship", "Metric comparison"} {
		if !strings.Contains(final, want) {
			t.Errorf("final report missing %q", want)
		}
	}

	c := trace.NewCollector("run-1")
	c.Emit(trace.Event{CaseID: "case_001_uplift", Component: "decision", Step: trace.StepDone, Name: "decision_made"})
	tl := report.Timeline("run-1", c.Events())
	if !strings.Contains(tl, "decision_made") {
		t.Errorf("timeline missing event:\n%s", tl)
	}
}
