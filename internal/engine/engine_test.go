package engine_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"abfactory/internal/casefile"
	"abfactory/internal/engine"
	"abfactory/internal/policy"
	"abfactory/internal/trace"
)

// newBundle builds a minimal valid case: revenue primary, ctr and fillrate
// in the header, one control and one treatment row in the "all" segment.
// Tests mutate the result before evaluation.
func newBundle(revEff, revP float64) *casefile.Bundle {
	return &casefile.Bundle{
		Dir: "testcase",
		Contract: &casefile.Contract{
			CaseID:        "case_001_test",
			Variants:      []string{"control", "treatment"},
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
				Segment: "all", Variant: "treatment", NUsers: 100_000,
				Values:  map[string]float64{"revenue": 250_000 * (1 + revEff), "ctr": 0.030, "fillrate": 0.80},
				Effects: map[string]float64{"revenue": revEff, "ctr": 0.0},
				PValues: map[string]float64{"revenue": revP, "ctr": 0.5},
			},
		},
		HeaderMetrics: map[string]bool{"revenue": true, "ctr": true, "fillrate": true},
	}
}

func addSegment(b *casefile.Bundle, name string, eff, p float64) {
	found := false
	for _, s := range b.Contract.Segments {
		if s == name {
			found = true
		}
	}
	if !found {
		b.Contract.Segments = append(b.Contract.Segments, name)
	}
	b.Rows = append(b.Rows,
		casefile.MetricRow{
			Segment: name, Variant: "control", NUsers: 50_000,
			Values:  map[string]float64{"revenue": 120_000, "ctr": 0.030, "fillrate": 0.80},
			Effects: map[string]float64{},
			PValues: map[string]float64{},
		},
		casefile.MetricRow{
			Segment: name, Variant: "treatment", NUsers: 50_000,
			Values:  map[string]float64{"revenue": 120_000 * (1 + eff), "ctr": 0.030, "fillrate": 0.80},
			Effects: map[string]float64{"revenue": eff},
			PValues: map[string]float64{"revenue": p},
		},
	)
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(policy.Default())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func evaluate(t *testing.T, b *casefile.Bundle) *engine.Outcome {
	t.Helper()
	out, err := newEngine(t).Evaluate(b, trace.Discard)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return out
}

func TestEvaluateCleanUplift(t *testing.T) {
	out := evaluate(t, newBundle(0.021, 0.01))
	if out.Decision != engine.Ship {
		t.Fatalf("decision = %s, want ship", out.Decision)
	}
	if diff := cmp.Diff([]string{"primary_uplift"}, out.ReasonStrings()); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
	if out.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5 for a clean ship", out.Confidence)
	}
}

func TestEvaluateGuardrailBreach(t *testing.T) {
	b := newBundle(0.013, 0.02)
	b.Rows[1].Effects["ctr"] = -0.040
	out := evaluate(t, b)
	if out.Decision != engine.DoNotShip {
		t.Fatalf("decision = %s, want do_not_ship", out.Decision)
	}
	if out.Reasons[0] != engine.ReasonGuardrailViolation {
		t.Errorf("primary reason = %s, want guardrail_violation", out.Reasons[0])
	}
	if out.Confidence >= 0.5 {
		t.Errorf("confidence = %v, want < 0.5 under a hard breach", out.Confidence)
	}
}

func TestEvaluatePracticallySmall(t *testing.T) {
	out := evaluate(t, newBundle(0.003, 0.0001))
	if out.Decision != engine.DoNotShip || out.Reasons[0] != engine.ReasonPracticallySmall {
		t.Fatalf("got %s %v, want do_not_ship practically_small", out.Decision, out.Reasons)
	}
}

func TestEvaluateSegmentConflict(t *testing.T) {
	b := newBundle(0.004, 0.30)
	addSegment(b, "news", 0.030, 0.01)
	addSegment(b, "dzen", -0.020, 0.02)
	out := evaluate(t, b)
	if out.Decision != engine.Investigate || out.Reasons[0] != engine.ReasonSegmentConflict {
		t.Fatalf("got %s %v, want investigate segment_conflict", out.Decision, out.Reasons)
	}
	s := out.Signals
	if !s.SegmentConflict || s.ConflictLow == nil || s.ConflictHigh == nil {
		t.Fatal("conflict extremes not recorded")
	}
	if s.ConflictLow.Segment != "dzen" || s.ConflictHigh.Segment != "news" {
		t.Errorf("extremes = %s/%s, want dzen/news", s.ConflictLow.Segment, s.ConflictHigh.Segment)
	}
}

func TestEvaluateLongTermReversal(t *testing.T) {
	b := newBundle(0.002, 0.35)
	b.Contract.Hints.LongTermReversal = true
	out := evaluate(t, b)
	if out.Decision != engine.DoNotShip || out.Reasons[0] != engine.ReasonLongTermReversal {
		t.Fatalf("got %s %v, want do_not_ship long_term_reversal", out.Decision, out.Reasons)
	}
	want := []string{"long_term_reversal", "not_significant"}
	if diff := cmp.Diff(want, out.ReasonStrings()); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

// Both a hard breach and a large significant uplift: the breach must win.
func TestEvaluateBreachDominatesUplift(t *testing.T) {
	b := newBundle(0.040, 0.001)
	b.Rows[1].Effects["ctr"] = -0.080
	out := evaluate(t, b)
	if out.Decision != engine.DoNotShip || out.Reasons[0] != engine.ReasonGuardrailViolation {
		t.Fatalf("got %s %v, want do_not_ship guardrail_violation", out.Decision, out.Reasons)
	}
}

func TestEvaluateSoftBreachWarnsOnShip(t *testing.T) {
	b := newBundle(0.021, 0.01)
	b.Rows[1].Values["fillrate"] = 0.80 * (1 - 0.06) // derived effect -6%, soft threshold 5%
	out := evaluate(t, b)
	if out.Decision != engine.Ship {
		t.Fatalf("decision = %s, want ship", out.Decision)
	}
	want := []string{"primary_uplift", "guardrail_soft_warning"}
	if diff := cmp.Diff(want, out.ReasonStrings()); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateGuardrailMissingData(t *testing.T) {
	b := newBundle(0.021, 0.01)
	// fillrate stays in the header but neither row carries a usable value.
	delete(b.Rows[0].Values, "fillrate")
	delete(b.Rows[1].Values, "fillrate")
	out := evaluate(t, b)
	if out.Decision != engine.Ship {
		t.Fatalf("decision = %s, want ship", out.Decision)
	}
	want := []string{"primary_uplift", "guardrail_missing_data"}
	if diff := cmp.Diff(want, out.ReasonStrings()); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

// The effect falls back to (test-control)/control from absolute columns.
func TestEvaluateDerivedEffectBreaches(t *testing.T) {
	b := newBundle(0.013, 0.02)
	delete(b.Rows[1].Effects, "ctr")
	b.Rows[0].Values["ctr"] = 0.030
	b.Rows[1].Values["ctr"] = 0.030 * (1 - 0.05)
	out := evaluate(t, b)
	if out.Decision != engine.DoNotShip || out.Reasons[0] != engine.ReasonGuardrailViolation {
		t.Fatalf("got %s %v, want do_not_ship guardrail_violation", out.Decision, out.Reasons)
	}
}

func TestEvaluateReversalContradictionIsIntegrityError(t *testing.T) {
	b := newBundle(0.021, 0.01) // significant
	b.Contract.Hints.LongTermReversal = true
	_, err := newEngine(t).Evaluate(b, trace.Discard)
	var ie *engine.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *IntegrityError", err)
	}
	if engine.ErrorKind(err) != "integrity" {
		t.Errorf("ErrorKind = %s, want integrity", engine.ErrorKind(err))
	}
}

func TestEvaluateUnknownGuardrailMetricIsIntegrityError(t *testing.T) {
	b := newBundle(0.021, 0.01)
	b.Contract.Guardrails = []policy.GuardrailRule{
		{Metric: "dau", Direction: policy.DirectionUp, MaxDropRelative: 0.01, Severity: policy.SeverityHard},
	}
	_, err := newEngine(t).Evaluate(b, trace.Discard)
	var ie *engine.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *IntegrityError", err)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	b1 := newBundle(0.021, 0.01)
	addSegment(b1, "news", 0.022, 0.02)
	addSegment(b1, "dzen", 0.018, 0.03)
	b2 := newBundle(0.021, 0.01)
	addSegment(b2, "news", 0.022, 0.02)
	addSegment(b2, "dzen", 0.018, 0.03)

	doc1, err := evaluate(t, b1).MarshalDocument()
	if err != nil {
		t.Fatal(err)
	}
	doc2, err := evaluate(t, b2).MarshalDocument()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(doc1, doc2) {
		t.Fatalf("decision documents differ:\n%s\n---\n%s", doc1, doc2)
	}
}

func TestEvaluateEmitsLifecycleEvents(t *testing.T) {
	collector := trace.NewCollector("run-1")
	out, err := newEngine(t).Evaluate(newBundle(0.021, 0.01), collector)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	events := collector.Events()
	if len(events) < 2 {
		t.Fatalf("got %d events, want at least start and done", len(events))
	}
	first, last := events[0], events[len(events)-1]
	if first.Step != trace.StepStart {
		t.Errorf("first event step = %s, want start", first.Step)
	}
	if last.Step != trace.StepDone || last.Name != "decision_made" {
		t.Errorf("last event = %s/%s, want done/decision_made", last.Step, last.Name)
	}
	if last.Payload["decision"] != string(out.Decision) {
		t.Errorf("done payload decision = %v, want %s", last.Payload["decision"], out.Decision)
	}
}

func TestNewRejectsUncoveredWeights(t *testing.T) {
	pol := policy.Default()
	delete(pol.Confidence.Weights, "segment_conflict")
	if _, err := engine.New(pol); err == nil {
		t.Fatal("engine.New accepted a policy missing a reason weight")
	}
}

func TestNewRejectsNonNegativeBreachWeight(t *testing.T) {
	pol := policy.Default()
	pol.Confidence.Weights["guardrail_violation"] = 0.5
	if _, err := engine.New(pol); err == nil {
		t.Fatal("engine.New accepted a positive guardrail_violation weight")
	}
}

func TestEvaluateMissingAggregateRowIsSchemaError(t *testing.T) {
	b := newBundle(0.021, 0.01)
	b.Rows = b.Rows[:1] // control only, no "all" treatment row
	_, err := newEngine(t).Evaluate(b, trace.Discard)
	var se *casefile.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SchemaError", err)
	}
	if engine.ErrorKind(err) != "schema" {
		t.Errorf("ErrorKind = %s, want schema", engine.ErrorKind(err))
	}
}
