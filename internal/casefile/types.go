// Package casefile reads and validates case bundles: the contract, the
// ground-truth label and the per-(segment, variant) metric rows. The engine
// only ever reads these structures; nothing here is mutated after load.
package casefile

import (
	"fmt"

	"abfactory/internal/policy"
)

// ControlVariant is the reserved variant label for the baseline arm.
const ControlVariant = "control"

// AllSegment is the reserved segment label for the unsegmented aggregate.
// Its treatment row carries the canonical top-line figures.
const AllSegment = "all"

// SchemaError reports malformed input: a missing required field, a missing
// file or an input that violates the case schema. A schema error is fatal
// for the case but never for the batch.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return "schema: " + e.Detail }

func schemaErrorf(format string, args ...any) error {
	return &SchemaError{Detail: fmt.Sprintf(format, args...)}
}

// PrimaryMetricSpec names the metric the experiment is run for.
type PrimaryMetricSpec struct {
	Name        string  `json:"name"`
	Direction   string  `json:"direction"` // "up" or "down"
	MDERelative float64 `json:"mde_relative"`
}

// TimeRange is the experiment window.
type TimeRange struct {
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	HorizonDays int    `json:"horizon_days"`
}

// Stats carries the supplied inference parameters. The engine never computes
// statistics from raw observations; p-values arrive precomputed in the rows.
type Stats struct {
	Method      string  `json:"method"`
	Alpha       float64 `json:"alpha"`
	PowerTarget float64 `json:"power_target"`
}

// DecisionFramework names the stop rule and the contract-level practical
// threshold. The policy's threshold acts as a floor.
type DecisionFramework struct {
	Rule                       string  `json:"rule"`
	PracticalThresholdRelative float64 `json:"practical_threshold_relative"`
}

// Hints carries machine-readable markers that free-text notes may refer to.
// LongTermReversal is the precomputed per-period trend-flip indicator; the
// engine validates it against the aggregate significance but never derives
// it from prose or from a timeseries.
type Hints struct {
	LongTermReversal bool `json:"long_term_reversal,omitempty"`
}

// Contract is the per-case experiment contract.
type Contract struct {
	CaseID            string                 `json:"case_id"`
	Title             string                 `json:"title"`
	Domain            string                 `json:"domain"`
	Unit              string                 `json:"unit"`
	Variants          []string               `json:"variants"`
	Segments          []string               `json:"segments,omitempty"`
	Time              TimeRange              `json:"time"`
	PrimaryMetric     PrimaryMetricSpec      `json:"primary_metric"`
	Guardrails        []policy.GuardrailRule `json:"guardrails"`
	Stats             Stats                  `json:"stats"`
	DecisionFramework DecisionFramework      `json:"decision_framework"`
	Notes             string                 `json:"notes,omitempty"`
	Hints             Hints                  `json:"hints,omitempty"`
}

// Validate checks the contract schema, including the invariant that the
// primary metric is not also configured as a guardrail.
func (c *Contract) Validate() error {
	if c.CaseID == "" {
		return schemaErrorf("contract: case_id is required")
	}
	if len(c.Variants) < 2 {
		return schemaErrorf("contract %s: variants must list control and at least one treatment", c.CaseID)
	}
	if c.PrimaryMetric.Name == "" {
		return schemaErrorf("contract %s: primary_metric.name is required", c.CaseID)
	}
	if c.PrimaryMetric.Direction != "up" && c.PrimaryMetric.Direction != "down" {
		return schemaErrorf("contract %s: primary_metric.direction must be \"up\" or \"down\"", c.CaseID)
	}
	if c.Stats.Alpha < 0 || c.Stats.Alpha >= 1 {
		return schemaErrorf("contract %s: stats.alpha must be in [0, 1)", c.CaseID)
	}
	for _, g := range c.Guardrails {
		if g.Metric == c.PrimaryMetric.Name {
			return schemaErrorf("contract %s: primary metric %q must not also be a guardrail", c.CaseID, g.Metric)
		}
	}
	return nil
}

// Truth is the ground-truth label paired with a case, consumed only by the
// batch verification and corpus tools — never by the engine.
type Truth struct {
	CaseID                string   `json:"case_id"`
	ExpectedDecision      string   `json:"expected_decision"`
	PrimaryEffectRelative float64  `json:"primary_effect_relative"`
	IsStatSig             bool     `json:"is_stat_sig"`
	GuardrailsOK          bool     `json:"guardrails_ok"`
	KeyReasons            []string `json:"key_reasons"`
	HumanRationale        string   `json:"human_rationale"`
}

// MetricRow holds one (segment, variant) observation. Values carries the
// absolute figure per metric; Effects and PValues are present on treatment
// rows only, keyed by metric name. Absence of a key means the figure was
// not supplied for this row.
type MetricRow struct {
	Segment string
	Variant string
	NUsers  int64
	Values  map[string]float64
	Effects map[string]float64
	PValues map[string]float64
}

// IsControl reports whether the row belongs to the baseline arm.
func (r *MetricRow) IsControl() bool { return r.Variant == ControlVariant }

// Bundle is one loaded case: contract, rows and (when present) the paired
// ground truth.
type Bundle struct {
	Dir      string
	Contract *Contract
	Truth    *Truth // nil when truth.json is absent
	Rows     []MetricRow

	// HeaderMetrics is the set of metric names present in the data header
	// (from absolute, effect or p-value columns). A guardrail rule naming a
	// metric outside this set is internally contradictory input.
	HeaderMetrics map[string]bool
}

// ControlRow returns the control row for a segment, or nil.
func (b *Bundle) ControlRow(segment string) *MetricRow {
	for i := range b.Rows {
		if b.Rows[i].Segment == segment && b.Rows[i].IsControl() {
			return &b.Rows[i]
		}
	}
	return nil
}

// TreatmentRow returns the first non-control row for a segment, or nil.
func (b *Bundle) TreatmentRow(segment string) *MetricRow {
	for i := range b.Rows {
		if b.Rows[i].Segment == segment && !b.Rows[i].IsControl() {
			return &b.Rows[i]
		}
	}
	return nil
}

// SegmentsInData returns the distinct segment labels present in the rows,
// in first-appearance order.
func (b *Bundle) SegmentsInData() []string {
	seen := map[string]bool{}
	var out []string
	for i := range b.Rows {
		if s := b.Rows[i].Segment; !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Validate enforces the row-shape invariants: the "all" aggregate and every
// declared segment must have exactly one control row and at least one
// treatment row.
func (b *Bundle) Validate() error {
	if err := b.Contract.Validate(); err != nil {
		return err
	}
	segments := append([]string{AllSegment}, b.Contract.Segments...)
	for _, seg := range segments {
		controls, treatments := 0, 0
		for i := range b.Rows {
			if b.Rows[i].Segment != seg {
				continue
			}
			if b.Rows[i].IsControl() {
				controls++
			} else {
				treatments++
			}
		}
		if controls != 1 {
			return schemaErrorf("case %s: segment %q must have exactly one control row, found %d",
				b.Contract.CaseID, seg, controls)
		}
		if treatments < 1 {
			return schemaErrorf("case %s: segment %q has no treatment row", b.Contract.CaseID, seg)
		}
	}
	return nil
}
