// Package engine renders shippability verdicts for A/B experiment cases.
//
// Evaluation is a pure function of (contract, metric rows, policy): an
// ordered rule cascade over the extracted signal snapshot picks exactly one
// terminal decision, and the resulting reason set is scored into a heuristic
// confidence. No state survives between evaluations; identical inputs yield
// byte-identical decision documents.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"abfactory/internal/casefile"
	"abfactory/internal/policy"
)

// Decision is the terminal verdict for a case.
type Decision string

const (
	Ship        Decision = "ship"
	DoNotShip   Decision = "do_not_ship"
	Investigate Decision = "investigate"
)

// Reason tags explain a decision in machine-checkable form. The enumeration
// is closed: policy loading fails unless every tag has a confidence weight.
type Reason string

const (
	ReasonPrimaryUplift        Reason = "primary_uplift"
	ReasonGuardrailViolation   Reason = "guardrail_violation"
	ReasonGuardrailSoftWarning Reason = "guardrail_soft_warning"
	ReasonGuardrailMissingData Reason = "guardrail_missing_data"
	ReasonSegmentConflict      Reason = "segment_conflict"
	ReasonLongTermReversal     Reason = "long_term_reversal"
	ReasonNotSignificant       Reason = "not_significant"
	ReasonPracticallySmall     Reason = "practically_small"
)

// ReasonTags returns every reachable reason tag.
func ReasonTags() []Reason {
	return []Reason{
		ReasonPrimaryUplift,
		ReasonGuardrailViolation,
		ReasonGuardrailSoftWarning,
		ReasonGuardrailMissingData,
		ReasonSegmentConflict,
		ReasonLongTermReversal,
		ReasonNotSignificant,
		ReasonPracticallySmall,
	}
}

// IntegrityError reports internally contradictory input: the case parsed
// cleanly but its figures cannot all be true at once. Reported distinctly
// from schema violations so operators can tell malformed input from
// inconsistent input.
type IntegrityError struct {
	Detail string
}

func (e *IntegrityError) Error() string { return "integrity: " + e.Detail }

func integrityErrorf(format string, args ...any) error {
	return &IntegrityError{Detail: fmt.Sprintf(format, args...)}
}

// ErrorKind classifies an evaluation error for trace payloads and batch
// reporting: "schema", "integrity" or "internal".
func ErrorKind(err error) string {
	var se *casefile.SchemaError
	if errors.As(err, &se) {
		return "schema"
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return "integrity"
	}
	return "internal"
}

// GuardrailSignal is the realized state of one guardrail rule.
type GuardrailSignal struct {
	Metric         string   `json:"metric"`
	Severity       string   `json:"severity"`
	EffectRelative *float64 `json:"effect_relative"`
	Breached       bool     `json:"breached"`
	Missing        bool     `json:"missing,omitempty"`
}

// SegmentSignal is the primary-metric effect within one segment.
type SegmentSignal struct {
	Segment        string  `json:"segment"`
	EffectRelative float64 `json:"effect_relative"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"significant"`
}

// Signals is the snapshot every decision is made from. It is derived fresh
// on each evaluation and embedded in the decision document; the engine never
// caches or persists it.
type Signals struct {
	PrimaryMetric              string            `json:"primary_metric"`
	EffectRelative             *float64          `json:"effect_relative"`
	PValue                     *float64          `json:"p_value"`
	Significant                bool              `json:"significant"`
	Alpha                      float64           `json:"alpha"`
	PracticalThresholdRelative float64           `json:"practical_threshold_relative"`
	Guardrails                 []GuardrailSignal `json:"guardrails"`
	Segments                   []SegmentSignal   `json:"segments,omitempty"`
	SegmentConflict            bool              `json:"segment_conflict"`
	ConflictLow                *SegmentSignal    `json:"conflict_low,omitempty"`
	ConflictHigh               *SegmentSignal    `json:"conflict_high,omitempty"`
	Reversal                   bool              `json:"long_term_reversal"`
}

func (s *Signals) hardBreached() bool {
	for _, g := range s.Guardrails {
		if g.Breached && g.Severity == policy.SeverityHard {
			return true
		}
	}
	return false
}

func (s *Signals) softBreached() bool {
	for _, g := range s.Guardrails {
		if g.Breached && g.Severity == policy.SeveritySoft {
			return true
		}
	}
	return false
}

func (s *Signals) guardrailDataMissing() bool {
	for _, g := range s.Guardrails {
		if g.Missing {
			return true
		}
	}
	return false
}

func (s *Signals) abovePractical() bool {
	if s.EffectRelative == nil {
		return false
	}
	eff := *s.EffectRelative
	if eff < 0 {
		eff = -eff
	}
	return eff >= s.PracticalThresholdRelative
}

// Factor is one contribution to the confidence score.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ConfidenceTrace explains how the confidence figure was produced.
type ConfidenceTrace struct {
	Score   float64  `json:"score"`
	Factors []Factor `json:"factors"`
}

// Outcome is the decision document: the engine's sole externally visible
// artifact, immutable once produced.
type Outcome struct {
	CaseID          string          `json:"case_id"`
	Decision        Decision        `json:"decision"`
	Confidence      float64         `json:"confidence"`
	Reasons         []Reason        `json:"reasons"`
	Policy          policy.Ref      `json:"policy"`
	Signals         *Signals        `json:"signals"`
	ConfidenceTrace ConfidenceTrace `json:"confidence_trace"`
}

// MarshalDocument renders the decision document as stable, indented JSON
// with a trailing newline. Field order is fixed by the struct layout, so
// identical outcomes marshal to identical bytes.
func (o *Outcome) MarshalDocument() ([]byte, error) {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("engine: marshal decision document: %w", err)
	}
	return append(data, '\n'), nil
}

// ReasonStrings converts the ordered reason tags for payloads and reports.
func (o *Outcome) ReasonStrings() []string {
	out := make([]string, len(o.Reasons))
	for i, r := range o.Reasons {
		out[i] = string(r)
	}
	return out
}
