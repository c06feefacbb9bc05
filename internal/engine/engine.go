package engine

import (
	"fmt"
	"log/slog"

	"abfactory/internal/casefile"
	"abfactory/internal/logging"
	"abfactory/internal/policy"
	"abfactory/internal/trace"
)

// Engine evaluates case bundles under one validated policy. It holds no
// per-case state and is safe for concurrent use.
type Engine struct {
	pol *policy.Policy
	log *slog.Logger
}

// New validates the policy and its confidence-weight coverage before any case
// is touched. A tag without a weight is a policy misconfiguration, caught
// here rather than mid-batch.
func New(pol *policy.Policy) (*Engine, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(ReasonTags()))
	for _, t := range ReasonTags() {
		tags = append(tags, string(t))
	}
	if err := pol.WeightsCover(tags); err != nil {
		return nil, err
	}
	// A hard breach must always pull confidence down, or adding one to a
	// reason set would no longer lower the score.
	if w := pol.Confidence.Weights[string(ReasonGuardrailViolation)]; w >= 0 {
		return nil, fmt.Errorf("policy: confidence weight for %q must be negative, got %v",
			ReasonGuardrailViolation, w)
	}
	return &Engine{pol: pol, log: logging.New("engine")}, nil
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() *policy.Policy { return e.pol }

// Evaluate produces the decision document for one loaded case, emitting
// lifecycle events to tr. Errors carry their kind (schema, integrity,
// internal) via ErrorKind.
func (e *Engine) Evaluate(b *casefile.Bundle, tr trace.Emitter) (*Outcome, error) {
	caseID := b.Contract.CaseID
	tr.Emit(trace.Event{
		CaseID:    caseID,
		Component: "decision",
		Step:      trace.StepStart,
		Name:      "policy_loaded",
		Message:   fmt.Sprintf("evaluating under policy %s v%s", e.pol.Name, e.pol.Version),
		Payload: map[string]any{
			"policy_name":    e.pol.Name,
			"policy_version": e.pol.Version,
		},
	})

	signals, err := extractSignals(b, e.pol)
	if err != nil {
		e.emitError(tr, caseID, err)
		return nil, err
	}

	decision, reasons := decide(signals)
	conf, ctrace := confidence(e.pol.Confidence, reasons)

	out := &Outcome{
		CaseID:          caseID,
		Decision:        decision,
		Confidence:      conf,
		Reasons:         reasons,
		Policy:          e.pol.Ref(),
		Signals:         signals,
		ConfidenceTrace: ctrace,
	}

	e.log.Info("decision made",
		"case", caseID, "decision", string(decision), "confidence", conf)
	tr.Emit(trace.Event{
		CaseID:    caseID,
		Component: "decision",
		Step:      trace.StepDone,
		Name:      "decision_made",
		Message:   fmt.Sprintf("%s (confidence %.4f)", decision, conf),
		Payload: map[string]any{
			"decision":   string(decision),
			"confidence": conf,
			"reasons":    out.ReasonStrings(),
		},
	})
	return out, nil
}

func (e *Engine) emitError(tr trace.Emitter, caseID string, err error) {
	kind := ErrorKind(err)
	e.log.Error("evaluation failed", "case", caseID, "kind", kind, "err", err)
	tr.Emit(trace.Event{
		CaseID:    caseID,
		Component: "decision",
		Step:      trace.StepError,
		Name:      "evaluation_failed",
		Severity:  trace.SeverityError,
		Message:   err.Error(),
		Payload:   map[string]any{"kind": kind},
	})
}
