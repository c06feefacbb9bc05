package engine

import (
	"fmt"

	"abfactory/internal/casefile"
	"abfactory/internal/policy"
)

// extractSignals derives the decision snapshot from a loaded bundle. It is
// pure: no I/O, no clock, no engine state.
func extractSignals(b *casefile.Bundle, pol *policy.Policy) (*Signals, error) {
	c := b.Contract

	alpha := c.Stats.Alpha
	if alpha == 0 {
		alpha = pol.Significance.Alpha
	}
	practical := c.DecisionFramework.PracticalThresholdRelative
	if pol.PrimaryMetric.PracticalThresholdRelative > practical {
		practical = pol.PrimaryMetric.PracticalThresholdRelative
	}

	s := &Signals{
		PrimaryMetric:              c.PrimaryMetric.Name,
		Alpha:                      alpha,
		PracticalThresholdRelative: practical,
		Reversal:                   c.Hints.LongTermReversal,
	}

	aggregate := b.TreatmentRow(casefile.AllSegment)
	control := b.ControlRow(casefile.AllSegment)
	if aggregate == nil || control == nil {
		return nil, &casefile.SchemaError{Detail: fmt.Sprintf(
			"case %s: %q segment must have a control and a treatment row", c.CaseID, casefile.AllSegment)}
	}
	s.EffectRelative = effectFor(aggregate, control, c.PrimaryMetric.Name)
	if p, ok := aggregate.PValues[c.PrimaryMetric.Name]; ok {
		s.PValue = &p
	}
	s.Significant = s.PValue != nil && *s.PValue < alpha

	if err := extractGuardrails(s, b, pol, aggregate, control); err != nil {
		return nil, err
	}
	extractSegments(s, b, pol, alpha)

	// A claimed long-term reversal alongside a significant aggregate effect
	// means the inputs contradict each other.
	if s.Reversal && s.Significant {
		return nil, integrityErrorf(
			"case %s: long-term reversal is claimed but the aggregate %s effect is significant (p=%v, alpha=%v)",
			c.CaseID, c.PrimaryMetric.Name, *s.PValue, alpha)
	}
	return s, nil
}

// extractGuardrails evaluates the policy's guardrail rules plus any contract
// guardrails for metrics the policy does not cover. A rule naming a metric
// absent from the data header is an integrity error; a rule whose metric is
// in the header but has no derivable effect is recorded as missing data.
func extractGuardrails(s *Signals, b *casefile.Bundle, pol *policy.Policy, aggregate, control *casefile.MetricRow) error {
	covered := map[string]bool{}
	rules := make([]policy.GuardrailRule, 0, len(pol.Guardrails)+len(b.Contract.Guardrails))
	for _, r := range pol.Guardrails {
		covered[r.Metric] = true
		rules = append(rules, r)
	}
	for _, r := range b.Contract.Guardrails {
		if covered[r.Metric] {
			continue
		}
		if r.Direction == "" {
			r.Direction = policy.DirectionUp
		}
		if r.Severity == "" {
			r.Severity = policy.SeverityHard
		}
		rules = append(rules, r)
	}

	for _, r := range rules {
		if !b.HeaderMetrics[r.Metric] {
			return integrityErrorf("case %s: guardrail metric %q is absent from the data schema",
				b.Contract.CaseID, r.Metric)
		}
		g := GuardrailSignal{Metric: r.Metric, Severity: r.Severity}
		g.EffectRelative = effectFor(aggregate, control, r.Metric)
		if g.EffectRelative == nil {
			g.Missing = true
		} else {
			g.Breached = breached(r, *g.EffectRelative)
		}
		s.Guardrails = append(s.Guardrails, g)
	}
	return nil
}

// breached applies one guardrail rule to a realized relative effect. Metrics
// that should not drop breach on a fall past max_drop_relative; metrics that
// should not rise breach on a climb past max_rise_relative.
func breached(r policy.GuardrailRule, eff float64) bool {
	switch r.Direction {
	case policy.DirectionDown:
		return eff > 0 && eff > r.MaxRiseRelative
	default: // up and neutral guard against drops
		return eff < 0 && -eff > r.MaxDropRelative
	}
}

// extractSegments reads per-segment primary-metric effects and flags a
// conflict when significant effects point in opposite directions and the
// spread exceeds the policy gap.
func extractSegments(s *Signals, b *casefile.Bundle, pol *policy.Policy, alpha float64) {
	for _, seg := range b.Contract.Segments {
		row := b.TreatmentRow(seg)
		if row == nil {
			continue
		}
		eff, effOK := row.Effects[s.PrimaryMetric]
		p, pOK := row.PValues[s.PrimaryMetric]
		if !effOK || !pOK {
			continue
		}
		s.Segments = append(s.Segments, SegmentSignal{
			Segment:        seg,
			EffectRelative: eff,
			PValue:         p,
			Significant:    p < alpha,
		})
	}
	if len(s.Segments) < 2 {
		return
	}

	low, high := &s.Segments[0], &s.Segments[0]
	sigPos, sigNeg := false, false
	for i := range s.Segments {
		seg := &s.Segments[i]
		if seg.EffectRelative < low.EffectRelative {
			low = seg
		}
		if seg.EffectRelative > high.EffectRelative {
			high = seg
		}
		if seg.Significant && seg.EffectRelative > 0 {
			sigPos = true
		}
		if seg.Significant && seg.EffectRelative < 0 {
			sigNeg = true
		}
	}
	if sigPos && sigNeg && high.EffectRelative-low.EffectRelative >= pol.Segments.ConflictGapRelative {
		s.SegmentConflict = true
		s.ConflictLow = low
		s.ConflictHigh = high
	}
}

// effectFor returns the relative effect of a metric on the treatment row,
// falling back to (treatment-control)/control from the absolute columns when
// the effect column was not supplied. Nil means no figure is derivable.
func effectFor(treatment, control *casefile.MetricRow, metric string) *float64 {
	if treatment == nil {
		return nil
	}
	if eff, ok := treatment.Effects[metric]; ok {
		return &eff
	}
	if control == nil {
		return nil
	}
	tv, tok := treatment.Values[metric]
	cv, cok := control.Values[metric]
	if !tok || !cok || cv == 0 {
		return nil
	}
	eff := (tv - cv) / cv
	return &eff
}
