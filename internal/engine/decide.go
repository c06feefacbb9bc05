package engine

// The cascade is an ordered rule table: the first matching rule wins and
// fixes both the decision and the primary reason. Hard guardrail breaches
// outrank everything, mixed segment evidence outranks a reversal, and
// significance gates practical size.
type rule struct {
	name     string
	matches  func(*Signals) bool
	decision Decision
	reason   Reason
}

var cascade = []rule{
	{
		name:     "hard_guardrail_breach",
		matches:  (*Signals).hardBreached,
		decision: DoNotShip,
		reason:   ReasonGuardrailViolation,
	},
	{
		name:     "segment_conflict",
		matches:  func(s *Signals) bool { return s.SegmentConflict },
		decision: Investigate,
		reason:   ReasonSegmentConflict,
	},
	{
		name:     "long_term_reversal",
		matches:  func(s *Signals) bool { return s.Reversal },
		decision: DoNotShip,
		reason:   ReasonLongTermReversal,
	},
	{
		name:     "not_significant",
		matches:  func(s *Signals) bool { return !s.Significant },
		decision: DoNotShip,
		reason:   ReasonNotSignificant,
	},
	{
		name:     "practically_small",
		matches:  func(s *Signals) bool { return !s.abovePractical() },
		decision: DoNotShip,
		reason:   ReasonPracticallySmall,
	},
	{
		name:     "primary_uplift",
		matches:  func(*Signals) bool { return true },
		decision: Ship,
		reason:   ReasonPrimaryUplift,
	},
}

// decide runs the cascade and annotates the primary reason with the
// secondary tags that still apply to the winning rule.
func decide(s *Signals) (Decision, []Reason) {
	for _, r := range cascade {
		if !r.matches(s) {
			continue
		}
		reasons := []Reason{r.reason}
		switch r.reason {
		case ReasonSegmentConflict, ReasonLongTermReversal:
			if !s.Significant {
				reasons = append(reasons, ReasonNotSignificant)
			}
		case ReasonPrimaryUplift:
			// Soft warnings only matter on a verdict that survives to ship.
			if s.softBreached() {
				reasons = append(reasons, ReasonGuardrailSoftWarning)
			}
		}
		if s.guardrailDataMissing() {
			reasons = append(reasons, ReasonGuardrailMissingData)
		}
		return r.decision, reasons
	}
	// The final rule matches unconditionally.
	return DoNotShip, []Reason{ReasonNotSignificant}
}
