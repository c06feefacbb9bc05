package engine

import (
	"testing"

	"abfactory/internal/policy"
)

func sigWith(mut func(*Signals)) *Signals {
	eff := 0.021
	p := 0.01
	s := &Signals{
		PrimaryMetric:              "revenue",
		EffectRelative:             &eff,
		PValue:                     &p,
		Significant:                true,
		Alpha:                      0.05,
		PracticalThresholdRelative: 0.005,
		Guardrails: []GuardrailSignal{
			{Metric: "ctr", Severity: policy.SeverityHard, Breached: false},
		},
	}
	if mut != nil {
		mut(s)
	}
	return s
}

func TestDecideCascadeOrder(t *testing.T) {
	tests := []struct {
		name     string
		mut      func(*Signals)
		decision Decision
		primary  Reason
	}{
		{"clean uplift ships", nil, Ship, ReasonPrimaryUplift},
		{"hard breach vetoes", func(s *Signals) {
			s.Guardrails[0].Breached = true
		}, DoNotShip, ReasonGuardrailViolation},
		{"conflict investigates", func(s *Signals) {
			s.SegmentConflict = true
		}, Investigate, ReasonSegmentConflict},
		{"reversal blocks", func(s *Signals) {
			s.Reversal = true
			s.Significant = false
		}, DoNotShip, ReasonLongTermReversal},
		{"insignificant blocks", func(s *Signals) {
			s.Significant = false
		}, DoNotShip, ReasonNotSignificant},
		{"tiny effect blocks", func(s *Signals) {
			eff := 0.003
			s.EffectRelative = &eff
		}, DoNotShip, ReasonPracticallySmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, reasons := decide(sigWith(tt.mut))
			if d != tt.decision {
				t.Errorf("decision = %s, want %s", d, tt.decision)
			}
			if len(reasons) == 0 || reasons[0] != tt.primary {
				t.Errorf("reasons = %v, want primary %s", reasons, tt.primary)
			}
		})
	}
}

// A hard breach must dominate even a significant, practically large uplift.
func TestDecideHardBreachDominatesUplift(t *testing.T) {
	s := sigWith(func(s *Signals) {
		s.Guardrails[0].Breached = true
		s.SegmentConflict = true
		s.Reversal = true
		s.Significant = false
	})
	d, reasons := decide(s)
	if d != DoNotShip || reasons[0] != ReasonGuardrailViolation {
		t.Fatalf("got %s %v, want do_not_ship guardrail_violation", d, reasons)
	}
}

func TestDecideSecondaryTags(t *testing.T) {
	t.Run("not_significant on conflict", func(t *testing.T) {
		_, reasons := decide(sigWith(func(s *Signals) {
			s.SegmentConflict = true
			s.Significant = false
		}))
		want := []Reason{ReasonSegmentConflict, ReasonNotSignificant}
		assertReasons(t, reasons, want)
	})
	t.Run("not_significant on reversal", func(t *testing.T) {
		_, reasons := decide(sigWith(func(s *Signals) {
			s.Reversal = true
			s.Significant = false
		}))
		assertReasons(t, reasons, []Reason{ReasonLongTermReversal, ReasonNotSignificant})
	})
	t.Run("soft warning only on ship", func(t *testing.T) {
		soft := func(s *Signals) {
			s.Guardrails = append(s.Guardrails, GuardrailSignal{
				Metric: "fillrate", Severity: policy.SeveritySoft, Breached: true,
			})
		}
		_, reasons := decide(sigWith(soft))
		assertReasons(t, reasons, []Reason{ReasonPrimaryUplift, ReasonGuardrailSoftWarning})

		_, reasons = decide(sigWith(func(s *Signals) {
			soft(s)
			s.Significant = false
		}))
		assertReasons(t, reasons, []Reason{ReasonNotSignificant})
	})
	t.Run("missing data tags every outcome", func(t *testing.T) {
		missing := func(s *Signals) {
			s.Guardrails = append(s.Guardrails, GuardrailSignal{
				Metric: "fillrate", Severity: policy.SeveritySoft, Missing: true,
			})
		}
		_, reasons := decide(sigWith(missing))
		assertReasons(t, reasons, []Reason{ReasonPrimaryUplift, ReasonGuardrailMissingData})

		_, reasons = decide(sigWith(func(s *Signals) {
			missing(s)
			s.Guardrails[0].Breached = true
		}))
		assertReasons(t, reasons, []Reason{ReasonGuardrailViolation, ReasonGuardrailMissingData})
	})
}

// Every signal combination must land in exactly one verdict.
func TestDecideTotalCoverage(t *testing.T) {
	bools := []bool{false, true}
	for _, breach := range bools {
		for _, conflict := range bools {
			for _, reversal := range bools {
				for _, significant := range bools {
					for _, big := range bools {
						s := sigWith(func(s *Signals) {
							s.Guardrails[0].Breached = breach
							s.SegmentConflict = conflict
							s.Reversal = reversal
							s.Significant = significant
							if !big {
								eff := 0.001
								s.EffectRelative = &eff
							}
						})
						d, reasons := decide(s)
						switch d {
						case Ship, DoNotShip, Investigate:
						default:
							t.Fatalf("unclassified decision %q", d)
						}
						if len(reasons) == 0 {
							t.Fatalf("empty reasons for %+v", s)
						}
					}
				}
			}
		}
	}
}

func TestBreached(t *testing.T) {
	up := policy.GuardrailRule{Metric: "ctr", Direction: policy.DirectionUp, MaxDropRelative: 0.03}
	neutral := policy.GuardrailRule{Metric: "fillrate", Direction: policy.DirectionNeutral, MaxDropRelative: 0.05}
	down := policy.GuardrailRule{Metric: "complaints", Direction: policy.DirectionDown, MaxRiseRelative: 0.02}

	tests := []struct {
		name string
		rule policy.GuardrailRule
		eff  float64
		want bool
	}{
		{"up metric within tolerance", up, -0.02, false},
		{"up metric past tolerance", up, -0.04, true},
		{"up metric rising never breaches", up, 0.10, false},
		{"neutral guards drops", neutral, -0.06, true},
		{"down metric rising past tolerance", down, 0.03, true},
		{"down metric falling never breaches", down, -0.10, false},
		{"exact threshold is tolerated", up, -0.03, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := breached(tt.rule, tt.eff); got != tt.want {
				t.Errorf("breached(%v, %v) = %v, want %v", tt.rule, tt.eff, got, tt.want)
			}
		})
	}
}

func assertReasons(t *testing.T, got, want []Reason) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("reasons = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reasons = %v, want %v", got, want)
		}
	}
}
