package generate

import (
	"fmt"

	"abfactory/internal/casefile"
	"abfactory/internal/policy"
)

func (g *generator) build(caseID string, k kind) *builtCase {
	switch k {
	case kindGuardrail:
		return g.guardrailBreach(caseID)
	case kindSmall:
		return g.practicallySmall(caseID)
	case kindConflict:
		return g.segmentConflict(caseID)
	case kindReversal:
		return g.reversal(caseID)
	default:
		return g.cleanUplift(caseID)
	}
}

func (g *generator) contract(caseID, title string, segments []string) *casefile.Contract {
	horizon := int(g.intBetween(14, 28))
	return &casefile.Contract{
		CaseID:   caseID,
		Title:    title,
		Domain:   "ads_monetization",
		Unit:     "user",
		Variants: []string{casefile.ControlVariant, "treatment"},
		Segments: segments,
		Time: casefile.TimeRange{
			StartDate:   "2026-05-01",
			EndDate:     fmt.Sprintf("2026-05-%02d", 1+horizon),
			HorizonDays: horizon,
		},
		PrimaryMetric: casefile.PrimaryMetricSpec{Name: "revenue", Direction: "up", MDERelative: 0.01},
		Guardrails: []policy.GuardrailRule{
			{Metric: "ctr", Direction: policy.DirectionUp, MaxDropRelative: 0.03, Severity: policy.SeverityHard},
		},
		Stats:             casefile.Stats{Method: "welch_t", Alpha: 0.05, PowerTarget: 0.8},
		DecisionFramework: casefile.DecisionFramework{Rule: "fixed_horizon", PracticalThresholdRelative: 0.005},
	}
}

func (g *generator) cleanUplift(caseID string) *builtCase {
	revEff := g.between(0.010, 0.040)
	revP := g.between(0.001, 0.020)
	ctrEff := g.between(-0.010, 0.010)

	c := g.contract(caseID, "Ad layout variant with clean revenue uplift", nil)
	c.Notes = "Stable uplift across the window; guardrails within tolerance."
	return &builtCase{
		contract: c,
		truth: &casefile.Truth{
			CaseID:                caseID,
			ExpectedDecision:      "ship",
			PrimaryEffectRelative: revEff,
			IsStatSig:             true,
			GuardrailsOK:          true,
			KeyReasons:            []string{"primary_uplift"},
			HumanRationale:        "Significant, practically relevant revenue uplift with healthy guardrails.",
		},
		rows: g.pair(caseID, casefile.AllSegment, revEff, revP, ctrEff, g.between(0.05, 0.60)),
	}
}

func (g *generator) guardrailBreach(caseID string) *builtCase {
	revEff := g.between(0.010, 0.030)
	revP := g.between(0.001, 0.020)
	ctrEff := -g.between(0.050, 0.100)

	c := g.contract(caseID, "Aggressive ad density raising revenue at CTR's expense", nil)
	c.Notes = "Revenue up but engagement degraded past tolerance."
	return &builtCase{
		contract: c,
		truth: &casefile.Truth{
			CaseID:                caseID,
			ExpectedDecision:      "do_not_ship",
			PrimaryEffectRelative: revEff,
			IsStatSig:             true,
			GuardrailsOK:          false,
			KeyReasons:            []string{"guardrail_violation"},
			HumanRationale:        "CTR drop exceeds the hard guardrail; the uplift does not justify the damage.",
		},
		rows: g.pair(caseID, casefile.AllSegment, revEff, revP, ctrEff, g.between(0.001, 0.020)),
	}
}

func (g *generator) practicallySmall(caseID string) *builtCase {
	revEff := g.between(0.0005, 0.0030)
	revP := g.between(0.001, 0.030)
	ctrEff := g.between(-0.005, 0.005)

	c := g.contract(caseID, "Marginal bid tweak with tiny but measurable effect", nil)
	c.Notes = "Huge sample makes a negligible effect statistically visible."
	return &builtCase{
		contract: c,
		truth: &casefile.Truth{
			CaseID:                caseID,
			ExpectedDecision:      "do_not_ship",
			PrimaryEffectRelative: revEff,
			IsStatSig:             true,
			GuardrailsOK:          true,
			KeyReasons:            []string{"practically_small"},
			HumanRationale:        "Statistically significant but below the practical threshold; not worth the rollout.",
		},
		rows: g.pair(caseID, casefile.AllSegment, revEff, revP, ctrEff, g.between(0.05, 0.60)),
	}
}

func (g *generator) segmentConflict(caseID string) *builtCase {
	aggEff := g.between(0.002, 0.010)
	aggP := g.between(0.15, 0.40)
	iosEff := g.between(0.030, 0.050)
	droidEff := -g.between(0.030, 0.050)

	c := g.contract(caseID, "Format change helping iOS while hurting Android", []string{"ios", "android"})
	c.Notes = "Platform-dependent renderer behavior suspected."
	rows := g.pair(caseID, casefile.AllSegment, aggEff, aggP, g.between(-0.005, 0.005), g.between(0.05, 0.60))
	rows = append(rows, g.pair(caseID, "ios", iosEff, g.between(0.001, 0.020), g.between(-0.005, 0.005), g.between(0.05, 0.60))...)
	rows = append(rows, g.pair(caseID, "android", droidEff, g.between(0.001, 0.020), g.between(-0.005, 0.005), g.between(0.05, 0.60))...)
	return &builtCase{
		contract: c,
		truth: &casefile.Truth{
			CaseID:                caseID,
			ExpectedDecision:      "investigate",
			PrimaryEffectRelative: aggEff,
			IsStatSig:             false,
			GuardrailsOK:          true,
			KeyReasons:            []string{"segment_conflict"},
			HumanRationale:        "Significant gains on iOS cancel against significant losses on Android; needs a per-platform look.",
		},
		rows: rows,
	}
}

func (g *generator) reversal(caseID string) *builtCase {
	revEff := g.between(0.010, 0.020)
	revP := g.between(0.10, 0.30)
	ctrEff := g.between(-0.005, 0.005)

	c := g.contract(caseID, "Novelty-driven uplift fading into a reversal", nil)
	c.Notes = "Early gains decayed through the window and flipped in the final periods."
	c.Hints.LongTermReversal = true
	return &builtCase{
		contract: c,
		truth: &casefile.Truth{
			CaseID:                caseID,
			ExpectedDecision:      "do_not_ship",
			PrimaryEffectRelative: revEff,
			IsStatSig:             false,
			GuardrailsOK:          true,
			KeyReasons:            []string{"long_term_reversal"},
			HumanRationale:        "The trend flipped over the horizon; the aggregate uplift is a novelty artifact.",
		},
		rows: g.pair(caseID, casefile.AllSegment, revEff, revP, ctrEff, g.between(0.05, 0.60)),
	}
}
