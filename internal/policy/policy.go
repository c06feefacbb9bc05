// Package policy holds the versioned decision policy: significance level,
// practical-effect floor, guardrail rules, segment-conflict threshold and
// the confidence model. A policy is loaded once per run and treated as
// read-only for every case evaluated in that run.
package policy

import (
	_ "embed"
	"fmt"
)

//go:embed default.yaml
var defaultPolicy []byte

// Guardrail directions.
const (
	DirectionUp      = "up"      // metric should increase; drops are degradation
	DirectionDown    = "down"    // metric should decrease; rises are degradation
	DirectionNeutral = "neutral" // metric should hold; drops are degradation
)

// Guardrail severities.
const (
	SeverityHard = "hard" // breach vetoes shipping
	SeveritySoft = "soft" // breach only annotates
)

// GuardrailRule bounds the tolerated degradation of a secondary metric.
// All thresholds are relative fractions (0.03 = 3%).
type GuardrailRule struct {
	Metric          string  `json:"metric" yaml:"metric"`
	Direction       string  `json:"direction" yaml:"direction"`
	MaxDropRelative float64 `json:"max_drop_relative,omitempty" yaml:"max_drop_relative,omitempty"`
	MaxRiseRelative float64 `json:"max_rise_relative,omitempty" yaml:"max_rise_relative,omitempty"`
	Severity        string  `json:"severity" yaml:"severity"`
}

// Significance holds the statistical gate.
type Significance struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// PrimaryMetric carries the policy floor for practical relevance. The
// effective threshold per case is max(contract, policy).
type PrimaryMetric struct {
	PracticalThresholdRelative float64 `json:"practical_threshold_relative" yaml:"practical_threshold_relative"`
}

// Segments configures the segment-conflict scanner.
type Segments struct {
	ConflictGapRelative float64 `json:"conflict_gap_relative" yaml:"conflict_gap_relative"`
}

// Confidence is the linear-score-sigmoid model: signed weights per reason
// tag, summed over the reason set and squashed into (0, 1). It yields a
// heuristic display figure, not a calibrated probability.
type Confidence struct {
	Base    float64            `json:"base" yaml:"base"`
	Weights map[string]float64 `json:"weights" yaml:"weights"`
}

// Policy is the immutable decision configuration, referenced by name and
// version in every decision document it produces.
type Policy struct {
	Name          string          `json:"name" yaml:"name"`
	Version       string          `json:"version" yaml:"version"`
	Significance  Significance    `json:"significance" yaml:"significance"`
	PrimaryMetric PrimaryMetric   `json:"primary_metric" yaml:"primary_metric"`
	Guardrails    []GuardrailRule `json:"guardrails" yaml:"guardrails"`
	Segments      Segments        `json:"segments" yaml:"segments"`
	Confidence    Confidence      `json:"confidence" yaml:"confidence"`
}

// Ref identifies the policy a decision was made under.
type Ref struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Ref returns the name+version reference embedded in decision documents.
func (p *Policy) Ref() Ref {
	return Ref{Name: p.Name, Version: p.Version}
}

// Default returns the embedded default policy. Panics only on a corrupted
// build (the embedded document is validated by tests).
func Default() *Policy {
	p, err := Load(defaultPolicy, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("policy: embedded default is invalid: %v", err))
	}
	return p
}

// Validate checks structural misconfiguration. Weight coverage against the
// reachable reason tags is checked by the engine at construction, which owns
// that enumeration.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy: name is required")
	}
	if p.Version == "" {
		return fmt.Errorf("policy: version is required")
	}
	if p.Significance.Alpha <= 0 || p.Significance.Alpha >= 1 {
		return fmt.Errorf("policy: significance.alpha must be in (0, 1), got %v", p.Significance.Alpha)
	}
	if p.PrimaryMetric.PracticalThresholdRelative < 0 {
		return fmt.Errorf("policy: primary_metric.practical_threshold_relative must be >= 0")
	}
	if p.Segments.ConflictGapRelative < 0 {
		return fmt.Errorf("policy: segments.conflict_gap_relative must be >= 0")
	}
	seen := make(map[string]bool, len(p.Guardrails))
	for i, g := range p.Guardrails {
		if g.Metric == "" {
			return fmt.Errorf("policy: guardrails[%d]: metric is required", i)
		}
		if seen[g.Metric] {
			return fmt.Errorf("policy: duplicate guardrail rule for metric %q", g.Metric)
		}
		seen[g.Metric] = true
		switch g.Direction {
		case DirectionUp, DirectionDown, DirectionNeutral:
		default:
			return fmt.Errorf("policy: guardrails[%d] (%s): direction must be up, down or neutral", i, g.Metric)
		}
		switch g.Severity {
		case SeverityHard, SeveritySoft:
		default:
			return fmt.Errorf("policy: guardrails[%d] (%s): severity must be hard or soft", i, g.Metric)
		}
		if g.MaxDropRelative < 0 || g.MaxRiseRelative < 0 {
			return fmt.Errorf("policy: guardrails[%d] (%s): thresholds must be >= 0", i, g.Metric)
		}
		if g.MaxDropRelative == 0 && g.MaxRiseRelative == 0 {
			return fmt.Errorf("policy: guardrails[%d] (%s): at least one of max_drop_relative, max_rise_relative is required", i, g.Metric)
		}
	}
	return nil
}

// WeightsCover reports the first reachable reason tag without a configured
// confidence weight, if any. The engine passes its closed tag enumeration.
func (p *Policy) WeightsCover(tags []string) error {
	for _, tag := range tags {
		if _, ok := p.Confidence.Weights[tag]; !ok {
			return fmt.Errorf("policy: confidence weight missing for reachable reason tag %q", tag)
		}
	}
	return nil
}
