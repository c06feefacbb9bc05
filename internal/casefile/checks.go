package casefile

import (
	"fmt"
	"math"
	"strings"
)

// Check is one data sanity check outcome.
type Check struct {
	Name   string `json:"check"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail"`
}

// RunChecks runs the pre-decision sanity checks over a loaded bundle. These
// are advisory: the report records them, the engine does not consume them.
func RunChecks(b *Bundle) []Check {
	return []Check{
		checkVariantsPerSegment(b),
		checkPValuesInRange(b),
		checkEffectsReasonable(b),
		checkSampleSizes(b),
	}
}

// AllPass reports whether every check passed.
func AllPass(checks []Check) bool {
	for _, c := range checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

func checkVariantsPerSegment(b *Bundle) Check {
	expected := map[string]bool{}
	for _, v := range b.Contract.Variants {
		expected[v] = true
	}
	var issues []string
	for _, seg := range b.SegmentsInData() {
		present := map[string]bool{}
		for i := range b.Rows {
			if b.Rows[i].Segment == seg {
				present[b.Rows[i].Variant] = true
			}
		}
		var missing []string
		for v := range expected {
			if !present[v] {
				missing = append(missing, v)
			}
		}
		if len(missing) > 0 {
			issues = append(issues, fmt.Sprintf("segment %q missing variants %v", seg, missing))
		}
	}
	return result("variants_per_segment", issues)
}

func checkPValuesInRange(b *Bundle) Check {
	var issues []string
	for i := range b.Rows {
		for metric, p := range b.Rows[i].PValues {
			if p < 0 || p > 1 {
				issues = append(issues, fmt.Sprintf("row %d: %s_p_value=%v", i, metric, p))
			}
		}
	}
	return result("p_values_in_range", issues)
}

// Effects beyond ±50% are almost always a data bug, not a real experiment.
func checkEffectsReasonable(b *Bundle) Check {
	var issues []string
	for i := range b.Rows {
		for metric, eff := range b.Rows[i].Effects {
			if math.Abs(eff) > 0.50 {
				issues = append(issues, fmt.Sprintf("row %d: %s_effect_relative=%v", i, metric, eff))
			}
		}
	}
	return result("effects_reasonable", issues)
}

func checkSampleSizes(b *Bundle) Check {
	var issues []string
	for i := range b.Rows {
		if b.Rows[i].NUsers <= 0 {
			issues = append(issues, fmt.Sprintf("row %d (%s/%s): n_users=%d",
				i, b.Rows[i].Segment, b.Rows[i].Variant, b.Rows[i].NUsers))
		}
	}
	return result("sample_sizes_positive", issues)
}

func result(name string, issues []string) Check {
	if len(issues) == 0 {
		return Check{Name: name, Pass: true, Detail: "ok"}
	}
	return Check{Name: name, Pass: false, Detail: strings.Join(issues, "; ")}
}
