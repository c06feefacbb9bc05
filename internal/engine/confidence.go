package engine

import (
	"math"

	"abfactory/internal/policy"
)

// Confidence limits. Raw sigmoid output is clamped so the figure is never
// read as certainty in either direction.
const (
	minConfidence = 0.01
	maxConfidence = 0.99
)

// confidence scores a reason set under the policy's confidence model: base
// plus the weight of each distinct reason tag, squashed through a sigmoid and
// rounded to four decimals. Duplicate tags count once, so the figure depends
// only on the reason set.
func confidence(model policy.Confidence, reasons []Reason) (float64, ConfidenceTrace) {
	score := model.Base
	factors := make([]Factor, 0, len(reasons))
	seen := map[Reason]bool{}
	for _, r := range reasons {
		if seen[r] {
			continue
		}
		seen[r] = true
		w := model.Weights[string(r)]
		factors = append(factors, Factor{Name: string(r), Weight: w})
		score += w
	}

	conf := round4(sigmoid(score))
	if conf < minConfidence {
		conf = minConfidence
	}
	if conf > maxConfidence {
		conf = maxConfidence
	}
	return conf, ConfidenceTrace{Score: round4(score), Factors: factors}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func round4(x float64) float64 { return math.Round(x*1e4) / 1e4 }
