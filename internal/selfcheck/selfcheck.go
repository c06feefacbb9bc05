// Package selfcheck verifies the engine against a labeled corpus: every
// discovered case is evaluated and compared with its truth.json. It writes
// no run directories and no traces; the only output is the comparison.
package selfcheck

import (
	"fmt"
	"path/filepath"

	"abfactory/internal/casefile"
	"abfactory/internal/engine"
	"abfactory/internal/policy"
	"abfactory/internal/trace"
)

// CaseResult is one case's expected-vs-actual comparison.
type CaseResult struct {
	CaseID     string
	Expected   string
	Actual     string
	Confidence float64
	Reasons    []string
	Match      bool
	Err        error
}

// Summary aggregates a corpus verification.
type Summary struct {
	Cases   []CaseResult
	Matched int
}

// Accuracy is the matched fraction in percent.
func (s *Summary) Accuracy() float64 {
	if len(s.Cases) == 0 {
		return 0
	}
	return 100 * float64(s.Matched) / float64(len(s.Cases))
}

// Mismatches returns the cases that failed or disagreed with their label.
func (s *Summary) Mismatches() []CaseResult {
	var out []CaseResult
	for _, c := range s.Cases {
		if !c.Match {
			out = append(out, c)
		}
	}
	return out
}

// Run evaluates every case under root and compares decisions with the truth
// labels. A case that fails to load or evaluate counts as a mismatch; only
// discovery or policy errors abort the whole check.
func Run(root string, pol *policy.Policy) (*Summary, error) {
	eng, err := engine.New(pol)
	if err != nil {
		return nil, err
	}
	dirs, err := casefile.Discover(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("selfcheck: no cases found under %s", root)
	}

	s := &Summary{}
	for _, dir := range dirs {
		s.add(check(eng, dir))
	}
	return s, nil
}

func (s *Summary) add(r CaseResult) {
	s.Cases = append(s.Cases, r)
	if r.Match {
		s.Matched++
	}
}

func check(eng *engine.Engine, dir string) CaseResult {
	r := CaseResult{CaseID: filepath.Base(dir)}

	b, err := casefile.LoadBundle(dir)
	if err != nil {
		r.Err = err
		return r
	}
	r.CaseID = b.Contract.CaseID
	if b.Truth == nil {
		r.Err = fmt.Errorf("selfcheck: case %s has no truth label", r.CaseID)
		return r
	}
	r.Expected = b.Truth.ExpectedDecision

	out, err := eng.Evaluate(b, trace.Discard)
	if err != nil {
		r.Err = err
		return r
	}
	r.Actual = string(out.Decision)
	r.Confidence = out.Confidence
	r.Reasons = out.ReasonStrings()
	r.Match = r.Actual == r.Expected
	return r
}
