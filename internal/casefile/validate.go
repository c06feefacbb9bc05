package casefile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Issue is one corpus-validation finding.
type Issue struct {
	Case    string
	File    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Case, i.File, i.Message)
}

var validDecisions = map[string]bool{
	"ship":        true,
	"do_not_ship": true,
	"investigate": true,
}

var validReasons = map[string]bool{
	"primary_uplift":         true,
	"guardrail_violation":    true,
	"guardrail_soft_warning": true,
	"guardrail_missing_data": true,
	"segment_conflict":       true,
	"long_term_reversal":     true,
	"practically_small":      true,
	"not_significant":        true,
}

// ValidateCorpus checks every case under root against the bundle schema and
// the truth-label schema. It returns the number of cases inspected and the
// accumulated issues; an empty issue list means the corpus is clean.
func ValidateCorpus(root string) (int, []Issue, error) {
	dirs, err := Discover(root)
	if err != nil {
		return 0, nil, err
	}
	var issues []Issue
	for _, dir := range dirs {
		issues = append(issues, validateCase(dir)...)
	}
	return len(dirs), issues, nil
}

func validateCase(dir string) []Issue {
	name := filepath.Base(dir)
	var issues []Issue

	for _, f := range []string{contractFile, truthFile, dataFile} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			issues = append(issues, Issue{Case: name, File: f, Message: "missing required file"})
		}
	}
	if len(issues) > 0 {
		return issues
	}

	b, err := LoadBundle(dir)
	if err != nil {
		return append(issues, Issue{Case: name, File: "-", Message: err.Error()})
	}

	issues = append(issues, validateTruth(name, b)...)
	issues = append(issues, validateData(name, b)...)
	return issues
}

func validateTruth(name string, b *Bundle) []Issue {
	var issues []Issue
	t := b.Truth
	if t == nil {
		return append(issues, Issue{Case: name, File: truthFile, Message: "truth label is required in a corpus"})
	}
	if t.CaseID != b.Contract.CaseID {
		issues = append(issues, Issue{Case: name, File: truthFile,
			Message: fmt.Sprintf("case_id %q does not match contract %q", t.CaseID, b.Contract.CaseID)})
	}
	if !validDecisions[t.ExpectedDecision] {
		issues = append(issues, Issue{Case: name, File: truthFile,
			Message: fmt.Sprintf("expected_decision %q is not a known decision", t.ExpectedDecision)})
	}
	if len(t.KeyReasons) == 0 {
		issues = append(issues, Issue{Case: name, File: truthFile, Message: "key_reasons is empty"})
	}
	for _, r := range t.KeyReasons {
		if !validReasons[r] {
			issues = append(issues, Issue{Case: name, File: truthFile,
				Message: fmt.Sprintf("key_reasons contains unknown tag %q", r)})
		}
	}
	return issues
}

func validateData(name string, b *Bundle) []Issue {
	var issues []Issue
	if !b.HeaderMetrics[b.Contract.PrimaryMetric.Name] {
		issues = append(issues, Issue{Case: name, File: dataFile,
			Message: fmt.Sprintf("primary metric %q absent from data header", b.Contract.PrimaryMetric.Name)})
	}
	for _, c := range RunChecks(b) {
		if !c.Pass {
			issues = append(issues, Issue{Case: name, File: dataFile,
				Message: fmt.Sprintf("%s: %s", c.Name, c.Detail)})
		}
	}
	return issues
}
