package casefile_test

import (
	"testing"

	"abfactory/internal/casefile"
)

func loadTestBundle(t *testing.T, data string) *casefile.Bundle {
	t.Helper()
	dir := writeCase(t, t.TempDir(), "case_001_uplift", testContract, testTruth, data)
	b, err := casefile.LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	return b
}

func TestRunChecksCleanData(t *testing.T) {
	b := loadTestBundle(t, testData)
	checks := casefile.RunChecks(b)
	if len(checks) != 4 {
		t.Fatalf("got %d checks, want 4", len(checks))
	}
	if !casefile.AllPass(checks) {
		t.Fatalf("clean data should pass all checks: %+v", checks)
	}
}

func TestRunChecksFlagsBadData(t *testing.T) {
	bad := `case_id,segment,variant,n_users,revenue,ctr,revenue_effect_relative,revenue_p_value,ctr_effect_relative,ctr_p_value
case_001_uplift,all,control,0,250000.00,0.030,,,,
case_001_uplift,all,treatment,101000,255250.00,0.030,0.80,1.5,0.0,0.5
`
	b := loadTestBundle(t, bad)
	checks := casefile.RunChecks(b)
	if casefile.AllPass(checks) {
		t.Fatal("bad data passed all checks")
	}
	failed := map[string]bool{}
	for _, c := range checks {
		if !c.Pass {
			failed[c.Name] = true
		}
	}
	for _, want := range []string{"p_values_in_range", "effects_reasonable", "sample_sizes_positive"} {
		if !failed[want] {
			t.Errorf("check %s should have failed, got %v", want, failed)
		}
	}
}

func TestValidateCorpus(t *testing.T) {
	root := t.TempDir()
	writeCase(t, root+"/cases", "case_001_uplift", testContract, testTruth, testData)

	n, issues, err := casefile.ValidateCorpus(root)
	if err != nil {
		t.Fatalf("ValidateCorpus: %v", err)
	}
	if n != 1 || len(issues) != 0 {
		t.Fatalf("n=%d issues=%v, want clean single case", n, issues)
	}
}

func TestValidateCorpusFindsIssues(t *testing.T) {
	badTruth := `{
  "case_id": "other_case",
  "expected_decision": "maybe",
  "key_reasons": ["made_up_tag"]
}`
	root := t.TempDir()
	writeCase(t, root+"/cases", "case_001_uplift", testContract, badTruth, testData)
	writeCase(t, root+"/cases", "case_002_missing", testContract, testTruth, "")

	_, issues, err := casefile.ValidateCorpus(root)
	if err != nil {
		t.Fatalf("ValidateCorpus: %v", err)
	}
	if len(issues) < 4 {
		t.Fatalf("issues = %v, want id mismatch, bad decision, bad reason and missing file", issues)
	}
}
