package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"abfactory/internal/format"
	"abfactory/internal/selfcheck"
)

var selfcheckFlags struct {
	casesRoot string
	policy    string
}

var selfcheckCmd = &cobra.Command{
	Use:   "selfcheck",
	Short: "Verify the engine against a labeled corpus",
	Long: `Selfcheck evaluates every case under the corpus root and compares each
decision with its truth.json label, printing a per-case table and the
overall accuracy. Exits non-zero unless accuracy is 100%.`,
	RunE: runSelfcheck,
}

func init() {
	f := selfcheckCmd.Flags()
	f.StringVar(&selfcheckFlags.casesRoot, "cases", "cases", "Corpus root")
	f.StringVar(&selfcheckFlags.policy, "policy", "", "Policy file (YAML or JSON); empty = embedded default")
}

func runSelfcheck(cmd *cobra.Command, _ []string) error {
	pol, err := loadPolicy(selfcheckFlags.policy)
	if err != nil {
		return err
	}
	s, err := selfcheck.Run(selfcheckFlags.casesRoot, pol)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	t := format.NewTable(format.ASCII)
	t.Header("Case", "Expected", "Actual", "Confidence", "Match")
	for _, c := range s.Cases {
		actual := c.Actual
		if c.Err != nil {
			actual = "ERROR"
		}
		t.Row(c.CaseID, c.Expected, actual, fmt.Sprintf("%.4f", c.Confidence), format.YesNo(c.Match))
	}
	t.Footer("accuracy", "", "", fmt.Sprintf("%.1f%%", s.Accuracy()), "")
	fmt.Fprintln(out, t.String())

	mismatches := s.Mismatches()
	if len(mismatches) == 0 {
		fmt.Fprintf(out, "%d/%d cases match their labels.\n", s.Matched, len(s.Cases))
		return nil
	}
	fmt.Fprintf(out, "%d mismatched case(s):\n", len(mismatches))
	for _, m := range mismatches {
		if m.Err != nil {
			fmt.Fprintf(out, "  %s: error: %v\n", m.CaseID, m.Err)
			continue
		}
		fmt.Fprintf(out, "  %s: expected %s, got %s (reasons: %s)\n",
			m.CaseID, m.Expected, m.Actual, strings.Join(m.Reasons, ", "))
	}
	return fmt.Errorf("selfcheck failed: accuracy %.1f%%", s.Accuracy())
}
