package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"abfactory/internal/casefile"
)

var validateFlags struct {
	casesRoot string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a corpus against the case schema",
	Long: `Validate checks every case for required files, contract and truth schema
conformance and data sanity, printing each finding. Exits non-zero when
any case has issues.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateFlags.casesRoot, "cases", "cases", "Corpus root")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	n, issues, err := casefile.ValidateCorpus(validateFlags.casesRoot)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(issues) == 0 {
		fmt.Fprintf(out, "%d cases validated, no issues.\n", n)
		return nil
	}
	for _, issue := range issues {
		fmt.Fprintln(out, issue)
	}
	return fmt.Errorf("%d issue(s) across %d cases", len(issues), n)
}
