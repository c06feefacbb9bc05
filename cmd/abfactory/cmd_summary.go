package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"abfactory/internal/casefile"
	"abfactory/internal/format"
	"abfactory/internal/logging"
)

var summaryFlags struct {
	casesRoot string
	markdown  bool
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print a one-line-per-case overview of a corpus",
	RunE:  runSummary,
}

func init() {
	f := summaryCmd.Flags()
	f.StringVar(&summaryFlags.casesRoot, "cases", "cases", "Corpus root")
	f.BoolVar(&summaryFlags.markdown, "markdown", false, "Render the table as Markdown")
}

func runSummary(cmd *cobra.Command, _ []string) error {
	dirs, err := casefile.Discover(summaryFlags.casesRoot)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no cases found under %s", summaryFlags.casesRoot)
	}
	log := logging.New("summary")

	mode := format.ASCII
	if summaryFlags.markdown {
		mode = format.Markdown
	}
	t := format.NewTable(mode)
	t.Header("Case", "Title", "Metric", "Effect", "Sig", "Guardrails", "Expected", "Reasons")
	t.Columns(format.ColumnConfig{Number: 2, MaxWidth: 40})

	shown := 0
	for _, dir := range dirs {
		b, err := casefile.LoadBundle(dir)
		if err != nil {
			log.Warn("skipping case", "dir", filepath.Base(dir), "err", err)
			continue
		}
		eff, sig, guardOK, expected, reasons := "—", "—", "—", "—", "—"
		if b.Truth != nil {
			v := b.Truth.PrimaryEffectRelative
			eff = format.Pct(&v)
			sig = format.YesNo(b.Truth.IsStatSig)
			guardOK = format.YesNo(b.Truth.GuardrailsOK)
			expected = b.Truth.ExpectedDecision
			reasons = strings.Join(b.Truth.KeyReasons, ", ")
		}
		t.Row(b.Contract.CaseID, format.Truncate(b.Contract.Title, 40),
			b.Contract.PrimaryMetric.Name, eff, sig, guardOK, expected, reasons)
		shown++
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.String())
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d cases shown\n", shown, len(dirs))
	return nil
}
