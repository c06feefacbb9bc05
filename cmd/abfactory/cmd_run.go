package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"abfactory/internal/casefile"
	"abfactory/internal/runner"
)

var runFlags struct {
	casesRoot string
	runsDir   string
	policy    string
	caseSpec  string
	all       bool
	parallel  int
	keepRuns  int
	quiet     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate one case or the whole corpus, writing run artifacts",
	Long: `Run loads case bundles, evaluates them under the decision policy and
writes per-run artifacts (reports, decision documents, traces) plus the
global run index.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.casesRoot, "cases", "cases", "Corpus root (directory containing case dirs or a cases/ subdir)")
	f.StringVar(&runFlags.runsDir, "runs-dir", "runs", "Directory for per-run output and index.jsonl")
	f.StringVar(&runFlags.policy, "policy", "", "Policy file (YAML or JSON); empty = embedded default")
	f.StringVar(&runFlags.caseSpec, "case", "", "Single case to run (directory name, number or case_ prefix)")
	f.BoolVar(&runFlags.all, "all", false, "Run every discovered case")
	f.IntVar(&runFlags.parallel, "parallel", 4, "Max concurrent cases with --all")
	f.IntVar(&runFlags.keepRuns, "keep-runs", 0, "Prune old run dirs down to N before starting (0 = keep all)")
	f.BoolVar(&runFlags.quiet, "quiet", false, "Suppress the per-case result line")
}

func runRun(cmd *cobra.Command, _ []string) error {
	if runFlags.caseSpec == "" && !runFlags.all {
		return fmt.Errorf("specify --case <spec> or --all")
	}

	pol, err := loadPolicy(runFlags.policy)
	if err != nil {
		return err
	}
	r, err := runner.New(runner.Config{
		CasesRoot: runFlags.casesRoot,
		RunsDir:   runFlags.runsDir,
		Policy:    pol,
		Parallel:  runFlags.parallel,
		KeepRuns:  runFlags.keepRuns,
		Quiet:     runFlags.quiet,
		Out:       cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	if runFlags.all {
		results, err := r.RunAll(cmd.Context())
		if err != nil {
			return err
		}
		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cases failed", failed, len(results))
		}
		return nil
	}

	dir, err := casefile.Resolve(runFlags.casesRoot, runFlags.caseSpec)
	if err != nil {
		return err
	}
	if res := r.RunCase(dir); res.Err != nil {
		return res.Err
	}
	return nil
}
