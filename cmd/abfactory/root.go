package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"abfactory/internal/logging"
	"abfactory/internal/policy"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "abfactory",
	Short: "Decision engine for A/B experiment cases",
	Long: "abfactory evaluates A/B experiment case bundles against a versioned\n" +
		"decision policy, producing ship / do_not_ship / investigate verdicts\n" +
		"with reason tags, confidence scores and full run artifacts.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.Init(rootFlags.logLevel, rootFlags.logFormat)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(selfcheckCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.Version = version
}

// loadPolicy resolves the --policy flag shared by the evaluating commands:
// an empty path means the embedded default.
func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	return policy.LoadFromPath(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
