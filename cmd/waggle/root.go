package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "waggle",
	Short: "Phase-ordered delivery workflow engine",
	Long: `Waggle runs software delivery workflows as dependency-ordered task graphs.

A run divides tasks into phases, delegates each task through the
queen -> princess -> drone hive to a Claude-backed executor, audits the
work products through the theater/production/quality pipeline, and gates
completion on the aggregate audit pass rate.

Before a run, the convergence loop can iterate premortem analysis over the
spec and plan until the projected failure rate drops below target.

Typical flow:
  waggle init                      # scaffold .waggle/ in the project
  waggle loop --spec spec.md --plan plan.md
  waggle run tasks.yaml
  waggle status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
