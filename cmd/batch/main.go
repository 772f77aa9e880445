package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfig = "batch.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "batch",
		Short:         "Batch: control plane for the address data pipeline",
		Long:          "Batch schedules source processing jobs, tracks their results and guards the live data against regressions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().Bool("json", false, "always print JSON")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newJobCmd())
	cmd.AddCommand(newMapCmd())
	cmd.AddCommand(newDeltaCmd())
	cmd.AddCommand(newErrorCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newScanCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "batch %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
