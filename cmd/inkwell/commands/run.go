package commands

import (
	"log/slog"
	"os"

	"inkwell-pipeline/lib/serviceutil"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extracts all configured sources, then transforms and loads each batch.",
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := setup()
		if err != nil {
			serviceutil.Fatal("failed to initialize pipeline", err)
		}
		summary, outcome, err := rt.orchestrator.RunAll(cmd.Context())
		if err != nil {
			slog.Error("pipeline run failed", "err", err)
		}
		slog.Info("pipeline run finished",
			"batches", summary.Batches,
			"failed", summary.Failed,
			"inserted", summary.Inserted,
			"updated", summary.Updated,
			"rejected", summary.Rejected,
		)
		rt.Close()
		os.Exit(exitCode(outcome))
	},
}
