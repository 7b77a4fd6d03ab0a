package commands

import (
	"log/slog"
	"os"

	"inkwell-pipeline/lib/serviceutil"

	"github.com/spf13/cobra"
)

var stageBatch *string

func init() {
	stageBatch = stageCmd.Flags().String("batch", "", "The staging batch to process.")
	stageCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(stageCmd)
}

var stageCmd = &cobra.Command{
	Use:   "stage <transform|load> --batch <id>",
	Short: "Runs a single stage against an existing staging batch.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := setup()
		if err != nil {
			serviceutil.Fatal("failed to initialize pipeline", err)
		}

		summary, outcome, err := rt.orchestrator.RunStage(cmd.Context(), args[0], *stageBatch)
		if err != nil {
			slog.Error("stage run failed", "stage", args[0], "batch", *stageBatch, "err", err)
		}
		slog.Info("stage run finished",
			"stage", args[0],
			"batch", *stageBatch,
			"inserted", summary.Inserted,
			"updated", summary.Updated,
			"rejected", summary.Rejected,
		)
		rt.Close()
		os.Exit(exitCode(outcome))
	},
}
