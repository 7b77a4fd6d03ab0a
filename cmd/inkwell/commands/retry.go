package commands

import (
	"log/slog"
	"os"

	"inkwell-pipeline/lib/serviceutil"

	"github.com/spf13/cobra"
)

var retryBatch *string

func init() {
	retryBatch = retryCmd.Flags().String("batch", "", "The staging batch whose stage failed.")
	retryCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(retryCmd)
}

var retryCmd = &cobra.Command{
	Use:   "retry <transform|load> --batch <id>",
	Short: "Resets a failed stage and runs it again.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := setup()
		if err != nil {
			serviceutil.Fatal("failed to initialize pipeline", err)
		}

		summary, outcome, err := rt.orchestrator.Retry(cmd.Context(), args[0], *retryBatch)
		if err != nil {
			slog.Error("retry failed", "stage", args[0], "batch", *retryBatch, "err", err)
		}
		slog.Info("retry finished",
			"stage", args[0],
			"batch", *retryBatch,
			"inserted", summary.Inserted,
			"updated", summary.Updated,
			"rejected", summary.Rejected,
		)
		rt.Close()
		os.Exit(exitCode(outcome))
	},
}
