package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "inkwell ingests quote, book and bookstore data into a warehouse.",
	Long: `inkwell extracts records from the configured sources, stages them,
transforms them into deduplicated entities and loads them into the
warehouse database.

Exit codes:
  0  everything succeeded
  1  fatal error, fix the configuration before retrying
  2  some batches failed, rerunning is safe
  3  the sources produced no records`,
}

var configPath *string

func init() {
	configPath = rootCmd.PersistentFlags().String(
		"config", "pipeline.json5", "Path to the pipeline config file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
