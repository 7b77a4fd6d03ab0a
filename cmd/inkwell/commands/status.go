package commands

import (
	"io"
	"os"
	"time"

	"inkwell-pipeline/internal/db"
	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderBatches(out io.Writer, batches []etl.StagingBatch) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Batch", "Source", "Created"})
	for _, b := range batches {
		t.AppendRow(table.Row{b.ID, b.SourceID, b.CreatedAt.Format(time.RFC3339)})
	}
	t.Render()
}

func renderStates(out io.Writer, states []db.StageState) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Stage", "Batch", "Status", "Reason"})
	for _, s := range states {
		t.AppendRow(table.Row{s.Stage, s.BatchID, s.Status, s.Reason})
	}
	t.Render()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Lists staging batches and the state of each pipeline stage.",
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := setup()
		if err != nil {
			serviceutil.Fatal("failed to initialize pipeline", err)
		}
		defer rt.Close()

		batches, err := rt.staging.ListBatches(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list staging batches", err)
		}
		states, err := rt.state.List(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list stage states", err)
		}

		renderBatches(os.Stdout, batches)
		renderStates(os.Stdout, states)
	},
}
