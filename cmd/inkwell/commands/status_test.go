package commands

import (
	"bytes"
	"testing"
	"time"

	"inkwell-pipeline/internal/db"
	"inkwell-pipeline/internal/etl"

	"github.com/stretchr/testify/require"
)

func TestRenderStatusTables(t *testing.T) {
	var out bytes.Buffer
	renderBatches(&out, []etl.StagingBatch{{
		ID:        "b1",
		SourceID:  "site-quotes",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}})
	require.Contains(t, out.String(), "BATCH")
	require.Contains(t, out.String(), "site-quotes")
	require.Contains(t, out.String(), "2026-08-01T12:00:00Z")

	out.Reset()
	renderStates(&out, []db.StageState{{
		Stage:   "transform",
		BatchID: "b1",
		Status:  "failed",
		Reason:  "boom",
	}})
	require.Contains(t, out.String(), "STAGE")
	require.Contains(t, out.String(), "failed")
	require.Contains(t, out.String(), "boom")
}
