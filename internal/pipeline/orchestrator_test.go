package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"inkwell-pipeline/internal/db"
	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/load"
	loaddb "inkwell-pipeline/internal/load/db"
	"inkwell-pipeline/internal/source"
	"inkwell-pipeline/internal/staging"
	"inkwell-pipeline/internal/transform"
	"inkwell-pipeline/lib/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeAdapter pages through preset extraction results, erroring first
// when failures is positive.
type fakeAdapter struct {
	id       string
	pages    []source.Page
	failures int
	calls    int
	fatal    error
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) Extract(ctx context.Context, cursor source.Cursor) (source.Page, error) {
	a.calls++
	if a.fatal != nil {
		return source.Page{}, a.fatal
	}
	if a.failures > 0 {
		a.failures--
		return source.Page{}, etl.TransientSourceError{Source: a.id, Err: fmt.Errorf("boom")}
	}
	i := 0
	if cursor != "" {
		fmt.Sscanf(string(cursor), "page-%d", &i)
	}
	if i >= len(a.pages) {
		return source.Page{}, nil
	}
	page := a.pages[i]
	if i+1 < len(a.pages) {
		page.Next = source.Cursor(fmt.Sprintf("page-%d", i+1))
	}
	return page, nil
}

func bookRecord(t *testing.T, key, title, price string) etl.RawRecord {
	payload, err := json.Marshal(map[string]any{
		"title":    title,
		"price":    price,
		"currency": "GBP",
		"url":      key,
	})
	require.NoError(t, err)
	return etl.RawRecord{
		SourceID:     "site-books",
		NaturalKey:   key,
		Payload:      payload,
		FetchedAt:    time.Now(),
		AttemptCount: 1,
	}
}

type fixture struct {
	orchestrator *Orchestrator
	staging      staging.Store
	state        StateStore
	rejects      staging.RejectSink
	warehouse    *loaddb.Queries
}

func setupPipeline(t *testing.T, adapters ...source.Adapter) (fixture, func()) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "pipeline",
		DbSchema: db.Schema,
	})
	// adapters extract concurrently against the same in-memory db
	setup.DB.SetMaxOpenConns(1)

	warehouse, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	warehouse.SetMaxOpenConns(1)
	_, err = warehouse.Exec(loaddb.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { warehouse.Close() })

	engine, err := transform.NewEngine(transform.Config{
		TargetCurrency: "EUR",
		Rates:          map[string]float64{"GBP": 1.17},
	}, nil)
	require.NoError(t, err)

	store := staging.NewStore(setup.DB)
	state := NewStateStore(setup.DB)
	rejects := staging.NewRejectSink(setup.DB)

	return fixture{
		orchestrator: New(Options{
			Adapters:     adapters,
			Staging:      store,
			Rejects:      rejects,
			State:        state,
			Engine:       engine,
			Loader:       load.NewLoader(warehouse),
			StageRetries: 2,
		}),
		staging:   store,
		state:     state,
		rejects:   rejects,
		warehouse: loaddb.New(warehouse),
	}, cleanup
}

func TestRunAll(t *testing.T) {
	adapter := &fakeAdapter{id: "site-books", pages: []source.Page{
		{Records: []etl.RawRecord{
			bookRecord(t, "/catalogue/book_1/index.html", "Book One", "10.99"),
			bookRecord(t, "/catalogue/book_2/index.html", "Book Two", "20.50"),
		}},
		{Records: []etl.RawRecord{
			bookRecord(t, "/catalogue/book_3/index.html", "Book Three", "8.10"),
		}},
	}}

	f, cleanup := setupPipeline(t, adapter)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	summary, outcome, err := f.orchestrator.RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, Summary{Batches: 1, Inserted: 3}, summary)

	count, err := f.warehouse.CountBooks(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	batches, err := f.staging.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	for _, stage := range []string{StageExtract, StageTransform, StageLoad} {
		state, err := f.state.Get(ctx, stage, batches[0].ID)
		require.NoError(t, err)
		require.Equal(t, StatusSucceeded, state.Status, stage)
	}

	// a second run re-extracts into a fresh batch and updates in place
	summary, outcome, err = f.orchestrator.RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, Summary{Batches: 1, Updated: 3}, summary)

	count, err = f.warehouse.CountBooks(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestRunAllNothingToDo(t *testing.T) {
	f, cleanup := setupPipeline(t, &fakeAdapter{id: "site-books"})
	defer cleanup()

	summary, outcome, err := f.orchestrator.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeNothingToDo, outcome)
	require.Equal(t, Summary{}, summary)
}

func TestRunAllSourceDownIsPartial(t *testing.T) {
	down := &fakeAdapter{id: "site-books", failures: 99}
	up := &fakeAdapter{id: "site-quotes", pages: []source.Page{
		{Records: []etl.RawRecord{{
			SourceID:   "site-quotes",
			NaturalKey: "quote:abc",
			Payload: json.RawMessage(`{"type":"quote","text":"Words.",` +
				`"author":"Someone","tags":["life"]}`),
			FetchedAt: time.Now(),
		}}},
	}}

	f, cleanup := setupPipeline(t, down, up)
	defer cleanup()

	summary, outcome, err := f.orchestrator.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomePartialFailure, outcome)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Batches)

	// the healthy source's batch still landed
	count, err := f.warehouse.CountQuotes(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	// the budget is attempts, not attempts-per-page
	require.Equal(t, 2, down.calls)

	// the dead source's extraction is recorded as failed with a reason
	states, err := f.state.List(context.Background())
	require.NoError(t, err)
	var failed []db.StageState
	for _, s := range states {
		if s.Stage == StageExtract && s.Status == StatusFailed {
			failed = append(failed, s)
		}
	}
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].Reason, "boom")
}

// a failure mark written while the run's context is already cancelled
// must still land in the state store
func TestFailureMarkSurvivesCancellation(t *testing.T) {
	f, cleanup := setupPipeline(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.orchestrator.markFailed(ctx, StageLoad, "b1", "interrupted")

	got, err := f.state.Get(context.Background(), StageLoad, "b1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "interrupted", got.Reason)
}

func TestRunAllFatalConfiguration(t *testing.T) {
	broken := &fakeAdapter{id: "file-bookstores", fatal: etl.ConfigurationError{
		Reason: "bookstore file missing column \"contact_email\"",
	}}

	f, cleanup := setupPipeline(t, broken)
	defer cleanup()

	_, outcome, err := f.orchestrator.RunAll(context.Background())
	require.Error(t, err)
	require.Equal(t, OutcomeFatal, outcome)
	require.True(t, etl.IsFatal(err))
}

func TestRunStage(t *testing.T) {
	f, cleanup := setupPipeline(t)
	defer cleanup()

	ctx := context.Background()

	batchID := uuid.NewString()
	err := f.staging.Append(ctx, batchID, "site-books", []etl.RawRecord{
		bookRecord(t, "/catalogue/book_1/index.html", "Book One", "10.99"),
	})
	require.NoError(t, err)

	summary, outcome, err := f.orchestrator.RunStage(ctx, StageTransform, batchID)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, 1, summary.Batches)

	state, err := f.state.Get(ctx, StageTransform, batchID)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, state.Status)

	summary, outcome, err = f.orchestrator.RunStage(ctx, StageLoad, batchID)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, 1, summary.Inserted)

	price, err := f.warehouse.GetBook(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 12.86, price.PriceEur.Float64)

	_, outcome, err = f.orchestrator.RunStage(ctx, "teleport", batchID)
	require.Error(t, err)
	require.Equal(t, OutcomeFatal, outcome)
}

func TestRetryRequiresFailedStage(t *testing.T) {
	f, cleanup := setupPipeline(t)
	defer cleanup()

	ctx := context.Background()

	batchID := uuid.NewString()
	err := f.staging.Append(ctx, batchID, "site-books", []etl.RawRecord{
		bookRecord(t, "/catalogue/book_1/index.html", "Book One", "10.99"),
	})
	require.NoError(t, err)

	// nothing failed yet, retry must refuse rather than silently rerun
	_, _, err = f.orchestrator.Retry(ctx, StageTransform, batchID)
	require.Error(t, err)

	require.NoError(t, f.state.MarkFailed(ctx, StageTransform, batchID, "boom"))

	summary, outcome, err := f.orchestrator.Retry(ctx, StageTransform, batchID)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, 1, summary.Batches)
}

func TestStateStore(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "pipeline",
		DbSchema: db.Schema,
	})
	defer cleanup()
	state := NewStateStore(setup.DB)

	ctx := context.Background()

	// unknown (stage, batch) pairs read as pending
	got, err := state.Get(ctx, StageTransform, "no-such-batch")
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	require.NoError(t, state.MarkRunning(ctx, StageTransform, "b1"))
	require.NoError(t, state.MarkFailed(ctx, StageTransform, "b1", "boom"))

	got, err = state.Get(ctx, StageTransform, "b1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "boom", got.Reason)

	require.NoError(t, state.ResetFailed(ctx, StageTransform, "b1"))
	got, err = state.Get(ctx, StageTransform, "b1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	require.NoError(t, state.MarkSucceeded(ctx, StageTransform, "b1"))
	require.Error(t, state.ResetFailed(ctx, StageTransform, "b1"))

	states, err := state.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
}
