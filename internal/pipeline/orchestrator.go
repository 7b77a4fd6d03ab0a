// Package pipeline sequences the extract, transform and load stages.
// The orchestrator is the only component aware of the full topology,
// stages never call each other directly.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/load"
	"inkwell-pipeline/internal/source"
	"inkwell-pipeline/internal/staging"
	"inkwell-pipeline/internal/transform"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pipeline")

const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
)

// Outcome is the machine-readable exit state of a run.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNothingToDo
	// some batches failed, the run can be retried safely
	OutcomePartialFailure
	OutcomeFatal
)

type Summary struct {
	Batches  int
	Failed   int
	Inserted int
	Updated  int
	Rejected int
}

type Orchestrator struct {
	adapters []source.Adapter
	staging  staging.Store
	rejects  staging.RejectSink
	state    StateStore
	engine   *transform.Engine
	loader   load.Loader
	retries  int
}

type Options struct {
	Adapters []source.Adapter
	Staging  staging.Store
	Rejects  staging.RejectSink
	State    StateStore
	Engine   *transform.Engine
	Loader   load.Loader
	// attempts per stage before marking it failed
	StageRetries int
}

func New(opts Options) *Orchestrator {
	retries := opts.StageRetries
	if retries <= 0 {
		retries = 2
	}
	return &Orchestrator{
		adapters: opts.Adapters,
		staging:  opts.Staging,
		rejects:  opts.Rejects,
		state:    opts.State,
		engine:   opts.Engine,
		loader:   opts.Loader,
		retries:  retries,
	}
}

// RunAll drives the full pipeline. Independent sources extract
// concurrently, each adapter issues its own requests sequentially so
// per-source rate limits hold. A failed batch halts only its own
// dependent path.
func (o *Orchestrator) RunAll(ctx context.Context) (Summary, Outcome, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:RunAll")
	defer span.End()

	type extraction struct {
		batchID string
		err     error
		source  string
	}
	results := make([]extraction, len(o.adapters))

	var wg sync.WaitGroup
	for i, adapter := range o.adapters {
		wg.Add(1)
		go func(i int, adapter source.Adapter) {
			defer wg.Done()
			batchID, err := o.extract(ctx, adapter)
			results[i] = extraction{batchID: batchID, err: err, source: adapter.ID()}
		}(i, adapter)
	}
	wg.Wait()

	var summary Summary
	for _, r := range results {
		if r.err != nil {
			if etl.IsFatal(r.err) {
				span.RecordError(r.err)
				span.SetStatus(codes.Error, r.err.Error())
				return summary, OutcomeFatal, r.err
			}
			slog.Error("extraction failed", "source", r.source, "err", r.err)
			summary.Failed++
			continue
		}
		if r.batchID == "" {
			continue
		}
		summary.Batches++

		report, err := o.processBatch(ctx, r.batchID)
		summary.Inserted += report.Inserted
		summary.Updated += report.Updated
		summary.Rejected += report.Rejected
		if err != nil {
			if etl.IsFatal(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return summary, OutcomeFatal, err
			}
			slog.Error("batch failed", "batch", r.batchID, "err", err)
			summary.Failed++
		}
	}

	switch {
	case summary.Failed > 0:
		return summary, OutcomePartialFailure, nil
	case summary.Batches == 0:
		return summary, OutcomeNothingToDo, nil
	default:
		return summary, OutcomeOK, nil
	}
}

// RunStage re-runs one stage against an already staged batch. Stages
// are re-entrant, re-running a succeeded stage produces an identical
// result.
func (o *Orchestrator) RunStage(ctx context.Context, stage, batchID string) (Summary, Outcome, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:RunStage")
	defer span.End()
	span.SetAttributes(
		attribute.String("stage", stage),
		attribute.String("batch", batchID),
	)

	var summary Summary
	switch stage {
	case StageTransform:
		_, _, err := o.runTransform(ctx, batchID)
		if err != nil {
			return summary, outcomeForError(err), err
		}
		summary.Batches = 1
		return summary, OutcomeOK, nil

	case StageLoad:
		// transform is pure over the staged batch, so the loader
		// re-derives its input instead of persisting intermediate
		// state
		batch, _, err := o.transformOnly(ctx, batchID)
		if err != nil {
			return summary, outcomeForError(err), err
		}
		report, err := o.runLoad(ctx, batchID, batch)
		summary.Batches = 1
		summary.Inserted = report.Inserted
		summary.Updated = report.Updated
		summary.Rejected = report.Rejected
		if err != nil {
			return summary, outcomeForError(err), err
		}
		return summary, OutcomeOK, nil

	default:
		return summary, OutcomeFatal, etl.ConfigurationError{
			Reason: fmt.Sprintf("unknown stage %q (expected %q or %q)", stage, StageTransform, StageLoad),
		}
	}
}

// Retry resets a failed stage to pending and runs it again.
func (o *Orchestrator) Retry(ctx context.Context, stage, batchID string) (Summary, Outcome, error) {
	err := o.state.ResetFailed(ctx, stage, batchID)
	if err != nil {
		return Summary{}, OutcomeFatal, err
	}
	return o.RunStage(ctx, stage, batchID)
}

func (o *Orchestrator) extract(ctx context.Context, adapter source.Adapter) (string, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:extract")
	defer span.End()
	span.SetAttributes(attribute.String("source", adapter.ID()))

	batchID := uuid.NewString()
	err := o.state.MarkRunning(ctx, StageExtract, batchID)
	if err != nil {
		return "", err
	}

	var records []etl.RawRecord
	var rejects []etl.Reject

	err = o.withRetry(ctx, func() error {
		records = records[:0]
		rejects = rejects[:0]

		cursor := source.Cursor("")
		for {
			page, err := adapter.Extract(ctx, cursor)
			if err != nil {
				return err
			}
			records = append(records, page.Records...)
			rejects = append(rejects, page.Rejects...)
			if page.Next == "" {
				break
			}
			cursor = page.Next
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.markFailed(ctx, StageExtract, batchID, err.Error())
		return "", err
	}

	if len(records) == 0 && len(rejects) == 0 {
		err = o.state.MarkSucceeded(ctx, StageExtract, batchID)
		if err != nil {
			return "", err
		}
		return "", nil
	}

	err = o.staging.Append(ctx, batchID, adapter.ID(), records)
	if err != nil {
		o.markFailed(ctx, StageExtract, batchID, err.Error())
		return "", err
	}
	err = o.rejects.Write(ctx, rejects)
	if err != nil {
		return "", err
	}
	err = o.state.MarkSucceeded(ctx, StageExtract, batchID)
	if err != nil {
		return "", err
	}

	slog.Info("extracted batch",
		"source", adapter.ID(),
		"batch", batchID,
		"records", len(records),
		"rejects", len(rejects),
	)
	return batchID, nil
}

func (o *Orchestrator) processBatch(ctx context.Context, batchID string) (load.Report, error) {
	batch, skipped, err := o.runTransform(ctx, batchID)
	if err != nil {
		return load.Report{}, err
	}
	if skipped {
		// transform and load both succeeded on a previous run,
		// nothing to redo
		state, err := o.state.Get(ctx, StageLoad, batchID)
		if err != nil {
			return load.Report{}, err
		}
		if state.Status == StatusSucceeded {
			return load.Report{}, nil
		}
	}
	return o.runLoad(ctx, batchID, batch)
}

// runTransform runs the transformation stage under stage-state
// tracking. Returns skipped=true when the stage already succeeded and
// the batch was re-derived only for a dependent load.
func (o *Orchestrator) runTransform(ctx context.Context, batchID string) (transform.Batch, bool, error) {
	state, err := o.state.Get(ctx, StageTransform, batchID)
	if err != nil {
		return transform.Batch{}, false, err
	}
	skipped := state.Status == StatusSucceeded

	if !skipped {
		err = o.state.MarkRunning(ctx, StageTransform, batchID)
		if err != nil {
			return transform.Batch{}, false, err
		}
	}

	batch, rejects, err := o.transformOnly(ctx, batchID)
	if err != nil {
		o.markFailed(ctx, StageTransform, batchID, err.Error())
		return transform.Batch{}, false, err
	}

	if !skipped {
		err = o.rejects.Write(ctx, rejects)
		if err != nil {
			return transform.Batch{}, false, err
		}
		err = o.state.MarkSucceeded(ctx, StageTransform, batchID)
		if err != nil {
			return transform.Batch{}, false, err
		}
	}
	return batch, skipped, nil
}

func (o *Orchestrator) transformOnly(ctx context.Context, batchID string) (transform.Batch, []etl.Reject, error) {
	var batch transform.Batch
	var rejects []etl.Reject

	err := o.withRetry(ctx, func() error {
		records, err := o.staging.Read(ctx, batchID)
		if err != nil {
			return err
		}
		batch, rejects, err = o.engine.Run(ctx, records)
		return err
	})
	return batch, rejects, err
}

func (o *Orchestrator) runLoad(ctx context.Context, batchID string, batch transform.Batch) (load.Report, error) {
	err := o.state.MarkRunning(ctx, StageLoad, batchID)
	if err != nil {
		return load.Report{}, err
	}

	var report load.Report
	var rejects []etl.Reject
	err = o.withRetry(ctx, func() error {
		var err error
		report, rejects, err = o.loader.Load(ctx, batch.Entities, batch.Relations)
		return err
	})
	if err != nil {
		o.markFailed(ctx, StageLoad, batchID, err.Error())
		return load.Report{}, err
	}

	err = o.rejects.Write(ctx, rejects)
	if err != nil {
		return report, err
	}
	err = o.state.MarkSucceeded(ctx, StageLoad, batchID)
	if err != nil {
		return report, err
	}

	slog.Info("loaded batch",
		"batch", batchID,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"rejected", report.Rejected,
	)
	return report, nil
}

// markFailed writes the failure mark on a detached context so the
// reason survives cancellation of the run that caused it.
func (o *Orchestrator) markFailed(ctx context.Context, stage, batchID, reason string) {
	err := o.state.MarkFailed(context.WithoutCancel(ctx), stage, batchID, reason)
	if err != nil {
		slog.Error("recording stage failure", "stage", stage, "batch", batchID, "err", err)
	}
}

// withRetry retries transient failures with exponential backoff up to
// the stage budget. Non-transient errors surface immediately.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < o.retries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !etl.IsTransient(err) {
			return err
		}
		if attempt == o.retries-1 {
			break
		}

		wait := time.Second << attempt
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func outcomeForError(err error) Outcome {
	if etl.IsFatal(err) {
		return OutcomeFatal
	}
	return OutcomePartialFailure
}
