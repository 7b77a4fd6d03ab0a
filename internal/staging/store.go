// Package staging persists raw extracted records so any later stage can
// replay a batch without re-contacting the source.
package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"inkwell-pipeline/internal/db"
	"inkwell-pipeline/internal/etl"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("staging")

type Store struct {
	makeTx db.MakeTx
	qry    *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		makeTx: db.NewMakeTx(database),
		qry:    db.New(database),
	}
}

// Append writes one adapter invocation's records as a new immutable
// batch under the given id. The whole batch commits atomically so
// concurrent appends from different adapters never interleave.
func (s Store) Append(ctx context.Context, batchID, sourceID string, records []etl.RawRecord) error {
	ctx, span := tracer.Start(ctx, "store:Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch", batchID),
		attribute.String("source", sourceID),
		attribute.Int("records", len(records)),
	)

	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer discard()

	err = txqry.CreateStagingBatch(ctx, db.CreateStagingBatchParams{
		BatchID:   batchID,
		SourceID:  sourceID,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, r := range records {
		err = txqry.CreateStagingRecord(ctx, db.CreateStagingRecordParams{
			BatchID:      batchID,
			SourceID:     r.SourceID,
			NaturalKey:   r.NaturalKey,
			FetchedAt:    r.FetchedAt.UnixNano(),
			AttemptCount: int64(r.AttemptCount),
			Payload:      string(r.Payload),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("stage record %s/%s: %w", r.SourceID, r.NaturalKey, err)
		}
	}

	err = commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Read returns the records of a previously appended batch.
func (s Store) Read(ctx context.Context, batchID string) ([]etl.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "store:Read")
	defer span.End()
	span.SetAttributes(attribute.String("batch", batchID))

	rows, err := s.qry.ListBatchRecords(ctx, batchID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	records := make([]etl.RawRecord, len(rows))
	for i, r := range rows {
		records[i] = etl.RawRecord{
			SourceID:     r.SourceID,
			NaturalKey:   r.NaturalKey,
			Payload:      json.RawMessage(r.Payload),
			FetchedAt:    time.Unix(0, r.FetchedAt),
			AttemptCount: int(r.AttemptCount),
		}
	}
	return records, nil
}

func (s Store) Batch(ctx context.Context, batchID string) (etl.StagingBatch, error) {
	b, err := s.qry.GetStagingBatch(ctx, batchID)
	if err != nil {
		return etl.StagingBatch{}, err
	}
	return etl.StagingBatch{
		ID:        b.BatchID,
		SourceID:  b.SourceID,
		CreatedAt: time.Unix(b.CreatedAt, 0),
	}, nil
}

func (s Store) ListBatches(ctx context.Context) ([]etl.StagingBatch, error) {
	rows, err := s.qry.ListStagingBatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]etl.StagingBatch, len(rows))
	for i, b := range rows {
		out[i] = etl.StagingBatch{
			ID:        b.BatchID,
			SourceID:  b.SourceID,
			CreatedAt: time.Unix(b.CreatedAt, 0),
		}
	}
	return out, nil
}

// RejectSink records refused records in the pipeline db, they are never
// silently dropped.
type RejectSink struct {
	qry *db.Queries
}

func NewRejectSink(database *sql.DB) RejectSink {
	return RejectSink{qry: db.New(database)}
}

func (s RejectSink) Write(ctx context.Context, rejects []etl.Reject) error {
	for _, r := range rejects {
		err := s.qry.CreateReject(ctx, db.CreateRejectParams{
			SourceID:   r.SourceID,
			NaturalKey: r.NaturalKey,
			Stage:      r.Stage,
			Reason:     r.Reason,
			Payload:    string(r.Payload),
			CreatedAt:  time.Now().Unix(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s RejectSink) List(ctx context.Context) ([]etl.Reject, error) {
	rows, err := s.qry.ListRejects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]etl.Reject, len(rows))
	for i, r := range rows {
		out[i] = etl.Reject{
			SourceID:   r.SourceID,
			NaturalKey: r.NaturalKey,
			Stage:      r.Stage,
			Reason:     r.Reason,
			Payload:    json.RawMessage(r.Payload),
		}
	}
	return out, nil
}
