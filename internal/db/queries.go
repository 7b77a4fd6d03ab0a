package db

import (
	"context"
)

type StagingBatch struct {
	BatchID   string
	SourceID  string
	CreatedAt int64
}

type StagingRecord struct {
	BatchID      string
	SourceID     string
	NaturalKey   string
	FetchedAt    int64
	AttemptCount int64
	Payload      string
}

type StageState struct {
	Stage     string
	BatchID   string
	Status    string
	Reason    string
	UpdatedAt int64
}

type Reject struct {
	SourceID   string
	NaturalKey string
	Stage      string
	Reason     string
	Payload    string
	CreatedAt  int64
}

const createStagingBatch = `
INSERT INTO staging_batches (batch_id, source_id, created_at)
VALUES (?, ?, ?)
`

type CreateStagingBatchParams struct {
	BatchID   string
	SourceID  string
	CreatedAt int64
}

func (q *Queries) CreateStagingBatch(ctx context.Context, arg CreateStagingBatchParams) error {
	_, err := q.db.ExecContext(ctx, createStagingBatch, arg.BatchID, arg.SourceID, arg.CreatedAt)
	return err
}

const getStagingBatch = `
SELECT batch_id, source_id, created_at FROM staging_batches WHERE batch_id = ?
`

func (q *Queries) GetStagingBatch(ctx context.Context, batchID string) (StagingBatch, error) {
	row := q.db.QueryRowContext(ctx, getStagingBatch, batchID)
	var b StagingBatch
	err := row.Scan(&b.BatchID, &b.SourceID, &b.CreatedAt)
	return b, err
}

const listStagingBatches = `
SELECT batch_id, source_id, created_at FROM staging_batches ORDER BY created_at
`

func (q *Queries) ListStagingBatches(ctx context.Context) ([]StagingBatch, error) {
	rows, err := q.db.QueryContext(ctx, listStagingBatches)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StagingBatch
	for rows.Next() {
		var b StagingBatch
		err = rows.Scan(&b.BatchID, &b.SourceID, &b.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const createStagingRecord = `
INSERT INTO staging_records (batch_id, source_id, natural_key, fetched_at, attempt_count, payload)
VALUES (?, ?, ?, ?, ?, ?)
`

type CreateStagingRecordParams struct {
	BatchID      string
	SourceID     string
	NaturalKey   string
	FetchedAt    int64
	AttemptCount int64
	Payload      string
}

func (q *Queries) CreateStagingRecord(ctx context.Context, arg CreateStagingRecordParams) error {
	_, err := q.db.ExecContext(
		ctx, createStagingRecord,
		arg.BatchID, arg.SourceID, arg.NaturalKey, arg.FetchedAt, arg.AttemptCount, arg.Payload,
	)
	return err
}

const listBatchRecords = `
SELECT batch_id, source_id, natural_key, fetched_at, attempt_count, payload
FROM staging_records WHERE batch_id = ? ORDER BY fetched_at, natural_key
`

func (q *Queries) ListBatchRecords(ctx context.Context, batchID string) ([]StagingRecord, error) {
	rows, err := q.db.QueryContext(ctx, listBatchRecords, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StagingRecord
	for rows.Next() {
		var r StagingRecord
		err = rows.Scan(&r.BatchID, &r.SourceID, &r.NaturalKey, &r.FetchedAt, &r.AttemptCount, &r.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const upsertStageState = `
INSERT INTO stage_state (stage, batch_id, status, reason, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (stage, batch_id) DO UPDATE SET
    status = excluded.status,
    reason = excluded.reason,
    updated_at = excluded.updated_at
`

type UpsertStageStateParams struct {
	Stage     string
	BatchID   string
	Status    string
	Reason    string
	UpdatedAt int64
}

func (q *Queries) UpsertStageState(ctx context.Context, arg UpsertStageStateParams) error {
	_, err := q.db.ExecContext(
		ctx, upsertStageState,
		arg.Stage, arg.BatchID, arg.Status, arg.Reason, arg.UpdatedAt,
	)
	return err
}

const getStageState = `
SELECT stage, batch_id, status, reason, updated_at
FROM stage_state WHERE stage = ? AND batch_id = ?
`

type GetStageStateParams struct {
	Stage   string
	BatchID string
}

func (q *Queries) GetStageState(ctx context.Context, arg GetStageStateParams) (StageState, error) {
	row := q.db.QueryRowContext(ctx, getStageState, arg.Stage, arg.BatchID)
	var s StageState
	err := row.Scan(&s.Stage, &s.BatchID, &s.Status, &s.Reason, &s.UpdatedAt)
	return s, err
}

const listStageStates = `
SELECT stage, batch_id, status, reason, updated_at
FROM stage_state ORDER BY batch_id, stage
`

func (q *Queries) ListStageStates(ctx context.Context) ([]StageState, error) {
	rows, err := q.db.QueryContext(ctx, listStageStates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StageState
	for rows.Next() {
		var s StageState
		err = rows.Scan(&s.Stage, &s.BatchID, &s.Status, &s.Reason, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const createReject = `
INSERT INTO rejects (source_id, natural_key, stage, reason, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

type CreateRejectParams struct {
	SourceID   string
	NaturalKey string
	Stage      string
	Reason     string
	Payload    string
	CreatedAt  int64
}

func (q *Queries) CreateReject(ctx context.Context, arg CreateRejectParams) error {
	_, err := q.db.ExecContext(
		ctx, createReject,
		arg.SourceID, arg.NaturalKey, arg.Stage, arg.Reason, arg.Payload, arg.CreatedAt,
	)
	return err
}

const listRejects = `
SELECT source_id, natural_key, stage, reason, payload, created_at
FROM rejects ORDER BY created_at
`

func (q *Queries) ListRejects(ctx context.Context) ([]Reject, error) {
	rows, err := q.db.QueryContext(ctx, listRejects)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reject
	for rows.Next() {
		var r Reject
		err = rows.Scan(&r.SourceID, &r.NaturalKey, &r.Stage, &r.Reason, &r.Payload, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
