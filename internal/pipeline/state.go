package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inkwell-pipeline/internal/db"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StateStore persists per-(stage, batch) status so a process restart
// resumes exactly where the previous run stopped.
type StateStore struct {
	qry *db.Queries
}

func NewStateStore(database *sql.DB) StateStore {
	return StateStore{qry: db.New(database)}
}

func (s StateStore) Get(ctx context.Context, stage, batchID string) (db.StageState, error) {
	state, err := s.qry.GetStageState(ctx, db.GetStageStateParams{
		Stage:   stage,
		BatchID: batchID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return db.StageState{
			Stage:   stage,
			BatchID: batchID,
			Status:  StatusPending,
		}, nil
	}
	return state, err
}

func (s StateStore) List(ctx context.Context) ([]db.StageState, error) {
	return s.qry.ListStageStates(ctx)
}

func (s StateStore) set(ctx context.Context, stage, batchID, status, reason string) error {
	return s.qry.UpsertStageState(ctx, db.UpsertStageStateParams{
		Stage:     stage,
		BatchID:   batchID,
		Status:    status,
		Reason:    reason,
		UpdatedAt: time.Now().Unix(),
	})
}

func (s StateStore) MarkPending(ctx context.Context, stage, batchID string) error {
	return s.set(ctx, stage, batchID, StatusPending, "")
}

func (s StateStore) MarkRunning(ctx context.Context, stage, batchID string) error {
	return s.set(ctx, stage, batchID, StatusRunning, "")
}

func (s StateStore) MarkSucceeded(ctx context.Context, stage, batchID string) error {
	return s.set(ctx, stage, batchID, StatusSucceeded, "")
}

func (s StateStore) MarkFailed(ctx context.Context, stage, batchID, reason string) error {
	return s.set(ctx, stage, batchID, StatusFailed, reason)
}

// ResetFailed moves a failed stage back to pending for retry. A stage
// is never silently skipped, resetting anything but a failed stage is
// an error.
func (s StateStore) ResetFailed(ctx context.Context, stage, batchID string) error {
	state, err := s.Get(ctx, stage, batchID)
	if err != nil {
		return err
	}
	if state.Status != StatusFailed {
		return fmt.Errorf("stage %q of batch %q is %q, only failed stages can be reset", stage, batchID, state.Status)
	}
	return s.MarkPending(ctx, stage, batchID)
}
