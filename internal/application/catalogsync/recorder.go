package catalogsync

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/google/uuid"
)

// Recorder writes the SyncRun audit trail: one row created at start and
// finalized once at finish.
type Recorder struct {
	runs catalogsync.SyncRunRepository
	now  func() time.Time
}

// FinishOption adjusts what Finish records besides the outcome
type FinishOption func(*finishOptions)

type finishOptions struct {
	cursor    time.Time
	hasCursor bool
}

// WithTombstoneCursor records where the next run reads removals from
func WithTombstoneCursor(at time.Time) FinishOption {
	return func(o *finishOptions) {
		o.cursor = at
		o.hasCursor = true
	}
}

// NewRecorder creates a recorder on runs
func NewRecorder(runs catalogsync.SyncRunRepository) *Recorder {
	return &Recorder{runs: runs, now: time.Now}
}

// Start persists a new run already moved to RUNNING
func (r *Recorder) Start(ctx context.Context, tenantID uuid.UUID, direction catalogsync.SyncDirection, entityType string, totalExpected int) (uuid.UUID, error) {
	run, err := catalogsync.NewSyncRun(tenantID, direction, entityType)
	if err != nil {
		return uuid.Nil, err
	}
	if err := run.Start(totalExpected, r.now()); err != nil {
		return uuid.Nil, err
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("create sync run: %w", err)
	}
	return run.ID, nil
}

// Finish moves the run to a terminal status and writes its statistics.
// Finishing a run twice fails with ErrSyncRunFinalized.
func (r *Recorder) Finish(ctx context.Context, tenantID, runID uuid.UUID, status catalogsync.SyncStatus, stats catalogsync.Stats, errs []string, failureRate float64, opts ...FinishOption) (*catalogsync.SyncRun, error) {
	var o finishOptions
	for _, opt := range opts {
		opt(&o)
	}

	run, err := r.runs.FindByID(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if o.hasCursor {
		if err := run.SetTombstoneCursor(o.cursor); err != nil {
			return nil, err
		}
	}
	if err := run.Finish(status, stats, errs, failureRate, r.now()); err != nil {
		return nil, err
	}
	if err := r.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("update sync run: %w", err)
	}
	return run, nil
}
