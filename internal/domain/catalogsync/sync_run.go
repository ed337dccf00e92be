package catalogsync

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus represents the status of a sync run
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusRunning SyncStatus = "RUNNING"
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusPartial SyncStatus = "PARTIAL"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// IsValid checks if the sync status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusRunning, SyncStatusSuccess, SyncStatusPartial, SyncStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves the status
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusPartial || s == SyncStatusFailed
}

// String returns the string representation
func (s SyncStatus) String() string {
	return string(s)
}

// SyncDirection is the direction data flows in a run
type SyncDirection string

const (
	// SyncDirectionPull copies the remote catalog into the local store
	SyncDirectionPull SyncDirection = "PULL"
)

// IsValid checks if the direction is valid
func (d SyncDirection) IsValid() bool {
	return d == SyncDirectionPull
}

// EntityTypeProduct is the entity type recorded for catalog product runs
const EntityTypeProduct = "product"

// SyncRun is the audit record of one reconciliation run.
// Pending -> Running -> Success | Partial | Failed; a finished run never changes.
type SyncRun struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Direction       SyncDirection
	EntityType      string
	Status          SyncStatus
	TotalExpected   int
	FailureRate     float64
	Stats           Stats
	Errors          []string
	StartedAt       *time.Time
	FinishedAt      *time.Time
	// TombstoneCursor is where the next run starts reading remote removals;
	// nil means from the beginning.
	TombstoneCursor *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSyncRun creates a pending run
func NewSyncRun(tenantID uuid.UUID, direction SyncDirection, entityType string) (*SyncRun, error) {
	if tenantID == uuid.Nil {
		return nil, ErrSyncRunInvalidTenant
	}
	if !direction.IsValid() {
		return nil, ErrSyncRunInvalidDirection
	}
	if entityType == "" {
		return nil, ErrSyncRunInvalidEntityType
	}
	now := time.Now()
	return &SyncRun{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Direction:  direction,
		EntityType: entityType,
		Status:     SyncStatusPending,
		Stats:      NewStats(),
		Errors:     []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Start moves a pending run to running
func (r *SyncRun) Start(totalExpected int, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrSyncRunFinalized
	}
	if r.Status != SyncStatusPending {
		return ErrSyncRunInvalidTransition
	}
	if totalExpected < 0 {
		totalExpected = 0
	}
	r.Status = SyncStatusRunning
	r.TotalExpected = totalExpected
	r.StartedAt = &at
	r.UpdatedAt = at
	return nil
}

// Finish moves a running run to a terminal status, recording its statistics
func (r *SyncRun) Finish(status SyncStatus, stats Stats, errs []string, failureRate float64, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrSyncRunFinalized
	}
	if r.Status != SyncStatusRunning {
		return ErrSyncRunInvalidTransition
	}
	if !status.IsTerminal() {
		return ErrSyncRunInvalidStatus
	}
	if stats == nil {
		stats = NewStats()
	}
	if errs == nil {
		errs = []string{}
	}
	r.Status = status
	r.Stats = stats.Merge(nil)
	r.Errors = append([]string(nil), errs...)
	r.FailureRate = failureRate
	r.FinishedAt = &at
	r.UpdatedAt = at
	return nil
}

// SetTombstoneCursor records where the next run reads removals from. A zero
// time clears the cursor.
func (r *SyncRun) SetTombstoneCursor(at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrSyncRunFinalized
	}
	if at.IsZero() {
		r.TombstoneCursor = nil
		return nil
	}
	r.TombstoneCursor = &at
	return nil
}

// IsFinalized reports whether the run reached a terminal status
func (r *SyncRun) IsFinalized() bool {
	return r.Status.IsTerminal()
}

// Duration returns how long the run took, zero while unfinished
func (r *SyncRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
