package catalogsync

import (
	"context"

	"github.com/google/uuid"
)

// DefaultHistoryLimit is used when a history query sets no limit
const DefaultHistoryLimit = 20

// MaxHistoryLimit caps history queries
const MaxHistoryLimit = 200

// HistoryFilter narrows a sync history query; empty fields match everything
type HistoryFilter struct {
	EntityType string
	Direction  SyncDirection
	Status     SyncStatus
	Limit      int
}

// SyncRunRepository persists sync runs
type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*SyncRun, error)
	// FindHistory returns runs newest first
	FindHistory(ctx context.Context, tenantID uuid.UUID, filter HistoryFilter) ([]*SyncRun, error)
	// FindLastCompleted returns the newest run that finished with SUCCESS or PARTIAL
	FindLastCompleted(ctx context.Context, tenantID uuid.UUID, entityType string) (*SyncRun, error)
}
