package dto

import (
	"time"

	appsync "github.com/erp/catalogsync/internal/application/catalogsync"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
)

// SyncHistoryRequest is the query of the run history endpoint
type SyncHistoryRequest struct {
	EntityType string `form:"entity_type"`
	Direction  string `form:"direction"`
	Status     string `form:"status"`
	Limit      int    `form:"limit"`
}

// Query converts the request to the history query
func (r SyncHistoryRequest) Query() appsync.HistoryQuery {
	return appsync.HistoryQuery{
		EntityType: r.EntityType,
		Direction:  r.Direction,
		Status:     r.Status,
		Limit:      r.Limit,
	}
}

// SyncRunResponse is one run of the history
type SyncRunResponse struct {
	ID              string            `json:"id"`
	Direction       string            `json:"direction"`
	EntityType      string            `json:"entity_type"`
	Status          string            `json:"status"`
	TotalExpected   int               `json:"total_expected"`
	FailureRate     float64           `json:"failure_rate"`
	Stats           catalogsync.Stats `json:"stats"`
	Errors          []string          `json:"errors"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
	TombstoneCursor *time.Time        `json:"tombstone_cursor,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
	CreatedAt       time.Time         `json:"created_at"`
}

// NewSyncRunResponse converts a run
func NewSyncRunResponse(r *catalogsync.SyncRun) SyncRunResponse {
	stats := r.Stats
	if stats == nil {
		stats = catalogsync.NewStats()
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return SyncRunResponse{
		ID:              r.ID.String(),
		Direction:       string(r.Direction),
		EntityType:      r.EntityType,
		Status:          string(r.Status),
		TotalExpected:   r.TotalExpected,
		FailureRate:     r.FailureRate,
		Stats:           stats,
		Errors:          errs,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		TombstoneCursor: r.TombstoneCursor,
		DurationMs:      r.Duration().Milliseconds(),
		CreatedAt:       r.CreatedAt,
	}
}

// NewSyncRunListResponse converts a page of runs
func NewSyncRunListResponse(runs []*catalogsync.SyncRun) []SyncRunResponse {
	out := make([]SyncRunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, NewSyncRunResponse(r))
	}
	return out
}
