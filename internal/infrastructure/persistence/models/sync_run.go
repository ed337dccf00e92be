package models

import (
	"encoding/json"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/google/uuid"
)

// SyncRunModel is the persistence model for a catalog sync run
type SyncRunModel struct {
	ID              uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Direction       catalogsync.SyncDirection `gorm:"type:varchar(10);not null;index:idx_sync_run_lookup,priority:2"`
	EntityType      string                    `gorm:"type:varchar(50);not null;index:idx_sync_run_lookup,priority:1"`
	Status          catalogsync.SyncStatus    `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	TotalExpected   int                       `gorm:"not null;default:0"`
	FailureRate     float64                   `gorm:"not null;default:0"`
	StatsJSON       string                    `gorm:"type:text;column:stats"`
	ErrorsJSON      string                    `gorm:"type:text;column:errors"`
	StartedAt       *time.Time                `gorm:"index"`
	FinishedAt      *time.Time
	TombstoneCursor *time.Time
	CreatedAt       time.Time                 `gorm:"not null"`
	UpdatedAt       time.Time                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun.
// Unreadable JSON columns come back empty rather than failing the read.
func (m *SyncRunModel) ToDomain() *catalogsync.SyncRun {
	run := &catalogsync.SyncRun{
		ID:              m.ID,
		TenantID:        m.TenantID,
		Direction:       m.Direction,
		EntityType:      m.EntityType,
		Status:          m.Status,
		TotalExpected:   m.TotalExpected,
		FailureRate:     m.FailureRate,
		Stats:           catalogsync.NewStats(),
		Errors:          []string{},
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
		TombstoneCursor: m.TombstoneCursor,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}

	if m.StatsJSON != "" {
		var stats catalogsync.Stats
		if err := json.Unmarshal([]byte(m.StatsJSON), &stats); err == nil && stats != nil {
			run.Stats = stats
		}
	}
	if m.ErrorsJSON != "" {
		var errs []string
		if err := json.Unmarshal([]byte(m.ErrorsJSON), &errs); err == nil && errs != nil {
			run.Errors = errs
		}
	}

	return run
}

// FromDomain populates the persistence model from a domain SyncRun
func (m *SyncRunModel) FromDomain(run *catalogsync.SyncRun) {
	m.ID = run.ID
	m.TenantID = run.TenantID
	m.Direction = run.Direction
	m.EntityType = run.EntityType
	m.Status = run.Status
	m.TotalExpected = run.TotalExpected
	m.FailureRate = run.FailureRate
	m.StartedAt = run.StartedAt
	m.FinishedAt = run.FinishedAt
	m.TombstoneCursor = run.TombstoneCursor
	m.CreatedAt = run.CreatedAt
	m.UpdatedAt = run.UpdatedAt

	m.StatsJSON = "{}"
	if len(run.Stats) > 0 {
		if b, err := json.Marshal(run.Stats); err == nil {
			m.StatsJSON = string(b)
		}
	}
	m.ErrorsJSON = "[]"
	if len(run.Errors) > 0 {
		if b, err := json.Marshal(run.Errors); err == nil {
			m.ErrorsJSON = string(b)
		}
	}
}

// SyncRunModelFromDomain creates a new persistence model from a domain SyncRun
func SyncRunModelFromDomain(run *catalogsync.SyncRun) *SyncRunModel {
	m := &SyncRunModel{}
	m.FromDomain(run)
	return m
}
