package shared

import (
	"time"

	"github.com/google/uuid"
)

// TenantAggregateRoot carries the identity, tenant and optimistic version
// shared by every catalog row the engine owns
type TenantAggregateRoot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Version   int       `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// NewTenantAggregateRoot creates a root with a fresh id at version 1
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	now := time.Now()
	return TenantAggregateRoot{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetID returns the row id
func (a *TenantAggregateRoot) GetID() uuid.UUID {
	return a.ID
}

// IncrementVersion records a mutation
func (a *TenantAggregateRoot) IncrementVersion() {
	a.Version++
	a.UpdatedAt = time.Now()
}
