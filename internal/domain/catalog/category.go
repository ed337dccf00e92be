package catalog

import (
	"fmt"
	"strings"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
)

// CategoryStatus represents the status of a category
type CategoryStatus string

const (
	CategoryStatusActive   CategoryStatus = "active"
	CategoryStatusInactive CategoryStatus = "inactive"
)

// Category represents a product category in the catalog
type Category struct {
	shared.TenantAggregateRoot
	RemoteID       *int64
	Name           string         `gorm:"type:varchar(200);not null"`
	NormalizedName string         `gorm:"type:varchar(200);not null"`
	Status         CategoryStatus `gorm:"type:varchar(20);not null;default:'active'"`
}

// TableName returns the table name for GORM
func (Category) TableName() string {
	return "categories"
}

// NewRemoteCategory creates a category bound to a remote category id.
// normalizedName is the natural key used when a remote binding is missing.
func NewRemoteCategory(tenantID uuid.UUID, remoteID int64, name, normalizedName string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Category %d", remoteID)
	}
	if normalizedName == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Category normalized name cannot be empty")
	}
	return &Category{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RemoteID:            &remoteID,
		Name:                name,
		NormalizedName:      normalizedName,
		Status:              CategoryStatusActive,
	}, nil
}

// BindRemote binds an unbound category to a remote id
func (c *Category) BindRemote(remoteID int64) bool {
	if c.RemoteID != nil {
		return false
	}
	c.RemoteID = &remoteID
	c.IncrementVersion()
	return true
}
