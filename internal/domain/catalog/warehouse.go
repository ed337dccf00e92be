package catalog

import (
	"fmt"
	"strings"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
)

// Warehouse is a stock location; remote branches map onto warehouses
type Warehouse struct {
	shared.TenantAggregateRoot
	RemoteID       *int64
	Code           string `gorm:"type:varchar(50);not null"`
	Name           string `gorm:"type:varchar(200);not null"`
	NormalizedName string `gorm:"type:varchar(200);not null;index"`
	IsActive       bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Warehouse) TableName() string {
	return "warehouses"
}

// BranchWarehouseCode is the warehouse code given to a remote branch
func BranchWarehouseCode(remoteID int64) string {
	return fmt.Sprintf("BR-%d", remoteID)
}

// NewBranchWarehouse creates a warehouse bound to a remote branch id
func NewBranchWarehouse(tenantID uuid.UUID, remoteID int64, name, normalizedName string) (*Warehouse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Branch %d", remoteID)
	}
	if normalizedName == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Warehouse normalized name cannot be empty")
	}
	return &Warehouse{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RemoteID:            &remoteID,
		Code:                BranchWarehouseCode(remoteID),
		Name:                name,
		NormalizedName:      normalizedName,
		IsActive:            true,
	}, nil
}

// BindRemote binds an unbound warehouse to a remote branch id
func (w *Warehouse) BindRemote(remoteID int64) bool {
	if w.RemoteID != nil {
		return false
	}
	w.RemoteID = &remoteID
	w.IncrementVersion()
	return true
}
