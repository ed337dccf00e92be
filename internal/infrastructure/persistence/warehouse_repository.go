package persistence

import (
	"context"
	"errors"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormWarehouseRepository implements WarehouseRepository using GORM
type GormWarehouseRepository struct {
	db *gorm.DB
}

// NewGormWarehouseRepository creates a new GormWarehouseRepository
func NewGormWarehouseRepository(db *gorm.DB) *GormWarehouseRepository {
	return &GormWarehouseRepository{db: db}
}

// FindByRemoteID finds a warehouse bound to a remote branch id
func (r *GormWarehouseRepository) FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*catalog.Warehouse, error) {
	var warehouse catalog.Warehouse
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND remote_id = ?", tenantID, remoteID).
		First(&warehouse).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &warehouse, nil
}

// FindByNormalizedName finds a warehouse by its normalized name.
// Several warehouses may share a name; the oldest wins.
func (r *GormWarehouseRepository) FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, normalizedName string) (*catalog.Warehouse, error) {
	var warehouse catalog.Warehouse
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND normalized_name = ?", tenantID, normalizedName).
		Order("created_at ASC").
		First(&warehouse).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &warehouse, nil
}

// Create inserts a new warehouse
func (r *GormWarehouseRepository) Create(ctx context.Context, warehouse *catalog.Warehouse) error {
	return translateError(r.db.WithContext(ctx).Create(warehouse).Error)
}

// Save updates an existing warehouse
func (r *GormWarehouseRepository) Save(ctx context.Context, warehouse *catalog.Warehouse) error {
	return translateError(r.db.WithContext(ctx).Save(warehouse).Error)
}

var _ catalog.WarehouseRepository = (*GormWarehouseRepository)(nil)
