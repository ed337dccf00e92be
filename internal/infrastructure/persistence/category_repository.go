package persistence

import (
	"context"
	"errors"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCategoryRepository implements CategoryRepository using GORM
type GormCategoryRepository struct {
	db *gorm.DB
}

// NewGormCategoryRepository creates a new GormCategoryRepository
func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

// FindByRemoteID finds a category bound to a remote id
func (r *GormCategoryRepository) FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*catalog.Category, error) {
	var category catalog.Category
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND remote_id = ?", tenantID, remoteID).
		First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

// FindByNormalizedName finds a category by its normalized name
func (r *GormCategoryRepository) FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, normalizedName string) (*catalog.Category, error) {
	var category catalog.Category
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND normalized_name = ?", tenantID, normalizedName).
		First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

// Create inserts a new category
func (r *GormCategoryRepository) Create(ctx context.Context, category *catalog.Category) error {
	return translateError(r.db.WithContext(ctx).Create(category).Error)
}

// Save updates an existing category
func (r *GormCategoryRepository) Save(ctx context.Context, category *catalog.Category) error {
	return translateError(r.db.WithContext(ctx).Save(category).Error)
}

var _ catalog.CategoryRepository = (*GormCategoryRepository)(nil)
