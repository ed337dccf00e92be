package persistence

import (
	"context"
	"errors"

	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSyncRunRepository implements catalogsync.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Create inserts a new sync run
func (r *GormSyncRunRepository) Create(ctx context.Context, run *catalogsync.SyncRun) error {
	model := models.SyncRunModelFromDomain(run)
	return translateError(r.db.WithContext(ctx).Create(model).Error)
}

// Update persists the run's current state. A row already in a terminal
// status is never overwritten.
func (r *GormSyncRunRepository) Update(ctx context.Context, run *catalogsync.SyncRun) error {
	model := models.SyncRunModelFromDomain(run)
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ? AND tenant_id = ?", run.ID, run.TenantID).
		Where("status NOT IN ?", []catalogsync.SyncStatus{
			catalogsync.SyncStatusSuccess,
			catalogsync.SyncStatusPartial,
			catalogsync.SyncStatusFailed,
		}).
		Select("status", "total_expected", "failure_rate", "stats", "errors", "started_at", "finished_at", "tombstone_cursor", "updated_at").
		Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, run.TenantID, run.ID); err != nil {
			return err
		}
		return catalogsync.ErrSyncRunFinalized
	}
	return nil
}

// FindByID finds a run of the tenant by id
func (r *GormSyncRunRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*catalogsync.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogsync.ErrSyncRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindHistory returns the tenant's runs newest first
func (r *GormSyncRunRepository) FindHistory(ctx context.Context, tenantID uuid.UUID, filter catalogsync.HistoryFilter) ([]*catalogsync.SyncRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = catalogsync.DefaultHistoryLimit
	}
	if limit > catalogsync.MaxHistoryLimit {
		limit = catalogsync.MaxHistoryLimit
	}

	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var runModels []models.SyncRunModel
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*catalogsync.SyncRun, len(runModels))
	for i := range runModels {
		runs[i] = runModels[i].ToDomain()
	}
	return runs, nil
}

// FindLastCompleted returns the newest run that finished with SUCCESS or PARTIAL
func (r *GormSyncRunRepository) FindLastCompleted(ctx context.Context, tenantID uuid.UUID, entityType string) (*catalogsync.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ?", tenantID, entityType).
		Where("status IN ?", []catalogsync.SyncStatus{catalogsync.SyncStatusSuccess, catalogsync.SyncStatusPartial}).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogsync.ErrSyncRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ catalogsync.SyncRunRepository = (*GormSyncRunRepository)(nil)
