package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAccountRepository implements AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByEmail finds an account by email, case-insensitively
func (r *GormAccountRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*catalog.Account, error) {
	var account catalog.Account
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, strings.ToLower(email)).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Create inserts a new account
func (r *GormAccountRepository) Create(ctx context.Context, account *catalog.Account) error {
	return translateError(r.db.WithContext(ctx).Create(account).Error)
}

// GormBusinessRepository implements BusinessRepository using GORM
type GormBusinessRepository struct {
	db *gorm.DB
}

// NewGormBusinessRepository creates a new GormBusinessRepository
func NewGormBusinessRepository(db *gorm.DB) *GormBusinessRepository {
	return &GormBusinessRepository{db: db}
}

// FindByRemoteID finds a business bound to a remote trademark id
func (r *GormBusinessRepository) FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*catalog.Business, error) {
	var business catalog.Business
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND remote_id = ?", tenantID, remoteID).
		First(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &business, nil
}

// FindByNormalizedName finds a business by its normalized name
func (r *GormBusinessRepository) FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, normalizedName string) (*catalog.Business, error) {
	var business catalog.Business
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND normalized_name = ?", tenantID, normalizedName).
		First(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &business, nil
}

// Create inserts a new business
func (r *GormBusinessRepository) Create(ctx context.Context, business *catalog.Business) error {
	return translateError(r.db.WithContext(ctx).Create(business).Error)
}

// Save updates an existing business
func (r *GormBusinessRepository) Save(ctx context.Context, business *catalog.Business) error {
	return translateError(r.db.WithContext(ctx).Save(business).Error)
}

var (
	_ catalog.AccountRepository  = (*GormAccountRepository)(nil)
	_ catalog.BusinessRepository = (*GormBusinessRepository)(nil)
)
