package persistence

import (
	"context"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"gorm.io/gorm"
)

// GormUnitOfWork implements catalog.UnitOfWork using GORM transactions
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// InTx runs fn in a transaction. The transaction is bound to ctx, so a
// deadline on ctx bounds the whole transaction.
func (u *GormUnitOfWork) InTx(ctx context.Context, fn func(catalog.Store) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

// Reader returns a store outside any transaction
func (u *GormUnitOfWork) Reader() catalog.Store {
	return NewGormStore(u.db)
}

// GormStore implements catalog.Store on one GORM session
type GormStore struct {
	db           *gorm.DB
	products     *GormProductRepository
	categories   *GormCategoryRepository
	accounts     *GormAccountRepository
	businesses   *GormBusinessRepository
	warehouses   *GormWarehouseRepository
	subresources *GormSubresourceRepository
}

// NewGormStore creates a store whose repositories share db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:           db,
		products:     NewGormProductRepository(db),
		categories:   NewGormCategoryRepository(db),
		accounts:     NewGormAccountRepository(db),
		businesses:   NewGormBusinessRepository(db),
		warehouses:   NewGormWarehouseRepository(db),
		subresources: NewGormSubresourceRepository(db),
	}
}

// Products returns the product repository
func (s *GormStore) Products() catalog.ProductRepository { return s.products }

// Categories returns the category repository
func (s *GormStore) Categories() catalog.CategoryRepository { return s.categories }

// Accounts returns the account repository
func (s *GormStore) Accounts() catalog.AccountRepository { return s.accounts }

// Businesses returns the business repository
func (s *GormStore) Businesses() catalog.BusinessRepository { return s.businesses }

// Warehouses returns the warehouse repository
func (s *GormStore) Warehouses() catalog.WarehouseRepository { return s.warehouses }

// Subresources returns the product sub-resource repository
func (s *GormStore) Subresources() catalog.SubresourceRepository { return s.subresources }

// Nested runs fn in a savepoint when the store is inside a transaction,
// or in a new transaction otherwise
func (s *GormStore) Nested(ctx context.Context, fn func(catalog.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

var (
	_ catalog.UnitOfWork = (*GormUnitOfWork)(nil)
	_ catalog.Store      = (*GormStore)(nil)
)
