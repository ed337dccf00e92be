package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// FindByRemoteID finds a product bound to a remote catalog id
	FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*Product, error)
	// FindByCode finds a product by its business code
	FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Product, error)
	// FindAllForTenant returns every product of the tenant, inactive ones included
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]Product, error)
	Create(ctx context.Context, product *Product) error
	Save(ctx context.Context, product *Product) error
}

// CategoryRepository defines the interface for category persistence
type CategoryRepository interface {
	FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*Category, error)
	FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, normalizedName string) (*Category, error)
	Create(ctx context.Context, category *Category) error
	Save(ctx context.Context, category *Category) error
}

// AccountRepository defines the interface for owner account persistence
type AccountRepository interface {
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Account, error)
	Create(ctx context.Context, account *Account) error
}

// BusinessRepository defines the interface for business persistence
type BusinessRepository interface {
	FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*Business, error)
	FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, normalizedName string) (*Business, error)
	Create(ctx context.Context, business *Business) error
	Save(ctx context.Context, business *Business) error
}

// WarehouseRepository defines the interface for warehouse persistence
type WarehouseRepository interface {
	FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*Warehouse, error)
	FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, normalizedName string) (*Warehouse, error)
	Create(ctx context.Context, warehouse *Warehouse) error
	Save(ctx context.Context, warehouse *Warehouse) error
}

// SubresourceRepository writes the rows that hang off a product.
// Upsert methods report whether a new row was created.
type SubresourceRepository interface {
	// ReplaceImages deletes the product's images and inserts the given ones in order
	ReplaceImages(ctx context.Context, productID uuid.UUID, images []ProductImage) error
	// UpsertInventory is keyed by product and warehouse
	UpsertInventory(ctx context.Context, level *InventoryLevel) (bool, error)
	// UpsertAttribute is keyed by product and attribute name
	UpsertAttribute(ctx context.Context, attr *ProductAttribute) (bool, error)
	// UpsertUnit is keyed by product and remote unit id, or by name when the unit has no remote id
	UpsertUnit(ctx context.Context, unit *ProductUnit) (bool, error)
	// SetMasterUnit flags unitID as the product's master unit and clears the flag on the others
	SetMasterUnit(ctx context.Context, productID, unitID uuid.UUID) error
	// FindUnits lists a product's units, master unit first
	FindUnits(ctx context.Context, productID uuid.UUID) ([]ProductUnit, error)
	// EnsurePriceBook finds the price book bound to remoteID or creates it
	EnsurePriceBook(ctx context.Context, book *PriceBook) (*PriceBook, error)
	// UpsertProductPrice is keyed by product and price book
	UpsertProductPrice(ctx context.Context, price *ProductPrice) (bool, error)
	// UpsertFormula is keyed by product and material remote id
	UpsertFormula(ctx context.Context, item *FormulaItem) (bool, error)
	// UpsertSerial is keyed by product and serial number
	UpsertSerial(ctx context.Context, serial *SerialNumber) (bool, error)
	// UpsertBatchLot is keyed by product, warehouse and batch name
	UpsertBatchLot(ctx context.Context, lot *BatchLot) (bool, error)
	// UpsertWarranty is keyed by product and remote warranty id
	UpsertWarranty(ctx context.Context, warranty *Warranty) (bool, error)
	// UpsertShelf is keyed by product and warehouse
	UpsertShelf(ctx context.Context, shelf *ShelfPlacement) (bool, error)
	// UpsertVariant is keyed by product and remote variant id
	UpsertVariant(ctx context.Context, variant *ProductVariant) (bool, error)
}

// Store groups the catalog repositories that share one database session
type Store interface {
	Products() ProductRepository
	Categories() CategoryRepository
	Accounts() AccountRepository
	Businesses() BusinessRepository
	Warehouses() WarehouseRepository
	Subresources() SubresourceRepository
	// Nested runs fn inside a savepoint; an error rolls back only fn's writes
	Nested(ctx context.Context, fn func(Store) error) error
}

// UnitOfWork opens transactional stores
type UnitOfWork interface {
	// InTx runs fn in a transaction committed when fn returns nil
	InTx(ctx context.Context, fn func(Store) error) error
	// Reader returns a non-transactional store for read-only queries
	Reader() Store
}
