package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSubresourceRepository implements SubresourceRepository using GORM
type GormSubresourceRepository struct {
	db *gorm.DB
}

// NewGormSubresourceRepository creates a new GormSubresourceRepository
func NewGormSubresourceRepository(db *gorm.DB) *GormSubresourceRepository {
	return &GormSubresourceRepository{db: db}
}

// childRow is a pointer to an entity embedding catalog.ProductChild
type childRow[E any] interface {
	*E
	Child() *catalog.ProductChild
}

// upsertChild looks a row up by its natural key and either inserts row or
// overwrites the existing one, keeping its id and creation time.
func upsertChild[E any, P childRow[E]](ctx context.Context, db *gorm.DB, row P, query string, args ...any) (bool, error) {
	var existing E
	err := db.WithContext(ctx).Where(query, args...).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := db.WithContext(ctx).Create(row).Error; err != nil {
			return false, translateError(err)
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	prev := P(&existing).Child()
	child := row.Child()
	child.ID = prev.ID
	child.CreatedAt = prev.CreatedAt
	child.UpdatedAt = time.Now()
	return false, translateError(db.WithContext(ctx).Save(row).Error)
}

// ReplaceImages deletes the product's images and inserts the given ones in order
func (r *GormSubresourceRepository) ReplaceImages(ctx context.Context, productID uuid.UUID, images []catalog.ProductImage) error {
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Delete(&catalog.ProductImage{}).Error; err != nil {
		return err
	}
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		images[i].Position = i
	}
	return translateError(r.db.WithContext(ctx).Create(&images).Error)
}

// UpsertInventory is keyed by product and warehouse
func (r *GormSubresourceRepository) UpsertInventory(ctx context.Context, level *catalog.InventoryLevel) (bool, error) {
	return upsertChild(ctx, r.db, level,
		"product_id = ? AND warehouse_id = ?", level.ProductID, level.WarehouseID)
}

// UpsertAttribute is keyed by product and attribute name
func (r *GormSubresourceRepository) UpsertAttribute(ctx context.Context, attr *catalog.ProductAttribute) (bool, error) {
	return upsertChild(ctx, r.db, attr,
		"product_id = ? AND name = ?", attr.ProductID, attr.Name)
}

// UpsertUnit is keyed by product and remote unit id, or by name when the unit has no remote id
func (r *GormSubresourceRepository) UpsertUnit(ctx context.Context, unit *catalog.ProductUnit) (bool, error) {
	if unit.RemoteID != nil {
		return upsertChild(ctx, r.db, unit,
			"product_id = ? AND remote_id = ?", unit.ProductID, *unit.RemoteID)
	}
	return upsertChild(ctx, r.db, unit,
		"product_id = ? AND remote_id IS NULL AND name = ?", unit.ProductID, unit.Name)
}

// SetMasterUnit flags unitID as the product's master unit and clears the flag on the others
func (r *GormSubresourceRepository) SetMasterUnit(ctx context.Context, productID, unitID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&catalog.ProductUnit{}).
		Where("product_id = ?", productID).
		Update("is_master", gorm.Expr("id = ?", unitID)).Error
}

// FindUnits lists a product's units, master unit first
func (r *GormSubresourceRepository) FindUnits(ctx context.Context, productID uuid.UUID) ([]catalog.ProductUnit, error) {
	var units []catalog.ProductUnit
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("is_master DESC, created_at ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

// EnsurePriceBook finds the price book bound to book.RemoteID or creates book.
// A concurrent insert of the same book is resolved by reading it back.
func (r *GormSubresourceRepository) EnsurePriceBook(ctx context.Context, book *catalog.PriceBook) (*catalog.PriceBook, error) {
	if book.RemoteID == nil {
		return nil, shared.ErrInvalidInput
	}
	found, err := r.findPriceBook(ctx, book.TenantID, *book.RemoteID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	createErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return translateError(tx.Create(book).Error)
	})
	if createErr == nil {
		return book, nil
	}
	if errors.Is(createErr, shared.ErrAlreadyExists) {
		return r.findPriceBook(ctx, book.TenantID, *book.RemoteID)
	}
	return nil, createErr
}

func (r *GormSubresourceRepository) findPriceBook(ctx context.Context, tenantID uuid.UUID, remoteID int64) (*catalog.PriceBook, error) {
	var book catalog.PriceBook
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND remote_id = ?", tenantID, remoteID).
		First(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &book, nil
}

// UpsertProductPrice is keyed by product and price book
func (r *GormSubresourceRepository) UpsertProductPrice(ctx context.Context, price *catalog.ProductPrice) (bool, error) {
	return upsertChild(ctx, r.db, price,
		"product_id = ? AND price_book_id = ?", price.ProductID, price.PriceBookID)
}

// UpsertFormula is keyed by product and material remote id
func (r *GormSubresourceRepository) UpsertFormula(ctx context.Context, item *catalog.FormulaItem) (bool, error) {
	return upsertChild(ctx, r.db, item,
		"product_id = ? AND material_remote_id = ?", item.ProductID, item.MaterialRemoteID)
}

// UpsertSerial is keyed by product and serial number
func (r *GormSubresourceRepository) UpsertSerial(ctx context.Context, serial *catalog.SerialNumber) (bool, error) {
	return upsertChild(ctx, r.db, serial,
		"product_id = ? AND serial_number = ?", serial.ProductID, serial.SerialNumber)
}

// UpsertBatchLot is keyed by product, warehouse and batch name
func (r *GormSubresourceRepository) UpsertBatchLot(ctx context.Context, lot *catalog.BatchLot) (bool, error) {
	return upsertChild(ctx, r.db, lot,
		"product_id = ? AND warehouse_id = ? AND batch_name = ?", lot.ProductID, lot.WarehouseID, lot.BatchName)
}

// UpsertWarranty is keyed by product and remote warranty id
func (r *GormSubresourceRepository) UpsertWarranty(ctx context.Context, warranty *catalog.Warranty) (bool, error) {
	return upsertChild(ctx, r.db, warranty,
		"product_id = ? AND remote_id = ?", warranty.ProductID, warranty.RemoteID)
}

// UpsertShelf is keyed by product and warehouse
func (r *GormSubresourceRepository) UpsertShelf(ctx context.Context, shelf *catalog.ShelfPlacement) (bool, error) {
	return upsertChild(ctx, r.db, shelf,
		"product_id = ? AND warehouse_id = ?", shelf.ProductID, shelf.WarehouseID)
}

// UpsertVariant is keyed by product and remote variant id
func (r *GormSubresourceRepository) UpsertVariant(ctx context.Context, variant *catalog.ProductVariant) (bool, error) {
	return upsertChild(ctx, r.db, variant,
		"product_id = ? AND remote_id = ?", variant.ProductID, variant.RemoteID)
}

var _ catalog.SubresourceRepository = (*GormSubresourceRepository)(nil)
