package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductChild holds the columns shared by every row that hangs off a product
type ProductChild struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProductChild creates the shared columns for a new child row
func NewProductChild(tenantID, productID uuid.UUID) ProductChild {
	now := time.Now()
	return ProductChild{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProductID: productID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Child returns the shared columns; persistence uses it to carry ids across upserts
func (c *ProductChild) Child() *ProductChild {
	return c
}

// ProductImage is one image of a product; Position orders the gallery
type ProductImage struct {
	ProductChild
	URL      string `gorm:"type:varchar(1000);not null"`
	Position int    `gorm:"not null;default:0"`
	IsMain   bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (ProductImage) TableName() string { return "product_images" }

// InventoryLevel is the stock of a product in one warehouse, keyed by product+warehouse
type InventoryLevel struct {
	ProductChild
	WarehouseID uuid.UUID       `gorm:"type:uuid;not null;index"`
	OnHand      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Reserved    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Cost        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	MinQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	MaxQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (InventoryLevel) TableName() string { return "inventory_levels" }

// ProductAttribute is a free-form name/value pair, unique by name per product
type ProductAttribute struct {
	ProductChild
	Name  string `gorm:"type:varchar(100);not null"`
	Value string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (ProductAttribute) TableName() string { return "product_attributes" }

// PriceBook is a global named price list
type PriceBook struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_price_book_tenant_remote,priority:1"`
	RemoteID  *int64    `gorm:"uniqueIndex:idx_price_book_tenant_remote,priority:2"`
	Name      string    `gorm:"type:varchar(200);not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (PriceBook) TableName() string { return "price_books" }

// NewRemotePriceBook creates a price book bound to a remote id
func NewRemotePriceBook(tenantID uuid.UUID, remoteID int64, name string) *PriceBook {
	now := time.Now()
	return &PriceBook{
		ID:        uuid.New(),
		TenantID:  tenantID,
		RemoteID:  &remoteID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProductPrice is a product's price inside one price book
type ProductPrice struct {
	ProductChild
	PriceBookID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Price       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductPrice) TableName() string { return "product_prices" }

// FormulaItem is one bill-of-materials line: the product consumes Quantity of a material
type FormulaItem struct {
	ProductChild
	MaterialRemoteID int64           `gorm:"not null"`
	MaterialCode     string          `gorm:"type:varchar(50)"`
	MaterialName     string          `gorm:"type:varchar(255)"`
	Quantity         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (FormulaItem) TableName() string { return "product_formulas" }

// SerialNumber is a tracked serial/IMEI of a serial-controlled product
type SerialNumber struct {
	ProductChild
	WarehouseID  uuid.UUID `gorm:"type:uuid;not null;index"`
	SerialNumber string    `gorm:"type:varchar(100);not null"`
	Status       int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (SerialNumber) TableName() string { return "product_serials" }

// BatchLot is a batch with an expiry date held in one warehouse
type BatchLot struct {
	ProductChild
	WarehouseID uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchName   string          `gorm:"type:varchar(100);not null"`
	ExpireDate  *time.Time      `gorm:"type:date"`
	OnHand      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (BatchLot) TableName() string { return "product_batch_lots" }

// Warranty describes a warranty or maintenance policy for a product
type Warranty struct {
	ProductChild
	RemoteID     int64  `gorm:"not null"`
	Description  string `gorm:"type:varchar(500)"`
	WarrantyType int    `gorm:"not null;default:0"`
	Period       int    `gorm:"not null;default:0"`
	TimeType     int    `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (Warranty) TableName() string { return "product_warranties" }

// ShelfPlacement records the shelf a product sits on in a warehouse
type ShelfPlacement struct {
	ProductChild
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index"`
	ShelfName   string    `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (ShelfPlacement) TableName() string { return "product_shelves" }

// ProductVariant is a sellable variation of a master product
type ProductVariant struct {
	ProductChild
	RemoteID   int64           `gorm:"not null"`
	Code       string          `gorm:"type:varchar(50)"`
	Name       string          `gorm:"type:varchar(255)"`
	Price      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Attributes string          `gorm:"type:text"` // JSON object of attribute name to value
}

// TableName returns the table name for GORM
func (ProductVariant) TableName() string { return "product_variants" }
