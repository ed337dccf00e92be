package catalog

import (
	"strings"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultUnitName is used when a product arrives without any unit label
const DefaultUnitName = "unit"

// ProductUnit represents a selling unit for a product with conversion rate
// It defines how different units relate to the master unit (e.g., 1 box = 24 pcs)
type ProductUnit struct {
	ProductChild
	RemoteID       *int64          `gorm:"index"`
	Code           string          `gorm:"type:varchar(50)"`
	Name           string          `gorm:"type:varchar(50);not null"`
	ConversionRate decimal.Decimal `gorm:"type:decimal(18,6);not null"` // Rate to convert to master unit
	Price          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	IsMaster       bool            `gorm:"not null;default:false"`
	AllowsSale     bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductUnit) TableName() string {
	return "product_units"
}

// NewProductUnit creates a new product unit
func NewProductUnit(tenantID, productID uuid.UUID, name string, conversionRate decimal.Decimal) (*ProductUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_UNIT_NAME", "Unit name cannot be empty")
	}
	if conversionRate.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_CONVERSION_RATE", "Conversion rate must be positive")
	}
	return &ProductUnit{
		ProductChild:   NewProductChild(tenantID, productID),
		Name:           name,
		ConversionRate: conversionRate,
		Price:          decimal.Zero,
		AllowsSale:     true,
	}, nil
}

// NewDefaultUnit synthesizes the master unit for a product that has none
func NewDefaultUnit(tenantID, productID uuid.UUID, name string) *ProductUnit {
	if strings.TrimSpace(name) == "" {
		name = DefaultUnitName
	}
	u, _ := NewProductUnit(tenantID, productID, name, decimal.NewFromInt(1))
	u.IsMaster = true
	return u
}
