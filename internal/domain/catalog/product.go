package catalog

import (
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Origin tells where a product was authored
type Origin string

const (
	// OriginRemote marks products created from the remote catalog
	OriginRemote Origin = "remote"
	// OriginLocal marks products authored in this system
	OriginLocal Origin = "local"
)

// IsValid checks if the origin is a known value
func (o Origin) IsValid() bool {
	return o == OriginRemote || o == OriginLocal
}

// Product represents a product/SKU in the catalog
// It is the aggregate root for product-related operations
type Product struct {
	shared.TenantAggregateRoot
	RemoteID            *int64
	Origin              Origin           `gorm:"type:varchar(20);not null;default:'local'"`
	Code                string           `gorm:"type:varchar(50);not null"`
	Name                string           `gorm:"type:varchar(255);not null"`
	Description         string           `gorm:"type:text"`
	Slug                string           `gorm:"type:varchar(300);index"`
	Thumbnail           string           `gorm:"type:varchar(1000)"`
	CategoryID          *uuid.UUID       `gorm:"type:uuid;index"`
	BusinessID          *uuid.UUID       `gorm:"type:uuid;index"`
	MasterUnitID        *uuid.UUID       `gorm:"type:uuid"`
	Unit                string           `gorm:"type:varchar(50);not null"`
	Price               decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	BasePrice           decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	MinQuantity         decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:1"`
	MaxQuantity         *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Weight              *decimal.Decimal `gorm:"type:decimal(18,4)"`
	ConversionValue     decimal.Decimal  `gorm:"type:decimal(18,6);not null;default:1"`
	TaxClass            string           `gorm:"type:varchar(30)"`
	TaxName             string           `gorm:"type:varchar(100)"`
	TaxPercent          *decimal.Decimal `gorm:"type:decimal(6,2)"`
	LotControl          bool             `gorm:"not null;default:false"`
	SerialControl       bool             `gorm:"not null;default:false"`
	BatchExpiryControl  bool             `gorm:"not null;default:false"`
	RewardPointEligible bool             `gorm:"not null;default:false"`
	Specification       string           `gorm:"type:text"` // JSON blob of physical, control and tax attributes
	OrderTemplate       string           `gorm:"type:text"`
	SubresourceDigest   string           `gorm:"type:varchar(64)"`
	Status              ProductStatus    `gorm:"type:varchar(20);not null;default:'active'"`
	SyncNote            string           `gorm:"type:varchar(500)"`
	InactivatedAt       *time.Time
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new locally authored product
func NewProduct(tenantID uuid.UUID, code, name, unit string) (*Product, error) {
	if err := validateProductCode(code); err != nil {
		return nil, err
	}
	if err := validateProductName(name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(unit) == "" {
		return nil, shared.NewDomainError("INVALID_UNIT", "Unit cannot be empty")
	}

	return &Product{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Origin:              OriginLocal,
		Code:                strings.TrimSpace(code),
		Name:                strings.TrimSpace(name),
		Unit:                unit,
		Price:               decimal.Zero,
		BasePrice:           decimal.Zero,
		MinQuantity:         decimal.NewFromInt(1),
		ConversionValue:     decimal.NewFromInt(1),
		Status:              ProductStatusActive,
		Specification:       "{}",
	}, nil
}

// NewRemoteProduct creates a product bound to a remote catalog id
func NewRemoteProduct(tenantID uuid.UUID, remoteID int64, code, name, unit string) (*Product, error) {
	p, err := NewProduct(tenantID, code, name, unit)
	if err != nil {
		return nil, err
	}
	p.Origin = OriginRemote
	p.RemoteID = &remoteID
	return p, nil
}

// BindRemote binds the product to a remote id.
// A product already bound to a different remote id is never rebound.
func (p *Product) BindRemote(remoteID int64) error {
	if p.RemoteID != nil {
		if *p.RemoteID == remoteID {
			return nil
		}
		return shared.NewDomainError("REMOTE_BINDING_CONFLICT", "Product is already bound to another remote id")
	}
	p.RemoteID = &remoteID
	p.touch()
	return nil
}

// IsRemote reports whether the product originates from the remote catalog
func (p *Product) IsRemote() bool {
	return p.Origin == OriginRemote
}

// IsActive reports whether the product is active
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

// HasMasterUnit reports whether a master unit is assigned
func (p *Product) HasMasterUnit() bool {
	return p.MasterUnitID != nil
}

// AssignMasterUnit sets the product's master unit
func (p *Product) AssignMasterUnit(unitID uuid.UUID) {
	p.MasterUnitID = &unitID
	p.touch()
}

// Deactivate soft-deletes the product, keeping the row for order history
func (p *Product) Deactivate(note string, at time.Time) error {
	if p.Status == ProductStatusInactive {
		return shared.NewDomainError("ALREADY_INACTIVE", "Product is already inactive")
	}
	p.Status = ProductStatusInactive
	p.SyncNote = truncate(note, 500)
	p.InactivatedAt = &at
	p.touch()
	return nil
}

// Reactivate marks an inactive product as active again
func (p *Product) Reactivate() {
	if p.Status == ProductStatusActive {
		return
	}
	p.Status = ProductStatusActive
	p.InactivatedAt = nil
	p.SyncNote = ""
	p.touch()
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

func validateProductCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return shared.NewDomainError("INVALID_CODE", "Product code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewDomainError("INVALID_CODE", "Product code cannot exceed 50 characters")
	}
	return nil
}

func validateProductName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if len(name) > 255 {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot exceed 255 characters")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
