package catalogsync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalProduct is the normalized, strongly typed form of one RemoteItem.
// It lives for one run only.
type CanonicalProduct struct {
	RemoteID int64
	Code     string

	Name        string
	Description string
	Slug        string
	Thumbnail   string

	Price       decimal.Decimal
	BasePrice   decimal.Decimal
	MinQuantity decimal.Decimal
	MaxQuantity *decimal.Decimal

	CategoryRemoteID *int64
	CategoryName     string
	BusinessRemoteID *int64
	BusinessName     string

	TaxClass   string
	TaxName    string
	TaxPercent *decimal.Decimal

	LotControl          bool
	SerialControl       bool
	BatchExpiryControl  bool
	RewardPointEligible bool

	Weight             *decimal.Decimal
	Unit               string
	ConversionValue    decimal.Decimal
	MasterUnitRemoteID *int64

	Specification Specification
	OrderTemplate string

	Images      []CanonicalImage
	Inventories []CanonicalInventory
	Attributes  []CanonicalAttribute
	Units       []CanonicalUnit
	PriceBooks  []CanonicalPrice
	Formulas    []CanonicalFormula
	Serials     []CanonicalSerial
	BatchLots   []CanonicalBatchLot
	Warranties  []CanonicalWarranty
	Shelves     []CanonicalShelf
	Variants    []CanonicalVariant

	// SubresourceDigest fingerprints every nested collection
	SubresourceDigest string
}

// Specification is the structured blob stored alongside the product row
type Specification struct {
	Weight              *decimal.Decimal `json:"weight,omitempty"`
	Unit                string           `json:"unit"`
	ConversionValue     decimal.Decimal  `json:"conversion_value"`
	LotControl          bool             `json:"lot_control"`
	SerialControl       bool             `json:"serial_control"`
	BatchExpiryControl  bool             `json:"batch_expiry_control"`
	RewardPointEligible bool             `json:"reward_point_eligible"`
	TaxClass            string           `json:"tax_class"`
	TaxName             string           `json:"tax_name"`
	TaxPercent          *decimal.Decimal `json:"tax_percent,omitempty"`
}

// JSON renders the specification for storage
func (s Specification) JSON() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// CanonicalImage is one image URL; Main marks an explicitly flagged main image
type CanonicalImage struct {
	URL  string `json:"url"`
	Main bool   `json:"main"`
}

// CanonicalInventory is stock in one remote branch
type CanonicalInventory struct {
	BranchRemoteID int64           `json:"branch_id"`
	BranchName     string          `json:"branch_name"`
	OnHand         decimal.Decimal `json:"on_hand"`
	Reserved       decimal.Decimal `json:"reserved"`
	Cost           decimal.Decimal `json:"cost"`
	MinQuantity    decimal.Decimal `json:"min_quantity"`
	MaxQuantity    decimal.Decimal `json:"max_quantity"`
}

// CanonicalAttribute is a trimmed name/value pair
type CanonicalAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CanonicalUnit is a selling unit
type CanonicalUnit struct {
	RemoteID        int64           `json:"remote_id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	ConversionValue decimal.Decimal `json:"conversion_value"`
	Price           decimal.Decimal `json:"price"`
	AllowsSale      bool            `json:"allows_sale"`
}

// CanonicalPrice is the product price in one price book
type CanonicalPrice struct {
	PriceBookRemoteID int64           `json:"price_book_id"`
	PriceBookName     string          `json:"price_book_name"`
	Price             decimal.Decimal `json:"price"`
}

// CanonicalFormula is one bill-of-materials line
type CanonicalFormula struct {
	MaterialRemoteID int64           `json:"material_id"`
	MaterialCode     string          `json:"material_code"`
	MaterialName     string          `json:"material_name"`
	Quantity         decimal.Decimal `json:"quantity"`
}

// CanonicalSerial is a serial number in a branch
type CanonicalSerial struct {
	SerialNumber   string `json:"serial_number"`
	BranchRemoteID int64  `json:"branch_id"`
	BranchName     string `json:"branch_name"`
	Status         int    `json:"status"`
}

// CanonicalBatchLot is an expiring batch in a branch
type CanonicalBatchLot struct {
	BatchName      string          `json:"batch_name"`
	ExpireDate     *time.Time      `json:"expire_date,omitempty"`
	OnHand         decimal.Decimal `json:"on_hand"`
	BranchRemoteID int64           `json:"branch_id"`
	BranchName     string          `json:"branch_name"`
}

// CanonicalWarranty is a warranty policy
type CanonicalWarranty struct {
	RemoteID     int64  `json:"remote_id"`
	Description  string `json:"description"`
	WarrantyType int    `json:"warranty_type"`
	Period       int    `json:"period"`
	TimeType     int    `json:"time_type"`
}

// CanonicalShelf is a shelf placement in a branch
type CanonicalShelf struct {
	BranchRemoteID int64  `json:"branch_id"`
	BranchName     string `json:"branch_name"`
	ShelfName      string `json:"shelf_name"`
}

// CanonicalVariant is a variation of the product
type CanonicalVariant struct {
	RemoteID   int64             `json:"remote_id"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Price      decimal.Decimal   `json:"price"`
	Attributes map[string]string `json:"attributes"`
}

// ComputeSubresourceDigest hashes the nested collections and the order template.
// The digest changes whenever any of them changes and is stable otherwise.
func (p *CanonicalProduct) ComputeSubresourceDigest() string {
	payload := struct {
		Images        []CanonicalImage     `json:"images"`
		Inventories   []CanonicalInventory `json:"inventories"`
		Attributes    []CanonicalAttribute `json:"attributes"`
		Units         []CanonicalUnit      `json:"units"`
		MasterUnit    *int64               `json:"master_unit"`
		PriceBooks    []CanonicalPrice     `json:"price_books"`
		Formulas      []CanonicalFormula   `json:"formulas"`
		Serials       []CanonicalSerial    `json:"serials"`
		BatchLots     []CanonicalBatchLot  `json:"batch_lots"`
		Warranties    []CanonicalWarranty  `json:"warranties"`
		Shelves       []CanonicalShelf     `json:"shelves"`
		Variants      []CanonicalVariant   `json:"variants"`
		OrderTemplate string               `json:"order_template"`
	}{
		p.Images, p.Inventories, p.Attributes, p.Units, p.MasterUnitRemoteID, p.PriceBooks, p.Formulas,
		p.Serials, p.BatchLots, p.Warranties, p.Shelves, p.Variants, p.OrderTemplate,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HasCriticalGap reports whether a field the store requires is empty
func (p *CanonicalProduct) HasCriticalGap() (string, bool) {
	if trimmed(p.Name) == "" {
		return "name", true
	}
	if trimmed(p.Code) == "" {
		return "code", true
	}
	return "", false
}
