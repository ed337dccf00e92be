package catalogsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RemoteCatalog is the port to the external product catalog
type RemoteCatalog interface {
	// FetchAll pages through the whole remote catalog in ascending id order.
	// A failed page fails the whole fetch.
	FetchAll(ctx context.Context) ([]RemoteItem, error)
	// FetchTombstones returns the ids the remote reports as removed since the given time
	FetchTombstones(ctx context.Context, since time.Time) (TombstoneSet, error)
	// FetchItem returns one item; an unknown id yields an item with empty collections
	FetchItem(ctx context.Context, remoteID int64) (*RemoteItem, error)
}

// FlexBool decodes booleans the remote sends as true/false, "true"/"false", or numbers
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*b = false
		return nil
	}
	switch data[0] {
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = FlexBool(v)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = FlexBool(CoerceBool(s))
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return err
		}
		*b = f != 0
	}
	return nil
}

// CoerceBool interprets boolean-like strings; anything unrecognised is false
func CoerceBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "yes", "y", "on":
		return true
	case "", "false", "no", "n", "off":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	return false
}

// flexTimeLayouts are the timestamp shapes the remote API is known to send
var flexTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.0000000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FlexTime decodes timestamps with or without a zone; zoneless values are UTC
type FlexTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range flexTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("catalogsync: unrecognised timestamp %q", s)
}

// Ptr returns the time, or nil when it is zero
func (t *FlexTime) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// RemoteItem is one product record as returned by the remote catalog API
type RemoteItem struct {
	ID              int64               `json:"id"`
	Code            string              `json:"code"`
	Name            string              `json:"name"`
	FullName        string              `json:"fullName"`
	Description     string              `json:"description"`
	CategoryID      *int64              `json:"categoryId"`
	CategoryName    string              `json:"categoryName"`
	TradeMarkID     *int64              `json:"tradeMarkId"`
	TradeMarkName   string              `json:"tradeMarkName"`
	Price           *decimal.Decimal    `json:"price"`
	BasePrice       *decimal.Decimal    `json:"basePrice"`
	MinQuantity     *decimal.Decimal    `json:"minQuantity"`
	MaxQuantity     *decimal.Decimal    `json:"maxQuantity"`
	Weight          *decimal.Decimal    `json:"weight"`
	Unit            string              `json:"unit"`
	ConversionValue *decimal.Decimal    `json:"conversionValue"`
	MasterUnitID    *int64              `json:"masterUnitId"`
	TaxType         string              `json:"taxType"`
	TaxName         string              `json:"taxName"`
	TaxRate         *decimal.Decimal    `json:"taxRate"`
	IsLotControl    FlexBool            `json:"isLotControl"`
	IsSerialControl FlexBool            `json:"isLotSerialControl"`
	IsBatchExpire   FlexBool            `json:"isBatchExpireControl"`
	IsRewardPoint   FlexBool            `json:"isRewardPoint"`
	Thumbnail       string              `json:"thumbnail"`
	Images          []string            `json:"images"`
	Inventories     []RemoteInventory   `json:"inventories"`
	Attributes      []RemoteAttribute   `json:"attributes"`
	Units           []RemoteUnit        `json:"units"`
	PriceBooks      []RemotePriceBook   `json:"priceBooks"`
	Formulas        []RemoteFormula     `json:"productFormulas"`
	Serials         []RemoteSerial      `json:"productSerials"`
	BatchExpires    []RemoteBatchExpire `json:"productBatchExpires"`
	Warranties      []RemoteWarranty    `json:"productWarranties"`
	Shelves         []RemoteShelf       `json:"productShelves"`
	Variants        []RemoteVariant     `json:"variants"`
	OrderTemplate   string              `json:"orderTemplate"`
	ModifiedDate    *FlexTime           `json:"modifiedDate"`
}

// RemoteInventory is the stock of an item in one remote branch
type RemoteInventory struct {
	BranchID    int64           `json:"branchId"`
	BranchName  string          `json:"branchName"`
	OnHand      decimal.Decimal `json:"onHand"`
	Reserved    decimal.Decimal `json:"reserved"`
	Cost        decimal.Decimal `json:"cost"`
	MinQuantity decimal.Decimal `json:"minQuantity"`
	MaxQuantity decimal.Decimal `json:"maxQuantity"`
}

// RemoteAttribute is a name/value attribute of an item
type RemoteAttribute struct {
	Name  string `json:"attributeName"`
	Value string `json:"attributeValue"`
}

// RemoteUnit is an alternative selling unit of an item
type RemoteUnit struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"unit"`
	ConversionValue decimal.Decimal `json:"conversionValue"`
	BasePrice       decimal.Decimal `json:"basePrice"`
	AllowsSale      FlexBool        `json:"allowsSale"`
}

// RemotePriceBook is an item's price in a remote price book
type RemotePriceBook struct {
	PriceBookID   int64           `json:"priceBookId"`
	PriceBookName string          `json:"priceBookName"`
	Price         decimal.Decimal `json:"price"`
}

// RemoteFormula is one bill-of-materials component
type RemoteFormula struct {
	MaterialID   int64           `json:"materialId"`
	MaterialCode string          `json:"materialCode"`
	MaterialName string          `json:"materialName"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// RemoteSerial is a serial number held in a branch
type RemoteSerial struct {
	SerialNumber string `json:"serialNumber"`
	BranchID     int64  `json:"branchId"`
	BranchName   string `json:"branchName"`
	Status       int    `json:"status"`
}

// RemoteBatchExpire is a batch with expiry held in a branch
type RemoteBatchExpire struct {
	BatchName  string          `json:"batchName"`
	ExpireDate *FlexTime       `json:"expireDate"`
	OnHand     decimal.Decimal `json:"onHand"`
	BranchID   int64           `json:"branchId"`
	BranchName string          `json:"branchName"`
}

// RemoteWarranty is a warranty policy
type RemoteWarranty struct {
	ID           int64  `json:"id"`
	Description  string `json:"description"`
	WarrantyType int    `json:"warrantyType"`
	NumberTime   int    `json:"numberTime"`
	TimeType     int    `json:"timeType"`
}

// RemoteShelf is the shelf an item sits on in a branch
type RemoteShelf struct {
	BranchID    int64  `json:"branchId"`
	BranchName  string `json:"branchName"`
	ShelvesName string `json:"productShelvesStr"`
}

// RemoteVariant is a variation of the item
type RemoteVariant struct {
	ID         int64             `json:"id"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	BasePrice  decimal.Decimal   `json:"basePrice"`
	Attributes []RemoteAttribute `json:"attributes"`
}

// TombstoneSet is the set of remote ids reported as removed
type TombstoneSet map[int64]struct{}

// NewTombstoneSet builds a set from ids
func NewTombstoneSet(ids ...int64) TombstoneSet {
	s := make(TombstoneSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is tombstoned
func (s TombstoneSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}
