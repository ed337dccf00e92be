package catalogsync

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultPlaceholderImage is the thumbnail of an item that carries no image
const DefaultPlaceholderImage = "/static/images/product-placeholder.png"

// Tax buckets
const (
	TaxClassVAT0   = "vat_0"
	TaxClassVAT5   = "vat_5"
	TaxClassVAT8   = "vat_8"
	TaxClassVAT10  = "vat_10"
	TaxClassExempt = "exempt"
	TaxClassOther  = "other"
)

// directTaxCodes maps the tax codes the remote sends to buckets
var directTaxCodes = map[string]string{
	"vat_0":  TaxClassVAT0,
	"vat0":   TaxClassVAT0,
	"vat_5":  TaxClassVAT5,
	"vat5":   TaxClassVAT5,
	"vat_8":  TaxClassVAT8,
	"vat8":   TaxClassVAT8,
	"vat_10": TaxClassVAT10,
	"vat10":  TaxClassVAT10,
	"exempt": TaxClassExempt,
	"kct":    TaxClassExempt,
	"none":   TaxClassExempt,
	"other":  TaxClassOther,
}

var percentTaxClasses = map[int64]string{
	0:  TaxClassVAT0,
	5:  TaxClassVAT5,
	8:  TaxClassVAT8,
	10: TaxClassVAT10,
}

var taxClassNames = map[string]string{
	TaxClassVAT0:   "VAT 0%",
	TaxClassVAT5:   "VAT 5%",
	TaxClassVAT8:   "VAT 8%",
	TaxClassVAT10:  "VAT 10%",
	TaxClassExempt: "Not subject to VAT",
	TaxClassOther:  "Other",
}

var taxClassPercents = map[string]int64{
	TaxClassVAT0:  0,
	TaxClassVAT5:  5,
	TaxClassVAT8:  8,
	TaxClassVAT10: 10,
}

// Mapper turns remote items into canonical products. Map has no side effects
// beyond drawing the slug suffix.
type Mapper struct {
	placeholder string
	suffix      func() string
	policy      *bluemonday.Policy
}

// NewMapper creates a mapper. An empty placeholder uses DefaultPlaceholderImage.
func NewMapper(placeholderImage string) *Mapper {
	if strings.TrimSpace(placeholderImage) == "" {
		placeholderImage = DefaultPlaceholderImage
	}
	return &Mapper{placeholder: placeholderImage, suffix: randomSuffix, policy: descriptionPolicy()}
}

// descriptionPolicy keeps formatting tags and drops active content from the
// remote editor's HTML.
func descriptionPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// WithSuffix replaces the slug suffix source
func (m *Mapper) WithSuffix(suffix func() string) *Mapper {
	m.suffix = suffix
	return m
}

// Map normalizes one remote item
func (m *Mapper) Map(item catalogsync.RemoteItem) catalogsync.CanonicalProduct {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		name = strings.TrimSpace(item.FullName)
	}
	code := strings.TrimSpace(item.Code)

	c := catalogsync.CanonicalProduct{
		RemoteID:            item.ID,
		Code:                code,
		Name:                name,
		Description:         strings.TrimSpace(m.policy.Sanitize(item.Description)),
		CategoryRemoteID:    item.CategoryID,
		CategoryName:        strings.TrimSpace(item.CategoryName),
		BusinessRemoteID:    item.TradeMarkID,
		BusinessName:        strings.TrimSpace(item.TradeMarkName),
		LotControl:          bool(item.IsLotControl),
		SerialControl:       bool(item.IsSerialControl),
		BatchExpiryControl:  bool(item.IsBatchExpire),
		RewardPointEligible: bool(item.IsRewardPoint),
		Weight:              item.Weight,
		MaxQuantity:         item.MaxQuantity,
		MasterUnitRemoteID:  item.MasterUnitID,
		OrderTemplate:       strings.TrimSpace(item.OrderTemplate),
	}

	c.Slug = m.slug(name, code)
	c.Price, c.BasePrice = prices(item.Price, item.BasePrice)
	c.MinQuantity = positiveOr(item.MinQuantity, decimal.NewFromInt(1))
	c.ConversionValue = positiveOr(item.ConversionValue, decimal.NewFromInt(1))
	c.Unit = strings.TrimSpace(item.Unit)
	if c.Unit == "" {
		c.Unit = catalog.DefaultUnitName
	}
	c.TaxClass, c.TaxName, c.TaxPercent = classifyTax(item.TaxType, item.TaxName, item.TaxRate)

	c.Images = mapImages(item.Thumbnail, item.Images)
	c.Thumbnail = m.thumbnail(item.Thumbnail, c.Images)
	c.Inventories = mapInventories(item.Inventories)
	c.Attributes = mapAttributes(item.Attributes)
	c.Units = mapUnits(item.Units)
	c.PriceBooks = mapPriceBooks(item.PriceBooks)
	c.Formulas = mapFormulas(item.Formulas)
	c.Serials = mapSerials(item.Serials)
	c.BatchLots = mapBatchLots(item.BatchExpires)
	c.Warranties = mapWarranties(item.Warranties)
	c.Shelves = mapShelves(item.Shelves)
	c.Variants = mapVariants(item.Variants)

	c.Specification = catalogsync.Specification{
		Weight:              c.Weight,
		Unit:                c.Unit,
		ConversionValue:     c.ConversionValue,
		LotControl:          c.LotControl,
		SerialControl:       c.SerialControl,
		BatchExpiryControl:  c.BatchExpiryControl,
		RewardPointEligible: c.RewardPointEligible,
		TaxClass:            c.TaxClass,
		TaxName:             c.TaxName,
		TaxPercent:          c.TaxPercent,
	}
	c.SubresourceDigest = c.ComputeSubresourceDigest()
	return c
}

// slug builds "<name>-<suffix>[-<code>]"; the suffix keeps slugs unique within a run
func (m *Mapper) slug(name, code string) string {
	base := Slugify(name)
	if base == "" {
		base = "product"
	}
	parts := []string{base, m.suffix()}
	if c := Slugify(code); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, "-")
}

func (m *Mapper) thumbnail(explicit string, images []catalogsync.CanonicalImage) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if len(images) > 0 {
		return images[0].URL
	}
	return m.placeholder
}

// foldDiacritics strips combining marks after canonical decomposition
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases s and removes diacritics. Letters that do not decompose
// (đ, ø, ł) are mapped explicitly.
func fold(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.NewReplacer("đ", "d", "ø", "o", "ł", "l", "ß", "ss").Replace(folded)
}

// Slugify folds s to lowercase ASCII and joins alphanumeric runs with hyphens
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range fold(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// NormalizeName is the natural key of named dependencies: folded,
// with whitespace collapsed.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(fold(s)), " ")
}

func randomSuffix() string {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "000000"
	}
	return hex.EncodeToString(b[:])
}

func prices(price, base *decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	switch {
	case price != nil && base != nil:
		return *price, *base
	case price != nil:
		return *price, *price
	case base != nil:
		return *base, *base
	}
	return decimal.Zero, decimal.Zero
}

func positiveOr(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if v == nil || !v.IsPositive() {
		return def
	}
	return *v
}

// classifyTax resolves the bucket from a direct code, then from the rate.
// The display name follows the bucket unless the remote supplies one.
func classifyTax(code, name string, rate *decimal.Decimal) (string, string, *decimal.Decimal) {
	class, ok := directTaxCodes[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		class = TaxClassOther
		if rate != nil && rate.IsInteger() {
			if c, known := percentTaxClasses[rate.IntPart()]; known {
				class = c
			}
		}
	}

	percent := rate
	if percent == nil {
		if p, known := taxClassPercents[class]; known {
			v := decimal.NewFromInt(p)
			percent = &v
		}
	}

	if n := strings.TrimSpace(name); n != "" {
		return class, n, percent
	}
	return class, taxClassNames[class], percent
}

// mapImages drops blanks and duplicates; the explicit thumbnail is flagged main
func mapImages(thumbnail string, urls []string) []catalogsync.CanonicalImage {
	thumbnail = strings.TrimSpace(thumbnail)
	seen := make(map[string]bool, len(urls))
	var out []catalogsync.CanonicalImage
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, catalogsync.CanonicalImage{URL: u, Main: thumbnail != "" && u == thumbnail})
	}
	return out
}

func mapInventories(in []catalogsync.RemoteInventory) []catalogsync.CanonicalInventory {
	out := make([]catalogsync.CanonicalInventory, 0, len(in))
	for _, inv := range in {
		out = append(out, catalogsync.CanonicalInventory{
			BranchRemoteID: inv.BranchID,
			BranchName:     strings.TrimSpace(inv.BranchName),
			OnHand:         inv.OnHand,
			Reserved:       inv.Reserved,
			Cost:           inv.Cost,
			MinQuantity:    inv.MinQuantity,
			MaxQuantity:    inv.MaxQuantity,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BranchRemoteID < out[j].BranchRemoteID })
	return out
}

// mapAttributes keeps the first value of each attribute name
func mapAttributes(in []catalogsync.RemoteAttribute) []catalogsync.CanonicalAttribute {
	seen := make(map[string]bool, len(in))
	out := make([]catalogsync.CanonicalAttribute, 0, len(in))
	for _, a := range in {
		name := strings.TrimSpace(a.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, catalogsync.CanonicalAttribute{Name: name, Value: strings.TrimSpace(a.Value)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func mapUnits(in []catalogsync.RemoteUnit) []catalogsync.CanonicalUnit {
	out := make([]catalogsync.CanonicalUnit, 0, len(in))
	for _, u := range in {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			name = strings.TrimSpace(u.Code)
		}
		if name == "" {
			continue
		}
		conv := u.ConversionValue
		if !conv.IsPositive() {
			conv = decimal.NewFromInt(1)
		}
		out = append(out, catalogsync.CanonicalUnit{
			RemoteID:        u.ID,
			Code:            strings.TrimSpace(u.Code),
			Name:            name,
			ConversionValue: conv,
			Price:           u.BasePrice,
			AllowsSale:      bool(u.AllowsSale),
		})
	}
	return out
}

func mapPriceBooks(in []catalogsync.RemotePriceBook) []catalogsync.CanonicalPrice {
	out := make([]catalogsync.CanonicalPrice, 0, len(in))
	for _, pb := range in {
		out = append(out, catalogsync.CanonicalPrice{
			PriceBookRemoteID: pb.PriceBookID,
			PriceBookName:     strings.TrimSpace(pb.PriceBookName),
			Price:             pb.Price,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriceBookRemoteID < out[j].PriceBookRemoteID })
	return out
}

func mapFormulas(in []catalogsync.RemoteFormula) []catalogsync.CanonicalFormula {
	out := make([]catalogsync.CanonicalFormula, 0, len(in))
	for _, f := range in {
		out = append(out, catalogsync.CanonicalFormula{
			MaterialRemoteID: f.MaterialID,
			MaterialCode:     strings.TrimSpace(f.MaterialCode),
			MaterialName:     strings.TrimSpace(f.MaterialName),
			Quantity:         f.Quantity,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MaterialRemoteID < out[j].MaterialRemoteID })
	return out
}

func mapSerials(in []catalogsync.RemoteSerial) []catalogsync.CanonicalSerial {
	out := make([]catalogsync.CanonicalSerial, 0, len(in))
	for _, s := range in {
		serial := strings.TrimSpace(s.SerialNumber)
		if serial == "" {
			continue
		}
		out = append(out, catalogsync.CanonicalSerial{
			SerialNumber:   serial,
			BranchRemoteID: s.BranchID,
			BranchName:     strings.TrimSpace(s.BranchName),
			Status:         s.Status,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out
}

func mapBatchLots(in []catalogsync.RemoteBatchExpire) []catalogsync.CanonicalBatchLot {
	out := make([]catalogsync.CanonicalBatchLot, 0, len(in))
	for _, b := range in {
		name := strings.TrimSpace(b.BatchName)
		if name == "" {
			continue
		}
		out = append(out, catalogsync.CanonicalBatchLot{
			BatchName:      name,
			ExpireDate:     b.ExpireDate.Ptr(),
			OnHand:         b.OnHand,
			BranchRemoteID: b.BranchID,
			BranchName:     strings.TrimSpace(b.BranchName),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BranchRemoteID != out[j].BranchRemoteID {
			return out[i].BranchRemoteID < out[j].BranchRemoteID
		}
		return out[i].BatchName < out[j].BatchName
	})
	return out
}

func mapWarranties(in []catalogsync.RemoteWarranty) []catalogsync.CanonicalWarranty {
	out := make([]catalogsync.CanonicalWarranty, 0, len(in))
	for _, w := range in {
		out = append(out, catalogsync.CanonicalWarranty{
			RemoteID:     w.ID,
			Description:  strings.TrimSpace(w.Description),
			WarrantyType: w.WarrantyType,
			Period:       w.NumberTime,
			TimeType:     w.TimeType,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

func mapShelves(in []catalogsync.RemoteShelf) []catalogsync.CanonicalShelf {
	out := make([]catalogsync.CanonicalShelf, 0, len(in))
	for _, s := range in {
		name := strings.TrimSpace(s.ShelvesName)
		if name == "" {
			continue
		}
		out = append(out, catalogsync.CanonicalShelf{
			BranchRemoteID: s.BranchID,
			BranchName:     strings.TrimSpace(s.BranchName),
			ShelfName:      name,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BranchRemoteID < out[j].BranchRemoteID })
	return out
}

func mapVariants(in []catalogsync.RemoteVariant) []catalogsync.CanonicalVariant {
	out := make([]catalogsync.CanonicalVariant, 0, len(in))
	for _, v := range in {
		attrs := make(map[string]string, len(v.Attributes))
		for _, a := range v.Attributes {
			if name := strings.TrimSpace(a.Name); name != "" {
				attrs[name] = strings.TrimSpace(a.Value)
			}
		}
		out = append(out, catalogsync.CanonicalVariant{
			RemoteID:   v.ID,
			Code:       strings.TrimSpace(v.Code),
			Name:       strings.TrimSpace(v.Name),
			Price:      v.BasePrice,
			Attributes: attrs,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}
