package catalogsync

import (
	"strconv"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// MoneyTolerance is the largest price or quantity drift treated as equal
	MoneyTolerance = decimal.RequireFromString("0.01")
	// WeightTolerance is the largest weight or conversion drift treated as equal
	WeightTolerance = decimal.RequireFromString("0.001")
)

const nullValue = "<null>"

// fieldDiff collects the changed fields of one local/canonical pair.
// Every comparator takes the local value first.
type fieldDiff struct {
	changes []catalogsync.FieldChange
}

func (d *fieldDiff) add(field, before, after string) {
	d.changes = append(d.changes, catalogsync.FieldChange{Field: field, Before: before, After: after})
}

// str compares trimmed strings
func (d *fieldDiff) str(field, local, remote string) {
	l, r := strings.TrimSpace(local), strings.TrimSpace(remote)
	if l != r {
		d.add(field, l, r)
	}
}

// dec compares decimals within tol
func (d *fieldDiff) dec(field string, local, remote, tol decimal.Decimal) {
	if local.Sub(remote).Abs().GreaterThan(tol) {
		d.add(field, local.String(), remote.String())
	}
}

// optDec compares nullable decimals; both null is equal, one null is a change
func (d *fieldDiff) optDec(field string, local, remote *decimal.Decimal, tol decimal.Decimal) {
	switch {
	case local == nil && remote == nil:
	case local == nil:
		d.add(field, nullValue, remote.String())
	case remote == nil:
		d.add(field, local.String(), nullValue)
	default:
		d.dec(field, *local, *remote, tol)
	}
}

func (d *fieldDiff) boolean(field string, local, remote bool) {
	if local != remote {
		d.add(field, strconv.FormatBool(local), strconv.FormatBool(remote))
	}
}

func (d *fieldDiff) id(field string, local, remote *uuid.UUID) {
	switch {
	case local == nil && remote == nil:
	case local == nil:
		d.add(field, nullValue, remote.String())
	case remote == nil:
		d.add(field, local.String(), nullValue)
	case *local != *remote:
		d.add(field, local.String(), remote.String())
	}
}

// ref compares a local reference against the mapping of a remote reference.
// An unmapped remote reference always counts as a change so the write
// surfaces the missing dependency.
func (d *fieldDiff) ref(field string, local *uuid.UUID, remoteID *int64, m *catalogsync.EntityMap) {
	mapped, ok := m.LookupPtr(remoteID)
	if !ok {
		before := nullValue
		if local != nil {
			before = local.String()
		}
		d.add(field, before, "unmapped:"+strconv.FormatInt(*remoteID, 10))
		return
	}
	d.id(field, local, mapped)
}

// compareProduct lists the fields of local that differ from c
func compareProduct(local *catalog.Product, c *catalogsync.CanonicalProduct, deps catalogsync.DependencyMaps) []catalogsync.FieldChange {
	var d fieldDiff

	d.str("code", local.Code, c.Code)
	d.str("name", local.Name, c.Name)
	d.str("description", local.Description, c.Description)
	d.str("thumbnail", local.Thumbnail, c.Thumbnail)
	d.str("unit", local.Unit, c.Unit)

	d.dec("price", local.Price, c.Price, MoneyTolerance)
	d.dec("base_price", local.BasePrice, c.BasePrice, MoneyTolerance)
	d.dec("min_quantity", local.MinQuantity, c.MinQuantity, MoneyTolerance)
	d.optDec("max_quantity", local.MaxQuantity, c.MaxQuantity, MoneyTolerance)
	d.optDec("weight", local.Weight, c.Weight, WeightTolerance)
	d.dec("conversion_value", local.ConversionValue, c.ConversionValue, WeightTolerance)

	d.str("tax_class", local.TaxClass, c.TaxClass)
	d.str("tax_name", local.TaxName, c.TaxName)
	d.optDec("tax_percent", local.TaxPercent, c.TaxPercent, MoneyTolerance)

	d.boolean("lot_control", local.LotControl, c.LotControl)
	d.boolean("serial_control", local.SerialControl, c.SerialControl)
	d.boolean("batch_expiry_control", local.BatchExpiryControl, c.BatchExpiryControl)
	d.boolean("reward_point_eligible", local.RewardPointEligible, c.RewardPointEligible)

	d.ref("category_id", local.CategoryID, c.CategoryRemoteID, deps.Categories)
	d.ref("business_id", local.BusinessID, c.BusinessRemoteID, deps.Businesses)

	d.str("subresource_digest", local.SubresourceDigest, c.SubresourceDigest)

	if !local.IsActive() {
		d.add("status", string(local.Status), string(catalog.ProductStatusActive))
	}
	return d.changes
}
