package catalogsync

import (
	"context"
	"encoding/json"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fanOut writes every populated sub-resource collection of c. Each row runs
// in its own savepoint: a failed row is rolled back and counted, the rest of
// the product continues. It returns the master unit id the units resolved to.
func fanOut(ctx context.Context, store catalog.Store, tenantID uuid.UUID, p *catalog.Product, c *catalogsync.CanonicalProduct, deps catalogsync.DependencyMaps) ([]SubresourceOutcome, *uuid.UUID) {
	f := fanout{ctx: ctx, store: store, tenantID: tenantID, product: p, deps: deps}

	var outs []SubresourceOutcome
	keep := func(o SubresourceOutcome) {
		if !o.Counters.IsZero() {
			outs = append(outs, o)
		}
	}

	keep(f.images(c.Images))
	keep(f.inventories(c.Inventories))
	keep(f.attributes(c.Attributes))
	units, masterID := f.units(c.Units, c.MasterUnitRemoteID)
	keep(units)
	keep(f.priceBooks(c.PriceBooks))
	keep(f.formulas(c.Formulas))
	keep(f.serials(c.Serials))
	keep(f.batchLots(c.BatchLots))
	keep(f.warranties(c.Warranties))
	keep(f.shelves(c.Shelves))
	keep(f.variants(c.Variants))
	if c.OrderTemplate != "" {
		// the template is a product column and is saved with the product row
		keep(SubresourceOutcome{Kind: catalogsync.KindOrderTemplate, Counters: catalogsync.Counters{Updates: 1}})
	}
	return outs, masterID
}

type fanout struct {
	ctx      context.Context
	store    catalog.Store
	tenantID uuid.UUID
	product  *catalog.Product
	deps     catalogsync.DependencyMaps
}

func (f *fanout) child() catalog.ProductChild {
	return catalog.NewProductChild(f.tenantID, f.product.ID)
}

// row runs fn in a savepoint and records its result on out
func (f *fanout) row(out *SubresourceOutcome, key any, fn func(catalog.SubresourceRepository) (bool, error)) {
	var isNew bool
	err := f.store.Nested(f.ctx, func(s catalog.Store) error {
		var err error
		isNew, err = fn(s.Subresources())
		return err
	})
	if err != nil {
		logger.L(f.ctx).Warn("sub-resource write failed",
			zap.String("kind", string(out.Kind)),
			zap.Int64("remote_id", *f.product.RemoteID),
			zap.Any("key", key),
			zap.Error(err),
		)
		out.fail("remote %d: %s %v: %v", *f.product.RemoteID, out.Kind, key, err)
		return
	}
	out.created(isNew)
}

// warehouse maps a branch; an unmapped branch is counted and the row skipped
func (f *fanout) warehouse(out *SubresourceOutcome, branchID int64) (uuid.UUID, bool) {
	id, ok := f.deps.Warehouses.Lookup(branchID)
	if !ok {
		out.fail("remote %d: %s: %v: branch %d", *f.product.RemoteID, out.Kind, catalogsync.ErrUnmappedWarehouse, branchID)
	}
	return id, ok
}

// images replaces the gallery; without an explicit main image the first is main
func (f *fanout) images(in []catalogsync.CanonicalImage) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindImage}
	if len(in) == 0 {
		return out
	}
	hasMain := false
	for _, img := range in {
		hasMain = hasMain || img.Main
	}
	rows := make([]catalog.ProductImage, 0, len(in))
	for i, img := range in {
		rows = append(rows, catalog.ProductImage{
			ProductChild: f.child(),
			URL:          img.URL,
			IsMain:       img.Main || (!hasMain && i == 0),
		})
	}
	f.row(&out, len(rows), func(r catalog.SubresourceRepository) (bool, error) {
		return true, r.ReplaceImages(f.ctx, f.product.ID, rows)
	})
	if out.Counters.Errors == 0 {
		out.Counters = catalogsync.Counters{Adds: len(rows)}
	}
	return out
}

func (f *fanout) inventories(in []catalogsync.CanonicalInventory) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindInventory}
	for _, inv := range in {
		warehouseID, ok := f.warehouse(&out, inv.BranchRemoteID)
		if !ok {
			continue
		}
		level := &catalog.InventoryLevel{
			ProductChild: f.child(),
			WarehouseID:  warehouseID,
			OnHand:       inv.OnHand,
			Reserved:     inv.Reserved,
			Cost:         inv.Cost,
			MinQuantity:  inv.MinQuantity,
			MaxQuantity:  inv.MaxQuantity,
		}
		f.row(&out, inv.BranchRemoteID, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertInventory(f.ctx, level)
		})
	}
	return out
}

func (f *fanout) attributes(in []catalogsync.CanonicalAttribute) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindAttribute}
	for _, a := range in {
		attr := &catalog.ProductAttribute{ProductChild: f.child(), Name: a.Name, Value: a.Value}
		f.row(&out, a.Name, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertAttribute(f.ctx, attr)
		})
	}
	return out
}

// units upserts the selling units. The unit matching masterRemoteID, or the
// first unit, is flagged master and its id returned.
func (f *fanout) units(in []catalogsync.CanonicalUnit, masterRemoteID *int64) (SubresourceOutcome, *uuid.UUID) {
	out := SubresourceOutcome{Kind: catalogsync.KindUnit}
	if len(in) == 0 {
		return out, nil
	}
	master := 0
	if masterRemoteID != nil {
		for i, u := range in {
			if u.RemoteID == *masterRemoteID {
				master = i
				break
			}
		}
	}

	var masterID *uuid.UUID
	for i, u := range in {
		unit, err := catalog.NewProductUnit(f.tenantID, f.product.ID, u.Name, u.ConversionValue)
		if err != nil {
			out.fail("remote %d: unit %q: %v", *f.product.RemoteID, u.Name, err)
			continue
		}
		if u.RemoteID != 0 {
			remoteID := u.RemoteID
			unit.RemoteID = &remoteID
		}
		unit.Code = u.Code
		unit.Price = u.Price
		unit.AllowsSale = u.AllowsSale
		unit.IsMaster = i == master

		failed := out.Counters.Errors
		f.row(&out, u.Name, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertUnit(f.ctx, unit)
		})
		if i == master && out.Counters.Errors == failed {
			id := unit.ID
			masterID = &id
		}
	}
	return out, masterID
}

func (f *fanout) priceBooks(in []catalogsync.CanonicalPrice) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindPriceBook}
	for _, pb := range in {
		name := pb.PriceBookName
		if name == "" {
			name = "Price book"
		}
		book := catalog.NewRemotePriceBook(f.tenantID, pb.PriceBookRemoteID, name)
		price := pb.Price
		f.row(&out, pb.PriceBookRemoteID, func(r catalog.SubresourceRepository) (bool, error) {
			stored, err := r.EnsurePriceBook(f.ctx, book)
			if err != nil {
				return false, err
			}
			return r.UpsertProductPrice(f.ctx, &catalog.ProductPrice{
				ProductChild: f.child(),
				PriceBookID:  stored.ID,
				Price:        price,
			})
		})
	}
	return out
}

func (f *fanout) formulas(in []catalogsync.CanonicalFormula) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindFormula}
	for _, m := range in {
		item := &catalog.FormulaItem{
			ProductChild:     f.child(),
			MaterialRemoteID: m.MaterialRemoteID,
			MaterialCode:     m.MaterialCode,
			MaterialName:     m.MaterialName,
			Quantity:         m.Quantity,
		}
		f.row(&out, m.MaterialRemoteID, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertFormula(f.ctx, item)
		})
	}
	return out
}

func (f *fanout) serials(in []catalogsync.CanonicalSerial) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindSerial}
	for _, s := range in {
		warehouseID, ok := f.warehouse(&out, s.BranchRemoteID)
		if !ok {
			continue
		}
		serial := &catalog.SerialNumber{
			ProductChild: f.child(),
			WarehouseID:  warehouseID,
			SerialNumber: s.SerialNumber,
			Status:       s.Status,
		}
		f.row(&out, s.SerialNumber, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertSerial(f.ctx, serial)
		})
	}
	return out
}

func (f *fanout) batchLots(in []catalogsync.CanonicalBatchLot) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindBatchLot}
	for _, b := range in {
		warehouseID, ok := f.warehouse(&out, b.BranchRemoteID)
		if !ok {
			continue
		}
		lot := &catalog.BatchLot{
			ProductChild: f.child(),
			WarehouseID:  warehouseID,
			BatchName:    b.BatchName,
			ExpireDate:   b.ExpireDate,
			OnHand:       b.OnHand,
		}
		f.row(&out, b.BatchName, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertBatchLot(f.ctx, lot)
		})
	}
	return out
}

func (f *fanout) warranties(in []catalogsync.CanonicalWarranty) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindWarranty}
	for _, w := range in {
		warranty := &catalog.Warranty{
			ProductChild: f.child(),
			RemoteID:     w.RemoteID,
			Description:  w.Description,
			WarrantyType: w.WarrantyType,
			Period:       w.Period,
			TimeType:     w.TimeType,
		}
		f.row(&out, w.RemoteID, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertWarranty(f.ctx, warranty)
		})
	}
	return out
}

func (f *fanout) shelves(in []catalogsync.CanonicalShelf) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindShelf}
	for _, s := range in {
		warehouseID, ok := f.warehouse(&out, s.BranchRemoteID)
		if !ok {
			continue
		}
		shelf := &catalog.ShelfPlacement{
			ProductChild: f.child(),
			WarehouseID:  warehouseID,
			ShelfName:    s.ShelfName,
		}
		f.row(&out, s.BranchRemoteID, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertShelf(f.ctx, shelf)
		})
	}
	return out
}

func (f *fanout) variants(in []catalogsync.CanonicalVariant) SubresourceOutcome {
	out := SubresourceOutcome{Kind: catalogsync.KindVariant}
	for _, v := range in {
		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			out.fail("remote %d: variant %d: %v", *f.product.RemoteID, v.RemoteID, err)
			continue
		}
		variant := &catalog.ProductVariant{
			ProductChild: f.child(),
			RemoteID:     v.RemoteID,
			Code:         v.Code,
			Name:         v.Name,
			Price:        v.Price,
			Attributes:   string(attrs),
		}
		f.row(&out, v.RemoteID, func(r catalog.SubresourceRepository) (bool, error) {
			return r.UpsertVariant(f.ctx, variant)
		})
	}
	return out
}
