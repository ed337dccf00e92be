package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeletionNote is written on products soft-deleted because the remote removed them
const DeletionNote = "removed from remote catalog"

// SubresourceOutcome is the result of writing one kind of sub-resource
type SubresourceOutcome struct {
	Kind     catalogsync.EntityKind
	Counters catalogsync.Counters
	Errors   []string
}

func (o *SubresourceOutcome) created(isNew bool) {
	if isNew {
		o.Counters.Adds++
	} else {
		o.Counters.Updates++
	}
}

func (o *SubresourceOutcome) fail(format string, args ...any) {
	o.Counters.Errors++
	o.Errors = append(o.Errors, fmt.Sprintf(format, args...))
}

// UpsertOutcome is the result of applying one decision. Err is set when the
// product transaction failed; nothing of that product was committed then.
type UpsertOutcome struct {
	Classification catalogsync.Classification
	Product        *catalog.Product
	Stats          catalogsync.Stats
	Subresources   []SubresourceOutcome
	Errors         []string
	Err            error
}

// Failed reports whether the product write failed
func (o UpsertOutcome) Failed() bool {
	return o.Err != nil
}

// Upserter applies decisions to the catalog store, one transaction per product
type Upserter struct {
	uow     catalog.UnitOfWork
	timeout time.Duration
	now     func() time.Time
}

// NewUpserter creates an upserter. timeout bounds each product transaction; zero means none.
func NewUpserter(uow catalog.UnitOfWork, timeout time.Duration) *Upserter {
	return &Upserter{uow: uow, timeout: timeout, now: time.Now}
}

// Apply realizes d. c is nil for deletions.
func (u *Upserter) Apply(ctx context.Context, tenantID uuid.UUID, c *catalogsync.CanonicalProduct, d catalogsync.Decision, deps catalogsync.DependencyMaps) UpsertOutcome {
	out := UpsertOutcome{Classification: d.Classification}

	switch d.Classification {
	case catalogsync.ClassificationSkip:
		out.Stats = catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Skips: 1})
		return out
	case catalogsync.ClassificationConflict:
		out.Stats = catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Conflicts: 1})
		out.Errors = []string{"conflict: " + d.Reason}
		return out
	case catalogsync.ClassificationDelete:
		return u.finish(ctx, out, d.RemoteID, u.delete(ctx, d, &out))
	case catalogsync.ClassificationAdd, catalogsync.ClassificationUpdate:
		return u.finish(ctx, out, d.RemoteID, u.write(ctx, tenantID, c, d, deps, &out))
	}
	out.Err = fmt.Errorf("unknown classification %q", d.Classification)
	return u.finish(ctx, out, d.RemoteID, out.Err)
}

// finish turns a transaction error into a product error. Sub-resource
// outcomes of a rolled back transaction are discarded.
func (u *Upserter) finish(ctx context.Context, out UpsertOutcome, remoteID int64, err error) UpsertOutcome {
	if err == nil {
		stats := catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.CountersFor(out.Classification))
		for _, s := range out.Subresources {
			stats = stats.With(s.Kind, s.Counters)
			out.Errors = append(out.Errors, s.Errors...)
		}
		out.Stats = stats
		return out
	}

	logger.L(ctx).Error("product write failed",
		zap.Int64("remote_id", remoteID),
		zap.String("classification", out.Classification.String()),
		zap.Error(err),
	)
	return UpsertOutcome{
		Classification: out.Classification,
		Stats:          catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Errors: 1}),
		Errors:         []string{fmt.Sprintf("remote %d: %v", remoteID, err)},
		Err:            err,
	}
}

func (u *Upserter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.timeout > 0 {
		return context.WithTimeout(ctx, u.timeout)
	}
	return context.WithCancel(ctx)
}

func (u *Upserter) delete(ctx context.Context, d catalogsync.Decision, out *UpsertOutcome) error {
	if d.Local == nil {
		return errors.New("delete without a local product")
	}
	ctx, cancel := u.withTimeout(ctx)
	defer cancel()

	p := *d.Local
	if err := p.Deactivate(DeletionNote, u.now()); err != nil {
		return err
	}
	err := u.uow.InTx(ctx, func(store catalog.Store) error {
		return store.Products().Save(ctx, &p)
	})
	if err != nil {
		return err
	}
	out.Product = &p
	return nil
}

func (u *Upserter) write(ctx context.Context, tenantID uuid.UUID, c *catalogsync.CanonicalProduct, d catalogsync.Decision, deps catalogsync.DependencyMaps, out *UpsertOutcome) error {
	if c == nil {
		return errors.New("write without a canonical product")
	}
	categoryID, ok := deps.Categories.LookupPtr(c.CategoryRemoteID)
	if !ok {
		return fmt.Errorf("%w: category %d", catalogsync.ErrMissingDependency, *c.CategoryRemoteID)
	}
	businessID, ok := deps.Businesses.LookupPtr(c.BusinessRemoteID)
	if !ok {
		return fmt.Errorf("%w: business %d", catalogsync.ErrMissingDependency, *c.BusinessRemoteID)
	}

	ctx, cancel := u.withTimeout(ctx)
	defer cancel()

	var (
		product *catalog.Product
		subs    []SubresourceOutcome
	)
	err := u.uow.InTx(ctx, func(store catalog.Store) error {
		p, err := u.saveProduct(ctx, store, tenantID, c, d, categoryID, businessID)
		if err != nil {
			return err
		}

		var masterID *uuid.UUID
		subs, masterID = fanOut(ctx, store, tenantID, p, c, deps)

		if err := ensureMasterUnit(ctx, store, tenantID, p, c, masterID); err != nil {
			return fmt.Errorf("%w: %v", catalogsync.ErrMasterUnit, err)
		}

		// a digest is only recorded once every sub-resource row was written,
		// so a failed row is retried by the next run
		p.SubresourceDigest = c.SubresourceDigest
		for _, s := range subs {
			if s.Counters.Errors > 0 {
				p.SubresourceDigest = ""
				break
			}
		}
		if err := store.Products().Save(ctx, p); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return err
	}
	out.Product = product
	out.Subresources = subs
	return nil
}

// saveProduct creates or updates the product row with the canonical scalars
func (u *Upserter) saveProduct(ctx context.Context, store catalog.Store, tenantID uuid.UUID, c *catalogsync.CanonicalProduct, d catalogsync.Decision, categoryID, businessID *uuid.UUID) (*catalog.Product, error) {
	if d.Classification == catalogsync.ClassificationAdd || d.Local == nil {
		p, err := catalog.NewRemoteProduct(tenantID, c.RemoteID, c.Code, c.Name, c.Unit)
		if err != nil {
			return nil, err
		}
		p.Slug = c.Slug
		applyScalars(p, c, categoryID, businessID)
		if err := store.Products().Create(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	p := *d.Local
	if err := p.BindRemote(c.RemoteID); err != nil {
		return nil, err
	}
	p.Reactivate()
	if p.Slug == "" {
		p.Slug = c.Slug
	}
	applyScalars(&p, c, categoryID, businessID)
	if err := store.Products().Save(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// applyScalars copies every compared scalar of c onto p. The slug, origin
// and remote binding are left alone.
func applyScalars(p *catalog.Product, c *catalogsync.CanonicalProduct, categoryID, businessID *uuid.UUID) {
	p.Code = c.Code
	p.Name = c.Name
	p.Description = c.Description
	p.Thumbnail = c.Thumbnail
	p.CategoryID = categoryID
	p.BusinessID = businessID
	p.Unit = c.Unit
	p.Price = c.Price
	p.BasePrice = c.BasePrice
	p.MinQuantity = c.MinQuantity
	p.MaxQuantity = c.MaxQuantity
	p.Weight = c.Weight
	p.ConversionValue = c.ConversionValue
	p.TaxClass = c.TaxClass
	p.TaxName = c.TaxName
	p.TaxPercent = c.TaxPercent
	p.LotControl = c.LotControl
	p.SerialControl = c.SerialControl
	p.BatchExpiryControl = c.BatchExpiryControl
	p.RewardPointEligible = c.RewardPointEligible
	p.Specification = c.Specification.JSON()
	p.OrderTemplate = c.OrderTemplate
	p.UpdatedAt = time.Now()
}

// ensureMasterUnit assigns the master unit: the one the fan-out resolved,
// else an existing unit, else a synthesized default unit. Exactly one of the
// product's units carries the master flag afterwards.
func ensureMasterUnit(ctx context.Context, store catalog.Store, tenantID uuid.UUID, p *catalog.Product, c *catalogsync.CanonicalProduct, resolved *uuid.UUID) error {
	if resolved != nil {
		if p.MasterUnitID == nil || *p.MasterUnitID != *resolved {
			p.AssignMasterUnit(*resolved)
		}
		return store.Subresources().SetMasterUnit(ctx, p.ID, *resolved)
	}
	if p.HasMasterUnit() {
		return nil
	}

	units, err := store.Subresources().FindUnits(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(units) > 0 {
		p.AssignMasterUnit(units[0].ID)
		return store.Subresources().SetMasterUnit(ctx, p.ID, units[0].ID)
	}

	unit := catalog.NewDefaultUnit(tenantID, p.ID, c.Unit)
	if _, err := store.Subresources().UpsertUnit(ctx, unit); err != nil {
		return err
	}
	p.AssignMasterUnit(unit.ID)
	return nil
}
