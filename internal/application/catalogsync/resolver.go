package catalogsync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SyntheticEmailDomain is the mail domain of accounts created for remote trademarks
const SyntheticEmailDomain = "remote-catalog.local"

// PasswordHasher hashes the throwaway password of a synthetic account
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher; a cost outside bcrypt's range uses the default
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash implements PasswordHasher
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Resolver makes sure every category, business and warehouse the run's
// products reference exists locally, and maps remote ids to local ids.
type Resolver struct {
	uow     catalog.UnitOfWork
	hasher  PasswordHasher
	timeout time.Duration
}

// NewResolver creates a resolver. timeout bounds the shared transaction; zero means none.
func NewResolver(uow catalog.UnitOfWork, hasher PasswordHasher, timeout time.Duration) *Resolver {
	if hasher == nil {
		hasher = NewBcryptHasher(bcrypt.DefaultCost)
	}
	return &Resolver{uow: uow, hasher: hasher, timeout: timeout}
}

// depRef is one distinct remote reference
type depRef struct {
	remoteID int64
	name     string
}

type refSet map[int64]string

// add keeps the first non-empty name seen for id
func (s refSet) add(id int64, name string) {
	if cur, ok := s[id]; ok && cur != "" {
		return
	}
	s[id] = strings.TrimSpace(name)
}

func (s refSet) sorted() []depRef {
	out := make([]depRef, 0, len(s))
	for id, name := range s {
		out = append(out, depRef{remoteID: id, name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].remoteID < out[j].remoteID })
	return out
}

// collectRefs extracts the distinct dependency references of products.
// Warehouses are the branches named by inventories, batch lots, serials and shelves.
func collectRefs(products []catalogsync.CanonicalProduct) (categories, businesses, warehouses []depRef) {
	cats, biz, whs := refSet{}, refSet{}, refSet{}
	for i := range products {
		p := &products[i]
		if p.CategoryRemoteID != nil {
			cats.add(*p.CategoryRemoteID, p.CategoryName)
		}
		if p.BusinessRemoteID != nil {
			biz.add(*p.BusinessRemoteID, p.BusinessName)
		}
		for _, inv := range p.Inventories {
			whs.add(inv.BranchRemoteID, inv.BranchName)
		}
		for _, lot := range p.BatchLots {
			whs.add(lot.BranchRemoteID, lot.BranchName)
		}
		for _, s := range p.Serials {
			whs.add(s.BranchRemoteID, s.BranchName)
		}
		for _, s := range p.Shelves {
			whs.add(s.BranchRemoteID, s.BranchName)
		}
	}
	return cats.sorted(), biz.sorted(), whs.sorted()
}

// Resolve runs dependency resolution in one transaction. Each reference is
// resolved in its own savepoint; a reference that cannot be resolved is
// counted as an error and left unmapped. An empty category or business map
// while products reference that kind aborts the transaction.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, products []catalogsync.CanonicalProduct) (catalogsync.DependencyMaps, catalogsync.Stats, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cats, bizs, whs := collectRefs(products)
	log := logger.L(ctx).With(zap.String("phase", "resolve"))
	log.Info("resolving dependencies",
		zap.Int("categories", len(cats)),
		zap.Int("businesses", len(bizs)),
		zap.Int("warehouses", len(whs)),
	)

	var (
		maps  catalogsync.DependencyMaps
		stats catalogsync.Stats
	)
	err := r.uow.InTx(ctx, func(store catalog.Store) error {
		stats = catalogsync.NewStats()

		var delta catalogsync.Stats
		maps.Categories, delta = resolveAll(ctx, store, cats, r.categoryOps(tenantID))
		stats = stats.Merge(delta)
		maps.Businesses, delta = resolveAll(ctx, store, bizs, r.businessOps(tenantID))
		stats = stats.Merge(delta)
		maps.Warehouses, delta = resolveAll(ctx, store, whs, r.warehouseOps(tenantID))
		stats = stats.Merge(delta)

		if len(cats) > 0 && maps.Categories.Len() == 0 {
			return fmt.Errorf("%w: %s", catalogsync.ErrDependencyMapEmpty, catalogsync.DependencyCategory)
		}
		if len(bizs) > 0 && maps.Businesses.Len() == 0 {
			return fmt.Errorf("%w: %s", catalogsync.ErrDependencyMapEmpty, catalogsync.DependencyBusiness)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, catalogsync.ErrDependencyMapEmpty) {
			err = fmt.Errorf("%w: %v", catalogsync.ErrDependencyTxAborted, err)
		}
		log.Error("dependency resolution failed", zap.Error(err))
		return catalogsync.DependencyMaps{}, catalogsync.NewStats(), err
	}

	log.Info("dependencies resolved",
		zap.Int("categories", maps.Categories.Len()),
		zap.Int("businesses", maps.Businesses.Len()),
		zap.Int("warehouses", maps.Warehouses.Len()),
	)
	return maps, stats, nil
}

// depOps is how one dependency kind is found, created and bound
type depOps[E any] struct {
	kind       catalogsync.DependencyKind
	statsKind  catalogsync.EntityKind
	findRemote func(context.Context, catalog.Store, int64) (*E, error)
	findName   func(context.Context, catalog.Store, string) (*E, error)
	create     func(context.Context, catalog.Store, depRef) (*E, catalogsync.Stats, error)
	bind       func(*E, int64) bool
	save       func(context.Context, catalog.Store, *E) error
	id         func(*E) uuid.UUID
	normalize  func(depRef) string
}

func resolveAll[E any](ctx context.Context, store catalog.Store, refs []depRef, ops depOps[E]) (*catalogsync.EntityMap, catalogsync.Stats) {
	b := catalogsync.NewEntityMapBuilder(ops.kind)
	stats := catalogsync.NewStats()
	for _, ref := range refs {
		var (
			id    uuid.UUID
			delta catalogsync.Stats
		)
		err := store.Nested(ctx, func(pair catalog.Store) error {
			var err error
			id, delta, err = resolveOne(ctx, pair, ref, ops)
			return err
		})
		if err != nil {
			logger.L(ctx).Warn("dependency not resolved",
				zap.String("kind", string(ops.kind)),
				zap.Int64("remote_id", ref.remoteID),
				zap.Error(err),
			)
			stats = stats.With(ops.statsKind, catalogsync.Counters{Errors: 1})
			continue
		}
		b.Set(ref.remoteID, id)
		stats = stats.Merge(delta)
	}
	return b.Build(), stats
}

// resolveOne finds the local record bound to ref, creating it when missing.
// A uniqueness violation on create means someone else holds the natural key,
// so the record is re-queried and bound instead.
func resolveOne[E any](ctx context.Context, store catalog.Store, ref depRef, ops depOps[E]) (uuid.UUID, catalogsync.Stats, error) {
	found, err := ops.findRemote(ctx, store, ref.remoteID)
	if err == nil {
		return ops.id(found), catalogsync.StatsDelta(ops.statsKind, catalogsync.Counters{Skips: 1}), nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return uuid.Nil, nil, err
	}

	var (
		created *E
		delta   catalogsync.Stats
	)
	createErr := store.Nested(ctx, func(inner catalog.Store) error {
		var err error
		created, delta, err = ops.create(ctx, inner, ref)
		return err
	})
	if createErr == nil {
		return ops.id(created), delta.With(ops.statsKind, catalogsync.Counters{Adds: 1}), nil
	}
	if !errors.Is(createErr, shared.ErrAlreadyExists) {
		return uuid.Nil, nil, createErr
	}

	if found, err := ops.findRemote(ctx, store, ref.remoteID); err == nil {
		return ops.id(found), catalogsync.StatsDelta(ops.statsKind, catalogsync.Counters{Skips: 1}), nil
	}
	found, err = ops.findName(ctx, store, ops.normalize(ref))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("re-query after %v: %w", createErr, err)
	}
	if !ops.bind(found, ref.remoteID) {
		// the natural key belongs to a record bound elsewhere; map onto it without rebinding
		return ops.id(found), catalogsync.StatsDelta(ops.statsKind, catalogsync.Counters{Skips: 1}), nil
	}
	if err := ops.save(ctx, store, found); err != nil {
		return uuid.Nil, nil, err
	}
	return ops.id(found), catalogsync.StatsDelta(ops.statsKind, catalogsync.Counters{Updates: 1}), nil
}

func displayName(ref depRef, fallback string) string {
	if ref.name != "" {
		return ref.name
	}
	return fmt.Sprintf("%s %d", fallback, ref.remoteID)
}

func (r *Resolver) categoryOps(tenantID uuid.UUID) depOps[catalog.Category] {
	normalize := func(ref depRef) string { return NormalizeName(displayName(ref, "Category")) }
	return depOps[catalog.Category]{
		kind:      catalogsync.DependencyCategory,
		statsKind: catalogsync.KindCategory,
		findRemote: func(ctx context.Context, s catalog.Store, id int64) (*catalog.Category, error) {
			return s.Categories().FindByRemoteID(ctx, tenantID, id)
		},
		findName: func(ctx context.Context, s catalog.Store, name string) (*catalog.Category, error) {
			return s.Categories().FindByNormalizedName(ctx, tenantID, name)
		},
		create: func(ctx context.Context, s catalog.Store, ref depRef) (*catalog.Category, catalogsync.Stats, error) {
			c, err := catalog.NewRemoteCategory(tenantID, ref.remoteID, displayName(ref, "Category"), normalize(ref))
			if err != nil {
				return nil, nil, err
			}
			return c, nil, s.Categories().Create(ctx, c)
		},
		bind: func(c *catalog.Category, id int64) bool { return c.BindRemote(id) },
		save: func(ctx context.Context, s catalog.Store, c *catalog.Category) error {
			return s.Categories().Save(ctx, c)
		},
		id:        func(c *catalog.Category) uuid.UUID { return c.ID },
		normalize: normalize,
	}
}

func (r *Resolver) businessOps(tenantID uuid.UUID) depOps[catalog.Business] {
	normalize := func(ref depRef) string { return NormalizeName(displayName(ref, "Business")) }
	return depOps[catalog.Business]{
		kind:      catalogsync.DependencyBusiness,
		statsKind: catalogsync.KindBusiness,
		findRemote: func(ctx context.Context, s catalog.Store, id int64) (*catalog.Business, error) {
			return s.Businesses().FindByRemoteID(ctx, tenantID, id)
		},
		findName: func(ctx context.Context, s catalog.Store, name string) (*catalog.Business, error) {
			return s.Businesses().FindByNormalizedName(ctx, tenantID, name)
		},
		create: func(ctx context.Context, s catalog.Store, ref depRef) (*catalog.Business, catalogsync.Stats, error) {
			account, delta, err := r.ownerAccount(ctx, s, tenantID, ref)
			if err != nil {
				return nil, nil, err
			}
			name := displayName(ref, "Business")
			b, err := catalog.NewRemoteBusiness(tenantID, account.ID, ref.remoteID, name, normalize(ref), businessSlug(ref))
			if err != nil {
				return nil, nil, err
			}
			return b, delta, s.Businesses().Create(ctx, b)
		},
		bind: func(b *catalog.Business, id int64) bool { return b.BindRemote(id) },
		save: func(ctx context.Context, s catalog.Store, b *catalog.Business) error {
			return s.Businesses().Save(ctx, b)
		},
		id:        func(b *catalog.Business) uuid.UUID { return b.ID },
		normalize: normalize,
	}
}

func (r *Resolver) warehouseOps(tenantID uuid.UUID) depOps[catalog.Warehouse] {
	normalize := func(ref depRef) string { return NormalizeName(displayName(ref, "Branch")) }
	return depOps[catalog.Warehouse]{
		kind:      catalogsync.DependencyWarehouse,
		statsKind: catalogsync.KindWarehouse,
		findRemote: func(ctx context.Context, s catalog.Store, id int64) (*catalog.Warehouse, error) {
			return s.Warehouses().FindByRemoteID(ctx, tenantID, id)
		},
		findName: func(ctx context.Context, s catalog.Store, name string) (*catalog.Warehouse, error) {
			return s.Warehouses().FindByNormalizedName(ctx, tenantID, name)
		},
		create: func(ctx context.Context, s catalog.Store, ref depRef) (*catalog.Warehouse, catalogsync.Stats, error) {
			w, err := catalog.NewBranchWarehouse(tenantID, ref.remoteID, displayName(ref, "Branch"), normalize(ref))
			if err != nil {
				return nil, nil, err
			}
			return w, nil, s.Warehouses().Create(ctx, w)
		},
		bind: func(w *catalog.Warehouse, id int64) bool { return w.BindRemote(id) },
		save: func(ctx context.Context, s catalog.Store, w *catalog.Warehouse) error {
			return s.Warehouses().Save(ctx, w)
		},
		id:        func(w *catalog.Warehouse) uuid.UUID { return w.ID },
		normalize: normalize,
	}
}

// SyntheticEmail is the deterministic owner email of a remote trademark
func SyntheticEmail(remoteID int64, name string) string {
	slug := Slugify(name)
	if slug == "" {
		slug = "business"
	}
	return fmt.Sprintf("business-%d-%s@%s", remoteID, slug, SyntheticEmailDomain)
}

// SyntheticPhone is the deterministic owner phone of a remote trademark
func SyntheticPhone(remoteID int64) string {
	return fmt.Sprintf("09%08d", remoteID)
}

func businessSlug(ref depRef) string {
	base := Slugify(ref.name)
	if base == "" {
		base = "business"
	}
	return fmt.Sprintf("%s-%d", base, ref.remoteID)
}

// ownerAccount finds or creates the synthetic account owning a remote trademark
func (r *Resolver) ownerAccount(ctx context.Context, s catalog.Store, tenantID uuid.UUID, ref depRef) (*catalog.Account, catalogsync.Stats, error) {
	email := SyntheticEmail(ref.remoteID, ref.name)
	if a, err := s.Accounts().FindByEmail(ctx, tenantID, email); err == nil {
		return a, catalogsync.StatsDelta(catalogsync.KindAccount, catalogsync.Counters{Skips: 1}), nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := r.hasher.Hash(randomPassword())
	if err != nil {
		return nil, nil, fmt.Errorf("hash owner password: %w", err)
	}
	account, err := catalog.NewSyntheticAccount(tenantID, email, SyntheticPhone(ref.remoteID), displayName(ref, "Business"), hash)
	if err != nil {
		return nil, nil, err
	}

	err = s.Nested(ctx, func(inner catalog.Store) error {
		return inner.Accounts().Create(ctx, account)
	})
	if errors.Is(err, shared.ErrAlreadyExists) {
		existing, findErr := s.Accounts().FindByEmail(ctx, tenantID, email)
		if findErr != nil {
			return nil, nil, fmt.Errorf("owner account %s: %w", email, err)
		}
		return existing, catalogsync.StatsDelta(catalogsync.KindAccount, catalogsync.Counters{Skips: 1}), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return account, catalogsync.StatsDelta(catalogsync.KindAccount, catalogsync.Counters{Adds: 1}), nil
}

func randomPassword() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
