package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote serves a fixed catalog and records the tombstone cursors asked for
type fakeRemote struct {
	items      []catalogsync.RemoteItem
	tombstones []int64
	fetchErr   error
	sinces     []time.Time
}

func (r *fakeRemote) FetchAll(context.Context) ([]catalogsync.RemoteItem, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.items, nil
}

func (r *fakeRemote) FetchTombstones(_ context.Context, since time.Time) (catalogsync.TombstoneSet, error) {
	r.sinces = append(r.sinces, since)
	return catalogsync.NewTombstoneSet(r.tombstones...), nil
}

func (r *fakeRemote) FetchItem(_ context.Context, id int64) (*catalogsync.RemoteItem, error) {
	for i := range r.items {
		if r.items[i].ID == id {
			return &r.items[i], nil
		}
	}
	return &catalogsync.RemoteItem{ID: id}, nil
}

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }

type testEnv struct {
	db     *persistence.Database
	remote *fakeRemote
	engine *Engine
	store  *persistence.GormStore
}

func newTestEnv(t *testing.T, wrap func(catalog.UnitOfWork) catalog.UnitOfWork) *testEnv {
	t.Helper()
	db, err := persistence.NewSQLiteDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var uow catalog.UnitOfWork = persistence.NewGormUnitOfWork(db.DB)
	if wrap != nil {
		uow = wrap(uow)
	}
	remote := &fakeRemote{}
	engine := NewEngine(Config{TenantID: testTenant}, remote, uow, persistence.NewGormSyncRunRepository(db.DB), plainHasher{})
	return &testEnv{db: db, remote: remote, engine: engine, store: persistence.NewGormStore(db.DB)}
}

func (e *testEnv) product(t *testing.T, remoteID int64) *catalog.Product {
	t.Helper()
	p, err := e.store.Products().FindByRemoteID(context.Background(), testTenant, remoteID)
	require.NoError(t, err)
	return p
}

func remoteItem(id int64, price string) catalogsync.RemoteItem {
	code := fmt.Sprintf("P%d", id)
	return catalogsync.RemoteItem{
		ID:            id,
		Code:          code,
		Name:          "Product " + code,
		Price:         dec(price),
		CategoryID:    i64(10),
		CategoryName:  "Drinks",
		TradeMarkID:   i64(20),
		TradeMarkName: "Acme Co",
		Inventories: []catalogsync.RemoteInventory{
			{BranchID: 1, BranchName: "Main store", OnHand: decimal.NewFromInt(5)},
		},
	}
}

// richItem carries every sub-resource collection
func richItem(id int64) catalogsync.RemoteItem {
	item := remoteItem(id, "250.5")
	expiry := catalogsync.FlexTime{Time: time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)}
	item.Weight = dec("0.75")
	item.TaxRate = dec("8")
	item.IsBatchExpire = true
	item.Images = []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}
	item.Attributes = []catalogsync.RemoteAttribute{{Name: "Color", Value: "Red"}}
	item.MasterUnitID = i64(501)
	item.Units = []catalogsync.RemoteUnit{
		{ID: 500, Name: "box", ConversionValue: decimal.NewFromInt(12), BasePrice: decimal.NewFromInt(3000), AllowsSale: true},
		{ID: 501, Name: "can", ConversionValue: decimal.NewFromInt(1), BasePrice: decimal.NewFromInt(250), AllowsSale: true},
	}
	item.PriceBooks = []catalogsync.RemotePriceBook{{PriceBookID: 7, PriceBookName: "Wholesale", Price: decimal.NewFromInt(240)}}
	item.Formulas = []catalogsync.RemoteFormula{{MaterialID: 900, MaterialCode: "M-900", Quantity: decimal.NewFromInt(2)}}
	item.Serials = []catalogsync.RemoteSerial{{SerialNumber: "SN-1", BranchID: 2, BranchName: "Warehouse B"}}
	item.BatchExpires = []catalogsync.RemoteBatchExpire{{BatchName: "LOT-1", BranchID: 1, ExpireDate: &expiry, OnHand: decimal.NewFromInt(3)}}
	item.Warranties = []catalogsync.RemoteWarranty{{ID: 3, Description: "12 months", NumberTime: 12, TimeType: 2}}
	item.Shelves = []catalogsync.RemoteShelf{{BranchID: 1, ShelvesName: "A-01"}}
	item.Variants = []catalogsync.RemoteVariant{{ID: 61, Code: "P-61", Name: "Large", BasePrice: decimal.NewFromInt(300),
		Attributes: []catalogsync.RemoteAttribute{{Name: "Size", Value: "L"}}}}
	item.OrderTemplate = "Ship chilled"
	return item
}

func TestEngine_EndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.remote.items = []catalogsync.RemoteItem{remoteItem(2, "100"), remoteItem(3, "50"), remoteItem(4, "70")}
	seed := env.engine.TriggerSync(ctx)
	require.True(t, seed.Success, seed.Errors)
	require.Equal(t, catalogsync.SyncStatusSuccess, seed.Status)
	assert.Equal(t, catalogsync.Counters{Adds: 3}, seed.Stats.Product())
	assert.Equal(t, catalogsync.Counters{Adds: 1}, seed.Stats.Get(catalogsync.KindCategory))
	assert.Equal(t, catalogsync.Counters{Adds: 1}, seed.Stats.Get(catalogsync.KindBusiness))
	assert.Equal(t, catalogsync.Counters{Adds: 1}, seed.Stats.Get(catalogsync.KindAccount))
	assert.Equal(t, catalogsync.Counters{Adds: 1}, seed.Stats.Get(catalogsync.KindWarehouse))

	env.remote.items = []catalogsync.RemoteItem{remoteItem(1, "10"), remoteItem(2, "105"), remoteItem(3, "50")}
	env.remote.tombstones = []int64{4}
	result := env.engine.TriggerSync(ctx)

	require.True(t, result.Success, result.Errors)
	assert.Equal(t, catalogsync.SyncStatusSuccess, result.Status)
	assert.Equal(t, catalogsync.Counters{Adds: 1, Updates: 1, Skips: 1, Conflicts: 0, Deletes: 1, Errors: 0}, result.Stats.Product())
	assert.Zero(t, result.Stats.TotalErrors())
	assert.Empty(t, result.Errors)
	assert.Zero(t, result.FailureRate)

	p2 := env.product(t, 2)
	assert.True(t, p2.Price.Equal(decimal.NewFromInt(105)))
	assert.NotNil(t, p2.CategoryID)
	assert.NotNil(t, p2.BusinessID)
	assert.True(t, p2.HasMasterUnit())

	p4 := env.product(t, 4)
	assert.False(t, p4.IsActive())
	assert.Equal(t, DeletionNote, p4.SyncNote)
	assert.NotNil(t, p4.InactivatedAt)

	history, err := env.engine.GetSyncHistory(ctx, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, result.RunID, history[0].ID)
	assert.Equal(t, catalogsync.SyncStatusSuccess, history[0].Status)
	assert.Equal(t, 3, history[0].TotalExpected)
	assert.Equal(t, 1, history[0].Stats.Product().Deletes)
}

func TestEngine_IdempotentSecondRun(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.remote.items = []catalogsync.RemoteItem{richItem(1), richItem(2), remoteItem(3, "9.99")}

	first := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, first.Status, first.Errors)
	assert.Equal(t, 3, first.Stats.Product().Adds)
	assert.Equal(t, 2, first.Stats.Get(catalogsync.KindWarehouse).Adds)
	assert.Equal(t, 4, first.Stats.Get(catalogsync.KindUnit).Adds)
	assert.Equal(t, 4, first.Stats.Get(catalogsync.KindImage).Adds)
	assert.Equal(t, 2, first.Stats.Get(catalogsync.KindPriceBook).Adds)
	assert.Equal(t, 2, first.Stats.Get(catalogsync.KindSerial).Adds)
	assert.Equal(t, 2, first.Stats.Get(catalogsync.KindOrderTemplate).Updates)

	second := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, second.Status, second.Errors)
	assert.Equal(t, catalogsync.Counters{Skips: 3}, second.Stats.Product())

	p1 := env.product(t, 1)
	require.True(t, p1.HasMasterUnit())
	units, err := env.store.Subresources().FindUnits(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "can", units[0].Name, "the unit named by the master unit id is master")
	assert.Equal(t, units[0].ID, *p1.MasterUnitID)
	assert.Equal(t, TaxClassVAT8, p1.TaxClass)
	assert.Equal(t, "Ship chilled", p1.OrderTemplate)
	assert.NotEmpty(t, p1.SubresourceDigest)
}

func TestEngine_InventoryChangeIsAnUpdate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.remote.items = []catalogsync.RemoteItem{remoteItem(1, "10")}
	require.True(t, env.engine.TriggerSync(ctx).Success)

	env.remote.items[0].Inventories[0].OnHand = decimal.NewFromInt(9)
	result := env.engine.TriggerSync(ctx)
	assert.Equal(t, catalogsync.Counters{Updates: 1}, result.Stats.Product())
	assert.Equal(t, catalogsync.Counters{Updates: 1}, result.Stats.Get(catalogsync.KindInventory))
}

func TestEngine_FetchFailureRecordsFailedRun(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.remote.fetchErr = catalogsync.ErrRemoteUnavailable

	result := env.engine.TriggerSync(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, catalogsync.SyncStatusFailed, result.Status)
	assert.Zero(t, result.Stats.Total())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "remote catalog fetch failed")

	run, err := env.engine.GetSyncRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.SyncStatusFailed, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestEngine_TombstoneCursorFollowsLastCompletedRun(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.remote.items = []catalogsync.RemoteItem{remoteItem(1, "10")}

	first := env.engine.TriggerSync(ctx)
	require.True(t, first.Success)
	env.engine.TriggerSync(ctx)

	require.Len(t, env.remote.sinces, 2)
	assert.True(t, env.remote.sinces[0].IsZero())
	run, err := env.engine.GetSyncRun(ctx, first.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.TombstoneCursor)
	assert.WithinDuration(t, *run.TombstoneCursor, env.remote.sinces[1], time.Millisecond)
	assert.False(t, run.TombstoneCursor.After(*run.StartedAt), "the cursor is taken before the catalog is read")
}

// timedRemote stamps every removal and answers tombstone queries by time
type timedRemote struct {
	items       []catalogsync.RemoteItem
	removedAt   map[int64]time.Time
	duringFetch func()
}

func newTimedRemote(items ...catalogsync.RemoteItem) *timedRemote {
	return &timedRemote{items: items, removedAt: make(map[int64]time.Time)}
}

func (r *timedRemote) remove(id int64) {
	kept := r.items[:0:0]
	for _, item := range r.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	r.items = kept
	r.removedAt[id] = time.Now()
}

// FetchAll returns the pages as they were when reading began
func (r *timedRemote) FetchAll(context.Context) ([]catalogsync.RemoteItem, error) {
	snapshot := append([]catalogsync.RemoteItem(nil), r.items...)
	if hook := r.duringFetch; hook != nil {
		r.duringFetch = nil
		hook()
	}
	return snapshot, nil
}

func (r *timedRemote) FetchTombstones(_ context.Context, since time.Time) (catalogsync.TombstoneSet, error) {
	var ids []int64
	for id, at := range r.removedAt {
		if !at.Before(since) {
			ids = append(ids, id)
		}
	}
	return catalogsync.NewTombstoneSet(ids...), nil
}

func (r *timedRemote) FetchItem(_ context.Context, id int64) (*catalogsync.RemoteItem, error) {
	for i := range r.items {
		if r.items[i].ID == id {
			return &r.items[i], nil
		}
	}
	return &catalogsync.RemoteItem{ID: id}, nil
}

func newTimedEnv(t *testing.T, remote *timedRemote, wrap func(catalog.UnitOfWork) catalog.UnitOfWork) *testEnv {
	t.Helper()
	env := newTestEnv(t, nil)
	var uow catalog.UnitOfWork = persistence.NewGormUnitOfWork(env.db.DB)
	if wrap != nil {
		uow = wrap(uow)
	}
	env.engine = NewEngine(Config{TenantID: testTenant}, remote, uow, persistence.NewGormSyncRunRepository(env.db.DB), plainHasher{})
	return env
}

func TestEngine_RemovalDuringFetchIsDeletedNextRun(t *testing.T) {
	remote := newTimedRemote(remoteItem(1, "10"), remoteItem(2, "20"), remoteItem(3, "30"), remoteItem(4, "40"))
	env := newTimedEnv(t, remote, nil)
	ctx := context.Background()

	require.Equal(t, catalogsync.SyncStatusSuccess, env.engine.TriggerSync(ctx).Status)

	remote.duringFetch = func() { remote.remove(4) }
	second := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, second.Status, second.Errors)
	assert.Equal(t, catalogsync.Counters{Skips: 4}, second.Stats.Product(), "item 4 was still on its page")
	assert.True(t, env.product(t, 4).IsActive())

	third := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, third.Status, third.Errors)
	assert.Equal(t, catalogsync.Counters{Skips: 3, Deletes: 1}, third.Stats.Product())
	assert.False(t, env.product(t, 4).IsActive())
}

// deleteFaults rejects soft-deletes while broken is set
type deleteFaults struct {
	catalog.UnitOfWork
	broken *bool
}

func (u deleteFaults) InTx(ctx context.Context, fn func(catalog.Store) error) error {
	return u.UnitOfWork.InTx(ctx, func(s catalog.Store) error { return fn(deleteFaultStore{s, u.broken}) })
}

type deleteFaultStore struct {
	catalog.Store
	broken *bool
}

func (s deleteFaultStore) Products() catalog.ProductRepository {
	return deleteFaultProducts{s.Store.Products(), s.broken}
}

type deleteFaultProducts struct {
	catalog.ProductRepository
	broken *bool
}

func (r deleteFaultProducts) Save(ctx context.Context, p *catalog.Product) error {
	if *r.broken && !p.IsActive() {
		return errBrokenRow
	}
	return r.ProductRepository.Save(ctx, p)
}

func TestEngine_FailedDeleteKeepsTombstoneWindow(t *testing.T) {
	broken := false
	remote := newTimedRemote(remoteItem(1, "10"), remoteItem(2, "20"))
	env := newTimedEnv(t, remote, func(u catalog.UnitOfWork) catalog.UnitOfWork {
		return deleteFaults{u, &broken}
	})
	ctx := context.Background()

	first := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, first.Status, first.Errors)
	firstRun, err := env.engine.GetSyncRun(ctx, first.RunID)
	require.NoError(t, err)
	require.NotNil(t, firstRun.TombstoneCursor)

	remote.remove(2)
	broken = true
	second := env.engine.TriggerSync(ctx)
	assert.Equal(t, catalogsync.SyncStatusPartial, second.Status)
	assert.Equal(t, catalogsync.Counters{Skips: 1, Errors: 1}, second.Stats.Product())
	assert.True(t, env.product(t, 2).IsActive())

	secondRun, err := env.engine.GetSyncRun(ctx, second.RunID)
	require.NoError(t, err)
	require.NotNil(t, secondRun.TombstoneCursor)
	assert.True(t, secondRun.TombstoneCursor.Equal(*firstRun.TombstoneCursor), "a failed removal does not move the cursor")

	broken = false
	third := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, third.Status, third.Errors)
	assert.Equal(t, 1, third.Stats.Product().Deletes)
	assert.False(t, env.product(t, 2).IsActive())
}

func TestEngine_MatchByCodeAndConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	handMade, err := catalog.NewProduct(testTenant, "P1", "Hand made", "pcs")
	require.NoError(t, err)
	require.NoError(t, env.store.Products().Create(ctx, handMade))

	nameless := remoteItem(2, "5")
	env.remote.items = []catalogsync.RemoteItem{remoteItem(1, "10"), remoteItem(2, "5")}
	require.True(t, env.engine.TriggerSync(ctx).Success)

	bound := env.product(t, 1)
	assert.Equal(t, handMade.ID, bound.ID, "code match binds the existing product")
	assert.Equal(t, catalog.OriginLocal, bound.Origin)

	nameless.Name = ""
	env.remote.items = []catalogsync.RemoteItem{remoteItem(1, "10"), nameless}
	result := env.engine.TriggerSync(ctx)
	assert.Equal(t, catalogsync.Counters{Skips: 1, Conflicts: 1}, result.Stats.Product())
	assert.Equal(t, catalogsync.SyncStatusPartial, result.Status)
	assert.True(t, result.Success)
	assert.InDelta(t, 0.5, result.FailureRate, 1e-9)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "name is empty")
}

func TestEngine_LocalOriginNeverDeleted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	local, err := catalog.NewProduct(testTenant, "LOCAL-1", "Local", "pcs")
	require.NoError(t, err)
	require.NoError(t, local.BindRemote(77))
	require.NoError(t, env.store.Products().Create(ctx, local))

	env.remote.tombstones = []int64{77}
	result := env.engine.TriggerSync(ctx)
	require.True(t, result.Success)
	assert.Zero(t, result.Stats.Product().Deletes)
	assert.True(t, env.product(t, 77).IsActive())
}

// faultyUoW injects write failures into the stores it hands out
type faultyUoW struct {
	catalog.UnitOfWork
	f faults
}

type faults struct {
	categoryCreate error
	brokenName     string
}

func (u faultyUoW) InTx(ctx context.Context, fn func(catalog.Store) error) error {
	return u.UnitOfWork.InTx(ctx, func(s catalog.Store) error { return fn(faultyStore{s, u.f}) })
}

type faultyStore struct {
	catalog.Store
	f faults
}

func (s faultyStore) Categories() catalog.CategoryRepository {
	return faultyCategories{s.Store.Categories(), s.f}
}

func (s faultyStore) Subresources() catalog.SubresourceRepository {
	return faultySubresources{s.Store.Subresources(), s.f}
}

func (s faultyStore) Nested(ctx context.Context, fn func(catalog.Store) error) error {
	return s.Store.Nested(ctx, func(inner catalog.Store) error { return fn(faultyStore{inner, s.f}) })
}

type faultyCategories struct {
	catalog.CategoryRepository
	f faults
}

func (r faultyCategories) Create(ctx context.Context, c *catalog.Category) error {
	if r.f.categoryCreate != nil {
		return r.f.categoryCreate
	}
	return r.CategoryRepository.Create(ctx, c)
}

type faultySubresources struct {
	catalog.SubresourceRepository
	f faults
}

var errBrokenRow = errors.New("row rejected")

func (r faultySubresources) UpsertUnit(ctx context.Context, u *catalog.ProductUnit) (bool, error) {
	if r.f.brokenName != "" && u.Name == r.f.brokenName {
		return false, errBrokenRow
	}
	return r.SubresourceRepository.UpsertUnit(ctx, u)
}

func (r faultySubresources) UpsertAttribute(ctx context.Context, a *catalog.ProductAttribute) (bool, error) {
	if r.f.brokenName != "" && a.Name == r.f.brokenName {
		return false, errBrokenRow
	}
	return r.SubresourceRepository.UpsertAttribute(ctx, a)
}

func TestEngine_DependencyGating(t *testing.T) {
	env := newTestEnv(t, func(u catalog.UnitOfWork) catalog.UnitOfWork {
		return faultyUoW{u, faults{categoryCreate: errors.New("category store offline")}}
	})
	ctx := context.Background()
	env.remote.items = []catalogsync.RemoteItem{remoteItem(1, "10"), remoteItem(2, "20")}

	result := env.engine.TriggerSync(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, catalogsync.SyncStatusFailed, result.Status)
	assert.Zero(t, result.Stats.Total())
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "required dependency map is empty")

	all, err := env.store.Products().FindAllForTenant(ctx, testTenant)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = env.store.Businesses().FindByRemoteID(ctx, testTenant, 20)
	assert.ErrorIs(t, err, shared.ErrNotFound, "the dependency transaction is rolled back")
}

func TestEngine_PartialIsolation(t *testing.T) {
	env := newTestEnv(t, func(u catalog.UnitOfWork) catalog.UnitOfWork {
		return faultyUoW{u, faults{brokenName: "broken"}}
	})
	ctx := context.Background()

	second := remoteItem(2, "20")
	second.Unit = "broken"
	second.Units = []catalogsync.RemoteUnit{{ID: 5, Name: "broken", ConversionValue: decimal.NewFromInt(1)}}
	env.remote.items = []catalogsync.RemoteItem{remoteItem(1, "10"), second, remoteItem(3, "30")}

	result := env.engine.TriggerSync(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, catalogsync.SyncStatusPartial, result.Status)
	assert.Equal(t, catalogsync.Counters{Adds: 2, Errors: 1}, result.Stats.Product())
	assert.Zero(t, result.Stats.Get(catalogsync.KindUnit).Errors, "the failed product's rows are rolled back with it")
	assert.InDelta(t, 1.0/3.0, result.FailureRate, 1e-9)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "master unit")

	env.product(t, 1)
	env.product(t, 3)
	_, err := env.store.Products().FindByRemoteID(ctx, testTenant, 2)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEngine_SubresourceFailureKeepsProduct(t *testing.T) {
	env := newTestEnv(t, func(u catalog.UnitOfWork) catalog.UnitOfWork {
		return faultyUoW{u, faults{brokenName: "broken"}}
	})
	ctx := context.Background()

	item := remoteItem(1, "10")
	item.Attributes = []catalogsync.RemoteAttribute{{Name: "broken", Value: "x"}, {Name: "fine", Value: "y"}}
	env.remote.items = []catalogsync.RemoteItem{item}

	result := env.engine.TriggerSync(ctx)
	assert.Equal(t, catalogsync.SyncStatusPartial, result.Status)
	assert.Equal(t, catalogsync.Counters{Adds: 1}, result.Stats.Product())
	assert.Equal(t, catalogsync.Counters{Adds: 1, Errors: 1}, result.Stats.Get(catalogsync.KindAttribute))
	assert.Empty(t, env.product(t, 1).SubresourceDigest, "a product with failed rows is retried next run")

	again := env.engine.TriggerSync(ctx)
	assert.Equal(t, catalogsync.Counters{Updates: 1}, again.Stats.Product())
}

func TestEngine_FailureThresholdFlipsStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	nameless := remoteItem(1, "10")
	env.remote.items = []catalogsync.RemoteItem{nameless}
	require.True(t, env.engine.TriggerSync(ctx).Success)

	nameless.Name = ""
	env.remote.items = []catalogsync.RemoteItem{nameless}
	result := env.engine.TriggerSync(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, catalogsync.SyncStatusFailed, result.Status)
	assert.Equal(t, 1.0, result.FailureRate)
	assert.Equal(t, catalogsync.Counters{Conflicts: 1}, result.Stats.Product(), "the breaker does not undo counters")
}

func TestEngine_GetSyncHistoryValidatesQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.GetSyncHistory(ctx, HistoryQuery{Direction: "PUSH"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = env.engine.GetSyncHistory(ctx, HistoryQuery{Limit: 500})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	env.engine.TriggerSync(ctx)
	runs, err := env.engine.GetSyncHistory(ctx, HistoryQuery{Direction: "PULL", EntityType: catalogsync.EntityTypeProduct, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = env.engine.GetSyncRun(ctx, uuid.New())
	assert.ErrorIs(t, err, catalogsync.ErrSyncRunNotFound)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		stats    catalogsync.Stats
		attempts int
		rate     float64
		status   catalogsync.SyncStatus
	}{
		{"clean", catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Adds: 4}), 4, 0, catalogsync.SyncStatusSuccess},
		{"nothing to do", catalogsync.NewStats(), 0, 0, catalogsync.SyncStatusSuccess},
		{"sub-resource error", catalogsync.NewStats().
			With(catalogsync.KindProduct, catalogsync.Counters{Adds: 2}).
			With(catalogsync.KindImage, catalogsync.Counters{Errors: 1}), 2, 0, catalogsync.SyncStatusPartial},
		{"at threshold", catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Adds: 1, Errors: 1}), 2, 0.5, catalogsync.SyncStatusPartial},
		{"above threshold", catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Adds: 1, Errors: 1, Conflicts: 1}), 3, 2.0 / 3.0, catalogsync.SyncStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, status := Evaluate(tt.stats, tt.attempts, 0.5)
			assert.InDelta(t, tt.rate, rate, 1e-9)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestRecorder_FinishIsFinal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := NewRecorder(persistence.NewGormSyncRunRepository(env.db.DB))

	runID, err := rec.Start(ctx, testTenant, catalogsync.SyncDirectionPull, catalogsync.EntityTypeProduct, 3)
	require.NoError(t, err)

	stats := catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Adds: 3})
	run, err := rec.Finish(ctx, testTenant, runID, catalogsync.SyncStatusSuccess, stats, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.SyncStatusSuccess, run.Status)

	_, err = rec.Finish(ctx, testTenant, runID, catalogsync.SyncStatusFailed, nil, nil, 1)
	assert.ErrorIs(t, err, catalogsync.ErrSyncRunFinalized)

	_, err = rec.Start(ctx, uuid.Nil, catalogsync.SyncDirectionPull, catalogsync.EntityTypeProduct, 0)
	assert.ErrorIs(t, err, catalogsync.ErrSyncRunInvalidTenant)
}

func TestEngine_SyncItem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.remote.items = []catalogsync.RemoteItem{remoteItem(2, "100"), remoteItem(3, "50")}
	seed := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, seed.Status, seed.Errors)
	seedRun, err := env.engine.GetSyncRun(ctx, seed.RunID)
	require.NoError(t, err)
	require.NotNil(t, seedRun.TombstoneCursor)

	env.remote.items = []catalogsync.RemoteItem{remoteItem(2, "120"), remoteItem(3, "55"), remoteItem(9, "9")}
	env.remote.tombstones = []int64{3}

	t.Run("updates only the requested product", func(t *testing.T) {
		result := env.engine.SyncItem(ctx, 2)
		require.True(t, result.Success, result.Errors)
		assert.Equal(t, catalogsync.SyncStatusSuccess, result.Status)
		assert.Equal(t, catalogsync.Counters{Updates: 1}, result.Stats.Product())
		assert.Equal(t, catalogsync.Counters{Skips: 1}, result.Stats.Get(catalogsync.KindCategory))

		assert.True(t, env.product(t, 2).Price.Equal(decimal.NewFromInt(120)))
		p3 := env.product(t, 3)
		assert.True(t, p3.Price.Equal(decimal.NewFromInt(50)))
		assert.True(t, p3.IsActive(), "a single item run removes nothing")

		run, err := env.engine.GetSyncRun(ctx, result.RunID)
		require.NoError(t, err)
		assert.Equal(t, 1, run.TotalExpected)
		assert.Equal(t, catalogsync.EntityTypeProduct, run.EntityType)
		require.NotNil(t, run.TombstoneCursor)
		assert.True(t, run.TombstoneCursor.Equal(*seedRun.TombstoneCursor), "the cursor is carried over")
	})

	t.Run("adds a new product", func(t *testing.T) {
		result := env.engine.SyncItem(ctx, 9)
		require.True(t, result.Success, result.Errors)
		assert.Equal(t, catalogsync.Counters{Adds: 1}, result.Stats.Product())
		assert.True(t, env.product(t, 9).HasMasterUnit())
	})

	t.Run("unknown remote id fails without writing", func(t *testing.T) {
		result := env.engine.SyncItem(ctx, 99)
		assert.False(t, result.Success)
		assert.Equal(t, catalogsync.SyncStatusFailed, result.Status)
		assert.Zero(t, result.Stats.Total())
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "no such item")

		_, err := env.store.Products().FindByRemoteID(ctx, testTenant, 99)
		assert.Error(t, err)
	})

	t.Run("next full run reads removals from the carried cursor", func(t *testing.T) {
		env.remote.items = []catalogsync.RemoteItem{remoteItem(2, "120"), remoteItem(9, "9")}
		result := env.engine.TriggerSync(ctx)
		require.True(t, result.Success, result.Errors)
		assert.Equal(t, 1, result.Stats.Product().Deletes)

		last := env.remote.sinces[len(env.remote.sinces)-1]
		assert.True(t, last.Equal(*seedRun.TombstoneCursor))
	})
}

func TestEngine_MasterUnitChangeLeavesOneMaster(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	item := richItem(1)
	env.remote.items = []catalogsync.RemoteItem{item}
	require.Equal(t, catalogsync.SyncStatusSuccess, env.engine.TriggerSync(ctx).Status)

	item.MasterUnitID = i64(500)
	env.remote.items = []catalogsync.RemoteItem{item}
	result := env.engine.TriggerSync(ctx)
	require.Equal(t, catalogsync.SyncStatusSuccess, result.Status, result.Errors)
	assert.Equal(t, catalogsync.Counters{Updates: 1}, result.Stats.Product())

	p := env.product(t, 1)
	units, err := env.store.Subresources().FindUnits(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, units, 2)
	masters := 0
	for _, u := range units {
		if u.IsMaster {
			masters++
		}
	}
	assert.Equal(t, 1, masters)
	assert.Equal(t, "box", units[0].Name)
	assert.True(t, units[0].IsMaster)
	require.NotNil(t, p.MasterUnitID)
	assert.Equal(t, units[0].ID, *p.MasterUnitID)
}
