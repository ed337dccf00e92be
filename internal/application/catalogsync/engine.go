// Package catalogsync reconciles the remote product catalog into the local
// catalog store. A run fetches the remote catalog, maps every item to its
// canonical form, resolves the categories, businesses and warehouses the
// items reference, classifies each item against the local catalog and
// applies the decisions one product transaction at a time.
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine defaults
const (
	DefaultFailureThreshold    = 0.5
	DefaultProductTxTimeout    = 30 * time.Second
	DefaultDependencyTxTimeout = 2 * time.Minute
	DefaultMaxErrorMessages    = 200
)

// Config holds the engine settings
type Config struct {
	TenantID            uuid.UUID
	FailureThreshold    float64
	ProductTxTimeout    time.Duration
	DependencyTxTimeout time.Duration
	MaxErrorMessages    int
	PlaceholderImage    string
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ProductTxTimeout <= 0 {
		c.ProductTxTimeout = DefaultProductTxTimeout
	}
	if c.DependencyTxTimeout <= 0 {
		c.DependencyTxTimeout = DefaultDependencyTxTimeout
	}
	if c.MaxErrorMessages <= 0 {
		c.MaxErrorMessages = DefaultMaxErrorMessages
	}
	return c
}

// SyncResult is what a caller of TriggerSync gets back
type SyncResult struct {
	RunID       uuid.UUID              `json:"run_id"`
	Success     bool                   `json:"success"`
	Status      catalogsync.SyncStatus `json:"status"`
	Stats       catalogsync.Stats      `json:"stats"`
	Errors      []string               `json:"errors"`
	FailureRate float64                `json:"failure_rate"`
}

// HistoryQuery filters GetSyncHistory
type HistoryQuery struct {
	EntityType string `validate:"omitempty,max=50"`
	Direction  string `validate:"omitempty,oneof=PULL"`
	Status     string `validate:"omitempty,oneof=PENDING RUNNING SUCCESS PARTIAL FAILED"`
	Limit      int    `validate:"gte=0,lte=200"`
}

// Engine runs reconciliations for one tenant
type Engine struct {
	cfg      Config
	remote   catalogsync.RemoteCatalog
	uow      catalog.UnitOfWork
	runs     catalogsync.SyncRunRepository
	mapper   *Mapper
	resolver *Resolver
	upserter *Upserter
	recorder *Recorder
	metrics  *telemetry.SyncMetrics
	validate *validator.Validate
}

// NewEngine creates an engine. A nil hasher uses bcrypt at its default cost.
func NewEngine(cfg Config, remote catalogsync.RemoteCatalog, uow catalog.UnitOfWork, runs catalogsync.SyncRunRepository, hasher PasswordHasher) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		remote:   remote,
		uow:      uow,
		runs:     runs,
		mapper:   NewMapper(cfg.PlaceholderImage),
		resolver: NewResolver(uow, hasher, cfg.DependencyTxTimeout),
		upserter: NewUpserter(uow, cfg.ProductTxTimeout),
		recorder: NewRecorder(runs),
		validate: validator.New(),
	}
}

// SetMetrics enables run metrics
func (e *Engine) SetMetrics(m *telemetry.SyncMetrics) {
	e.metrics = m
}

// TenantID returns the tenant the engine syncs
func (e *Engine) TenantID() uuid.UUID {
	return e.cfg.TenantID
}

// TriggerSync runs one reconciliation to completion. The run is detached
// from ctx cancellation; only a fatal precondition ends it early.
func (e *Engine) TriggerSync(ctx context.Context) SyncResult {
	ctx = context.WithoutCancel(ctx)
	ctx = logger.WithTenantID(ctx, e.cfg.TenantID)
	ctx, span := telemetry.StartSpan(ctx, "catalogsync.trigger_sync",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, e.cfg.TenantID.String()),
	)
	defer span.End()

	started := time.Now()
	result := e.run(ctx)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunID, result.RunID.String(),
		telemetry.SpanAttrStatus, string(result.Status),
	)
	if result.Success {
		telemetry.SetOK(span)
	} else {
		telemetry.RecordError(span, errors.New(string(result.Status)))
	}
	e.recordMetrics(ctx, result, time.Since(started))
	return result
}

func (e *Engine) run(ctx context.Context) SyncResult {
	tenantID := e.cfg.TenantID

	// Removals made while the catalog pages are read must show up in the
	// next run, so the next cursor is taken before fetching.
	since := e.tombstoneCursor(ctx)
	fetchStarted := time.Now()

	items, err := e.fetch(ctx)
	if err != nil {
		return e.abort(ctx, 0, fmt.Errorf("%w: %v", catalogsync.ErrFetchFailed, err))
	}
	tombstones, err := e.remote.FetchTombstones(ctx, since)
	if err != nil {
		return e.abort(ctx, len(items), fmt.Errorf("%w: tombstones: %v", catalogsync.ErrFetchFailed, err))
	}

	products := make([]catalogsync.CanonicalProduct, 0, len(items))
	canonicalIDs := make(map[int64]struct{}, len(items))
	for _, item := range items {
		products = append(products, e.mapper.Map(item))
		canonicalIDs[item.ID] = struct{}{}
	}

	runID, err := e.recorder.Start(ctx, tenantID, catalogsync.SyncDirectionPull, catalogsync.EntityTypeProduct, len(products))
	if err != nil {
		logger.L(ctx).Error("failed to record sync run start", zap.Error(err))
		return SyncResult{Status: catalogsync.SyncStatusFailed, Stats: catalogsync.NewStats(), Errors: []string{err.Error()}}
	}
	ctx = logger.WithRunID(ctx, runID)
	log := logger.L(ctx)
	log.Info("sync run started", zap.Int("items", len(products)), zap.Int("tombstones", len(tombstones)))

	locals, err := e.uow.Reader().Products().FindAllForTenant(ctx, tenantID)
	if err != nil {
		return e.fail(ctx, runID, fmt.Errorf("%w: %v", catalogsync.ErrLocalIndexFailed, err))
	}
	ix := NewLocalIndex(locals)

	deps, stats, err := e.resolve(ctx, products)
	if err != nil {
		return e.fail(ctx, runID, err)
	}

	errs := newErrorList(e.cfg.MaxErrorMessages)
	attempts := 0
	for i := range products {
		c := &products[i]
		d := Classify(c, ix, deps)
		out := e.upserter.Apply(ctx, tenantID, c, d, deps)
		stats = stats.Merge(out.Stats)
		errs.add(out.Errors...)
		if out.Product != nil {
			ix.Put(out.Product)
		}
		attempts++
		log.Debug("product reconciled",
			zap.Int64("remote_id", c.RemoteID),
			zap.String("classification", d.Classification.String()),
			zap.Strings("changed", d.ChangedFields()),
			zap.Bool("failed", out.Failed()),
		)
	}

	next := fetchStarted
	for _, d := range ClassifyDeletions(ix, tombstones, canonicalIDs) {
		out := e.upserter.Apply(ctx, tenantID, nil, d, deps)
		stats = stats.Merge(out.Stats)
		errs.add(out.Errors...)
		if out.Product != nil {
			ix.Put(out.Product)
		}
		if out.Failed() {
			// keep the window open so the removal is retried
			next = since
		}
		attempts++
		log.Debug("product removed", zap.Int64("remote_id", d.RemoteID), zap.Bool("failed", out.Failed()))
	}

	rate, status := Evaluate(stats, attempts, e.cfg.FailureThreshold)
	return e.finish(ctx, runID, status, stats, errs.list(), rate, WithTombstoneCursor(next))
}

// SyncItem reconciles one remote product through the same mapping,
// dependency resolution and classification as a full run. Nothing is
// removed and the tombstone cursor of the last completed run is carried
// over unchanged. Like TriggerSync it is detached from ctx cancellation.
func (e *Engine) SyncItem(ctx context.Context, remoteID int64) SyncResult {
	ctx = context.WithoutCancel(ctx)
	ctx = logger.WithTenantID(ctx, e.cfg.TenantID)
	ctx, span := telemetry.StartSpan(ctx, "catalogsync.sync_item",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, e.cfg.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrRemoteID, remoteID),
	)
	defer span.End()

	started := time.Now()
	result := e.runItem(ctx, remoteID)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunID, result.RunID.String(),
		telemetry.SpanAttrStatus, string(result.Status),
	)
	if result.Success {
		telemetry.SetOK(span)
	} else {
		telemetry.RecordError(span, errors.New(string(result.Status)))
	}
	e.recordMetrics(ctx, result, time.Since(started))
	return result
}

func (e *Engine) runItem(ctx context.Context, remoteID int64) SyncResult {
	tenantID := e.cfg.TenantID
	cursor := e.tombstoneCursor(ctx)

	item, err := e.remote.FetchItem(ctx, remoteID)
	if err != nil {
		return e.abort(ctx, 1, fmt.Errorf("%w: item %d: %v", catalogsync.ErrFetchFailed, remoteID, err))
	}
	if unknownItem(item) {
		return e.abort(ctx, 1, fmt.Errorf("%w: %d", catalogsync.ErrRemoteItemNotFound, remoteID))
	}
	products := []catalogsync.CanonicalProduct{e.mapper.Map(*item)}

	runID, err := e.recorder.Start(ctx, tenantID, catalogsync.SyncDirectionPull, catalogsync.EntityTypeProduct, 1)
	if err != nil {
		logger.L(ctx).Error("failed to record sync run start", zap.Error(err))
		return SyncResult{Status: catalogsync.SyncStatusFailed, Stats: catalogsync.NewStats(), Errors: []string{err.Error()}}
	}
	ctx = logger.WithRunID(ctx, runID)
	logger.L(ctx).Info("single item sync started", zap.Int64("remote_id", remoteID))

	locals, err := e.uow.Reader().Products().FindAllForTenant(ctx, tenantID)
	if err != nil {
		return e.fail(ctx, runID, fmt.Errorf("%w: %v", catalogsync.ErrLocalIndexFailed, err))
	}
	ix := NewLocalIndex(locals)

	deps, stats, err := e.resolve(ctx, products)
	if err != nil {
		return e.fail(ctx, runID, err)
	}

	c := &products[0]
	d := Classify(c, ix, deps)
	out := e.upserter.Apply(ctx, tenantID, c, d, deps)
	stats = stats.Merge(out.Stats)
	errs := newErrorList(e.cfg.MaxErrorMessages)
	errs.add(out.Errors...)
	logger.L(ctx).Debug("product reconciled",
		zap.Int64("remote_id", c.RemoteID),
		zap.String("classification", d.Classification.String()),
		zap.Strings("changed", d.ChangedFields()),
		zap.Bool("failed", out.Failed()),
	)

	rate, status := Evaluate(stats, 1, e.cfg.FailureThreshold)
	return e.finish(ctx, runID, status, stats, errs.list(), rate, WithTombstoneCursor(cursor))
}

// unknownItem reports the shape FetchItem returns for an id the remote
// does not know
func unknownItem(item *catalogsync.RemoteItem) bool {
	return item == nil || (strings.TrimSpace(item.Code) == "" &&
		strings.TrimSpace(item.Name) == "" &&
		strings.TrimSpace(item.FullName) == "")
}

func (e *Engine) fetch(ctx context.Context) ([]catalogsync.RemoteItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalogsync.fetch", telemetry.WithAttribute(telemetry.SpanAttrPhase, "fetch"))
	defer span.End()

	items, err := e.remote.FetchAll(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	e.metrics.RecordRemoteItems(ctx, e.cfg.TenantID, len(items))
	telemetry.SetAttributes(span, telemetry.SpanAttrItemCount, len(items))
	telemetry.SetOK(span)
	return items, nil
}

func (e *Engine) resolve(ctx context.Context, products []catalogsync.CanonicalProduct) (catalogsync.DependencyMaps, catalogsync.Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalogsync.resolve", telemetry.WithAttribute(telemetry.SpanAttrPhase, "resolve"))
	defer span.End()

	deps, stats, err := e.resolver.Resolve(ctx, e.cfg.TenantID, products)
	if err != nil {
		telemetry.RecordError(span, err)
		return deps, stats, err
	}
	telemetry.SetOK(span)
	return deps, stats, nil
}

// tombstoneCursor is the cursor left by the last completed run; zero when
// there is none
func (e *Engine) tombstoneCursor(ctx context.Context) time.Time {
	last, err := e.runs.FindLastCompleted(ctx, e.cfg.TenantID, catalogsync.EntityTypeProduct)
	if err != nil {
		if !errors.Is(err, catalogsync.ErrSyncRunNotFound) {
			logger.L(ctx).Warn("failed to load last completed run", zap.Error(err))
		}
		return time.Time{}
	}
	if last.TombstoneCursor == nil {
		return time.Time{}
	}
	return *last.TombstoneCursor
}

// abort records a run that failed before it could start
func (e *Engine) abort(ctx context.Context, total int, cause error) SyncResult {
	runID, err := e.recorder.Start(ctx, e.cfg.TenantID, catalogsync.SyncDirectionPull, catalogsync.EntityTypeProduct, total)
	if err != nil {
		logger.L(ctx).Error("sync run aborted and could not be recorded", zap.NamedError("cause", cause), zap.Error(err))
		return SyncResult{Status: catalogsync.SyncStatusFailed, Stats: catalogsync.NewStats(), Errors: []string{cause.Error(), err.Error()}}
	}
	return e.fail(logger.WithRunID(ctx, runID), runID, cause)
}

// fail finishes a run hit by a fatal precondition: FAILED with zero stats
func (e *Engine) fail(ctx context.Context, runID uuid.UUID, cause error) SyncResult {
	logger.L(ctx).Error("sync run aborted", zap.Error(cause))
	return e.finish(ctx, runID, catalogsync.SyncStatusFailed, catalogsync.NewStats(), []string{cause.Error()}, 0)
}

func (e *Engine) finish(ctx context.Context, runID uuid.UUID, status catalogsync.SyncStatus, stats catalogsync.Stats, errs []string, rate float64, opts ...FinishOption) SyncResult {
	result := SyncResult{
		RunID:       runID,
		Success:     status != catalogsync.SyncStatusFailed,
		Status:      status,
		Stats:       stats,
		Errors:      errs,
		FailureRate: rate,
	}
	if _, err := e.recorder.Finish(ctx, e.cfg.TenantID, runID, status, stats, errs, rate, opts...); err != nil {
		logger.L(ctx).Error("failed to record sync run finish", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
	}

	p := stats.Product()
	logger.L(ctx).Info("sync run finished",
		zap.String("status", string(status)),
		zap.Float64("failure_rate", rate),
		zap.Int("adds", p.Adds),
		zap.Int("updates", p.Updates),
		zap.Int("skips", p.Skips),
		zap.Int("conflicts", p.Conflicts),
		zap.Int("deletes", p.Deletes),
		zap.Int("errors", stats.TotalErrors()),
	)
	return result
}

func (e *Engine) recordMetrics(ctx context.Context, r SyncResult, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordRun(ctx, e.cfg.TenantID, string(r.Status), d, r.FailureRate)
	for _, kind := range r.Stats.Kinds() {
		c := r.Stats.Get(kind)
		k := string(kind)
		e.metrics.RecordEntities(ctx, e.cfg.TenantID, k, "adds", c.Adds)
		e.metrics.RecordEntities(ctx, e.cfg.TenantID, k, "updates", c.Updates)
		e.metrics.RecordEntities(ctx, e.cfg.TenantID, k, "skips", c.Skips)
		e.metrics.RecordEntities(ctx, e.cfg.TenantID, k, "conflicts", c.Conflicts)
		e.metrics.RecordEntities(ctx, e.cfg.TenantID, k, "deletes", c.Deletes)
		e.metrics.RecordEntities(ctx, e.cfg.TenantID, k, "errors", c.Errors)
	}
}

// Evaluate computes the failure rate, (product errors + conflicts) over
// attempts, and the run status it implies. Above threshold the run is
// FAILED; any other error or conflict makes it PARTIAL.
func Evaluate(stats catalogsync.Stats, attempts int, threshold float64) (float64, catalogsync.SyncStatus) {
	p := stats.Product()
	var rate float64
	if attempts > 0 {
		rate = float64(p.Errors+p.Conflicts) / float64(attempts)
	}
	switch {
	case rate > threshold:
		return rate, catalogsync.SyncStatusFailed
	case stats.TotalErrors() > 0 || p.Conflicts > 0:
		return rate, catalogsync.SyncStatusPartial
	}
	return rate, catalogsync.SyncStatusSuccess
}

// GetSyncHistory lists the tenant's runs, newest first
func (e *Engine) GetSyncHistory(ctx context.Context, q HistoryQuery) ([]*catalogsync.SyncRun, error) {
	if err := e.validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return e.runs.FindHistory(ctx, e.cfg.TenantID, catalogsync.HistoryFilter{
		EntityType: q.EntityType,
		Direction:  catalogsync.SyncDirection(q.Direction),
		Status:     catalogsync.SyncStatus(q.Status),
		Limit:      q.Limit,
	})
}

// GetSyncRun returns one run of the tenant
func (e *Engine) GetSyncRun(ctx context.Context, runID uuid.UUID) (*catalogsync.SyncRun, error) {
	return e.runs.FindByID(ctx, e.cfg.TenantID, runID)
}

// errorList keeps the first max messages and counts the rest
type errorList struct {
	max     int
	items   []string
	dropped int
}

func newErrorList(max int) *errorList {
	return &errorList{max: max, items: []string{}}
}

func (l *errorList) add(msgs ...string) {
	for _, m := range msgs {
		if len(l.items) < l.max {
			l.items = append(l.items, m)
			continue
		}
		l.dropped++
	}
}

func (l *errorList) list() []string {
	if l.dropped == 0 {
		return l.items
	}
	return append(l.items, fmt.Sprintf("%d more errors omitted", l.dropped))
}
