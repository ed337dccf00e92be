package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when sync metrics are built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Metric attribute keys of the sync instruments
var (
	AttrTenantID   = attribute.Key("tenant_id")
	AttrStatus     = attribute.Key("status")
	AttrEntityKind = attribute.Key("entity_kind")
	AttrOutcome    = attribute.Key("outcome")
	AttrTrigger    = attribute.Key("trigger")
)

// RunDurationBuckets are bucket boundaries for whole sync runs (seconds)
var RunDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}

// SyncMetrics holds the instruments recorded by catalog sync runs.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	runsTotal     metric.Int64Counter
	runDuration   metric.Float64Histogram
	entityOutcome metric.Int64Counter
	failureRate   metric.Float64Gauge
	remoteItems   metric.Int64Counter
	lockContended metric.Int64Counter
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &SyncMetrics{}
	var err error
	if m.runsTotal, err = meter.Int64Counter("catalogsync.runs.total",
		metric.WithDescription("Number of finished sync runs"),
		metric.WithUnit("{run}")); err != nil {
		return nil, instrumentError("catalogsync.runs.total", err)
	}
	if m.runDuration, err = meter.Float64Histogram("catalogsync.run.duration",
		metric.WithDescription("Wall time of a sync run"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(RunDurationBuckets...)); err != nil {
		return nil, instrumentError("catalogsync.run.duration", err)
	}
	if m.entityOutcome, err = meter.Int64Counter("catalogsync.entities.total",
		metric.WithDescription("Entities reconciled, by kind and outcome"),
		metric.WithUnit("{entity}")); err != nil {
		return nil, instrumentError("catalogsync.entities.total", err)
	}
	if m.failureRate, err = meter.Float64Gauge("catalogsync.run.failure_rate",
		metric.WithDescription("Failure rate of the last run"),
		metric.WithUnit("1")); err != nil {
		return nil, instrumentError("catalogsync.run.failure_rate", err)
	}
	if m.remoteItems, err = meter.Int64Counter("catalogsync.remote.items",
		metric.WithDescription("Items fetched from the remote catalog"),
		metric.WithUnit("{item}")); err != nil {
		return nil, instrumentError("catalogsync.remote.items", err)
	}
	if m.lockContended, err = meter.Int64Counter("catalogsync.lock.contended",
		metric.WithDescription("Triggers rejected because a run was in progress"),
		metric.WithUnit("{trigger}")); err != nil {
		return nil, instrumentError("catalogsync.lock.contended", err)
	}
	return m, nil
}

func instrumentError(name string, err error) error {
	return fmt.Errorf("create instrument %s: %w", name, err)
}

// RecordRun records a finished run
func (m *SyncMetrics) RecordRun(ctx context.Context, tenantID uuid.UUID, status string, d time.Duration, failureRate float64) {
	if m == nil {
		return
	}
	tenant := AttrTenantID.String(tenantID.String())
	attrs := metric.WithAttributes(tenant, AttrStatus.String(status))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
	m.failureRate.Record(ctx, failureRate, metric.WithAttributes(tenant))
}

// RecordEntities adds n entities of kind that ended with outcome (adds, updates, ...)
func (m *SyncMetrics) RecordEntities(ctx context.Context, tenantID uuid.UUID, kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entityOutcome.Add(ctx, int64(n), metric.WithAttributes(
		AttrTenantID.String(tenantID.String()),
		AttrEntityKind.String(kind),
		AttrOutcome.String(outcome),
	))
}

// RecordRemoteItems counts items returned by a remote fetch
func (m *SyncMetrics) RecordRemoteItems(ctx context.Context, tenantID uuid.UUID, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remoteItems.Add(ctx, int64(n), metric.WithAttributes(AttrTenantID.String(tenantID.String())))
}

// RecordLockContended counts a trigger rejected by the run lock
func (m *SyncMetrics) RecordLockContended(ctx context.Context, tenantID uuid.UUID, trigger string) {
	if m == nil {
		return
	}
	m.lockContended.Add(ctx, 1, metric.WithAttributes(
		AttrTenantID.String(tenantID.String()),
		AttrTrigger.String(trigger),
	))
}
