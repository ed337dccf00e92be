package catalogsync

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Triggers recorded on runs and lock metrics
const (
	TriggerManual    = "manual"
	TriggerHTTP      = "http"
	TriggerScheduler = "scheduler"
)

// DefaultLockTTL bounds how long a crashed run can keep the lock
const DefaultLockTTL = time.Hour

// RunLock grants one owner at a time the right to run a key
type RunLock interface {
	// Acquire takes key for owner; false means someone else holds it
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Refresh extends key by ttl; false means owner no longer holds it
	Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release frees key if owner still holds it
	Release(ctx context.Context, key, owner string) error
}

// Syncer runs one reconciliation
type Syncer interface {
	TenantID() uuid.UUID
	TriggerSync(ctx context.Context) SyncResult
	SyncItem(ctx context.Context, remoteID int64) SyncResult
}

// Runner serializes runs of a tenant behind a RunLock
type Runner struct {
	syncer  Syncer
	lock    RunLock
	ttl     time.Duration
	metrics *telemetry.SyncMetrics
}

// NewRunner creates a runner. A non-positive ttl uses DefaultLockTTL.
func NewRunner(syncer Syncer, lock RunLock, ttl time.Duration) *Runner {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Runner{syncer: syncer, lock: lock, ttl: ttl}
}

// SetMetrics enables lock contention metrics
func (r *Runner) SetMetrics(m *telemetry.SyncMetrics) {
	r.metrics = m
}

// LockKey is the lock key of a tenant's catalog runs
func LockKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("catalogsync:run:%s", tenantID)
}

// Run triggers a sync unless one is already running, in which case it
// returns ErrSyncInProgress.
func (r *Runner) Run(ctx context.Context, trigger string) (SyncResult, error) {
	return r.locked(ctx, trigger, r.syncer.TriggerSync)
}

// RunItem refreshes one remote product under the same lock as full runs
func (r *Runner) RunItem(ctx context.Context, trigger string, remoteID int64) (SyncResult, error) {
	return r.locked(ctx, trigger, func(ctx context.Context) SyncResult {
		return r.syncer.SyncItem(ctx, remoteID)
	})
}

func (r *Runner) locked(ctx context.Context, trigger string, run func(context.Context) SyncResult) (SyncResult, error) {
	tenantID := r.syncer.TenantID()
	ctx = logger.WithTrigger(ctx, trigger)
	key := LockKey(tenantID)
	owner := uuid.NewString()

	ok, err := r.lock.Acquire(ctx, key, owner, r.ttl)
	if err != nil {
		return SyncResult{}, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		r.metrics.RecordLockContended(ctx, tenantID, trigger)
		logger.L(ctx).Info("sync run skipped, another run holds the lock")
		return SyncResult{}, catalogsync.ErrSyncInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(context.WithoutCancel(ctx), key, owner, stop)
	}()
	defer func() {
		close(stop)
		<-done
		if err := r.lock.Release(context.WithoutCancel(ctx), key, owner); err != nil {
			logger.L(ctx).Warn("failed to release run lock", zap.Error(err))
		}
	}()

	return run(ctx), nil
}

// keepAlive refreshes the lock every third of its ttl until stop closes,
// so a run longer than the ttl keeps the tenant to itself.
func (r *Runner) keepAlive(ctx context.Context, key, owner string, stop <-chan struct{}) {
	interval := r.ttl / 3
	if interval <= 0 {
		interval = r.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := r.lock.Refresh(ctx, key, owner, r.ttl)
			if err != nil {
				logger.L(ctx).Warn("failed to refresh run lock", zap.Error(err))
				continue
			}
			if !ok {
				logger.L(ctx).Error("run lock lost before the run finished")
				return
			}
		}
	}
}
