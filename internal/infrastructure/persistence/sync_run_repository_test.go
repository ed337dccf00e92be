package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(t *testing.T, tenantID uuid.UUID) *catalogsync.SyncRun {
	t.Helper()
	run, err := catalogsync.NewSyncRun(tenantID, catalogsync.SyncDirectionPull, catalogsync.EntityTypeProduct)
	require.NoError(t, err)
	return run
}

func TestGormSyncRunRepository_Lifecycle(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormSyncRunRepository(db.DB)
	ctx := context.Background()
	tenantID := uuid.New()

	run := newRun(t, tenantID)
	require.NoError(t, repo.Create(ctx, run))

	started := time.Now()
	require.NoError(t, run.Start(3, started))
	require.NoError(t, repo.Update(ctx, run))

	cursor := started.Add(-time.Second)
	require.NoError(t, run.SetTombstoneCursor(cursor))
	stats := catalogsync.NewStats().With(catalogsync.KindProduct, catalogsync.Counters{Adds: 1, Updates: 1, Conflicts: 1})
	require.NoError(t, run.Finish(catalogsync.SyncStatusPartial, stats, []string{"product 3: conflict"}, 0.33, started.Add(time.Second)))
	require.NoError(t, repo.Update(ctx, run))

	found, err := repo.FindByID(ctx, tenantID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.SyncStatusPartial, found.Status)
	assert.Equal(t, 3, found.TotalExpected)
	assert.Equal(t, 1, found.Stats.Product().Adds)
	assert.Equal(t, 1, found.Stats.Product().Conflicts)
	assert.Equal(t, []string{"product 3: conflict"}, found.Errors)
	assert.InDelta(t, 0.33, found.FailureRate, 0.0001)
	require.NotNil(t, found.FinishedAt)
	require.NotNil(t, found.TombstoneCursor)
	assert.True(t, found.TombstoneCursor.Equal(cursor))

	t.Run("finished run is never overwritten", func(t *testing.T) {
		stale := *found
		stale.Status = catalogsync.SyncStatusFailed
		err := repo.Update(ctx, &stale)
		assert.ErrorIs(t, err, catalogsync.ErrSyncRunFinalized)

		again, err := repo.FindByID(ctx, tenantID, run.ID)
		require.NoError(t, err)
		assert.Equal(t, catalogsync.SyncStatusPartial, again.Status)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := repo.FindByID(ctx, tenantID, uuid.New())
		assert.ErrorIs(t, err, catalogsync.ErrSyncRunNotFound)
		err = repo.Update(ctx, newRun(t, tenantID))
		assert.ErrorIs(t, err, catalogsync.ErrSyncRunNotFound)
	})
}

func TestGormSyncRunRepository_History(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormSyncRunRepository(db.DB)
	ctx := context.Background()
	tenantID := uuid.New()
	base := time.Now().Add(-time.Hour)

	statuses := []catalogsync.SyncStatus{
		catalogsync.SyncStatusSuccess,
		catalogsync.SyncStatusFailed,
		catalogsync.SyncStatusPartial,
		catalogsync.SyncStatusFailed,
	}
	ids := make([]uuid.UUID, len(statuses))
	for i, status := range statuses {
		run := newRun(t, tenantID)
		at := base.Add(time.Duration(i) * time.Minute)
		run.CreatedAt = at
		require.NoError(t, run.Start(1, at))
		require.NoError(t, run.Finish(status, nil, nil, 0, at.Add(time.Second)))
		require.NoError(t, repo.Create(ctx, run))
		ids[i] = run.ID
	}
	require.NoError(t, repo.Create(ctx, newRun(t, uuid.New())))

	t.Run("newest first within tenant", func(t *testing.T) {
		runs, err := repo.FindHistory(ctx, tenantID, catalogsync.HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 4)
		assert.Equal(t, ids[3], runs[0].ID)
		assert.Equal(t, ids[0], runs[3].ID)
	})

	t.Run("filters and limit", func(t *testing.T) {
		runs, err := repo.FindHistory(ctx, tenantID, catalogsync.HistoryFilter{
			EntityType: catalogsync.EntityTypeProduct,
			Direction:  catalogsync.SyncDirectionPull,
			Status:     catalogsync.SyncStatusFailed,
			Limit:      1,
		})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, ids[3], runs[0].ID)

		runs, err = repo.FindHistory(ctx, tenantID, catalogsync.HistoryFilter{EntityType: "order"})
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("last completed skips failed runs", func(t *testing.T) {
		last, err := repo.FindLastCompleted(ctx, tenantID, catalogsync.EntityTypeProduct)
		require.NoError(t, err)
		assert.Equal(t, ids[2], last.ID)

		_, err = repo.FindLastCompleted(ctx, uuid.New(), catalogsync.EntityTypeProduct)
		assert.ErrorIs(t, err, catalogsync.ErrSyncRunNotFound)
	})
}

func TestGormSyncRunRepository_FindByID_Postgres(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormSyncRunRepository(db.DB)
	tenantID := uuid.New()
	runID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "sync_runs" WHERE tenant_id = \$1 AND id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "direction", "entity_type", "status", "total_expected",
			"failure_rate", "stats", "errors", "started_at", "finished_at", "created_at", "updated_at",
		}).AddRow(
			runID.String(), tenantID.String(), "PULL", "product", "SUCCESS", 2,
			0.0, `{"product":{"adds":2}}`, `[]`, now, now, now, now,
		))

	run, err := repo.FindByID(context.Background(), tenantID, runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, catalogsync.SyncStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Stats.Product().Adds)
	assert.Empty(t, run.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}
