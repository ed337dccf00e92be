package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appsync "github.com/erp/catalogsync/internal/application/catalogsync"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSyncRunner is a mock implementation of SyncRunner
type MockSyncRunner struct {
	mock.Mock
}

func (m *MockSyncRunner) Run(ctx context.Context, trigger string) (appsync.SyncResult, error) {
	args := m.Called(ctx, trigger)
	return args.Get(0).(appsync.SyncResult), args.Error(1)
}

func (m *MockSyncRunner) RunItem(ctx context.Context, trigger string, remoteID int64) (appsync.SyncResult, error) {
	args := m.Called(ctx, trigger, remoteID)
	return args.Get(0).(appsync.SyncResult), args.Error(1)
}

// MockSyncHistory is a mock implementation of SyncHistory
type MockSyncHistory struct {
	mock.Mock
}

func (m *MockSyncHistory) GetSyncHistory(ctx context.Context, q appsync.HistoryQuery) ([]*catalogsync.SyncRun, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*catalogsync.SyncRun), args.Error(1)
}

func (m *MockSyncHistory) GetSyncRun(ctx context.Context, runID uuid.UUID) (*catalogsync.SyncRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.SyncRun), args.Error(1)
}

func setupCatalogSyncRouter(runner *MockSyncRunner, history *MockSyncHistory) *gin.Engine {
	r := gin.New()
	NewCatalogSyncHandler(runner, history).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func finishedRun(t *testing.T, status catalogsync.SyncStatus) *catalogsync.SyncRun {
	t.Helper()
	run, err := catalogsync.NewSyncRun(uuid.New(), catalogsync.SyncDirectionPull, catalogsync.EntityTypeProduct)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, run.Start(2, now))
	require.NoError(t, run.Finish(status, catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Adds: 2}), nil, 0, now.Add(time.Second)))
	return run
}

func TestCatalogSyncHandler_TriggerSync(t *testing.T) {
	runner := new(MockSyncRunner)
	result := appsync.SyncResult{
		RunID:   uuid.New(),
		Success: true,
		Status:  catalogsync.SyncStatusSuccess,
		Stats:   catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Adds: 1, Skips: 4}),
		Errors:  []string{},
	}
	runner.On("Run", mock.Anything, appsync.TriggerHTTP).Return(result, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/catalog-sync/runs", nil)
	setupCatalogSyncRouter(runner, new(MockSyncHistory)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool               `json:"success"`
		Data    appsync.SyncResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, result.RunID, body.Data.RunID)
	assert.Equal(t, catalogsync.SyncStatusSuccess, body.Data.Status)
	assert.Equal(t, 4, body.Data.Stats.Product().Skips)
	runner.AssertExpectations(t)
}

func TestCatalogSyncHandler_TriggerSync_FailedRunIsStillOK(t *testing.T) {
	runner := new(MockSyncRunner)
	runner.On("Run", mock.Anything, appsync.TriggerHTTP).Return(appsync.SyncResult{
		RunID:  uuid.New(),
		Status: catalogsync.SyncStatusFailed,
		Stats:  catalogsync.NewStats(),
		Errors: []string{"catalogsync: remote catalog fetch failed"},
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/catalog-sync/runs", nil)
	setupCatalogSyncRouter(runner, new(MockSyncHistory)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"FAILED"`)
}

func TestCatalogSyncHandler_TriggerSync_InProgress(t *testing.T) {
	runner := new(MockSyncRunner)
	runner.On("Run", mock.Anything, appsync.TriggerHTTP).Return(appsync.SyncResult{}, catalogsync.ErrSyncInProgress)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/catalog-sync/runs", nil)
	setupCatalogSyncRouter(runner, new(MockSyncHistory)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeSyncInProgress, resp.Error.Code)
}

func TestCatalogSyncHandler_TriggerSync_LockError(t *testing.T) {
	runner := new(MockSyncRunner)
	runner.On("Run", mock.Anything, appsync.TriggerHTTP).Return(appsync.SyncResult{}, errors.New("acquire run lock: redis down"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/catalog-sync/runs", nil)
	setupCatalogSyncRouter(runner, new(MockSyncHistory)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis down")
}

func TestCatalogSyncHandler_SyncItem(t *testing.T) {
	runner := new(MockSyncRunner)
	result := appsync.SyncResult{
		RunID:   uuid.New(),
		Success: true,
		Status:  catalogsync.SyncStatusSuccess,
		Stats:   catalogsync.StatsDelta(catalogsync.KindProduct, catalogsync.Counters{Updates: 1}),
		Errors:  []string{},
	}
	runner.On("RunItem", mock.Anything, appsync.TriggerHTTP, int64(42)).Return(result, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/catalog-sync/items/42", nil)
	setupCatalogSyncRouter(runner, new(MockSyncHistory)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body APIResponse[appsync.SyncResult]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, result.RunID, body.Data.RunID)
	assert.Equal(t, 1, body.Data.Stats.Product().Updates)
	runner.AssertExpectations(t)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestCatalogSyncHandler_SyncItem_InvalidID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-3"} {
		t.Run(id, func(t *testing.T) {
			runner := new(MockSyncRunner)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/catalog-sync/items/"+id, nil)
			setupCatalogSyncRouter(runner, new(MockSyncHistory)).ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			runner.AssertNotCalled(t, "RunItem", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCatalogSyncHandler_SyncItem_InProgress(t *testing.T) {
	runner := new(MockSyncRunner)
	runner.On("RunItem", mock.Anything, appsync.TriggerHTTP, int64(7)).Return(appsync.SyncResult{}, catalogsync.ErrSyncInProgress)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/catalog-sync/items/7", nil)
	setupCatalogSyncRouter(runner, new(MockSyncHistory)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeSyncInProgress, resp.Error.Code)
}

func TestCatalogSyncHandler_ListRuns(t *testing.T) {
	history := new(MockSyncHistory)
	runs := []*catalogsync.SyncRun{finishedRun(t, catalogsync.SyncStatusSuccess), finishedRun(t, catalogsync.SyncStatusPartial)}
	history.On("GetSyncHistory", mock.Anything, appsync.HistoryQuery{EntityType: "product", Direction: "PULL", Limit: 2}).Return(runs, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/catalog-sync/runs?entity_type=product&direction=PULL&limit=2", nil)
	setupCatalogSyncRouter(new(MockSyncRunner), history).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []dto.SyncRunResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, runs[0].ID.String(), body.Data[0].ID)
	assert.Equal(t, "PARTIAL", body.Data[1].Status)
	assert.Equal(t, int64(1000), body.Data[0].DurationMs)
	history.AssertExpectations(t)
}

func TestCatalogSyncHandler_ListRuns_InvalidQuery(t *testing.T) {
	t.Run("rejected by the service", func(t *testing.T) {
		history := new(MockSyncHistory)
		history.On("GetSyncHistory", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: Direction must be one of [PULL]", shared.ErrInvalidInput))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/catalog-sync/runs?direction=PUSH", nil)
		setupCatalogSyncRouter(new(MockSyncRunner), history).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "PULL")
	})

	t.Run("unparseable limit", func(t *testing.T) {
		history := new(MockSyncHistory)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/catalog-sync/runs?limit=ten", nil)
		setupCatalogSyncRouter(new(MockSyncRunner), history).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		history.AssertNotCalled(t, "GetSyncHistory", mock.Anything, mock.Anything)
	})
}

func TestCatalogSyncHandler_GetRun(t *testing.T) {
	run := finishedRun(t, catalogsync.SyncStatusSuccess)
	missing := uuid.New()

	history := new(MockSyncHistory)
	history.On("GetSyncRun", mock.Anything, run.ID).Return(run, nil)
	history.On("GetSyncRun", mock.Anything, missing).Return(nil, catalogsync.ErrSyncRunNotFound)
	router := setupCatalogSyncRouter(new(MockSyncRunner), history)

	tests := []struct {
		name           string
		id             string
		expectedStatus int
	}{
		{"found", run.ID.String(), http.StatusOK},
		{"not found", missing.String(), http.StatusNotFound},
		{"malformed id", "not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/catalog-sync/runs/"+tt.id, nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
