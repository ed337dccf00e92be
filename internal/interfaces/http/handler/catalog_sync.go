package handler

import (
	"context"
	"errors"
	"strconv"

	appsync "github.com/erp/catalogsync/internal/application/catalogsync"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncRunner starts a sync run under the tenant's run lock
type SyncRunner interface {
	Run(ctx context.Context, trigger string) (appsync.SyncResult, error)
	RunItem(ctx context.Context, trigger string, remoteID int64) (appsync.SyncResult, error)
}

// SyncHistory reads recorded runs
type SyncHistory interface {
	GetSyncHistory(ctx context.Context, q appsync.HistoryQuery) ([]*catalogsync.SyncRun, error)
	GetSyncRun(ctx context.Context, runID uuid.UUID) (*catalogsync.SyncRun, error)
}

// CatalogSyncHandler exposes catalog sync runs over HTTP
type CatalogSyncHandler struct {
	BaseHandler
	runner  SyncRunner
	history SyncHistory
}

// NewCatalogSyncHandler creates a new CatalogSyncHandler
func NewCatalogSyncHandler(runner SyncRunner, history SyncHistory) *CatalogSyncHandler {
	return &CatalogSyncHandler{runner: runner, history: history}
}

// RegisterRoutes registers the catalog sync routes
func (h *CatalogSyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/catalog-sync")
	g.POST("/runs", h.TriggerSync)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.POST("/items/:remote_id", h.SyncItem)
}

// TriggerSync godoc
// @ID           triggerCatalogSync
// @Summary      Trigger a catalog sync
// @Description  Runs a full reconciliation of the remote catalog to completion and returns its result.
// @Description  A FAILED run is still a 200; only a held run lock is a 409.
// @Tags         catalog-sync
// @Produce      json
// @Success      200 {object} APIResponse[appsync.SyncResult]
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /catalog-sync/runs [post]
func (h *CatalogSyncHandler) TriggerSync(c *gin.Context) {
	result, err := h.runner.Run(c.Request.Context(), appsync.TriggerHTTP)
	h.respondRun(c, result, err)
}

// SyncItem godoc
// @ID           syncCatalogItem
// @Summary      Sync one remote product
// @Description  Fetches one product from the remote catalog and reconciles it. Nothing is removed.
// @Description  An id the remote does not know finishes the run FAILED.
// @Tags         catalog-sync
// @Produce      json
// @Param        remote_id path int true "Remote product ID"
// @Success      200 {object} APIResponse[appsync.SyncResult]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /catalog-sync/items/{remote_id} [post]
func (h *CatalogSyncHandler) SyncItem(c *gin.Context) {
	remoteID, err := strconv.ParseInt(c.Param("remote_id"), 10, 64)
	if err != nil || remoteID <= 0 {
		h.BadRequest(c, "Invalid remote product ID")
		return
	}

	result, err := h.runner.RunItem(c.Request.Context(), appsync.TriggerHTTP, remoteID)
	h.respondRun(c, result, err)
}

func (h *CatalogSyncHandler) respondRun(c *gin.Context, result appsync.SyncResult, err error) {
	if err != nil {
		if errors.Is(err, catalogsync.ErrSyncInProgress) {
			h.Conflict(c, dto.ErrCodeSyncInProgress, "A catalog sync is already running")
			return
		}
		logger.L(c.Request.Context()).Error("catalog sync could not start", zap.Error(err))
		h.InternalError(c, "Catalog sync could not start")
		return
	}
	h.Success(c, result)
}

// ListRuns godoc
// @ID           listCatalogSyncRuns
// @Summary      List catalog sync runs
// @Description  Lists the tenant's recorded runs, newest first
// @Tags         catalog-sync
// @Produce      json
// @Param        entity_type query string false "Entity type" example(product)
// @Param        direction   query string false "Direction" Enums(PULL)
// @Param        status      query string false "Run status" Enums(PENDING, RUNNING, SUCCESS, PARTIAL, FAILED)
// @Param        limit       query int    false "Maximum runs returned" minimum(0) maximum(200)
// @Success      200 {object} APIResponse[[]dto.SyncRunResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /catalog-sync/runs [get]
func (h *CatalogSyncHandler) ListRuns(c *gin.Context) {
	var req dto.SyncHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	runs, err := h.history.GetSyncHistory(c.Request.Context(), req.Query())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewSyncRunListResponse(runs))
}

// GetRun godoc
// @ID           getCatalogSyncRun
// @Summary      Get a catalog sync run
// @Description  Returns one recorded run of the tenant
// @Tags         catalog-sync
// @Produce      json
// @Param        id path string true "Run ID" format(uuid)
// @Success      200 {object} APIResponse[dto.SyncRunResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /catalog-sync/runs/{id} [get]
func (h *CatalogSyncHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, err := h.history.GetSyncRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, catalogsync.ErrSyncRunNotFound) {
			h.NotFound(c, "Sync run not found")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewSyncRunResponse(run))
}
