package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/erp/catalogsync/internal/infrastructure/persistence"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// DatabaseChecker reports database health
type DatabaseChecker interface {
	Ping() error
	Stats() (persistence.ConnectionStats, error)
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	db        DatabaseChecker
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, db DatabaseChecker) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		db:        db,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers the system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/system")
	g.GET("/info", h.GetSystemInfo)
	g.GET("/ping", h.Ping)
	g.GET("/health", h.Health)
}

// SystemInfoResponse represents the system information response
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name      string `json:"name" example:"catalogsync"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemSystemInfo
// @Summary      Get system information
// @Description  Returns basic system information including version and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// PingResponse represents the ping response
// @name HandlerPingResponse
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Ping the API
// @Description  Simple ping endpoint to check if the API is responsive
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[PingResponse]
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// HealthResponse represents the health check response
// @name HandlerHealthResponse
type HealthResponse struct {
	Status   string                       `json:"status" example:"healthy"`
	Database string                       `json:"database" example:"ok"`
	Pool     *persistence.ConnectionStats `json:"pool,omitempty"`
}

// Health godoc
// @ID           healthSystem
// @Summary      Check service health
// @Description  Pings the database; an unreachable database is a 503
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[HealthResponse]
// @Failure      503 {object} APIResponse[HealthResponse]
// @Router       /system/health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Data: HealthResponse{Status: "unhealthy", Database: err.Error()}})
		return
	}
	resp := HealthResponse{Status: "healthy", Database: "ok"}
	if stats, err := h.db.Stats(); err == nil {
		resp.Pool = &stats
	}
	h.Success(c, resp)
}
