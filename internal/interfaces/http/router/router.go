package router

import (
	"time"

	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/interfaces/http/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// EngineConfig holds the middleware settings of the gin engine
type EngineConfig struct {
	Mode           string // gin mode: debug, release or test
	ServiceName    string
	TracingEnabled bool
	TenantID       uuid.UUID
	TrustedProxies []string
	// CORSOrigins lists the browser origins allowed to call the API.
	// Empty disables CORS handling; "*" allows any origin.
	CORSOrigins []string
}

// NewEngine creates a gin engine with the standard middleware chain:
// panic recovery, tracing, request logging, span attributes and span error marking
func NewEngine(cfg EngineConfig, log *zap.Logger) (*gin.Engine, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(logger.Recovery(log))
	if len(cfg.CORSOrigins) > 0 {
		engine.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.TracingEnabled,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingAttributeInjector(cfg.TenantID))
	engine.Use(middleware.SpanErrorMarker())

	return engine, nil
}

// corsConfig allows the admin console to trigger runs and read history
func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 1 && origins[0] == "*" {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	c.AddAllowHeaders("Authorization", logger.RequestIDHeader)
	c.AddExposeHeaders(logger.RequestIDHeader)
	c.MaxAge = 12 * time.Hour
	return c
}
