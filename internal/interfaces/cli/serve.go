package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/catalogsync/internal/infrastructure/scheduler"
	"github.com/erp/catalogsync/internal/interfaces/http/handler"
	"github.com/erp/catalogsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API and run the scheduled trigger",
		Long: `Serve the HTTP API for triggering runs and reading run history.

When scheduler.enabled is set the periodic trigger runs in the same process;
runs started by the API and by the scheduler share the run lock.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, rootOpts)
		},
	}
}

func serve(cmd *cobra.Command, rootOpts *RootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := rootOpts.bootstrap(ctx, AppOptions{Remote: true})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	log := app.Logger
	cfg := app.Config

	engine, err := newHTTPEngine(app)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build http engine", err)
	}

	if cfg.Scheduler.Enabled {
		trigger, err := scheduler.NewSyncTrigger(scheduler.SyncTriggerConfig{
			Interval:     cfg.Scheduler.Interval,
			InitialDelay: cfg.Scheduler.InitialDelay,
		}, app.Runner, log.Named("scheduler"))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid scheduler configuration", err)
		}
		if err := trigger.Start(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to start scheduler", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := trigger.Stop(stopCtx); err != nil {
				log.Warn("Scheduler did not stop cleanly", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "server forced to shutdown", err)
	}

	log.Info("Server exited gracefully")
	return nil
}

// newHTTPEngine builds the gin engine with every route of the service
func newHTTPEngine(app *App) (*gin.Engine, error) {
	cfg := app.Config

	mode := gin.DebugMode
	if cfg.App.Env == "production" {
		mode = gin.ReleaseMode
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Mode:           mode,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		TenantID:       app.TenantID,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
	}, app.Logger)
	if err != nil {
		return nil, err
	}

	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(handler.NewCatalogSyncHandler(app.Runner, app.Engine)).
		Register(handler.NewSystemHandler(cfg.App.Name, Version, app.DB)).
		Setup()

	return engine, nil
}

