package cli

import (
	"context"
	"errors"
	"fmt"

	appsync "github.com/erp/catalogsync/internal/application/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/config"
	"github.com/erp/catalogsync/internal/infrastructure/lock"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/infrastructure/persistence"
	"github.com/erp/catalogsync/internal/infrastructure/remotecatalog"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// App holds the wired components shared by every command
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *persistence.Database
	TenantID uuid.UUID
	Engine   *appsync.Engine
	Runner   *appsync.Runner

	meters  *telemetry.MeterProvider
	closers []func(context.Context) error
}

// AppOptions selects the optional parts of the wiring
type AppOptions struct {
	// Remote builds the remote catalog client; commands that only read
	// history start without remote credentials.
	Remote bool
}

// NewApp wires configuration, logging, telemetry, the database, the engine
// and the run lock. Close releases everything NewApp opened.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	base, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	app.Logger = base
	app.onClose(func(context.Context) error {
		logger.Sync(base)
		return nil
	})

	if err := app.initTelemetry(ctx); err != nil {
		return nil, err
	}

	tenantID, err := cfg.Sync.Tenant()
	if err != nil {
		return nil, err
	}
	app.TenantID = tenantID

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	engineCfg := appsync.Config{
		TenantID:            tenantID,
		FailureThreshold:    cfg.Sync.FailureThreshold,
		ProductTxTimeout:    cfg.Sync.ProductTxTimeout,
		DependencyTxTimeout: cfg.Sync.DependencyTxTimeout,
		MaxErrorMessages:    cfg.Sync.MaxErrorMessages,
		PlaceholderImage:    cfg.Sync.PlaceholderImage,
	}
	uow := persistence.NewGormUnitOfWork(app.DB.DB)
	runs := persistence.NewGormSyncRunRepository(app.DB.DB)

	if opts.Remote {
		client, err := remotecatalog.NewClient(cfg.Remote, app.Logger.Named("remotecatalog"))
		if err != nil {
			return nil, err
		}
		app.Engine = appsync.NewEngine(engineCfg, client, uow, runs, nil)
	} else {
		app.Engine = appsync.NewEngine(engineCfg, nil, uow, runs, nil)
	}

	runLock, err := app.newRunLock()
	if err != nil {
		return nil, err
	}
	app.Runner = appsync.NewRunner(app.Engine, runLock, cfg.Sync.LockTTL)

	if err := app.initMetrics(); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	t := a.Config.Telemetry

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	a.onClose(tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.Enabled && t.MetricsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	a.onClose(mp.Shutdown)
	a.meters = mp

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.Enabled && t.LogsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init logger provider: %w", err)
	}
	a.onClose(lp.Shutdown)

	otelCore := telemetry.NewZapOTELCore(t.ServiceName, lp, logger.ParseLevel(a.Config.Log.Level))
	a.Logger = telemetry.BridgeLogger(a.Logger, otelCore)
	return nil
}

func (a *App) initDatabase() error {
	cfg := a.Config
	gormLog := logger.NewGormLogger(a.Logger, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)

	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.DB = db
	a.onClose(func(context.Context) error { return db.Close() })

	dbSystem := "postgresql"
	if cfg.Database.Driver == config.DriverSQLite {
		dbSystem = "sqlite"
		// sqlite deployments have no migration step
		if err := db.AutoMigrate(); err != nil {
			return err
		}
	}

	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, a.Logger)
	if err := plugin.Register(db.DB); err != nil {
		return fmt.Errorf("register db tracing: %w", err)
	}

	a.Logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))
	return nil
}

func (a *App) newRunLock() (appsync.RunLock, error) {
	if a.Config.Redis.Host == "" {
		a.Logger.Info("Redis not configured, using in-process run lock")
		l := lock.NewInMemoryRunLock()
		a.onClose(func(context.Context) error { return l.Close() })
		return l, nil
	}

	l, err := lock.NewRedisRunLock(a.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.onClose(func(context.Context) error { return l.Close() })
	a.Logger.Info("Using redis run lock", zap.String("addr", a.Config.Redis.Addr()))
	return l, nil
}

func (a *App) initMetrics() error {
	metrics, err := telemetry.NewSyncMetrics(a.meters.Meter("catalogsync"))
	if err != nil {
		return fmt.Errorf("init sync metrics: %w", err)
	}
	a.Engine.SetMetrics(metrics)
	a.Runner.SetMetrics(metrics)
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
