package persistence

import (
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/infrastructure/config"
	"github.com/erp/catalogsync/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB *gorm.DB
}

// NewDatabase creates a new database connection with the given configuration.
// A nil gormLogger keeps GORM silent.
func NewDatabase(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := openGorm(dialector, gormLogger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// a single connection keeps in-memory databases shared and serializes writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db}, nil
}

// NewSQLiteDatabase opens a SQLite database and creates the schema.
// Used for local runs and tests; dsn may be a file path or a memory URI.
func NewSQLiteDatabase(dsn string, gormLogger logger.Interface) (*Database, error) {
	d, err := NewDatabase(&config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: dsn}, gormLogger)
	if err != nil {
		return nil, err
	}
	if err := d.AutoMigrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func openGorm(dialector gorm.Dialector, gormLogger logger.Interface) (*gorm.DB, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the schema from the GORM models.
// Postgres deployments use the SQL migrations instead.
func (d *Database) AutoMigrate() error {
	err := d.DB.AutoMigrate(
		&catalog.Category{},
		&catalog.Account{},
		&catalog.Business{},
		&catalog.Warehouse{},
		&catalog.Product{},
		&catalog.ProductImage{},
		&catalog.InventoryLevel{},
		&catalog.ProductAttribute{},
		&catalog.ProductUnit{},
		&catalog.PriceBook{},
		&catalog.ProductPrice{},
		&catalog.FormulaItem{},
		&catalog.SerialNumber{},
		&catalog.BatchLot{},
		&catalog.Warranty{},
		&catalog.ShelfPlacement{},
		&catalog.ProductVariant{},
		&models.SyncRunModel{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	for _, stmt := range tenantUniqueIndexes {
		if err := d.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// tenantUniqueIndexes are the natural keys scoped by tenant. The tenant
// column lives on the embedded aggregate root, so these are created here
// with the same definitions as the SQL migrations.
var tenantUniqueIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_category_tenant_remote ON categories(tenant_id, remote_id) WHERE remote_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_category_tenant_normalized ON categories(tenant_id, normalized_name)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_account_tenant_email ON accounts(tenant_id, email)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_account_tenant_phone ON accounts(tenant_id, phone)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_business_tenant_remote ON businesses(tenant_id, remote_id) WHERE remote_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_business_tenant_normalized ON businesses(tenant_id, normalized_name)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_business_tenant_slug ON businesses(tenant_id, slug)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_warehouse_tenant_remote ON warehouses(tenant_id, remote_id) WHERE remote_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_warehouse_tenant_code ON warehouses(tenant_id, code)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_product_tenant_remote ON products(tenant_id, remote_id) WHERE remote_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_product_tenant_code ON products(tenant_id, code)`,
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Stats returns database connection pool statistics and an error if unable to retrieve
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}
