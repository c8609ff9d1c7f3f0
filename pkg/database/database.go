package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tenancy-service/internal/model"
	"tenancy-service/pkg/config"
)

var DB *gorm.DB

// Initialize opens the central database connection and migrates the central
// schema (tenants, domains, users, memberships live here in every tenancy
// mode).
func Initialize(cfg *config.Config) error {
	db, err := Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to central database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	if cfg.DB.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	}
	if cfg.DB.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	}
	if cfg.DB.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	}

	// AutoMigrate will automatically create or update the central tables
	if err := db.AutoMigrate(
		&model.User{},
		&model.Tenant{},
		&model.Domain{},
		&model.TenantUser{},
	); err != nil {
		return fmt.Errorf("failed to migrate central database: %w", err)
	}

	DB = db
	return nil
}

// Open connects to a database described by a connection config. Exposed so
// the multi-database manager and tests can open extra connections with the
// same driver dispatch.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
	}

	switch cfg.Driver {
	case "postgres":
		pgConfig := postgres.Config{
			DSN:                  cfg.GetDSN(),
			PreferSimpleProtocol: true, // Disables implicit prepared statement usage
		}
		return gorm.Open(postgres.New(pgConfig), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(cfg.GetDSN()), gormCfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.GetDSN()), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// GetDB returns the central database instance
func GetDB() *gorm.DB {
	return DB
}
