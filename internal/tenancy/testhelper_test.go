package tenancy

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tenancy-service/internal/model"
	"tenancy-service/pkg/config"
)

// openTestDB opens an isolated in-memory database with the central schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// One pooled connection, or each pool member would get its own empty
	// in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Tenant{},
		&model.Domain{},
		&model.TenantUser{},
	))
	return db
}

// testConfig builds a sqlite-backed configuration whose tenant databases live
// under a per-test temp directory.
func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()

	return &config.Config{
		DB: config.DBConfig{
			Driver: "sqlite",
			DBName: ":memory:",
		},
		Tenancy: config.TenancyConfig{
			Mode:               mode,
			CentralConnection:  "central",
			ConnectionTemplate: "central",
			DatabasePrefix:     "tenant_",
			DataDirectory:      t.TempDir(),
			MigrationsPath:     t.TempDir(),
			BaseDomain:         "example.test",
			ReservedSubdomains: []string{"www", "admin"},
			AutoCreateDatabase: true,
			AutoMigrate:        true,
		},
	}
}
