package tenancy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func writeMigration(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func appliedMigrations(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var names []string
	require.NoError(t, db.Raw("SELECT name FROM schema_migrations ORDER BY name").Scan(&names).Error)
	return names
}

func TestMigratorAppliesInTimestampOrder(t *testing.T) {
	dir := t.TempDir()
	// Written out of order on purpose; timestamps decide.
	writeMigration(t, dir, "20250102000000_add_index.sql",
		"CREATE INDEX idx_orders_ref ON orders (ref);")
	writeMigration(t, dir, "20250101000000_create_orders.sql",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY, ref TEXT);")

	db := openTestDB(t)
	m := NewMigrator()

	require.Equal(t, 0, m.Migrate(db, MigrateOptions{Path: dir}))
	require.Equal(t, []string{
		"20250101000000_create_orders.sql",
		"20250102000000_add_index.sql",
	}, appliedMigrations(t, db))
	require.True(t, db.Migrator().HasTable("orders"))
}

func TestMigratorSkipsApplied(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20250101000000_create_orders.sql",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY);")

	db := openTestDB(t)
	m := NewMigrator()

	require.Equal(t, 0, m.Migrate(db, MigrateOptions{Path: dir}))
	// A second run must not re-execute the CREATE TABLE.
	require.Equal(t, 0, m.Migrate(db, MigrateOptions{Path: dir}))
	require.Len(t, appliedMigrations(t, db), 1)
}

func TestMigratorIgnoresDownFiles(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20250101000000_create_orders.sql",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY);")
	writeMigration(t, dir, "20250101000000_create_orders.down.sql",
		"DROP TABLE orders;")

	db := openTestDB(t)
	require.Equal(t, 0, NewMigrator().Migrate(db, MigrateOptions{Path: dir}))
	require.Equal(t, []string{"20250101000000_create_orders.sql"}, appliedMigrations(t, db))
}

func TestMigratorEmptyDirectory(t *testing.T) {
	db := openTestDB(t)
	require.Equal(t, 0, NewMigrator().Migrate(db, MigrateOptions{Path: t.TempDir()}))
	require.Equal(t, 0, NewMigrator().Migrate(db, MigrateOptions{Path: filepath.Join(t.TempDir(), "missing")}))
}

func TestMigratorRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "create_orders.sql", "CREATE TABLE orders (id INTEGER PRIMARY KEY);")

	db := openTestDB(t)
	require.Equal(t, 1, NewMigrator().Migrate(db, MigrateOptions{Path: dir}))
}

func TestMigratorFreshRequiresForce(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t)
	m := NewMigrator()

	require.Equal(t, 1, m.Migrate(db, MigrateOptions{Path: dir, Fresh: true}))
	require.Equal(t, 0, m.Migrate(db, MigrateOptions{Path: dir, Fresh: true, Force: true}))
}

func TestMigratorFreshDropsExistingTables(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20250101000000_create_orders.sql",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY);")

	db := openTestDB(t)
	require.NoError(t, db.Exec("CREATE TABLE leftovers (id INTEGER PRIMARY KEY)").Error)

	require.Equal(t, 0, NewMigrator().Migrate(db, MigrateOptions{Path: dir, Fresh: true, Force: true}))
	require.False(t, db.Migrator().HasTable("leftovers"))
	require.True(t, db.Migrator().HasTable("orders"))
}

func TestMigratorRollback(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20250101000000_create_orders.sql",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY);")
	writeMigration(t, dir, "20250101000000_create_orders.down.sql",
		"DROP TABLE orders;")
	writeMigration(t, dir, "20250102000000_create_items.sql",
		"CREATE TABLE items (id INTEGER PRIMARY KEY);")
	writeMigration(t, dir, "20250102000000_create_items.down.sql",
		"DROP TABLE items;")

	db := openTestDB(t)
	m := NewMigrator()
	require.Equal(t, 0, m.Migrate(db, MigrateOptions{Path: dir}))

	// Default rolls back just the newest migration.
	require.Equal(t, 0, m.Rollback(db, MigrateOptions{Path: dir}))
	require.False(t, db.Migrator().HasTable("items"))
	require.True(t, db.Migrator().HasTable("orders"))
	require.Equal(t, []string{"20250101000000_create_orders.sql"}, appliedMigrations(t, db))

	require.Equal(t, 0, m.Rollback(db, MigrateOptions{Path: dir, Steps: 1}))
	require.False(t, db.Migrator().HasTable("orders"))
	require.Empty(t, appliedMigrations(t, db))
}

func TestMigratorRollbackWithoutDownFile(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20250101000000_create_orders.sql",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY);")

	db := openTestDB(t)
	m := NewMigrator()
	require.Equal(t, 0, m.Migrate(db, MigrateOptions{Path: dir}))
	require.Equal(t, 1, m.Rollback(db, MigrateOptions{Path: dir}))

	// The failed rollback must not lose the applied record.
	require.Equal(t, []string{"20250101000000_create_orders.sql"}, appliedMigrations(t, db))
}

func TestMigratorSeedFailure(t *testing.T) {
	db := openTestDB(t)
	require.Equal(t, 1, NewMigrator().Seed(db, filepath.Join(t.TempDir(), "missing.sql")))
}
