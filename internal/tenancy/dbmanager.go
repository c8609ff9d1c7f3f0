package tenancy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenancy-service/internal/model"
	"tenancy-service/pkg/config"
	"tenancy-service/pkg/database"
	"tenancy-service/pkg/logger"
)

var (
	// ErrTemplateNotFound means the configured connection template does not
	// exist. This is a deployment misconfiguration and must reach the
	// operator.
	ErrTemplateNotFound = errors.New("tenancy: connection template not found")

	// ErrUnsupportedDriver means the template connection uses a driver the
	// manager cannot provision databases for.
	ErrUnsupportedDriver = errors.New("tenancy: unsupported database driver")

	// ErrInvalidDatabaseName guards DDL statements against identifiers that
	// cannot be safely quoted.
	ErrInvalidDatabaseName = errors.New("tenancy: invalid database name")
)

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ProvisionResult reports the outcome of a database create/delete. The error
// is carried as data instead of being returned, because provisioning runs in
// batch flows that aggregate per-tenant outcomes and must not abort on one
// failure.
type ProvisionResult struct {
	Database string
	Err      error
}

// OK reports whether the operation succeeded.
func (r ProvisionResult) OK() bool {
	return r.Err == nil
}

// MultiDatabaseManager owns the lifecycle of tenant physical databases:
// create, delete, migrate, seed, existence checks, and the "tenant" logical
// connection alias. One manager instance serves one request/worker at a time;
// concurrent goroutines must each construct their own manager (see
// ManagerFactory) and may nest scopes within it through Run.
type MultiDatabaseManager struct {
	tenancy   config.TenancyConfig
	templates map[string]config.DBConfig

	central *gorm.DB
	runner  MigrationRunner
	events  *Dispatcher

	connections map[string]*gorm.DB
	current     *model.Tenant
	initialized bool
}

// ManagerFactory builds a fresh manager over shared configuration. The
// manager's current-tenant slot and connection alias are unsynchronized
// mutable state, so every concurrent scope (request goroutine, CLI
// invocation, service call) gets its own instance from the factory.
type ManagerFactory func() *MultiDatabaseManager

// NewMultiDatabaseManager wires a manager over the central connection. The
// central DB config doubles as the default connection template under the name
// the tenancy config declares for it.
func NewMultiDatabaseManager(cfg *config.Config, central *gorm.DB, runner MigrationRunner, events *Dispatcher) *MultiDatabaseManager {
	if runner == nil {
		runner = NewMigrator()
	}
	m := &MultiDatabaseManager{
		tenancy:     cfg.Tenancy,
		templates:   map[string]config.DBConfig{cfg.Tenancy.CentralConnection: cfg.DB},
		central:     central,
		runner:      runner,
		events:      events,
		connections: make(map[string]*gorm.DB),
	}
	return m
}

// RegisterConnectionTemplate adds a named connection configuration that the
// tenancy config may select as the template for tenant connections.
func (m *MultiDatabaseManager) RegisterConnectionTemplate(name string, db config.DBConfig) {
	m.templates[name] = db
}

// Current returns the tenant the manager is initialized for, or nil.
func (m *MultiDatabaseManager) Current() *model.Tenant {
	return m.current
}

// Initialized reports whether a tenant connection is active.
func (m *MultiDatabaseManager) Initialized() bool {
	return m.initialized
}

// Central returns the central database connection.
func (m *MultiDatabaseManager) Central() *gorm.DB {
	return m.central
}

// TenantDB returns the connection behind the "tenant" alias, or nil before
// Initialize.
func (m *MultiDatabaseManager) TenantDB() *gorm.DB {
	return m.connections[TenantConnectionName]
}

// Initialize points the "tenant" connection alias at the tenant's physical
// database. Calling it again for the same tenant is a no-op; for a different
// tenant it reconfigures the alias. Must precede any tenant-database
// operation.
func (m *MultiDatabaseManager) Initialize(tenant *model.Tenant) error {
	if m.initialized && m.current != nil && m.current.ID == tenant.ID {
		return nil
	}

	if err := m.configureTenantConnection(tenant); err != nil {
		return err
	}

	m.current = tenant
	m.initialized = true
	return nil
}

// End disconnects the tenant alias and clears the manager state. Safe to call
// at any time.
func (m *MultiDatabaseManager) End() {
	if !m.initialized {
		return
	}
	m.closeConnection(TenantConnectionName)
	m.current = nil
	m.initialized = false
}

// Run executes fn with the manager initialized for the given tenant, then
// restores whatever tenant was active before, even when fn fails or panics.
// This is the safe entry point for nested or sequential tenant work;
// Initialize/End are the lower-level primitives underneath it.
func (m *MultiDatabaseManager) Run(tenant *model.Tenant, fn func(db *gorm.DB) error) error {
	prev, prevInitialized := m.current, m.initialized

	defer func() {
		if prevInitialized && prev != nil {
			if err := m.Initialize(prev); err != nil {
				logger.GetLogger().Error("failed to restore previous tenant connection",
					zap.String("tenant_id", prev.ID), zap.Error(err))
				m.End()
			}
		} else {
			m.End()
		}
	}()

	if err := m.Initialize(tenant); err != nil {
		return err
	}
	return fn(m.TenantDB())
}

// configureTenantConnection rebuilds the "tenant" alias from the template
// connection, overriding only the database identifier. The previous pooled
// handle is closed so the next use connects fresh.
func (m *MultiDatabaseManager) configureTenantConnection(tenant *model.Tenant) error {
	template, ok := m.templates[m.tenancy.ConnectionTemplate]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, m.tenancy.ConnectionTemplate)
	}

	database := tenant.GetDatabaseName()
	if template.Driver == "sqlite" {
		database = m.databaseFilePath(database)
	}

	m.closeConnection(TenantConnectionName)

	clone := template
	clone.DBName = database
	db, err := openTenantConnection(clone)
	if err != nil {
		return fmt.Errorf("tenancy: connecting tenant database %q: %w", database, err)
	}
	m.connections[TenantConnectionName] = db
	return nil
}

// CreateDatabase provisions the tenant's physical database against the
// central connection. Idempotent per driver: IF NOT EXISTS for mysql, a
// catalog existence check for postgres, file touch for sqlite. Failures are
// logged and reported in the result, never raised.
func (m *MultiDatabaseManager) CreateDatabase(tenant *model.Tenant) ProvisionResult {
	name := tenant.GetDatabaseName()
	result := ProvisionResult{Database: name}

	template, ok := m.templates[m.tenancy.ConnectionTemplate]
	if !ok {
		result.Err = fmt.Errorf("%w: %q", ErrTemplateNotFound, m.tenancy.ConnectionTemplate)
		return result
	}

	if err := validateDatabaseName(name); err != nil {
		result.Err = err
		return result
	}

	switch template.Driver {
	case "mysql":
		result.Err = m.central.Exec(fmt.Sprintf(
			"CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", name,
		)).Error
	case "postgres":
		// Postgres has no IF NOT EXISTS for databases; probe the catalog
		// first to stay idempotent.
		var count int64
		err := m.central.Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", name).Scan(&count).Error
		if err == nil && count == 0 {
			err = m.central.Exec(fmt.Sprintf(`CREATE DATABASE "%s"`, name)).Error
		}
		result.Err = err
	case "sqlite":
		result.Err = touchFile(m.databaseFilePath(name))
	default:
		result.Err = fmt.Errorf("%w: %q", ErrUnsupportedDriver, template.Driver)
	}

	if result.Err != nil {
		logger.GetLogger().Error("tenant database creation failed",
			zap.String("tenant_id", tenant.ID),
			zap.String("database", name),
			zap.Error(result.Err))
		return result
	}

	if m.events != nil {
		m.events.Dispatch(Event{Name: EventTenantDatabaseCreated, Tenant: tenant})
	}
	return result
}

// DeleteDatabase drops the tenant's physical database. For postgres, live
// backend connections are terminated first since they block the drop. Same
// report-not-raise contract as CreateDatabase.
func (m *MultiDatabaseManager) DeleteDatabase(tenant *model.Tenant) ProvisionResult {
	name := tenant.GetDatabaseName()
	result := ProvisionResult{Database: name}

	template, ok := m.templates[m.tenancy.ConnectionTemplate]
	if !ok {
		result.Err = fmt.Errorf("%w: %q", ErrTemplateNotFound, m.tenancy.ConnectionTemplate)
		return result
	}

	if err := validateDatabaseName(name); err != nil {
		result.Err = err
		return result
	}

	// Never drop through a live alias pointing at the same database.
	if m.initialized && m.current != nil && m.current.ID == tenant.ID {
		m.End()
	}

	switch template.Driver {
	case "mysql":
		result.Err = m.central.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)).Error
	case "postgres":
		err := m.central.Exec(
			"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = ? AND pid <> pg_backend_pid()",
			name,
		).Error
		if err == nil {
			var count int64
			err = m.central.Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", name).Scan(&count).Error
			if err == nil && count > 0 {
				err = m.central.Exec(fmt.Sprintf(`DROP DATABASE "%s"`, name)).Error
			}
		}
		result.Err = err
	case "sqlite":
		path := m.databaseFilePath(name)
		if _, statErr := os.Stat(path); statErr == nil {
			result.Err = os.Remove(path)
		} else if !os.IsNotExist(statErr) {
			result.Err = statErr
		}
	default:
		result.Err = fmt.Errorf("%w: %q", ErrUnsupportedDriver, template.Driver)
	}

	if result.Err != nil {
		logger.GetLogger().Error("tenant database deletion failed",
			zap.String("tenant_id", tenant.ID),
			zap.String("database", name),
			zap.Error(result.Err))
	}
	return result
}

// DatabaseExists probes the central connection for a database. Unsupported
// drivers and probe errors report false rather than failing.
func (m *MultiDatabaseManager) DatabaseExists(name string) bool {
	template, ok := m.templates[m.tenancy.ConnectionTemplate]
	if !ok {
		return false
	}

	switch template.Driver {
	case "mysql":
		var count int64
		if err := m.central.Raw(
			"SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", name,
		).Scan(&count).Error; err != nil {
			return false
		}
		return count > 0
	case "postgres":
		var count int64
		if err := m.central.Raw(
			"SELECT COUNT(*) FROM pg_database WHERE datname = ?", name,
		).Scan(&count).Error; err != nil {
			return false
		}
		return count > 0
	case "sqlite":
		_, err := os.Stat(m.databaseFilePath(name))
		return err == nil
	default:
		return false
	}
}

// MigrateTenant runs the tenant migration set against the tenant's database.
// Defaults (tenant alias, configured migrations path, force for plain
// non-destructive runs) are merged under the caller's options, caller
// winning: a Fresh run still needs the caller's explicit Force, exactly as
// the runner demands. The runner's exit code is
// returned uninterpreted; retrying or aborting on non-zero is the caller's
// call. The error return covers only connection setup.
func (m *MultiDatabaseManager) MigrateTenant(tenant *model.Tenant, opts MigrateOptions) (int, error) {
	if err := m.Initialize(tenant); err != nil {
		return 1, err
	}
	merged := m.mergeOptions(opts)
	return m.runner.Migrate(m.TenantDB(), merged), nil
}

// RollbackTenant rolls back tenant migrations, same contract as
// MigrateTenant.
func (m *MultiDatabaseManager) RollbackTenant(tenant *model.Tenant, opts MigrateOptions) (int, error) {
	if err := m.Initialize(tenant); err != nil {
		return 1, err
	}
	merged := m.mergeOptions(opts)
	return m.runner.Rollback(m.TenantDB(), merged), nil
}

// SeedTenant runs the configured seeder against the tenant database. A
// missing seeder is a successful no-op.
func (m *MultiDatabaseManager) SeedTenant(tenant *model.Tenant, seeder string) (int, error) {
	if seeder == "" {
		seeder = m.tenancy.Seeder
	}
	if seeder == "" {
		return 0, nil
	}
	if err := m.Initialize(tenant); err != nil {
		return 1, err
	}
	return m.runner.Seed(m.TenantDB(), seeder), nil
}

func (m *MultiDatabaseManager) mergeOptions(opts MigrateOptions) MigrateOptions {
	if opts.Path == "" {
		opts.Path = m.tenancy.MigrationsPath
	}
	// Plain runs are non-interactive; destructive (Fresh) runs keep the
	// caller's explicit force decision so the runner's guard still applies.
	if !opts.Fresh {
		opts.Force = true
	}
	return opts
}

func (m *MultiDatabaseManager) databaseFilePath(name string) string {
	return filepath.Join(m.tenancy.DataDirectory, name+".sqlite")
}

func (m *MultiDatabaseManager) closeConnection(name string) {
	db, ok := m.connections[name]
	if !ok || db == nil {
		delete(m.connections, name)
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	delete(m.connections, name)
}

func openTenantConnection(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres", "mysql", "sqlite":
		return database.Open(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

func validateDatabaseName(name string) error {
	if name == "" || !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}
	return nil
}

func touchFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}
