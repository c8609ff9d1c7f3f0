package tenancy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tenancy-service/internal/model"
	"tenancy-service/pkg/config"
)

func newTestService(t *testing.T, cfg *config.Config) (*Service, *gorm.DB) {
	t.Helper()
	central := openTestDB(t)
	newManager := func() *MultiDatabaseManager {
		return NewMultiDatabaseManager(cfg, central, NewMigrator(), nil)
	}
	return NewService(cfg, central, newManager, NewDispatcher()), central
}

func createOwner(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	user := &model.User{Email: "owner@example.test", Name: "Owner"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCreateTenantSingleMode(t *testing.T) {
	cfg := testConfig(t, "single")
	svc, central := newTestService(t, cfg)
	owner := createOwner(t, central)

	tenant, err := svc.CreateTenant(CreateTenantInput{Name: "Acme Rockets", OwnerID: owner.ID})
	require.NoError(t, err)
	require.NotEmpty(t, tenant.ID)
	require.Equal(t, "acme-rockets", tenant.Slug)
	// Single mode derives no physical database name.
	require.Empty(t, tenant.Database)

	// The primary subdomain is bound and verified.
	var domain model.Domain
	require.NoError(t, central.Where("tenant_id = ?", tenant.ID).First(&domain).Error)
	require.Equal(t, "acme-rockets.example.test", domain.Domain)
	require.True(t, domain.IsPrimary)
	require.True(t, domain.IsVerified)

	// The owner becomes a member with the owner role.
	require.True(t, tenant.IsOwner(central, owner))
	require.True(t, tenant.IsMember(central, owner))
}

func TestCreateTenantReservedSlug(t *testing.T) {
	cfg := testConfig(t, "single")
	svc, _ := newTestService(t, cfg)

	_, err := svc.CreateTenant(CreateTenantInput{Name: "Admin"})
	require.ErrorIs(t, err, ErrReservedSubdomain)
}

func TestCreateTenantDuplicateSlug(t *testing.T) {
	cfg := testConfig(t, "single")
	svc, _ := newTestService(t, cfg)

	_, err := svc.CreateTenant(CreateTenantInput{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.CreateTenant(CreateTenantInput{Name: "ACME!"})
	require.ErrorIs(t, err, ErrSlugTaken)
}

func TestCreateTenantMultiModeProvisions(t *testing.T) {
	cfg := testConfig(t, "multi")
	writeMigration(t, cfg.Tenancy.MigrationsPath, "20250101000000_create_projects.sql",
		"CREATE TABLE projects (id INTEGER PRIMARY KEY, name TEXT);")

	svc, _ := newTestService(t, cfg)

	tenant, err := svc.CreateTenant(CreateTenantInput{Name: "Acme Rockets"})
	require.NoError(t, err)
	require.Equal(t, "tenant_acme_rockets", tenant.Database)
	require.True(t, svc.Manager().DatabaseExists("tenant_acme_rockets"))

	// Auto-migration ran against the fresh tenant database.
	err = svc.Manager().Run(tenant, func(db *gorm.DB) error {
		require.True(t, db.Migrator().HasTable("projects"))
		return nil
	})
	require.NoError(t, err)
}

func TestCreateTenantSkipDatabase(t *testing.T) {
	cfg := testConfig(t, "multi")
	svc, _ := newTestService(t, cfg)

	tenant, err := svc.CreateTenant(CreateTenantInput{Name: "Acme", SkipDatabase: true})
	require.NoError(t, err)
	require.False(t, svc.Manager().DatabaseExists(tenant.Database))
}

func TestFindTenantByIDOrSlug(t *testing.T) {
	cfg := testConfig(t, "single")
	svc, _ := newTestService(t, cfg)

	created, err := svc.CreateTenant(CreateTenantInput{Name: "Acme"})
	require.NoError(t, err)

	byID, err := svc.FindTenant(created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, byID.ID)

	bySlug, err := svc.FindTenant("acme")
	require.NoError(t, err)
	require.Equal(t, created.ID, bySlug.ID)

	_, err = svc.FindTenant("missing")
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestDeleteTenantSoft(t *testing.T) {
	cfg := testConfig(t, "single")
	svc, central := newTestService(t, cfg)

	tenant, err := svc.CreateTenant(CreateTenantInput{Name: "Acme"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTenant("acme", false, false))

	// Soft-deleted tenants no longer resolve but the row survives.
	_, err = svc.FindTenant("acme")
	require.ErrorIs(t, err, ErrTenantNotFound)

	var count int64
	require.NoError(t, central.Unscoped().Model(&model.Tenant{}).
		Where("id = ?", tenant.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestDeleteTenantForce(t *testing.T) {
	cfg := testConfig(t, "multi")
	svc, central := newTestService(t, cfg)
	owner := createOwner(t, central)

	tenant, err := svc.CreateTenant(CreateTenantInput{Name: "Acme", OwnerID: owner.ID})
	require.NoError(t, err)
	require.True(t, svc.Manager().DatabaseExists(tenant.Database))

	require.NoError(t, svc.DeleteTenant("acme", true, false))

	var count int64
	require.NoError(t, central.Unscoped().Model(&model.Tenant{}).
		Where("id = ?", tenant.ID).Count(&count).Error)
	require.Zero(t, count)

	require.NoError(t, central.Unscoped().Model(&model.Domain{}).
		Where("tenant_id = ?", tenant.ID).Count(&count).Error)
	require.Zero(t, count)

	require.False(t, svc.Manager().DatabaseExists(tenant.Database))
}

func TestDeleteTenantForceKeepDatabase(t *testing.T) {
	cfg := testConfig(t, "multi")
	svc, _ := newTestService(t, cfg)

	tenant, err := svc.CreateTenant(CreateTenantInput{Name: "Acme"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTenant("acme", true, true))
	require.True(t, svc.Manager().DatabaseExists(tenant.Database))
}

func TestDeleteTenantEvents(t *testing.T) {
	cfg := testConfig(t, "single")
	central := openTestDB(t)
	events := NewDispatcher()
	svc := NewService(cfg, central, nil, events)

	var deleted []string
	events.Subscribe(EventTenantDeleted, func(e Event) {
		deleted = append(deleted, e.Tenant.Slug)
	})

	_, err := svc.CreateTenant(CreateTenantInput{Name: "Acme"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTenant("acme", false, false))
	require.Equal(t, []string{"acme"}, deleted)
}

func TestMigrateTenantsBatch(t *testing.T) {
	cfg := testConfig(t, "multi")
	cfg.Tenancy.AutoMigrate = false
	writeMigration(t, cfg.Tenancy.MigrationsPath, "20250101000000_create_projects.sql",
		"CREATE TABLE projects (id INTEGER PRIMARY KEY);")

	svc, _ := newTestService(t, cfg)
	for _, name := range []string{"Acme", "Globex"} {
		_, err := svc.CreateTenant(CreateTenantInput{Name: name})
		require.NoError(t, err)
	}

	summary, err := svc.MigrateTenants("", MigrateOptions{}, false, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"acme", "globex"}, summary.Succeeded())
	require.Empty(t, summary.Failed())
}

func TestMigrateTenantsBatchAggregatesFailures(t *testing.T) {
	cfg := testConfig(t, "multi")
	cfg.Tenancy.AutoMigrate = false
	writeMigration(t, cfg.Tenancy.MigrationsPath, "20250101000000_create_projects.sql",
		"CREATE TABLE projects (id INTEGER PRIMARY KEY);")

	svc, _ := newTestService(t, cfg)
	_, err := svc.CreateTenant(CreateTenantInput{Name: "Acme"})
	require.NoError(t, err)
	broken, err := svc.CreateTenant(CreateTenantInput{Name: "Globex"})
	require.NoError(t, err)

	// Break one tenant's database file so its migration run fails; the batch
	// still completes and reports the other tenant as succeeded.
	dbFile := filepath.Join(cfg.Tenancy.DataDirectory, broken.Database+".sqlite")
	require.NoError(t, os.Remove(dbFile))
	require.NoError(t, os.Mkdir(dbFile, 0o755))

	summary, err := svc.MigrateTenants("", MigrateOptions{}, false, "")
	require.NoError(t, err)
	require.Equal(t, []string{"acme"}, summary.Succeeded())
	require.Equal(t, []string{"globex"}, summary.Failed())
}

func TestMigrateTenantsSingleFilter(t *testing.T) {
	cfg := testConfig(t, "multi")
	cfg.Tenancy.AutoMigrate = false
	writeMigration(t, cfg.Tenancy.MigrationsPath, "20250101000000_create_projects.sql",
		"CREATE TABLE projects (id INTEGER PRIMARY KEY);")

	svc, _ := newTestService(t, cfg)
	for _, name := range []string{"Acme", "Globex"} {
		_, err := svc.CreateTenant(CreateTenantInput{Name: name})
		require.NoError(t, err)
	}

	summary, err := svc.MigrateTenants("acme", MigrateOptions{}, false, "")
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	require.Equal(t, []string{"acme"}, summary.Succeeded())
}
