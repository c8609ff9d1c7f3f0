package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tenancy-service/internal/model"
	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/config"
)

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

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Tenant{}, &model.Domain{}, &model.TenantUser{}))
	return db
}

func testTenancyConfig() config.TenancyConfig {
	return config.TenancyConfig{
		Mode:               "single",
		BaseDomain:         "example.test",
		ReservedSubdomains: []string{"www", "admin"},
	}
}

// resolve runs one request with the given Host through ResolveTenant and
// returns the tenant the terminal handler observed.
func resolve(t *testing.T, db *gorm.DB, tc config.TenancyConfig, host string) (*model.Tenant, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = host
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *model.Tenant
	handler := ResolveTenant(db, tc, nil)(func(c echo.Context) error {
		seen = TenantFromEcho(c)
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return seen, rec
}

func TestResolveTenantByExactDomain(t *testing.T) {
	db := openTestDB(t)
	tenant := &model.Tenant{Name: "Acme", OwnerID: 1}
	require.NoError(t, db.Create(tenant).Error)
	_, err := model.CreateSubdomain(db, tenant, "acme", "example.test", true)
	require.NoError(t, err)

	seen, _ := resolve(t, db, testTenancyConfig(), "acme.example.test")
	require.NotNil(t, seen)
	require.Equal(t, tenant.ID, seen.ID)
}

func TestResolveTenantIgnoresHostPortAndCase(t *testing.T) {
	db := openTestDB(t)
	tenant := &model.Tenant{Name: "Acme", OwnerID: 1}
	require.NoError(t, db.Create(tenant).Error)
	_, err := model.CreateSubdomain(db, tenant, "acme", "example.test", true)
	require.NoError(t, err)

	seen, _ := resolve(t, db, testTenancyConfig(), "ACME.Example.Test:8084")
	require.NotNil(t, seen)
	require.Equal(t, tenant.ID, seen.ID)
}

func TestResolveTenantBySlugFallback(t *testing.T) {
	db := openTestDB(t)
	// Tenant exists but no domain row was created for it.
	tenant := &model.Tenant{Name: "Acme", Slug: "acme", OwnerID: 1}
	require.NoError(t, db.Create(tenant).Error)

	seen, _ := resolve(t, db, testTenancyConfig(), "acme.example.test")
	require.NotNil(t, seen)
	require.Equal(t, tenant.ID, seen.ID)
}

func TestResolveTenantReservedSubdomain(t *testing.T) {
	db := openTestDB(t)
	// Even if a tenant claims a reserved label as slug, the subdomain does not
	// resolve to it.
	tenant := &model.Tenant{Name: "Admin", Slug: "admin", OwnerID: 1}
	require.NoError(t, db.Create(tenant).Error)

	seen, rec := resolve(t, db, testTenancyConfig(), "admin.example.test")
	require.Nil(t, seen)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveTenantBaseDomainPassesThrough(t *testing.T) {
	db := openTestDB(t)
	seen, rec := resolve(t, db, testTenancyConfig(), "example.test")
	require.Nil(t, seen)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveTenantUnknownHostPassesThrough(t *testing.T) {
	db := openTestDB(t)
	seen, rec := resolve(t, db, testTenancyConfig(), "ghost.example.test")
	require.Nil(t, seen)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveTenantConcurrentRequestsGetOwnManagers(t *testing.T) {
	db := openTestDB(t)

	cfg := &config.Config{
		DB: config.DBConfig{Driver: "sqlite", DBName: ":memory:"},
		Tenancy: config.TenancyConfig{
			Mode:               "multi",
			CentralConnection:  "central",
			ConnectionTemplate: "central",
			DatabasePrefix:     "tenant_",
			DataDirectory:      t.TempDir(),
			BaseDomain:         "example.test",
		},
	}
	newManager := func() *tenancy.MultiDatabaseManager {
		return tenancy.NewMultiDatabaseManager(cfg, db, nil, nil)
	}

	hosts := map[string]string{}
	for _, name := range []string{"Acme", "Globex"} {
		tenant := &model.Tenant{Name: name, Slug: model.Slugify(name), OwnerID: 1}
		tenant.DeriveDatabase(cfg.Tenancy.DatabasePrefix, cfg.Tenancy.DatabaseSuffix)
		require.NoError(t, db.Create(tenant).Error)
		_, err := model.CreateSubdomain(db, tenant, tenant.Slug, "example.test", true)
		require.NoError(t, err)
		require.True(t, newManager().CreateDatabase(tenant).OK())
		hosts[tenant.Slug+".example.test"] = tenant.ID
	}

	e := echo.New()
	mw := ResolveTenant(db, cfg.Tenancy, newManager)

	// Every request must see its own manager initialized for its own tenant,
	// no matter how the goroutines interleave.
	const perHost = 8
	errs := make(chan error, len(hosts)*perHost)
	var wg sync.WaitGroup
	for host, wantID := range hosts {
		for i := 0; i < perHost; i++ {
			wg.Add(1)
			go func(host, wantID string) {
				defer wg.Done()

				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Host = host
				rec := httptest.NewRecorder()
				c := e.NewContext(req, rec)

				errs <- mw(func(c echo.Context) error {
					tenant := TenantFromEcho(c)
					if tenant == nil || tenant.ID != wantID {
						return fmt.Errorf("request for %s resolved the wrong tenant", host)
					}
					manager := ManagerFromEcho(c)
					if manager == nil {
						return fmt.Errorf("request for %s has no manager", host)
					}
					if current := manager.Current(); current == nil || current.ID != wantID {
						return fmt.Errorf("request for %s runs against the wrong tenant database", host)
					}
					if manager.TenantDB() == nil {
						return fmt.Errorf("request for %s has no tenant connection", host)
					}
					return c.NoContent(http.StatusOK)
				})(c)
			}(host, wantID)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestRequireTenant(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := RequireTenant(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	require.NoError(t, handler(c))
	require.False(t, called)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.Set(TenantContextKey, &model.Tenant{ID: "t-1"})
	require.NoError(t, handler(c))
	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
}
