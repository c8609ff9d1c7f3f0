package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenancy-service/internal/model"
	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/config"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"
)

// TenantContextKey is where the resolved tenant lives in the echo context.
const TenantContextKey = "tenant"

// ManagerContextKey is where this request's database manager lives in the
// echo context, set only in multi-database mode.
const ManagerContextKey = "tenant_manager"

// TenantFromEcho returns the tenant resolved for this request, or nil.
func TenantFromEcho(c echo.Context) *model.Tenant {
	tenant, ok := c.Get(TenantContextKey).(*model.Tenant)
	if !ok {
		return nil
	}
	return tenant
}

// ManagerFromEcho returns the request-scoped database manager, or nil outside
// multi-database mode.
func ManagerFromEcho(c echo.Context) *tenancy.MultiDatabaseManager {
	manager, ok := c.Get(ManagerContextKey).(*tenancy.MultiDatabaseManager)
	if !ok {
		return nil
	}
	return manager
}

// ResolveTenant resolves the tenant from the request Host header: first an
// exact domain lookup, then a subdomain-of-base-domain lookup by slug.
// Reserved subdomains and unknown hosts leave the request without a tenant;
// handlers that need one use RequireTenant behind this.
//
// Managers hold per-request connection state, so in multi-database mode each
// request constructs its own from the factory rather than sharing one across
// goroutines.
func ResolveTenant(db *gorm.DB, tc config.TenancyConfig, newManager tenancy.ManagerFactory) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			host := requestHost(c.Request())
			if host == "" || host == strings.ToLower(tc.BaseDomain) {
				return next(c)
			}

			tenant, err := model.FindTenantByDomain(db, host)
			if err != nil {
				log.Error("tenant domain lookup failed", zap.String("host", host), zap.Error(err))
				prometheus.RecordError("db_error")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant resolution failed"})
			}

			if tenant == nil && tc.BaseDomain != "" {
				probe := model.Domain{Domain: host}
				if label, ok := probe.GetSubdomain(tc.BaseDomain); ok {
					if tc.IsReservedSubdomain(label) {
						prometheus.RecordResolution("reserved")
						return next(c)
					}
					var found model.Tenant
					err := db.Where("slug = ?", label).First(&found).Error
					if err == nil {
						tenant = &found
					} else if err != gorm.ErrRecordNotFound {
						log.Error("tenant slug lookup failed", zap.String("slug", label), zap.Error(err))
						prometheus.RecordError("db_error")
						return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant resolution failed"})
					}
				}
			}

			if tenant == nil {
				prometheus.RecordResolution("miss")
				return next(c)
			}

			prometheus.RecordResolution("resolved")
			c.Set(TenantContextKey, tenant)

			// In multi-database mode the whole request runs against the
			// tenant's database through a request-scoped manager.
			if tc.IsMulti() && newManager != nil {
				manager := newManager()
				c.Set(ManagerContextKey, manager)
				return manager.Run(tenant, func(*gorm.DB) error {
					return next(c)
				})
			}
			return next(c)
		}
	}
}

// RequireTenant rejects requests that did not resolve a tenant.
func RequireTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if TenantFromEcho(c) == nil {
			prometheus.RecordError("tenant_required")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
		}
		return next(c)
	}
}

func requestHost(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
