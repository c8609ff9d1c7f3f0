package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenancy-service/internal/model"
	"tenancy-service/pkg/database"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"
)

// ListDomains returns all domains bound to a tenant
func ListDomains(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("list_domains")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_domain_listing")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	tenant, err := svc.FindTenant(c.Param("tenant_id"))
	if err != nil {
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	user := model.User{ID: userID}
	if !tenant.IsMember(database.GetDB(), &user) && tenant.OwnerID != userID {
		prometheus.RecordError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var domains []model.Domain
	if result := database.GetDB().
		Where("tenant_id = ?", tenant.ID).
		Order("is_primary DESC, domain ASC").
		Find(&domains); result.Error != nil {
		log.Error("Failed to list domains", zap.Error(result.Error))
		prometheus.RecordError("domain_listing_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list domains"})
	}

	return c.JSON(http.StatusOK, domains)
}

// AddDomain attaches a custom domain to a tenant. Custom domains start
// unverified; subdomains under the base domain go through tenant creation
// instead.
func AddDomain(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("add_domain")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_domain_add")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Domain    string `json:"domain"`
		IsPrimary bool   `json:"is_primary,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.Domain == "" {
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "domain is required"})
	}

	tenant, err := svc.FindTenant(c.Param("tenant_id"))
	if err != nil {
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	user := model.User{ID: userID}
	if !tenant.IsAdmin(database.GetDB(), &user) {
		prometheus.RecordError("tenant_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	domain := &model.Domain{
		Domain:   strings.ToLower(strings.TrimSpace(req.Domain)),
		TenantID: tenant.ID,
	}
	if err := database.GetDB().Create(domain).Error; err != nil {
		log.Error("Failed to add domain",
			zap.String("domain", domain.Domain),
			zap.Error(err))
		prometheus.RecordError("domain_add_failed")
		return c.JSON(http.StatusConflict, echo.Map{"error": "domain already registered"})
	}

	if req.IsPrimary {
		if err := domain.MakePrimary(database.GetDB()); err != nil {
			log.Error("Failed to mark domain primary", zap.Error(err))
		}
	}

	log.Info("Domain added",
		zap.String("tenant_id", tenant.ID),
		zap.String("domain", domain.Domain))

	return c.JSON(http.StatusCreated, domain)
}

// VerifyDomain marks a custom domain as verified
func VerifyDomain(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("verify_domain")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_domain_verify")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	domain, tenant, errResp := findTenantDomain(c)
	if errResp != nil {
		return errResp(c)
	}

	user := model.User{ID: userID}
	if !tenant.IsAdmin(database.GetDB(), &user) {
		prometheus.RecordError("tenant_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := domain.Verify(database.GetDB()); err != nil {
		log.Error("Failed to verify domain", zap.Error(err))
		prometheus.RecordError("domain_verify_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to verify domain"})
	}

	return c.JSON(http.StatusOK, domain)
}

// MakePrimaryDomain promotes a domain to the tenant's primary domain
func MakePrimaryDomain(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("primary_domain")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_domain_primary")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	domain, tenant, errResp := findTenantDomain(c)
	if errResp != nil {
		return errResp(c)
	}

	user := model.User{ID: userID}
	if !tenant.IsAdmin(database.GetDB(), &user) {
		prometheus.RecordError("tenant_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}
	if !domain.IsVerified {
		prometheus.RecordError("domain_unverified_primary")
		return c.JSON(http.StatusConflict, echo.Map{"error": "domain must be verified first"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := domain.MakePrimary(database.GetDB()); err != nil {
		log.Error("Failed to promote domain", zap.Error(err))
		prometheus.RecordError("domain_primary_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to promote domain"})
	}

	return c.JSON(http.StatusOK, domain)
}

// RemoveDomain detaches a domain from its tenant. The primary domain cannot be
// removed while siblings exist.
func RemoveDomain(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("remove_domain")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_domain_remove")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	domain, tenant, errResp := findTenantDomain(c)
	if errResp != nil {
		return errResp(c)
	}

	user := model.User{ID: userID}
	if !tenant.IsAdmin(database.GetDB(), &user) {
		prometheus.RecordError("tenant_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	if domain.IsPrimary {
		var siblings int64
		database.GetDB().Model(&model.Domain{}).
			Where("tenant_id = ? AND id <> ?", tenant.ID, domain.ID).
			Count(&siblings)
		if siblings > 0 {
			prometheus.RecordError("domain_primary_removal_blocked")
			return c.JSON(http.StatusConflict, echo.Map{"error": "promote another domain before removing the primary"})
		}
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := database.GetDB().Delete(domain).Error; err != nil {
		log.Error("Failed to remove domain", zap.Error(err))
		prometheus.RecordError("domain_remove_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove domain"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Domain removed successfully"})
}

// findTenantDomain loads the domain from the route and checks it belongs to
// the tenant in the route. Returns a response func instead of writing so the
// caller keeps a single return path.
func findTenantDomain(c echo.Context) (*model.Domain, *model.Tenant, func(echo.Context) error) {
	tenant, err := svc.FindTenant(c.Param("tenant_id"))
	if err != nil {
		prometheus.RecordError("tenant_not_found")
		return nil, nil, func(c echo.Context) error {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}
	}

	var domain model.Domain
	if result := database.GetDB().First(&domain, c.Param("domain_id")); result.Error != nil {
		prometheus.RecordError("domain_not_found")
		return nil, nil, func(c echo.Context) error {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "domain not found"})
		}
	}
	if domain.TenantID != tenant.ID {
		prometheus.RecordError("domain_tenant_mismatch")
		return nil, nil, func(c echo.Context) error {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "domain not found"})
		}
	}
	return &domain, tenant, nil
}
