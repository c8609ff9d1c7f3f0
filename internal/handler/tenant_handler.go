package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenancy-service/internal/model"
	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/database"
	"tenancy-service/pkg/jwtutil"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"
)

var svc *tenancy.Service

// Initialize wires the handlers to the tenancy service
func Initialize(service *tenancy.Service) {
	svc = service
}

// CreateTenant handles tenant creation, including database provisioning in
// multi-database mode
func CreateTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("create")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordError("unauthorized_tenant_creation")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name        string `json:"name"`
		Slug        string `json:"slug,omitempty"`
		Email       string `json:"email,omitempty"`
		Description string `json:"description,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		prometheus.RecordError("incomplete_tenant_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	tenant, err := svc.CreateTenant(tenancy.CreateTenantInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Email:       req.Email,
		Description: req.Description,
		OwnerID:     userID,
	})
	if err != nil {
		log.Error("Failed to create tenant", zap.Error(err))
		prometheus.RecordError("tenant_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	log.Info("Tenant created",
		zap.String("id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.Uint("owner_id", tenant.OwnerID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Tenant created successfully",
		"tenant":  tenant,
	})
}

// ListUserTenants retrieves all tenants associated with the authenticated user
func ListUserTenants(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("list")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_tenant_listing")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var memberships []model.TenantUser
	if result := database.GetDB().Preload("Tenant").
		Where("user_id = ? AND is_active = ?", userID, true).
		Find(&memberships); result.Error != nil {
		log.Error("Failed to retrieve user's tenants", zap.Error(result.Error))
		prometheus.RecordError("tenant_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	type TenantResponse struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Slug        string    `json:"slug"`
		Description string    `json:"description"`
		Role        string    `json:"role"`
		CreatedAt   time.Time `json:"created_at"`
	}

	response := make([]TenantResponse, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, TenantResponse{
			ID:          m.TenantID,
			Name:        m.Tenant.Name,
			Slug:        m.Tenant.Slug,
			Description: m.Tenant.Description,
			Role:        m.Role,
			CreatedAt:   m.Tenant.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// GetTenant retrieves tenant details
func GetTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("access")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_tenant_access")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	tenant, err := svc.FindTenant(c.Param("id"))
	if err != nil {
		log.Error("Tenant not found", zap.String("id", c.Param("id")), zap.Error(err))
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	user := model.User{ID: userID}
	if !tenant.IsMember(database.GetDB(), &user) && tenant.OwnerID != userID {
		log.Warn("Unauthorized tenant access attempt",
			zap.Uint("requesting_user_id", userID),
			zap.String("tenant_id", tenant.ID))
		prometheus.RecordError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, tenant)
}

// DeleteTenant removes a tenant. Only the owner may delete; ?force=true hard
// deletes and drops the tenant database unless ?keep_database=true.
func DeleteTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("delete")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_tenant_delete")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	tenant, err := svc.FindTenant(c.Param("id"))
	if err != nil {
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	user := model.User{ID: userID}
	if !tenant.IsOwner(database.GetDB(), &user) {
		log.Warn("Unauthorized tenant delete attempt",
			zap.Uint("requesting_user_id", userID),
			zap.String("tenant_id", tenant.ID))
		prometheus.RecordError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the owner can delete a tenant"})
	}

	force := c.QueryParam("force") == "true"
	keepDatabase := c.QueryParam("keep_database") == "true"

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := svc.DeleteTenant(tenant.ID, force, keepDatabase); err != nil {
		log.Error("Failed to delete tenant", zap.String("tenant_id", tenant.ID), zap.Error(err))
		prometheus.RecordError("tenant_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Tenant deleted successfully"})
}

// SwitchTenant generates a new token with a different tenant context
func SwitchTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("switch")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_tenant_switch")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	email, ok := c.Get("email").(string)
	if !ok {
		prometheus.RecordError("context_missing_email")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "email missing from context"})
	}

	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil || req.TenantID == "" {
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var membership model.TenantUser
	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ? AND is_active = ?", userID, req.TenantID, true).
		First(&membership)
	if result.Error != nil {
		log.Warn("Unauthorized tenant switch attempt",
			zap.Uint("user_id", userID),
			zap.String("tenant_id", req.TenantID))
		prometheus.RecordError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested tenant"})
	}

	tenant, err := svc.FindTenant(req.TenantID)
	if err != nil {
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	token, err := jwtutil.GenerateTokenWithTenant(email, userID, tenant.ID, tenant.Slug, membership.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User switched tenant",
		zap.Uint("user_id", userID),
		zap.String("tenant_id", tenant.ID))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"tenant": echo.Map{
			"id":   tenant.ID,
			"slug": tenant.Slug,
			"name": tenant.Name,
			"role": membership.Role,
		},
	})
}

// AddTenantUser adds a user to a tenant
func AddTenantUser(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("add_user")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_tenant_user_add")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		TenantID    string   `json:"tenant_id"`
		UserEmail   string   `json:"user_email"`
		Role        string   `json:"role,omitempty"`
		Permissions []string `json:"permissions,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.TenantID == "" || req.UserEmail == "" {
		prometheus.RecordError("incomplete_tenant_user_add")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id and user_email are required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	tenant, err := svc.FindTenant(req.TenantID)
	if err != nil {
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	requester := model.User{ID: userID}
	if !tenant.IsAdmin(database.GetDB(), &requester) {
		log.Warn("Unauthorized attempt to add user to tenant",
			zap.Uint("requesting_user_id", userID),
			zap.String("tenant_id", tenant.ID))
		prometheus.RecordError("tenant_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var user model.User
	if result := database.GetDB().Where("email = ?", req.UserEmail).First(&user); result.Error != nil {
		prometheus.RecordError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if err := tenant.AddUser(database.GetDB(), &user, req.Role, req.Permissions); err != nil {
		log.Error("Failed to add user to tenant", zap.Error(err))
		prometheus.RecordError("tenant_user_add_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add user to tenant"})
	}

	log.Info("Added user to tenant",
		zap.String("tenant_id", tenant.ID),
		zap.String("user_email", req.UserEmail),
		zap.String("role", req.Role))

	return c.JSON(http.StatusCreated, echo.Map{"message": "User added to tenant successfully"})
}

// RemoveTenantUser removes a user from a tenant
func RemoveTenantUser(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("remove_user")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		prometheus.RecordError("unauthorized_tenant_user_remove")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	tenant, err := svc.FindTenant(c.Param("tenant_id"))
	if err != nil {
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	var target model.User
	if result := database.GetDB().First(&target, c.Param("user_id")); result.Error != nil {
		prometheus.RecordError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	requester := model.User{ID: userID}
	if !tenant.IsAdmin(database.GetDB(), &requester) {
		prometheus.RecordError("tenant_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}
	if tenant.OwnerID == target.ID {
		log.Warn("Attempted to remove tenant owner",
			zap.String("tenant_id", tenant.ID),
			zap.Uint("owner_id", target.ID))
		prometheus.RecordError("tenant_owner_removal_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot remove tenant owner"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := tenant.RemoveUser(database.GetDB(), &target); err != nil {
		log.Error("Failed to remove user from tenant", zap.Error(err))
		prometheus.RecordError("tenant_user_remove_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove user from tenant"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "User removed from tenant successfully"})
}
