package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenancy-service/pkg/jwtutil"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"
)

// AuthMiddleware validates the JWT token from the Authorization header
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromEcho(c)

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// Store user info in context for later use
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)

		// Store tenant information if available
		if claims.TenantID != "" {
			c.Set("tenant_id", claims.TenantID)
			c.Set("tenant_slug", claims.TenantSlug)
			c.Set("user_role", claims.Role)

			// Expose tenant context to downstream services
			c.Request().Header.Set("X-Tenant-ID", claims.TenantID)
			if claims.TenantSlug != "" {
				c.Request().Header.Set("X-Tenant-Slug", claims.TenantSlug)
			}
			if claims.Role != "" {
				c.Request().Header.Set("X-User-Role", claims.Role)
			}

			log.Debug("Request authenticated with tenant context",
				zap.String("tenant_id", claims.TenantID),
				zap.String("tenant_slug", claims.TenantSlug),
				zap.String("role", claims.Role))
		}

		return next(c)
	}
}
