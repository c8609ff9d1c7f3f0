package main

import (
	"tenancy-service/internal/handler"
	"tenancy-service/internal/middleware"
	"tenancy-service/internal/model"
	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/config"
	"tenancy-service/pkg/database"
	"tenancy-service/pkg/jwtutil"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting tenancy service...", cfg.LogConfig()...)

	// Initialize central database
	if err := database.Initialize(cfg); err != nil {
		log.Fatal("Failed to initialize central database", zap.Error(err))
	}
	log.Info("Central database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg.Tenancy.Mode)
	log.Info("Prometheus metrics initialized")

	// Wire up the tenancy runtime: event dispatcher, a manager factory (one
	// manager per request/operation, never shared between goroutines), and
	// the service facade the handlers use.
	events := tenancy.NewDispatcher()
	newManager := func() *tenancy.MultiDatabaseManager {
		return tenancy.NewMultiDatabaseManager(cfg, database.GetDB(), tenancy.NewMigrator(), events)
	}
	svc := tenancy.NewService(cfg, database.GetDB(), newManager, events)
	handler.Initialize(svc)
	log.Info("Tenancy runtime initialized", zap.String("mode", cfg.Tenancy.Mode))

	// Lifecycle events feed the metrics.
	events.Subscribe(tenancy.EventTenantDatabaseCreated, func(tenancy.Event) {
		prometheus.RecordProvision("create", true)
	})
	refreshActiveTenants := func(tenancy.Event) {
		var count int64
		if err := database.GetDB().Model(&model.Tenant{}).Count(&count).Error; err == nil {
			prometheus.UpdateActiveTenants(int(count))
		}
	}
	events.Subscribe(tenancy.EventTenantCreated, refreshActiveTenants)
	events.Subscribe(tenancy.EventTenantDeleted, refreshActiveTenants)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())
	e.Use(middleware.ResolveTenant(database.GetDB(), cfg.Tenancy, newManager))

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// Tenant management - doesn't require tenant context
	tenants := api.Group("/tenants")
	tenants.POST("", handler.CreateTenant)
	tenants.GET("", handler.ListUserTenants)
	tenants.GET("/:id", handler.GetTenant)
	tenants.DELETE("/:id", handler.DeleteTenant)
	tenants.POST("/switch", handler.SwitchTenant)

	// Tenant membership
	tenantUsers := api.Group("/tenant-users")
	tenantUsers.POST("", handler.AddTenantUser)
	tenantUsers.DELETE("/:tenant_id/:user_id", handler.RemoveTenantUser)

	// Domain management
	domains := api.Group("/tenants/:tenant_id/domains")
	domains.GET("", handler.ListDomains)
	domains.POST("", handler.AddDomain)
	domains.POST("/:domain_id/verify", handler.VerifyDomain)
	domains.POST("/:domain_id/primary", handler.MakePrimaryDomain)
	domains.DELETE("/:domain_id", handler.RemoveDomain)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
