package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Tenant operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_tenant_operations_total",
			Help: "Total number of tenant operations",
		},
		[]string{"operation"}, // "create", "delete", "migrate", "access", etc.
	)

	// Database provisioning counter
	ProvisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_provision_total",
			Help: "Total number of tenant database provisioning operations",
		},
		[]string{"operation", "outcome"}, // create/delete x ok/failed
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	ErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_errors_total",
			Help: "Total number of tenancy service errors",
		},
		[]string{"type"}, // "invalid_request", "tenant_not_found", "db_error", etc.
	)

	// Tenant resolution counter
	ResolutionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_resolution_total",
			Help: "Total number of host-to-tenant resolution attempts",
		},
		[]string{"outcome"}, // "resolved", "miss", "reserved"
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete", "migrate"
	)
)

// Gauge metrics
var (
	// Active tenants
	ActiveTenantsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenancy_active_tenants",
			Help: "Number of currently active tenants",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenancy_info",
			Help: "Information about the tenancy service",
		},
		[]string{"version", "mode"},
	)
)

func init() {
	prometheus.MustRegister(TenantOperationCounter)
	prometheus.MustRegister(ProvisionCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(ErrorCounter)
	prometheus.MustRegister(ResolutionCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveTenantsGauge)
	prometheus.MustRegister(InfoGauge)
}

// InitMetrics records static service info.
func InitMetrics(mode string) {
	InfoGauge.With(prometheus.Labels{"version": "1.0.0", "mode": mode}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordTenantOperation records a tenant operation
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordProvision records a provisioning outcome
func RecordProvision(operation string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	ProvisionCounter.With(prometheus.Labels{"operation": operation, "outcome": outcome}).Inc()
}

// RecordError records a service error by type
func RecordError(errorType string) {
	ErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordResolution records a host-to-tenant resolution outcome
func RecordResolution(outcome string) {
	ResolutionCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// UpdateActiveTenants updates the active tenants gauge
func UpdateActiveTenants(count int) {
	ActiveTenantsGauge.Set(float64(count))
}
