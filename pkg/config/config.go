package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds the central database configuration
type DBConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the connection string for the configured driver
func (c *DBConfig) GetDSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		return c.DBName
	default:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// TenancyConfig holds the tenancy behaviour of the service: which isolation
// mode panels run in, how tenant databases are named and provisioned, and how
// subdomains map onto tenants.
type TenancyConfig struct {
	// Mode is "single" (row scoping) or "multi" (database per tenant).
	Mode string

	// CentralConnection is the logical name of the shared database holding
	// tenants, domains and users.
	CentralConnection string

	// ConnectionTemplate names the connection whose driver and credentials
	// are cloned when pointing the "tenant" alias at a tenant database.
	ConnectionTemplate string

	// DatabasePrefix and DatabaseSuffix wrap the tenant slug when a database
	// name is derived, e.g. "tenant_" + "acme" + "".
	DatabasePrefix string
	DatabaseSuffix string

	// DataDirectory is where file-based (sqlite) tenant databases live.
	DataDirectory string

	// MigrationsPath is the directory of tenant migration SQL files.
	MigrationsPath string

	// BaseDomain is the shared suffix for tenant subdomains (acme.<base>).
	BaseDomain string

	// ReservedSubdomains can never be claimed by a tenant.
	ReservedSubdomains []string

	AutoCreateDatabase bool
	AutoMigrate        bool
	AutoSeed           bool
	Seeder             string
}

// IsMulti reports whether multi-database isolation is configured.
func (c *TenancyConfig) IsMulti() bool {
	return c.Mode == "multi"
}

// IsReservedSubdomain reports whether a subdomain label is reserved.
func (c *TenancyConfig) IsReservedSubdomain(label string) bool {
	label = strings.ToLower(label)
	for _, reserved := range c.ReservedSubdomains {
		if strings.ToLower(reserved) == label {
			return true
		}
	}
	return false
}

// Config holds all configuration
type Config struct {
	DB      DBConfig
	Server  ServerConfig
	JWT     JWTConfig
	Log     LogConfig
	Metrics MetricsConfig
	Tenancy TenancyConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		DB: DBConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "tenancy_central"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8084"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "tenancyservicesecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "tenancy"),
		},
		Tenancy: TenancyConfig{
			Mode:               getEnv("TENANCY_MODE", "single"),
			CentralConnection:  getEnv("TENANCY_CENTRAL_CONNECTION", "central"),
			ConnectionTemplate: getEnv("TENANCY_CONNECTION_TEMPLATE", "central"),
			DatabasePrefix:     getEnv("TENANCY_DB_PREFIX", "tenant_"),
			DatabaseSuffix:     getEnv("TENANCY_DB_SUFFIX", ""),
			DataDirectory:      getEnv("TENANCY_DATA_DIR", "data/tenants"),
			MigrationsPath:     getEnv("TENANCY_MIGRATIONS_PATH", "migrations/tenant"),
			BaseDomain:         getEnv("TENANCY_BASE_DOMAIN", "localhost"),
			ReservedSubdomains: getEnvAsSlice("TENANCY_RESERVED_SUBDOMAINS", []string{"www", "api", "admin", "app"}),
			AutoCreateDatabase: getEnvAsBool("TENANCY_AUTO_CREATE_DATABASE", true),
			AutoMigrate:        getEnvAsBool("TENANCY_AUTO_MIGRATE", true),
			AutoSeed:           getEnvAsBool("TENANCY_AUTO_SEED", false),
			Seeder:             getEnv("TENANCY_SEEDER", ""),
		},
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_driver", c.DB.Driver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("tenancy_mode", c.Tenancy.Mode),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as booleans
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as comma-separated lists
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
