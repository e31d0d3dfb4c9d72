package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds all application configuration
type Config struct {
	// Environment is one of development, production, test
	Environment string

	Server        ServerConfig
	IdP           IdPConfig
	Storage       StorageConfig
	Redis         RedisConfig
	TokenCache    TokenCacheConfig
	Audit         AuditConfig
	Monitor       MonitorConfig
	RateLimit     RateLimitConfig
	Email         EmailConfig
	Tokens        TokenConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// FrontendURL is used when building links embedded in emails
	FrontendURL string
}

// IdPConfig holds identity provider connection settings
type IdPConfig struct {
	BaseURL      string
	Realm        string
	AdminRealm   string
	ClientID     string
	ClientSecret string

	AdminUsername string
	AdminPassword string

	// SkipUserInfo switches token verification to local claim decoding
	// instead of calling the provider's userinfo endpoint.
	SkipUserInfo bool

	UserInfoTimeout time.Duration
	TokenTimeout    time.Duration
	AdminTimeout    time.Duration
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	// Type is "memory" or "postgres"
	Type string

	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int

	// Read-through user cache in front of the store
	CacheEnabled  bool
	UserCacheSize int
	UserCacheTTL  time.Duration
}

// RedisConfig holds optional Redis settings for distributed rate limiting
type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
}

// TokenCacheConfig holds verified-token cache settings
type TokenCacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Dir         string
	MaxFileSize int64
	MaxFiles    int
}

// MonitorConfig holds auth monitor thresholds
type MonitorConfig struct {
	SuspiciousThreshold int
	BruteForceThreshold int
	CleanupInterval     time.Duration
}

// RateLimitConfig holds per-route rate limit settings. Limits are per
// client IP per window.
type RateLimitConfig struct {
	APILimit  int
	APIWindow time.Duration

	LoginLimit  int
	LoginWindow time.Duration

	RegistrationLimit  int
	RegistrationWindow time.Duration

	PasswordResetLimit  int
	PasswordResetWindow time.Duration

	RefreshLimit  int
	RefreshWindow time.Duration
}

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// TokenConfig holds settings for self-issued verification tokens
type TokenConfig struct {
	EmailVerificationSecret string
	EmailVerificationTTL    time.Duration
	PasswordResetTTL        time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables. A .env file
// in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	// Missing .env is the normal case in production
	_ = godotenv.Load()

	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))

	cfg := &Config{
		Environment:   env,
		Server:        loadServerConfig(),
		IdP:           loadIdPConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		TokenCache:    loadTokenCacheConfig(),
		Audit:         loadAuditConfig(),
		Monitor:       loadMonitorConfig(),
		RateLimit:     loadRateLimitConfig(env),
		Email:         loadEmailConfig(),
		Tokens:        loadTokenConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs with relaxed
// development behavior (local token decoding, permissive rate limits).
func (c *Config) IsDevelopment() bool {
	return c.Environment != EnvProduction
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
	}
}

func loadIdPConfig() IdPConfig {
	return IdPConfig{
		BaseURL:         getEnv("KEYCLOAK_URL", "http://localhost:8180"),
		Realm:           getEnv("KEYCLOAK_REALM", "ecommerce"),
		AdminRealm:      getEnv("KEYCLOAK_ADMIN_REALM", "master"),
		ClientID:        getEnv("KEYCLOAK_CLIENT_ID", "ecommerce-backend"),
		ClientSecret:    getEnv("KEYCLOAK_CLIENT_SECRET", ""),
		AdminUsername:   getEnv("KEYCLOAK_ADMIN_USERNAME", ""),
		AdminPassword:   getEnv("KEYCLOAK_ADMIN_PASSWORD", ""),
		SkipUserInfo:    getEnvBool("SKIP_USERINFO", false),
		UserInfoTimeout: getEnvDuration("IDP_USERINFO_TIMEOUT", 5*time.Second),
		TokenTimeout:    getEnvDuration("IDP_TOKEN_TIMEOUT", 10*time.Second),
		AdminTimeout:    getEnvDuration("IDP_ADMIN_TIMEOUT", 15*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:             getEnv("STORAGE_TYPE", "memory"),
		PostgresURL:      getEnv("POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("POSTGRES_MAX_CONNS", 25),
		PostgresMinConns: getEnvInt("POSTGRES_MIN_CONNS", 5),
		CacheEnabled:     getEnvBool("USER_CACHE_ENABLED", true),
		UserCacheSize:    getEnvInt("USER_CACHE_SIZE", 1024),
		UserCacheTTL:     getEnvDuration("USER_CACHE_TTL", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	url := getEnv("REDIS_URL", "")
	return RedisConfig{
		Enabled:  url != "",
		URL:      url,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func loadTokenCacheConfig() TokenCacheConfig {
	return TokenCacheConfig{
		TTL:        getEnvDuration("TOKEN_CACHE_TTL", 5*time.Minute),
		MaxEntries: getEnvInt("TOKEN_CACHE_MAX_ENTRIES", 1000),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Dir:         getEnv("AUDIT_LOG_DIR", "logs"),
		MaxFileSize: getEnvInt64("AUDIT_MAX_FILE_SIZE", 10*1024*1024),
		MaxFiles:    getEnvInt("AUDIT_MAX_FILES", 5),
	}
}

func loadMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SuspiciousThreshold: getEnvInt("MONITOR_SUSPICIOUS_THRESHOLD", 3),
		BruteForceThreshold: getEnvInt("MONITOR_BRUTE_FORCE_THRESHOLD", 5),
		CleanupInterval:     getEnvDuration("MONITOR_CLEANUP_INTERVAL", 15*time.Minute),
	}
}

func loadRateLimitConfig(env string) RateLimitConfig {
	cfg := RateLimitConfig{
		APILimit:            getEnvInt("RATE_LIMIT_API", 100),
		APIWindow:           getEnvDuration("RATE_LIMIT_API_WINDOW", 15*time.Minute),
		LoginLimit:          getEnvInt("RATE_LIMIT_LOGIN", 5),
		LoginWindow:         getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
		RegistrationLimit:   getEnvInt("RATE_LIMIT_REGISTRATION", 3),
		RegistrationWindow:  getEnvDuration("RATE_LIMIT_REGISTRATION_WINDOW", time.Hour),
		PasswordResetLimit:  getEnvInt("RATE_LIMIT_PASSWORD_RESET", 3),
		PasswordResetWindow: getEnvDuration("RATE_LIMIT_PASSWORD_RESET_WINDOW", time.Hour),
		RefreshLimit:        getEnvInt("RATE_LIMIT_REFRESH", 10),
		RefreshWindow:       getEnvDuration("RATE_LIMIT_REFRESH_WINDOW", 15*time.Minute),
	}

	// Local development gets room to iterate without tripping limits
	if env != EnvProduction {
		if os.Getenv("RATE_LIMIT_LOGIN") == "" {
			cfg.LoginLimit = 50
		}
		if os.Getenv("RATE_LIMIT_REGISTRATION") == "" {
			cfg.RegistrationLimit = 20
		}
		if os.Getenv("RATE_LIMIT_REFRESH") == "" {
			cfg.RefreshLimit = 50
		}
	}

	return cfg
}

func loadEmailConfig() EmailConfig {
	host := getEnv("SMTP_HOST", "")
	return EmailConfig{
		Enabled:  host != "",
		Host:     host,
		Port:     getEnvInt("SMTP_PORT", 587),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "no-reply@ecommerce.local"),
	}
}

func loadTokenConfig() TokenConfig {
	return TokenConfig{
		EmailVerificationSecret: getEnv("EMAIL_VERIFICATION_SECRET", ""),
		EmailVerificationTTL:    getEnvDuration("EMAIL_VERIFICATION_TTL", 12*time.Hour),
		PasswordResetTTL:        getEnvDuration("PASSWORD_RESET_TTL", time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("invalid environment: %s (must be development, production, or test)", c.Environment)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	if c.Environment == EnvProduction {
		if c.IdP.BaseURL == "" {
			return fmt.Errorf("identity provider URL is required in production")
		}
		if c.IdP.ClientSecret == "" {
			return fmt.Errorf("identity provider client secret is required in production")
		}
		if c.Tokens.EmailVerificationSecret == "" {
			return fmt.Errorf("email verification secret is required in production")
		}
	}

	if c.TokenCache.TTL <= 0 {
		return fmt.Errorf("token cache TTL must be positive")
	}
	if c.Audit.MaxFiles < 1 {
		return fmt.Errorf("audit max files must be at least 1")
	}
	if c.Monitor.BruteForceThreshold < c.Monitor.SuspiciousThreshold {
		return fmt.Errorf("brute force threshold must not be lower than suspicious threshold")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
