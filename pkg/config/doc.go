// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables
// (optionally seeded from a .env file) with sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	APP_ENV="development"  # development, production, test
//	HOST="0.0.0.0"
//	PORT="8080"
//	HEALTH_PORT="9090"
//	FRONTEND_URL="https://shop.example.com"
//
// Identity provider settings:
//
//	KEYCLOAK_URL="http://localhost:8180"
//	KEYCLOAK_REALM="ecommerce"
//	KEYCLOAK_CLIENT_ID="ecommerce-backend"
//	KEYCLOAK_CLIENT_SECRET="..."
//	KEYCLOAK_ADMIN_USERNAME="admin"
//	KEYCLOAK_ADMIN_PASSWORD="..."
//	SKIP_USERINFO="false"
//
// Storage settings:
//
//	STORAGE_TYPE="postgres"  # memory, postgres
//	POSTGRES_URL="postgres://localhost/ecommerce"
//	REDIS_URL="redis://localhost:6379"
//
// Rate limit settings (per client IP per window):
//
//	RATE_LIMIT_API="100"
//	RATE_LIMIT_LOGIN="5"
//	RATE_LIMIT_REGISTRATION="3"
//	RATE_LIMIT_REFRESH="10"
//
// Outside production, the login, registration and refresh limits default
// to relaxed values unless set explicitly.
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// # Related Packages
//
//   - pkg/idp: uses identity provider configuration
//   - pkg/storage: uses storage configuration
//   - pkg/middleware: uses rate limit configuration
package config
