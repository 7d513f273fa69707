package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for intake-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional place-details cache)
	Redis RedisConfig `yaml:"redis"`

	// Places provider configuration
	Places PlacesConfig `yaml:"places"`

	// Intake pipeline configuration
	Intake IntakeConfig `yaml:"intake"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// TokenSecret signs operator session tokens. Server refuses to start
	// without it outside local env.
	TokenSecret string `yaml:"-" env:"AUTH_TOKEN_SECRET"` // Secret - not in YAML

	// TokenTTLMinutes is how long an issued operator token stays valid.
	TokenTTLMinutes int `yaml:"token_ttl_minutes" env:"AUTH_TOKEN_TTL_MINUTES" env-default:"480"`

	// SessionKey authenticates the operator console cookie.
	SessionKey string `yaml:"-" env:"AUTH_SESSION_KEY"` // Secret - not in YAML

	// EnableVerification controls whether bearer tokens are validated.
	// Set to false for local development.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs for
	// SSO-issued tokens. Format: "issuer1=url1,issuer2=url2". Optional; when
	// empty only locally issued tokens are accepted.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// BootstrapEmail/BootstrapPassword seed the first admin account at
	// startup. Both optional; ignored when the account already exists.
	BootstrapEmail    string `yaml:"-" env:"AUTH_BOOTSTRAP_EMAIL"`    // Secret - not in YAML
	BootstrapPassword string `yaml:"-" env:"AUTH_BOOTSTRAP_PASSWORD"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"intake"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"intake_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional Redis cache configuration. Leaving Host
// empty disables caching entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// TTLMinutes is how long cached place lookups stay fresh.
	TTLMinutes int `yaml:"ttl_minutes" env:"REDIS_TTL_MINUTES" env-default:"1440"`
}

// PlacesConfig holds settings for the external place-details provider.
type PlacesConfig struct {
	BaseURL string `yaml:"base_url" env:"PLACES_BASE_URL" env-default:"https://places.googleapis.com/v1"`
	APIKey  string `yaml:"-" env:"PLACES_API_KEY"` // Secret - not in YAML
	// TimeoutSeconds bounds a single provider call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"PLACES_TIMEOUT_SECONDS" env-default:"10"`
	// MaxRetries is how many times a retryable provider error is retried.
	MaxRetries int `yaml:"max_retries" env:"PLACES_MAX_RETRIES" env-default:"2"`
	// BreakerThreshold is the consecutive-failure count that opens the circuit.
	BreakerThreshold int `yaml:"breaker_threshold" env:"PLACES_BREAKER_THRESHOLD" env-default:"5"`
	// BreakerResetSeconds is how long the circuit stays open before probing.
	BreakerResetSeconds int `yaml:"breaker_reset_seconds" env:"PLACES_BREAKER_RESET_SECONDS" env-default:"30"`
}

// IsAvailable returns true if the place-details provider is configured.
func (c *PlacesConfig) IsAvailable() bool {
	return c.APIKey != ""
}

// IntakeConfig holds intake pipeline settings.
type IntakeConfig struct {
	// BulkMaxRows limits how many rows one bulk import file may carry.
	BulkMaxRows int `yaml:"bulk_max_rows" env:"INTAKE_BULK_MAX_ROWS" env-default:"500"`
	// MatchTimeoutSeconds bounds one duplicate-detection pass.
	MatchTimeoutSeconds int `yaml:"match_timeout_seconds" env:"INTAKE_MATCH_TIMEOUT_SECONDS" env-default:"15"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory is loaded first when present, matching
// local development setups. The version parameter is injected at build time
// and set on the returned Config. Secrets (PGPASSWORD, AUTH_TOKEN_SECRET,
// AUTH_SESSION_KEY, REDIS_PASSWORD, PLACES_API_KEY) must come from
// environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	// Best-effort .env load for local development; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.validateSecrets(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// validateSecrets enforces secrets that cannot be defaulted outside local env.
func (c *Config) validateSecrets() error {
	if c.Env == "local" {
		return nil
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("AUTH_TOKEN_SECRET must be set when env is %q", c.Env)
	}
	if c.Auth.SessionKey == "" {
		return fmt.Errorf("AUTH_SESSION_KEY must be set when env is %q", c.Env)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
