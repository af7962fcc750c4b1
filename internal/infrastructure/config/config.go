package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerPort  int
	IssuerURL   string
	Environment string
	LogLevel    string

	// Credential store
	UsersFile string

	// Storage backend
	StoreBackend   string
	RedisURL       string
	RedisKeyPrefix string

	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	LoginTokenTTL   time.Duration
	SessionTTL      time.Duration
	CodeTTL         time.Duration

	// Grant policy
	EnforceClientGrantTypes bool

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Resource server configuration
	ResourcePort         int
	ResourceURL          string
	IntrospectionURL     string
	IntrospectionTimeout time.Duration
	RequiredScopes       []string

	// Client configuration
	ClientStorageDir  string
	ClientUsername    string
	ClientPassword    string
	ClientRedirectURI string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		ServerPort:  9000,
		IssuerURL:   "http://localhost:9000",
		Environment: "production",
		LogLevel:    "info",

		UsersFile: "users.yaml",

		StoreBackend:   StoreBackendMemory,
		RedisURL:       "redis://localhost:6379/0",
		RedisKeyPrefix: "mcpauth:",

		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		LoginTokenTTL:   time.Hour,
		SessionTTL:      10 * time.Minute,
		CodeTTL:         10 * time.Minute,

		EnforceClientGrantTypes: true,

		RateLimitRPS:   100,
		RateLimitBurst: 200,

		ResourcePort:         8001,
		ResourceURL:          "http://localhost:8001",
		IntrospectionURL:     "http://localhost:9000/token/introspect",
		IntrospectionTimeout: 5 * time.Second,
		RequiredScopes:       []string{"mcp:read", "mcp:write"},

		ClientStorageDir:  ".mcpauth",
		ClientUsername:    "user1",
		ClientPassword:    "",
		ClientRedirectURI: "http://localhost:8080/callback",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env from project root
	_ = godotenv.Load()

	defaults := NewConfig()

	serverPort, err := getEnvInt("PORT", defaults.ServerPort)
	if err != nil {
		return nil, err
	}

	resourcePort, err := getEnvInt("RESOURCE_PORT", defaults.ResourcePort)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:  serverPort,
		IssuerURL:   strings.TrimSuffix(getEnv("ISSUER_URL", fmt.Sprintf("http://localhost:%d", serverPort)), "/"),
		Environment: getEnv("ENVIRONMENT", defaults.Environment),
		LogLevel:    getEnv("LOG_LEVEL", defaults.LogLevel),

		UsersFile: getEnv("USERS_FILE", defaults.UsersFile),

		StoreBackend:   getEnv("STORE_BACKEND", defaults.StoreBackend),
		RedisURL:       getEnv("REDIS_URL", defaults.RedisURL),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", defaults.RedisKeyPrefix),

		ResourcePort: resourcePort,
		ResourceURL:  strings.TrimSuffix(getEnv("RESOURCE_URL", fmt.Sprintf("http://localhost:%d", resourcePort)), "/"),

		ClientStorageDir:  getEnv("CLIENT_STORAGE_DIR", defaults.ClientStorageDir),
		ClientUsername:    getEnv("OAUTH_USERNAME", defaults.ClientUsername),
		ClientPassword:    getEnv("OAUTH_PASSWORD", defaults.ClientPassword),
		ClientRedirectURI: getEnv("OAUTH_REDIRECT_URI", defaults.ClientRedirectURI),
	}
	cfg.IntrospectionURL = getEnv("INTROSPECTION_URL", cfg.IssuerURL+"/token/introspect")
	cfg.RequiredScopes = strings.Fields(getEnv("REQUIRED_SCOPES", strings.Join(defaults.RequiredScopes, " ")))

	for _, d := range []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL, defaults.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL, defaults.RefreshTokenTTL},
		{"LOGIN_TOKEN_TTL", &cfg.LoginTokenTTL, defaults.LoginTokenTTL},
		{"SESSION_TTL", &cfg.SessionTTL, defaults.SessionTTL},
		{"CODE_TTL", &cfg.CodeTTL, defaults.CodeTTL},
		{"INTROSPECTION_TIMEOUT", &cfg.IntrospectionTimeout, defaults.IntrospectionTimeout},
	} {
		if *d.target, err = getEnvDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.EnforceClientGrantTypes, err = getEnvBool("ENFORCE_CLIENT_GRANT_TYPES", defaults.EnforceClientGrantTypes); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", defaults.RateLimitRPS); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", defaults.RateLimitBurst); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught while parsing
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be %q or %q", c.StoreBackend, StoreBackendMemory, StoreBackendRedis)
	}
	for name, d := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":  c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL": c.RefreshTokenTTL,
		"LOGIN_TOKEN_TTL":   c.LoginTokenTTL,
		"SESSION_TTL":       c.SessionTTL,
		"CODE_TTL":          c.CodeTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return intValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return floatValue, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return boolValue, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}
