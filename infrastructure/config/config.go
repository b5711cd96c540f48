package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "taskable/pkg/errors"
)

// Remote backends
const (
	BackendSupabase = "supabase"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
	BackendNone     = "none"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Remote store selection
	RemoteBackend string
	TokenAudience string
	RemoteTimeout time.Duration

	// Supabase configuration
	SupabaseURL     string
	SupabaseAnonKey string
	SupabaseTable   string

	// AWS configuration
	AWSRegion          string
	DynamoDBTable      string
	DynamoDBEndpoint   string
	StreamPollInterval time.Duration

	// Authentication. HS256 signs with JWTSecret; RS256 signs with the PEM
	// private key and verifies with the PEM public key.
	JWTSigningMethod string
	JWTSecret        string
	JWTPrivateKey    string
	JWTPublicKey     string
	JWTIssuer        string
	JWTExpiry        time.Duration

	// Session refresh cadence for token rotation
	SessionRefreshInterval time.Duration

	// Preferences
	PreferencesFile string

	// Logging
	LogLevel string

	// Circuit breaker
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	// Feature flags
	EnableMetrics  bool
	EnableTracing  bool
	OTLPEndpoint   string
	EnableCORS     bool
	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		RemoteBackend: strings.ToLower(getEnv("REMOTE_BACKEND", BackendNone)),
		TokenAudience: getEnv("TOKEN_AUDIENCE", "supabase"),
		RemoteTimeout: getEnvDuration("REMOTE_TIMEOUT", 15*time.Second),

		SupabaseURL:     getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey: getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseTable:   getEnv("SUPABASE_TABLE", "lists"),

		AWSRegion:          getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:      getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "")),
		DynamoDBEndpoint:   getEnv("DYNAMODB_ENDPOINT", ""),
		StreamPollInterval: getEnvDuration("STREAM_POLL_INTERVAL", time.Second),

		JWTSigningMethod: strings.ToUpper(getEnv("JWT_SIGNING_METHOD", "HS256")),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTPrivateKey:    getEnv("JWT_PRIVATE_KEY", ""),
		JWTPublicKey:     getEnv("JWT_PUBLIC_KEY", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "taskable"),
		JWTExpiry:        getEnvDuration("JWT_EXPIRY", time.Hour),

		SessionRefreshInterval: getEnvDuration("SESSION_REFRESH_INTERVAL", 30*time.Second),

		PreferencesFile: getEnv("PREFERENCES_FILE", "preferences.yaml"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		BreakerMaxFailures: uint32(getEnvInt("BREAKER_MAX_FAILURES", 5)),
		BreakerTimeout:     getEnvDuration("BREAKER_TIMEOUT", 30*time.Second),

		EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
		EnableTracing:  getEnvBool("ENABLE_TRACING", false),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableCORS:     getEnvBool("ENABLE_CORS", true),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected remote backend has its credentials.
// A missing credential is fatal; there is no fallback backend.
func (c *Config) Validate() error {
	switch c.RemoteBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return apperrors.NewConfigError("SUPABASE_URL is required for the supabase backend")
		}
		if c.SupabaseAnonKey == "" {
			return apperrors.NewConfigError("SUPABASE_ANON_KEY is required for the supabase backend")
		}
	case BackendDynamoDB:
		if c.DynamoDBTable == "" {
			return apperrors.NewConfigError("DYNAMODB_TABLE is required for the dynamodb backend")
		}
		if err := c.validateSigningKeys(); err != nil {
			return err
		}
	case BackendMemory:
		if err := c.validateSigningKeys(); err != nil {
			return err
		}
	case BackendNone:
	default:
		return apperrors.NewConfigError(fmt.Sprintf("unknown REMOTE_BACKEND %q", c.RemoteBackend))
	}

	switch c.JWTSigningMethod {
	case "", "HS256", "RS256":
	default:
		return apperrors.NewConfigError(fmt.Sprintf("unsupported JWT_SIGNING_METHOD %q", c.JWTSigningMethod))
	}

	if c.SessionRefreshInterval <= 0 {
		return apperrors.NewConfigError("SESSION_REFRESH_INTERVAL must be positive")
	}

	return nil
}

// validateSigningKeys requires the key material of the configured signing
// method for backends that verify locally issued tokens
func (c *Config) validateSigningKeys() error {
	if c.JWTSigningMethod == "RS256" {
		if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
			return apperrors.NewConfigError(fmt.Sprintf("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required for RS256 with the %s backend", c.RemoteBackend))
		}
		return nil
	}
	if c.JWTSecret == "" {
		return apperrors.NewConfigError(fmt.Sprintf("JWT_SECRET is required for the %s backend", c.RemoteBackend))
	}
	return nil
}

// UsesLocalIdentity reports whether tokens are minted by the local issuer
func (c *Config) UsesLocalIdentity() bool {
	return c.RemoteBackend == BackendDynamoDB || c.RemoteBackend == BackendMemory
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration parses values like "30s" or "5m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
