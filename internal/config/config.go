package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Firewall FirewallConfig
	Throttle ThrottleConfig
	Profiler ProfilerConfig
	Geo      GeoConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// FirewallConfig is the request inspector's settings snapshot. It is read
// once at startup and treated as immutable for the life of the process.
type FirewallConfig struct {
	Enabled                bool
	RateLimitingEnabled    bool
	RequestsPerMinute      int
	CountryBlockingEnabled bool
	BlockedCountries       []string
	InternalCIDRs          []string // requests from these ranges skip inspection
}

type ThrottleConfig struct {
	FailureWindow    time.Duration // trailing window for failure counts
	AttemptRetention time.Duration // ledger retention for the hygiene sweep
	EventRetention   time.Duration // firewall block event retention
	CleanupInterval  time.Duration
}

type ProfilerConfig struct {
	Enabled bool
}

type GeoConfig struct {
	LookupTimeout time.Duration
	CacheTTL      time.Duration
}

type EmailConfig struct {
	Enabled       bool
	AWSRegion     string
	FromAddress   string
	OperatorEmail string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
		},
		Firewall: FirewallConfig{
			Enabled:                getEnvAsBool("FIREWALL_ENABLED", true),
			RateLimitingEnabled:    getEnvAsBool("RATE_LIMITING_ENABLED", false),
			RequestsPerMinute:      getEnvAsInt("REQUESTS_PER_MINUTE", 120),
			CountryBlockingEnabled: getEnvAsBool("COUNTRY_BLOCKING_ENABLED", false),
			BlockedCountries:       getEnvAsList("BLOCKED_COUNTRIES", nil),
			InternalCIDRs:          getEnvAsList("INTERNAL_CIDRS", []string{"127.0.0.0/8", "::1/128"}),
		},
		Throttle: ThrottleConfig{
			FailureWindow:    getEnvAsDuration("FAILURE_WINDOW", 1*time.Hour),
			AttemptRetention: getEnvAsDuration("ATTEMPT_RETENTION", 30*24*time.Hour),
			EventRetention:   getEnvAsDuration("EVENT_RETENTION", 90*24*time.Hour),
			CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Profiler: ProfilerConfig{
			Enabled: getEnvAsBool("PROFILER_ENABLED", true),
		},
		Geo: GeoConfig{
			LookupTimeout: getEnvAsDuration("GEO_LOOKUP_TIMEOUT", 2*time.Second),
			CacheTTL:      getEnvAsDuration("GEO_CACHE_TTL", 24*time.Hour),
		},
		Email: EmailConfig{
			Enabled:       getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
			FromAddress:   getEnv("EMAIL_FROM", ""),
			OperatorEmail: getEnv("OPERATOR_EMAIL", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Firewall.RateLimitingEnabled && cfg.Firewall.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	if cfg.Email.Enabled && (cfg.Email.FromAddress == "" || cfg.Email.OperatorEmail == "") {
		return nil, fmt.Errorf("EMAIL_FROM and OPERATOR_EMAIL are required when EMAIL_ENABLED=true")
	}

	for i, c := range cfg.Firewall.BlockedCountries {
		cfg.Firewall.BlockedCountries[i] = strings.ToUpper(c)
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
