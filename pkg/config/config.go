package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// MinTokenSecretLength is the shortest HMAC secret accepted for session tokens
const MinTokenSecretLength = 32

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Billing       BillingConfig       `yaml:"billing"`
	Audit         AuditConfig         `yaml:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis and the
// token denylist falls back to process memory.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AuthConfig holds session token and permission cache settings
type AuthConfig struct {
	TokenSecret         string        `yaml:"token_secret"`
	TokenTTL            time.Duration `yaml:"token_ttl"`
	Issuer              string        `yaml:"issuer"`
	PermissionCacheTTL  time.Duration `yaml:"permission_cache_ttl"`
	PermissionCacheSize int           `yaml:"permission_cache_size"`
	LoginAttemptsPerMin int           `yaml:"login_attempts_per_minute"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// BillingConfig controls the expired subscription sweep
type BillingConfig struct {
	SweepEnabled  bool   `yaml:"sweep_enabled"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

// AuditConfig controls the security event trail. Events older than
// Retention are purged on CleanupSchedule; zero retention keeps everything.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Retention       time.Duration `yaml:"retention"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{PoolSize: 10},
		Auth: AuthConfig{
			TokenTTL:            12 * time.Hour,
			Issuer:              "tablekeep",
			PermissionCacheTTL:  5 * time.Minute,
			PermissionCacheSize: 16,
			LoginAttemptsPerMin: 10,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tablekeep",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Billing: BillingConfig{
			SweepEnabled:  true,
			SweepSchedule: "@every 1h",
		},
		Audit: AuditConfig{
			Enabled:         true,
			Retention:       90 * 24 * time.Hour,
			CleanupSchedule: "@daily",
		},
	}
}

// LoadConfig builds configuration from defaults, then the YAML file named by
// TABLEKEEP_CONFIG_FILE, then TABLEKEEP_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TABLEKEEP_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("TABLEKEEP_HOST", s.Host)
	s.Port = getEnv("TABLEKEEP_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TABLEKEEP_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TABLEKEEP_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TABLEKEEP_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TABLEKEEP_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.CORSOrigins = getEnvList("TABLEKEEP_CORS_ORIGINS", s.CORSOrigins)

	d := &c.Database
	d.URL = getEnv("TABLEKEEP_DATABASE_URL", d.URL)
	d.MaxOpenConns = getEnvInt("TABLEKEEP_DATABASE_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("TABLEKEEP_DATABASE_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvDuration("TABLEKEEP_DATABASE_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.MigrateOnStart = getEnvBool("TABLEKEEP_DATABASE_MIGRATE", d.MigrateOnStart)

	r := &c.Redis
	r.URL = getEnv("TABLEKEEP_REDIS_URL", r.URL)
	r.Password = getEnv("TABLEKEEP_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("TABLEKEEP_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("TABLEKEEP_REDIS_POOL_SIZE", r.PoolSize)

	a := &c.Auth
	a.TokenSecret = getEnv("TABLEKEEP_TOKEN_SECRET", a.TokenSecret)
	a.TokenTTL = getEnvDuration("TABLEKEEP_TOKEN_TTL", a.TokenTTL)
	a.Issuer = getEnv("TABLEKEEP_TOKEN_ISSUER", a.Issuer)
	a.PermissionCacheTTL = getEnvDuration("TABLEKEEP_PERMISSION_CACHE_TTL", a.PermissionCacheTTL)
	a.PermissionCacheSize = getEnvInt("TABLEKEEP_PERMISSION_CACHE_SIZE", a.PermissionCacheSize)
	a.LoginAttemptsPerMin = getEnvInt("TABLEKEEP_LOGIN_ATTEMPTS_PER_MINUTE", a.LoginAttemptsPerMin)

	o := &c.Observability
	o.LogLevel = getEnv("TABLEKEEP_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TABLEKEEP_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TABLEKEEP_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TABLEKEEP_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TABLEKEEP_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TABLEKEEP_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TABLEKEEP_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TABLEKEEP_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)

	b := &c.Billing
	b.SweepEnabled = getEnvBool("TABLEKEEP_BILLING_SWEEP_ENABLED", b.SweepEnabled)
	b.SweepSchedule = getEnv("TABLEKEEP_BILLING_SWEEP_SCHEDULE", b.SweepSchedule)

	au := &c.Audit
	au.Enabled = getEnvBool("TABLEKEEP_AUDIT_ENABLED", au.Enabled)
	au.Retention = getEnvDuration("TABLEKEEP_AUDIT_RETENTION", au.Retention)
	au.CleanupSchedule = getEnv("TABLEKEEP_AUDIT_CLEANUP_SCHEDULE", au.CleanupSchedule)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if len(c.Auth.TokenSecret) < MinTokenSecretLength {
		return fmt.Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	if c.Billing.SweepEnabled {
		if _, err := cron.ParseStandard(c.Billing.SweepSchedule); err != nil {
			return fmt.Errorf("invalid billing sweep schedule %q: %w", c.Billing.SweepSchedule, err)
		}
	}

	if c.Audit.Enabled && c.Audit.Retention > 0 {
		if _, err := cron.ParseStandard(c.Audit.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid audit cleanup schedule %q: %w", c.Audit.CleanupSchedule, err)
		}
	}

	return nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvList splits a comma separated variable, trimming blanks
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
