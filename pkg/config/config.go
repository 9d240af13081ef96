package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lmskit/gatekeeper/pkg/observability"
	"github.com/lmskit/gatekeeper/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Authentication configuration
	Auth AuthConfig

	// Observability configuration
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
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	// OIDC identity resolution
	OIDCEnabled  bool
	OIDCIssuer   string
	OIDCClientID string

	// Service-to-service API tokens
	TokensEnabled bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string
	ServiceName     string
	ServiceVersion  string
	TracingInsecure bool
}

// fileConfig mirrors the YAML config file layout. Every field is
// optional; absent fields keep the defaults.
type fileConfig struct {
	Server struct {
		Host            string `yaml:"host"`
		Port            string `yaml:"port"`
		HealthPort      string `yaml:"health_port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		MaxBodyBytes    int64  `yaml:"max_body_bytes"`
	} `yaml:"server"`
	Storage struct {
		PostgresURL      string `yaml:"postgres_url"`
		PostgresMaxConns int    `yaml:"postgres_max_conns"`
		PostgresMinConns int    `yaml:"postgres_min_conns"`
		RedisURL         string `yaml:"redis_url"`
		CacheEnabled     *bool  `yaml:"cache_enabled"`
		CacheTTL         string `yaml:"cache_ttl"`
	} `yaml:"storage"`
	Auth struct {
		OIDCEnabled   *bool  `yaml:"oidc_enabled"`
		OIDCIssuer    string `yaml:"oidc_issuer"`
		OIDCClientID  string `yaml:"oidc_client_id"`
		TokensEnabled *bool  `yaml:"tokens_enabled"`
	} `yaml:"auth"`
	Observability struct {
		LogLevel        string `yaml:"log_level"`
		MetricsEnabled  *bool  `yaml:"metrics_enabled"`
		TracingEnabled  *bool  `yaml:"tracing_enabled"`
		TracingEndpoint string `yaml:"tracing_endpoint"`
		ServiceName     string `yaml:"service_name"`
		ServiceVersion  string `yaml:"service_version"`
	} `yaml:"observability"`
}

// LoadConfig builds the configuration in three layers: built-in
// defaults, then the YAML file named by GATEKEEPER_CONFIG_FILE (if
// set), then GATEKEEPER_* environment variables. Later layers win.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("GATEKEEPER_CONFIG_FILE"); path != "" {
		if err := applyConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Auth: AuthConfig{
			TokensEnabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:        observability.InfoLevel,
			MetricsEnabled:  true,
			TracingEndpoint: "localhost:4317",
			ServiceName:     "gatekeeper",
			ServiceVersion:  "1.0.0",
			TracingInsecure: true,
		},
	}
}

func applyConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	setString(&cfg.Server.Host, fc.Server.Host)
	setString(&cfg.Server.Port, fc.Server.Port)
	setString(&cfg.Server.HealthPort, fc.Server.HealthPort)
	setDuration(&cfg.Server.ReadTimeout, fc.Server.ReadTimeout)
	setDuration(&cfg.Server.WriteTimeout, fc.Server.WriteTimeout)
	setDuration(&cfg.Server.IdleTimeout, fc.Server.IdleTimeout)
	setDuration(&cfg.Server.ShutdownTimeout, fc.Server.ShutdownTimeout)
	if fc.Server.MaxBodyBytes > 0 {
		cfg.Server.MaxBodyBytes = fc.Server.MaxBodyBytes
	}

	setString(&cfg.Storage.PostgresURL, fc.Storage.PostgresURL)
	if fc.Storage.PostgresMaxConns > 0 {
		cfg.Storage.PostgresMaxConns = fc.Storage.PostgresMaxConns
	}
	if fc.Storage.PostgresMinConns > 0 {
		cfg.Storage.PostgresMinConns = fc.Storage.PostgresMinConns
	}
	setString(&cfg.Storage.RedisURL, fc.Storage.RedisURL)
	setBoolPtr(&cfg.Storage.CacheEnabled, fc.Storage.CacheEnabled)
	setDuration(&cfg.Storage.CacheTTL, fc.Storage.CacheTTL)

	setBoolPtr(&cfg.Auth.OIDCEnabled, fc.Auth.OIDCEnabled)
	setString(&cfg.Auth.OIDCIssuer, fc.Auth.OIDCIssuer)
	setString(&cfg.Auth.OIDCClientID, fc.Auth.OIDCClientID)
	setBoolPtr(&cfg.Auth.TokensEnabled, fc.Auth.TokensEnabled)

	if fc.Observability.LogLevel != "" {
		cfg.Observability.LogLevel = parseLogLevel(fc.Observability.LogLevel)
	}
	setBoolPtr(&cfg.Observability.MetricsEnabled, fc.Observability.MetricsEnabled)
	setBoolPtr(&cfg.Observability.TracingEnabled, fc.Observability.TracingEnabled)
	setString(&cfg.Observability.TracingEndpoint, fc.Observability.TracingEndpoint)
	setString(&cfg.Observability.ServiceName, fc.Observability.ServiceName)
	setString(&cfg.Observability.ServiceVersion, fc.Observability.ServiceVersion)

	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("GATEKEEPER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("GATEKEEPER_PORT", cfg.Server.Port)
	cfg.Server.HealthPort = getEnv("GATEKEEPER_HEALTH_PORT", cfg.Server.HealthPort)
	cfg.Server.ReadTimeout = getEnvDuration("GATEKEEPER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.MaxBodyBytes = getEnvInt64("GATEKEEPER_MAX_BODY_BYTES", cfg.Server.MaxBodyBytes)

	cfg.Storage.PostgresURL = getEnv("GATEKEEPER_POSTGRES_URL", cfg.Storage.PostgresURL)
	cfg.Storage.PostgresMaxConns = getEnvInt("GATEKEEPER_POSTGRES_MAX_CONNS", cfg.Storage.PostgresMaxConns)
	cfg.Storage.PostgresMinConns = getEnvInt("GATEKEEPER_POSTGRES_MIN_CONNS", cfg.Storage.PostgresMinConns)
	cfg.Storage.PostgresTimeout = getEnvDuration("GATEKEEPER_POSTGRES_TIMEOUT", cfg.Storage.PostgresTimeout)
	cfg.Storage.RedisURL = getEnv("GATEKEEPER_REDIS_URL", cfg.Storage.RedisURL)
	cfg.Storage.RedisPassword = getEnv("GATEKEEPER_REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getEnvInt("GATEKEEPER_REDIS_DB", cfg.Storage.RedisDB)
	cfg.Storage.RedisMaxRetries = getEnvInt("GATEKEEPER_REDIS_MAX_RETRIES", cfg.Storage.RedisMaxRetries)
	cfg.Storage.RedisPoolSize = getEnvInt("GATEKEEPER_REDIS_POOL_SIZE", cfg.Storage.RedisPoolSize)
	cfg.Storage.CacheEnabled = getEnvBool("GATEKEEPER_CACHE_ENABLED", cfg.Storage.CacheEnabled)
	cfg.Storage.CacheTTL = getEnvDuration("GATEKEEPER_CACHE_TTL", cfg.Storage.CacheTTL)

	cfg.Auth.OIDCEnabled = getEnvBool("GATEKEEPER_OIDC_ENABLED", cfg.Auth.OIDCEnabled)
	cfg.Auth.OIDCIssuer = getEnv("GATEKEEPER_OIDC_ISSUER", cfg.Auth.OIDCIssuer)
	cfg.Auth.OIDCClientID = getEnv("GATEKEEPER_OIDC_CLIENT_ID", cfg.Auth.OIDCClientID)
	cfg.Auth.TokensEnabled = getEnvBool("GATEKEEPER_TOKENS_ENABLED", cfg.Auth.TokensEnabled)

	if level := os.Getenv("GATEKEEPER_LOG_LEVEL"); level != "" {
		cfg.Observability.LogLevel = parseLogLevel(level)
	}
	cfg.Observability.MetricsEnabled = getEnvBool("GATEKEEPER_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.TracingEnabled = getEnvBool("GATEKEEPER_TRACING_ENABLED", cfg.Observability.TracingEnabled)
	cfg.Observability.TracingEndpoint = getEnv("GATEKEEPER_TRACING_ENDPOINT", cfg.Observability.TracingEndpoint)
	cfg.Observability.ServiceName = getEnv("GATEKEEPER_SERVICE_NAME", cfg.Observability.ServiceName)
	cfg.Observability.ServiceVersion = getEnv("GATEKEEPER_SERVICE_VERSION", cfg.Observability.ServiceVersion)
	cfg.Observability.TracingInsecure = getEnvBool("GATEKEEPER_TRACING_INSECURE", cfg.Observability.TracingInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the decision cache is enabled")
	}

	if c.Auth.OIDCEnabled {
		if c.Auth.OIDCIssuer == "" {
			return fmt.Errorf("OIDC issuer is required when OIDC is enabled")
		}
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC client ID is required when OIDC is enabled")
		}
	}

	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
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

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setBoolPtr(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func setDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
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
