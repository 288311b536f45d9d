package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/beacon/pkg/adapters/asyncsink"
	"github.com/platinummonkey/beacon/pkg/adapters/filesink"
	"github.com/platinummonkey/beacon/pkg/adapters/memsink"
	"github.com/platinummonkey/beacon/pkg/adapters/redisprofile"
	"github.com/platinummonkey/beacon/pkg/adapters/sqlsink"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// ConfigFileEnv names the environment variable pointing at a YAML file
const ConfigFileEnv = "BEACON_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	// UserID is passed to every event adapter at registration.
	// Empty means the user is not known yet.
	UserID string `yaml:"user_id"`

	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
	Adapters      AdaptersConfig      `yaml:"adapters"`
}

// ServerConfig holds the metrics HTTP server configuration
type ServerConfig struct {
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string                   `yaml:"log_level"`
	MetricsEnabled bool                     `yaml:"metrics_enabled"`
	OTel           observability.OTelConfig `yaml:"otel"`
}

// AdaptersConfig selects and configures the analytics adapters
type AdaptersConfig struct {
	Log        LogAdapterConfig        `yaml:"log"`
	Prometheus PrometheusAdapterConfig `yaml:"prometheus"`
	OTel       ToggleConfig            `yaml:"otel"`
	Memory     MemoryAdapterConfig     `yaml:"memory"`
	Redis      RedisAdapterConfig      `yaml:"redis"`
	SQL        SQLAdapterConfig        `yaml:"sql"`
	File       FileAdapterConfig       `yaml:"file"`
	Async      AsyncConfig             `yaml:"async"`
}

// ToggleConfig enables an adapter with no other settings
type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogAdapterConfig configures the logrus adapter
type LogAdapterConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// PrometheusAdapterConfig configures the Prometheus adapter
type PrometheusAdapterConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// MemoryAdapterConfig configures the in-memory profile store
type MemoryAdapterConfig struct {
	Enabled        bool `yaml:"enabled"`
	memsink.Config `yaml:",inline"`
}

// RedisAdapterConfig configures the Redis profile director
type RedisAdapterConfig struct {
	Enabled             bool `yaml:"enabled"`
	redisprofile.Config `yaml:",inline"`
}

// SQLAdapterConfig configures the SQL sink
type SQLAdapterConfig struct {
	Enabled        bool `yaml:"enabled"`
	sqlsink.Config `yaml:",inline"`
}

// FileAdapterConfig configures the NDJSON file sink
type FileAdapterConfig struct {
	Enabled         bool `yaml:"enabled"`
	filesink.Config `yaml:",inline"`
}

// AsyncConfig wraps the network-bound adapters (Redis, SQL, file) in a
// worker pool when enabled
type AsyncConfig struct {
	Enabled          bool `yaml:"enabled"`
	asyncsink.Config `yaml:",inline"`
}

// DefaultConfig returns the configuration used before any file or
// environment overrides
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsAddr:     ":9090",
			ShutdownTimeout: 15 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "beacon",
				ServiceVersion: "1.0.0",
				Insecure:       true,
			},
		},
		Adapters: AdaptersConfig{
			Log:        LogAdapterConfig{Enabled: true, Level: "info"},
			Prometheus: PrometheusAdapterConfig{Enabled: true, Namespace: "beacon"},
			Memory:     MemoryAdapterConfig{Config: memsink.DefaultConfig()},
			Redis:      RedisAdapterConfig{Config: redisprofile.Config{URL: "redis://localhost:6379", KeyPrefix: "beacon"}},
			SQL:        SQLAdapterConfig{Config: sqlsink.Config{Driver: "sqlite3", DSN: "file:beacon.db?cache=shared"}},
			File:       FileAdapterConfig{Config: filesink.DefaultConfig()},
			Async:      AsyncConfig{Config: asyncsink.DefaultConfig()},
		},
	}
}

// LoadConfig loads defaults, the optional YAML file and environment
// variables, in that order of precedence, and validates the result
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := getEnv(ConfigFileEnv, ""); path != "" {
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

// loadFile overlays the YAML file at path onto c
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

// applyEnv overrides c with every BEACON_* variable that is set
func (c *Config) applyEnv() {
	c.UserID = getEnv("BEACON_USER_ID", c.UserID)

	c.Server.MetricsAddr = getEnv("BEACON_METRICS_ADDR", c.Server.MetricsAddr)
	c.Server.ShutdownTimeout = getEnvDuration("BEACON_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	o := &c.Observability
	o.LogLevel = getEnv("BEACON_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("BEACON_METRICS_ENABLED", o.MetricsEnabled)
	o.OTel.Enabled = getEnvBool("BEACON_OTEL_ENABLED", o.OTel.Enabled)
	o.OTel.Endpoint = getEnv("BEACON_OTEL_ENDPOINT", o.OTel.Endpoint)
	o.OTel.ServiceName = getEnv("BEACON_OTEL_SERVICE_NAME", o.OTel.ServiceName)
	o.OTel.ServiceVersion = getEnv("BEACON_OTEL_SERVICE_VERSION", o.OTel.ServiceVersion)
	o.OTel.Insecure = getEnvBool("BEACON_OTEL_INSECURE", o.OTel.Insecure)
	o.OTel.SampleRatio = getEnvFloat("BEACON_OTEL_SAMPLE_RATIO", o.OTel.SampleRatio)
	o.OTel.ExportInterval = getEnvDuration("BEACON_OTEL_EXPORT_INTERVAL", o.OTel.ExportInterval)

	a := &c.Adapters
	a.Log.Enabled = getEnvBool("BEACON_LOG_ADAPTER_ENABLED", a.Log.Enabled)
	a.Log.Level = getEnv("BEACON_LOG_ADAPTER_LEVEL", a.Log.Level)

	a.Prometheus.Enabled = getEnvBool("BEACON_PROMETHEUS_ADAPTER_ENABLED", a.Prometheus.Enabled)
	a.Prometheus.Namespace = getEnv("BEACON_PROMETHEUS_NAMESPACE", a.Prometheus.Namespace)

	a.OTel.Enabled = getEnvBool("BEACON_OTEL_ADAPTER_ENABLED", a.OTel.Enabled)

	a.Memory.Enabled = getEnvBool("BEACON_MEMORY_ADAPTER_ENABLED", a.Memory.Enabled)
	a.Memory.MaxUsers = getEnvInt("BEACON_MEMORY_MAX_USERS", a.Memory.MaxUsers)
	a.Memory.TTL = getEnvDuration("BEACON_MEMORY_TTL", a.Memory.TTL)

	a.Redis.Enabled = getEnvBool("BEACON_REDIS_ADAPTER_ENABLED", a.Redis.Enabled)
	a.Redis.URL = getEnv("BEACON_REDIS_URL", a.Redis.URL)
	a.Redis.Password = getEnv("BEACON_REDIS_PASSWORD", a.Redis.Password)
	a.Redis.DB = getEnvInt("BEACON_REDIS_DB", a.Redis.DB)
	a.Redis.PoolSize = getEnvInt("BEACON_REDIS_POOL_SIZE", a.Redis.PoolSize)
	a.Redis.MaxRetries = getEnvInt("BEACON_REDIS_MAX_RETRIES", a.Redis.MaxRetries)
	a.Redis.KeyPrefix = getEnv("BEACON_REDIS_KEY_PREFIX", a.Redis.KeyPrefix)
	a.Redis.TTL = getEnvDuration("BEACON_REDIS_TTL", a.Redis.TTL)

	a.SQL.Enabled = getEnvBool("BEACON_SQL_ADAPTER_ENABLED", a.SQL.Enabled)
	a.SQL.Driver = getEnv("BEACON_SQL_DRIVER", a.SQL.Driver)
	a.SQL.DSN = getEnv("BEACON_SQL_DSN", a.SQL.DSN)

	a.File.Enabled = getEnvBool("BEACON_FILE_ADAPTER_ENABLED", a.File.Enabled)
	a.File.Dir = getEnv("BEACON_FILE_DIR", a.File.Dir)
	a.File.Rotate = getEnvBool("BEACON_FILE_ROTATE", a.File.Rotate)
	a.File.MaxSize = getEnvInt64("BEACON_FILE_MAX_SIZE", a.File.MaxSize)
	a.File.MaxFiles = getEnvInt("BEACON_FILE_MAX_FILES", a.File.MaxFiles)

	a.Async.Enabled = getEnvBool("BEACON_ASYNC_ENABLED", a.Async.Enabled)
	a.Async.Workers = getEnvInt("BEACON_ASYNC_WORKERS", a.Async.Workers)
	a.Async.QueueSize = getEnvInt("BEACON_ASYNC_QUEUE_SIZE", a.Async.QueueSize)
	a.Async.Timeout = getEnvDuration("BEACON_ASYNC_TIMEOUT", a.Async.Timeout)
	a.Async.DropWhenFull = getEnvBool("BEACON_ASYNC_DROP_WHEN_FULL", a.Async.DropWhenFull)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !validLogLevel(c.Observability.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Observability.LogLevel)
	}

	if c.Observability.MetricsEnabled && c.Server.MetricsAddr == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}
	if c.Adapters.Prometheus.Enabled && !c.Observability.MetricsEnabled {
		return fmt.Errorf("prometheus adapter requires metrics to be enabled")
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", r)
		}
	}

	a := c.Adapters
	if a.Log.Enabled && !validLogLevel(a.Log.Level) {
		return fmt.Errorf("invalid log adapter level: %s", a.Log.Level)
	}
	if a.Redis.Enabled && a.Redis.URL == "" {
		return fmt.Errorf("redis URL is required for the redis adapter")
	}
	if a.SQL.Enabled {
		if _, err := sqlsink.ParseDialect(a.SQL.Driver); err != nil {
			return fmt.Errorf("invalid sql adapter: %w", err)
		}
		if a.SQL.DSN == "" {
			return fmt.Errorf("sql DSN is required for the sql adapter")
		}
	}
	if a.File.Enabled && a.File.Dir == "" {
		return fmt.Errorf("directory is required for the file adapter")
	}
	if a.Async.Enabled && a.Async.Workers < 0 {
		return fmt.Errorf("async workers must not be negative")
	}

	return nil
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
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

// getEnvFloat returns a float environment variable or a default
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
