package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{"returns true for 'true'", false, "true", true},
		{"returns true for 'TRUE'", false, "TRUE", true},
		{"returns true for '1'", false, "1", true},
		{"returns false for 'false'", true, "false", false},
		{"returns false for garbage", true, "yes please", false},
		{"returns default when unset", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			assert.Equal(t, tt.want, getEnvBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

// TestGetEnvNumeric tests the numeric and duration helpers
func TestGetEnvNumeric(t *testing.T) {
	t.Run("int", func(t *testing.T) {
		t.Setenv("TEST_INT", "42")
		assert.Equal(t, 42, getEnvInt("TEST_INT", 1))
	})
	t.Run("invalid int falls back", func(t *testing.T) {
		t.Setenv("TEST_INT", "forty-two")
		assert.Equal(t, 1, getEnvInt("TEST_INT", 1))
	})
	t.Run("int64", func(t *testing.T) {
		t.Setenv("TEST_INT64", "1048576")
		assert.Equal(t, int64(1048576), getEnvInt64("TEST_INT64", 0))
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("TEST_DURATION", "90s")
		assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	})
	t.Run("float", func(t *testing.T) {
		t.Setenv("TEST_FLOAT", "0.25")
		assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	})
	t.Run("invalid duration falls back", func(t *testing.T) {
		t.Setenv("TEST_DURATION", "ninety")
		assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.UserID)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTel.Enabled)
	assert.True(t, cfg.Adapters.Log.Enabled)
	assert.True(t, cfg.Adapters.Prometheus.Enabled)
	assert.False(t, cfg.Adapters.Redis.Enabled)
	assert.False(t, cfg.Adapters.SQL.Enabled)
	assert.Equal(t, 1, cfg.Adapters.Async.Workers)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BEACON_USER_ID", "user-7")
	t.Setenv("BEACON_LOG_LEVEL", "debug")
	t.Setenv("BEACON_REDIS_ADAPTER_ENABLED", "true")
	t.Setenv("BEACON_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("BEACON_REDIS_TTL", "24h")
	t.Setenv("BEACON_SQL_ADAPTER_ENABLED", "1")
	t.Setenv("BEACON_SQL_DRIVER", "postgres")
	t.Setenv("BEACON_SQL_DSN", "postgres://db/beacon")
	t.Setenv("BEACON_ASYNC_WORKERS", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "user-7", cfg.UserID)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.True(t, cfg.Adapters.Redis.Enabled)
	assert.Equal(t, "redis://cache:6379/2", cfg.Adapters.Redis.URL)
	assert.Equal(t, 24*time.Hour, cfg.Adapters.Redis.TTL)
	assert.True(t, cfg.Adapters.SQL.Enabled)
	assert.Equal(t, "postgres", cfg.Adapters.SQL.Driver)
	assert.Equal(t, 4, cfg.Adapters.Async.Workers)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfigFile(t, `
user_id: file-user
server:
  shutdown_timeout: 5s
observability:
  log_level: warn
  otel:
    enabled: true
    endpoint: collector:4317
adapters:
  redis:
    enabled: true
    url: redis://file:6379
    key_prefix: app
  file:
    enabled: true
    dir: /tmp/beacon
    max_files: 3
  async:
    enabled: true
    workers: 2
    timeout: 2s
`)
	t.Setenv(ConfigFileEnv, path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "file-user", cfg.UserID)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.OTel.Enabled)
	assert.Equal(t, "collector:4317", cfg.Observability.OTel.Endpoint)
	assert.Equal(t, "beacon", cfg.Observability.OTel.ServiceName, "defaults survive the overlay")
	assert.Equal(t, "redis://file:6379", cfg.Adapters.Redis.URL)
	assert.Equal(t, "app", cfg.Adapters.Redis.KeyPrefix)
	assert.Equal(t, "/tmp/beacon", cfg.Adapters.File.Dir)
	assert.Equal(t, 3, cfg.Adapters.File.MaxFiles)
	assert.True(t, cfg.Adapters.File.Rotate)
	assert.Equal(t, 2, cfg.Adapters.Async.Workers)
	assert.Equal(t, 2*time.Second, cfg.Adapters.Async.Timeout)
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, "user_id: file-user\n")
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("BEACON_USER_ID", "env-user")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.UserID)
}

func TestLoadConfig_FileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, writeConfigFile(t, "adapters: [not, a, map"))
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "metrics without address",
			mutate:  func(c *Config) { c.Server.MetricsAddr = "" },
			wantErr: "metrics address is required",
		},
		{
			name: "prometheus adapter without metrics",
			mutate: func(c *Config) {
				c.Observability.MetricsEnabled = false
			},
			wantErr: "prometheus adapter requires metrics",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTel.Enabled = true
				c.Observability.OTel.Endpoint = ""
			},
			wantErr: "OpenTelemetry endpoint is required",
		},
		{
			name: "otel without service name",
			mutate: func(c *Config) {
				c.Observability.OTel.Enabled = true
				c.Observability.OTel.ServiceName = ""
			},
			wantErr: "OpenTelemetry service name is required",
		},
		{
			name: "otel sample ratio out of range",
			mutate: func(c *Config) {
				c.Observability.OTel.Enabled = true
				c.Observability.OTel.SampleRatio = 1.5
			},
			wantErr: "sample ratio must be between 0 and 1",
		},
		{
			name: "invalid log adapter level",
			mutate: func(c *Config) {
				c.Adapters.Log.Level = "loud"
			},
			wantErr: "invalid log adapter level",
		},
		{
			name: "redis without url",
			mutate: func(c *Config) {
				c.Adapters.Redis.Enabled = true
				c.Adapters.Redis.URL = ""
			},
			wantErr: "redis URL is required",
		},
		{
			name: "sql with unknown driver",
			mutate: func(c *Config) {
				c.Adapters.SQL.Enabled = true
				c.Adapters.SQL.Driver = "oracle"
			},
			wantErr: "unsupported sql driver",
		},
		{
			name: "sql without dsn",
			mutate: func(c *Config) {
				c.Adapters.SQL.Enabled = true
				c.Adapters.SQL.DSN = ""
			},
			wantErr: "sql DSN is required",
		},
		{
			name: "file without dir",
			mutate: func(c *Config) {
				c.Adapters.File.Enabled = true
				c.Adapters.File.Dir = ""
			},
			wantErr: "directory is required",
		},
		{
			name: "negative async workers",
			mutate: func(c *Config) {
				c.Adapters.Async.Enabled = true
				c.Adapters.Async.Workers = -1
			},
			wantErr: "async workers must not be negative",
		},
		{
			name: "disabled adapters are not validated",
			mutate: func(c *Config) {
				c.Adapters.Redis.URL = ""
				c.Adapters.SQL.Driver = "oracle"
				c.Adapters.File.Dir = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
