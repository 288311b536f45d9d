// Package config loads the beacon bootstrap configuration.
//
// # Overview
//
// Values start from defaults, are overlaid by an optional YAML file named by
// BEACON_CONFIG_FILE, and finally by environment variables. The result is
// validated before it is returned.
//
// # Configuration Structure
//
// General and server settings:
//
//	BEACON_USER_ID="user-123"           # empty: adapters start anonymous
//	BEACON_METRICS_ADDR=":9090"
//	BEACON_SHUTDOWN_TIMEOUT="15s"
//
// Observability settings:
//
//	BEACON_LOG_LEVEL="info"  # debug, info, warn, error
//	BEACON_METRICS_ENABLED="true"
//	BEACON_OTEL_ENABLED="true"
//	BEACON_OTEL_ENDPOINT="otel-collector:4317"
//	BEACON_OTEL_SAMPLE_RATIO="0.1"
//
// Adapter settings:
//
//	BEACON_LOG_ADAPTER_ENABLED="true"
//	BEACON_PROMETHEUS_ADAPTER_ENABLED="true"
//	BEACON_REDIS_ADAPTER_ENABLED="true"
//	BEACON_REDIS_URL="redis://localhost:6379"
//	BEACON_SQL_ADAPTER_ENABLED="true"
//	BEACON_SQL_DRIVER="postgres"  # postgres, sqlite3
//	BEACON_SQL_DSN="postgres://localhost/beacon?sslmode=disable"
//	BEACON_FILE_ADAPTER_ENABLED="true"
//	BEACON_FILE_DIR="/var/log/beacon"
//	BEACON_ASYNC_ENABLED="true"      # wrap slow adapters in a worker pool
//
// The same settings in YAML:
//
//	user_id: user-123
//	observability:
//	  log_level: debug
//	  otel:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	adapters:
//	  redis:
//	    enabled: true
//	    url: redis://localhost:6379
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Reloading
//
// Watch follows the YAML file and calls back with each valid new
// configuration:
//
//	go config.Watch(ctx, path, log, func(cfg *config.Config) {
//		logger.SetLevel(observability.ParseLevel(cfg.Observability.LogLevel))
//	})
//
// # Related Packages
//
//   - pkg/observability: logging and OpenTelemetry settings
//   - pkg/adapters: adapter settings
package config
