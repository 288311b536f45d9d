// Package observability provides structured logging, panic recovery,
// OpenTelemetry bootstrap and ordered shutdown shared by beacon and its backends.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.ParseLevel("info"), os.Stdout)
//	logger.WithField("event", "App opened").Info("event dispatched")
//
// Loggers travel through context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("backend unavailable")
//
// # Panic Recovery
//
//	defer observability.RecoverPanic(logger, "redis director")
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "beacon-demo",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Shutdown
//
// ShutdownManager runs registered hooks in reverse order under one timeout:
//
//	sm := observability.NewShutdownManager(logger, 15*time.Second)
//	sm.Register("sql", func(ctx context.Context) error { return sink.Close() })
//	defer sm.Shutdown(context.Background())
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/adapters/otelsink: Records analytics events as span events
package observability
