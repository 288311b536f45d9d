// Command beacon-demo runs an analytics dispatcher with the adapters
// enabled in configuration and exposes it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/observability"
)

var (
	heartbeatSchedule = flag.String("heartbeat", "@every 1m", "Cron schedule for the heartbeat event (empty disables it)")
	addr              = flag.String("addr", "", "HTTP listen address (overrides server.metrics_addr)")
)

type heartbeat struct {
	UptimeSeconds   int64 `json:"uptime_seconds"`
	EventLoggers    int   `json:"event_loggers"`
	RecoveredPanics int64 `json:"recovered_panics"`
}

var heartbeatEvent = analytics.NewEventKey[heartbeat]("Heartbeat")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "beacon-demo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.MetricsAddr = *addr
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout)
	log := logger.WithField("service", "beacon-demo")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, log)
	})

	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	dispatcher, b, err := setupDispatcher(ctx, cfg, log, registry, providers, shutdown)
	if err != nil {
		_ = shutdown.Shutdown(context.Background())
		return err
	}

	started := time.Now()
	var scheduler *cron.Cron
	if *heartbeatSchedule != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(*heartbeatSchedule, heartbeatJob(ctx, dispatcher, started, log))
		if err != nil {
			_ = shutdown.Shutdown(context.Background())
			return fmt.Errorf("invalid heartbeat schedule %q: %w", *heartbeatSchedule, err)
		}
		scheduler.Start()
		shutdown.Register("heartbeat", func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	srv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           newRouter(&server{dispatcher: dispatcher, backends: b, log: log}, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if path := os.Getenv(config.ConfigFileEnv); path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, log, func(next *config.Config) {
				level := observability.ParseLevel(next.Observability.LogLevel)
				if level != logger.GetLevel() {
					logger.SetLevel(level)
					log.WithField("level", level.String()).Info("Log level changed")
				}
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("HTTP server shutdown failed")
		}
		return nil
	})

	runErr := g.Wait()

	if err := shutdown.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("Shutdown completed with errors")
	}
	if runErr != nil {
		return runErr
	}

	log.WithFields(logrus.Fields{"uptime": time.Since(started).Round(time.Second).String()}).Info("Stopped")
	return nil
}

// heartbeatJob logs the Heartbeat event. A panic ends the run, not the
// scheduler.
func heartbeatJob(ctx context.Context, dispatcher *analytics.Dispatcher, started time.Time, log logrus.FieldLogger) func() {
	return func() {
		defer observability.RecoverPanic(log, "heartbeat job")

		payload := heartbeat{
			UptimeSeconds:   int64(time.Since(started).Seconds()),
			EventLoggers:    len(dispatcher.EventLoggers()),
			RecoveredPanics: dispatcher.RecoveredPanics(),
		}
		if err := analytics.LogEventWith(ctx, dispatcher, heartbeatEvent, payload); err != nil {
			log.WithError(err).Warn("Failed to log heartbeat")
		}
	}
}
