package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/adapters/asyncsink"
	"github.com/platinummonkey/beacon/pkg/adapters/filesink"
	"github.com/platinummonkey/beacon/pkg/adapters/logsink"
	"github.com/platinummonkey/beacon/pkg/adapters/memsink"
	"github.com/platinummonkey/beacon/pkg/adapters/otelsink"
	"github.com/platinummonkey/beacon/pkg/adapters/promsink"
	"github.com/platinummonkey/beacon/pkg/adapters/redisprofile"
	"github.com/platinummonkey/beacon/pkg/adapters/sqlsink"
	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// backends is what setupDispatcher registered, for the HTTP handlers
type backends struct {
	profiles *memsink.Profiles
}

// setupDispatcher creates the dispatcher and registers every adapter the
// configuration enables. providers may be nil, in which case the otel
// adapter uses the global providers. Closers are registered with shutdown so that they
// run before anything registered earlier.
func setupDispatcher(ctx context.Context, cfg *config.Config, log logrus.FieldLogger,
	registry prometheus.Registerer, providers *observability.OTelProviders,
	shutdown *observability.ShutdownManager) (*analytics.Dispatcher, *backends, error) {

	d := analytics.NewDispatcher(analytics.WithLogger(log))
	b := &backends{}
	a := cfg.Adapters

	register := func(name string, logger analytics.EventLogger, director analytics.UserDataDirector) {
		if logger != nil {
			d.RegisterEventLogger(ctx, logger, cfg.UserID)
		}
		if director != nil {
			d.RegisterUserDataDirector(director)
		}
		log.WithFields(logrus.Fields{
			"adapter":  name,
			"events":   logger != nil,
			"profiles": director != nil,
		}).Info("Registered analytics adapter")
	}

	// slow wraps network-bound adapters in a worker pool when enabled
	slow := func(name string, logger analytics.EventLogger, director analytics.UserDataDirector) {
		if !a.Async.Enabled {
			register(name, logger, director)
			return
		}
		sink := asyncsink.New(logger, director, a.Async.Config, log.WithField("adapter", name))
		shutdown.Register(name+"-async", sink.Shutdown)
		var l analytics.EventLogger
		var dir analytics.UserDataDirector
		if logger != nil {
			l = sink
		}
		if director != nil {
			dir = sink
		}
		register(name, l, dir)
	}

	if a.Log.Enabled {
		sink := logsink.New(log, logsink.WithLevel(observability.ParseLevel(a.Log.Level)))
		register("log", sink, sink)
	}

	if a.Prometheus.Enabled {
		sink := promsink.New(registry, a.Prometheus.Namespace)
		register("prometheus", sink, sink)
	}

	if a.OTel.Enabled {
		sink, err := otelsink.New(
			otelsink.WithTracerProvider(providers.Tracer()),
			otelsink.WithMeterProvider(providers.Meter()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create otel adapter: %w", err)
		}
		register("otel", sink, sink)
	}

	if a.Memory.Enabled {
		b.profiles = memsink.NewProfiles(a.Memory.Config)
		register("memory", b.profiles, b.profiles)
	}

	if a.Redis.Enabled {
		dir, err := redisprofile.New(a.Redis.Config, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis adapter: %w", err)
		}
		shutdown.Register("redis", func(context.Context) error { return dir.Close() })
		slow("redis", dir, dir)
	}

	if a.SQL.Enabled {
		sink, err := sqlsink.Open(ctx, a.SQL.Config, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sql adapter: %w", err)
		}
		shutdown.Register("sql", func(context.Context) error { return sink.Close() })
		slow("sql", sink, sink)
	}

	if a.File.Enabled {
		sink, err := filesink.New(a.File.Config, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file adapter: %w", err)
		}
		shutdown.Register("file", func(context.Context) error { return sink.Close() })
		slow("file", sink, nil)
	}

	return d, b, nil
}
