// Package asyncsink moves calls to a slow EventLogger or UserDataDirector
// off the caller's goroutine onto a worker pool.
//
// With one worker (the default) calls reach the wrapped backend in the order
// they were made. With more workers ordering is not preserved.
package asyncsink

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

// Config configures the worker pool
type Config struct {
	Workers   int           `yaml:"workers"`    // Worker goroutines (default: 1)
	QueueSize int           `yaml:"queue_size"` // Buffered calls before backpressure (default: 1024)
	Timeout   time.Duration `yaml:"timeout"`    // Per-call timeout (default: 5s)
	// DropWhenFull drops calls instead of blocking the caller when the queue is full
	DropWhenFull bool `yaml:"drop_when_full"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Workers:   1,
		QueueSize: 1024,
		Timeout:   5 * time.Second,
	}
}

// Sink forwards calls to a wrapped backend through a worker pool. Either
// wrapped backend may be nil, in which case those calls are no-ops.
type Sink struct {
	logger   analytics.EventLogger
	director analytics.UserDataDirector
	pool     *workerPool
	log      logrus.FieldLogger
	drop     bool

	dropped atomic.Int64
}

// New starts the worker pool. Call Shutdown to drain it.
func New(logger analytics.EventLogger, director analytics.UserDataDirector, cfg Config, log logrus.FieldLogger) *Sink {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logrus.New()
	}
	log = log.WithField("component", "asyncsink")

	return &Sink{
		logger:   logger,
		director: director,
		pool:     newWorkerPool(context.Background(), cfg.Workers, cfg.QueueSize, cfg.Timeout, log),
		log:      log,
		drop:     cfg.DropWhenFull,
	}
}

// Shutdown stops accepting calls and waits up to timeout for queued calls
func (s *Sink) Shutdown(ctx context.Context) error {
	timeout := DefaultConfig().Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return s.pool.stop(timeout)
}

// Dropped returns how many calls were dropped because the queue was full
// or the sink was shut down
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// RecoveredPanics returns how many wrapped calls panicked
func (s *Sink) RecoveredPanics() int64 {
	return s.pool.panics.Load()
}

func (s *Sink) Configure(ctx context.Context) {
	s.event(ctx, "configure", func(ctx context.Context, l analytics.EventLogger) { l.Configure(ctx) })
}

func (s *Sink) ConfigureUser(ctx context.Context, userID string) {
	s.event(ctx, "configure_user", func(ctx context.Context, l analytics.EventLogger) { l.ConfigureUser(ctx, userID) })
}

func (s *Sink) SetUserID(ctx context.Context, userID string) {
	s.event(ctx, "set_user_id", func(ctx context.Context, l analytics.EventLogger) { l.SetUserID(ctx, userID) })
}

func (s *Sink) LogEvent(ctx context.Context, name string) {
	s.event(ctx, "log_event", func(ctx context.Context, l analytics.EventLogger) { l.LogEvent(ctx, name) })
}

func (s *Sink) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	s.event(ctx, "log_event_with_properties", func(ctx context.Context, l analytics.EventLogger) {
		l.LogEventWithProperties(ctx, name, props, outOfSession)
	})
}

func (s *Sink) SetUserProperties(ctx context.Context, props analytics.Properties) {
	s.property(ctx, "set_user_properties", func(ctx context.Context, d analytics.UserDataDirector) {
		d.SetUserProperties(ctx, props)
	})
}

func (s *Sink) ClearUserProperties(ctx context.Context) {
	s.property(ctx, "clear_user_properties", func(ctx context.Context, d analytics.UserDataDirector) {
		d.ClearUserProperties(ctx)
	})
}

func (s *Sink) Set(ctx context.Context, name string, value any, mutability analytics.Mutability) {
	s.property(ctx, "set", func(ctx context.Context, d analytics.UserDataDirector) {
		d.Set(ctx, name, value, mutability)
	})
}

func (s *Sink) Add(ctx context.Context, name string, delta any) {
	s.property(ctx, "add", func(ctx context.Context, d analytics.UserDataDirector) {
		d.Add(ctx, name, delta)
	})
}

func (s *Sink) Unset(ctx context.Context, name string) {
	s.property(ctx, "unset", func(ctx context.Context, d analytics.UserDataDirector) {
		d.Unset(ctx, name)
	})
}

func (s *Sink) event(ctx context.Context, op string, fn func(context.Context, analytics.EventLogger)) {
	if s.logger == nil {
		return
	}
	l := s.logger
	s.enqueue(ctx, op, func(ctx context.Context) { fn(ctx, l) })
}

func (s *Sink) property(ctx context.Context, op string, fn func(context.Context, analytics.UserDataDirector)) {
	if s.director == nil {
		return
	}
	d := s.director
	s.enqueue(ctx, op, func(ctx context.Context) { fn(ctx, d) })
}

func (s *Sink) enqueue(ctx context.Context, op string, fn func(context.Context)) {
	t := task{ctx: ctx, fn: fn}

	var err error
	if s.drop {
		err = s.pool.trySubmit(t)
	} else {
		err = s.pool.submit(t)
	}
	if err == nil {
		return
	}

	s.dropped.Add(1)
	entry := s.log.WithError(err).WithField("operation", op)
	if errors.Is(err, ErrQueueFull) {
		entry.Debug("analytics call dropped")
		return
	}
	entry.Warn("analytics call rejected")
}

var (
	_ analytics.EventLogger      = (*Sink)(nil)
	_ analytics.UserDataDirector = (*Sink)(nil)
)
