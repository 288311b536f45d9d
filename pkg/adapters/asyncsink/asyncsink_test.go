package asyncsink

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/adapters/memsink"
	"github.com/platinummonkey/beacon/pkg/analytics"
)

func shutdown(t *testing.T, s *Sink) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestSink_PreservesOrderWithOneWorker(t *testing.T) {
	ctx := context.Background()
	rec := memsink.NewRecorder()
	logger, _ := test.NewNullLogger()
	sink := New(rec, nil, DefaultConfig(), logger)

	d := analytics.NewDispatcher()
	d.RegisterEventLogger(ctx, sink, "u1")

	var want []string
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("event-%d", i)
		want = append(want, name)
		analytics.LogEvent(ctx, d, analytics.NewEventKey[analytics.Empty](name))
	}
	shutdown(t, sink)

	assert.True(t, rec.Configured())
	assert.Equal(t, want, rec.Names())
	assert.Equal(t, "u1", rec.Events()[0].UserID)
}

func TestSink_ForwardsDirectorCalls(t *testing.T) {
	ctx := context.Background()
	profiles := memsink.NewProfiles(memsink.DefaultConfig())
	sink := New(nil, profiles, DefaultConfig(), nil)

	sink.Set(ctx, "first_launch_week", "2019.20", analytics.Immutable)
	sink.Set(ctx, "first_launch_week", "2024.01", analytics.Immutable)
	sink.Add(ctx, "purchase_count", int64(2))
	sink.SetUserProperties(ctx, analytics.Properties{"plan": "pro", "trial": true})
	sink.Unset(ctx, "trial")
	sink.LogEvent(ctx, "ignored without a logger")
	shutdown(t, sink)

	profile, ok := profiles.Profile("")
	require.True(t, ok)
	assert.Equal(t, analytics.Properties{
		"first_launch_week": "2019.20",
		"purchase_count":    2.0,
		"plan":              "pro",
	}, profile)
}

type ctxKey struct{}

// ctxLogger records what the wrapped call saw of its context
type ctxLogger struct {
	analytics.NopEventLogger
	mu     sync.Mutex
	values []any
	errs   []error
}

func (c *ctxLogger) LogEvent(ctx context.Context, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, ctx.Value(ctxKey{}))
	c.errs = append(c.errs, ctx.Err())
}

func TestSink_CallerCancellationDoesNotReachBackend(t *testing.T) {
	backend := &ctxLogger{}
	sink := New(backend, nil, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "request-1"))
	sink.LogEvent(ctx, "App opened")
	cancel()
	shutdown(t, sink)

	require.Len(t, backend.values, 1)
	assert.Equal(t, "request-1", backend.values[0])
	assert.NoError(t, backend.errs[0])
}

type panicLogger struct {
	analytics.NopEventLogger
}

func (panicLogger) LogEvent(ctx context.Context, name string) {
	panic("backend exploded")
}

func TestSink_RecoversPanics(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := New(panicLogger{}, nil, DefaultConfig(), logger)

	sink.LogEvent(context.Background(), "a")
	sink.LogEvent(context.Background(), "b")
	shutdown(t, sink)

	assert.Equal(t, int64(2), sink.RecoveredPanics())
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "PANIC recovered", entry.Message)
}

// gateLogger blocks every call until released
type gateLogger struct {
	analytics.NopEventLogger
	started chan struct{}
	release chan struct{}
}

func (g *gateLogger) LogEvent(ctx context.Context, name string) {
	g.started <- struct{}{}
	<-g.release
}

func TestSink_DropWhenFull(t *testing.T) {
	backend := &gateLogger{started: make(chan struct{}, 10), release: make(chan struct{})}
	sink := New(backend, nil, Config{Workers: 1, QueueSize: 1, DropWhenFull: true}, nil)
	ctx := context.Background()

	sink.LogEvent(ctx, "in flight")
	<-backend.started

	sink.LogEvent(ctx, "queued")
	sink.LogEvent(ctx, "dropped")
	assert.Equal(t, int64(1), sink.Dropped())

	close(backend.release)
	shutdown(t, sink)
}

func TestSink_RejectsAfterShutdown(t *testing.T) {
	rec := memsink.NewRecorder()
	sink := New(rec, nil, DefaultConfig(), nil)
	shutdown(t, sink)

	sink.LogEvent(context.Background(), "late")

	assert.Equal(t, int64(1), sink.Dropped())
	assert.Empty(t, rec.Events())
	assert.NoError(t, sink.Shutdown(context.Background()))
}

func TestSink_ShutdownTimeout(t *testing.T) {
	backend := &gateLogger{started: make(chan struct{}, 10), release: make(chan struct{})}
	sink := New(backend, nil, DefaultConfig(), nil)
	defer close(backend.release)

	sink.LogEvent(context.Background(), "stuck")
	<-backend.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sink.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
