package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/adapters/memsink"
	"github.com/platinummonkey/beacon/pkg/analytics"
)

type panickingSink struct {
	*memsink.Recorder
}

func (panickingSink) LogEventWithProperties(context.Context, string, analytics.Properties, bool) {
	panic("sink exploded")
}

func TestHeartbeatJob(t *testing.T) {
	log, hook := test.NewNullLogger()
	ctx := t.Context()

	recorder := memsink.NewRecorder()
	d := analytics.NewDispatcher(analytics.WithLogger(log))
	d.RegisterEventLogger(ctx, recorder, "")
	d.RegisterEventLogger(ctx, panickingSink{memsink.NewRecorder()}, "")

	job := heartbeatJob(ctx, d, time.Now().Add(-90*time.Second), log)
	require.NotPanics(t, job)
	require.NotPanics(t, job)

	events := recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Heartbeat", events[0].Name)
	assert.Equal(t, int64(2), events[0].Properties["event_loggers"])
	assert.Equal(t, int64(0), events[0].Properties["recovered_panics"])
	assert.Equal(t, int64(1), events[1].Properties["recovered_panics"])
	assert.GreaterOrEqual(t, events[1].Properties["uptime_seconds"], int64(90))

	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, "Failed to log heartbeat", entry.Message)
	}
}

func TestHeartbeatJob_NilDispatcher(t *testing.T) {
	log, hook := test.NewNullLogger()

	assert.NotPanics(t, heartbeatJob(t.Context(), nil, time.Now(), log))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "PANIC recovered", entry.Message)
	assert.Equal(t, "heartbeat job", entry.Data["context"])
}
