package memsink

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	d := analytics.NewDispatcher()

	assert.False(t, rec.Configured())
	d.RegisterEventLogger(ctx, rec, "u1")
	assert.True(t, rec.Configured())

	analytics.LogEvent(ctx, d, analytics.NewEventKey[analytics.Empty]("App opened"))
	require.NoError(t, analytics.LogEventWith(ctx, d,
		analytics.NewEventKey[analytics.Value[bool]]("Push opened"), analytics.Value[bool]{Value: true},
		analytics.OutOfSession()))
	d.SetUserID(ctx, "u2")
	analytics.LogEvent(ctx, d, analytics.NewEventKey[analytics.Empty]("App closed"))

	assert.Equal(t, []string{"App opened", "Push opened", "App closed"}, rec.Names())

	events := rec.Events()
	assert.Equal(t, Event{Name: "App opened", UserID: "u1", Properties: analytics.Properties{}}, events[0])
	assert.Equal(t, Event{Name: "Push opened", UserID: "u1", Properties: analytics.Properties{"value": true}, OutOfSession: true}, events[1])
	assert.Equal(t, "u2", events[2].UserID)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestProfiles_Mutability(t *testing.T) {
	ctx := context.Background()
	p := NewProfiles(DefaultConfig())

	p.Set(ctx, "first_launch_week", "2019.20", analytics.Immutable)
	p.Set(ctx, "first_launch_week", "2024.01", analytics.Immutable)
	p.Set(ctx, "first_launch_week", "2024.02", analytics.Mutable)
	p.SetUserProperties(ctx, analytics.Properties{"first_launch_week": "x", "plan": "pro"})
	p.Set(ctx, "plan", "free", analytics.Mutable)

	profile, ok := p.Profile("")
	require.True(t, ok)
	assert.Equal(t, analytics.Properties{"first_launch_week": "2019.20", "plan": "free"}, profile)

	p.Unset(ctx, "first_launch_week")
	p.Set(ctx, "first_launch_week", "2024.03", analytics.Mutable)
	profile, _ = p.Profile("")
	assert.Equal(t, "2024.03", profile["first_launch_week"])
}

func TestProfiles_Add(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		deltas []any
		want   float64
	}{
		{"from zero", []any{int64(5)}, 5},
		{"accumulates", []any{int64(5), int64(3)}, 8},
		{"negative", []any{10.5, -0.5}, 10},
		{"non-numeric ignored", []any{int64(1), "x"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProfiles(DefaultConfig())
			for _, delta := range tt.deltas {
				p.Add(ctx, "count", delta)
			}
			profile, ok := p.Profile("")
			require.True(t, ok)
			assert.Equal(t, tt.want, profile["count"])
		})
	}
}

func TestProfiles_AddRejectsNonNumeric(t *testing.T) {
	ctx := context.Background()
	p := NewProfiles(DefaultConfig())

	p.Set(ctx, "plan", "pro", analytics.Mutable)
	p.Add(ctx, "plan", int64(5))
	p.Add(ctx, "count", "x")

	profile, ok := p.Profile("")
	require.True(t, ok)
	assert.Equal(t, analytics.Properties{"plan": "pro"}, profile)
	assert.Equal(t, int64(2), p.Rejected())
}

func TestProfiles_ImmutableLocksExistingValue(t *testing.T) {
	ctx := context.Background()
	p := NewProfiles(DefaultConfig())

	p.Set(ctx, "plan", "free", analytics.Mutable)
	p.Set(ctx, "plan", "pro", analytics.Immutable)
	p.Set(ctx, "plan", "team", analytics.Mutable)
	p.Add(ctx, "plan", int64(1))

	profile, _ := p.Profile("")
	assert.Equal(t, "free", profile["plan"])
}

func TestProfiles_IncrementMatchesSetZeroThenIncrement(t *testing.T) {
	ctx := context.Background()
	key := analytics.NewUserPropertyKey[int]("purchase_count")

	fresh := NewProfiles(DefaultConfig())
	d1 := analytics.NewDispatcher()
	d1.RegisterUserDataDirector(fresh)
	analytics.IncrementProperty(ctx, d1, 4, key)

	seeded := NewProfiles(DefaultConfig())
	d2 := analytics.NewDispatcher()
	d2.RegisterUserDataDirector(seeded)
	analytics.SetProperty(ctx, d2, 0, key)
	analytics.IncrementProperty(ctx, d2, 4, key)

	a, _ := fresh.Profile("")
	b, _ := seeded.Profile("")
	assert.Equal(t, a, b)
}

func TestProfiles_PerUserAndEviction(t *testing.T) {
	ctx := context.Background()
	p := NewProfiles(Config{MaxUsers: 2})

	for i := 0; i < 3; i++ {
		p.SetUserID(ctx, fmt.Sprintf("u%d", i))
		p.Set(ctx, "n", int64(i), analytics.Mutable)
	}

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, int64(1), p.Evicted())

	_, ok := p.Profile("u0")
	assert.False(t, ok)

	profile, ok := p.Profile("u2")
	require.True(t, ok)
	assert.Equal(t, int64(2), profile["n"])
}

func TestProfiles_Clear(t *testing.T) {
	ctx := context.Background()
	p := NewProfiles(DefaultConfig())
	p.ConfigureUser(ctx, "u1")
	p.Set(ctx, "plan", "pro", analytics.Mutable)

	p.ClearUserProperties(ctx)

	_, ok := p.Profile("u1")
	assert.False(t, ok)
}

func TestProfiles_TTL(t *testing.T) {
	ctx := context.Background()
	p := NewProfiles(Config{MaxUsers: 10, TTL: 20 * time.Millisecond})
	p.Set(ctx, "plan", "pro", analytics.Mutable)

	assert.Eventually(t, func() bool {
		_, ok := p.Profile("")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestProfiles_ProfileIsCopy(t *testing.T) {
	ctx := context.Background()
	p := NewProfiles(DefaultConfig())
	p.Set(ctx, "plan", "pro", analytics.Mutable)

	profile, _ := p.Profile("")
	profile["plan"] = "tampered"

	again, _ := p.Profile("")
	assert.Equal(t, "pro", again["plan"])
}
