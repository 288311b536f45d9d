// Package logsink writes analytics events and property changes as
// structured logrus entries.
package logsink

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

// Sink logs every analytics call at a fixed level
type Sink struct {
	log   logrus.FieldLogger
	level logrus.Level

	mu     sync.RWMutex
	userID string
}

// Option configures a Sink
type Option func(*Sink)

// WithLevel sets the level entries are logged at (default Info)
func WithLevel(level logrus.Level) Option {
	return func(s *Sink) {
		s.level = level
	}
}

// New creates a log sink. A nil logger falls back to logrus.New().
func New(log logrus.FieldLogger, opts ...Option) *Sink {
	if log == nil {
		log = logrus.New()
	}
	s := &Sink{log: log, level: logrus.InfoLevel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Configure(ctx context.Context) {
	s.entry("configure").Log(s.level, "analytics sink configured")
}

func (s *Sink) ConfigureUser(ctx context.Context, userID string) {
	s.SetUserID(ctx, userID)
	s.entry("configure").Log(s.level, "analytics sink configured")
}

func (s *Sink) SetUserID(ctx context.Context, userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

func (s *Sink) LogEvent(ctx context.Context, name string) {
	s.entry("event").WithField("event", name).Log(s.level, "analytics event")
}

func (s *Sink) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	s.entry("event").WithFields(logrus.Fields{
		"event":          name,
		"properties":     map[string]any(props),
		"out_of_session": outOfSession,
	}).Log(s.level, "analytics event")
}

func (s *Sink) SetUserProperties(ctx context.Context, props analytics.Properties) {
	s.entry("set_user_properties").WithField("properties", map[string]any(props)).
		Log(s.level, "user properties set")
}

func (s *Sink) ClearUserProperties(ctx context.Context) {
	s.entry("clear_user_properties").Log(s.level, "user properties cleared")
}

func (s *Sink) Set(ctx context.Context, name string, value any, mutability analytics.Mutability) {
	s.entry("set").WithFields(logrus.Fields{
		"property":   name,
		"value":      value,
		"mutability": mutability.String(),
	}).Log(s.level, "user property set")
}

func (s *Sink) Add(ctx context.Context, name string, delta any) {
	s.entry("add").WithFields(logrus.Fields{
		"property": name,
		"delta":    delta,
	}).Log(s.level, "user property incremented")
}

func (s *Sink) Unset(ctx context.Context, name string) {
	s.entry("unset").WithField("property", name).Log(s.level, "user property unset")
}

func (s *Sink) entry(op string) *logrus.Entry {
	s.mu.RLock()
	userID := s.userID
	s.mu.RUnlock()

	fields := logrus.Fields{"component": "analytics", "operation": op}
	if userID != "" {
		fields["user_id"] = userID
	}
	return s.log.WithFields(fields)
}

var (
	_ analytics.EventLogger      = (*Sink)(nil)
	_ analytics.UserDataDirector = (*Sink)(nil)
)
