package analytics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/observability"
)

// Dispatcher fans typed analytics calls out to every registered backend.
//
// Backends are called synchronously, one after another, in registration
// order. Registration is safe to call concurrently with dispatch: each
// dispatch works on a snapshot of the backends registered when it started.
type Dispatcher struct {
	mu        sync.RWMutex
	loggers   []EventLogger
	directors []UserDataDirector

	log    logrus.FieldLogger
	panics atomic.Int64
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger used to report recovered backend panics
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDispatcher creates a dispatcher with no backends
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{log: logrus.New()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterEventLogger appends an event backend and configures it.
// With an empty userID the backend's Configure is called, otherwise
// ConfigureUser. Events logged before registration are not replayed.
func (d *Dispatcher) RegisterEventLogger(ctx context.Context, logger EventLogger, userID string) {
	d.mu.Lock()
	d.loggers = append(d.loggers, logger)
	d.mu.Unlock()

	d.guard("configure", logger, func() {
		if userID == "" {
			logger.Configure(ctx)
			return
		}
		logger.ConfigureUser(ctx, userID)
	})
}

// RegisterUserDataDirector appends a user property backend
func (d *Dispatcher) RegisterUserDataDirector(director UserDataDirector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.directors = append(d.directors, director)
}

// EventLoggers returns a copy of the registered event backends
func (d *Dispatcher) EventLoggers() []EventLogger {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]EventLogger(nil), d.loggers...)
}

// UserDataDirectors returns a copy of the registered property backends
func (d *Dispatcher) UserDataDirectors() []UserDataDirector {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]UserDataDirector(nil), d.directors...)
}

// RecoveredPanics returns how many backend panics have been recovered
func (d *Dispatcher) RecoveredPanics() int64 {
	return d.panics.Load()
}

// SetUserID associates subsequent events with userID on every event backend
func (d *Dispatcher) SetUserID(ctx context.Context, userID string) {
	for _, l := range d.EventLoggers() {
		d.guard("set_user_id", l, func() { l.SetUserID(ctx, userID) })
	}
}

// SetUserProperties encodes model and sends the result to every director.
// If encoding fails no director is called and an *EncodingError is returned.
func (d *Dispatcher) SetUserProperties(ctx context.Context, model any) error {
	props, err := Encode(model)
	if err != nil {
		return err
	}
	d.SetUserPropertyMap(ctx, props)
	return nil
}

// SetUserPropertyMap sends an already flat property map to every director
func (d *Dispatcher) SetUserPropertyMap(ctx context.Context, props Properties) {
	for _, dir := range d.UserDataDirectors() {
		d.guard("set_user_properties", dir, func() { dir.SetUserProperties(ctx, props.Clone()) })
	}
}

// ClearUserProperties removes every user property on every director.
// Providers generally cannot undo this.
func (d *Dispatcher) ClearUserProperties(ctx context.Context) {
	for _, dir := range d.UserDataDirectors() {
		d.guard("clear_user_properties", dir, func() { dir.ClearUserProperties(ctx) })
	}
}

// guard runs one backend call, converting a panic into a log entry so the
// remaining backends still receive the call.
func (d *Dispatcher) guard(op string, backend any, fn func()) {
	log := d.logger().WithFields(logrus.Fields{
		"operation": op,
		"backend":   fmt.Sprintf("%T", backend),
	})
	defer observability.RecoverPanicWithCallback(log, "analytics backend", func() {
		d.panics.Add(1)
	})
	fn()
}

func (d *Dispatcher) logger() logrus.FieldLogger {
	if d.log == nil {
		return logrus.StandardLogger()
	}
	return d.log
}

// LogEvent records a payload-less event on every event backend
func LogEvent(ctx context.Context, d *Dispatcher, key EventKey[Empty]) {
	name := key.Name()
	for _, l := range d.EventLoggers() {
		d.guard("log_event", l, func() { l.LogEvent(ctx, name) })
	}
}

// EventOption configures a single LogEventWith call
type EventOption func(*eventOptions)

type eventOptions struct {
	outOfSession bool
}

// OutOfSession marks the event as happening outside the user's session
func OutOfSession() EventOption {
	return func(o *eventOptions) {
		o.outOfSession = true
	}
}

// LogEventWith encodes payload and records the event on every event
// backend. If encoding fails no backend is called and an *EncodingError
// is returned.
func LogEventWith[P any](ctx context.Context, d *Dispatcher, key EventKey[P], payload P, opts ...EventOption) error {
	var o eventOptions
	for _, opt := range opts {
		opt(&o)
	}

	props, err := Encode(payload)
	if err != nil {
		return err
	}

	name := key.Name()
	for _, l := range d.EventLoggers() {
		d.guard("log_event_with_properties", l, func() {
			l.LogEventWithProperties(ctx, name, props.Clone(), o.outOfSession)
		})
	}
	return nil
}

// SetProperty stores value under key on every director, passing the key's
// mutability along. Enforcing Immutable is up to each director.
func SetProperty[V Scalar](ctx context.Context, d *Dispatcher, value V, key UserPropertyKey[V]) {
	name, mutability, v := key.Name(), key.Mutability(), NormalizeValue(value)
	for _, dir := range d.UserDataDirectors() {
		d.guard("set_property", dir, func() { dir.Set(ctx, name, v, mutability) })
	}
}

// IncrementProperty adds delta (possibly negative) to key on every director
func IncrementProperty[V Number](ctx context.Context, d *Dispatcher, delta V, key UserPropertyKey[V]) {
	name, v := key.Name(), NormalizeValue(delta)
	for _, dir := range d.UserDataDirectors() {
		d.guard("increment_property", dir, func() { dir.Add(ctx, name, v) })
	}
}

// UnsetProperty removes key on every director
func UnsetProperty[V Scalar](ctx context.Context, d *Dispatcher, key UserPropertyKey[V]) {
	name := key.Name()
	for _, dir := range d.UserDataDirectors() {
		d.guard("unset_property", dir, func() { dir.Unset(ctx, name) })
	}
}
