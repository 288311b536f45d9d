// Package memsink keeps analytics data in process memory: Recorder captures
// events in order, Profiles keeps user properties in an LRU bounded by the
// number of users.
package memsink

import (
	"context"
	"sync"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

// Event is one recorded analytics event
type Event struct {
	Name         string
	UserID       string
	Properties   analytics.Properties
	OutOfSession bool
}

// Recorder is an EventLogger that keeps every event in memory
type Recorder struct {
	mu         sync.Mutex
	userID     string
	configured bool
	events     []Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Configure(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configured = true
}

func (r *Recorder) ConfigureUser(ctx context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configured = true
	r.userID = userID
}

func (r *Recorder) SetUserID(ctx context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
}

func (r *Recorder) LogEvent(ctx context.Context, name string) {
	r.LogEventWithProperties(ctx, name, nil, false)
}

func (r *Recorder) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		Name:         name,
		UserID:       r.userID,
		Properties:   props.Clone(),
		OutOfSession: outOfSession,
	})
}

// Configured reports whether Configure or ConfigureUser has been called
func (r *Recorder) Configured() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configured
}

// Events returns a copy of the recorded events in order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the recorded event names in order
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Reset drops every recorded event
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var _ analytics.EventLogger = (*Recorder)(nil)
