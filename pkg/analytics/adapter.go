package analytics

import "context"

// EventLogger is implemented by every backend that records events.
//
// Methods return nothing: a backend that fails to deliver must handle or
// report the failure itself. Embed NopEventLogger to implement only part
// of the interface.
type EventLogger interface {
	// Configure performs initial setup when no user ID is known
	Configure(ctx context.Context)

	// ConfigureUser performs initial setup for a known user ID
	ConfigureUser(ctx context.Context, userID string)

	// SetUserID associates subsequent events with a user ID
	SetUserID(ctx context.Context, userID string)

	// LogEvent records an event without properties
	LogEvent(ctx context.Context, name string)

	// LogEventWithProperties records an event with a flat property map.
	// outOfSession is a hint that the event happened outside the user's
	// session (e.g. a push notification); backends may ignore it.
	LogEventWithProperties(ctx context.Context, name string, props Properties, outOfSession bool)
}

// UserDataDirector is implemented by every backend that keeps user
// profile properties. Embed NopUserDataDirector to implement only part of
// the interface.
type UserDataDirector interface {
	// SetUserProperties adds or overwrites properties in bulk
	SetUserProperties(ctx context.Context, props Properties)

	// ClearUserProperties removes every property of the current user.
	// This is irreversible on most providers.
	ClearUserProperties(ctx context.Context)

	// Set stores a single property. Directors that support it keep the
	// first value of an Immutable property.
	Set(ctx context.Context, name string, value any, mutability Mutability)

	// Add increments a numeric property by delta (which may be negative).
	// An unset property counts as zero.
	Add(ctx context.Context, name string, delta any)

	// Unset removes a single property
	Unset(ctx context.Context, name string)
}

// NopEventLogger implements EventLogger with no-op methods
type NopEventLogger struct{}

func (NopEventLogger) Configure(ctx context.Context) {}

func (NopEventLogger) ConfigureUser(ctx context.Context, userID string) {}

func (NopEventLogger) SetUserID(ctx context.Context, userID string) {}

func (NopEventLogger) LogEvent(ctx context.Context, name string) {}

func (NopEventLogger) LogEventWithProperties(ctx context.Context, name string, props Properties, outOfSession bool) {
}

// NopUserDataDirector implements UserDataDirector with no-op methods
type NopUserDataDirector struct{}

func (NopUserDataDirector) SetUserProperties(ctx context.Context, props Properties) {}

func (NopUserDataDirector) ClearUserProperties(ctx context.Context) {}

func (NopUserDataDirector) Set(ctx context.Context, name string, value any, mutability Mutability) {}

func (NopUserDataDirector) Add(ctx context.Context, name string, delta any) {}

func (NopUserDataDirector) Unset(ctx context.Context, name string) {}

var (
	_ EventLogger      = NopEventLogger{}
	_ UserDataDirector = NopUserDataDirector{}
)
