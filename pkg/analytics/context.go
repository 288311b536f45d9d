package analytics

import "context"

// contextKey is the type for context keys
type contextKey string

// DispatcherKey is the context key for the dispatcher
const DispatcherKey contextKey = "analytics_dispatcher"

// WithDispatcher adds a dispatcher to the context
func WithDispatcher(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, DispatcherKey, d)
}

// FromContext retrieves the dispatcher from context. When none is set it
// returns a dispatcher with no backends, so every call is a no-op.
func FromContext(ctx context.Context) *Dispatcher {
	if d, ok := ctx.Value(DispatcherKey).(*Dispatcher); ok && d != nil {
		return d
	}
	return NewDispatcher()
}
