// Package analytics provides a typed key/value model for product analytics
// and fans every call out to any number of registered backends.
//
// # Overview
//
// Events and user properties are declared once as typed keys. The payload
// type of an event, and the value type of a user property, are fixed at
// declaration so a call site cannot send the wrong shape.
//
// Payload models are flattened into Properties (a flat string-keyed map of
// primitives) by Encode before any backend sees them. Nested fields join
// with ".", array elements use their index, and a bare primitive payload
// lands under the "value" key.
//
// # Usage Example
//
// Declare keys:
//
//	var (
//		AppOpened   = analytics.NewEventKey[analytics.Empty]("App opened")
//		PushOpened  = analytics.NewEventKey[analytics.Value[bool]]("Push opened")
//		FirstLaunch = analytics.NewUserPropertyKey[string]("first_launch_week",
//			analytics.WithMutability(analytics.Immutable))
//		Purchases   = analytics.NewUserPropertyKey[int]("purchase_count")
//	)
//
// Register backends and log. The zero Dispatcher is ready to use and
// logs recovered panics to the logrus standard logger:
//
//	d := analytics.NewDispatcher(analytics.WithLogger(logger))
//	d.RegisterEventLogger(ctx, logsink.New(logger), userID)
//	d.RegisterUserDataDirector(redisprofile.NewWithClient(client, "", 0, logger))
//
//	analytics.LogEvent(ctx, d, AppOpened)
//	err := analytics.LogEventWith(ctx, d, PushOpened, analytics.Value[bool]{Value: true},
//		analytics.OutOfSession())
//	analytics.SetProperty(ctx, d, "2019.20", FirstLaunch)
//	analytics.IncrementProperty(ctx, d, 1, Purchases)
//
// # Backends
//
// A backend implements EventLogger, UserDataDirector, or both. Backends are
// called synchronously in registration order and a panicking backend never
// prevents the others from receiving the call. Immutable properties are a
// hint: backends that can enforce first-write-wins do so, the rest treat
// Set as a plain overwrite.
//
// # Related Packages
//
//   - pkg/adapters: ready-made backends (logrus, Prometheus, OpenTelemetry, Redis, SQL, files)
//   - pkg/observability: logging and panic recovery
package analytics
