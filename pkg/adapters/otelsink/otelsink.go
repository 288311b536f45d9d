// Package otelsink records analytics events as OpenTelemetry span events
// and counts them with OpenTelemetry metrics.
//
// When the context passed to LogEvent carries a recording span, the event is
// attached to it. Otherwise a short span named after the event is started
// and ended immediately.
package otelsink

import (
	"context"
	"math"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

const instrumentationName = "github.com/platinummonkey/beacon/pkg/adapters/otelsink"

// Attribute keys set on every event
const (
	AttrEventName    = attribute.Key("analytics.event.name")
	AttrOutOfSession = attribute.Key("analytics.event.out_of_session")
	AttrUserID       = attribute.Key("enduser.id")
	AttrOperation    = attribute.Key("analytics.operation")
	AttrMutability   = attribute.Key("analytics.mutability")

	// propertyPrefix namespaces event properties in span event attributes
	propertyPrefix = "analytics.property."
)

// Sink is an EventLogger and UserDataDirector backed by OpenTelemetry
type Sink struct {
	tracer      trace.Tracer
	events      metric.Int64Counter
	propertyOps metric.Int64Counter

	mu     sync.RWMutex
	userID string
}

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Sink
type Option func(*options)

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global meter provider
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// New creates a sink using the global providers unless overridden
func New(opts ...Option) (*Sink, error) {
	o := options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)

	events, err := meter.Int64Counter("analytics.events",
		metric.WithDescription("Number of analytics events logged"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	propertyOps, err := meter.Int64Counter("analytics.user_property.operations",
		metric.WithDescription("Number of user property operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	return &Sink{
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		events:      events,
		propertyOps: propertyOps,
	}, nil
}

func (s *Sink) Configure(ctx context.Context) {}

func (s *Sink) ConfigureUser(ctx context.Context, userID string) {
	s.SetUserID(ctx, userID)
}

func (s *Sink) SetUserID(ctx context.Context, userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

func (s *Sink) LogEvent(ctx context.Context, name string) {
	s.record(ctx, name, nil, false)
}

func (s *Sink) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	s.record(ctx, name, props, outOfSession)
}

func (s *Sink) record(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	attrs := []attribute.KeyValue{
		AttrEventName.String(name),
		AttrOutOfSession.Bool(outOfSession),
	}
	if userID := s.currentUser(); userID != "" {
		attrs = append(attrs, AttrUserID.String(userID))
	}
	eventAttrs := append(attrs, Attributes(props)...)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(eventAttrs...))
	} else {
		_, span = s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
		span.AddEvent(name, trace.WithAttributes(eventAttrs...))
		span.End()
	}

	s.events.Add(ctx, 1, metric.WithAttributes(
		AttrEventName.String(name),
		AttrOutOfSession.Bool(outOfSession),
	))
}

func (s *Sink) SetUserProperties(ctx context.Context, props analytics.Properties) {
	s.countOp(ctx, "set_bulk", int64(len(props)))
}

func (s *Sink) ClearUserProperties(ctx context.Context) {
	s.countOp(ctx, "clear", 1)
}

func (s *Sink) Set(ctx context.Context, name string, value any, mutability analytics.Mutability) {
	s.countOp(ctx, "set", 1, AttrMutability.String(mutability.String()))
}

func (s *Sink) Add(ctx context.Context, name string, delta any) {
	s.countOp(ctx, "add", 1)
}

func (s *Sink) Unset(ctx context.Context, name string) {
	s.countOp(ctx, "unset", 1)
}

func (s *Sink) countOp(ctx context.Context, op string, n int64, extra ...attribute.KeyValue) {
	attrs := append([]attribute.KeyValue{AttrOperation.String(op)}, extra...)
	s.propertyOps.Add(ctx, n, metric.WithAttributes(attrs...))
}

func (s *Sink) currentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Attributes converts flattened properties to span attributes, in key
// order. Unsigned values above MaxInt64 are rendered as strings.
func Attributes(props analytics.Properties) []attribute.KeyValue {
	if len(props) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(props))
	for _, k := range props.Keys() {
		key := attribute.Key(propertyPrefix + k)
		switch v := analytics.NormalizeValue(props[k]).(type) {
		case string:
			attrs = append(attrs, key.String(v))
		case bool:
			attrs = append(attrs, key.Bool(v))
		case int64:
			attrs = append(attrs, key.Int64(v))
		case uint64:
			if v > math.MaxInt64 {
				attrs = append(attrs, key.String(analytics.FormatValue(v)))
			} else {
				attrs = append(attrs, key.Int64(int64(v)))
			}
		case float64:
			attrs = append(attrs, key.Float64(v))
		default:
			attrs = append(attrs, key.String(analytics.FormatValue(v)))
		}
	}
	return attrs
}

var (
	_ analytics.EventLogger      = (*Sink)(nil)
	_ analytics.UserDataDirector = (*Sink)(nil)
)
