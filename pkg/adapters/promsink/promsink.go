// Package promsink counts analytics events and user property operations
// as Prometheus metrics. Property values are never exported, only the
// fact that an operation happened.
package promsink

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

// Sink holds the analytics counters
type Sink struct {
	EventsTotal          *prometheus.CounterVec
	EventPropertiesTotal *prometheus.CounterVec
	PropertyOpsTotal     *prometheus.CounterVec
	ConfiguredTotal      *prometheus.CounterVec
}

// New creates the counters and registers them with registry.
// Metric names are prefixed with namespace when it is not empty.
func New(registry prometheus.Registerer, namespace string) *Sink {
	s := &Sink{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_events_total",
				Help:      "Total number of analytics events logged",
			},
			[]string{"event", "out_of_session"},
		),
		EventPropertiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_event_properties_total",
				Help:      "Total number of flattened properties attached to events",
			},
			[]string{"event"},
		),
		PropertyOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_user_property_operations_total",
				Help:      "Total number of user property operations",
			},
			[]string{"operation", "mutability"},
		),
		ConfiguredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_sink_configured_total",
				Help:      "Total number of sink configurations, by whether a user was known",
			},
			[]string{"identified"},
		),
	}

	registry.MustRegister(
		s.EventsTotal,
		s.EventPropertiesTotal,
		s.PropertyOpsTotal,
		s.ConfiguredTotal,
	)

	return s
}

func (s *Sink) Configure(ctx context.Context) {
	s.ConfiguredTotal.WithLabelValues("false").Inc()
}

func (s *Sink) ConfigureUser(ctx context.Context, userID string) {
	s.ConfiguredTotal.WithLabelValues("true").Inc()
}

// SetUserID is a no-op: user IDs are unbounded and never become labels
func (s *Sink) SetUserID(ctx context.Context, userID string) {}

func (s *Sink) LogEvent(ctx context.Context, name string) {
	s.EventsTotal.WithLabelValues(name, "false").Inc()
}

func (s *Sink) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	s.EventsTotal.WithLabelValues(name, boolLabel(outOfSession)).Inc()
	s.EventPropertiesTotal.WithLabelValues(name).Add(float64(len(props)))
}

func (s *Sink) SetUserProperties(ctx context.Context, props analytics.Properties) {
	s.PropertyOpsTotal.WithLabelValues("set_bulk", noMutability).Add(float64(len(props)))
}

func (s *Sink) ClearUserProperties(ctx context.Context) {
	s.PropertyOpsTotal.WithLabelValues("clear", noMutability).Inc()
}

func (s *Sink) Set(ctx context.Context, name string, value any, mutability analytics.Mutability) {
	s.PropertyOpsTotal.WithLabelValues("set", mutability.String()).Inc()
}

func (s *Sink) Add(ctx context.Context, name string, delta any) {
	s.PropertyOpsTotal.WithLabelValues("add", noMutability).Inc()
}

func (s *Sink) Unset(ctx context.Context, name string) {
	s.PropertyOpsTotal.WithLabelValues("unset", noMutability).Inc()
}

// noMutability labels operations that carry no mutability policy
const noMutability = "none"

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var (
	_ analytics.EventLogger      = (*Sink)(nil)
	_ analytics.UserDataDirector = (*Sink)(nil)
)
