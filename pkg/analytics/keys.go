package analytics

// Empty is the payload type of events that carry no properties.
//
//	var AppOpened = analytics.NewEventKey[analytics.Empty]("App opened")
type Empty struct{}

// Value wraps a single primitive so it can be used as an event payload.
// It encodes to a one-entry map under ValueKey.
type Value[T any] struct {
	Value T `json:"value"`
}

// EventKey identifies an analytics event. The payload type P is fixed at
// declaration, so call sites cannot log the event with the wrong model.
type EventKey[P any] struct {
	name string
}

// NewEventKey creates an event key with a display name.
// Names are not checked for uniqueness.
func NewEventKey[P any](name string) EventKey[P] {
	return EventKey[P]{name: name}
}

// Name returns the event name sent to adapters
func (k EventKey[P]) Name() string {
	return k.name
}

// Mutability controls whether a user property may be overwritten once set
type Mutability int

const (
	// Mutable properties are overwritten by every Set (the default)
	Mutable Mutability = iota
	// Immutable properties keep their first value on providers that support it
	Immutable
)

func (m Mutability) String() string {
	switch m {
	case Immutable:
		return "immutable"
	default:
		return "mutable"
	}
}

// Scalar is the set of value types that convert to a string and back
// without loss.
type Scalar interface {
	~string | ~bool | Number
}

// Number is the set of numeric property types accepted by IncrementProperty
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// UserPropertyKey identifies a user profile property of type V
type UserPropertyKey[V Scalar] struct {
	name       string
	mutability Mutability
}

// PropertyOption configures a UserPropertyKey
type PropertyOption func(*propertyOptions)

type propertyOptions struct {
	mutability Mutability
}

// WithMutability sets the mutability policy of a property key
func WithMutability(m Mutability) PropertyOption {
	return func(o *propertyOptions) {
		o.mutability = m
	}
}

// NewUserPropertyKey creates a property key. Keys are Mutable unless
// WithMutability(Immutable) is given.
//
//	var FirstLaunchWeek = analytics.NewUserPropertyKey[string]("first_launch_week",
//		analytics.WithMutability(analytics.Immutable))
//	var PurchaseCount = analytics.NewUserPropertyKey[int]("purchase_count")
func NewUserPropertyKey[V Scalar](name string, opts ...PropertyOption) UserPropertyKey[V] {
	o := propertyOptions{mutability: Mutable}
	for _, opt := range opts {
		opt(&o)
	}
	return UserPropertyKey[V]{name: name, mutability: o.mutability}
}

// Name returns the property name sent to directors
func (k UserPropertyKey[V]) Name() string {
	return k.name
}

// Mutability returns the key's overwrite policy
func (k UserPropertyKey[V]) Mutability() Mutability {
	return k.mutability
}
