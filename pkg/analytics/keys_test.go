package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type plan string

func TestNewEventKey(t *testing.T) {
	key := NewEventKey[Empty]("Main search tap")
	assert.Equal(t, "Main search tap", key.Name())

	withPayload := NewEventKey[Value[bool]]("Event with bool")
	assert.Equal(t, "Event with bool", withPayload.Name())
}

func TestNewUserPropertyKey(t *testing.T) {
	t.Run("mutable by default", func(t *testing.T) {
		key := NewUserPropertyKey[int]("purchase_count")
		assert.Equal(t, "purchase_count", key.Name())
		assert.Equal(t, Mutable, key.Mutability())
	})

	t.Run("immutable option", func(t *testing.T) {
		key := NewUserPropertyKey[string]("first_launch_week", WithMutability(Immutable))
		assert.Equal(t, Immutable, key.Mutability())
	})

	t.Run("named scalar types", func(t *testing.T) {
		key := NewUserPropertyKey[plan]("plan")
		assert.Equal(t, "plan", key.Name())
	})
}

func TestMutability_String(t *testing.T) {
	assert.Equal(t, "mutable", Mutable.String())
	assert.Equal(t, "immutable", Immutable.String())
}
