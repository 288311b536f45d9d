package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperties_Clone(t *testing.T) {
	orig := Properties{"a": int64(1)}
	clone := orig.Clone()
	clone["b"] = true

	assert.NotContains(t, orig, "b")
	assert.Equal(t, Properties{}, Properties(nil).Clone())
}

func TestProperties_Keys(t *testing.T) {
	p := Properties{"zeta": 1, "alpha": 2, "mid": 3}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, p.Keys())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{"bool", true, "true"},
		{"int", 10, "10"},
		{"int8", int8(-3), "-3"},
		{"uint", uint16(7), "7"},
		{"float64", 1.5, "1.5"},
		{"float32", float32(0.1), "0.1"},
		{"named", plan("pro"), "pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(5), NormalizeValue(int32(5)))
	assert.Equal(t, uint64(5), NormalizeValue(uint8(5)))
	assert.Equal(t, 0.1, NormalizeValue(float32(0.1)))
	assert.Equal(t, "pro", NormalizeValue(plan("pro")))
	assert.Equal(t, true, NormalizeValue(true))

	slice := []int{1}
	assert.Equal(t, slice, NormalizeValue(slice))
}

func TestToFloat64(t *testing.T) {
	f, ok := ToFloat64(int64(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	f, ok = ToFloat64(uint(4))
	assert.True(t, ok)
	assert.Equal(t, 4.0, f)

	_, ok = ToFloat64("3")
	assert.False(t, ok)

	_, ok = ToFloat64(nil)
	assert.False(t, ok)
}
