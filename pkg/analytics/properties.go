package analytics

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Properties is the flat property map handed to adapters. Values are
// string, bool, int64, uint64 or float64.
type Properties map[string]any

// Clone returns a shallow copy so adapters cannot mutate each other's input
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the property names in sorted order
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Strings renders every value in its lossless string form, for providers
// that only accept string-valued property bags.
func (p Properties) Strings() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = FormatValue(v)
	}
	return out
}

// FormatValue renders a property value as a string. Floats use the
// shortest representation that parses back to the same value.
func FormatValue(v any) string {
	switch val := NormalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// NormalizeValue converts any scalar (including named types such as
// `type Plan string`) to string, bool, int64, uint64 or float64.
// Other values are returned unchanged.
func NormalizeValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32:
		// Round-trip through the decimal form so 0.1 stays 0.1
		f, _ := strconv.ParseFloat(strconv.FormatFloat(rv.Float(), 'g', -1, 32), 64)
		return f
	case reflect.Float64:
		return rv.Float()
	default:
		return v
	}
}

// ToFloat64 returns the numeric value of a normalized property value
func ToFloat64(v any) (float64, bool) {
	switch val := NormalizeValue(v).(type) {
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
