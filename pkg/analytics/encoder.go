package analytics

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

const (
	// ValueKey is the key used when the payload is a bare primitive
	// (or a Value[T]) instead of a record.
	ValueKey = "value"

	// PathSeparator joins nested field names in flattened keys
	PathSeparator = "."
)

var (
	marshalAPI   = newMarshalAPI()
	unmarshalAPI = jsoniter.Config{UseNumber: true}.Froze()

	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func newMarshalAPI() jsoniter.API {
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
	api.RegisterExtension(&nilableKindExtension{})
	return api
}

// nilableKindExtension encodes chan and func values so that nil fields
// tagged omitempty are dropped, as encoding/json does. Any value that
// reaches Encode is still rejected.
type nilableKindExtension struct {
	jsoniter.DummyExtension
}

func (e *nilableKindExtension) CreateEncoder(typ reflect2.Type) jsoniter.ValEncoder {
	switch typ.Kind() {
	case reflect.Chan, reflect.Func:
		return &unsupportedKindEncoder{typ: typ.String()}
	}
	return nil
}

type unsupportedKindEncoder struct {
	typ string
}

func (e *unsupportedKindEncoder) IsEmpty(ptr unsafe.Pointer) bool {
	return *(*unsafe.Pointer)(ptr) == nil
}

func (e *unsupportedKindEncoder) Encode(_ unsafe.Pointer, stream *jsoniter.Stream) {
	if stream.Error == nil {
		stream.Error = fmt.Errorf("%s is unsupported type", e.typ)
	}
}

// Encode flattens a payload model into Properties.
//
// The model is serialized the way encoding/json would (json tags,
// omitempty, custom marshalers are honored) and the resulting tree is
// flattened:
//
//   - nested objects join their names with PathSeparator: {"a":{"b":1}} -> "a.b"
//   - array elements use their index: {"tags":["x","y"]} -> "tags.0", "tags.1"
//   - a top-level primitive or array is rooted at ValueKey: true -> {"value": true}
//   - null leaves, empty objects and empty arrays produce no entries
//
// Integral numbers decode to int64 (uint64 above MaxInt64), the rest to
// float64. Failures are returned as *EncodingError.
func Encode(model any) (Properties, error) {
	props := Properties{}
	if model == nil {
		return props, nil
	}

	w := &cycleWalker{path: make(map[visitKey]struct{})}
	if err := w.inspect(reflect.ValueOf(model)); err != nil {
		return nil, newEncodingError(model, err)
	}

	data, err := marshalAPI.Marshal(model)
	if err != nil {
		return nil, newEncodingError(model, err)
	}

	var tree any
	if err := unmarshalAPI.Unmarshal(data, &tree); err != nil {
		return nil, newEncodingError(model, err)
	}

	root := ""
	if _, isObject := tree.(map[string]any); !isObject {
		root = ValueKey
	}
	if err := flatten(root, tree, props); err != nil {
		return nil, newEncodingError(model, err)
	}

	return props, nil
}

// MustEncode is like Encode but panics on error. Use it for static payloads.
func MustEncode(model any) Properties {
	props, err := Encode(model)
	if err != nil {
		panic(err)
	}
	return props
}

func flatten(key string, node any, out Properties) error {
	switch n := node.(type) {
	case nil:
		return nil
	case map[string]any:
		for name, child := range n {
			if err := flatten(joinKey(key, name), child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range n {
			if err := flatten(joinKey(key, strconv.Itoa(i)), child, out); err != nil {
				return err
			}
		}
		return nil
	}

	leaf, err := leafValue(node)
	if err != nil {
		return err
	}
	if _, exists := out[key]; exists {
		return fmt.Errorf("%w: %q", ErrKeyCollision, key)
	}
	out[key] = leaf
	return nil
}

func leafValue(node any) (any, error) {
	switch n := node.(type) {
	case string, bool:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil && u > math.MaxInt64 {
			return u, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", n.String(), err)
		}
		return f, nil
	case float64:
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, node)
	}
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + PathSeparator + name
}

// visitKey identifies a reference-typed value on the current walk path
type visitKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

// cycleWalker rejects models the serializer cannot represent before any
// bytes are produced: unsupported kinds and self-referencing values.
type cycleWalker struct {
	path map[visitKey]struct{}
}

func (w *cycleWalker) inspect(v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	t := v.Type()
	if hasCustomMarshaler(t) {
		return nil
	}

	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.inspect(v.Elem())

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return w.enter(visitKey{ptr: v.Pointer(), typ: t}, func() error {
			return w.inspect(v.Elem())
		})

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		if !supportedMapKey(t.Key()) {
			return fmt.Errorf("%w: map key %s", ErrUnsupportedType, t.Key())
		}
		return w.enter(visitKey{ptr: v.Pointer(), typ: t}, func() error {
			iter := v.MapRange()
			for iter.Next() {
				if err := w.inspect(iter.Value()); err != nil {
					return err
				}
			}
			return nil
		})

	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return nil
		}
		// []byte encodes as a base64 string
		if t.Elem().Kind() == reflect.Uint8 {
			return nil
		}
		return w.enter(visitKey{ptr: v.Pointer(), len: v.Len(), typ: t}, func() error {
			return w.inspectElems(v)
		})

	case reflect.Array:
		return w.inspectElems(v)

	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() && !f.Anonymous {
				continue
			}
			name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" && opts == "" {
				continue
			}
			field := v.Field(i)
			// the serializer drops these before looking at their kind
			if hasOption(opts, "omitempty") && isEmptyValue(field) {
				continue
			}
			if err := w.inspect(field); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
	}

	return nil
}

func (w *cycleWalker) inspectElems(v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := w.inspect(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *cycleWalker) enter(key visitKey, fn func() error) error {
	if _, seen := w.path[key]; seen {
		return fmt.Errorf("%w via %s", ErrCycle, key.typ)
	}
	w.path[key] = struct{}{}
	defer delete(w.path, key)
	return fn()
}

func hasOption(opts, want string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == want {
			return true
		}
	}
	return false
}

// isEmptyValue mirrors the omitempty rule of encoding/json
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return v.IsZero()
	}
	return false
}

func hasCustomMarshaler(t reflect.Type) bool {
	if t.Kind() == reflect.Interface {
		return false
	}
	pt := reflect.PointerTo(t)
	return t.Implements(jsonMarshalerType) || pt.Implements(jsonMarshalerType) ||
		t.Implements(textMarshalerType) || pt.Implements(textMarshalerType)
}

func supportedMapKey(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType)
}
