package recorder

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Value is a sealed interface representing natively-serializable values.
// Only Null, Bool, Int, Float, String, Bytes, Time, List and Map implement
// it. Values that cannot be expressed natively are not Values at all - the
// proxies wrap them in a nested Recorder/Player instead.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent value.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating-point value.
type Float float64

func (Float) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Bytes represents an opaque binary blob. Serialized as base64 under the
// reserved "__bytes__" key.
type Bytes []byte

func (Bytes) value() {}

// Time represents a UTC instant. Serialized as RFC 3339 under the reserved
// "__time__" key.
type Time time.Time

func (Time) value() {}

// List represents an ordered sequence of Values.
type List []Value

func (List) value() {}

// Map represents a string-keyed mapping of Values. The keys "__bytes__" and
// "__time__" are reserved for the tagged scalar encodings and must not be
// used as map keys.
type Map map[string]Value

func (Map) value() {}

// SortedKeys returns the map keys in lexicographic order for deterministic
// iteration.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromGo converts a Go value to its native Value form. The second return is
// false when the value is not natively handled (and should be wrapped in a
// nested proxy instead).
//
// Natively handled: nil, booleans, all integer and float widths (unsigned
// values above the int64 range are not), strings, byte slices, time.Time,
// existing Values, and slices/arrays/maps (with string keys) whose elements
// are all natively handled.
func FromGo(v any) (Value, bool) {
	switch x := v.(type) {
	case nil:
		return Null{}, true
	case Value:
		return x, true
	case bool:
		return Bool(x), true
	case int:
		return Int(x), true
	case int8:
		return Int(x), true
	case int16:
		return Int(x), true
	case int32:
		return Int(x), true
	case int64:
		return Int(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, false
		}
		return Int(x), true
	case uint8:
		return Int(x), true
	case uint16:
		return Int(x), true
	case uint32:
		return Int(x), true
	case uint64:
		if x > math.MaxInt64 {
			return nil, false
		}
		return Int(x), true
	case float32:
		return Float(x), true
	case float64:
		return Float(x), true
	case string:
		return String(x), true
	case []byte:
		return Bytes(x), true
	case time.Time:
		return Time(x.UTC()), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make(List, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, ok := FromGo(rv.Index(i).Interface())
			if !ok {
				return nil, false
			}
			out[i] = elem
		}
		return out, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem, ok := FromGo(iter.Value().Interface())
			if !ok {
				return nil, false
			}
			out[iter.Key().String()] = elem
		}
		return out, true
	}
	return nil, false
}

// FromGoArgs converts a slice of Go call arguments. All arguments must be
// natively handled; a non-native argument is an error because call arguments
// are stored verbatim in the log.
func FromGoArgs(args []any) ([]Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]Value, len(args))
	for i, a := range args {
		v, ok := FromGo(a)
		if !ok {
			return nil, fmt.Errorf("call argument %d (%T) is not natively serializable", i, a)
		}
		out[i] = v
	}
	return out, nil
}

// FromGoKV converts a string-keyed map of Go values, as used for keyword
// arguments in the wire model.
func FromGoKV(kv map[string]any) (Map, error) {
	if len(kv) == 0 {
		return nil, nil
	}
	out := make(Map, len(kv))
	for k, a := range kv {
		v, ok := FromGo(a)
		if !ok {
			return nil, fmt.Errorf("keyword argument %q (%T) is not natively serializable", k, a)
		}
		out[k] = v
	}
	return out, nil
}

// ToGo converts a native Value back to a plain Go value: nil, bool, int64,
// float64, string, []byte, time.Time, []any or map[string]any.
func ToGo(v Value) any {
	switch x := v.(type) {
	case Null:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Bytes:
		return []byte(x)
	case Time:
		return time.Time(x)
	case List:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = ToGo(elem)
		}
		return out
	case Map:
		out := make(map[string]any, len(x))
		for k, elem := range x {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// Reserved keys for tagged scalar encodings.
const (
	bytesKey = "__bytes__"
	timeKey  = "__time__"
)

// MarshalValue marshals a Value to JSON bytes using type-switch dispatch.
func MarshalValue(v Value) ([]byte, error) {
	switch x := v.(type) {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(bool(x))
	case Int:
		return json.Marshal(int64(x))
	case Float:
		return marshalFloat(float64(x))
	case String:
		return json.Marshal(string(x))
	case Bytes:
		return json.Marshal(map[string]string{bytesKey: base64.StdEncoding.EncodeToString(x)})
	case Time:
		return json.Marshal(map[string]string{timeKey: time.Time(x).UTC().Format(time.RFC3339Nano)})
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Map:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range x.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := MarshalValue(x[k])
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// marshalFloat renders a float so it round-trips as a Float rather than an
// Int: integral values keep a trailing ".0".
func marshalFloat(f float64) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("float %v: %w", f, err)
	}
	s := string(b)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// UnmarshalValue decodes JSON bytes into a Value. Numbers without a
// fractional part or exponent decode as Int, others as Float.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromDecoded(raw)
}

func fromDecoded(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		s := string(x)
		if strings.ContainsAny(s, ".eE") {
			f, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid number %s: %w", s, err)
			}
			return Float(f), nil
		}
		n, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		out := make(List, len(x))
		for i, elem := range x {
			v, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		if len(x) == 1 {
			if enc, ok := x[bytesKey].(string); ok {
				b, err := base64.StdEncoding.DecodeString(enc)
				if err != nil {
					return nil, fmt.Errorf("invalid %s payload: %w", bytesKey, err)
				}
				return Bytes(b), nil
			}
			if enc, ok := x[timeKey].(string); ok {
				t, err := time.Parse(time.RFC3339Nano, enc)
				if err != nil {
					return nil, fmt.Errorf("invalid %s payload: %w", timeKey, err)
				}
				return Time(t.UTC()), nil
			}
		}
		out := make(Map, len(x))
		for k, elem := range x {
			v, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported decoded type: %T", raw)
	}
}
