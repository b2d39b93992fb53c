package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ValueKind identifies which variant a Value holds
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is a JSON value stored in an attribute or preference mapping.
// The zero Value is null. Numbers keep their literal text so integers
// and decimals survive an encode/decode cycle unchanged.
type Value struct {
	kind ValueKind
	b    bool
	n    json.Number
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int wraps an integer
func Int(i int64) Value { return Value{kind: KindNumber, n: json.Number(strconv.FormatInt(i, 10))} }

// Float wraps a float. NaN and infinities have no JSON form and become null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, n: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

// Number wraps a JSON number literal
func Number(n json.Number) Value { return Value{kind: KindNumber, n: n} }

// Array wraps a list of values
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Object wraps a nested mapping
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

// Kind reports the variant held by v
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsNumber() (json.Number, bool) { return v.n, v.kind == KindNumber }

// AsInt64 returns the value as an integer when it is an integral number
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := v.n.Int64()
	return i, err == nil
}

func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.n.Float64()
	return f, err == nil
}

func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Interface converts v into plain Go values (nil, bool, json.Number,
// string, []any, map[string]any)
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if v.n == "" {
			return []byte("0"), nil
		}
		return []byte(v.n), nil
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		return json.Marshal(v.arr)
	case KindObject:
		// json.Marshal sorts map keys, keeping stored blobs stable
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded JSON value (as produced by encoding/json into
// an interface{}) into a Value. Go numeric types are accepted as well.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return Number(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			val, err := ValueOf(item)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = val
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			val, err := ValueOf(item)
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", k, err)
			}
			fields[k] = val
		}
		return Object(fields), nil
	default:
		return Null(), fmt.Errorf("%w: unsupported attribute value type %T", ErrValidation, raw)
	}
}

// Attributes is an open-ended string-keyed mapping of JSON values, used for
// product attributes and user preferences.
type Attributes map[string]Value

// DecodeAttributes parses a stored JSON object. Empty input yields an
// empty mapping.
func DecodeAttributes(data []byte) (Attributes, error) {
	attrs := Attributes{}
	if len(bytes.TrimSpace(data)) == 0 {
		return attrs, nil
	}
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	switch v.Kind() {
	case KindNull:
		return attrs, nil
	case KindObject:
		obj, _ := v.AsObject()
		for k, item := range obj {
			attrs[k] = item
		}
		return attrs, nil
	default:
		return nil, fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
}

// AttributesOf converts a plain map into Attributes
func AttributesOf(raw map[string]any) (Attributes, error) {
	attrs := make(Attributes, len(raw))
	for k, item := range raw {
		val, err := ValueOf(item)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		attrs[k] = val
	}
	return attrs, nil
}

// Encode serializes the mapping as a JSON object
func (a Attributes) Encode() ([]byte, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(a))
}

// Keys returns the attribute names in sorted order
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
