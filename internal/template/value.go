// Package template implements the payload template dialect used by provider
// dispatch descriptions: a JSON-like value tree whose string leaves may carry
// {{dotted.path}} placeholders and {{#list}}...{{/list}} sections. Rendering
// is pure and total: it never errors, never panics and never mutates its
// inputs.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the type of a Value node.
type Kind int

const (
	Null Kind = iota
	String
	Number
	Bool
	Object
	Array
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// Value is one node of a JSON-like tree. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	bool bool
	obj  map[string]Value
	arr  []Value
}

// NullValue returns the null node.
func NullValue() Value {
	return Value{}
}

// StringValue returns a string leaf.
func StringValue(s string) Value {
	return Value{kind: String, str: s}
}

// NumberValue returns a number leaf.
func NumberValue(n float64) Value {
	return Value{kind: Number, num: n}
}

// BoolValue returns a boolean leaf.
func BoolValue(b bool) Value {
	return Value{kind: Bool, bool: b}
}

// ObjectValue returns an object node with a copy of the given fields.
func ObjectValue(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: Object, obj: obj}
}

// ArrayValue returns an array node with a copy of the given items.
func ArrayValue(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: Array, arr: arr}
}

// FromAny converts plain Go values (as produced by encoding/json or built by
// hand) into a Value tree. Unsupported types become null.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case uint:
		return NumberValue(float64(x))
	case uint32:
		return NumberValue(float64(x))
	case uint64:
		return NumberValue(float64(x))
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return StringValue(x.String())
		}
		return NumberValue(n)
	case map[string]any:
		obj := make(map[string]Value, len(x))
		for k, item := range x {
			obj[k] = FromAny(item)
		}
		return Value{kind: Object, obj: obj}
	case map[string]string:
		obj := make(map[string]Value, len(x))
		for k, item := range x {
			obj[k] = StringValue(item)
		}
		return Value{kind: Object, obj: obj}
	case []any:
		arr := make([]Value, len(x))
		for i, item := range x {
			arr[i] = FromAny(item)
		}
		return Value{kind: Array, arr: arr}
	case []Value:
		return ArrayValue(x...)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Value{}
		}
		var out Value
		if err := out.UnmarshalJSON(b); err != nil {
			return Value{}
		}
		return out
	}
}

// Parse decodes a JSON document into a Value tree.
func Parse(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Kind returns the node type.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the node is null.
func (v Value) IsNull() bool {
	return v.kind == Null
}

// Str returns the string payload of a string leaf, or "".
func (v Value) Str() string {
	if v.kind != String {
		return ""
	}
	return v.str
}

// Num returns the numeric payload of a number leaf, or 0.
func (v Value) Num() float64 {
	if v.kind != Number {
		return 0
	}
	return v.num
}

// Field returns the named field of an object node.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Fields returns the object's field map. Callers must not modify it.
func (v Value) Fields() map[string]Value {
	if v.kind != Object {
		return nil
	}
	return v.obj
}

// Keys returns the object's field names in sorted order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Index returns the i-th element of an array node.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != Array || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Items returns the array's elements. Callers must not modify the slice.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Len returns the element count of an array node, or 0.
func (v Value) Len() int {
	if v.kind != Array {
		return 0
	}
	return len(v.arr)
}

// Text returns the canonical string form of the node: strings verbatim,
// numbers in shortest decimal form, booleans as true/false, null as the
// empty string and composites as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case Null:
		return ""
	case String:
		return v.str
	case Number:
		return formatNumber(v.num)
	case Bool:
		return strconv.FormatBool(v.bool)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// MarshalJSON encodes the tree as compact JSON with object keys sorted.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(v.str)
	case Number:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return []byte(formatNumber(v.num)), nil
	case Bool:
		return []byte(strconv.FormatBool(v.bool)), nil
	case Object:
		return json.Marshal(v.obj)
	case Array:
		return json.Marshal(v.arr)
	default:
		return nil, fmt.Errorf("template: unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes any JSON document into the tree.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("template: decode: %w", err)
	}
	*v = FromAny(raw)
	return nil
}

func formatNumber(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return ""
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
