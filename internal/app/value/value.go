// Package value models JSON-like payloads as an immutable tagged tree.
// Bodies recorded in pact documents and bodies received at verification
// time are both represented as Values, so the matching engine only ever
// compares one shape of data.
package value

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Kind tags a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// Value is a JSON-like datum. Numbers keep their raw literal so the
// integer/decimal distinction survives a round trip. Object keys keep
// insertion order. Values must not be mutated after construction.
type Value struct {
	kind Kind
	b    bool
	num  string
	str  string
	arr  []Value
	keys []string
	obj  map[string]Value
}

func NewNull() Value { return Value{kind: Null} }

func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewNumber takes the raw numeric literal, e.g. "100" or "2.3e1".
func NewNumber(raw string) Value { return Value{kind: Number, num: raw} }

func NewInt(i int64) Value { return Value{kind: Number, num: strconv.FormatInt(i, 10)} }

func NewFloat(f float64) Value {
	return Value{kind: Number, num: strconv.FormatFloat(f, 'f', -1, 64)}
}

func NewString(s string) Value { return Value{kind: String, str: s} }

func NewArray(items ...Value) Value { return Value{kind: Array, arr: items} }

// NewObject builds an object from alternating key/Value pairs, keeping
// the order the pairs were given in.
func NewObject(pairs ...interface{}) Value {
	v := Value{kind: Object, obj: map[string]Value{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)
		if _, exists := v.obj[key]; !exists {
			v.keys = append(v.keys, key)
		}
		v.obj[key] = pairs[i+1].(Value)
	}
	return v
}

// Parse decodes JSON into a Value, preserving object key order and raw
// numeric literals.
func Parse(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return NewNull(), errors.Errorf("invalid JSON document: %s", summarize(data))
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func summarize(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

func fromResult(res gjson.Result) Value {
	switch {
	case res.Type == gjson.Null:
		return NewNull()
	case res.Type == gjson.True:
		return NewBool(true)
	case res.Type == gjson.False:
		return NewBool(false)
	case res.Type == gjson.Number:
		return NewNumber(res.Raw)
	case res.Type == gjson.String:
		return NewString(res.String())
	case res.IsArray():
		var items []Value
		res.ForEach(func(_, item gjson.Result) bool {
			items = append(items, fromResult(item))
			return true
		})
		return NewArray(items...)
	case res.IsObject():
		v := Value{kind: Object, obj: map[string]Value{}}
		res.ForEach(func(key, item gjson.Result) bool {
			k := key.String()
			if _, exists := v.obj[k]; !exists {
				v.keys = append(v.keys, k)
			}
			v.obj[k] = fromResult(item)
			return true
		})
		return v
	}
	return NewNull()
}

// FromInterface converts the output of encoding/json (maps, slices,
// float64, string, bool, nil) into a Value. Map key order is not
// recoverable, so keys are sorted for stability.
func FromInterface(raw interface{}) Value {
	switch val := raw.(type) {
	case nil:
		return NewNull()
	case bool:
		return NewBool(val)
	case float64:
		return NewFloat(val)
	case json.Number:
		return NewNumber(val.String())
	case int:
		return NewInt(int64(val))
	case int64:
		return NewInt(val)
	case string:
		return NewString(val)
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromInterface(item)
		}
		return NewArray(items...)
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortStrings(keys)
		v := Value{kind: Object, obj: map[string]Value{}, keys: keys}
		for _, k := range keys {
			v.obj[k] = FromInterface(val[k])
		}
		return v
	}
	return NewNull()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) Bool() bool { return v.b }

// Raw returns the literal for Number values.
func (v Value) Raw() string { return v.num }

func (v Value) Float() float64 {
	f, _ := strconv.ParseFloat(v.num, 64)
	return f
}

// IsInteger reports whether a Number literal has no fractional or
// exponent component.
func (v Value) IsInteger() bool {
	return v.kind == Number && !strings.ContainsAny(v.num, ".eE")
}

func (v Value) Str() string { return v.str }

func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.keys)
	case String:
		return len(v.str)
	}
	return 0
}

func (v Value) Items() []Value { return v.arr }

func (v Value) Index(i int) Value {
	if i < 0 || i >= len(v.arr) {
		return NewNull()
	}
	return v.arr[i]
}

// Keys returns object keys in insertion order.
func (v Value) Keys() []string { return v.keys }

func (v Value) Get(key string) (Value, bool) {
	item, ok := v.obj[key]
	return item, ok
}

// Equal is deep structural equality. Object key order is ignored but
// key sets must be identical. Numbers compare by numeric value.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Number:
		return v.Float() == other.Float()
	case String:
		return v.str == other.str
	case Array:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, item := range v.obj {
			otherItem, ok := other.obj[k]
			if !ok || !item.Equal(otherItem) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the Value as compact JSON.
func (v Value) String() string {
	var buf bytes.Buffer
	v.render(&buf)
	return buf.String()
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.render(&buf)
	return buf.Bytes(), nil
}

func (v Value) render(buf *bytes.Buffer) {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(v.num)
	case String:
		encoded, _ := json.Marshal(v.str)
		buf.Write(encoded)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.render(buf)
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			buf.Write(encoded)
			buf.WriteByte(':')
			item := v.obj[k]
			item.render(buf)
		}
		buf.WriteByte('}')
	}
}

// Interface converts the Value to the encoding/json representation
// (map[string]interface{}, []interface{}, float64, string, bool, nil)
// for collaborators that work on decoded documents.
func (v Value) Interface() interface{} {
	switch v.kind {
	case Null:
		return nil
	case Bool:
		return v.b
	case Number:
		return v.Float()
	case String:
		return v.str
	case Array:
		items := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.Interface()
		}
		return items
	case Object:
		doc := make(map[string]interface{}, len(v.keys))
		for _, k := range v.keys {
			item := v.obj[k]
			doc[k] = item.Interface()
		}
		return doc
	}
	return nil
}
