// Package document provides the in-memory model for exported gateway
// configuration: a tagged JSON value with ordered objects, so a document can
// be rewritten and re-encoded without disturbing the fields nobody touched.
package document

import (
	"fmt"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindNull is the JSON null (and the zero Value).
	KindNull Kind = iota
	// KindBool is true or false.
	KindBool
	// KindNumber is a number kept as its literal text.
	KindNumber
	// KindString is a string.
	KindString
	// KindArray is an ordered sequence of values.
	KindArray
	// KindObject is a map with preserved key order.
	KindObject
)

func (k Kind) String() string {
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
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a node of a configuration document.
//
// A nil *Value reads as null. Objects keep keys in insertion order; setting an
// existing key replaces its value in place.
type Value struct {
	kind   Kind
	b      bool
	s      string
	items  []*Value
	keys   []string
	fields map[string]*Value
}

// Null returns a new null value.
func Null() *Value {
	return &Value{kind: KindNull}
}

// Bool returns a new boolean value.
func Bool(b bool) *Value {
	return &Value{kind: KindBool, b: b}
}

// String returns a new string value.
func String(s string) *Value {
	return &Value{kind: KindString, s: s}
}

// Number returns a new number value from its literal text.
// The literal must be a valid JSON number.
func Number(literal string) (*Value, error) {
	if !isJSONNumber(literal) {
		return nil, fmt.Errorf("invalid number literal %q", literal)
	}
	return &Value{kind: KindNumber, s: literal}, nil
}

// Int returns a new number value.
func Int(n int64) *Value {
	return &Value{kind: KindNumber, s: strconv.FormatInt(n, 10)}
}

// NewArray returns a new array holding items.
func NewArray(items ...*Value) *Value {
	v := &Value{kind: KindArray, items: make([]*Value, 0, len(items))}
	for _, item := range items {
		v.items = append(v.items, orNull(item))
	}
	return v
}

// NewObject returns a new empty object.
func NewObject() *Value {
	return &Value{kind: KindObject, fields: make(map[string]*Value)}
}

// Kind reports the variant of v.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether v is null.
func (v *Value) IsNull() bool { return v.Kind() == KindNull }

// IsObject reports whether v is an object.
func (v *Value) IsObject() bool { return v.Kind() == KindObject }

// IsArray reports whether v is an array.
func (v *Value) IsArray() bool { return v.Kind() == KindArray }

// IsString reports whether v is a string.
func (v *Value) IsString() bool { return v.Kind() == KindString }

// Str returns the string held by v.
func (v *Value) Str() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}
	return v.s, true
}

// BoolValue returns the boolean held by v.
func (v *Value) BoolValue() (bool, bool) {
	if v.Kind() != KindBool {
		return false, false
	}
	return v.b, true
}

// NumberLiteral returns the literal text of a number value.
func (v *Value) NumberLiteral() (string, bool) {
	if v.Kind() != KindNumber {
		return "", false
	}
	return v.s, true
}

// Scalar returns the text form of a string or number value.
func (v *Value) Scalar() (string, bool) {
	switch v.Kind() {
	case KindString, KindNumber:
		return v.s, true
	default:
		return "", false
	}
}

// Truthy mirrors the loose emptiness checks the gateway tooling has always
// applied to payload fields: null, false, 0 and "" are falsy.
func (v *Value) Truthy() bool {
	switch v.Kind() {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindString:
		return v.s != ""
	case KindNumber:
		f, err := strconv.ParseFloat(v.s, 64)
		return err != nil || f != 0
	default:
		return true
	}
}

// Len returns the number of items of an array or keys of an object.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	default:
		return 0
	}
}

// Items returns the elements of an array. The slice is shared with v.
func (v *Value) Items() []*Value {
	if v.Kind() != KindArray {
		return nil
	}
	return v.items
}

// Append adds items to an array.
func (v *Value) Append(items ...*Value) {
	if v.Kind() != KindArray {
		return
	}
	for _, item := range items {
		v.items = append(v.items, orNull(item))
	}
}

// Keys returns the keys of an object in order.
func (v *Value) Keys() []string {
	if v.Kind() != KindObject {
		return nil
	}
	keys := make([]string, len(v.keys))
	copy(keys, v.keys)
	return keys
}

// Has reports whether an object carries key.
func (v *Value) Has(key string) bool {
	if v.Kind() != KindObject {
		return false
	}
	_, ok := v.fields[key]
	return ok
}

// Get returns the value under key, or nil when v is not an object or the key
// is absent.
func (v *Value) Get(key string) *Value {
	if v.Kind() != KindObject {
		return nil
	}
	return v.fields[key]
}

// Set stores val under key. An existing key keeps its position.
func (v *Value) Set(key string, val *Value) {
	if v.Kind() != KindObject {
		return
	}
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = orNull(val)
}

// Delete removes key from an object.
func (v *Value) Delete(key string) {
	if !v.Has(key) {
		return
	}
	delete(v.fields, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Lookup follows a chain of object keys and returns nil when any step is
// missing.
func (v *Value) Lookup(path ...string) *Value {
	cur := v
	for _, key := range path {
		cur = cur.Get(key)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	out := &Value{kind: v.kind, b: v.b, s: v.s}
	switch v.kind {
	case KindArray:
		out.items = make([]*Value, len(v.items))
		for i, item := range v.items {
			out.items[i] = item.Clone()
		}
	case KindObject:
		out.keys = make([]string, len(v.keys))
		copy(out.keys, v.keys)
		out.fields = make(map[string]*Value, len(v.fields))
		for k, field := range v.fields {
			out.fields[k] = field.Clone()
		}
	}
	return out
}

// Equal reports whether v and other hold the same data. Object key order is
// not significant; number literals are compared as written.
func (v *Value) Equal(other *Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber, KindString:
		return v.s == other.s
	case KindArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.keys) != len(other.keys) {
			return false
		}
		for _, k := range v.keys {
			o, ok := other.fields[k]
			if !ok || !v.fields[k].Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

func orNull(v *Value) *Value {
	if v == nil {
		return Null()
	}
	return v
}
