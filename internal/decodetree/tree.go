// Package decodetree is the ordered JSON value representation every typed
// decode produces: field order in the emitted tree always matches the
// order fields were read off the wire, never Go map iteration order.
package decodetree

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonCustom = jsoniter.ConfigCompatibleWithStandardLibrary

// Object is an insertion-ordered JSON object.
type Object struct {
	fields []field
}

type field struct {
	key   string
	value any
}

// Array is an insertion-ordered JSON array.
type Array struct {
	elements []any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{}
}

// NewArray returns an empty Array.
func NewArray() *Array {
	return &Array{}
}

// MarshalJSON emits fields in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsonCustom.Marshal(f.key)
		if err != nil {
			return nil, fmt.Errorf("decodetree: marshal key %q: %w", f.key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := jsonCustom.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("decodetree: marshal value for key %q: %w", f.key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON emits elements in insertion order.
func (a *Array) MarshalJSON() ([]byte, error) {
	if a.elements == nil {
		return []byte("[]"), nil
	}
	return jsonCustom.Marshal(a.elements)
}

// Set appends or overwrites key with value, preserving the position of an
// existing key (the reference's plain dict-assignment semantics) or
// appending if key is new.
func (o *Object) Set(key string, value any) *Object {
	for i := range o.fields {
		if o.fields[i].key == key {
			o.fields[i].value = value
			return o
		}
	}
	o.fields = append(o.fields, field{key, value})
	return o
}

// Has reports whether key has been set.
func (o *Object) Has(key string) bool {
	for _, f := range o.fields {
		if f.key == key {
			return true
		}
	}
	return false
}

// Get returns the value set for key, if any.
func (o *Object) Get(key string) (any, bool) {
	for _, f := range o.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// Len returns the number of fields.
func (o *Object) Len() int { return len(o.fields) }

// ValueAt returns the i'th field's value, in insertion order.
func (o *Object) ValueAt(i int) (any, bool) {
	if i < 0 || i >= len(o.fields) {
		return nil, false
	}
	return o.fields[i].value, true
}

// KeyAt returns the i'th field's key, in insertion order.
func (o *Object) KeyAt(i int) (string, bool) {
	if i < 0 || i >= len(o.fields) {
		return "", false
	}
	return o.fields[i].key, true
}

// Add appends value to the array.
func (a *Array) Add(value any) *Array {
	a.elements = append(a.elements, value)
	return a
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.elements) }
