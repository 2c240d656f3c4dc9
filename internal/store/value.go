package store

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Value is the store's "self-describing byte buffer": a leaf's payload
// kept as raw encoded JSON (scalar, array, or object) and only decoded
// on demand. It stands in for the source's VelocyPack Slice/Builder
// pair while keeping the same property that matters to the store:
// structural equality and type inspection without committing to a
// fixed Go type up front.
type Value struct {
	raw json.RawMessage
}

// NullValue is the value of a freshly created, never-set node.
var NullValue = Value{}

func NewValue(v interface{}) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return Value{raw: normalize(raw)}, nil
}

func ValueFromRaw(raw json.RawMessage) Value {
	return Value{raw: normalize(raw)}
}

// normalize re-marshals through interface{} so two different byte
// encodings of the same logical value (e.g. "1" vs "1.0", or different
// key order) compare equal.
func normalize(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

func (v Value) Raw() json.RawMessage {
	if len(v.raw) == 0 {
		return json.RawMessage("null")
	}
	return v.raw
}

func (v Value) IsNull() bool {
	return len(v.raw) == 0 || bytes.Equal(v.raw, []byte("null"))
}

func (v Value) Equal(other Value) bool {
	var a, b interface{}
	_ = json.Unmarshal(v.Raw(), &a)
	_ = json.Unmarshal(other.Raw(), &b)
	return reflect.DeepEqual(a, b)
}

// IsArray reports whether the value decodes to a JSON array.
func (v Value) IsArray() bool {
	_, ok := v.decoded().([]interface{})
	return ok
}

func (v Value) Array() ([]interface{}, bool) {
	arr, ok := v.decoded().([]interface{})
	return arr, ok
}

// Int returns the value as an integer if it decodes to a whole number.
func (v Value) Int() (int64, bool) {
	f, ok := v.decoded().(float64)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func (v Value) decoded() interface{} {
	var out interface{}
	if err := json.Unmarshal(v.Raw(), &out); err != nil {
		return nil
	}
	return out
}

func valueOf(v interface{}) Value {
	val, err := NewValue(v)
	if err != nil {
		return NullValue
	}
	return val
}
