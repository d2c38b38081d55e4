package scale

import (
	"encoding/json"
	"math/big"
)

// Kind tags the dynamic shape of a decoded SCALE value.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindBigInt
	KindString
	KindHex
	KindList
	KindMap
	KindRaw
)

// Value is a tagged union holding one decoded SCALE value. Using a sum type
// instead of `any`/`map[string]any` keeps the decoder's output inspectable
// without type assertions; JSON is produced only at the store boundary via
// MarshalJSON.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Big    *big.Int // arbitrary precision integers, e.g. u128/u256
	Str    string
	Hex    string
	List   []Value
	Fields []Field // preserves declaration order, unlike a plain map
	Raw    json.RawMessage
}

// Field is one named entry of a composite or variant value.
type Field struct {
	Name  string
	Value Value
}

func NewBool(b bool) Value   { return Value{Kind: KindBool, Bool: b} }
func NewInt(i int64) Value   { return Value{Kind: KindInt, Int: i} }
func NewBigInt(b *big.Int) Value {
	if b == nil {
		b = big.NewInt(0)
	}
	return Value{Kind: KindBigInt, Big: b}
}
func NewString(s string) Value { return Value{Kind: KindString, Str: s} }
func NewHex(h string) Value    { return Value{Kind: KindHex, Hex: h} }

// NewRaw wraps already-serialized JSON for passthrough re-marshaling,
// used to rebuild a Value from a stored args column without decoding it
// back into a tagged union.
func NewRaw(data json.RawMessage) Value { return Value{Kind: KindRaw, Raw: data} }
func NewList(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, List: items}
}
func NewMap(fields []Field) Value {
	if fields == nil {
		fields = []Field{}
	}
	return Value{Kind: KindMap, Fields: fields}
}

// NewVariant builds the `{VariantName: inner}` shape used for enum variants.
func NewVariant(name string, inner Value) Value {
	return NewMap([]Field{{Name: name, Value: inner}})
}

// Get returns the value of a named field in a map/variant value, if present.
func (v Value) Get(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON stringifies the tagged union — the only place decoded values
// are converted to JSON, per the store boundary.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindBigInt:
		// big integers cross the core/store boundary as decimal strings
		return json.Marshal(v.Big.String())
	case KindString:
		return json.Marshal(v.Str)
	case KindHex:
		return json.Marshal(v.Hex)
	case KindList:
		return json.Marshal(v.List)
	case KindMap:
		m := make(map[string]Value, len(v.Fields))
		for _, f := range v.Fields {
			m[f.Name] = f.Value
		}
		return json.Marshal(m)
	case KindRaw:
		if len(v.Raw) == 0 {
			return json.Marshal(nil)
		}
		return v.Raw, nil
	default:
		return json.Marshal(nil)
	}
}
