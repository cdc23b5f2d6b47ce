// Package wire implements the wire codec (spec.md §4.1): parsing and
// serializing JSON-RPC 2.0 and MCP messages, and the length-prefixed binary
// frame format (spec.md §6.1) those messages travel over.
package wire

import "encoding/json"

// Value is a parsed JSON document represented as a tagged variant tree:
// nil, bool, int64, float64, string, []Value, or *Object. This mirrors
// spec.md §4.1's "in-memory tree of tagged variants" rather than Go's
// untyped json.Unmarshal-into-any (which collapses int64/float64 into a
// single float64 and loses key order) — order matters for object params
// when they're echoed back verbatim, and int/float distinction matters for
// color-component parsing (spec.md §4.4).
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Arr   []Value
	Obj   *Object
}

// Kind tags the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// Object is an ordered list of name/value pairs, preserving source order
// (plain map[string]Value would not). A key repeated in the source keeps its
// first position and the last value parsed, matching encoding/json.
type Object struct {
	Keys   []string
	Values []Value
}

// Get returns the value for key and whether it was present (last write wins
// on duplicate keys).
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	var found Value
	ok := false
	for i, k := range o.Keys {
		if k == key {
			found = o.Values[i]
			ok = true
		}
	}
	return found, ok
}

// Set appends or overwrites key's value, preserving first-seen order.
func (o *Object) Set(key string, v Value) {
	for i, k := range o.Keys {
		if k == key {
			o.Values[i] = v
			return
		}
	}
	o.Keys = append(o.Keys, key)
	o.Values = append(o.Values, v)
}

// NewObject returns an empty *Object.
func NewObject() *Object {
	return &Object{}
}

// Null, True, False are shared zero-alloc constants for common values.
var (
	Null  = Value{Kind: KindNull}
	True  = Value{Kind: KindBool, Bool: true}
	False = Value{Kind: KindBool, Bool: false}
)

// IntValue wraps an int64 as a Value.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps a float64 as a Value.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringValue wraps a string as a Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// ArrayValue wraps a slice of Values as a Value.
func ArrayValue(vs []Value) Value { return Value{Kind: KindArray, Arr: vs} }

// ObjectValue wraps an *Object as a Value.
func ObjectValue(o *Object) Value { return Value{Kind: KindObject, Obj: o} }

// Clone performs the deep-copy policy described in spec.md §4.1: the parsed
// tree is mutable and may be freed while a request built from it is still
// in flight, so every request/response ownership boundary clones the value
// it retains. Go's garbage collector means a use-after-free can't occur the
// way it can in the teacher's source language, but the clone still matters:
// without it, two requests sharing a parsed params/result tree could
// observe each other's in-place edits (e.g. a handler normalizing a color
// array in place) across goroutines running on different workers.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindArray:
		out := make([]Value, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = e.Clone()
		}
		return Value{Kind: KindArray, Arr: out}
	case KindObject:
		if v.Obj == nil {
			return Value{Kind: KindObject, Obj: NewObject()}
		}
		out := &Object{
			Keys:   append([]string(nil), v.Obj.Keys...),
			Values: make([]Value, len(v.Obj.Values)),
		}
		for i, e := range v.Obj.Values {
			out.Values[i] = e.Clone()
		}
		return Value{Kind: KindObject, Obj: out}
	default:
		return v // scalars are already immutable copies
	}
}

// ToAny converts a Value into a plain Go value (nil, bool, int64, float64,
// string, []any, map-order-preserved-as-slice-of-pairs is NOT used here —
// objects convert to map[string]any for json.Marshal compatibility, since
// standard marshaling doesn't preserve custom ordering anyway once it's a
// Go map).
func (v Value) ToAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindArray:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any)
		if v.Obj != nil {
			for i, k := range v.Obj.Keys {
				out[k] = v.Obj.Values[i].ToAny()
			}
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler so a Value round-trips through
// encoding/json, which is what the frame writer and response serializer use.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		buf := []byte{'['}
		for i, e := range v.Arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}
		return append(buf, ']'), nil
	case KindObject:
		buf := []byte{'{'}
		if v.Obj != nil {
			for i, k := range v.Obj.Keys {
				if i > 0 {
					buf = append(buf, ',')
				}
				kb, err := json.Marshal(k)
				if err != nil {
					return nil, err
				}
				buf = append(buf, kb...)
				buf = append(buf, ':')
				vb, err := v.Obj.Values[i].MarshalJSON()
				if err != nil {
					return nil, err
				}
				buf = append(buf, vb...)
			}
		}
		return append(buf, '}'), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler by decoding into a
// json.Decoder configured with UseNumber() so integers and floats stay
// distinguishable, and object key order is preserved.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(newBytesReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	parsed, err := decodeValue(dec, tok)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
