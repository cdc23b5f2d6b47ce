package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

func newBytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// decodeValue recursively builds a Value from a json.Decoder token stream.
// tok is the token already read for the value being decoded (the decoder's
// Token() call that triggered this).
func decodeValue(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null, nil
	case bool:
		if t {
			return True, nil
		}
		return False, nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return numberValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeObject(dec)
		default:
			return Value{}, fmt.Errorf("wire: unexpected delimiter %q", t)
		}
	default:
		return Value{}, fmt.Errorf("wire: unexpected token %T", tok)
	}
}

func numberValue(n json.Number) Value {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return IntValue(i)
	}
	f, _ := n.Float64()
	return FloatValue(f)
}

func decodeArray(dec *json.Decoder) (Value, error) {
	var elems []Value
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		v, err := decodeValue(dec, tok)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	// consume closing ']'
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return ArrayValue(elems), nil
}

func decodeObject(dec *json.Decoder) (Value, error) {
	obj := NewObject()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Value{}, fmt.Errorf("wire: object key is not a string: %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		v, err := decodeValue(dec, valTok)
		if err != nil {
			return Value{}, err
		}
		obj.Set(key, v)
	}
	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return ObjectValue(obj), nil
}

// ParseValue parses a single JSON document into a Value tree.
func ParseValue(data []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}
