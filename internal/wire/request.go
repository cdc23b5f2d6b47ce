package wire

import "fmt"

// IDKind tags the JSON-RPC id variant (spec.md §3: "Id is one of {null,
// integer, string}").
type IDKind int

const (
	IDNull IDKind = iota
	IDInt
	IDString
)

// ID is a JSON-RPC request/response identifier.
type ID struct {
	Kind IDKind
	Int  int64
	Str  string
}

// NullID is the null-id sentinel used for responses to unparsable requests.
var NullID = ID{Kind: IDNull}

// IntID wraps an integer id.
func IntID(i int64) ID { return ID{Kind: IDInt, Int: i} }

// StringID wraps a string id.
func StringID(s string) ID { return ID{Kind: IDString, Str: s} }

// Equal reports whether two ids have the same kind and value, used by the
// clone/round-trip idempotence tests in spec.md §8.
func (id ID) Equal(other ID) bool {
	if id.Kind != other.Kind {
		return false
	}
	switch id.Kind {
	case IDInt:
		return id.Int == other.Int
	case IDString:
		return id.Str == other.Str
	default:
		return true
	}
}

// Clone returns id unchanged — ids are value types with no shared backing
// storage, so clone is the identity (spec.md §8: "clone(id) == id").
func (id ID) Clone() ID { return id }

func (id ID) toValue() Value {
	switch id.Kind {
	case IDInt:
		return IntValue(id.Int)
	case IDString:
		return StringValue(id.Str)
	default:
		return Null
	}
}

func idFromValue(v Value) (ID, error) {
	switch v.Kind {
	case KindNull:
		return NullID, nil
	case KindInt:
		return IntID(v.Int), nil
	case KindString:
		return StringID(v.Str), nil
	default:
		return ID{}, fmt.Errorf("id must be null, integer, or string")
	}
}

// ParamsKind tags the shape of a request's parameters (spec.md §3).
type ParamsKind int

const (
	ParamsNone ParamsKind = iota
	ParamsArray
	ParamsObject
)

// Params holds a request's positional or named parameters.
type Params struct {
	Kind ParamsKind
	Arr  []Value
	Obj  *Object
}

func paramsFromValue(v Value, present bool) (Params, error) {
	if !present {
		return Params{Kind: ParamsNone}, nil
	}
	switch v.Kind {
	case KindArray:
		return Params{Kind: ParamsArray, Arr: v.Arr}, nil
	case KindObject:
		return Params{Kind: ParamsObject, Obj: v.Obj}, nil
	case KindNull:
		return Params{Kind: ParamsNone}, nil
	default:
		return Params{}, fmt.Errorf("params must be an array or object")
	}
}

// Get returns positional argument at index i (ParamsArray) or named field
// key (ParamsObject), whichever applies, matching spec.md §4.4's "positional
// (array) or named (object)" parameter access.
func (p Params) Get(i int, key string) (Value, bool) {
	switch p.Kind {
	case ParamsArray:
		if i >= 0 && i < len(p.Arr) {
			return p.Arr[i], true
		}
		return Value{}, false
	case ParamsObject:
		return p.Obj.Get(key)
	default:
		return Value{}, false
	}
}

// Len returns the number of positional arguments, or the number of named
// fields, or 0 for ParamsNone.
func (p Params) Len() int {
	switch p.Kind {
	case ParamsArray:
		return len(p.Arr)
	case ParamsObject:
		if p.Obj == nil {
			return 0
		}
		return len(p.Obj.Keys)
	default:
		return 0
	}
}

// maxMethodLen and maxErrorMessageLen are the boundary constants from
// spec.md §3/§8 ("Max method name 128 bytes, max error message 512 bytes").
const (
	maxMethodLen       = 128
	maxErrorMessageLen = 512
)

// Request is a parsed JSON-RPC 2.0 request (spec.md §3).
type Request struct {
	Method         string
	Params         Params
	ID             ID
	IsNotification bool
}

// ParseError is returned by ParseRequest/ParseBatch for a malformed
// document; Code is one of the reserved JSON-RPC error codes (spec.md §3).
type ParseError struct {
	Code    int
	Message string
}

func (e *ParseError) Error() string { return e.Message }

func newParseError(code int, msg string) *ParseError {
	return &ParseError{Code: code, Message: msg}
}

// ParseRequest validates and converts a parsed Value into a Request,
// applying the rules in spec.md §4.1.
func ParseRequest(v Value) (Request, *ParseError) {
	if v.Kind != KindObject {
		return Request{}, newParseError(CodeInvalidRequest, "request must be a JSON object")
	}
	obj := v.Obj

	jsonrpcVal, ok := obj.Get("jsonrpc")
	if !ok || jsonrpcVal.Kind != KindString || jsonrpcVal.Str != "2.0" {
		return Request{}, newParseError(CodeInvalidVersion, `"jsonrpc" must equal "2.0"`)
	}

	methodVal, ok := obj.Get("method")
	if !ok || methodVal.Kind != KindString || methodVal.Str == "" {
		return Request{}, newParseError(CodeInvalidRequest, `"method" must be a non-empty string`)
	}
	if len(methodVal.Str) >= maxMethodLen {
		return Request{}, newParseError(CodeInvalidRequest, "method name exceeds maximum length")
	}
	if len(methodVal.Str) >= 4 && methodVal.Str[:4] == "rpc." {
		return Request{}, newParseError(CodeInvalidRequest, "method names prefixed \"rpc.\" are reserved")
	}

	paramsVal, hasParams := obj.Get("params")
	params, err := paramsFromValue(paramsVal, hasParams)
	if err != nil {
		return Request{}, newParseError(CodeInvalidRequest, err.Error())
	}

	idVal, hasID := obj.Get("id")
	req := Request{Method: methodVal.Str, Params: params}
	if !hasID {
		req.IsNotification = true
		req.ID = NullID
		return req, nil
	}
	id, err := idFromValue(idVal)
	if err != nil {
		return Request{}, newParseError(CodeInvalidRequest, err.Error())
	}
	req.ID = id
	return req, nil
}

// ParseBatchOrSingle parses a top-level document that may be a single
// request object or (spec.md §4.1) a batch array of requests. It returns
// the parsed requests in document order and, for elements that failed to
// parse, a parallel slice of *ParseError (nil where parsing succeeded).
func ParseBatchOrSingle(data []byte) (requests []Request, parseErrs []*ParseError, isBatch bool, topErr *ParseError) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, nil, false, newParseError(CodeParseError, "invalid JSON: "+err.Error())
	}

	if v.Kind == KindArray {
		if len(v.Arr) == 0 {
			return nil, nil, true, newParseError(CodeInvalidRequest, "batch must not be empty")
		}
		requests = make([]Request, len(v.Arr))
		parseErrs = make([]*ParseError, len(v.Arr))
		for i, elem := range v.Arr {
			req, perr := ParseRequest(elem)
			requests[i] = req
			parseErrs[i] = perr
		}
		return requests, parseErrs, true, nil
	}

	req, perr := ParseRequest(v)
	return []Request{req}, []*ParseError{perr}, false, nil
}
