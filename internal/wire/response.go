package wire

// Reserved JSON-RPC error code ranges (spec.md §3).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeInvalidVersion = -32600 // same band as invalid request; distinguished by message

	// ServerErrorMin/ServerErrorMax bound the implementation-defined server
	// error band (spec.md §3: "−32000..−32099 server").
	ServerErrorMin = -32099
	ServerErrorMax = -32000
)

// RPCError is the JSON-RPC error object (spec.md §3).
type RPCError struct {
	Code    int
	Message string
	Data    *Value
}

// truncateMessage enforces the 512-byte error-message boundary from
// spec.md §8 ("Error message of length exactly 511 accepted, 512 rejected").
func truncateMessage(msg string) string {
	if len(msg) < maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen-1]
}

// NewRPCError builds an RPCError, truncating an over-long message rather
// than rejecting the response outright (spec.md leaves the overflow
// behavior to the implementation; truncation keeps every response well
// formed).
func NewRPCError(code int, message string, data *Value) *RPCError {
	return &RPCError{Code: code, Message: truncateMessage(message), Data: data}
}

// Response is a JSON-RPC 2.0 response: exactly one of Result/Error is set
// (spec.md §3).
type Response struct {
	ID     ID
	Result Value
	Error  *RPCError
	HasResult bool
}

// NewSuccessResponse builds a result response, cloning result per the
// deep-clone policy (spec.md §4.1) so it no longer aliases whatever tree
// the handler built it from.
func NewSuccessResponse(id ID, result Value) Response {
	return Response{ID: id, Result: result.Clone(), HasResult: true}
}

// NewErrorResponse builds an error response. If err.Data is set it is
// cloned for the same reason as NewSuccessResponse's result.
func NewErrorResponse(id ID, err *RPCError) Response {
	out := &RPCError{Code: err.Code, Message: err.Message}
	if err.Data != nil {
		cloned := err.Data.Clone()
		out.Data = &cloned
	}
	return Response{ID: id, Error: out}
}

// ToValue renders a Response as the Value tree the serializer will marshal.
func (r Response) ToValue() Value {
	obj := NewObject()
	obj.Set("jsonrpc", StringValue("2.0"))
	obj.Set("id", r.ID.toValue())
	if r.Error != nil {
		errObj := NewObject()
		errObj.Set("code", IntValue(int64(r.Error.Code)))
		errObj.Set("message", StringValue(r.Error.Message))
		if r.Error.Data != nil {
			errObj.Set("data", *r.Error.Data)
		}
		obj.Set("error", ObjectValue(errObj))
	} else {
		obj.Set("result", r.Result)
	}
	return ObjectValue(obj)
}

// Serialize marshals a Response to compact JSON bytes.
func Serialize(r Response) ([]byte, error) {
	return r.ToValue().MarshalJSON()
}

// SerializeBatch marshals a slice of Responses as a JSON array, matching
// spec.md §4.1's batch-output ordering rule.
func SerializeBatch(responses []Response) ([]byte, error) {
	arr := make([]Value, len(responses))
	for i, r := range responses {
		arr[i] = r.ToValue()
	}
	return ArrayValue(arr).MarshalJSON()
}
