package wire

// MCPRequest is the tool-call envelope the router dispatches when the
// protocol classifier detects `{"tool` (spec.md §4.3/§6.1). It carries a
// tool name and an arguments object, parallel in shape to a JSON-RPC
// request but without the jsonrpc/method framing.
type MCPRequest struct {
	Tool           string
	Arguments      Params
	ID             ID
	IsNotification bool
}

// ParseMCPRequest converts a parsed Value into an MCPRequest.
func ParseMCPRequest(v Value) (MCPRequest, *ParseError) {
	if v.Kind != KindObject {
		return MCPRequest{}, newParseError(CodeInvalidRequest, "request must be a JSON object")
	}
	obj := v.Obj

	toolVal, ok := obj.Get("tool")
	if !ok || toolVal.Kind != KindString || toolVal.Str == "" {
		return MCPRequest{}, newParseError(CodeInvalidRequest, `"tool" must be a non-empty string`)
	}

	argsVal, hasArgs := obj.Get("arguments")
	args, err := paramsFromValue(argsVal, hasArgs)
	if err != nil {
		return MCPRequest{}, newParseError(CodeInvalidRequest, err.Error())
	}

	req := MCPRequest{Tool: toolVal.Str, Arguments: args}
	idVal, hasID := obj.Get("id")
	if !hasID {
		req.IsNotification = true
		req.ID = NullID
		return req, nil
	}
	id, err := idFromValue(idVal)
	if err != nil {
		return MCPRequest{}, newParseError(CodeInvalidRequest, err.Error())
	}
	req.ID = id
	return req, nil
}

// MCPResponse mirrors Response but carries a "tool" echo for symmetry with
// the request envelope.
type MCPResponse struct {
	Response
	Tool string
}

// ToValue renders an MCPResponse, reusing Response's result/error fields
// but keyed under the MCP envelope's field names.
func (r MCPResponse) ToValue() Value {
	obj := NewObject()
	obj.Set("tool", StringValue(r.Tool))
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
