package wire

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseRequestEcho(t *testing.T) {
	v, err := ParseValue([]byte(`{"jsonrpc":"2.0","method":"echo","params":{"msg":"hi"},"id":1}`))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	req, perr := ParseRequest(v)
	if perr != nil {
		t.Fatalf("ParseRequest: %v", perr)
	}
	if req.Method != "echo" || req.IsNotification {
		t.Fatalf("req = %+v", req)
	}
	if req.ID.Kind != IDInt || req.ID.Int != 1 {
		t.Fatalf("req.ID = %+v", req.ID)
	}
	msg, ok := req.Params.Get(0, "msg")
	if !ok || msg.Str != "hi" {
		t.Fatalf("params.msg = %+v, ok=%v", msg, ok)
	}
}

func TestParseRequestNotification(t *testing.T) {
	v, _ := ParseValue([]byte(`{"jsonrpc":"2.0","method":"echo","params":["b"]}`))
	req, perr := ParseRequest(v)
	if perr != nil {
		t.Fatalf("ParseRequest: %v", perr)
	}
	if !req.IsNotification {
		t.Fatalf("expected notification, got %+v", req)
	}
}

func TestParseRequestRejectsReservedPrefix(t *testing.T) {
	v, _ := ParseValue([]byte(`{"jsonrpc":"2.0","method":"rpc.x","id":2}`))
	_, perr := ParseRequest(v)
	if perr == nil || perr.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request error, got %+v", perr)
	}
}

func TestParseRequestInvalidVersion(t *testing.T) {
	v, _ := ParseValue([]byte(`{"jsonrpc":"1.0","method":"echo","id":1}`))
	_, perr := ParseRequest(v)
	if perr == nil || perr.Code != CodeInvalidVersion {
		t.Fatalf("expected invalid version error, got %+v", perr)
	}
}

func TestMethodNameLengthBoundary(t *testing.T) {
	ok127 := strings.Repeat("m", 127)
	v, _ := ParseValue([]byte(`{"jsonrpc":"2.0","method":"` + ok127 + `","id":1}`))
	if _, perr := ParseRequest(v); perr != nil {
		t.Fatalf("127-char method should be accepted, got %v", perr)
	}

	bad128 := strings.Repeat("m", 128)
	v2, _ := ParseValue([]byte(`{"jsonrpc":"2.0","method":"` + bad128 + `","id":1}`))
	if _, perr := ParseRequest(v2); perr == nil {
		t.Fatalf("128-char method should be rejected")
	}
}

func TestErrorMessageLengthBoundary(t *testing.T) {
	msg511 := strings.Repeat("e", 511)
	rpcErr := NewRPCError(CodeInternalError, msg511, nil)
	if len(rpcErr.Message) != 511 {
		t.Errorf("511-char message should be kept whole, got len %d", len(rpcErr.Message))
	}

	msg512 := strings.Repeat("e", 512)
	rpcErr2 := NewRPCError(CodeInternalError, msg512, nil)
	if len(rpcErr2.Message) != 511 {
		t.Errorf("512-char message should be truncated to 511, got len %d", len(rpcErr2.Message))
	}
}

func TestBatchWithMix(t *testing.T) {
	data := []byte(`[{"jsonrpc":"2.0","method":"echo","params":["a"],"id":1},{"jsonrpc":"2.0","method":"echo","params":["b"]},{"jsonrpc":"2.0","method":"rpc.x","id":2}]`)
	reqs, errs, isBatch, topErr := ParseBatchOrSingle(data)
	if topErr != nil {
		t.Fatalf("unexpected top-level error: %v", topErr)
	}
	if !isBatch || len(reqs) != 3 {
		t.Fatalf("isBatch=%v len=%d", isBatch, len(reqs))
	}
	if errs[0] != nil {
		t.Errorf("element 0 should parse cleanly, got %v", errs[0])
	}
	if !reqs[1].IsNotification {
		t.Errorf("element 1 should be a notification")
	}
	if errs[2] == nil || errs[2].Code != CodeInvalidRequest {
		t.Errorf("element 2 should be invalid request, got %v", errs[2])
	}
}

func TestIDClonedIdempotent(t *testing.T) {
	for _, id := range []ID{NullID, IntID(42), StringID("abc")} {
		if !id.Clone().Equal(id) {
			t.Errorf("clone(%+v) != id", id)
		}
	}
}

func TestValueCloneRoundTrip(t *testing.T) {
	v, err := ParseValue([]byte(`{"a":[1,2.5,"x",null,true],"b":{"c":3}}`))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	cloned := v.Clone()
	b1, _ := v.MarshalJSON()
	b2, _ := cloned.MarshalJSON()
	if !bytes.Equal(b1, b2) {
		t.Errorf("clone mismatch: %s vs %s", b1, b2)
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	original := []byte(`{"jsonrpc":"2.0","method":"paint_voxel","params":[1,2,3,255,0,0,255,0],"id":11}`)
	v, err := ParseValue(original)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	serialized, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	v2, err := ParseValue(serialized)
	if err != nil {
		t.Fatalf("ParseValue(serialized): %v", err)
	}
	b1, _ := v.MarshalJSON()
	b2, _ := v2.MarshalJSON()
	if !bytes.Equal(b1, b2) {
		t.Errorf("round-trip mismatch: %s vs %s", b1, b2)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"jsonrpc":"2.0","result":{"ok":true},"id":1}`)
	if err := WriteFrame(&buf, Frame{ID: 7, Payload: payload}, false); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, 1<<20)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.ID != 7 || !bytes.Equal(got.Payload, payload) {
		t.Fatalf("got = %+v", got)
	}
}

func TestFrameRoundTripCompressed(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte(`{"voxel":[1,2,3,255,0,0,255]},`), 2000)
	if err := WriteFrame(&buf, Frame{ID: 9, Payload: payload}, true); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if buf.Len() >= len(payload) {
		t.Errorf("expected compression to shrink payload: wire=%d raw=%d", buf.Len(), len(payload))
	}
	got, err := ReadFrame(&buf, 1<<20)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("decompressed payload mismatch")
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, Frame{ID: 1, Payload: make([]byte, 100)}, false)
	if _, err := ReadFrame(&buf, 10); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestMCPDetectionShape(t *testing.T) {
	v, err := ParseValue([]byte(`{"tool":"add_voxel","arguments":{"x":1,"y":2,"z":3},"id":"a"}`))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	req, perr := ParseMCPRequest(v)
	if perr != nil {
		t.Fatalf("ParseMCPRequest: %v", perr)
	}
	if req.Tool != "add_voxel" || req.ID.Kind != IDString || req.ID.Str != "a" {
		t.Fatalf("req = %+v", req)
	}
}
