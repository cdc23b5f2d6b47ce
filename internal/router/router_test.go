package router

import "testing"

func TestClassifyAutoJSONRPC(t *testing.T) {
	r := New(ModeAuto)
	cases := [][]byte{
		[]byte(`{"method":"echo","id":1}`),
		[]byte(`{"id":1,"result":{}}`),
		[]byte(`{"jsonrpc":"2.0","method":"echo"}`),
		[]byte(`{"unrecognized":true}`),
		[]byte(`not even json`),
	}
	for _, c := range cases {
		if got := r.Classify(c); got != ProtocolJSONRPC {
			t.Errorf("Classify(%s) = %v, want JSONRPC", c, got)
		}
	}
}

func TestClassifyAutoMCP(t *testing.T) {
	r := New(ModeAuto)
	if got := r.Classify([]byte(`{"tool":"add_voxel","arguments":{}}`)); got != ProtocolMCP {
		t.Errorf("Classify = %v, want MCP", got)
	}
}

func TestClassifyForcedModeSkipsDetection(t *testing.T) {
	r := New(ModeMCP)
	if got := r.Classify([]byte(`{"jsonrpc":"2.0","method":"echo"}`)); got != ProtocolMCP {
		t.Errorf("forced mcp mode should ignore payload shape, got %v", got)
	}
	stats := r.Stats()
	if stats.ForcedMCP != 1 {
		t.Errorf("ForcedMCP = %d, want 1", stats.ForcedMCP)
	}
}

func TestClassifyNotifiesCallback(t *testing.T) {
	r := New(ModeAuto)
	var kinds []string
	r.OnDetect(func(kind string) { kinds = append(kinds, kind) })
	r.Classify([]byte(`{"method":"echo","id":1}`))
	r.Classify([]byte(`{"tool":"x"}`))
	if len(kinds) != 2 || kinds[0] != "auto_jsonrpc" || kinds[1] != "auto_mcp" {
		t.Fatalf("kinds = %v", kinds)
	}
}
