// Package router implements the protocol-detecting message router
// (spec.md §4.3): it peeks the first bytes of a frame payload and
// classifies it as JSON-RPC or MCP, or honors a forced mode from
// configuration.
package router

import (
	"bytes"
	"time"
)

// Protocol identifies which wire protocol a payload should be parsed as.
type Protocol int

const (
	ProtocolJSONRPC Protocol = iota
	ProtocolMCP
)

// Mode selects how the router classifies incoming payloads (spec.md §4.3).
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeJSONRPC Mode = "jsonrpc"
	ModeMCP     Mode = "mcp"
)

var (
	prefixMethod  = []byte(`{"method`)
	prefixID      = []byte(`{"id`)
	prefixJSONRPC = []byte(`{"jsonrpc`)
	prefixTool    = []byte(`{"tool`)
)

// Stats is the protocol-statistics record spec.md §4.3 calls for: counts of
// each classification outcome plus the time spent detecting.
type Stats struct {
	AutoJSONRPC    int64
	AutoMCP        int64
	ForcedJSONRPC  int64
	ForcedMCP      int64
	LastDetectTime time.Duration
}

// Router classifies payloads per the configured Mode.
type Router struct {
	mode  Mode
	stats Stats

	// onDetect, if set, is called after each classification with the
	// resulting kind — used to feed the durable protocol counters in
	// internal/diag (see SPEC_FULL.md §2).
	onDetect func(kind string)
}

// New creates a Router in the given mode.
func New(mode Mode) *Router {
	if mode == "" {
		mode = ModeAuto
	}
	return &Router{mode: mode}
}

// OnDetect registers a callback invoked with "auto_jsonrpc", "auto_mcp",
// "forced_jsonrpc", or "forced_mcp" after each Classify call.
func (r *Router) OnDetect(fn func(kind string)) {
	r.onDetect = fn
}

// Classify determines which protocol a frame payload should be parsed as,
// applying the detection rules of spec.md §4.3 in order.
func (r *Router) Classify(payload []byte) Protocol {
	start := time.Now()
	defer func() { r.stats.LastDetectTime = time.Since(start) }()

	switch r.mode {
	case ModeJSONRPC:
		r.stats.ForcedJSONRPC++
		r.notify("forced_jsonrpc")
		return ProtocolJSONRPC
	case ModeMCP:
		r.stats.ForcedMCP++
		r.notify("forced_mcp")
		return ProtocolMCP
	}

	// mode == auto: peek the first bytes.
	proto := detect(payload)
	if proto == ProtocolMCP {
		r.stats.AutoMCP++
		r.notify("auto_mcp")
	} else {
		r.stats.AutoJSONRPC++
		r.notify("auto_jsonrpc")
	}
	return proto
}

func (r *Router) notify(kind string) {
	if r.onDetect != nil {
		r.onDetect(kind)
	}
}

// detect implements spec.md §4.3's ordered detection rules:
//  1. `{"method`, `{"id`, or `{"jsonrpc` → JSON-RPC.
//  2. `{"tool` → MCP.
//  3. `{` with no match → default JSON-RPC.
//  4. anything else → default JSON-RPC (the codec will report a parse error).
func detect(payload []byte) Protocol {
	switch {
	case hasPrefix(payload, prefixMethod), hasPrefix(payload, prefixID), hasPrefix(payload, prefixJSONRPC):
		return ProtocolJSONRPC
	case hasPrefix(payload, prefixTool):
		return ProtocolMCP
	default:
		return ProtocolJSONRPC
	}
}

func hasPrefix(payload, prefix []byte) bool {
	return bytes.HasPrefix(payload, prefix)
}

// Stats returns a snapshot of the accumulated protocol-detection counters.
func (r *Router) Stats() Stats {
	return r.stats
}
