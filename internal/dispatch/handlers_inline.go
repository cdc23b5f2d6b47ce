package dispatch

import (
	"context"
	"sort"

	"goxeld/internal/projectlock"
	"goxeld/internal/version"
	"goxeld/internal/wire"
)

// registerInlineMethods wires the handlers that run synchronously on the
// connection's read loop (spec.md §4.4): no worker pool hop, no project
// lock, no engine call.
func (d *Dispatcher) registerInlineMethods() {
	d.register("echo", KindInline, false, "echo back the supplied params", handleEcho)
	d.register("version", KindInline, false, "report the daemon build version", handleVersion)
	d.register("status", KindInline, false, "report lifecycle, lock, and render state", handleStatus)
	d.register("list_methods", KindInline, false, "list registered method names", handleListMethods)
	d.register("test_signals", KindInline, false, "force-run one pass of signal processing", handleTestSignals)
	d.register("test_lifecycle", KindInline, false, "report the current lifecycle snapshot", handleTestLifecycle)
}

func handleEcho(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	switch req.Params.Kind {
	case wire.ParamsObject:
		if req.Params.Obj == nil {
			return wire.Null, nil
		}
		return wire.ObjectValue(req.Params.Obj).Clone(), nil
	case wire.ParamsArray:
		return wire.ArrayValue(req.Params.Arr).Clone(), nil
	default:
		return wire.Null, nil
	}
}

func handleVersion(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	obj := wire.NewObject()
	obj.Set("version", wire.StringValue(version.Version()))
	obj.Set("protocol", wire.StringValue("2.0"))
	return wire.ObjectValue(obj), nil
}

func handleStatus(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	obj := wire.NewObject()

	if d.lc != nil {
		snap := d.lc.Snapshot()
		lc := wire.NewObject()
		lc.Set("state", wire.StringValue(snap.State.String()))
		lc.Set("daemon_pid", wire.IntValue(int64(snap.DaemonPID)))
		lc.Set("total_requests", wire.IntValue(int64(snap.TotalRequests)))
		lc.Set("total_errors", wire.IntValue(int64(snap.TotalErrors)))
		lc.Set("last_error_code", wire.IntValue(int64(snap.LastErrorCode)))
		lc.Set("last_error_message", wire.StringValue(snap.LastErrorMessage))
		obj.Set("lifecycle", wire.ObjectValue(lc))
	}

	if d.lock != nil {
		st := d.lock.Status()
		lk := wire.NewObject()
		lk.Set("held", boolValue(st.State == projectlock.Held))
		lk.Set("project_id", wire.StringValue(st.ProjectID))
		obj.Set("project_lock", wire.ObjectValue(lk))
	}

	if d.renders != nil {
		rd := wire.NewObject()
		rd.Set("count", wire.IntValue(int64(len(d.renders.List()))))
		rd.Set("total_bytes", wire.IntValue(d.renders.TotalBytes()))
		obj.Set("renders", wire.ObjectValue(rd))
	}

	return wire.ObjectValue(obj), nil
}

func handleListMethods(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]wire.Value, 0, len(names))
	for _, name := range names {
		entry := wire.NewObject()
		entry.Set("name", wire.StringValue(name))
		entry.Set("description", wire.StringValue(d.methods[name].description))
		out = append(out, wire.ObjectValue(entry))
	}
	return wire.ArrayValue(out), nil
}

func handleTestSignals(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	if d.lc != nil {
		d.lc.ProcessSignals()
	}
	return wire.True, nil
}

func handleTestLifecycle(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	if d.lc == nil {
		return wire.Value{}, wire.NewRPCError(wire.CodeInternalError, "lifecycle controller not wired", nil)
	}
	snap := d.lc.Snapshot()
	obj := wire.NewObject()
	obj.Set("state", wire.StringValue(snap.State.String()))
	obj.Set("shutdown_requested", boolValue(snap.ShutdownRequested))
	obj.Set("start_time_unix", wire.IntValue(snap.StartTime.Unix()))
	obj.Set("last_activity_unix", wire.IntValue(snap.LastActivity.Unix()))
	return wire.ObjectValue(obj), nil
}

func boolValue(b bool) wire.Value {
	if b {
		return wire.True
	}
	return wire.False
}
