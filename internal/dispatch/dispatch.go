// Package dispatch implements the method registry and dispatcher (spec.md
// §4.4): a static table mapping method name to handler, split into inline
// handlers that run synchronously on the read loop and engine handlers that
// run on a worker pool and may require the project lock.
//
// Grounded on the teacher's instance-lifecycle manager for the
// mutex-protected-struct-plus-callback shape, generalized from "one VM
// instance" bookkeeping to "one method dispatch table."
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"goxeld/internal/diag"
	"goxeld/internal/engine"
	"goxeld/internal/lifecycle"
	"goxeld/internal/projectlock"
	"goxeld/internal/render"
	"goxeld/internal/wire"
	"goxeld/internal/workpool"
)

// Kind classifies a method as running inline or through a worker pool
// (spec.md §4.4).
type Kind int

const (
	KindInline Kind = iota
	KindEngine
	KindScript
)

// HandlerFunc executes one method call and returns either a result value or
// an RPC error. ctx carries the request's cancellation/timeout scope.
type HandlerFunc func(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError)

type methodSpec struct {
	name        string
	kind        Kind
	mutates     bool
	description string
	handler     HandlerFunc
}

// Dispatcher owns the method table and the collaborators handlers reach:
// the engine, the script engine, both worker pools, the project lock, the
// render manager, the diagnostics store, and the lifecycle controller.
type Dispatcher struct {
	methods map[string]*methodSpec

	eng        engine.Engine
	script     engine.ScriptEngine
	general    *workpool.Pool
	scriptPool *workpool.Pool
	lock       *projectlock.Lock
	renders    *render.Manager
	diagStore  *diag.Store
	lc         *lifecycle.Controller

	scriptTimeout time.Duration
}

// Config wires a Dispatcher's collaborators.
type Config struct {
	Engine        engine.Engine
	ScriptEngine  engine.ScriptEngine
	GeneralPool   *workpool.Pool
	ScriptPool    *workpool.Pool
	Lock          *projectlock.Lock
	Renders       *render.Manager
	Diagnostics   *diag.Store
	Lifecycle     *lifecycle.Controller
	ScriptTimeout time.Duration
}

// New creates a Dispatcher with the full method table registered.
func New(cfg Config) *Dispatcher {
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = 30 * time.Second
	}
	d := &Dispatcher{
		methods:       make(map[string]*methodSpec),
		eng:           cfg.Engine,
		script:        cfg.ScriptEngine,
		general:       cfg.GeneralPool,
		scriptPool:    cfg.ScriptPool,
		lock:          cfg.Lock,
		renders:       cfg.Renders,
		diagStore:     cfg.Diagnostics,
		lc:            cfg.Lifecycle,
		scriptTimeout: cfg.ScriptTimeout,
	}
	d.registerInlineMethods()
	d.registerEngineMethods()
	return d
}

func (d *Dispatcher) register(name string, kind Kind, mutates bool, description string, h HandlerFunc) {
	d.methods[name] = &methodSpec{name: name, kind: kind, mutates: mutates, description: description, handler: h}
}

// Methods returns the registered method names and descriptions, in no
// particular order.
func (d *Dispatcher) Methods() map[string]string {
	out := make(map[string]string, len(d.methods))
	for name, spec := range d.methods {
		out[name] = spec.description
	}
	return out
}

// Dispatch resolves req's method and runs it to completion, returning the
// response to send (or false if req was a notification and produced none).
func (d *Dispatcher) Dispatch(ctx context.Context, req wire.Request) (wire.Response, bool) {
	if d.lc != nil {
		d.lc.RecordRequest()
		d.lc.TouchActivity()
	}

	spec, ok := d.methods[req.Method]
	if !ok {
		return d.errorResponse(req, wire.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}

	result, rpcErr := d.invoke(ctx, spec, req)
	if rpcErr != nil {
		if d.diagStore != nil {
			if err := d.diagStore.RecordError(req.Method, rpcErr.Code, rpcErr.Message); err != nil {
				log.Printf("dispatch: record error diagnostics: %v", err)
			}
		}
		if d.lc != nil {
			d.lc.RecordError()
		}
		return d.errorResponse(req, rpcErr.Code, rpcErr.Message)
	}

	if req.IsNotification {
		return wire.Response{}, false
	}
	return wire.NewSuccessResponse(req.ID, result), true
}

func (d *Dispatcher) errorResponse(req wire.Request, code int, message string) (wire.Response, bool) {
	if req.IsNotification {
		return wire.Response{}, false
	}
	return wire.NewErrorResponse(req.ID, wire.NewRPCError(code, message, nil)), true
}

func (d *Dispatcher) invoke(ctx context.Context, spec *methodSpec, req wire.Request) (wire.Value, *wire.RPCError) {
	if !spec.mutates {
		return d.runHandler(ctx, spec, req)
	}

	reqTag := req.ID.Str
	if req.ID.Kind == wire.IDInt {
		reqTag = fmt.Sprintf("req-%d", req.ID.Int)
	}
	label := fmt.Sprintf("%s:%s", spec.name, reqTag)
	handle, res := d.lock.Acquire(label)
	if res != projectlock.AcquireOK {
		return wire.Value{}, wire.NewRPCError(wire.CodeInternalError, "another project operation is in progress", nil)
	}
	defer d.lock.Release(handle)

	return d.runHandler(ctx, spec, req)
}

func (d *Dispatcher) runHandler(ctx context.Context, spec *methodSpec, req wire.Request) (wire.Value, *wire.RPCError) {
	switch spec.kind {
	case KindInline:
		return spec.handler(ctx, d, req)

	case KindEngine:
		if d.general == nil {
			return spec.handler(ctx, d, req)
		}
		return d.runOnPool(ctx, d.general, 30*time.Second, spec, req)

	case KindScript:
		if d.scriptPool == nil {
			return spec.handler(ctx, d, req)
		}
		return d.runOnPool(ctx, d.scriptPool, d.scriptTimeout, spec, req)

	default:
		return wire.Value{}, wire.NewRPCError(wire.CodeInternalError, "unknown handler kind", nil)
	}
}

type handlerResult struct {
	value wire.Value
	err   *wire.RPCError
}

func (d *Dispatcher) runOnPool(ctx context.Context, pool *workpool.Pool, timeout time.Duration, spec *methodSpec, req wire.Request) (wire.Value, *wire.RPCError) {
	raw, err := pool.SubmitSync(ctx, workpool.Normal, timeout, func(workerID int) (any, error) {
		val, rpcErr := spec.handler(ctx, d, req)
		return handlerResult{value: val, err: rpcErr}, nil
	})
	if err != nil {
		return wire.Value{}, wire.NewRPCError(wire.CodeInternalError, "Server overloaded", nil)
	}
	hr := raw.(handlerResult)
	return hr.value, hr.err
}
