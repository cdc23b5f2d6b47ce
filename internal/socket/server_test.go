package socket

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"goxeld/internal/dispatch"
	"goxeld/internal/engine/fake"
	"goxeld/internal/projectlock"
	"goxeld/internal/router"
	"goxeld/internal/wire"
	"goxeld/internal/workpool"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	eng := fake.New()
	script := fake.NewScriptEngine()

	general := workpool.New(workpool.Config{WorkerCount: 2, Capacity: 32, Process: func(int, workpool.Item) {}})
	general.Start()
	t.Cleanup(general.Stop)

	scriptPool := workpool.New(workpool.Config{WorkerCount: 1, Capacity: 8, Process: func(int, workpool.Item) {}})
	scriptPool.Start()
	t.Cleanup(scriptPool.Stop)

	lock := projectlock.New(projectlock.Config{IdleTimeout: time.Minute, SweepInterval: time.Hour})
	t.Cleanup(lock.Stop)

	d := dispatch.New(dispatch.Config{
		Engine:       eng,
		ScriptEngine: script,
		GeneralPool:  general,
		ScriptPool:   scriptPool,
		Lock:         lock,
	})

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv := New(Config{
		SocketPath:    sockPath,
		MaxFrameBytes: 1 << 20,
		Protocol:      router.ModeAuto,
		Dispatcher:    d,
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	return srv, sockPath
}

func dialAndRoundTrip(t *testing.T, sockPath string, id uint32, payload []byte) wire.Frame {
	t.Helper()

	conn, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, wire.Frame{ID: id, Payload: payload}, false); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wire.ReadFrame(conn, 1<<20)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestEchoRoundTripOverSocket(t *testing.T) {
	_, sockPath := newTestServer(t)

	payload := []byte(`{"jsonrpc":"2.0","method":"echo","params":{"msg":"hi"},"id":1}`)
	frame := dialAndRoundTrip(t, sockPath, 42, payload)
	if frame.ID != 42 {
		t.Errorf("frame.ID = %d, want 42", frame.ID)
	}

	v, err := wire.ParseValue(frame.Payload)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	result, ok := v.Obj.Get("result")
	if !ok || result.Kind != wire.KindObject {
		t.Fatalf("result = %+v, want an object", result)
	}
	msg, ok := result.Obj.Get("msg")
	if !ok || msg.Str != "hi" {
		t.Errorf("result.msg = %+v, want \"hi\"", msg)
	}
}

func TestMCPStyleRequestIsRouted(t *testing.T) {
	_, sockPath := newTestServer(t)

	payload := []byte(`{"tool":"version","arguments":{},"id":1}`)
	frame := dialAndRoundTrip(t, sockPath, 7, payload)

	v, err := wire.ParseValue(frame.Payload)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	tool, ok := v.Obj.Get("tool")
	if !ok || tool.Str != "version" {
		t.Errorf("tool = %+v, want \"version\"", tool)
	}
}

func TestOversizedFramePayloadRejected(t *testing.T) {
	_, sockPath := newTestServer(t)

	conn, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var header [wire.FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], 1)
	binary.LittleEndian.PutUint32(header[8:12], 2<<20) // declares a 2 MiB payload against a 1 MiB cap
	if _, err := conn.Write(header[:]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	padding := make([]byte, 2<<20)
	if _, err := conn.Write(padding); err != nil {
		t.Fatalf("write padding: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wire.ReadFrame(conn, 1<<20)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	v, err := wire.ParseValue(frame.Payload)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	errVal, ok := v.Obj.Get("error")
	if !ok {
		t.Fatal("expected an error response for oversized frame")
	}
	code, _ := errVal.Obj.Get("code")
	if code.Int != wire.CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", code.Int, wire.CodeInvalidRequest)
	}
}

func TestMaxConnectionsRejectsExcessDials(t *testing.T) {
	eng := fake.New()
	script := fake.NewScriptEngine()
	general := workpool.New(workpool.Config{WorkerCount: 1, Capacity: 8, Process: func(int, workpool.Item) {}})
	general.Start()
	t.Cleanup(general.Stop)
	scriptPool := workpool.New(workpool.Config{WorkerCount: 1, Capacity: 8, Process: func(int, workpool.Item) {}})
	scriptPool.Start()
	t.Cleanup(scriptPool.Stop)
	lock := projectlock.New(projectlock.Config{})
	t.Cleanup(lock.Stop)

	d := dispatch.New(dispatch.Config{Engine: eng, ScriptEngine: script, GeneralPool: general, ScriptPool: scriptPool, Lock: lock})

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")
	srv := New(Config{SocketPath: sockPath, MaxConnections: 1, Dispatcher: d})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	held, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial 1: %v", err)
	}
	defer held.Close()

	time.Sleep(50 * time.Millisecond)
	if got := srv.ActiveConnections(); got != 1 {
		t.Fatalf("ActiveConnections = %d, want 1", got)
	}

	extra, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial 2: %v", err)
	}
	defer extra.Close()
	extra.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := extra.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read on excess connection = %v, want io.EOF (closed by server)", err)
	}
}
