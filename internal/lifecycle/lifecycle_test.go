package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestStateTransitionsHappyPath(t *testing.T) {
	c := New(Config{})
	if c.State() != Stopped {
		t.Fatalf("initial state = %v, want Stopped", c.State())
	}
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if c.State() != Starting {
		t.Fatalf("state = %v, want Starting", c.State())
	}
	if err := c.Start(1234); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != Running {
		t.Fatalf("state = %v, want Running", c.State())
	}
	if err := c.RequestShutdown(); err != nil {
		t.Fatalf("RequestShutdown: %v", err)
	}
	if c.State() != Stopping {
		t.Fatalf("state = %v, want Stopping", c.State())
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if c.State() != Stopped {
		t.Fatalf("state = %v, want Stopped", c.State())
	}
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	c := New(Config{})
	if err := c.Start(1); err == nil {
		t.Fatal("Start from Stopped should fail (must Initialize first)")
	}
}

func TestRequestShutdownIdempotent(t *testing.T) {
	c := New(Config{})
	c.Initialize()
	c.Start(1)

	if err := c.RequestShutdown(); err != nil {
		t.Fatalf("first RequestShutdown: %v", err)
	}
	if err := c.RequestShutdown(); err != nil {
		t.Fatalf("second RequestShutdown should be a no-op, got: %v", err)
	}
}

func TestFailTransitionsToError(t *testing.T) {
	c := New(Config{})
	c.Initialize()
	c.Fail(99, "engine init failed")

	if c.State() != Error {
		t.Fatalf("state = %v, want Error", c.State())
	}
	snap := c.Snapshot()
	if snap.LastErrorCode != 99 || snap.LastErrorMessage != "engine init failed" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestProcessSignalsConsumesShutdownFlag(t *testing.T) {
	c := New(Config{})
	c.Initialize()
	c.Start(1)

	var requested bool
	c.OnShutdownRequested(func() { requested = true })

	c.shutdownFlag.Store(true)
	c.ProcessSignals()

	if !requested {
		t.Fatal("OnShutdownRequested callback should have fired")
	}
	if c.State() != Stopping {
		t.Fatalf("state = %v, want Stopping", c.State())
	}
	if c.shutdownFlag.Load() {
		t.Fatal("shutdown flag should be cleared after ProcessSignals")
	}
}

func TestProcessSignalsConsumesReloadFlag(t *testing.T) {
	c := New(Config{})
	c.Initialize()
	c.Start(1)

	before := c.Snapshot().LastActivity
	time.Sleep(5 * time.Millisecond)

	var reloaded bool
	c.OnReloadRequested(func() { reloaded = true })
	c.reloadFlag.Store(true)
	c.ProcessSignals()

	if !reloaded {
		t.Fatal("OnReloadRequested callback should have fired")
	}
	after := c.Snapshot().LastActivity
	if !after.After(before) {
		t.Fatal("last activity should be refreshed by a reload signal")
	}
}

func TestProcessSignalsDrainsPipeErrorCount(t *testing.T) {
	c := New(Config{})
	c.Initialize()
	c.Start(1)

	c.pipeErrors.Store(3)
	c.ProcessSignals()

	if got := c.Snapshot().TotalErrors; got != 3 {
		t.Fatalf("TotalErrors = %d, want 3", got)
	}
	if c.pipeErrors.Load() != 0 {
		t.Fatal("pipe error counter should be drained to zero")
	}
}

func TestRunForceShutsDownPastTimeout(t *testing.T) {
	c := New(Config{ShutdownTimeout: 20 * time.Millisecond})
	c.Initialize()
	c.Start(1)
	c.RequestShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// shutdownWork never returns, forcing the timeout path.
	block := make(chan struct{})
	defer close(block)

	c.Run(ctx, 5*time.Millisecond, func() { <-block })

	if c.State() != Stopped {
		t.Fatalf("state = %v, want Stopped after forced shutdown", c.State())
	}
}

func TestRunCompletesGracefully(t *testing.T) {
	c := New(Config{ShutdownTimeout: time.Second})
	c.Initialize()
	c.Start(1)
	c.RequestShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var ranWork bool
	c.Run(ctx, 5*time.Millisecond, func() { ranWork = true })

	if !ranWork {
		t.Fatal("shutdownWork should have run")
	}
	if c.State() != Stopped {
		t.Fatalf("state = %v, want Stopped", c.State())
	}
}
