// Package lifecycle implements the daemon's signal-driven state machine
// (spec.md §4.8): Stopped → Starting → Running → Stopping → Stopped, with a
// side transition to Error on failure. Signal handlers only flip atomic
// flags; Controller.ProcessSignals is the single consumer that does the
// real work, matching the async-signal-safe boundary spec.md §5 requires.
//
// Grounded on the state-string lifecycle manager in the teacher's
// microVM-instance lifecycle package (mutex-protected struct, string
// states, an onStateChange callback) generalized from per-instance states
// to one process-wide daemon state, and on the teacher's daemon entrypoint
// for the signal.Notify / shutdown-timeout shape.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State is one node of the daemon lifecycle state machine.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Context is the lifecycle context record (spec.md §3: "Lifecycle
// context"). Every field is read and written only while mu is held.
type Context struct {
	mu sync.Mutex

	state             State
	daemonPID         int
	shutdownRequested bool
	lastErrorCode     int
	lastErrorMessage  string
	startTime         time.Time
	lastActivity      time.Time
	totalRequests     uint64
	totalErrors       uint64
}

// Snapshot is a point-in-time, lock-free copy of a Context.
type Snapshot struct {
	State             State
	DaemonPID         int
	ShutdownRequested bool
	LastErrorCode     int
	LastErrorMessage  string
	StartTime         time.Time
	LastActivity      time.Time
	TotalRequests     uint64
	TotalErrors       uint64
}

// Controller owns the lifecycle Context and the async-signal-safe flags a
// dedicated signal-handling goroutine sets. The main loop is the sole
// consumer of those flags, via ProcessSignals.
type Controller struct {
	ctx Context

	shutdownFlag atomic.Bool
	reloadFlag   atomic.Bool
	pipeErrors   atomic.Int64

	onStateChange func(State)

	sigCh chan os.Signal

	shutdownTimeout time.Duration

	onShutdownRequested func()
	onReloadRequested    func()
}

// Config configures a new Controller.
type Config struct {
	// ShutdownTimeout bounds how long a graceful shutdown may take before
	// force_shutdown transitions the daemon straight to Stopped (spec.md
	// §4.8 default 10s).
	ShutdownTimeout time.Duration
}

// New creates a Controller in state Stopped.
func New(cfg Config) *Controller {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	c := &Controller{shutdownTimeout: cfg.ShutdownTimeout}
	c.ctx.state = Stopped
	return c
}

// OnStateChange registers a callback invoked after every state transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.onStateChange = fn
}

// OnShutdownRequested registers a callback invoked each time
// ProcessSignals observes the shutdown flag.
func (c *Controller) OnShutdownRequested(fn func()) {
	c.onShutdownRequested = fn
}

// OnReloadRequested registers a callback invoked each time ProcessSignals
// observes the reload flag.
func (c *Controller) OnReloadRequested(fn func()) {
	c.onReloadRequested = fn
}

// Initialize transitions Stopped → Starting.
func (c *Controller) Initialize() error {
	return c.transition(Stopped, Starting)
}

// Start transitions Starting → Running and records the start time.
func (c *Controller) Start(pid int) error {
	if err := c.transition(Starting, Running); err != nil {
		return err
	}
	now := time.Now()
	c.ctx.mu.Lock()
	c.ctx.daemonPID = pid
	c.ctx.startTime = now
	c.ctx.lastActivity = now
	c.ctx.mu.Unlock()
	return nil
}

// RequestShutdown transitions Running → Stopping. Idempotent: calling it
// again while already Stopping or Stopped is a no-op.
func (c *Controller) RequestShutdown() error {
	c.ctx.mu.Lock()
	state := c.ctx.state
	c.ctx.shutdownRequested = true
	c.ctx.mu.Unlock()

	if state == Stopping || state == Stopped {
		return nil
	}
	return c.transition(Running, Stopping)
}

// Shutdown transitions Stopping → Stopped, the graceful completion of a
// shutdown request.
func (c *Controller) Shutdown() error {
	return c.transition(Stopping, Stopped)
}

// ForceShutdown transitions directly to Stopped regardless of the current
// state — the force_shutdown path taken when a graceful shutdown exceeds
// ShutdownTimeout (spec.md §4.8).
func (c *Controller) ForceShutdown() {
	c.ctx.mu.Lock()
	c.ctx.state = Stopped
	c.ctx.mu.Unlock()
	c.notify(Stopped)
}

// Fail transitions to Error and records the failure (spec.md §4.10's
// single error-code enumeration; code is one of this package's or
// internal/diag's stable codes).
func (c *Controller) Fail(code int, message string) {
	c.ctx.mu.Lock()
	c.ctx.state = Error
	c.ctx.lastErrorCode = code
	c.ctx.lastErrorMessage = message
	c.ctx.mu.Unlock()
	c.notify(Error)
}

func (c *Controller) transition(from, to State) error {
	c.ctx.mu.Lock()
	if c.ctx.state != from {
		cur := c.ctx.state
		c.ctx.mu.Unlock()
		return fmt.Errorf("lifecycle: cannot transition %s -> %s from state %s", from, to, cur)
	}
	c.ctx.state = to
	c.ctx.mu.Unlock()
	c.notify(to)
	return nil
}

func (c *Controller) notify(s State) {
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.ctx.mu.Lock()
	defer c.ctx.mu.Unlock()
	return c.ctx.state
}

// Snapshot returns a consistent copy of the lifecycle context.
func (c *Controller) Snapshot() Snapshot {
	c.ctx.mu.Lock()
	defer c.ctx.mu.Unlock()
	return Snapshot{
		State:             c.ctx.state,
		DaemonPID:         c.ctx.daemonPID,
		ShutdownRequested: c.ctx.shutdownRequested,
		LastErrorCode:     c.ctx.lastErrorCode,
		LastErrorMessage:  c.ctx.lastErrorMessage,
		StartTime:         c.ctx.startTime,
		LastActivity:      c.ctx.lastActivity,
		TotalRequests:     c.ctx.totalRequests,
		TotalErrors:       c.ctx.totalErrors,
	}
}

// TouchActivity updates the last-activity timestamp, e.g. after dispatching
// a request or observing SIGHUP.
func (c *Controller) TouchActivity() {
	c.ctx.mu.Lock()
	c.ctx.lastActivity = time.Now()
	c.ctx.mu.Unlock()
}

// RecordRequest increments the total-requests counter.
func (c *Controller) RecordRequest() {
	c.ctx.mu.Lock()
	c.ctx.totalRequests++
	c.ctx.mu.Unlock()
}

// RecordError increments the total-errors counter.
func (c *Controller) RecordError() {
	c.ctx.mu.Lock()
	c.ctx.totalErrors++
	c.ctx.mu.Unlock()
}

// InstallSignalHandlers starts a dedicated goroutine that receives OS
// signals and flips this Controller's atomic flags. Per spec.md §5's
// async-signal-safe boundary, the handler goroutine does no allocation,
// locking, or logging beyond what the Go runtime itself performs to
// deliver the signal — it only stores into atomics and, for SIGCHLD, reaps
// children.
func (c *Controller) InstallSignalHandlers() {
	c.sigCh = make(chan os.Signal, 16)
	signal.Notify(c.sigCh,
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP,
		syscall.SIGCHLD, syscall.SIGPIPE,
	)

	go func() {
		for sig := range c.sigCh {
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				c.shutdownFlag.Store(true)
			case syscall.SIGHUP:
				c.reloadFlag.Store(true)
			case syscall.SIGCHLD:
				reapChildren()
			case syscall.SIGPIPE:
				c.pipeErrors.Add(1)
			}
		}
	}()
}

// StopSignalHandlers stops receiving signals and closes the handler
// goroutine.
func (c *Controller) StopSignalHandlers() {
	if c.sigCh != nil {
		signal.Stop(c.sigCh)
		close(c.sigCh)
	}
}

// reapChildren reaps all immediately-waitable children without blocking,
// the work a SIGCHLD handler may safely do async-signal-safely.
func reapChildren() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}

// ProcessSignals consumes and clears each flag the signal-handling
// goroutine may have set, performing the deferred work (spec.md §4.8:
// "process_signals(ctx)"). Intended to be called at a bounded interval
// from the daemon's main loop.
func (c *Controller) ProcessSignals() {
	if c.shutdownFlag.CompareAndSwap(true, false) {
		if c.onShutdownRequested != nil {
			c.onShutdownRequested()
		}
		c.RequestShutdown()
	}
	if c.reloadFlag.CompareAndSwap(true, false) {
		c.TouchActivity()
		if c.onReloadRequested != nil {
			c.onReloadRequested()
		}
	}
	if n := c.pipeErrors.Swap(0); n > 0 {
		for i := int64(0); i < n; i++ {
			c.RecordError()
		}
	}
}

// Run polls ProcessSignals at interval until the controller reaches
// Stopped, or ctx is canceled. If a shutdown request does not complete
// within ShutdownTimeout, Run calls ForceShutdown. shutdownWork performs
// the caller's actual graceful-stop sequence (closing the listener,
// draining worker pools, and so on); it is invoked exactly once, when the
// state first becomes Stopping.
func (c *Controller) Run(ctx context.Context, interval time.Duration, shutdownWork func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var shutdownDeadline time.Time
	shutdownStarted := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ProcessSignals()

			if c.State() == Stopping && !shutdownStarted {
				shutdownStarted = true
				shutdownDeadline = time.Now().Add(c.shutdownTimeout)
				go func() {
					if shutdownWork != nil {
						shutdownWork()
					}
					c.Shutdown()
				}()
			}

			if shutdownStarted && c.State() == Stopping && time.Now().After(shutdownDeadline) {
				log.Printf("lifecycle: shutdown exceeded %s, forcing stop", c.shutdownTimeout)
				c.ForceShutdown()
			}

			if c.State() == Stopped {
				return
			}
		}
	}
}
