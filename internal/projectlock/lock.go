// Package projectlock implements the process-wide project lock described in
// spec.md §4.6: at most one open project at a time, acquired without
// blocking and released either explicitly or by an idle-timeout sweep.
//
// Grounded on the teacher's single-VM-instance ownership guard, generalized
// from "one VM may be running" to "one project may be open."
package projectlock

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idleResetTimeout bounds how long the idle sweeper waits for the engine
// reset callback before giving up and freeing the lock anyway.
const idleResetTimeout = 30 * time.Second

// State is whether the lock is currently held.
type State int

const (
	Free State = iota
	Held
)

// AcquireResult is the outcome of a non-blocking Acquire call.
type AcquireResult int

const (
	AcquireOK AcquireResult = iota
	AcquireAlreadyHeld
)

// Handle identifies one successful acquisition. Release and Touch require
// the handle's HolderTag to match the current holder, so a stale caller
// (one whose acquisition was already auto-reset) cannot release or refresh
// someone else's lock.
type Handle struct {
	HolderTag string
	ProjectID string
}

// Lock is a single process-wide binary mutex with a holder identity and
// idle-timeout auto-reset.
type Lock struct {
	mu sync.Mutex

	state      State
	holderTag  string
	projectID  string
	acquiredAt time.Time
	lastTouch  time.Time

	idleTimeout time.Duration

	onIdleReset func(ctx context.Context) error

	stopSweep chan struct{}
	sweepWG   sync.WaitGroup
}

// Config configures a new Lock.
type Config struct {
	// IdleTimeout is how long the lock may sit untouched before the
	// background sweeper force-releases it (spec.md §4.6 default 300s).
	IdleTimeout time.Duration
	// SweepInterval is how often the sweeper checks for idleness (spec.md
	// §4.6 default 10s).
	SweepInterval time.Duration
}

// New creates a Lock and starts its background idle sweeper. Call Stop to
// halt the sweeper.
func New(cfg Config) *Lock {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 300 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	l := &Lock{
		idleTimeout: cfg.IdleTimeout,
		stopSweep:   make(chan struct{}),
	}
	l.sweepWG.Add(1)
	go l.sweepLoop(cfg.SweepInterval)
	return l
}

// SetOnIdleReset registers the callback the idle sweeper runs before
// freeing a lock it force-releases (spec.md §4.6: "acquire the lock with
// tag auto_cleanup, call the engine's reset ..., release the lock"). fn is
// typically engine.Reset(ctx, "idle_sweep"); passing nil (the default)
// leaves the sweeper's behavior as a bare lock reset.
func (l *Lock) SetOnIdleReset(fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onIdleReset = fn
}

// Stop halts the background sweeper. The lock's state is left as-is.
func (l *Lock) Stop() {
	close(l.stopSweep)
	l.sweepWG.Wait()
}

// Acquire attempts to take the lock for projectID without blocking. Returns
// AcquireAlreadyHeld if another project currently holds it.
func (l *Lock) Acquire(projectID string) (Handle, AcquireResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Held {
		return Handle{}, AcquireAlreadyHeld
	}

	tag := uuid.NewString()
	now := time.Now()
	l.state = Held
	l.holderTag = tag
	l.projectID = projectID
	l.acquiredAt = now
	l.lastTouch = now

	return Handle{HolderTag: tag, ProjectID: projectID}, AcquireOK
}

// Release gives up the lock if h is still the current holder. Returns false
// if the lock was already free or held by a different tag (e.g. h was
// auto-reset by the idle sweeper).
func (l *Lock) Release(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Held || l.holderTag != h.HolderTag {
		return false
	}
	l.reset()
	return true
}

// Touch refreshes the lock's idle clock for h, preventing the sweeper from
// reclaiming it. Returns false if h is not the current holder.
func (l *Lock) Touch(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Held || l.holderTag != h.HolderTag {
		return false
	}
	l.lastTouch = time.Now()
	return true
}

// Status describes the lock's current state, safe to read concurrently.
type Status struct {
	State      State
	ProjectID  string
	HolderTag  string
	AcquiredAt time.Time
	IdleFor    time.Duration
}

// Status returns a snapshot of the lock's current state.
func (l *Lock) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Free {
		return Status{State: Free}
	}
	return Status{
		State:      Held,
		ProjectID:  l.projectID,
		HolderTag:  l.holderTag,
		AcquiredAt: l.acquiredAt,
		IdleFor:    time.Since(l.lastTouch),
	}
}

func (l *Lock) reset() {
	l.state = Free
	l.holderTag = ""
	l.projectID = ""
	l.acquiredAt = time.Time{}
	l.lastTouch = time.Time{}
}

func (l *Lock) sweepLoop(interval time.Duration) {
	defer l.sweepWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopSweep:
			return
		case <-ticker.C:
			l.sweepOnce()
		}
	}
}

// sweepOnce force-releases an idle lock. Per spec.md §4.6, it re-tags the
// holder as "auto_cleanup" (so a concurrent Acquire still sees the lock
// held while the reset runs), calls the registered engine-reset callback
// with the lock's own mutex released, then clears the lock's state.
func (l *Lock) sweepOnce() {
	l.mu.Lock()
	if l.state != Held || time.Since(l.lastTouch) < l.idleTimeout {
		l.mu.Unlock()
		return
	}
	l.holderTag = "auto_cleanup"
	l.lastTouch = time.Now()
	callback := l.onIdleReset
	l.mu.Unlock()

	if callback != nil {
		ctx, cancel := context.WithTimeout(context.Background(), idleResetTimeout)
		if err := callback(ctx); err != nil {
			log.Printf("projectlock: idle_sweep engine reset: %v", err)
		}
		cancel()
	}

	l.mu.Lock()
	l.reset()
	l.mu.Unlock()
}
