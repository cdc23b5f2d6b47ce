// Package diag implements the error taxonomy and last-error diagnostics
// described in spec.md §4.10/§7, plus a small durable store (internal/diag
// also owns the sqlite-backed history) for protocol-detection and error
// counters that survive daemon restarts (see SPEC_FULL.md §2).
package diag

import "fmt"

// Code enumerates the daemon-lifecycle and transport failure taxonomy from
// spec.md §4.10/§7. Values are stable; do not renumber existing entries.
type Code int

const (
	// OK indicates no error.
	OK Code = iota
	// ErrInvalidContext means a lifecycle call was made against a nil or
	// uninitialized context.
	ErrInvalidContext
	// ErrForkFailed means the first or second fork in daemonize failed.
	ErrForkFailed
	// ErrSetsidFailed means creating a new session failed.
	ErrSetsidFailed
	// ErrChdirFailed means chdir("/") (or the configured working dir) failed.
	ErrChdirFailed
	// ErrSignalSetupFailed means installing signal handlers failed.
	ErrSignalSetupFailed
	// ErrPIDFileCreateFailed means the PID file could not be created.
	ErrPIDFileCreateFailed
	// ErrPIDFileWriteFailed means the PID file could not be written.
	ErrPIDFileWriteFailed
	// ErrPIDFileRemoveFailed means the PID file could not be removed.
	ErrPIDFileRemoveFailed
	// ErrPermissionDenied means a privileged operation was denied.
	ErrPermissionDenied
	// ErrServerInitFailed means the socket server failed to start.
	ErrServerInitFailed
	// ErrEngineInitFailed means the engine collaborator failed to initialize.
	ErrEngineInitFailed
	// ErrTimeout means an operation (commonly shutdown) exceeded its deadline.
	ErrTimeout
	// ErrOutOfMemory means an allocation failed.
	ErrOutOfMemory
	// ErrConfigInvalid means the supplied configuration was invalid.
	ErrConfigInvalid
	// ErrConfigNotFound means a configuration file was requested but absent.
	ErrConfigNotFound
	// ErrAlreadyRunning means initialize found a live PID file.
	ErrAlreadyRunning
	// ErrNotRunning means a control command (stop/reload) found no running daemon.
	ErrNotRunning
)

var codeStrings = map[Code]string{
	OK:                      "ok",
	ErrInvalidContext:       "invalid lifecycle context",
	ErrForkFailed:           "fork failed",
	ErrSetsidFailed:         "setsid failed",
	ErrChdirFailed:          "chdir failed",
	ErrSignalSetupFailed:    "signal setup failed",
	ErrPIDFileCreateFailed:  "pid file create failed",
	ErrPIDFileWriteFailed:   "pid file write failed",
	ErrPIDFileRemoveFailed:  "pid file remove failed",
	ErrPermissionDenied:     "permission denied",
	ErrServerInitFailed:     "server init failed",
	ErrEngineInitFailed:     "engine init failed",
	ErrTimeout:              "operation timed out",
	ErrOutOfMemory:          "out of memory",
	ErrConfigInvalid:        "config invalid",
	ErrConfigNotFound:       "config not found",
	ErrAlreadyRunning:       "already running",
	ErrNotRunning:           "not running",
}

// String returns the stable human-readable string for a Code.
func (c Code) String() string {
	if s, ok := codeStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code %d", int(c))
}

// Error pairs a Code with a contextual message; it implements the error
// interface so lifecycle call sites can return it like any other Go error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code.String(), e.Message)
}

// New builds an *Error for the given code and contextual message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}
