// Package config holds goxeld runtime configuration. The current
// implementation only uses built-in defaults; parsing a config file from
// disk is out of scope (see spec.md, Non-goals).
package config

import (
	"os"
	"path/filepath"
)

// Config holds the daemon's runtime configuration.
type Config struct {
	// SocketPath is the unix socket path the daemon listens on.
	SocketPath string

	// PIDFile is the path to the daemon's PID file.
	PIDFile string

	// WorkingDir is the directory the daemon chdirs to on daemonize.
	WorkingDir string

	// LogFile is the path stdout/stderr are redirected to when daemonized.
	// Empty means redirect to the null device.
	LogFile string

	// CreatePIDFile controls whether a PID file is written at all.
	CreatePIDFile bool

	// Protocol selects the wire-protocol detection mode: "auto", "jsonrpc", or "mcp".
	Protocol string

	// PriorityQueue enables priority-ordered dispatch in the general worker pool.
	PriorityQueue bool

	// Workers is the general worker pool size.
	Workers int

	// QueueSize is the general worker pool's queue capacity.
	QueueSize int

	// MaxConnections is the maximum number of simultaneous client connections.
	MaxConnections int

	// ScriptWorkers is the script worker pool size.
	ScriptWorkers int

	// ScriptQueueSize is the script worker pool's queue capacity.
	ScriptQueueSize int

	// MaxFrameBytes caps a single frame payload's length.
	MaxFrameBytes uint32

	// ProjectIdleTimeoutSeconds is the idle window before the project-lock
	// sweeper resets the active project.
	ProjectIdleTimeoutSeconds int

	// RenderBaseDir is the directory rendered artifacts are written under.
	RenderBaseDir string

	// RenderTTLSeconds is the default render-entry expiry.
	RenderTTLSeconds int

	// RenderSweepIntervalSeconds is the render sweeper's poll interval.
	// Overridable by RENDER_MANAGER_CLEANUP_INTERVAL (see spec.md §6.4).
	RenderSweepIntervalSeconds int

	// RenderMaxTotalBytes caps the render cache's total on-disk size
	// (LRU eviction above the cap). 0 means unbounded.
	RenderMaxTotalBytes int64

	// DiagnosticsDBPath is the path to the sqlite-backed diagnostics store.
	DiagnosticsDBPath string

	// ShutdownTimeoutMS is the graceful-shutdown deadline before force_shutdown.
	ShutdownTimeoutMS int

	// User/Group are privilege-drop targets; empty means don't drop.
	User  string
	Group string
}

// DefaultConfig returns the daemon's default configuration, falling back
// from /tmp to a system-prefix directory when /tmp does not exist (mirrors
// spec.md §6.5's documented fallback).
func DefaultConfig() *Config {
	base := "/tmp"
	if _, err := os.Stat(base); err != nil {
		base = systemPrefixDir()
	}

	return &Config{
		SocketPath:                 filepath.Join(base, "goxel-daemon.sock"),
		PIDFile:                    filepath.Join(base, "goxel-daemon.pid"),
		WorkingDir:                 "/",
		LogFile:                    "",
		CreatePIDFile:              true,
		Protocol:                   "auto",
		PriorityQueue:              false,
		Workers:                    8,
		QueueSize:                  1024,
		MaxConnections:             256,
		ScriptWorkers:              4,
		ScriptQueueSize:            100,
		MaxFrameBytes:              16 * 1024 * 1024,
		ProjectIdleTimeoutSeconds:  300,
		RenderBaseDir:              filepath.Join(os.TempDir(), "goxel-renders"),
		RenderTTLSeconds:           3600,
		RenderSweepIntervalSeconds: 300,
		RenderMaxTotalBytes:        0,
		DiagnosticsDBPath:          filepath.Join(base, "goxel-daemon-diag.db"),
		ShutdownTimeoutMS:          10000,
	}
}

// systemPrefixDir returns the fallback directory used when /tmp is unavailable.
func systemPrefixDir() string {
	return filepath.Join(string(filepath.Separator), "var", "run", "goxel")
}

// EnsureDirs creates the directories the daemon needs: the render cache and
// the parent directories of the socket, PID file, and diagnostics database.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		filepath.Dir(c.SocketPath),
		filepath.Dir(c.PIDFile),
		c.RenderBaseDir,
		filepath.Dir(c.DiagnosticsDBPath),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
