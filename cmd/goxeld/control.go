package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"goxeld/internal/config"
	"goxeld/internal/daemonize"
	"goxeld/internal/wire"
)

// controlStatus reads the configured socket and asks the running daemon for
// its status (spec.md §6.3's --status: "query the live daemon, not the PID
// file alone").
func controlStatus(flags *cliFlags) int {
	cfg := buildConfig(flags)
	result, err := callMethod(cfg.SocketPath, "status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	printJSON(result)
	return 0
}

// controlStop sends SIGTERM to the daemon named by the PID file and waits
// briefly for it to exit.
func controlStop(flags *cliFlags) int {
	cfg := buildConfig(flags)
	pid, err := readPIDFile(cfg.PIDFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		return 1
	}
	if !pidAlive(pid) {
		fmt.Fprintf(os.Stderr, "stop: process %d is not running\n", pid)
		return 1
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "stop: signal pid %d: %v\n", pid, err)
		return 1
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			fmt.Printf("goxeld (pid %d) stopped\n", pid)
			return 0
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintf(os.Stderr, "stop: pid %d did not exit within the grace period\n", pid)
	return 1
}

// controlReload sends SIGHUP to the daemon named by the PID file.
func controlReload(flags *cliFlags) int {
	cfg := buildConfig(flags)
	pid, err := readPIDFile(cfg.PIDFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reload: %v\n", err)
		return 1
	}
	if !pidAlive(pid) {
		fmt.Fprintf(os.Stderr, "reload: process %d is not running\n", pid)
		return 1
	}
	if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
		fmt.Fprintf(os.Stderr, "reload: signal pid %d: %v\n", pid, err)
		return 1
	}
	fmt.Printf("goxeld (pid %d) reloaded\n", pid)
	return 0
}

// controlCall dials the configured socket and invokes method with no
// parameters, printing the raw result. Used for --test-signals and
// --test-lifecycle.
func controlCall(flags *cliFlags, method string) int {
	cfg := buildConfig(flags)
	result, err := callMethod(cfg.SocketPath, method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", method, err)
		return 1
	}
	printJSON(result)
	return 0
}

// callMethod sends a single framed JSON-RPC request for method (no params)
// over the unix socket at socketPath and returns the decoded "result" field.
func callMethod(socketPath, method string) (any, error) {
	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w (is the daemon running?)", socketPath, err)
	}
	defer conn.Close()

	reqBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	})
	if err != nil {
		return nil, err
	}

	if err := wire.WriteFrame(conn, wire.Frame{ID: 1, Payload: reqBody}, false); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := wire.ReadFrame(conn, 16*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(frame.Payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if errVal, ok := decoded["error"]; ok {
		return nil, fmt.Errorf("daemon error: %v", errVal)
	}
	return decoded["result"], nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(out))
}

// readPIDFile reads and parses the decimal PID stored at path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

// pidAlive probes pid with a zero signal: ESRCH means dead, nil or EPERM
// (owned by another user) both mean alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// dropPrivilegesIfRequested resolves cfg.User/cfg.Group to numeric uid/gid
// and drops privileges. Only numeric uid/gid strings are accepted — name
// lookup (getpwnam/getgrnam) needs cgo on most platforms, which this module
// avoids, so resolving "www-data"-style names is left as a documented
// non-goal rather than linking a cgo resolver for a rarely-used flag.
func dropPrivilegesIfRequested(cfg *config.Config) error {
	if cfg.User == "" && cfg.Group == "" {
		return nil
	}

	uid, gid := 0, 0
	if cfg.User != "" {
		v, err := strconv.Atoi(cfg.User)
		if err != nil {
			return fmt.Errorf("--user must be a numeric uid (got %q)", cfg.User)
		}
		uid = v
	}
	if cfg.Group != "" {
		v, err := strconv.Atoi(cfg.Group)
		if err != nil {
			return fmt.Errorf("--group must be a numeric gid (got %q)", cfg.Group)
		}
		gid = v
	}

	return daemonize.DropPrivileges(uid, gid)
}
