// goxelctl is the control CLI for goxeld.
//
// Commands:
//
//	goxelctl status              Show daemon status
//	goxelctl stop                Stop the running daemon
//	goxelctl reload              Reload the running daemon
//	goxelctl call <method> [json-params]   Send one request and print the reply
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
	"goxeld/internal/wire"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 1
	}

	socketPath, args := extractSocketFlag(args)
	if len(args) == 0 {
		usage()
		return 1
	}

	switch args[0] {
	case "status":
		return cmdStatus(socketPath)
	case "stop":
		return cmdStop(socketPath)
	case "reload":
		return cmdReload(socketPath)
	case "call":
		return cmdCall(socketPath, args[1:])
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		return 1
	}
}

func usage() {
	fmt.Println(`goxelctl - control client for goxeld

Usage: goxelctl [-s socket-path] <command> [args]

Commands:
  status                 show daemon status
  stop                   stop the running daemon
  reload                 reload the running daemon
  call <method> [json]   send one request, print the reply (json is an object, e.g. '{"value":1}')`)
}

// extractSocketFlag pulls the first "-s <path>" / "--socket <path>" pair,
// wherever it appears, out of args, falling back to the default config's
// socket path.
func extractSocketFlag(args []string) (string, []string) {
	socketPath := config.DefaultConfig().SocketPath
	for i := 0; i < len(args); i++ {
		if (args[i] == "-s" || args[i] == "--socket") && i+1 < len(args) {
			socketPath = args[i+1]
			return socketPath, append(append([]string{}, args[:i]...), args[i+2:]...)
		}
	}
	return socketPath, args
}

func cmdStatus(socketPath string) int {
	result, err := callMethod(socketPath, "status", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	printJSON(result)
	return 0
}

func cmdStop(socketPath string) int {
	pidFile := config.DefaultConfig().PIDFile
	pid, err := readPIDFile(pidFile)
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

func cmdReload(socketPath string) int {
	pidFile := config.DefaultConfig().PIDFile
	pid, err := readPIDFile(pidFile)
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

func cmdCall(socketPath string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "call requires a method name")
		return 1
	}
	method := args[0]

	var params map[string]any
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			fmt.Fprintf(os.Stderr, "call: invalid json params: %v\n", err)
			return 1
		}
	}

	result, err := callMethod(socketPath, method, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call: %v\n", err)
		return 1
	}
	printJSON(result)
	return 0
}

func callMethod(socketPath, method string, params map[string]any) (any, error) {
	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w (is the daemon running?)", socketPath, err)
	}
	defer conn.Close()

	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		req["params"] = params
	}
	reqBody, err := json.Marshal(req)
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

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
