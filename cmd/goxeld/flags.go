package main

import (
	"fmt"
	"strconv"
)

// action names a control action requested instead of (or in addition to)
// starting the daemon in-process.
type action int

const (
	actionRun action = iota
	actionHelp
	actionVersion
	actionStatus
	actionStop
	actionReload
	actionTestSignals
	actionTestLifecycle
)

// cliFlags holds the parsed command line (spec.md §6.3). A manual argv
// scan is used instead of the flag package, matching the teacher's
// argv-switch CLI style rather than a flag-parsing library.
type cliFlags struct {
	verbose        bool
	daemonize      bool
	foreground     bool
	pidFile        string
	socketPath     string
	configFile     string
	logFile        string
	workingDir     string
	user           string
	group          string
	workers        int
	queueSize      int
	maxConnections int
	protocol       string
	priorityQueue  bool
}

func parseFlags(args []string) (*cliFlags, action, error) {
	f := &cliFlags{}

	next := func(i int, name string) (string, int, error) {
		if i+1 >= len(args) {
			return "", i, fmt.Errorf("%s requires a value", name)
		}
		return args[i+1], i + 1, nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-h", "--help":
			return f, actionHelp, nil
		case "-v", "--version":
			return f, actionVersion, nil
		case "-V", "--verbose":
			f.verbose = true
		case "-D", "--daemonize":
			f.daemonize = true
		case "-f", "--foreground":
			f.foreground = true
		case "-p", "--pid-file":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			f.pidFile, i = v, ni
		case "-s", "--socket":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			f.socketPath, i = v, ni
		case "-c", "--config":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			f.configFile, i = v, ni
		case "-l", "--log-file":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			f.logFile, i = v, ni
		case "-w", "--working-dir":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			f.workingDir, i = v, ni
		case "-u", "--user":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			f.user, i = v, ni
		case "-g", "--group":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			f.group, i = v, ni
		case "-j", "--workers":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			n, perr := strconv.Atoi(v)
			if perr != nil || n < 1 || n > 64 {
				return nil, actionRun, fmt.Errorf("--workers must be an integer in 1..64")
			}
			f.workers, i = n, ni
		case "-q", "--queue-size":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			n, perr := strconv.Atoi(v)
			if perr != nil || n < 1 || n > 65536 {
				return nil, actionRun, fmt.Errorf("--queue-size must be an integer in 1..65536")
			}
			f.queueSize, i = n, ni
		case "-m", "--max-connections":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			n, perr := strconv.Atoi(v)
			if perr != nil || n < 1 || n > 65536 {
				return nil, actionRun, fmt.Errorf("--max-connections must be an integer in 1..65536")
			}
			f.maxConnections, i = n, ni
		case "-P", "--protocol":
			v, ni, err := next(i, arg)
			if err != nil {
				return nil, actionRun, err
			}
			if v != "auto" && v != "jsonrpc" && v != "mcp" {
				return nil, actionRun, fmt.Errorf("--protocol must be one of auto|jsonrpc|mcp")
			}
			f.protocol, i = v, ni
		case "--priority-queue":
			f.priorityQueue = true
		case "--status":
			return f, actionStatus, nil
		case "--stop":
			return f, actionStop, nil
		case "--reload":
			return f, actionReload, nil
		case "--test-signals":
			return f, actionTestSignals, nil
		case "--test-lifecycle":
			return f, actionTestLifecycle, nil
		default:
			return nil, actionRun, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	return f, actionRun, nil
}

func printUsage() {
	fmt.Println(`goxeld - headless voxel-editing daemon

Usage: goxeld [flags]

Flags:
  -h, --help                  show this help and exit
  -v, --version                print version and exit
  -V, --verbose                 verbose logging
  -D, --daemonize                detach into the background
  -f, --foreground                run in the foreground (default)
  -p, --pid-file <path>             PID file path
  -s, --socket <path>                 unix socket path
  -c, --config <file>                   config file path
  -l, --log-file <path>                   log file path (daemonized mode)
  -w, --working-dir <dir>                   chdir target on daemonize
  -u, --user <uid>                            drop privileges to this numeric user id
  -g, --group <gid>                             drop privileges to this numeric group id
  -j, --workers <1..64>                           general worker pool size
  -q, --queue-size <1..65536>                       general worker pool queue capacity
  -m, --max-connections <1..65536>                    max simultaneous client connections
  -P, --protocol {auto|jsonrpc|mcp}                     wire protocol detection mode
      --priority-queue                                    enable priority-ordered dispatch
      --status                                              report running daemon status
      --stop                                                  stop the running daemon
      --reload                                                 reload the running daemon
      --test-signals                                             force one signal-processing pass
      --test-lifecycle                                            report the lifecycle snapshot`)
}
