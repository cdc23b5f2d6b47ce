// goxeld is the headless voxel-editing daemon. It listens on a unix socket,
// accepts framed JSON-RPC or MCP requests, and dispatches them against an
// in-process voxel-editing engine.
//
// Flags (spec.md §6.3): -h/--help, -v/--version, -V/--verbose,
// -D/--daemonize, -f/--foreground, -p/--pid-file, -s/--socket, -c/--config,
// -l/--log-file, -w/--working-dir, -u/--user, -g/--group, -j/--workers,
// -q/--queue-size, -m/--max-connections, -P/--protocol, --priority-queue,
// --status, --stop, --reload, --test-signals, --test-lifecycle.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"goxeld/internal/config"
	"goxeld/internal/daemonize"
	"goxeld/internal/diag"
	"goxeld/internal/dispatch"
	"goxeld/internal/engine/fake"
	"goxeld/internal/lifecycle"
	"goxeld/internal/projectlock"
	"goxeld/internal/render"
	"goxeld/internal/router"
	"goxeld/internal/socket"
	"goxeld/internal/version"
	"goxeld/internal/workpool"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, action, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		return 1
	}

	switch action {
	case actionHelp:
		printUsage()
		return 0
	case actionVersion:
		fmt.Printf("goxeld %s\n", version.Version())
		return 0
	case actionStatus:
		return controlStatus(flags)
	case actionStop:
		return controlStop(flags)
	case actionReload:
		return controlReload(flags)
	case actionTestSignals:
		return controlCall(flags, "test_signals")
	case actionTestLifecycle:
		return controlCall(flags, "test_lifecycle")
	}

	return runDaemon(flags)
}

func runDaemon(flags *cliFlags) int {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := buildConfig(flags)
	if err := cfg.EnsureDirs(); err != nil {
		log.Printf("create directories: %v", err)
		return 1
	}

	if flags.daemonize {
		if err := daemonize.Daemonize(daemonize.Options{WorkingDir: cfg.WorkingDir, LogFile: cfg.LogFile}); err != nil {
			log.Printf("daemonize: %v", err)
			return 1
		}
	}

	if cfg.CreatePIDFile {
		if err := daemonize.CreatePIDFile(cfg.PIDFile); err != nil {
			log.Printf("pid file: %v", err)
			return 1
		}
		defer daemonize.RemovePIDFile(cfg.PIDFile)
	}

	if err := dropPrivilegesIfRequested(cfg); err != nil {
		log.Printf("drop privileges: %v", err)
		return 1
	}

	diagStore, err := diag.Open(cfg.DiagnosticsDBPath)
	if err != nil {
		log.Printf("open diagnostics store: %v", err)
		return 1
	}
	defer diagStore.Close()

	renders, err := render.New(render.Config{
		BaseDir:       cfg.RenderBaseDir,
		TTL:           time.Duration(cfg.RenderTTLSeconds) * time.Second,
		SweepInterval: renderSweepInterval(cfg),
		MaxTotalBytes: cfg.RenderMaxTotalBytes,
	})
	if err != nil {
		log.Printf("init render manager: %v", err)
		return 1
	}
	defer renders.Stop()

	lock := projectlock.New(projectlock.Config{
		IdleTimeout: time.Duration(cfg.ProjectIdleTimeoutSeconds) * time.Second,
	})
	defer lock.Stop()

	general := workpool.New(workpool.Config{
		WorkerCount:  cfg.Workers,
		Capacity:     cfg.QueueSize,
		PriorityMode: cfg.PriorityQueue,
		Process:      func(workerID int, item workpool.Item) {},
	})
	general.Start()
	defer general.Stop()

	scriptPool := workpool.New(workpool.Config{
		WorkerCount: cfg.ScriptWorkers,
		Capacity:    cfg.ScriptQueueSize,
		Process:     func(workerID int, item workpool.Item) {},
	})
	scriptPool.Start()
	defer scriptPool.Stop()

	lc := lifecycle.New(lifecycle.Config{ShutdownTimeout: time.Duration(cfg.ShutdownTimeoutMS) * time.Millisecond})
	if err := lc.Initialize(); err != nil {
		log.Printf("lifecycle initialize: %v", err)
		return 1
	}

	// The production voxel engine is an external collaborator (spec.md §1,
	// §6.2): goxeld only depends on the narrow Engine/ScriptEngine
	// interfaces in internal/engine. The in-memory implementation here
	// stands in for it so the daemon is runnable end to end; swapping in a
	// real engine means passing a different internal/engine.Engine value
	// to dispatch.Config, nothing else changes.
	eng := fake.New()
	scriptEngine := fake.NewScriptEngine()

	// spec.md §4.6: the lock's idle sweeper resets engine state, not just
	// its own bookkeeping, when a project sits untouched past the timeout.
	lock.SetOnIdleReset(func(ctx context.Context) error {
		return eng.Reset(ctx, "idle_sweep")
	})

	d := dispatch.New(dispatch.Config{
		Engine:       eng,
		ScriptEngine: scriptEngine,
		GeneralPool:  general,
		ScriptPool:   scriptPool,
		Lock:         lock,
		Renders:      renders,
		Diagnostics:  diagStore,
		Lifecycle:    lc,
	})

	srv := socket.New(socket.Config{
		SocketPath:     cfg.SocketPath,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		MaxConnections: cfg.MaxConnections,
		Protocol:       router.Mode(cfg.Protocol),
		Dispatcher:     d,
		OnProtocolDetect: func(kind string) {
			if err := diagStore.IncrementProtocolCounter(kind); err != nil {
				log.Printf("record protocol counter: %v", err)
			}
		},
	})
	if err := srv.Start(); err != nil {
		log.Printf("start socket server: %v", err)
		lc.Fail(int(diag.ErrServerInitFailed), err.Error())
		return 1
	}
	defer os.Remove(cfg.SocketPath)

	if err := lc.Start(os.Getpid()); err != nil {
		log.Printf("lifecycle start: %v", err)
		return 1
	}
	lc.InstallSignalHandlers()
	defer lc.StopSignalHandlers()

	log.Printf("goxeld ready (pid %d, socket %s)", os.Getpid(), cfg.SocketPath)

	shutdownWork := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutMS)*time.Millisecond)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Printf("socket server shutdown: %v", err)
		}
		lc.Shutdown()
	}
	lc.Run(context.Background(), 100*time.Millisecond, shutdownWork)

	log.Println("goxeld stopped")
	return 0
}

func renderSweepInterval(cfg *config.Config) time.Duration {
	if v := os.Getenv("RENDER_MANAGER_CLEANUP_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(cfg.RenderSweepIntervalSeconds) * time.Second
}

func buildConfig(flags *cliFlags) *config.Config {
	cfg := config.DefaultConfig()
	if flags.socketPath != "" {
		cfg.SocketPath = flags.socketPath
	}
	if flags.pidFile != "" {
		cfg.PIDFile = flags.pidFile
	}
	if flags.workingDir != "" {
		cfg.WorkingDir = flags.workingDir
	}
	if flags.logFile != "" {
		cfg.LogFile = flags.logFile
	}
	if flags.protocol != "" {
		cfg.Protocol = flags.protocol
	}
	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}
	if flags.queueSize > 0 {
		cfg.QueueSize = flags.queueSize
	}
	if flags.maxConnections > 0 {
		cfg.MaxConnections = flags.maxConnections
	}
	cfg.PriorityQueue = flags.priorityQueue
	cfg.User = flags.user
	cfg.Group = flags.group
	return cfg
}
