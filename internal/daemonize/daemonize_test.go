package daemonize

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestCreatePIDFileWritesCurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	if err := CreatePIDFile(path); err != nil {
		t.Fatalf("CreatePIDFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse pid: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestCreatePIDFileDetectsAlreadyRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("seed pid file: %v", err)
	}

	err := CreatePIDFile(path)
	if err == nil {
		t.Fatal("expected ALREADY_RUNNING error")
	}
	pidErr, ok := err.(*PIDFileError)
	if !ok || !pidErr.AlreadyRunning {
		t.Fatalf("err = %#v, want AlreadyRunning PIDFileError", err)
	}
}

func TestCreatePIDFileRemovesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	// A PID that almost certainly does not correspond to a live process.
	const deadPID = 999999
	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)+"\n"), 0o644); err != nil {
		t.Fatalf("seed stale pid file: %v", err)
	}

	if err := CreatePIDFile(path); err != nil {
		t.Fatalf("CreatePIDFile over stale file: %v", err)
	}

	data, _ := os.ReadFile(path)
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	if pid != os.Getpid() {
		t.Fatalf("pid file should now contain our own pid, got %d", pid)
	}
}

func TestRemovePIDFileIgnoresMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.pid")
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile on missing file should be a no-op, got: %v", err)
	}
}

func TestProcessAliveForCurrentProcess(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Fatal("current process should be reported alive")
	}
}

func TestProcessAliveFalseForUnlikelyPID(t *testing.T) {
	if processAlive(999999) {
		t.Fatal("expected an implausible high pid to be reported dead")
	}
}

func TestDropPrivilegesNoopWithZeroValues(t *testing.T) {
	if err := DropPrivileges(0, 0); err != nil {
		t.Fatalf("DropPrivileges(0,0) should be a no-op, got: %v", err)
	}
}
