// Package daemon runs a performance profile in the background as aquired:
// PID and status files, the published state file, stale-lock recovery and
// the HTTP control and metrics servers.
package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrDaemonAlreadyRunning is returned when trying to start a daemon that's already running.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// Paths are the files a daemon instance owns.
type Paths struct {
	Socket string
	PID    string
	Status string
	State  string
	// Store is the badger directory; its LOCK file is removed when a
	// previous daemon died holding it.
	Store string
}

// WritePIDFile writes the current process ID to path, creating its directory.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads a PID from a file.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(path string) error {
	return os.Remove(path)
}

// Running returns the PID recorded at pidPath and whether that process is alive.
func Running(pidPath string) (int, bool) {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return 0, false
	}
	return pid, IsProcessRunning(pid)
}

// IsDaemonRunning checks if a daemon is running based on PID file.
func IsDaemonRunning(pidPath string) bool {
	_, ok := Running(pidPath)
	return ok
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
