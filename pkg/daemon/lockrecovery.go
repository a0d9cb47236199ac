package daemon

import (
	"os"
	"path/filepath"

	"github.com/jamesainslie/aquire/pkg/aquire/logging"
)

// RecoverFromStaleDaemon cleans up after a daemon that exited without
// removing its files. It returns ErrDaemonAlreadyRunning when the recorded
// process is still alive, and nil when there was nothing to do.
func RecoverFromStaleDaemon(paths Paths) error {
	pid, err := ReadPIDFile(paths.PID)
	if err != nil {
		return nil //nolint:nilerr // a missing or unreadable PID file means nothing to recover
	}

	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	logging.Get("daemon").Warn("cleaning up stale daemon files", "stale_pid", pid)

	_ = os.Remove(paths.PID)
	_ = os.Remove(paths.Socket)
	_ = os.Remove(paths.Status)
	if paths.Store != "" {
		_ = os.Remove(filepath.Join(paths.Store, "LOCK"))
	}
	return nil
}
