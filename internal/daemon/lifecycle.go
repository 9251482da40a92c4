package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// LifecycleManager owns the PID file so `jarvis status` and
// `jarvis stop` can find a running daemon.
type LifecycleManager struct {
	daemon  *Daemon
	pidFile string
	logger  zerolog.Logger
}

// NewLifecycleManager creates a lifecycle manager for the daemon.
func NewLifecycleManager(d *Daemon) *LifecycleManager {
	return &LifecycleManager{
		daemon:  d,
		pidFile: PIDFilePath(d.config.DataDir),
		logger:  d.logger.With().Str("component", "lifecycle").Logger(),
	}
}

// PIDFilePath returns the PID file location for a data directory.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jarvis.pid")
}

// Start writes the PID file, refusing when another instance holds it.
func (lm *LifecycleManager) Start() error {
	if pid, running := lm.runningPID(); running {
		return fmt.Errorf("daemon is already running (pid %d)", pid)
	}

	if err := os.MkdirAll(filepath.Dir(lm.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	pid := os.Getpid()
	if err := os.WriteFile(lm.pidFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	lm.logger.Debug().Int("pid", pid).Str("file", lm.pidFile).Msg("PID file written")
	return nil
}

// Stop removes the PID file.
func (lm *LifecycleManager) Stop() error {
	if err := os.Remove(lm.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

func (lm *LifecycleManager) runningPID() (int, bool) {
	pid, err := ReadPID(lm.pidFile)
	if err != nil {
		return 0, false
	}
	return pid, ProcessExists(pid)
}

// ReadPID reads a PID file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed PID file %s: %w", path, err)
	}
	return pid, nil
}

// ProcessExists reports whether a process with the given PID is alive.
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
