// Package lockfile keeps a ResellerBot state directory owned by a single process.
//
// The lock is an flock(2) on a file inside the directory, so the kernel drops
// it when the owning process exits, cleanly or not.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created in the state directory.
const FileName = "resellerbot.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// HeldError reports that another process owns the state directory.
type HeldError struct {
	Path  string
	Owner string
	Cause error
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("state directory is in use by another ResellerBot process (lock file %s", e.Path)
	if e.Owner != "" {
		msg += ", owner " + e.Owner
	}
	return msg + "); remove the lock file only if that process is gone"
}

func (e *HeldError) Unwrap() error {
	return e.Cause
}

// Acquire takes the lock for stateDir, creating the directory if needed.
// It fails fast with *HeldError when another process holds it.
func Acquire(stateDir string) (*Lock, error) {
	path := filepath.Join(stateDir, FileName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// No O_TRUNC: the current owner's record must survive a failed attempt.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		owner := describeOwner(path)
		slog.Error("State directory already locked", "lock_path", path, "owner", owner)
		return nil, &HeldError{Path: path, Owner: owner, Cause: err}
	}

	if err := writeRecord(f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		slog.Warn("Failed to sync lock file", "error", err, "lock_path", path)
	}

	slog.Info("Acquired state directory lock", "lock_path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var firstErr error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		firstErr = fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("failed to remove %s: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	l.file = nil
	slog.Debug("Released state directory lock", "lock_path", l.path)
	return firstErr
}

func writeRecord(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	record := fmt.Sprintf("pid=%d started=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_, err := f.WriteAt([]byte(record), 0)
	return err
}

func describeOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return ""
	}
	pid := ownerPID(string(data))
	if pid <= 0 {
		return strings.TrimSpace(string(data))
	}
	if processAlive(pid) {
		return fmt.Sprintf("pid %d (running)", pid)
	}
	return fmt.Sprintf("pid %d (not running)", pid)
}

// ownerPID extracts N from a "pid=N" field, or returns 0.
func ownerPID(record string) int {
	for _, field := range strings.Fields(record) {
		v, ok := strings.CutPrefix(field, "pid=")
		if !ok {
			continue
		}
		if pid, err := strconv.Atoi(v); err == nil {
			return pid
		}
	}
	return 0
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
