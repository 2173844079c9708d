// Package filelock provides the cross-process run lock and atomic file writes
// used for briefing output.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process already holds a run lock.
var ErrLocked = errors.New("workflow is already running")

// RunLock is an exclusive advisory lock held for the duration of one run of a
// workflow, so two processes never drive the same workflow against one ledger.
type RunLock struct {
	flock    *flock.Flock
	path     string
	workflow string
}

// NewRunLock creates the lock for a workflow under dir. Nothing is acquired yet.
func NewRunLock(dir, workflow string) *RunLock {
	return &RunLock{
		flock:    flock.New(filepath.Join(dir, lockName(workflow))),
		path:     filepath.Join(dir, lockName(workflow)),
		workflow: workflow,
	}
}

func lockName(workflow string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, workflow)
	return "run-" + safe + ".lock"
}

// Path returns the lock file path.
func (l *RunLock) Path() string { return l.path }

// Acquire takes the lock without blocking. It returns ErrLocked when another
// holder exists.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrLocked, l.workflow)
	}
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *RunLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// AtomicWrite writes data through a temp file in the target directory followed
// by a rename, so readers never observe a partial file.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}

// WriteLocked serializes writers of one path through "<path>.lock" and then
// writes atomically. Concurrent runs rendering to the same output use it.
func WriteLocked(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s.lock: %w", path, err)
	}
	defer lock.Unlock()

	return AtomicWrite(path, data)
}
