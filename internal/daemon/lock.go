package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// InstanceLock is a cross-process lock that keeps a second daemon from
// starting against the same socket and PID file.
type InstanceLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewInstanceLock creates a lock backed by the file at path.
func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryLock acquires the lock without blocking. It returns ErrAlreadyRunning
// when another process holds it.
func (l *InstanceLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return ErrAlreadyRunning
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call on an unlocked InstanceLock.
func (l *InstanceLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Locked reports whether this process holds the lock.
func (l *InstanceLock) Locked() bool {
	return l.locked
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}
