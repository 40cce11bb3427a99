// Package lockfile provides the cross-process singleton lock. The sync
// loop's in-process mutex only guards one process; the lock file stops a
// second searchsync instance from racing the same index.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is an advisory cross-process file lock.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock at <dir>/searchsync.lock.
func New(dir string) *Lock {
	path := filepath.Join(dir, "searchsync.lock")
	return &Lock{path: path, flock: flock.New(path)}
}

// TryAcquire attempts the lock without blocking. Returns false when
// another process holds it.
func (l *Lock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	l.locked = acquired
	return acquired, nil
}

// Release drops the lock. Safe to call when not held.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }
