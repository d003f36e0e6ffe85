// Package storelock guards a database file with an exclusive advisory
// lock so only one process writes it at a time.
package storelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked reports that another process holds the lock.
var ErrLocked = errors.New("storelock: database is locked by another process")

// Lock is a held lock on <database>.lock.
type Lock struct {
	path string
	fl   *flock.Flock
}

// PathFor returns the lock file guarding dbPath.
func PathFor(dbPath string) string { return dbPath + ".lock" }

// Acquire takes the lock for dbPath without waiting.
func Acquire(dbPath string) (*Lock, error) {
	fl, err := newFlock(dbPath)
	if err != nil {
		return nil, err
	}
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", fl.Path(), ErrLocked)
	}
	return &Lock{path: fl.Path(), fl: fl}, nil
}

// Wait retries until the lock is free, ctx ends, or an error occurs.
func Wait(ctx context.Context, dbPath string, retry time.Duration) (*Lock, error) {
	fl, err := newFlock(dbPath)
	if err != nil {
		return nil, err
	}
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	ok, err := fl.TryLockContext(ctx, retry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", fl.Path(), ErrLocked)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", fl.Path(), ErrLocked)
	}
	return &Lock{path: fl.Path(), fl: fl}, nil
}

func newFlock(dbPath string) (*flock.Flock, error) {
	if dbPath == "" {
		return nil, errors.New("storelock: database path is required")
	}
	path := PathFor(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return flock.New(path), nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
