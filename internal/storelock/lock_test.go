package storelock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireIsExclusive(t *testing.T) {
	db := filepath.Join(t.TempDir(), "data", "cellar.db")
	first, err := Acquire(db)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if first.Path() != db+".lock" {
		t.Fatalf("unexpected lock path %s", first.Path())
	}
	if _, err := Acquire(db); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	second, err := Acquire(db)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = second.Release()
}

func TestWaitTimesOutWhileHeld(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cellar.db")
	held, err := Acquire(db)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer func() { _ = held.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := Wait(ctx, db, 10*time.Millisecond); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked after timeout, got %v", err)
	}
}

func TestWaitAcquiresFreeLock(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cellar.db")
	lock, err := Wait(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestRequiresPath(t *testing.T) {
	if _, err := Acquire(""); err == nil {
		t.Fatalf("expected missing path error")
	}
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}
