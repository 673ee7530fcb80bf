package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedLockBlocksSameKeyOnly(t *testing.T) {
	locks := newKeyedLock()
	ctx := context.Background()

	unlockA, err := locks.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}

	unlockB, err := locks.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("expected independent key to lock, got %v", err)
	}
	unlockB()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(waitCtx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected held key to block, got %v", err)
	}

	unlockA()
	unlockA()
	unlockAgain, err := locks.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("expected key free after unlock, got %v", err)
	}
	unlockAgain()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("expected entries released, got %d", len(locks.locks))
	}
}
