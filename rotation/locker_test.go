package rotation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/rotation"
)

func TestMemoryLockerSerialises(t *testing.T) {
	l := rotation.NewMemoryLocker()
	ctx := context.Background()
	reqID := id.NewRequestID()

	unlock, err := l.Lock(ctx, reqID)
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, reqID)
		if err != nil {
			t.Errorf("second Lock: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while the first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock not acquired after unlock")
	}

	// Unlock is safe to call twice.
	unlock()
	deadline := time.Now().Add(time.Second)
	for l.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if l.Len() != 0 {
		t.Fatalf("Len = %d after all unlocks, want 0", l.Len())
	}
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	l := rotation.NewMemoryLocker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	u1, err := l.Lock(ctx, id.NewRequestID())
	if err != nil {
		t.Fatal(err)
	}
	defer u1()
	u2, err := l.Lock(ctx, id.NewRequestID())
	if err != nil {
		t.Fatalf("lock on a different request blocked: %v", err)
	}
	u2()
}

func TestMemoryLockerContextCancel(t *testing.T) {
	l := rotation.NewMemoryLocker()
	reqID := id.NewRequestID()

	unlock, err := l.Lock(context.Background(), reqID)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, reqID)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, bystander.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld wrapping DeadlineExceeded", err)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
}

func TestNopLocker(t *testing.T) {
	var l rotation.NopLocker
	reqID := id.NewRequestID()
	u1, _ := l.Lock(context.Background(), reqID)
	u2, err := l.Lock(context.Background(), reqID)
	if err != nil {
		t.Fatal(err)
	}
	u1()
	u2()
}
