package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLockExclusive(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	h, err := l.Acquire(ctx, "draw", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "draw", time.Minute); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire err = %v, want ErrHeld", err)
	}
	if _, err := l.Acquire(ctx, "other", time.Minute); err != nil {
		t.Fatalf("independent name should be free: %v", err)
	}

	if err := l.Release(ctx, h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	h2, err := l.Acquire(ctx, "draw", time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if h2.Fence <= h.Fence {
		t.Errorf("fence did not increase: %d then %d", h.Fence, h2.Fence)
	}
}

func TestLocalLockReleaseWithStaleHandle(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	h, err := l.Acquire(ctx, "draw", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(ctx, h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Release(ctx, h); !errors.Is(err, ErrNotHeld) {
		t.Errorf("double Release err = %v, want ErrNotHeld", err)
	}
	if err := l.Release(ctx, LockHandle{Name: "never"}); !errors.Is(err, ErrNotHeld) {
		t.Errorf("unknown Release err = %v, want ErrNotHeld", err)
	}
}

func TestLocalLockConcurrentAcquire(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	const n = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		held    int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.Acquire(ctx, "draw", time.Minute)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrHeld):
				held++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 || held != n-1 {
		t.Errorf("winners = %d, held = %d; want 1 and %d", winners, held, n-1)
	}
}

func TestLocalLockHonoursCancelledContext(t *testing.T) {
	l := NewLocalLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, "draw", time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
