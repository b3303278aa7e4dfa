package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// LocalLock is an in-process test-and-set lock. The ttl passed to Acquire is
// ignored: the lock lives exactly as long as the holder keeps it.
type LocalLock struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	fence atomic.Int64
}

type localSlot struct {
	held  atomic.Bool
	token uuid.UUID // guarded by LocalLock.mu
}

// NewLocalLock creates an empty LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{slots: make(map[string]*localSlot)}
}

func (l *LocalLock) slot(name string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[name]
	if !ok {
		s = &localSlot{}
		l.slots[name] = s
	}
	return s
}

// Acquire implements DistributedLock.
func (l *LocalLock) Acquire(ctx context.Context, name string, _ time.Duration) (LockHandle, error) {
	if err := ctx.Err(); err != nil {
		return LockHandle{}, err
	}

	s := l.slot(name)
	if !s.held.CompareAndSwap(false, true) {
		return LockHandle{}, ErrHeld
	}

	h := LockHandle{
		Name:  name,
		Token: uuid.New(),
		Fence: l.fence.Inc(),
	}
	l.mu.Lock()
	s.token = h.Token
	l.mu.Unlock()
	return h, nil
}

// Release implements DistributedLock.
func (l *LocalLock) Release(_ context.Context, h LockHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[h.Name]
	if !ok || !s.held.Load() || s.token != h.Token {
		return ErrNotHeld
	}
	s.token = uuid.Nil
	s.held.Store(false)
	return nil
}
