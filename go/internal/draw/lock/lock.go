// Package lock provides the mutual exclusion used around a draw.
//
// Callers hold a LockHandle between Acquire and Release instead of relying on
// process-global flags. LocalLock serialises callers within one process;
// LeaseLock stores a lease row in Postgres so several processes can share it.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrHeld is returned by Acquire when another holder owns the lock.
	ErrHeld = errors.New("lock is held")
	// ErrNotHeld is returned by Release when the handle no longer owns the lock.
	ErrNotHeld = errors.New("lock not held by this handle")
)

// LockHandle identifies one successful acquisition.
type LockHandle struct {
	Name      string
	Token     uuid.UUID
	Fence     int64     // increases with every acquisition of Name
	ExpiresAt time.Time // zero when the lock does not expire
}

// DistributedLock is acquire-with-lease / release.
type DistributedLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (LockHandle, error)
	Release(ctx context.Context, h LockHandle) error
}
