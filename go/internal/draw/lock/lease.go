package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const leaseSchema = `
CREATE TABLE IF NOT EXISTS draw_locks (
    name        TEXT PRIMARY KEY,
    token       UUID NOT NULL,
    fence       BIGINT NOT NULL DEFAULT 1,
    holder      TEXT NOT NULL,
    acquired_at TIMESTAMPTZ NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL
)`

// A row is taken over only when the previous lease has expired.
const acquireLease = `
INSERT INTO draw_locks (name, token, fence, holder, acquired_at, expires_at)
VALUES ($1, $2, 1, $3, now(), now() + ($4 * interval '1 millisecond'))
ON CONFLICT (name) DO UPDATE
SET token       = EXCLUDED.token,
    fence       = draw_locks.fence + 1,
    holder      = EXCLUDED.holder,
    acquired_at = EXCLUDED.acquired_at,
    expires_at  = EXCLUDED.expires_at
WHERE draw_locks.expires_at < now()
RETURNING fence, expires_at`

const releaseLease = `DELETE FROM draw_locks WHERE name = $1 AND token = $2`

type leaseDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LeaseLock is a DistributedLock backed by a Postgres lease row.
type LeaseLock struct {
	db     leaseDB
	holder string
}

// NewLeaseLock creates a LeaseLock on pool. holder is recorded for operators;
// an empty holder defaults to host:pid.
func NewLeaseLock(pool *pgxpool.Pool, holder string) *LeaseLock {
	return newLeaseLock(pool, holder)
}

func newLeaseLock(db leaseDB, holder string) *LeaseLock {
	if holder == "" {
		host, _ := os.Hostname()
		holder = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	return &LeaseLock{db: db, holder: holder}
}

// EnsureSchema creates the lease table if it does not exist.
func (l *LeaseLock) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, leaseSchema); err != nil {
		return fmt.Errorf("create draw_locks table: %w", err)
	}
	return nil
}

// Acquire implements DistributedLock.
func (l *LeaseLock) Acquire(ctx context.Context, name string, ttl time.Duration) (LockHandle, error) {
	if ttl <= 0 {
		return LockHandle{}, fmt.Errorf("lease ttl must be positive, got %s", ttl)
	}

	h := LockHandle{Name: name, Token: uuid.New()}
	err := l.db.QueryRow(ctx, acquireLease, name, h.Token, l.holder, ttl.Milliseconds()).
		Scan(&h.Fence, &h.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LockHandle{}, ErrHeld
	}
	if err != nil {
		return LockHandle{}, fmt.Errorf("acquire lease %q: %w", name, err)
	}

	log.Debug().
		Str("lock", name).
		Int64("fence", h.Fence).
		Time("expires_at", h.ExpiresAt).
		Msg("lease acquired")
	return h, nil
}

// Release implements DistributedLock. It fails with ErrNotHeld when the lease
// expired and was taken over by someone else.
func (l *LeaseLock) Release(ctx context.Context, h LockHandle) error {
	tag, err := l.db.Exec(ctx, releaseLease, h.Name, h.Token)
	if err != nil {
		return fmt.Errorf("release lease %q: %w", h.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotHeld
	}
	return nil
}
