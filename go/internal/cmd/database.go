package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/giveaway/go/internal/dbconfig"
	"github.com/mcdev12/giveaway/go/internal/draw/lock"
	"github.com/mcdev12/giveaway/go/internal/draw/repository"
)

func setupDatabase(ctx context.Context, cfg dbconfig.Config) (*sql.DB, error) {
	database, err := cfg.Open()
	if err != nil {
		return nil, err
	}

	if err := repository.NewRepository(database).Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return database, nil
}

// setupLock returns the draw lock and a cleanup func. The lease backend is
// what lets several service replicas share one draw schedule.
func setupLock(ctx context.Context, backend string, cfg dbconfig.Config) (lock.DistributedLock, func(), error) {
	if backend != lockBackendLease {
		log.Warn().Msg("using in-process draw lock; run a single replica or set LOCK_BACKEND=lease")
		return lock.NewLocalLock(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create lease pool: %w", err)
	}
	lease := lock.NewLeaseLock(pool, "")
	if err := lease.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info().Msg("using postgres lease draw lock")
	return lease, pool.Close, nil
}
