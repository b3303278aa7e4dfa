package main

import (
	"fmt"

	"github.com/mcdev12/giveaway/go/internal/config"
)

// Lock backends selectable with LOCK_BACKEND.
const (
	lockBackendLocal = "local"
	lockBackendLease = "lease"
)

type serverEnv struct {
	AdminToken  string
	CronSecret  string
	LockBackend string
	Port        string
}

func loadServerEnv() (*serverEnv, error) {
	if err := config.RequireEnv("ADMIN_TOKEN", "CRON_SECRET"); err != nil {
		return nil, err
	}

	env := &serverEnv{
		AdminToken:  config.GetEnv("ADMIN_TOKEN", ""),
		CronSecret:  config.GetEnv("CRON_SECRET", ""),
		LockBackend: config.GetEnv("LOCK_BACKEND", lockBackendLocal),
		Port:        config.GetEnv("PORT", "8080"),
	}
	switch env.LockBackend {
	case lockBackendLocal, lockBackendLease:
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q (want %s or %s)", env.LockBackend, lockBackendLocal, lockBackendLease)
	}
	return env, nil
}
