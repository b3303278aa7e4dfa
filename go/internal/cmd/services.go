package main

import (
	"database/sql"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/giveaway/go/internal/config"
	"github.com/mcdev12/giveaway/go/internal/draw/executor"
	"github.com/mcdev12/giveaway/go/internal/draw/history"
	"github.com/mcdev12/giveaway/go/internal/draw/lock"
	"github.com/mcdev12/giveaway/go/internal/draw/outbox"
	"github.com/mcdev12/giveaway/go/internal/draw/repository"
	"github.com/mcdev12/giveaway/go/internal/draw/schedule"
	"github.com/mcdev12/giveaway/go/internal/draw/service"
)

type Services struct {
	Policy    *schedule.Policy
	Executor  *executor.Executor
	Scheduler *schedule.Scheduler
	Draws     *service.Service
	Cron      *service.CronHandler
	NextDraw  *service.NextDrawHandler
	Repo      *repository.Repository
}

func setupServices(database *sql.DB, cfg *config.Config, env *serverEnv, drawLock lock.DistributedLock) (*Services, error) {
	// Database layer → Repository layer → Executor → Service layer
	clock := clockwork.NewRealClock()

	policy, err := schedule.NewPolicy(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	repo := repository.NewRepository(database)
	notifier := outbox.NewApp(outbox.NewRepository(database))

	exec, err := executor.NewExecutor(executor.Dependencies{
		Participants: repo,
		Winners:      repo,
		Merger:       history.NewMerger(repo),
		Notifier:     notifier,
		Audit:        repo,
		Lock:         drawLock,
		Policy:       policy,
		Clock:        clock,
	}, cfg.Draw)
	if err != nil {
		return nil, err
	}

	return &Services{
		Policy:    policy,
		Executor:  exec,
		Scheduler: schedule.NewScheduler(policy, clock),
		Draws:     service.NewService(exec, repo, env.AdminToken),
		Cron:      service.NewCronHandler(exec, env.CronSecret),
		NextDraw:  service.NewNextDrawHandler(policy, repo, clock),
		Repo:      repo,
	}, nil
}
