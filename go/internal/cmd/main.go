package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/giveaway/go/internal/config"
	"github.com/mcdev12/giveaway/go/internal/dbconfig"
	"github.com/mcdev12/giveaway/go/internal/draw/executor"
	"github.com/mcdev12/giveaway/go/internal/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	config.SetupLogging()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	env, err := loadServerEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	database, err := setupDatabase(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer database.Close()

	drawLock, closeLock, err := setupLock(ctx, env.LockBackend, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup draw lock")
	}
	defer closeLock()

	services, err := setupServices(database, cfg, env, drawLock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}

	go func() {
		err := services.Scheduler.Run(ctx, func(ctx context.Context, instant time.Time) error {
			_, err := services.Executor.ExecuteDraw(ctx, models.DrawTriggerScheduled)
			// Rejections and an empty pool are the steady state, not failures.
			if executor.IsRejection(err) || executor.IsTerminal(err) {
				log.Info().Str("code", string(executor.CodeOf(err))).Time("instant", instant).Msg("scheduled draw skipped")
				return nil
			}
			return err
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("draw scheduler stopped")
		}
	}()

	server := setupServer(services, env.Port)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("draw service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
