package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/giveaway/go/internal/config"
	"github.com/mcdev12/giveaway/go/internal/dbconfig"
	"github.com/mcdev12/giveaway/go/internal/draw/gateway"
	"github.com/mcdev12/giveaway/go/internal/draw/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	config.SetupLogging()

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbCfg.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gwCfg := gateway.DefaultConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		gwCfg.JetStreamConfig.URL = url
	}
	if name := os.Getenv("GATEWAY_CONSUMER"); name != "" {
		gwCfg.JetStreamConfig.ConsumerName = name
	}

	svc, err := gateway.NewService(ctx, gwCfg, repository.NewRepository(db), clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("create draw gateway")
	}

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := config.GetEnv("GATEWAY_ADDR", ":8081")
	srv := &http.Server{
		Addr:              addr,
		Handler:           cors.AllowAll().Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := svc.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service stopped with error")
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("draw gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
