package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/giveaway/go/internal/config"
	"github.com/mcdev12/giveaway/go/internal/draw/viewer"
)

// A terminal viewer: follows the draw feed and logs each state it would show.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	config.SetupLogging()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	class := config.GetEnv("VIEWER_CLIENT", "desktop")
	client := viewer.NewClient(
		config.GetEnv("DRAW_SERVICE_URL", "http://localhost:8080"),
		config.GetEnv("GATEWAY_URL", "http://localhost:8081"),
		class,
		nil,
	)

	clock := clockwork.NewRealClock()
	store := viewer.NewFileStore(config.GetEnv("VIEWER_STATE_FILE", ".viewer/sync.json"))
	rec := viewer.NewReconciler(store, clock, cfg.Viewer)
	driver := viewer.NewDriver(client, client, rec, clock, cfg.Viewer, class == "mobile")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("client", class).Msg("viewer started")
	err = driver.Run(ctx, func(v viewer.View) {
		ev := log.Info().Str("state", string(v.State))
		switch v.State {
		case viewer.StateAwaitingDraw:
			ev = ev.Int("participants", len(v.Participants))
		case viewer.StateAnimating, viewer.StateRevealed:
			ev = ev.Str("winner", v.Winner).
				Str("draw_id", v.DrawID.String()).
				Dur("remaining", v.Remaining).
				Strs("grid", v.Participants)
		}
		ev.Msg("view changed")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("viewer stopped")
	}
}
