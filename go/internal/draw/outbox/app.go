package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/rs/zerolog/log"
)

// EventWriter is what the app layer needs from the repository.
type EventWriter interface {
	InsertEvent(ctx context.Context, drawID uuid.UUID, eventType string, payload []byte) (uuid.UUID, error)
}

// App writes draw events to the outbox. The relay process picks them up.
type App struct {
	repo EventWriter
}

func NewApp(repo EventWriter) *App {
	return &App{repo: repo}
}

// PublishDrawCompleted inserts a WinnerDrawn event for the draw.
func (a *App) PublishDrawCompleted(ctx context.Context, event events.DrawCompleted) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid %s payload: %w", events.EventTypeWinnerDrawn, err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", events.EventTypeWinnerDrawn, err)
	}

	id, err := a.repo.InsertEvent(ctx, event.DrawID, events.EventTypeWinnerDrawn, payload)
	if err != nil {
		return err
	}

	log.Info().
		Str("event_id", id.String()).
		Str("draw_id", event.DrawID.String()).
		Str("event_type", events.EventTypeWinnerDrawn).
		Msg("outbox event inserted")

	return nil
}
