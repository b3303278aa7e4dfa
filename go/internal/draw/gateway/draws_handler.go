package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/rs/zerolog/log"
)

const maxSinceResults = 50

// DrawReader is the read side of winner persistence used by the poll fallback.
type DrawReader interface {
	LatestWinner(ctx context.Context) (*models.WinnerRecord, error)
	ListWinnersSince(ctx context.Context, after time.Time, limit int) ([]models.WinnerRecord, error)
}

// DrawsHandler serves results to viewers that cannot hold a websocket.
type DrawsHandler struct {
	reader  DrawReader
	latest  func() *events.DrawCompleted
	clock   clockwork.Clock
	staleAt time.Duration
}

func NewDrawsHandler(reader DrawReader, cm *ConnectionManager) *DrawsHandler {
	return &DrawsHandler{
		reader:  reader,
		latest:  cm.Latest,
		clock:   cm.clock,
		staleAt: cm.config.StaleAfter,
	}
}

type SinceResponse struct {
	Draws      []events.DrawCompleted `json:"draws"`
	ServerTime time.Time              `json:"serverTime"`
}

type LatestResponse struct {
	Draw       *events.DrawCompleted `json:"draw"`
	ServerTime time.Time             `json:"serverTime"`
}

// HandleSince returns draws after the "after" query parameter, oldest first.
// Without it the stale bound is used, so a fresh client only sees results it
// could still animate.
func (h *DrawsHandler) HandleSince(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	after := now.Add(-h.staleAt)
	if raw := r.URL.Query().Get("after"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "after must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		after = t
	}

	winners, err := h.reader.ListWinnersSince(r.Context(), after, maxSinceResults)
	if err != nil {
		log.Error().Err(err).Time("after", after).Msg("failed to list draws")
		http.Error(w, "failed to list draws", http.StatusInternalServerError)
		return
	}

	resp := SinceResponse{Draws: make([]events.DrawCompleted, 0, len(winners)), ServerTime: now.UTC()}
	for i := range winners {
		resp.Draws = append(resp.Draws, h.toEvent(&winners[i]))
	}
	writeJSON(w, resp)
}

// HandleLatest returns the most recent draw, or null.
func (h *DrawsHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	winner, err := h.reader.LatestWinner(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load latest draw")
		http.Error(w, "failed to load latest draw", http.StatusInternalServerError)
		return
	}

	resp := LatestResponse{ServerTime: h.clock.Now().UTC(), Draw: h.latest()}
	if winner != nil {
		ev := h.toEvent(winner)
		resp.Draw = &ev
	}
	writeJSON(w, resp)
}

// toEvent maps a stored winner to the wire payload, borrowing the frozen
// participant list when this gateway broadcast the same draw.
func (h *DrawsHandler) toEvent(w *models.WinnerRecord) events.DrawCompleted {
	ev := events.NewDrawCompleted(w, nil)
	if cached := h.latest(); cached != nil && cached.DrawID == w.ID {
		ev.Participants = cached.Participants
	}
	return ev
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
