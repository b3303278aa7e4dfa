package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/executor"
	"github.com/mcdev12/giveaway/go/internal/draw/schedule"
	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/rs/zerolog/log"
)

// bearerMatches compares an Authorization header with the expected token. An
// empty token never matches.
func bearerMatches(header, token string) bool {
	if token == "" {
		return false
	}
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// Problem is an application/problem+json body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Code:   code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// CronHandler is the external timer ping. Retried pings are safe: they hit
// the same idempotent executor as every other trigger.
type CronHandler struct {
	app    DrawApp
	secret string
}

func NewCronHandler(app DrawApp, secret string) *CronHandler {
	return &CronHandler{app: app, secret: secret}
}

// CronResponse is returned for a completed or skipped ping.
type CronResponse struct {
	Winner  *Winner `json:"winner,omitempty"`
	Skipped string  `json:"skipped,omitempty"`
}

func (h *CronHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !bearerMatches(r.Header.Get("Authorization"), h.secret) {
		writeProblem(w, http.StatusUnauthorized, "", "missing or invalid cron secret")
		return
	}

	out, err := h.app.ExecuteDraw(r.Context(), models.DrawTriggerExternalPing)
	if err == nil {
		msg := winnerToMessage(out.Winner)
		writeJSON(w, http.StatusOK, CronResponse{Winner: &msg})
		return
	}

	code := executor.CodeOf(err)
	switch code {
	case executor.CodeNoParticipants:
		writeJSON(w, http.StatusOK, CronResponse{Skipped: string(code)})
	case executor.CodeAlreadyInProgress:
		writeProblem(w, http.StatusTooManyRequests, string(code), err.Error())
	case executor.CodeAlreadyDrawnToday, executor.CodeTooRecent:
		writeProblem(w, http.StatusConflict, string(code), err.Error())
	case executor.CodeOutsideWindow:
		writeProblem(w, http.StatusUnprocessableEntity, string(code), err.Error())
	default:
		log.Error().Err(err).Msg("cron draw failed")
		writeProblem(w, http.StatusInternalServerError, string(code), "draw failed")
	}
}

// ParticipantLister returns the live registration set.
type ParticipantLister interface {
	ListActiveParticipants(ctx context.Context) ([]models.Participant, error)
}

// NextDrawResponse drives the viewer countdown.
type NextDrawResponse struct {
	NextDrawAt       time.Time `json:"nextDrawAt"`
	RegistrationOpen bool      `json:"registrationOpen"`
	ServerTime       time.Time `json:"serverTime"`
	Participants     []string  `json:"participants"`
}

type NextDrawHandler struct {
	policy       *schedule.Policy
	participants ParticipantLister
	clock        clockwork.Clock
}

func NewNextDrawHandler(policy *schedule.Policy, participants ParticipantLister, clock clockwork.Clock) *NextDrawHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NextDrawHandler{policy: policy, participants: participants, clock: clock}
}

func (h *NextDrawHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ps, err := h.participants.ListActiveParticipants(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list participants")
		writeProblem(w, http.StatusInternalServerError, "", "failed to list participants")
		return
	}

	now := h.clock.Now()
	writeJSON(w, http.StatusOK, NextDrawResponse{
		NextDrawAt:       h.policy.NextEligibleInstant(now).UTC(),
		RegistrationOpen: h.policy.RegistrationOpen(now),
		ServerTime:       now.UTC(),
		Participants:     models.DisplayNames(ps),
	})
}

// RegisterRoutes mounts the Connect service and the plain HTTP endpoints.
func RegisterRoutes(mux *http.ServeMux, svc *Service, cron *CronHandler, next *NextDrawHandler) {
	path, handler := svc.Handler()
	mux.Handle(path, handler)
	mux.Handle("GET /api/cron/draw", cron)
	mux.Handle("POST /api/cron/draw", cron)
	mux.Handle("GET /api/draws/next", next)
}
