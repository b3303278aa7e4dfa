package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/giveaway/go/internal/draw/executor"
	"github.com/mcdev12/giveaway/go/internal/models"
)

type Winner struct {
	DrawID        uuid.UUID `json:"drawId"`
	ParticipantID uuid.UUID `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	DrawTimestamp time.Time `json:"drawTimestamp"`
	Amount        int       `json:"amount"`
}

type HistoryEntry struct {
	DisplayName   string    `json:"displayName"`
	PostalRegion  string    `json:"postalRegion"`
	RegisteredAt  time.Time `json:"registeredAt"`
	DrawTimestamp time.Time `json:"drawTimestamp"`
	DrawID        uuid.UUID `json:"drawId"`
}

type Attempt struct {
	ID          uuid.UUID       `json:"id"`
	Trigger     string          `json:"trigger"`
	Outcome     string          `json:"outcome"`
	DrawID      *uuid.UUID      `json:"drawId,omitempty"`
	AttemptedAt time.Time       `json:"attemptedAt"`
	Details     json.RawMessage `json:"details,omitempty"`
}

type ExecuteDrawRequest struct{}

type ExecuteDrawResponse struct {
	Winner         Winner   `json:"winner"`
	Participants   int      `json:"participants"`
	HistoryAdded   int      `json:"historyAdded"`
	HistorySkipped int      `json:"historySkipped"`
	Cleared        int      `json:"cleared"`
	WindowBypassed bool     `json:"windowBypassed,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

type ListWinnersRequest struct {
	Limit int `json:"limit"`
}

type ListWinnersResponse struct {
	Winners []Winner `json:"winners"`
}

type ListHistoryRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListHistoryResponse struct {
	Records []HistoryEntry `json:"records"`
}

type ReconcileHistoryRequest struct{}

type ReconcileHistoryResponse struct {
	DrawID    uuid.UUID `json:"drawId"`
	Added     int       `json:"added"`
	Skipped   int       `json:"skipped"`
	Cleared   int       `json:"cleared"`
	Published bool      `json:"published"`
}

type ListAttemptsRequest struct {
	Limit int `json:"limit"`
}

type ListAttemptsResponse struct {
	Attempts []Attempt `json:"attempts"`
}

func winnerToMessage(w *models.WinnerRecord) Winner {
	return Winner{
		DrawID:        w.ID,
		ParticipantID: w.ParticipantID,
		DisplayName:   w.DisplayName,
		DrawTimestamp: w.DrawTimestamp,
		Amount:        w.Amount,
	}
}

func historyToMessage(h models.HistoryRecord) HistoryEntry {
	return HistoryEntry{
		DisplayName:   h.DisplayName,
		PostalRegion:  h.PostalRegion,
		RegisteredAt:  h.RegisteredAt,
		DrawTimestamp: h.DrawTimestamp,
		DrawID:        h.DrawID,
	}
}

func attemptToMessage(a models.DrawAttempt) Attempt {
	return Attempt{
		ID:          a.ID,
		Trigger:     string(a.Trigger),
		Outcome:     a.Outcome,
		DrawID:      a.DrawID,
		AttemptedAt: a.AttemptedAt,
		Details:     a.Details,
	}
}

func outcomeToMessage(out *executor.Outcome) *ExecuteDrawResponse {
	resp := &ExecuteDrawResponse{
		Winner:         winnerToMessage(out.Winner),
		Participants:   out.Participants,
		HistoryAdded:   out.History.Added,
		HistorySkipped: out.History.Skipped,
		Cleared:        out.Cleared,
		WindowBypassed: out.WindowBypassed,
	}
	for _, err := range []error{out.HistoryErr, out.ClearErr, out.NotifyErr} {
		if err != nil {
			resp.Warnings = append(resp.Warnings, err.Error())
		}
	}
	return resp
}
