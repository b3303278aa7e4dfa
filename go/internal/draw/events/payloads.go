package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/giveaway/go/internal/models"
)

// Event types written to the outbox and published on the broker.
const (
	EventTypeWinnerDrawn = "WinnerDrawn"
)

// Message types pushed to viewers over the websocket.
const (
	MessageTypeWinnerDrawn = "winner_drawn"
	MessageTypeSync        = "sync"
)

// DrawCompleted is the payload of a WinnerDrawn event. Consumers must treat a
// repeated DrawID as a no-op.
type DrawCompleted struct {
	DrawID            uuid.UUID `json:"drawId"`
	WinnerDisplayName string    `json:"winnerDisplayName"`
	DrawTimestamp     time.Time `json:"drawTimestamp"`
	Amount            int       `json:"amount,omitempty"`
	Participants      []string  `json:"participants,omitempty"`
}

// NewDrawCompleted builds the payload for a persisted winner.
func NewDrawCompleted(w *models.WinnerRecord, participants []string) DrawCompleted {
	return DrawCompleted{
		DrawID:            w.ID,
		WinnerDisplayName: w.DisplayName,
		DrawTimestamp:     w.DrawTimestamp,
		Amount:            w.Amount,
		Participants:      participants,
	}
}

// Validate rejects malformed payloads.
func (e DrawCompleted) Validate() error {
	if e.DrawID == uuid.Nil {
		return errors.New("drawId is required")
	}
	if e.WinnerDisplayName == "" {
		return errors.New("winnerDisplayName is required")
	}
	if e.DrawTimestamp.IsZero() {
		return errors.New("drawTimestamp is required")
	}
	return nil
}

// Envelope is the broker wire format around an outbox payload.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ViewerMessage is what the gateway writes to websocket clients.
type ViewerMessage struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	ServerTime time.Time       `json:"serverTime"`
}

// NewViewerMessage marshals payload into a ViewerMessage of the given type.
func NewViewerMessage(msgType string, payload any, now time.Time) (*ViewerMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &ViewerMessage{Type: msgType, Data: data, ServerTime: now.UTC()}, nil
}

// ParseDrawCompleted decodes and validates a DrawCompleted payload.
func ParseDrawCompleted(data []byte) (DrawCompleted, error) {
	var e DrawCompleted
	if err := json.Unmarshal(data, &e); err != nil {
		return DrawCompleted{}, fmt.Errorf("unmarshal draw payload: %w", err)
	}
	if err := e.Validate(); err != nil {
		return DrawCompleted{}, fmt.Errorf("invalid draw payload: %w", err)
	}
	return e, nil
}
