package models

import (
	"time"

	"github.com/google/uuid"
)

// WinnerRecord is written once per successful draw. Its ID doubles as the draw ID.
type WinnerRecord struct {
	ID            uuid.UUID `json:"id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	DrawTimestamp time.Time `json:"draw_timestamp"`
	Amount        int       `json:"amount"`
}
