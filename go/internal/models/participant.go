package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a registrant that has not been cleared by a draw yet.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"display_name"`
	PostalRegion string    `json:"postal_region"`
	RegisteredAt time.Time `json:"registered_at"`
}

// HistoryKey returns the dedup key for this participant.
func (p Participant) HistoryKey() HistoryKey {
	return NewHistoryKey(p.DisplayName, p.RegisteredAt)
}

// DisplayNames returns the names of the given participants in order.
func DisplayNames(participants []Participant) []string {
	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = p.DisplayName
	}
	return names
}
