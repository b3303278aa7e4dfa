package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is the permanent, append-only trace of a participant in a round.
type HistoryRecord struct {
	ID            uuid.UUID `json:"id"`
	DisplayName   string    `json:"display_name"`
	PostalRegion  string    `json:"postal_region"`
	RegisteredAt  time.Time `json:"registered_at"`
	DrawTimestamp time.Time `json:"draw_timestamp"`
	DrawID        uuid.UUID `json:"draw_id"`
}

// HistoryKey identifies a unique history entry across rounds.
// RegisteredAt is kept in UTC microseconds, the precision Postgres stores.
type HistoryKey struct {
	DisplayName  string
	RegisteredAt int64
}

// NewHistoryKey normalises name and registration time into a HistoryKey.
func NewHistoryKey(displayName string, registeredAt time.Time) HistoryKey {
	return HistoryKey{
		DisplayName:  displayName,
		RegisteredAt: registeredAt.UTC().UnixMicro(),
	}
}

// Key returns the dedup key for this record.
func (h HistoryRecord) Key() HistoryKey {
	return NewHistoryKey(h.DisplayName, h.RegisteredAt)
}
