package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DrawTrigger names the source that asked for a draw.
type DrawTrigger string

const (
	DrawTriggerScheduled    DrawTrigger = "scheduled"
	DrawTriggerManual       DrawTrigger = "manual"
	DrawTriggerExternalPing DrawTrigger = "external_ping"
)

// Valid reports whether t is a known trigger.
func (t DrawTrigger) Valid() bool {
	switch t {
	case DrawTriggerScheduled, DrawTriggerManual, DrawTriggerExternalPing:
		return true
	}
	return false
}

// DrawAttempt is an audit row for one executor invocation.
type DrawAttempt struct {
	ID          uuid.UUID       `json:"id"`
	Trigger     DrawTrigger     `json:"trigger"`
	Outcome     string          `json:"outcome"`
	DrawID      *uuid.UUID      `json:"draw_id,omitempty"`
	AttemptedAt time.Time       `json:"attempted_at"`
	Details     json.RawMessage `json:"details,omitempty"`
}
