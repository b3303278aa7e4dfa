package viewer

import (
	"time"

	"github.com/google/uuid"
)

// State is what a viewer is showing.
type State string

const (
	StateIdle         State = "Idle"
	StateAwaitingDraw State = "AwaitingDraw"
	StateAnimating    State = "Animating"
	StateRevealed     State = "Revealed"
)

// Config controls the viewer timeline. All windows are measured from the draw
// timestamp, never from when the viewer learned about the draw.
type Config struct {
	Animation     time.Duration `yaml:"animation"`
	DisplayWindow time.Duration `yaml:"display_window"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

func DefaultConfig() Config {
	return Config{
		Animation:     10 * time.Second,
		DisplayWindow: 5 * time.Minute,
		StaleAfter:    15 * time.Minute,
		PollInterval:  5 * time.Second,
	}
}

// ClientSyncState is the record a viewer persists once it has seen a draw, so a
// reload resumes the same timeline.
type ClientSyncState struct {
	DrawID             uuid.UUID `json:"drawId"`
	Winner             string    `json:"winner"`
	Amount             int       `json:"amount,omitempty"`
	DrawTimestamp      time.Time `json:"drawTimestamp"`
	FrozenParticipants []string  `json:"frozenParticipantSnapshot"`
	AnimationCompleted bool      `json:"animationCompleted"`
	DisplayUntil       time.Time `json:"displayUntil"`
}

// View is the derived display state at one instant.
type View struct {
	State           State     `json:"state"`
	DrawID          uuid.UUID `json:"drawId,omitempty"`
	Winner          string    `json:"winner,omitempty"`
	Amount          int       `json:"amount,omitempty"`
	DrawTimestamp   time.Time `json:"drawTimestamp,omitempty"`
	AnimationEndsAt time.Time `json:"animationEndsAt,omitempty"`
	DisplayUntil    time.Time `json:"displayUntil,omitempty"`
	// Remaining is the time left in the current state.
	Remaining    time.Duration `json:"remaining,omitempty"`
	Participants []string      `json:"participants,omitempty"`
}
