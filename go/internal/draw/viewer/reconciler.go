package viewer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/rs/zerolog/log"
)

// Reconciler derives a viewer's display state from draw timestamps. It is
// safe for concurrent use.
type Reconciler struct {
	mu    sync.Mutex
	clock clockwork.Clock
	store LocalSyncStore
	cfg   Config

	awaiting      bool
	awaitingSince time.Time
	frozen        []string
	record        *ClientSyncState
	seen          map[uuid.UUID]struct{}
}

func NewReconciler(store LocalSyncStore, clock clockwork.Clock, cfg Config) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{
		clock: clock,
		store: store,
		cfg:   cfg,
		seen:  make(map[uuid.UUID]struct{}),
	}
}

// Restore replays the persisted record. Records whose display window has
// passed are deleted and the viewer starts Idle.
func (r *Reconciler) Restore(ctx context.Context) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.store.Load(ctx)
	if err != nil {
		return r.viewLocked(), fmt.Errorf("load sync state: %w", err)
	}
	if st == nil {
		return r.viewLocked(), nil
	}

	r.seen[st.DrawID] = struct{}{}
	if !r.clock.Now().Before(st.DisplayUntil) {
		log.Debug().Str("draw_id", st.DrawID.String()).Msg("persisted draw expired")
		if err := r.store.Clear(ctx); err != nil {
			return r.viewLocked(), fmt.Errorf("clear expired sync state: %w", err)
		}
		return r.viewLocked(), nil
	}

	r.record = st
	return r.viewLocked(), nil
}

// CountdownElapsed moves an Idle viewer to AwaitingDraw and freezes the grid it
// is showing. The frozen list is what Animating and Revealed display. A viewer
// that hears nothing for StaleAfter drops back to Idle.
func (r *Reconciler) CountdownElapsed(_ context.Context, live []string) View {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stateLocked() == StateIdle {
		r.awaiting = true
		r.awaitingSince = r.clock.Now()
		r.frozen = append([]string(nil), live...)
	}
	return r.viewLocked()
}

// Observe applies a draw event from either push or poll. It reports whether
// the event changed the timeline; malformed, stale, older and already seen
// events are dropped.
func (r *Reconciler) Observe(ctx context.Context, ev events.DrawCompleted) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := log.With().Str("draw_id", ev.DrawID.String()).Logger()
	if err := ev.Validate(); err != nil {
		logger.Debug().Err(err).Msg("dropping malformed draw event")
		return false, nil
	}
	if _, dup := r.seen[ev.DrawID]; dup {
		return false, nil
	}

	now := r.clock.Now()
	if now.Sub(ev.DrawTimestamp) > r.cfg.StaleAfter {
		r.seen[ev.DrawID] = struct{}{}
		logger.Debug().Time("draw_timestamp", ev.DrawTimestamp).Msg("dropping stale draw event")
		return false, nil
	}
	if r.record != nil && !ev.DrawTimestamp.After(r.record.DrawTimestamp) {
		r.seen[ev.DrawID] = struct{}{}
		return false, nil
	}
	r.seen[ev.DrawID] = struct{}{}

	displayUntil := ev.DrawTimestamp.Add(r.cfg.DisplayWindow)
	if !now.Before(displayUntil) {
		// Nothing left to show.
		return false, nil
	}

	frozen := r.frozen
	if r.stateLocked() != StateAwaitingDraw || len(frozen) == 0 {
		// Joined after the countdown: the event carries the grid.
		frozen = append([]string(nil), ev.Participants...)
	}

	st := ClientSyncState{
		DrawID:             ev.DrawID,
		Winner:             ev.WinnerDisplayName,
		Amount:             ev.Amount,
		DrawTimestamp:      ev.DrawTimestamp,
		FrozenParticipants: frozen,
		AnimationCompleted: !now.Before(ev.DrawTimestamp.Add(r.cfg.Animation)),
		DisplayUntil:       displayUntil,
	}
	if err := r.store.Save(ctx, st); err != nil {
		return false, fmt.Errorf("save sync state: %w", err)
	}

	r.record = &st
	r.awaiting = false
	r.frozen = nil
	logger.Info().
		Str("winner", st.Winner).
		Time("draw_timestamp", st.DrawTimestamp).
		Str("state", string(r.stateLocked())).
		Msg("draw observed")
	return true, nil
}

// Sync persists derived transitions: it flags the animation as completed once
// its end passes and deletes the record when the display window closes.
func (r *Reconciler) Sync(ctx context.Context) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.awaiting && r.stateLocked() == StateIdle {
		r.awaiting = false
		r.frozen = nil
	}
	if r.record == nil {
		return r.viewLocked(), nil
	}

	switch r.stateLocked() {
	case StateRevealed:
		if !r.record.AnimationCompleted {
			r.record.AnimationCompleted = true
			if err := r.store.Save(ctx, *r.record); err != nil {
				return r.viewLocked(), fmt.Errorf("save sync state: %w", err)
			}
		}
	case StateIdle:
		r.record = nil
		if err := r.store.Clear(ctx); err != nil {
			return r.viewLocked(), fmt.Errorf("clear sync state: %w", err)
		}
	}
	return r.viewLocked(), nil
}

// View returns the state derived from the current time.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// NextTransition returns when the derived state changes next, if it will
// change without outside input.
func (r *Reconciler) NextTransition() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.stateLocked() {
	case StateAnimating:
		return r.record.DrawTimestamp.Add(r.cfg.Animation), true
	case StateRevealed:
		return r.record.DisplayUntil, true
	case StateAwaitingDraw:
		return r.awaitingSince.Add(r.cfg.StaleAfter), true
	}
	return time.Time{}, false
}

func (r *Reconciler) stateLocked() State {
	if r.record != nil {
		now := r.clock.Now()
		switch {
		case !now.Before(r.record.DisplayUntil):
			// An expired record falls through to the live view.
		case now.Before(r.record.DrawTimestamp.Add(r.cfg.Animation)):
			return StateAnimating
		default:
			return StateRevealed
		}
	}
	if r.awaiting && r.clock.Now().Sub(r.awaitingSince) < r.cfg.StaleAfter {
		return StateAwaitingDraw
	}
	return StateIdle
}

func (r *Reconciler) viewLocked() View {
	state := r.stateLocked()
	v := View{State: state}

	switch state {
	case StateAwaitingDraw:
		v.Participants = append([]string(nil), r.frozen...)
	case StateAnimating, StateRevealed:
		rec := r.record
		v.DrawID = rec.DrawID
		v.Winner = rec.Winner
		v.Amount = rec.Amount
		v.DrawTimestamp = rec.DrawTimestamp
		v.AnimationEndsAt = rec.DrawTimestamp.Add(r.cfg.Animation)
		v.DisplayUntil = rec.DisplayUntil
		v.Participants = append([]string(nil), rec.FrozenParticipants...)

		now := r.clock.Now()
		if state == StateAnimating {
			v.Remaining = v.AnimationEndsAt.Sub(now)
		} else {
			v.Remaining = v.DisplayUntil.Sub(now)
		}
	}
	return v
}
