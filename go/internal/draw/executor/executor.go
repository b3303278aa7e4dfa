package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/mcdev12/giveaway/go/internal/draw/history"
	"github.com/mcdev12/giveaway/go/internal/draw/lock"
	"github.com/mcdev12/giveaway/go/internal/draw/schedule"
	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParticipantStore is what the executor needs from the active participant set.
type ParticipantStore interface {
	ListActiveParticipants(ctx context.Context) ([]models.Participant, error)
	ClearParticipants(ctx context.Context, ids []uuid.UUID) (int, error)
}

// WinnerStore is what the executor needs from winner persistence.
type WinnerStore interface {
	InsertWinner(ctx context.Context, w *models.WinnerRecord) error
	// FindWinnerBetween returns a winner with from <= draw_timestamp < to, or nil.
	FindWinnerBetween(ctx context.Context, from, to time.Time) (*models.WinnerRecord, error)
	// LatestWinner returns the most recent winner, or nil.
	LatestWinner(ctx context.Context) (*models.WinnerRecord, error)
}

// HistoryMerger folds a round into the permanent history.
type HistoryMerger interface {
	Merge(ctx context.Context, snapshot []models.Participant, winner *models.WinnerRecord) (history.MergeResult, error)
}

// Notifier publishes a completed draw to viewers.
type Notifier interface {
	PublishDrawCompleted(ctx context.Context, event events.DrawCompleted) error
}

// AuditRecorder stores one row per draw attempt.
type AuditRecorder interface {
	RecordAttempt(ctx context.Context, attempt models.DrawAttempt) error
}

// Config holds per-deployment draw settings.
type Config struct {
	Amount       int           `yaml:"amount"`
	RecentGuard  time.Duration `yaml:"recent_guard"`
	BypassWindow bool          `yaml:"bypass_window"`
	LockName     string        `yaml:"lock_name"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Amount:      20,
		RecentGuard: 30 * time.Minute,
		LockName:    "draw",
		LockTTL:     2 * time.Minute,
	}
}

// Dependencies wires the executor to its collaborators. Audit and Selector are optional.
type Dependencies struct {
	Participants ParticipantStore
	Winners      WinnerStore
	Merger       HistoryMerger
	Notifier     Notifier
	Audit        AuditRecorder
	Lock         lock.DistributedLock
	Policy       *schedule.Policy
	Selector     Selector
	Clock        clockwork.Clock
}

// Outcome describes a successful draw. Secondary failures after the winner was
// persisted are reported here instead of as an error, since the result stands.
type Outcome struct {
	Winner         *models.WinnerRecord
	Participants   int
	History        history.MergeResult
	HistoryErr     error
	Cleared        int
	ClearErr       error
	Published      bool
	NotifyErr      error
	WindowBypassed bool
}

// Reconciliation describes a ReconcileHistory run. Published is set when the
// draw's result was withheld by the failed run and has now gone out.
type Reconciliation struct {
	DrawID    uuid.UUID           `json:"draw_id"`
	History   history.MergeResult `json:"history"`
	Cleared   int                 `json:"cleared"`
	Published bool                `json:"published"`
	NotifyErr error               `json:"-"`
}

// Executor is the single idempotent entry point for draws.
type Executor struct {
	participants ParticipantStore
	winners      WinnerStore
	merger       HistoryMerger
	notifier     Notifier
	audit        AuditRecorder
	lock         lock.DistributedLock
	policy       *schedule.Policy
	selector     Selector
	clock        clockwork.Clock
	cfg          Config
}

// NewExecutor creates an Executor.
func NewExecutor(deps Dependencies, cfg Config) (*Executor, error) {
	switch {
	case deps.Participants == nil, deps.Winners == nil, deps.Merger == nil, deps.Notifier == nil:
		return nil, errors.New("executor requires participant, winner, merger and notifier dependencies")
	case deps.Lock == nil:
		return nil, errors.New("executor requires a lock")
	case deps.Policy == nil:
		return nil, errors.New("executor requires a schedule policy")
	case cfg.Amount <= 0:
		return nil, fmt.Errorf("award amount must be positive, got %d", cfg.Amount)
	}
	if cfg.LockName == "" {
		cfg.LockName = "draw"
	}
	if deps.Selector == nil {
		deps.Selector = NewRandomSelector()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if cfg.BypassWindow {
		log.Warn().Msg("draw admission window bypass is ENABLED; draws may run at any time")
	}

	return &Executor{
		participants: deps.Participants,
		winners:      deps.Winners,
		merger:       deps.Merger,
		notifier:     deps.Notifier,
		audit:        deps.Audit,
		lock:         deps.Lock,
		policy:       deps.Policy,
		selector:     deps.Selector,
		clock:        deps.Clock,
		cfg:          cfg,
	}, nil
}

// ExecuteDraw runs one draw attempt for trigger. On success the winner has been
// persisted; admission rejections and failures are returned as *DrawError.
func (e *Executor) ExecuteDraw(ctx context.Context, trigger models.DrawTrigger) (out *Outcome, err error) {
	if !trigger.Valid() {
		return nil, fmt.Errorf("unknown draw trigger %q", trigger)
	}

	attemptedAt := e.clock.Now()
	logger := log.With().Str("trigger", string(trigger)).Logger()
	defer func() {
		e.recordAttempt(ctx, trigger, attemptedAt, out, err)
	}()

	handle, err := e.lock.Acquire(ctx, e.cfg.LockName, e.cfg.LockTTL)
	if errors.Is(err, lock.ErrHeld) {
		logger.Info().Msg("draw rejected: already in progress")
		return nil, newDrawError(CodeAlreadyInProgress, nil, nil)
	}
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("acquire draw lock: %w", err))
	}
	defer e.release(ctx, handle, logger)

	return e.execute(ctx, logger)
}

func (e *Executor) execute(ctx context.Context, logger zerolog.Logger) (*Outcome, error) {
	now := e.clock.Now()

	dayStart := e.policy.StartOfDay(now)
	existing, err := e.winners.FindWinnerBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("check today's winner: %w", err))
	}
	if existing != nil {
		logger.Info().Str("draw_id", existing.ID.String()).Msg("draw rejected: already drawn today")
		return nil, newDrawError(CodeAlreadyDrawnToday, existing, nil)
	}

	latest, err := e.winners.LatestWinner(ctx)
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("check recent winner: %w", err))
	}
	if latest != nil && latest.DrawTimestamp.After(now.Add(-e.cfg.RecentGuard)) {
		logger.Info().Str("draw_id", latest.ID.String()).Msg("draw rejected: too recent")
		return nil, newDrawError(CodeTooRecent, latest, nil)
	}

	// Read once; every later step works on this snapshot.
	snapshot, err := e.participants.ListActiveParticipants(ctx)
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("list participants: %w", err))
	}
	if len(snapshot) == 0 {
		logger.Info().Msg("draw skipped: no participants")
		return nil, newDrawError(CodeNoParticipants, nil, nil)
	}

	bypassed := false
	if _, ok := e.policy.InAdmissionWindow(now); !ok {
		if !e.cfg.BypassWindow {
			next := e.policy.NextEligibleInstant(now)
			logger.Info().Time("next_instant", next).Msg("draw rejected: outside admission window")
			return nil, newDrawError(CodeOutsideWindow, nil, fmt.Errorf("next draw at %s", next.Format(time.RFC3339)))
		}
		bypassed = true
		logger.Warn().Time("now", now).Msg("admission window bypassed by configuration")
	}

	idx := e.selector.Pick(len(snapshot))
	if idx < 0 || idx >= len(snapshot) {
		return nil, fmt.Errorf("selector returned %d for %d participants", idx, len(snapshot))
	}
	chosen := snapshot[idx]

	winner := &models.WinnerRecord{
		ID:            uuid.New(),
		ParticipantID: chosen.ID,
		DisplayName:   chosen.DisplayName,
		DrawTimestamp: now,
		Amount:        e.cfg.Amount,
	}
	if err := e.winners.InsertWinner(ctx, winner); err != nil {
		logger.Error().Err(err).Msg("failed to persist winner, active set left untouched")
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("insert winner: %w", err))
	}

	logger = logger.With().Str("draw_id", winner.ID.String()).Logger()
	out := &Outcome{
		Winner:         winner,
		Participants:   len(snapshot),
		WindowBypassed: bypassed,
	}

	out.History, out.HistoryErr = e.merger.Merge(ctx, snapshot, winner)
	if out.HistoryErr != nil {
		// The winner stands. Keeping the active set lets ReconcileHistory replay the merge.
		logger.Error().
			Err(out.HistoryErr).
			Int("participants", len(snapshot)).
			Msg("history merge failed, active set kept for reconciliation")
	} else {
		out.Cleared, out.ClearErr = e.participants.ClearParticipants(ctx, participantIDs(snapshot))
		if out.ClearErr != nil {
			logger.Error().Err(out.ClearErr).Msg("failed to clear active participants")
		}
	}

	// Viewers re-fetch the active set on the event, so it goes out only once
	// the set is empty. ReconcileHistory publishes it otherwise.
	if out.HistoryErr == nil && out.ClearErr == nil {
		event := events.NewDrawCompleted(winner, models.DisplayNames(snapshot))
		if out.NotifyErr = e.notifier.PublishDrawCompleted(ctx, event); out.NotifyErr != nil {
			logger.Error().Err(out.NotifyErr).Msg("failed to publish draw event")
		} else {
			out.Published = true
		}
	} else {
		logger.Warn().Msg("draw event withheld until the active set is reconciled")
	}

	logger.Info().
		Str("winner", winner.DisplayName).
		Int("participants", len(snapshot)).
		Int("history_added", out.History.Added).
		Int("cleared", out.Cleared).
		Bool("published", out.Published).
		Bool("window_bypassed", bypassed).
		Msg("draw completed")

	return out, nil
}

// ReconcileHistory replays the merge and clear for participants left over from
// the latest draw, e.g. after a history merge or clear failure, and then
// publishes the result that the failed run withheld.
func (e *Executor) ReconcileHistory(ctx context.Context) (*Reconciliation, error) {
	handle, err := e.lock.Acquire(ctx, e.cfg.LockName, e.cfg.LockTTL)
	if errors.Is(err, lock.ErrHeld) {
		return nil, newDrawError(CodeAlreadyInProgress, nil, nil)
	}
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("acquire draw lock: %w", err))
	}
	logger := log.With().Str("operation", "reconcile_history").Logger()
	defer e.release(ctx, handle, logger)

	latest, err := e.winners.LatestWinner(ctx)
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("load latest winner: %w", err))
	}
	if latest == nil {
		return nil, ErrNothingToReconcile
	}

	active, err := e.participants.ListActiveParticipants(ctx)
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("list participants: %w", err))
	}

	// Only registrations that existed when the draw ran belong to it.
	var leftover []models.Participant
	for _, p := range active {
		if !p.RegisteredAt.After(latest.DrawTimestamp) {
			leftover = append(leftover, p)
		}
	}

	rec := &Reconciliation{DrawID: latest.ID}
	if len(leftover) == 0 {
		logger.Info().Str("draw_id", latest.ID.String()).Msg("nothing to reconcile")
		return rec, nil
	}

	rec.History, err = e.merger.Merge(ctx, leftover, latest)
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("merge history: %w", err))
	}
	rec.Cleared, err = e.participants.ClearParticipants(ctx, participantIDs(leftover))
	if err != nil {
		return nil, newDrawError(CodePersistenceFailure, nil, fmt.Errorf("clear participants: %w", err))
	}

	event := events.NewDrawCompleted(latest, models.DisplayNames(leftover))
	if rec.NotifyErr = e.notifier.PublishDrawCompleted(ctx, event); rec.NotifyErr != nil {
		logger.Error().Err(rec.NotifyErr).Str("draw_id", latest.ID.String()).Msg("failed to publish reconciled draw event")
	} else {
		rec.Published = true
	}

	logger.Info().
		Str("draw_id", latest.ID.String()).
		Int("history_added", rec.History.Added).
		Int("cleared", rec.Cleared).
		Bool("published", rec.Published).
		Msg("history reconciled")
	return rec, nil
}

func (e *Executor) release(ctx context.Context, h lock.LockHandle, logger zerolog.Logger) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.lock.Release(relCtx, h); err != nil {
		logger.Error().Err(err).Str("lock", h.Name).Msg("failed to release draw lock")
	}
}

func (e *Executor) recordAttempt(ctx context.Context, trigger models.DrawTrigger, at time.Time, out *Outcome, drawErr error) {
	if e.audit == nil {
		return
	}

	attempt := models.DrawAttempt{
		ID:          uuid.New(),
		Trigger:     trigger,
		AttemptedAt: at,
	}
	details := map[string]any{}
	switch {
	case drawErr == nil && out != nil:
		attempt.Outcome = "SUCCESS"
		attempt.DrawID = &out.Winner.ID
		if out.WindowBypassed {
			details["window_bypassed"] = true
		}
		if out.HistoryErr != nil {
			details["history_error"] = out.HistoryErr.Error()
		}
		if out.ClearErr != nil {
			details["clear_error"] = out.ClearErr.Error()
		}
		if out.NotifyErr != nil {
			details["notify_error"] = out.NotifyErr.Error()
		}
	default:
		attempt.Outcome = string(CodeOf(drawErr))
		if attempt.Outcome == "" {
			attempt.Outcome = "ERROR"
		}
		if existing := ExistingWinner(drawErr); existing != nil {
			attempt.DrawID = &existing.ID
		}
		if drawErr != nil {
			details["error"] = drawErr.Error()
		}
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			attempt.Details = raw
		}
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.audit.RecordAttempt(auditCtx, attempt); err != nil {
		log.Error().Err(err).Str("outcome", attempt.Outcome).Msg("failed to record draw attempt")
	}
}

func participantIDs(ps []models.Participant) []uuid.UUID {
	ids := make([]uuid.UUID, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}
