package executor

import (
	"errors"

	"github.com/mcdev12/giveaway/go/internal/models"
)

// Code classifies why a draw did not produce a winner.
type Code string

const (
	CodeAlreadyInProgress  Code = "ALREADY_IN_PROGRESS"
	CodeAlreadyDrawnToday  Code = "ALREADY_DRAWN_TODAY"
	CodeTooRecent          Code = "TOO_RECENT"
	CodeNoParticipants     Code = "NO_PARTICIPANTS"
	CodeOutsideWindow      Code = "OUTSIDE_WINDOW"
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
)

var (
	ErrAlreadyInProgress  = errors.New("draw already in progress")
	ErrAlreadyDrawnToday  = errors.New("a winner was already drawn today")
	ErrTooRecent          = errors.New("a winner was drawn less than the recent guard ago")
	ErrNoParticipants     = errors.New("no active participants")
	ErrOutsideWindow      = errors.New("outside the draw admission window")
	ErrPersistenceFailure = errors.New("draw persistence failure")

	// ErrNothingToReconcile is returned by ReconcileHistory when no draw exists yet.
	ErrNothingToReconcile = errors.New("no draw to reconcile")
)

var sentinels = map[Code]error{
	CodeAlreadyInProgress:  ErrAlreadyInProgress,
	CodeAlreadyDrawnToday:  ErrAlreadyDrawnToday,
	CodeTooRecent:          ErrTooRecent,
	CodeNoParticipants:     ErrNoParticipants,
	CodeOutsideWindow:      ErrOutsideWindow,
	CodePersistenceFailure: ErrPersistenceFailure,
}

// DrawError is returned by ExecuteDraw. errors.Is matches both the sentinel
// for Code and the wrapped cause.
type DrawError struct {
	Code     Code
	Existing *models.WinnerRecord // set for ALREADY_DRAWN_TODAY and TOO_RECENT
	Err      error
}

func newDrawError(code Code, existing *models.WinnerRecord, cause error) *DrawError {
	return &DrawError{Code: code, Existing: existing, Err: cause}
}

func (e *DrawError) Error() string {
	msg := sentinels[e.Code].Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DrawError) Unwrap() []error {
	errs := []error{sentinels[e.Code]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// CodeOf returns the draw code carried by err, or "" when err is not a DrawError.
func CodeOf(err error) Code {
	var de *DrawError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ExistingWinner returns the winner that caused an idempotency rejection.
func ExistingWinner(err error) *models.WinnerRecord {
	var de *DrawError
	if errors.As(err, &de) {
		return de.Existing
	}
	return nil
}

// IsRejection reports expected admission rejections: the scheduler logs them
// and waits, a manual caller shows them to the operator.
func IsRejection(err error) bool {
	switch CodeOf(err) {
	case CodeAlreadyInProgress, CodeAlreadyDrawnToday, CodeTooRecent, CodeOutsideWindow:
		return true
	}
	return false
}

// IsTerminal reports conditions that end the round without a retry.
func IsTerminal(err error) bool {
	return CodeOf(err) == CodeNoParticipants
}
