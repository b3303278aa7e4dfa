package service

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/giveaway/go/internal/draw/executor"
	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	ServiceName = "giveaway.draw.v1.DrawService"

	ExecuteDrawProcedure      = "/" + ServiceName + "/ExecuteDraw"
	ListWinnersProcedure      = "/" + ServiceName + "/ListWinners"
	ListHistoryProcedure      = "/" + ServiceName + "/ListHistory"
	ReconcileHistoryProcedure = "/" + ServiceName + "/ReconcileHistory"
	ListAttemptsProcedure     = "/" + ServiceName + "/ListAttempts"

	// DrawErrorCodeHeader carries the executor code on failed draw calls.
	DrawErrorCodeHeader = "Draw-Error-Code"
	// ExistingDrawHeader carries the winner that caused an idempotency rejection.
	ExistingDrawHeader = "Draw-Existing-Id"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// DrawApp is the executor surface the service exposes.
type DrawApp interface {
	ExecuteDraw(ctx context.Context, trigger models.DrawTrigger) (*executor.Outcome, error)
	ReconcileHistory(ctx context.Context) (*executor.Reconciliation, error)
}

// DrawReader serves the read-only admin queries.
type DrawReader interface {
	ListWinners(ctx context.Context, limit int) ([]models.WinnerRecord, error)
	ListHistory(ctx context.Context, limit, offset int) ([]models.HistoryRecord, error)
	ListAttempts(ctx context.Context, limit int) ([]models.DrawAttempt, error)
}

// Service implements the DrawService Connect API.
type Service struct {
	app        DrawApp
	reader     DrawReader
	adminToken string
}

func NewService(app DrawApp, reader DrawReader, adminToken string) *Service {
	return &Service{
		app:        app,
		reader:     reader,
		adminToken: adminToken,
	}
}

// adminProcedures require the admin bearer token.
var adminProcedures = map[string]bool{
	ExecuteDrawProcedure:      true,
	ReconcileHistoryProcedure: true,
	ListAttemptsProcedure:     true,
}

// Handler returns the path prefix and handler to mount on a mux.
func (s *Service) Handler() (string, http.Handler) {
	opts := append(handlerCodecs(), connect.WithInterceptors(s.adminAuth()))

	mux := http.NewServeMux()
	mux.Handle(ExecuteDrawProcedure, connect.NewUnaryHandler(ExecuteDrawProcedure, s.ExecuteDraw, opts...))
	mux.Handle(ListWinnersProcedure, connect.NewUnaryHandler(ListWinnersProcedure, s.ListWinners, opts...))
	mux.Handle(ListHistoryProcedure, connect.NewUnaryHandler(ListHistoryProcedure, s.ListHistory, opts...))
	mux.Handle(ReconcileHistoryProcedure, connect.NewUnaryHandler(ReconcileHistoryProcedure, s.ReconcileHistory, opts...))
	mux.Handle(ListAttemptsProcedure, connect.NewUnaryHandler(ListAttemptsProcedure, s.ListAttempts, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) adminAuth() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if adminProcedures[req.Spec().Procedure] && !bearerMatches(req.Header().Get("Authorization"), s.adminToken) {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("admin token required"))
			}
			return next(ctx, req)
		}
	}
}

// ExecuteDraw runs a manual draw. Rejections are returned verbatim to the operator.
func (s *Service) ExecuteDraw(ctx context.Context, _ *connect.Request[ExecuteDrawRequest]) (*connect.Response[ExecuteDrawResponse], error) {
	out, err := s.app.ExecuteDraw(ctx, models.DrawTriggerManual)
	if err != nil {
		return nil, drawErrorToConnect(err)
	}
	return connect.NewResponse(outcomeToMessage(out)), nil
}

func (s *Service) ListWinners(ctx context.Context, req *connect.Request[ListWinnersRequest]) (*connect.Response[ListWinnersResponse], error) {
	winners, err := s.reader.ListWinners(ctx, pageSize(req.Msg.Limit))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListWinnersResponse{Winners: make([]Winner, len(winners))}
	for i := range winners {
		resp.Winners[i] = winnerToMessage(&winners[i])
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) ListHistory(ctx context.Context, req *connect.Request[ListHistoryRequest]) (*connect.Response[ListHistoryResponse], error) {
	if req.Msg.Offset < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("offset must not be negative"))
	}

	records, err := s.reader.ListHistory(ctx, pageSize(req.Msg.Limit), req.Msg.Offset)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListHistoryResponse{Records: make([]HistoryEntry, len(records))}
	for i, r := range records {
		resp.Records[i] = historyToMessage(r)
	}
	return connect.NewResponse(resp), nil
}

// ReconcileHistory replays the merge and clear left over by a failed draw tail.
func (s *Service) ReconcileHistory(ctx context.Context, _ *connect.Request[ReconcileHistoryRequest]) (*connect.Response[ReconcileHistoryResponse], error) {
	rec, err := s.app.ReconcileHistory(ctx)
	if errors.Is(err, executor.ErrNothingToReconcile) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, drawErrorToConnect(err)
	}
	return connect.NewResponse(&ReconcileHistoryResponse{
		DrawID:    rec.DrawID,
		Added:     rec.History.Added,
		Skipped:   rec.History.Skipped,
		Cleared:   rec.Cleared,
		Published: rec.Published,
	}), nil
}

func (s *Service) ListAttempts(ctx context.Context, req *connect.Request[ListAttemptsRequest]) (*connect.Response[ListAttemptsResponse], error) {
	attempts, err := s.reader.ListAttempts(ctx, pageSize(req.Msg.Limit))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListAttemptsResponse{Attempts: make([]Attempt, len(attempts))}
	for i, a := range attempts {
		resp.Attempts[i] = attemptToMessage(a)
	}
	return connect.NewResponse(resp), nil
}

func drawErrorToConnect(err error) *connect.Error {
	code := executor.CodeOf(err)

	var cerr *connect.Error
	switch code {
	case executor.CodeAlreadyInProgress:
		cerr = connect.NewError(connect.CodeUnavailable, err)
	case executor.CodeAlreadyDrawnToday, executor.CodeTooRecent:
		cerr = connect.NewError(connect.CodeAlreadyExists, err)
	case executor.CodeOutsideWindow:
		cerr = connect.NewError(connect.CodeFailedPrecondition, err)
	case executor.CodeNoParticipants:
		cerr = connect.NewError(connect.CodeNotFound, err)
	default:
		cerr = connect.NewError(connect.CodeInternal, err)
	}

	if code != "" {
		cerr.Meta().Set(DrawErrorCodeHeader, string(code))
	}
	if w := executor.ExistingWinner(err); w != nil {
		cerr.Meta().Set(ExistingDrawHeader, w.ID.String())
	}

	if executor.IsRejection(err) || executor.IsTerminal(err) {
		log.Info().Str("code", string(code)).Msg("draw request rejected")
	} else {
		log.Error().Err(err).Str("code", string(code)).Msg("draw request failed")
	}
	return cerr
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}
