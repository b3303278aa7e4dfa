package repository

import (
	"context"
	"fmt"

	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/mcdev12/giveaway/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

func (r *Repository) RecordAttempt(ctx context.Context, a models.DrawAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO draw_attempts (id, trigger, outcome, draw_id, attempted_at, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, string(a.Trigger), a.Outcome, sqlutil.ToNullUUID(a.DrawID),
		sqlutil.UTCMicro(a.AttemptedAt), sqlutil.ToNullRawMessage(a.Details))
	if err != nil {
		return fmt.Errorf("failed to record draw attempt: %w", err)
	}
	return nil
}

// ListAttempts returns audit rows newest first.
func (r *Repository) ListAttempts(ctx context.Context, limit int) ([]models.DrawAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger, outcome, draw_id, attempted_at, details
		FROM draw_attempts
		ORDER BY attempted_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list draw attempts: %w", err)
	}
	defer rows.Close()

	out := []models.DrawAttempt{}
	for rows.Next() {
		var (
			a       models.DrawAttempt
			trigger string
			details pqtype.NullRawMessage
		)
		drawID := sqlutil.ToNullUUID(nil)
		if err := rows.Scan(&a.ID, &trigger, &a.Outcome, &drawID, &a.AttemptedAt, &details); err != nil {
			return nil, fmt.Errorf("failed to scan draw attempt: %w", err)
		}
		a.Trigger = models.DrawTrigger(trigger)
		a.DrawID = sqlutil.FromNullUUID(drawID)
		a.Details = sqlutil.FromNullRawMessage(details)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate draw attempts: %w", err)
	}
	return out, nil
}
