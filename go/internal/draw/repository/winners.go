package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/mcdev12/giveaway/go/internal/sqlutil"
)

const winnerColumns = `id, participant_id, display_name, draw_timestamp, amount`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWinner(row rowScanner) (*models.WinnerRecord, error) {
	var w models.WinnerRecord
	if err := row.Scan(&w.ID, &w.ParticipantID, &w.DisplayName, &w.DrawTimestamp, &w.Amount); err != nil {
		return nil, err
	}
	w.DrawTimestamp = w.DrawTimestamp.UTC()
	return &w, nil
}

func (r *Repository) InsertWinner(ctx context.Context, w *models.WinnerRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO winners (`+winnerColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.ParticipantID, w.DisplayName, sqlutil.UTCMicro(w.DrawTimestamp), w.Amount)
	if err != nil {
		return fmt.Errorf("failed to insert winner: %w", err)
	}
	return nil
}

// FindWinnerBetween returns a winner with from <= draw_timestamp < to, or nil.
func (r *Repository) FindWinnerBetween(ctx context.Context, from, to time.Time) (*models.WinnerRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+winnerColumns+`
		FROM winners
		WHERE draw_timestamp >= $1 AND draw_timestamp < $2
		ORDER BY draw_timestamp DESC
		LIMIT 1`, from.UTC(), to.UTC())
	w, err := scanWinner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find winner between %s and %s: %w", from, to, err)
	}
	return w, nil
}

// LatestWinner returns the most recent winner, or nil when none exists.
func (r *Repository) LatestWinner(ctx context.Context) (*models.WinnerRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+winnerColumns+`
		FROM winners
		ORDER BY draw_timestamp DESC
		LIMIT 1`)
	w, err := scanWinner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest winner: %w", err)
	}
	return w, nil
}

// ListWinners returns winners newest first.
func (r *Repository) ListWinners(ctx context.Context, limit int) ([]models.WinnerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+winnerColumns+`
		FROM winners
		ORDER BY draw_timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners: %w", err)
	}
	return collectWinners(rows)
}

// ListWinnersSince returns winners drawn strictly after after, oldest first.
// It backs the viewer poll fallback.
func (r *Repository) ListWinnersSince(ctx context.Context, after time.Time, limit int) ([]models.WinnerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+winnerColumns+`
		FROM winners
		WHERE draw_timestamp > $1
		ORDER BY draw_timestamp ASC
		LIMIT $2`, after.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners since %s: %w", after, err)
	}
	return collectWinners(rows)
}

func collectWinners(rows *sql.Rows) ([]models.WinnerRecord, error) {
	defer rows.Close()
	out := []models.WinnerRecord{}
	for rows.Next() {
		w, err := scanWinner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate winners: %w", err)
	}
	return out, nil
}
