package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/mcdev12/giveaway/go/internal/sqlutil"
)

const (
	historyColumns = 6
	// Postgres caps a statement at 65535 parameters.
	historyBatchSize = 1000
)

// ExistingHistoryKeys returns every (display_name, registered_at) already in
// history for names.
func (r *Repository) ExistingHistoryKeys(ctx context.Context, names []string) (map[models.HistoryKey]struct{}, error) {
	keys := make(map[models.HistoryKey]struct{})
	if len(names) == 0 {
		return keys, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT display_name, registered_at
		FROM draw_history
		WHERE display_name = ANY($1)`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to query history keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.HistoryRecord
		if err := rows.Scan(&rec.DisplayName, &rec.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan history key: %w", err)
		}
		keys[rec.Key()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history keys: %w", err)
	}
	return keys, nil
}

// InsertHistory writes records in one transaction. Rows that collide on
// (display_name, registered_at) are skipped and not counted.
func (r *Repository) InsertHistory(ctx context.Context, records []models.HistoryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	return sqlutil.RunResult(ctx, r.db, func(tx *sql.Tx) (int, error) {
		total := 0
		for start := 0; start < len(records); start += historyBatchSize {
			end := min(start+historyBatchSize, len(records))
			n, err := insertHistoryBatch(ctx, tx, records[start:end])
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	})
}

func insertHistoryBatch(ctx context.Context, tx *sql.Tx, batch []models.HistoryRecord) (int, error) {
	args := make([]any, 0, len(batch)*historyColumns)
	for _, h := range batch {
		args = append(args,
			h.ID, h.DisplayName, h.PostalRegion,
			sqlutil.UTCMicro(h.RegisteredAt), sqlutil.UTCMicro(h.DrawTimestamp), h.DrawID)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO draw_history (id, display_name, postal_region, registered_at, draw_timestamp, draw_id)
		VALUES `+valuesList(len(batch), historyColumns)+`
		ON CONFLICT (display_name, registered_at) DO NOTHING`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count inserted history: %w", err)
	}
	return int(n), nil
}

// ListHistory returns history rows newest draw first.
func (r *Repository) ListHistory(ctx context.Context, limit, offset int) ([]models.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, postal_region, registered_at, draw_timestamp, draw_id
		FROM draw_history
		ORDER BY draw_timestamp DESC, registered_at ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	out := []models.HistoryRecord{}
	for rows.Next() {
		var h models.HistoryRecord
		if err := rows.Scan(&h.ID, &h.DisplayName, &h.PostalRegion, &h.RegisteredAt, &h.DrawTimestamp, &h.DrawID); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.RegisteredAt = h.RegisteredAt.UTC()
		h.DrawTimestamp = h.DrawTimestamp.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}
