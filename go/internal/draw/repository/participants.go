package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/giveaway/go/internal/models"
)

func (r *Repository) ListActiveParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, postal_region, registered_at
		FROM participants
		ORDER BY registered_at, display_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.PostalRegion, &p.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return out, nil
}

// ClearParticipants deletes exactly ids. Registrations that arrived after the
// snapshot was taken survive into the next round.
func (r *Repository) ClearParticipants(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ANY($1::uuid[])`, pq.Array(strIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to clear participants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared participants: %w", err)
	}
	return int(n), nil
}

func (r *Repository) CountActiveParticipants(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM participants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return n, nil
}
