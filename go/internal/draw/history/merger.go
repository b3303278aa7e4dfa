package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/giveaway/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Store is what the merger needs from persistence.
type Store interface {
	// ExistingHistoryKeys returns the keys already recorded for any of names,
	// in a single round trip.
	ExistingHistoryKeys(ctx context.Context, names []string) (map[models.HistoryKey]struct{}, error)
	// InsertHistory inserts records and returns how many rows were written.
	InsertHistory(ctx context.Context, records []models.HistoryRecord) (int, error)
}

// MergeResult reports what a merge changed.
type MergeResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Merger folds a round's participants into the permanent history log.
type Merger struct {
	store Store
}

// NewMerger creates a Merger.
func NewMerger(store Store) *Merger {
	return &Merger{store: store}
}

// Merge appends every snapshot participant whose (display name, registration
// time) pair is not yet in history, stamped with the winner's draw.
func (m *Merger) Merge(ctx context.Context, snapshot []models.Participant, winner *models.WinnerRecord) (MergeResult, error) {
	if winner == nil || winner.ID == uuid.Nil {
		return MergeResult{}, errors.New("merge requires a persisted winner")
	}
	if len(snapshot) == 0 {
		return MergeResult{}, nil
	}

	names := uniqueNames(snapshot)
	existing, err := m.store.ExistingHistoryKeys(ctx, names)
	if err != nil {
		return MergeResult{}, fmt.Errorf("failed to fetch history keys: %w", err)
	}

	fresh := Diff(snapshot, existing)
	for i := range fresh {
		fresh[i].ID = uuid.New()
		fresh[i].DrawID = winner.ID
		fresh[i].DrawTimestamp = winner.DrawTimestamp
	}

	result := MergeResult{Skipped: len(snapshot) - len(fresh)}
	if len(fresh) == 0 {
		return result, nil
	}

	added, err := m.store.InsertHistory(ctx, fresh)
	if err != nil {
		return result, fmt.Errorf("failed to insert history: %w", err)
	}
	result.Added = added
	result.Skipped += len(fresh) - added

	log.Info().
		Str("draw_id", winner.ID.String()).
		Int("added", result.Added).
		Int("skipped", result.Skipped).
		Msg("history merged")

	return result, nil
}

// Diff returns history rows for participants whose key is not in existing.
// Duplicates inside snapshot collapse to the first occurrence.
func Diff(snapshot []models.Participant, existing map[models.HistoryKey]struct{}) []models.HistoryRecord {
	seen := make(map[models.HistoryKey]struct{}, len(snapshot))
	var out []models.HistoryRecord
	for _, p := range snapshot {
		key := p.HistoryKey()
		if _, ok := existing[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.HistoryRecord{
			DisplayName:  p.DisplayName,
			PostalRegion: p.PostalRegion,
			RegisteredAt: p.RegisteredAt,
		})
	}
	return out
}

func uniqueNames(snapshot []models.Participant) []string {
	seen := make(map[string]struct{}, len(snapshot))
	names := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		if _, ok := seen[p.DisplayName]; ok {
			continue
		}
		seen[p.DisplayName] = struct{}{}
		names = append(names, p.DisplayName)
	}
	return names
}
