package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/giveaway/go/internal/models"
)

type memStore struct {
	rows       []models.HistoryRecord
	keyCalls   int
	insertErr  error
	lastLookup []string
}

func (s *memStore) ExistingHistoryKeys(_ context.Context, names []string) (map[models.HistoryKey]struct{}, error) {
	s.keyCalls++
	s.lastLookup = names
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	keys := make(map[models.HistoryKey]struct{})
	for _, r := range s.rows {
		if want[r.DisplayName] {
			keys[r.Key()] = struct{}{}
		}
	}
	return keys, nil
}

func (s *memStore) InsertHistory(_ context.Context, records []models.HistoryRecord) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.rows = append(s.rows, records...)
	return len(records), nil
}

var (
	t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = time.Date(2025, 3, 4, 18, 30, 0, 0, time.UTC)
)

func participant(name string, at time.Time) models.Participant {
	return models.Participant{ID: uuid.New(), DisplayName: name, PostalRegion: "1200", RegisteredAt: at}
}

func winnerAt(ts time.Time) *models.WinnerRecord {
	return &models.WinnerRecord{ID: uuid.New(), DisplayName: "alice", DrawTimestamp: ts, Amount: 20}
}

func TestMergeDeduplicatesByNameAndRegistration(t *testing.T) {
	store := &memStore{rows: []models.HistoryRecord{{DisplayName: "alice", RegisteredAt: t0}}}
	m := NewMerger(store)
	ctx := context.Background()

	res, err := m.Merge(ctx, []models.Participant{participant("alice", t0)}, winnerAt(t1))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if diff := cmp.Diff(MergeResult{Added: 0, Skipped: 1}, res); diff != "" {
		t.Errorf("same key (-want +got):\n%s", diff)
	}

	res, err = m.Merge(ctx, []models.Participant{participant("alice", t1)}, winnerAt(t1))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if diff := cmp.Diff(MergeResult{Added: 1, Skipped: 0}, res); diff != "" {
		t.Errorf("new registration (-want +got):\n%s", diff)
	}
	if len(store.rows) != 2 {
		t.Errorf("history rows = %d, want 2", len(store.rows))
	}
}

func TestMergeStampsDrawAndUsesOneLookup(t *testing.T) {
	store := &memStore{}
	m := NewMerger(store)
	w := winnerAt(t1)

	snapshot := []models.Participant{
		participant("alice", t0),
		participant("bob", t0),
		participant("bob", t0), // duplicate key inside one round
		participant("carol", t1),
	}
	res, err := m.Merge(context.Background(), snapshot, w)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Added != 3 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 3 added 1 skipped", res)
	}
	if store.keyCalls != 1 {
		t.Errorf("key lookups = %d, want 1", store.keyCalls)
	}
	if diff := cmp.Diff([]string{"alice", "bob", "carol"}, store.lastLookup); diff != "" {
		t.Errorf("lookup names (-want +got):\n%s", diff)
	}
	for _, r := range store.rows {
		if r.DrawID != w.ID || !r.DrawTimestamp.Equal(w.DrawTimestamp) || r.ID == uuid.Nil {
			t.Errorf("row not stamped with draw: %+v", r)
		}
	}
}

func TestMergeKeyIgnoresTimezoneAndNanos(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	store := &memStore{rows: []models.HistoryRecord{{DisplayName: "alice", RegisteredAt: t0}}}
	m := NewMerger(store)

	// Same instant as t0 with sub-microsecond noise, expressed in another zone.
	same := t0.In(loc).Add(300 * time.Nanosecond)
	res, err := m.Merge(context.Background(), []models.Participant{participant("alice", same)}, winnerAt(t1))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Added != 0 {
		t.Errorf("added = %d, want 0", res.Added)
	}
}

func TestMergeFailures(t *testing.T) {
	m := NewMerger(&memStore{insertErr: errors.New("connection reset")})
	if _, err := m.Merge(context.Background(), []models.Participant{participant("dave", t0)}, winnerAt(t1)); err == nil {
		t.Error("expected insert error")
	}
	if _, err := m.Merge(context.Background(), []models.Participant{participant("dave", t0)}, nil); err == nil {
		t.Error("expected error without winner")
	}
}

func TestMergeEmptySnapshot(t *testing.T) {
	store := &memStore{}
	res, err := NewMerger(store).Merge(context.Background(), nil, winnerAt(t1))
	if err != nil || res != (MergeResult{}) {
		t.Errorf("Merge(nil) = %+v, %v", res, err)
	}
	if store.keyCalls != 0 {
		t.Errorf("empty merge should not query the store")
	}
}
