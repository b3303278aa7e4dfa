package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalSyncStore holds at most one ClientSyncState. Load returns nil when empty.
type LocalSyncStore interface {
	Load(ctx context.Context) (*ClientSyncState, error)
	Save(ctx context.Context, state ClientSyncState) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu    sync.Mutex
	state *ClientSyncState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (*ClientSyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	st := *s.state
	st.FrozenParticipants = append([]string(nil), s.state.FrozenParticipants...)
	return &st, nil
}

func (s *MemoryStore) Save(_ context.Context, state ClientSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.FrozenParticipants = append([]string(nil), state.FrozenParticipants...)
	s.state = &state
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	return nil
}

// FileStore keeps the record as a JSON file, so it survives viewer restarts.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(context.Context) (*ClientSyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync state: %w", err)
	}

	var st ClientSyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode sync state: %w", err)
	}
	return &st, nil
}

// Save writes through a temp file and rename so a crash never leaves a torn record.
func (s *FileStore) Save(_ context.Context, state ClientSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode sync state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create sync state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace sync state: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove sync state: %w", err)
	}
	return nil
}
