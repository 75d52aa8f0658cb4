package database

import (
	"context"
	"sync"
)

// MemoryStore is a process-local store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.GetVersioned(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (s *MemoryStore) GetVersioned(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{Value: append([]byte(nil), e.Value...), Version: e.Version}, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{Value: append([]byte(nil), value...), Version: s.entries[key].Version + 1}
	return nil
}

func (s *MemoryStore) PutIfVersion(_ context.Context, key string, value []byte, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[key].Version != version {
		return ErrConflict
	}
	s.entries[key] = Entry{Value: append([]byte(nil), value...), Version: version + 1}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
