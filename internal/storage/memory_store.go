package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process. Used when no Redis address is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, profileID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[profileID][key]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), val...), nil
}

func (s *MemoryStore) Set(_ context.Context, profileID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[profileID]
	if !ok {
		ns = make(map[string][]byte)
		s.data[profileID] = ns
	}
	ns[key] = append([]byte(nil), value...)

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, profileID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[profileID], key)
	return nil
}
