package history

import (
	"context"
	"sync"
)

const defaultCapacity = 1000

// MemoryStore keeps the most recent turns in a ring.
type MemoryStore struct {
	mu    sync.RWMutex
	turns []Turn
	max   int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryStore{max: capacity}
}

func (s *MemoryStore) Save(_ context.Context, t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	if over := len(s.turns) - s.max; over > 0 {
		s.turns = append([]Turn(nil), s.turns[over:]...)
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.turns) > limit {
		start = len(s.turns) - limit
	}
	return append([]Turn(nil), s.turns[start:]...), nil
}

func (s *MemoryStore) Close() error { return nil }
