package idempotency

import (
	"context"
	"sync"
	"time"
)

// memoryStore is a development-only in-memory idempotency store.
// State is lost on restart and not shared between instances.
type memoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (s *memoryStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.seen[eventID]
	return ok && s.now().Before(exp), nil
}

func (s *memoryStore) Mark(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.seen[eventID] = now.Add(s.ttl)
	if len(s.seen)%1024 == 0 {
		s.evictLocked(now)
	}
	return nil
}

func (s *memoryStore) evictLocked(now time.Time) {
	for id, exp := range s.seen {
		if !now.Before(exp) {
			delete(s.seen, id)
		}
	}
}
