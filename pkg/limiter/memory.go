package limiter

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-process Store for tests and
// redis-less development. It is correct for a single instance only.
type MemoryStore struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	cooldowns map[string]time.Time

	// now is swappable in tests
	now func() time.Time
}

// NewMemoryStore creates a MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hits:      make(map[string][]time.Time),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	kept := s.hits[key][:0]
	for _, t := range s.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) < limit {
		kept = append(kept, now)
		s.hits[key] = kept
		return true, limit - len(kept), 0, nil
	}

	s.hits[key] = kept
	resetAfter := kept[0].Add(window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}
	return false, 0, resetAfter, nil
}

func (s *MemoryStore) SetCooldown(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[key] = s.now().Add(d)
	return nil
}

func (s *MemoryStore) CooldownRemaining(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.cooldowns[key]
	if !ok {
		return 0, nil
	}
	remaining := until.Sub(s.now())
	if remaining <= 0 {
		delete(s.cooldowns, key)
		return 0, nil
	}
	return remaining, nil
}
