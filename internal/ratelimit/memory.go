package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in a process-local map. Counters are lost on
// restart and are not shared between instances, so it is only suitable for
// a single-process deployment. Expired entries are swept at most once per
// sweep interval, during a Hit.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*entry
	sweep     time.Duration
	lastSweep time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		sweep:   sweepInterval,
	}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweep > 0 && now.Sub(s.lastSweep) >= s.sweep {
		for k, e := range s.entries {
			if !now.Before(e.resetAt) {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
