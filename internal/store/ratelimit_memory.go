package store

import (
	"context"
	"sync"
	"time"
)

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store.
// Keys expire lazily against the supplied clock, mirroring Redis TTL semantics.
type RateLimitMemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]counterEntry
}

type counterEntry struct {
	value     int64
	expiresAt time.Time // zero when no TTL is set
}

// NewRateLimitMemoryStore creates a new in-memory counter store.
// A nil now uses the wall clock.
func NewRateLimitMemoryStore(now func() time.Time) *RateLimitMemoryStore {
	if now == nil {
		now = time.Now
	}

	return &RateLimitMemoryStore{
		now:     now,
		entries: make(map[string]counterEntry),
	}
}

func (s *RateLimitMemoryStore) Incr(_ context.Context, key string) (int64, error) {
	return s.add(key, 1), nil
}

func (s *RateLimitMemoryStore) Decr(_ context.Context, key string) (int64, error) {
	return s.add(key, -1), nil
}

func (s *RateLimitMemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return -2, nil
	}

	if entry.expiresAt.IsZero() {
		return -1, nil
	}

	return entry.expiresAt.Sub(s.now()), nil
}

func (s *RateLimitMemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return false, nil
	}

	entry.expiresAt = s.now().Add(ttl)
	s.entries[key] = entry

	return true, nil
}

// Value returns the current counter at key and whether the key exists.
func (s *RateLimitMemoryStore) Value(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)

	return entry.value, ok
}

func (s *RateLimitMemoryStore) add(key string, delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, _ := s.live(key)
	entry.value += delta
	s.entries[key] = entry

	return entry.value
}

// live returns the entry at key, dropping it first if it has expired.
// Callers must hold mu.
func (s *RateLimitMemoryStore) live(key string) (counterEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return counterEntry{}, false
	}

	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)

		return counterEntry{}, false
	}

	return entry, true
}
