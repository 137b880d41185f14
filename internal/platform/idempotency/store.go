package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrKeyRequired is returned when Reserve or Release receive an empty key.
var ErrKeyRequired = errors.New("idempotency: key is required")

// Store records which side-effect deliveries already happened.
type Store interface {
	// Reserve claims key for ttl. It reports false when the key is already held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops a claim so a later attempt may reserve the key again.
	Release(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemoryStore constructs an empty MemoryStore. A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{now: clock, entries: make(map[string]time.Time)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, ErrKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.entries[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	s.sweep(now)
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrKeyRequired
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// sweep drops expired entries; callers hold mu.
func (s *MemoryStore) sweep(now time.Time) {
	for key, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, key)
		}
	}
}
