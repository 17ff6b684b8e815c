package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
)

type memoryEntry struct {
	value     []byte
	version   int64
	expiresAt time.Time
}

// memoryStore mirrors the redis store's contract in-process. It backs tests
// and redis-less deployments.
type memoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveEntry(key)
	if !ok {
		return nil, 0, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, e.version, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(0)
	if e, ok := s.liveEntry(key); ok {
		current = e.version
	}
	if current != expectedVersion {
		return 0, fmt.Errorf("%w: key %s expected version %d, have %d", apperrors.ErrVersionConflict, key, expectedVersion, current)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	next := current + 1
	entry := memoryEntry{value: stored, version: next}
	if s.ttl > 0 {
		entry.expiresAt = time.Now().Add(s.ttl)
	}
	s.entries[key] = entry
	return next, nil
}

func (s *memoryStore) Close() error { return nil }

// liveEntry returns the entry unless it is missing or past its TTL. Caller
// holds the lock.
func (s *memoryStore) liveEntry(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}
