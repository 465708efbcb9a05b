package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a Store kept in process memory. It coordinates goroutines
// of a single process and backs tests that do not need a Redis server.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry), now: time.Now}
}

// lookup returns the live entry for key, dropping it if it has expired.
// The caller must hold s.mu.
func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.items[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(s.now()) {
		delete(s.items, key)
		return memoryEntry{}, false
	}
	return e, true
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	e, ok := s.lookup(key)
	s.mu.Unlock()
	return e.value, ok, nil
}

// Set implements Store.Set.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.items[key] = memoryEntry{value: value}
	s.mu.Unlock()
	return nil
}

// Del implements Store.Del.
func (s *MemoryStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Expire implements Store.Expire.
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(s.items, key)
		return nil
	}
	e.expiresAt = s.now().Add(seconds(ttl))
	s.items[key] = e
	return nil
}

// TTL implements Store.TTL.
func (s *MemoryStore) TTL(ctx context.Context, key string) (TTL, error) {
	if err := ctx.Err(); err != nil {
		return TTL{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	switch {
	case !ok:
		return TTL{Status: TTLAbsent}, nil
	case e.expiresAt.IsZero():
		return TTL{Status: TTLNoExpiry}, nil
	default:
		return TTL{Status: TTLExpiring, Remaining: e.expiresAt.Sub(s.now())}, nil
	}
}

// SetIfAbsent implements SetIfAbsenter.
func (s *MemoryStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(seconds(ttl))
	}
	s.items[key] = e
	return true, nil
}
