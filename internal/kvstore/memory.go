package kvstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is the in-process Store implementation. A single mutex guards
// the map, so Update is trivially atomic.
type Memory struct {
	mu   sync.Mutex
	data map[string]memoryEntry

	// now is replaceable in tests
	now func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// SetClock replaces the time source. Used by tests to exercise expiry.
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Close is a no-op for the memory store.
func (s *Memory) Close() error {
	return nil
}

// Get returns the value for key.
func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return "", false, nil
	}
	if entry.expired(s.now()) {
		delete(s.data, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set writes value under key with no expiry.
func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryEntry{value: value}
	return nil
}

// SetTTL writes value under key with an expiry.
func (s *Memory) SetTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes key.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Update applies fn to the current value of key under the store lock.
func (s *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if ok && entry.expired(s.now()) {
		delete(s.data, key)
		entry, ok = memoryEntry{}, false
	}

	next, err := fn(entry.value, ok)
	if err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return nil
		}
		return err
	}

	// Preserve any existing expiry, matching Redis KEEPTTL semantics.
	s.data[key] = memoryEntry{value: next, expiresAt: entry.expiresAt}
	return nil
}
