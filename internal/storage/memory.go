package storage

import (
	"context"
	"sync"

	"blaze/pkg/platform/sentinel"
)

// InMemoryStore keeps values in a map. An optional byte quota mimics a browser
// storage limit so degraded-mode paths can be exercised.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	used   int
	quota  int
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithQuota caps the total stored bytes (keys plus values). Zero means unlimited.
func WithQuota(bytes int) InMemoryOption {
	return func(s *InMemoryStore) {
		s.quota = bytes
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{values: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, value)
}

func (s *InMemoryStore) SetIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	if err := s.setLocked(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// setLocked must be called while holding s.mu.
func (s *InMemoryStore) setLocked(key string, value []byte) error {
	used := s.used + len(key) + len(value)
	if old, ok := s.values[key]; ok {
		used -= len(key) + len(old)
	}
	if s.quota > 0 && used > s.quota {
		return sentinel.ErrQuotaExceeded
	}
	s.values[key] = append([]byte(nil), value...)
	s.used = used
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.values[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.values, key)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Clear removes all keys, like a visitor wiping site data.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string][]byte)
	s.used = 0
}
