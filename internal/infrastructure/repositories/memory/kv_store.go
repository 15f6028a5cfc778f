package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
)

type MemoryKeyValueStore struct {
	values map[string]string
	mu     sync.RWMutex
}

func NewMemoryKeyValueStore() ports.KeyValueStore {
	return &MemoryKeyValueStore{
		values: make(map[string]string),
	}
}

func (s *MemoryKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.values[key]
	if !exists {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (s *MemoryKeyValueStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *MemoryKeyValueStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

func (s *MemoryKeyValueStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
