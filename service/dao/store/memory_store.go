package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/viant/kernsim/service/dao"
)

// MemoryStore is a generic in-memory implementation of dao.Service with an
// optional fixed capacity.  List returns records ordered by key so callers
// observe a deterministic order.
type MemoryStore[K cmp.Ordered, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	capacity    int
}

// NewMemoryStore creates a new MemoryStore.  A capacity of zero means
// unbounded; otherwise Save of a new key fails with dao.ErrFull once
// capacity records are stored.
func NewMemoryStore[K cmp.Ordered, T any](keySelector func(*T) K, capacity int) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		capacity:    capacity,
	}
}

// Save stores or overwrites a record.
func (s *MemoryStore[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok && s.capacity > 0 && len(s.records) >= s.capacity {
		return dao.ErrFull
	}
	s.records[key] = v
	return nil
}

// Load returns a record by key.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return v, nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns all stored records in key order.  Filtering is left to the
// owning table, which knows how to read its entities.
func (s *MemoryStore[K, T]) List(_ context.Context, _ ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := lo.Keys(s.records)
	slices.Sort(keys)
	out := make([]*T, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.records[key])
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Cap returns the configured capacity, zero when unbounded.
func (s *MemoryStore[K, T]) Cap() int {
	return s.capacity
}
