// Package memory keeps per-(document, session) conversation histories.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperjump/pdfinsight/internal/models"
)

// Store persists conversation turns per session key.
// Append must store all given turns or none of them.
type Store interface {
	Load(ctx context.Context, key models.SessionKey) ([]models.Turn, error)
	Append(ctx context.Context, key models.SessionKey, turns ...models.Turn) error
	Delete(ctx context.Context, key models.SessionKey) error
	Keys(ctx context.Context) ([]models.SessionKey, error)
	Close() error
}

// InMemoryStore is a process-local Store. Histories are lost on restart.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[models.SessionKey][]models.Turn
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[models.SessionKey][]models.Turn)}
}

// Load returns a copy of the turns recorded for key, oldest first.
func (s *InMemoryStore) Load(_ context.Context, key models.SessionKey) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[key]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Append adds turns to key's history.
func (s *InMemoryStore) Append(_ context.Context, key models.SessionKey, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[key] = append(s.turns[key], turns...)
	return nil
}

// Delete forgets key's history.
func (s *InMemoryStore) Delete(_ context.Context, key models.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, key)
	return nil
}

// Keys lists every key with stored turns, ordered by doc id then session id.
func (s *InMemoryStore) Keys(_ context.Context) ([]models.SessionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]models.SessionKey, 0, len(s.turns))
	for k := range s.turns {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys, nil
}

// Close is a no-op for InMemoryStore.
func (s *InMemoryStore) Close() error {
	return nil
}

// SortKeys orders keys by doc id, then session id.
func SortKeys(keys []models.SessionKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DocID != keys[j].DocID {
			return keys[i].DocID < keys[j].DocID
		}
		return keys[i].SessionID < keys[j].SessionID
	})
}
