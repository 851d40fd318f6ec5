// Package snapshot keeps the latest registry response per (entity, source).
package snapshot

import (
	"context"
	"fmt"
	"sync"

	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
)

type key struct {
	entity id.EntityID
	source string
}

type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[key]*models.RegistrySnapshot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[key]*models.RegistrySnapshot)}
}

// Upsert supersedes any earlier snapshot from the same source.
func (s *InMemoryStore) Upsert(_ context.Context, snap *models.RegistrySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.snapshots[key{entity: snap.EntityID, source: snap.Source}] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, entityID id.EntityID, source string) (*models.RegistrySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[key{entity: entityID, source: source}]
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found: %w", source, sentinel.ErrNotFound)
	}
	cp := *snap
	return &cp, nil
}
