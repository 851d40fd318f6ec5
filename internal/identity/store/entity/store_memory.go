// Package entity reads legal entities and applies registry fills. Entities
// are created by the surrounding CRUD system; Create exists for seeding.
package entity

import (
	"context"
	"fmt"
	"sync"

	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	"kyb/pkg/requestcontext"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	entities map[id.EntityID]*models.LegalEntity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entities: make(map[id.EntityID]*models.LegalEntity)}
}

func (s *InMemoryStore) Create(_ context.Context, e *models.LegalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; ok {
		return fmt.Errorf("legal entity %s exists: %w", e.ID, sentinel.ErrConflict)
	}
	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, entityID id.EntityID) (*models.LegalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("legal entity %s not found: %w", entityID, sentinel.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

// FillEmpty applies patch to empty fields only and returns the fields it
// changed.
func (s *InMemoryStore) FillEmpty(ctx context.Context, entityID id.EntityID, patch models.EntityPatch) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("legal entity %s not found: %w", entityID, sentinel.ErrNotFound)
	}
	return e.FillEmpty(patch, requestcontext.Now(ctx)), nil
}
