// Package identifier persists entity identifiers. At most one active
// identifier exists per (entity, type); every write goes through
// UpsertIfAbsent.
package identifier

import (
	"context"
	"fmt"
	"sync"

	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	"kyb/pkg/requestcontext"
)

type key struct {
	entity id.EntityID
	typ    models.IdentifierType
}

// InMemoryStore is the development and test store.
type InMemoryStore struct {
	mu     sync.RWMutex
	active map[key]*models.Identifier
	byID   map[id.IdentifierID]*models.Identifier
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		active: make(map[key]*models.Identifier),
		byID:   make(map[id.IdentifierID]*models.Identifier),
	}
}

// UpsertIfAbsent creates the identifier unless an active one of the same
// type exists. The existing row is never modified.
func (s *InMemoryStore) UpsertIfAbsent(ctx context.Context, entityID id.EntityID, typ models.IdentifierType, value string, meta models.IdentifierMeta) (models.UpsertResult, error) {
	if value == "" {
		return models.UpsertResult{}, fmt.Errorf("identifier value is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{entity: entityID, typ: typ}
	if existing, ok := s.active[k]; ok {
		return models.UpsertResult{Created: false, IdentifierID: existing.ID}, nil
	}

	now := requestcontext.Now(ctx)
	status := meta.Status
	if status == "" {
		status = models.ValidationPending
	}
	ident := &models.Identifier{
		ID:          id.NewIdentifierID(),
		EntityID:    entityID,
		Type:        typ,
		Value:       value,
		CountryCode: meta.CountryCode,
		Status:      status,
		SourceName:  meta.SourceName,
		SourceURL:   meta.SourceURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.active[k] = ident
	s.byID[ident.ID] = ident
	return models.UpsertResult{Created: true, IdentifierID: ident.ID}, nil
}

func (s *InMemoryStore) GetActive(_ context.Context, entityID id.EntityID, typ models.IdentifierType) (*models.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.active[key{entity: entityID, typ: typ}]
	if !ok {
		return nil, fmt.Errorf("identifier %s not found: %w", typ, sentinel.ErrNotFound)
	}
	cp := *ident
	return &cp, nil
}

// ListActive returns the active identifiers of an entity in report order.
func (s *InMemoryStore) ListActive(_ context.Context, entityID id.EntityID) ([]*models.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Identifier, 0, len(models.IdentifierTypes))
	for _, typ := range models.IdentifierTypes {
		if ident, ok := s.active[key{entity: entityID, typ: typ}]; ok {
			cp := *ident
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkStatus(ctx context.Context, identifierID id.IdentifierID, status models.ValidationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[identifierID]
	if !ok || ident.DeletedAt != nil {
		return fmt.Errorf("identifier %s not found: %w", identifierID, sentinel.ErrNotFound)
	}
	ident.Status = status
	ident.UpdatedAt = requestcontext.Now(ctx)
	return nil
}

// SoftDelete retires the active identifier of a type so a new one can be
// written. Identifiers are never hard-deleted.
func (s *InMemoryStore) SoftDelete(ctx context.Context, entityID id.EntityID, typ models.IdentifierType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{entity: entityID, typ: typ}
	ident, ok := s.active[k]
	if !ok {
		return fmt.Errorf("identifier %s not found: %w", typ, sentinel.ErrNotFound)
	}
	now := requestcontext.Now(ctx)
	ident.DeletedAt = &now
	ident.UpdatedAt = now
	delete(s.active, k)
	return nil
}
