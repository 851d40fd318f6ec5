// Package attempt persists verification attempts. The attempt row is the
// only record of a background episode's lifecycle.
package attempt

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	attempts map[id.AttemptID]*models.VerificationAttempt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attempts: make(map[id.AttemptID]*models.VerificationAttempt)}
}

func (s *InMemoryStore) Create(_ context.Context, a *models.VerificationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; ok {
		return fmt.Errorf("attempt %s exists: %w", a.ID, sentinel.ErrConflict)
	}
	s.attempts[a.ID] = clone(a)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, attemptID id.AttemptID) (*models.VerificationAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, fmt.Errorf("attempt %s not found: %w", attemptID, sentinel.ErrNotFound)
	}
	return clone(a), nil
}

// Save writes a resolved attempt. Only a stored PENDING attempt may be
// overwritten.
func (s *InMemoryStore) Save(_ context.Context, a *models.VerificationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[a.ID]
	if !ok {
		return fmt.Errorf("attempt %s not found: %w", a.ID, sentinel.ErrNotFound)
	}
	if stored.IsTerminal() {
		return fmt.Errorf("attempt %s already %s: %w", a.ID, stored.Status, sentinel.ErrInvalidState)
	}
	s.attempts[a.ID] = clone(a)
	return nil
}

// ListByEntity returns attempts newest first.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityID id.EntityID) ([]*models.VerificationAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VerificationAttempt
	for _, a := range s.attempts {
		if a.EntityID == entityID {
			out = append(out, clone(a))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// LatestWithDocument returns the newest attempt that carries a document.
func (s *InMemoryStore) LatestWithDocument(ctx context.Context, entityID id.EntityID) (*models.VerificationAttempt, error) {
	list, _ := s.ListByEntity(ctx, entityID)
	for _, a := range list {
		if a.HasDocument() {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no document for entity %s: %w", entityID, sentinel.ErrNotFound)
}

// ListStalePending returns PENDING attempts created before cutoff.
func (s *InMemoryStore) ListStalePending(_ context.Context, cutoff time.Time) ([]*models.VerificationAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VerificationAttempt
	for _, a := range s.attempts {
		if a.Status == models.AttemptPending && a.CreatedAt.Before(cutoff) {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func sortNewestFirst(list []*models.VerificationAttempt) {
	slices.SortFunc(list, func(a, b *models.VerificationAttempt) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

func clone(a *models.VerificationAttempt) *models.VerificationAttempt {
	cp := *a
	cp.Flags = slices.Clone(a.Flags)
	if a.Extracted != nil {
		ex := *a.Extracted
		cp.Extracted = &ex
	}
	if a.Report != nil {
		r := *a.Report
		r.Entries = slices.Clone(a.Report.Entries)
		r.Flags = slices.Clone(a.Report.Flags)
		cp.Report = &r
	}
	return &cp
}
