package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	txcontext "kyb/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, snap *models.RegistrySnapshot) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO registry_snapshots (entity_id, source, payload, raw_response, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id, source) DO UPDATE
		SET payload = EXCLUDED.payload, raw_response = EXCLUDED.raw_response, fetched_at = EXCLUDED.fetched_at
	`, uuid.UUID(snap.EntityID), snap.Source, []byte(snap.Payload), snap.Raw, snap.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert registry snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, entityID id.EntityID, source string) (*models.RegistrySnapshot, error) {
	var (
		snap    models.RegistrySnapshot
		payload []byte
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT payload, raw_response, fetched_at FROM registry_snapshots
		WHERE entity_id = $1 AND source = $2
	`, uuid.UUID(entityID), source).Scan(&payload, &snap.Raw, &snap.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s not found: %w", source, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registry snapshot: %w", err)
	}
	snap.EntityID = entityID
	snap.Source = source
	snap.Payload = payload
	return &snap, nil
}
