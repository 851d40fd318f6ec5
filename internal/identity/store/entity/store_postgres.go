package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kyb/internal/identity/models"
	"kyb/internal/platform/postgres"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	txcontext "kyb/pkg/platform/tx"
	"kyb/pkg/requestcontext"
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

func (s *PostgresStore) Create(ctx context.Context, e *models.LegalEntity) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO legal_entities (id, legal_name, legal_form, country, registration_number,
			street, house_number, postal_code, city, address_country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.UUID(e.ID), e.LegalName, e.LegalForm, e.Country, e.RegistrationNumber,
		e.Address.Street, e.Address.HouseNumber, e.Address.PostalCode, e.Address.City, e.Address.Country,
		e.CreatedAt, e.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("legal entity %s exists: %w", e.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert legal entity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, entityID id.EntityID) (*models.LegalEntity, error) {
	return s.get(ctx, entityID, "")
}

func (s *PostgresStore) get(ctx context.Context, entityID id.EntityID, lock string) (*models.LegalEntity, error) {
	var (
		e   models.LegalEntity
		eid uuid.UUID
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, legal_name, legal_form, country, registration_number,
			street, house_number, postal_code, city, address_country, created_at, updated_at
		FROM legal_entities WHERE id = $1 `+lock,
		uuid.UUID(entityID),
	).Scan(&eid, &e.LegalName, &e.LegalForm, &e.Country, &e.RegistrationNumber,
		&e.Address.Street, &e.Address.HouseNumber, &e.Address.PostalCode, &e.Address.City, &e.Address.Country,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("legal entity %s not found: %w", entityID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get legal entity: %w", err)
	}
	e.ID = id.EntityID(eid)
	return &e, nil
}

// FillEmpty locks the row, applies the patch in Go and writes back only
// when something changed.
func (s *PostgresStore) FillEmpty(ctx context.Context, entityID id.EntityID, patch models.EntityPatch) ([]string, error) {
	var changed []string
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		e, err := s.get(ctx, entityID, "FOR UPDATE")
		if err != nil {
			return err
		}
		changed = e.FillEmpty(patch, requestcontext.Now(ctx))
		if len(changed) == 0 {
			return nil
		}
		_, err = s.execer(ctx).ExecContext(ctx, `
			UPDATE legal_entities SET legal_name = $2, legal_form = $3,
				street = $4, house_number = $5, postal_code = $6, city = $7, address_country = $8,
				updated_at = $9
			WHERE id = $1
		`,
			uuid.UUID(e.ID), e.LegalName, e.LegalForm,
			e.Address.Street, e.Address.HouseNumber, e.Address.PostalCode, e.Address.City, e.Address.Country,
			e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update legal entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}
