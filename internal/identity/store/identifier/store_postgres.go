package identifier

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
	"kyb/pkg/requestcontext"
)

// PostgresStore relies on the identifiers_active_entity_type partial
// unique index for the one-active-row invariant.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const identifierColumns = `id, entity_id, type, value, country_code, status, source_name, source_url, deleted_at, created_at, updated_at`

// UpsertIfAbsent inserts with ON CONFLICT DO NOTHING. When the insert is
// skipped the existing active row's id is returned with Created=false.
func (s *PostgresStore) UpsertIfAbsent(ctx context.Context, entityID id.EntityID, typ models.IdentifierType, value string, meta models.IdentifierMeta) (models.UpsertResult, error) {
	if value == "" {
		return models.UpsertResult{}, fmt.Errorf("identifier value is required")
	}
	status := meta.Status
	if status == "" {
		status = models.ValidationPending
	}
	now := requestcontext.Now(ctx)

	var newID uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO identifiers (id, entity_id, type, value, country_code, status, source_name, source_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (entity_id, type) WHERE deleted_at IS NULL DO NOTHING
		RETURNING id
	`,
		uuid.New(),
		uuid.UUID(entityID),
		string(typ),
		value,
		meta.CountryCode,
		string(status),
		meta.SourceName,
		meta.SourceURL,
		now,
	).Scan(&newID)
	if err == nil {
		return models.UpsertResult{Created: true, IdentifierID: id.IdentifierID(newID)}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.UpsertResult{}, fmt.Errorf("insert identifier: %w", err)
	}

	var existingID uuid.UUID
	err = s.execer(ctx).QueryRowContext(ctx, `
		SELECT id FROM identifiers
		WHERE entity_id = $1 AND type = $2 AND deleted_at IS NULL
	`, uuid.UUID(entityID), string(typ)).Scan(&existingID)
	if errors.Is(err, sql.ErrNoRows) {
		// The conflicting row was retired between the two statements.
		return models.UpsertResult{}, fmt.Errorf("identifier %s changed concurrently: %w", typ, sentinel.ErrConflict)
	}
	if err != nil {
		return models.UpsertResult{}, fmt.Errorf("select existing identifier: %w", err)
	}
	return models.UpsertResult{Created: false, IdentifierID: id.IdentifierID(existingID)}, nil
}

func (s *PostgresStore) GetActive(ctx context.Context, entityID id.EntityID, typ models.IdentifierType) (*models.Identifier, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+identifierColumns+` FROM identifiers
		WHERE entity_id = $1 AND type = $2 AND deleted_at IS NULL
	`, uuid.UUID(entityID), string(typ))
	ident, err := scanIdentifier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identifier %s not found: %w", typ, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get identifier: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, entityID id.EntityID) ([]*models.Identifier, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+identifierColumns+` FROM identifiers
		WHERE entity_id = $1 AND deleted_at IS NULL
		ORDER BY array_position(ARRAY['COMPANY_NUMBER','TAX_ID_NATIONAL','VAT','LEI','E_INVOICE_PARTICIPANT','EU_UNIQUE_ID'], type)
	`, uuid.UUID(entityID))
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}
	defer rows.Close()

	var out []*models.Identifier
	for rows.Next() {
		ident, err := scanIdentifier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkStatus(ctx context.Context, identifierID id.IdentifierID, status models.ValidationStatus) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE identifiers SET status = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`, uuid.UUID(identifierID), string(status), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("update identifier status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identifier status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("identifier %s not found: %w", identifierID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, entityID id.EntityID, typ models.IdentifierType) error {
	now := requestcontext.Now(ctx)
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE identifiers SET deleted_at = $3, updated_at = $3
		WHERE entity_id = $1 AND type = $2 AND deleted_at IS NULL
	`, uuid.UUID(entityID), string(typ), now)
	if err != nil {
		return fmt.Errorf("soft delete identifier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("identifier %s not found: %w", typ, sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentifier(row scanner) (*models.Identifier, error) {
	var (
		ident        models.Identifier
		identID, ent uuid.UUID
		typ, status  string
		deletedAt    sql.NullTime
	)
	if err := row.Scan(&identID, &ent, &typ, &ident.Value, &ident.CountryCode, &status,
		&ident.SourceName, &ident.SourceURL, &deletedAt, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
		return nil, err
	}
	ident.ID = id.IdentifierID(identID)
	ident.EntityID = id.EntityID(ent)
	ident.Type = models.IdentifierType(typ)
	ident.Status = models.ValidationStatus(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		ident.DeletedAt = &t
	}
	return &ident, nil
}
