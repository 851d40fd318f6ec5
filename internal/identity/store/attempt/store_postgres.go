package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

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
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const attemptColumns = `id, entity_id, identifier_type, identifier_value, method, status, extracted_data,
	mismatch_flags, document_ref, failure_reason, report, verified_by, verified_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, a *models.VerificationAttempt) error {
	enc, err := encode(a)
	if err != nil {
		return err
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO verification_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		uuid.UUID(a.ID), uuid.UUID(a.EntityID), string(a.IdentifierType), a.IdentifierValue,
		string(a.Method), string(a.Status), enc.extracted, enc.flags, a.DocumentRef,
		a.FailureReason, enc.report, a.VerifiedBy, enc.verifiedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, attemptID id.AttemptID) (*models.VerificationAttempt, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+attemptColumns+` FROM verification_attempts WHERE id = $1
	`, uuid.UUID(attemptID))
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attempt %s not found: %w", attemptID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get verification attempt: %w", err)
	}
	return a, nil
}

// Save writes a resolved attempt. The WHERE clause keeps terminal rows
// immutable even against a concurrent writer.
func (s *PostgresStore) Save(ctx context.Context, a *models.VerificationAttempt) error {
	enc, err := encode(a)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE verification_attempts SET
			identifier_value = $2, status = $3, extracted_data = $4, mismatch_flags = $5,
			failure_reason = $6, report = $7, verified_by = $8, verified_at = $9, updated_at = $10
		WHERE id = $1 AND status = 'PENDING'
	`,
		uuid.UUID(a.ID), a.IdentifierValue, string(a.Status), enc.extracted, enc.flags,
		a.FailureReason, enc.report, a.VerifiedBy, enc.verifiedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update verification attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification attempt: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, a.ID); err != nil {
			return err
		}
		return fmt.Errorf("attempt %s is not pending: %w", a.ID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityID id.EntityID) ([]*models.VerificationAttempt, error) {
	return s.list(ctx, `
		SELECT `+attemptColumns+` FROM verification_attempts
		WHERE entity_id = $1 ORDER BY created_at DESC
	`, uuid.UUID(entityID))
}

func (s *PostgresStore) LatestWithDocument(ctx context.Context, entityID id.EntityID) (*models.VerificationAttempt, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+attemptColumns+` FROM verification_attempts
		WHERE entity_id = $1 AND document_ref <> ''
		ORDER BY created_at DESC LIMIT 1
	`, uuid.UUID(entityID))
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no document for entity %s: %w", entityID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest document attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.VerificationAttempt, error) {
	return s.list(ctx, `
		SELECT `+attemptColumns+` FROM verification_attempts
		WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at
	`, cutoff)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.VerificationAttempt, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verification attempts: %w", err)
	}
	defer rows.Close()

	var out []*models.VerificationAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification attempts: %w", err)
	}
	return out, nil
}

// encoded holds the columns that need conversion before a write.
type encoded struct {
	extracted  []byte
	report     []byte
	flags      any
	verifiedAt sql.NullTime
}

func encode(a *models.VerificationAttempt) (encoded, error) {
	var enc encoded
	var err error
	if enc.extracted, err = models.MarshalExtracted(a.Extracted); err != nil {
		return enc, fmt.Errorf("marshal extracted data: %w", err)
	}
	if a.Report != nil {
		if enc.report, err = json.Marshal(a.Report); err != nil {
			return enc, fmt.Errorf("marshal report: %w", err)
		}
	}
	flags := make([]string, len(a.Flags))
	for i, f := range a.Flags {
		flags[i] = string(f)
	}
	enc.flags = pq.Array(flags)
	if a.VerifiedAt != nil {
		enc.verifiedAt = sql.NullTime{Time: *a.VerifiedAt, Valid: true}
	}
	return enc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*models.VerificationAttempt, error) {
	var (
		a                      models.VerificationAttempt
		attemptID, entityID    uuid.UUID
		idType, method, status string
		extracted, report      []byte
		flags                  []string
		verifiedAt             sql.NullTime
	)
	if err := row.Scan(&attemptID, &entityID, &idType, &a.IdentifierValue, &method, &status, &extracted,
		pq.Array(&flags), &a.DocumentRef, &a.FailureReason, &report, &a.VerifiedBy, &verifiedAt,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AttemptID(attemptID)
	a.EntityID = id.EntityID(entityID)
	a.IdentifierType = models.IdentifierType(idType)
	a.Method = models.VerificationMethod(method)
	a.Status = models.AttemptStatus(status)
	a.Flags = make([]models.MismatchFlag, len(flags))
	for i, f := range flags {
		a.Flags[i] = models.MismatchFlag(f)
	}
	if len(extracted) > 0 {
		var facts models.ExtractedFacts
		if err := json.Unmarshal(extracted, &facts); err != nil {
			return nil, fmt.Errorf("decode extracted data: %w", err)
		}
		a.Extracted = &facts
	}
	if len(report) > 0 {
		var r models.Report
		if err := json.Unmarshal(report, &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		a.Report = &r
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}
	return &a, nil
}
