package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
)

func TestInMemoryUpsertSupersedes(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	entityID := id.EntityID(uuid.New())
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, &models.RegistrySnapshot{EntityID: entityID, Source: "kvk", Payload: json.RawMessage(`{"v":1}`), FetchedAt: t0}))
	require.NoError(t, store.Upsert(ctx, &models.RegistrySnapshot{EntityID: entityID, Source: "kvk", Payload: json.RawMessage(`{"v":2}`), FetchedAt: t0.Add(time.Hour)}))

	got, err := store.Get(ctx, entityID, "kvk")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))
	assert.Equal(t, t0.Add(time.Hour), got.FetchedAt)

	_, err = store.Get(ctx, entityID, "gleif")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresUpsertAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgres(db)

	entityID := uuid.New()
	fetched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := []byte(`{"legal_name":"ACME"}`)
	raw := []byte(`{"naam":"ACME"}`)

	mock.ExpectExec("INSERT INTO registry_snapshots (.+) ON CONFLICT \\(entity_id, source\\) DO UPDATE").
		WithArgs(entityID, "kvk", payload, raw, fetched).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT payload, raw_response, fetched_at FROM registry_snapshots").
		WithArgs(entityID, "kvk").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "raw_response", "fetched_at"}).AddRow(payload, raw, fetched))

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, &models.RegistrySnapshot{
		EntityID: id.EntityID(entityID), Source: "kvk", Payload: payload, Raw: raw, FetchedAt: fetched,
	}))
	got, err := store.Get(ctx, id.EntityID(entityID), "kvk")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got.Payload))
	assert.Equal(t, raw, got.Raw)
	assert.NoError(t, mock.ExpectationsWereMet())
}
