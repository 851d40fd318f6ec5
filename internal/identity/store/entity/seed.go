package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
)

// Creator is satisfied by both entity stores.
type Creator interface {
	Create(ctx context.Context, e *models.LegalEntity) error
}

type seedRecord struct {
	ID                 string         `json:"id"`
	LegalName          string         `json:"legal_name"`
	LegalForm          string         `json:"legal_form"`
	Country            string         `json:"country"`
	RegistrationNumber string         `json:"registration_number"`
	Address            models.Address `json:"address"`
}

// Seed creates the legal entities listed in a JSON array. Entities that
// already exist are skipped. It returns the number created.
func Seed(ctx context.Context, store Creator, r io.Reader, now time.Time) (int, error) {
	var records []seedRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}
	created := 0
	for i, rec := range records {
		entityID, err := id.ParseEntityID(rec.ID)
		if err != nil {
			return created, fmt.Errorf("seed record %d: %w", i, err)
		}
		err = store.Create(ctx, &models.LegalEntity{
			ID:                 entityID,
			LegalName:          strings.TrimSpace(rec.LegalName),
			LegalForm:          strings.TrimSpace(rec.LegalForm),
			Country:            strings.ToUpper(strings.TrimSpace(rec.Country)),
			RegistrationNumber: strings.TrimSpace(rec.RegistrationNumber),
			Address:            rec.Address,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed record %d: %w", i, err)
		}
		created++
	}
	return created, nil
}
