package models

import (
	"time"

	id "kyb/pkg/domain"
)

// IdentifierType names a legal identifier kind. At most one active
// Identifier exists per (entity, type).
type IdentifierType string

const (
	IdentifierCompanyNumber       IdentifierType = "COMPANY_NUMBER"
	IdentifierTaxIDNational       IdentifierType = "TAX_ID_NATIONAL"
	IdentifierVAT                 IdentifierType = "VAT"
	IdentifierLEI                 IdentifierType = "LEI"
	IdentifierEInvoiceParticipant IdentifierType = "E_INVOICE_PARTICIPANT"
	IdentifierEUUniqueID          IdentifierType = "EU_UNIQUE_ID"
)

// IdentifierTypes lists every type in report order.
var IdentifierTypes = []IdentifierType{
	IdentifierCompanyNumber,
	IdentifierTaxIDNational,
	IdentifierVAT,
	IdentifierLEI,
	IdentifierEInvoiceParticipant,
	IdentifierEUUniqueID,
}

func (t IdentifierType) IsValid() bool {
	for _, known := range IdentifierTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t IdentifierType) String() string { return string(t) }

// ValidationStatus is the validation state of a stored identifier.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "PENDING"
	ValidationVerified ValidationStatus = "VERIFIED"
	ValidationFailed   ValidationStatus = "FAILED"
)

func (s ValidationStatus) IsValid() bool {
	return s == ValidationPending || s == ValidationVerified || s == ValidationFailed
}

// Identifier is one legal identifier of an entity.
//
// Invariants:
//   - at most one row with DeletedAt == nil per (EntityID, Type)
//   - Value is never empty
type Identifier struct {
	ID          id.IdentifierID  `json:"id"`
	EntityID    id.EntityID      `json:"entity_id"`
	Type        IdentifierType   `json:"type"`
	Value       string           `json:"value"`
	CountryCode string           `json:"country_code,omitempty"`
	Status      ValidationStatus `json:"status"`
	SourceName  string           `json:"source_name,omitempty"`
	SourceURL   string           `json:"source_url,omitempty"`
	DeletedAt   *time.Time       `json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (i *Identifier) IsVerified() bool {
	return i != nil && i.Status == ValidationVerified
}

func (i *Identifier) IsActive() bool {
	return i != nil && i.DeletedAt == nil
}

// IdentifierMeta carries the non-key attributes of an identifier write.
type IdentifierMeta struct {
	CountryCode string
	Status      ValidationStatus
	SourceName  string
	SourceURL   string
}

// UpsertResult reports whether UpsertIfAbsent created a row. When Created is
// false, IdentifierID refers to the row that already existed.
type UpsertResult struct {
	Created      bool
	IdentifierID id.IdentifierID
}
