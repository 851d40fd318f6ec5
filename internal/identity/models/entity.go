package models

import (
	"time"

	id "kyb/pkg/domain"
)

type Address struct {
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

func (a Address) IsEmpty() bool {
	return a == Address{}
}

// LegalEntity is the organization under verification. It is owned by the
// surrounding CRUD system; enrichment only fills empty fields.
type LegalEntity struct {
	ID        id.EntityID `json:"id"`
	LegalName string      `json:"legal_name"`
	LegalForm string      `json:"legal_form"`
	Country   string      `json:"country"`
	// RegistrationNumber is the company number the applicant entered.
	RegistrationNumber string    `json:"registration_number"`
	Address            Address   `json:"address"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// EntityPatch holds registry-authoritative values. Empty fields are ignored.
type EntityPatch struct {
	LegalName string
	LegalForm string
	Address   Address
}

// FillEmpty copies patch values into fields that are currently empty and
// returns the names of the fields it changed. The address is filled as a
// unit and only when the entity has no address at all.
func (e *LegalEntity) FillEmpty(p EntityPatch, now time.Time) []string {
	var changed []string
	if e.LegalName == "" && p.LegalName != "" {
		e.LegalName = p.LegalName
		changed = append(changed, "legal_name")
	}
	if e.LegalForm == "" && p.LegalForm != "" {
		e.LegalForm = p.LegalForm
		changed = append(changed, "legal_form")
	}
	if e.Address.IsEmpty() && !p.Address.IsEmpty() {
		e.Address = p.Address
		changed = append(changed, "address")
	}
	if len(changed) > 0 {
		e.UpdatedAt = now
	}
	return changed
}
