package providers

import (
	"context"
	"encoding/json"

	"kyb/internal/identity/models"
)

// Source names an external authority.
type Source string

const (
	SourceKVK    Source = "kvk"
	SourceGLEIF  Source = "gleif"
	SourceVIES   Source = "vies"
	SourcePeppol Source = "peppol"
)

func (s Source) String() string { return string(s) }

// ParseSource accepts the registry names used in URLs.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceKVK, SourceGLEIF, SourceVIES, SourcePeppol:
		return Source(s), true
	}
	return "", false
}

// Kind is the typed outcome of a lookup. NotFound is never an error.
type Kind string

const (
	KindFound           Kind = "found"
	KindNotFound        Kind = "not_found"
	KindMultipleMatches Kind = "multiple_matches"
)

type Address struct {
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	// Lines holds unstructured address lines when the authority does not
	// split street and house number.
	Lines []string `json:"lines,omitempty"`
}

// Record is the normalized form of one registry entry. Clients populate
// only the fields their authority publishes.
type Record struct {
	Source             Source  `json:"source"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	LegalName          string  `json:"legal_name,omitempty"`
	LegalForm          string  `json:"legal_form,omitempty"`
	Active             bool    `json:"active"`
	Address            Address `json:"address"`
	// TaxReference is the national tax number (RSIN in the Netherlands).
	TaxReference  string `json:"tax_reference,omitempty"`
	LEI           string `json:"lei,omitempty"`
	LEIStatus     string `json:"lei_status,omitempty"`
	VATNumber     string `json:"vat_number,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Result is what every lookup returns on a completed call.
type Result struct {
	Kind       Kind     `json:"kind"`
	Record     *Record  `json:"record,omitempty"`
	Candidates []Record `json:"candidates,omitempty"`
}

func Found(r Record) Result {
	return Result{Kind: KindFound, Record: &r}
}

func NotFound() Result {
	return Result{Kind: KindNotFound}
}

func MultipleMatches(candidates []Record) Result {
	return Result{Kind: KindMultipleMatches, Candidates: candidates}
}

func (r Result) IsFound() bool { return r.Kind == KindFound && r.Record != nil }

// IdentifierLookup is implemented by every registry client. Errors are
// transport-level only and are always *ProviderError.
type IdentifierLookup interface {
	Source() Source
	LookupByIdentifier(ctx context.Context, idType models.IdentifierType, value, countryCode string) (Result, error)
}

// NameLookup is implemented by authorities that support name search.
type NameLookup interface {
	LookupByName(ctx context.Context, name, countryCode string) (Result, error)
}

// Registry is a client supporting both lookups.
type Registry interface {
	IdentifierLookup
	NameLookup
}
