// Package derivation computes identifiers that follow mechanically from a
// verified one: VAT numbers from a national tax reference, and the
// EU-wide unique id from a company number.
package derivation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

// VATScheme produces VAT candidates from a national tax reference, in the
// order they should be tried.
type VATScheme interface {
	Candidates(taxReference string) []string
}

// EUIDScheme composes the EU-wide unique id from a company number.
type EUIDScheme interface {
	Compose(companyNumber string) (string, error)
}

var rsinPattern = regexp.MustCompile(`^[0-9]{9}$`)

// DutchVAT derives from the RSIN. B01 is the standard suffix; members of a
// fiscal unity are numbered B02 and up.
type DutchVAT struct{}

func (DutchVAT) Candidates(rsin string) []string {
	rsin = pstrings.Compact(rsin)
	if !rsinPattern.MatchString(rsin) {
		return nil
	}
	return []string{"NL" + rsin + "B01", "NL" + rsin + "B02"}
}

var kvkPattern = regexp.MustCompile(`^[0-9]{8}$`)

// DutchEUID uses the Handelsregister authority code NHR.
type DutchEUID struct{}

func (DutchEUID) Compose(kvk string) (string, error) {
	kvk = pstrings.Compact(kvk)
	if !kvkPattern.MatchString(kvk) {
		return "", fmt.Errorf("company number %q is not a KVK number", kvk)
	}
	return "NL" + "NHR" + "." + kvk, nil
}

// Result is the outcome of one derivation.
type Result struct {
	Outcome models.Outcome
	Value   string
	Message string
	// Record is the validator's record for the accepted candidate.
	Record *providers.Record
}

func notAvailable(format string, args ...any) Result {
	return Result{Outcome: models.OutcomeNotAvailable, Message: fmt.Sprintf(format, args...)}
}

// Engine holds the per-country scheme tables and the VAT validator.
type Engine struct {
	vat        providers.IdentifierLookup
	vatSchemes map[string]VATScheme
	euid       map[string]EUIDScheme
}

type Option func(*Engine)

// WithVATScheme registers or replaces the VAT scheme of a country.
func WithVATScheme(country string, s VATScheme) Option {
	return func(e *Engine) {
		e.vatSchemes[strings.ToUpper(country)] = s
	}
}

// WithEUIDScheme registers or replaces the EUID scheme of a country.
func WithEUIDScheme(country string, s EUIDScheme) Option {
	return func(e *Engine) {
		e.euid[strings.ToUpper(country)] = s
	}
}

// New returns an engine with the Dutch schemes registered.
func New(vatValidator providers.IdentifierLookup, opts ...Option) *Engine {
	e := &Engine{
		vat:        vatValidator,
		vatSchemes: map[string]VATScheme{"NL": DutchVAT{}},
		euid:       map[string]EUIDScheme{"NL": DutchEUID{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeriveVAT validates each candidate in order and returns the first valid
// one. The tax reference must exist and be VERIFIED. A transport error on
// any candidate ends the derivation with OutcomeError rather than trying
// the next suffix.
func (e *Engine) DeriveVAT(ctx context.Context, country string, taxRef *models.Identifier) Result {
	if taxRef == nil {
		return notAvailable("no national tax reference on record")
	}
	if !taxRef.IsVerified() {
		return notAvailable("national tax reference is %s, not VERIFIED", strings.ToLower(string(taxRef.Status)))
	}
	scheme, ok := e.vatSchemes[strings.ToUpper(country)]
	if !ok {
		return notAvailable("no VAT derivation scheme for country %s", country)
	}
	candidates := scheme.Candidates(taxRef.Value)
	if len(candidates) == 0 {
		return notAvailable("tax reference %q does not fit the %s VAT scheme", taxRef.Value, country)
	}

	for _, candidate := range candidates {
		res, err := e.vat.LookupByIdentifier(ctx, models.IdentifierVAT, candidate, country)
		if err != nil {
			return Result{
				Outcome: models.OutcomeError,
				Message: fmt.Sprintf("VAT validation of %s failed: %v", candidate, err),
			}
		}
		if res.IsFound() {
			return Result{
				Outcome: models.OutcomeAdded,
				Value:   candidate,
				Message: "derived from tax reference and validated",
				Record:  res.Record,
			}
		}
	}
	return notAvailable("no derived VAT candidate is valid (%s)", strings.Join(candidates, ", "))
}

// DeriveEUID composes the EU-wide unique id. It requires a VERIFIED
// company number and makes no external call.
func (e *Engine) DeriveEUID(country string, companyNumber *models.Identifier) Result {
	if companyNumber == nil {
		return notAvailable("no company number on record")
	}
	if !companyNumber.IsVerified() {
		return notAvailable("company number is not VERIFIED")
	}
	scheme, ok := e.euid[strings.ToUpper(country)]
	if !ok {
		return notAvailable("no EUID scheme for country %s", country)
	}
	value, err := scheme.Compose(companyNumber.Value)
	if err != nil {
		return notAvailable("%v", err)
	}
	return Result{Outcome: models.OutcomeAdded, Value: value, Message: "derived from company number"}
}
