// Package reconcile compares declared entity facts with facts extracted
// from a filing and with registry records, and derives attempt status.
package reconcile

import (
	"strings"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

// Facts is one side of a comparison. Nil means "not stated".
type Facts struct {
	Name               *string
	RegistrationNumber *string
}

// Declared builds Facts from the values the applicant entered. Empty
// values are treated as not stated.
func Declared(name, number string) Facts {
	var f Facts
	if strings.TrimSpace(name) != "" {
		f.Name = &name
	}
	if strings.TrimSpace(number) != "" {
		f.RegistrationNumber = &number
	}
	return f
}

func FromExtracted(e *models.ExtractedFacts) Facts {
	if e == nil {
		return Facts{}
	}
	return Facts{Name: e.CompanyName, RegistrationNumber: e.RegistrationNumber}
}

// Compare returns the mismatch flags between declared and extracted facts.
// A field missing on either side is not compared.
func Compare(declared, extracted Facts) []models.MismatchFlag {
	flags := []models.MismatchFlag{}
	if declared.RegistrationNumber != nil && extracted.RegistrationNumber != nil &&
		!NumbersMatch(*declared.RegistrationNumber, *extracted.RegistrationNumber) {
		flags = append(flags, models.FlagEnteredNumberMismatch)
	}
	if declared.Name != nil && extracted.Name != nil &&
		!NamesMatch(*declared.Name, *extracted.Name) {
		flags = append(flags, models.FlagEnteredNameMismatch)
	}
	return flags
}

// NormalizeNumber strips whitespace and hyphens and upper-cases.
func NormalizeNumber(s string) string {
	return pstrings.Compact(s)
}

func NumbersMatch(a, b string) bool {
	return NormalizeNumber(a) == NormalizeNumber(b)
}

var nameStripper = strings.NewReplacer(".", "", ",", "", "-", "")

// NormalizeName lower-cases, strips '.', ',' and '-' and collapses
// whitespace.
func NormalizeName(s string) string {
	return pstrings.CollapseSpace(nameStripper.Replace(strings.ToLower(s)))
}

// NamesMatch succeeds when the normalized names are equal or one contains
// the other, so "Acme Holding B.V." matches "Acme Holding".
func NamesMatch(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return na == nb
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// RegistryOutcome is the result of the primary company-registry check.
type RegistryOutcome string

const (
	RegistryVerified RegistryOutcome = "verified"
	RegistryFlagged  RegistryOutcome = "flagged"
	RegistryNotFound RegistryOutcome = "not_found"
	RegistryError    RegistryOutcome = "error"
	// RegistrySkipped means no company number was known to look up.
	RegistrySkipped RegistryOutcome = "skipped"
)

// RegistryCheck is the primary registry verdict with any non-fatal flags.
type RegistryCheck struct {
	Outcome RegistryOutcome
	Flags   []models.MismatchFlag
}

// CheckRegistryRecord validates a found record against the declared name.
// An inactive record or a differing registry name is flagged, not failed.
func CheckRegistryRecord(declaredName string, rec *providers.Record) RegistryCheck {
	if rec == nil {
		return RegistryCheck{Outcome: RegistryNotFound}
	}
	var flags []models.MismatchFlag
	if !rec.Active {
		flags = append(flags, models.FlagRegistryRecordInactive)
	}
	if strings.TrimSpace(declaredName) != "" && rec.LegalName != "" && !NamesMatch(declaredName, rec.LegalName) {
		flags = append(flags, models.FlagRegistryNameMismatch)
	}
	if len(flags) > 0 {
		return RegistryCheck{Outcome: RegistryFlagged, Flags: flags}
	}
	return RegistryCheck{Outcome: RegistryVerified}
}

// DeriveStatus applies, in order: any reconciliation flag is FLAGGED; a
// clean registry verification is VERIFIED; registry flags are FLAGGED;
// anything else is FAILED.
func DeriveStatus(reconciliation []models.MismatchFlag, registry RegistryCheck) models.AttemptStatus {
	switch {
	case len(reconciliation) > 0:
		return models.AttemptFlagged
	case registry.Outcome == RegistryVerified:
		return models.AttemptVerified
	case registry.Outcome == RegistryFlagged:
		return models.AttemptFlagged
	default:
		return models.AttemptFailed
	}
}

// MergeFlags combines reconciliation and registry flags into the sorted
// set stored on the attempt.
func MergeFlags(reconciliation []models.MismatchFlag, registry RegistryCheck) []models.MismatchFlag {
	all := make([]models.MismatchFlag, 0, len(reconciliation)+len(registry.Flags))
	all = append(all, reconciliation...)
	all = append(all, registry.Flags...)
	return models.SortFlags(all)
}
