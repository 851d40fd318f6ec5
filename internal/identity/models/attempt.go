package models

import (
	"encoding/json"
	"slices"
	"time"

	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/sentinel"
)

type VerificationMethod string

const (
	MethodManualUpload      VerificationMethod = "MANUAL_UPLOAD"
	MethodManualTrigger     VerificationMethod = "MANUAL_TRIGGER"
	MethodApplicationUpload VerificationMethod = "APPLICATION_UPLOAD"
)

func (m VerificationMethod) IsValid() bool {
	return m == MethodManualUpload || m == MethodManualTrigger || m == MethodApplicationUpload
}

type AttemptStatus string

const (
	AttemptPending  AttemptStatus = "PENDING"
	AttemptVerified AttemptStatus = "VERIFIED"
	AttemptFlagged  AttemptStatus = "FLAGGED"
	AttemptFailed   AttemptStatus = "FAILED"
)

func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptVerified || s == AttemptFlagged || s == AttemptFailed
}

// MismatchFlag is a reconciliation or registry finding attached to an attempt.
type MismatchFlag string

const (
	FlagEnteredNumberMismatch  MismatchFlag = "entered_number_mismatch"
	FlagEnteredNameMismatch    MismatchFlag = "entered_name_mismatch"
	FlagRegistryRecordInactive MismatchFlag = "registry_record_inactive"
	FlagRegistryNameMismatch   MismatchFlag = "registry_name_mismatch"
)

// FailureAbandoned is the failure reason for attempts found PENDING after a
// restart.
const FailureAbandoned = "abandoned"

// VerificationAttempt records one verification episode.
//
// Invariants:
//   - created PENDING
//   - PENDING moves to exactly one of VERIFIED, FLAGGED or FAILED
//   - once terminal, no field changes
type VerificationAttempt struct {
	ID              id.AttemptID       `json:"id"`
	EntityID        id.EntityID        `json:"entity_id"`
	IdentifierType  IdentifierType     `json:"identifier_type"`
	IdentifierValue string             `json:"identifier_value,omitempty"`
	Method          VerificationMethod `json:"method"`
	Status          AttemptStatus      `json:"status"`
	Extracted       *ExtractedFacts    `json:"extracted_data,omitempty"`
	Flags           []MismatchFlag     `json:"mismatch_flags"`
	DocumentRef     string             `json:"document_ref,omitempty"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	Report          *Report            `json:"report,omitempty"`
	VerifiedBy      string             `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time         `json:"verified_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewVerificationAttempt starts a PENDING attempt against the company number.
func NewVerificationAttempt(attemptID id.AttemptID, entityID id.EntityID, method VerificationMethod, documentRef string, now time.Time) (*VerificationAttempt, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "entity id is required")
	}
	if !method.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid verification method")
	}
	return &VerificationAttempt{
		ID:             attemptID,
		EntityID:       entityID,
		IdentifierType: IdentifierCompanyNumber,
		Method:         method,
		Status:         AttemptPending,
		Flags:          []MismatchFlag{},
		DocumentRef:    documentRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (a *VerificationAttempt) IsTerminal() bool {
	return a.Status.IsTerminal()
}

func (a *VerificationAttempt) HasDocument() bool {
	return a.DocumentRef != ""
}

// Resolution is the terminal outcome written onto an attempt.
type Resolution struct {
	Status          AttemptStatus
	IdentifierValue string
	Extracted       *ExtractedFacts
	Flags           []MismatchFlag
	FailureReason   string
	Report          *Report
	VerifiedBy      string
}

// Resolve moves a PENDING attempt to a terminal status. Resolving a terminal
// attempt returns sentinel.ErrInvalidState.
func (a *VerificationAttempt) Resolve(r Resolution, now time.Time) error {
	if a.IsTerminal() {
		return sentinel.ErrInvalidState
	}
	if !r.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "resolution status must be terminal")
	}
	a.Status = r.Status
	if r.IdentifierValue != "" {
		a.IdentifierValue = r.IdentifierValue
	}
	if r.Extracted != nil {
		a.Extracted = r.Extracted
	}
	a.Flags = SortFlags(r.Flags)
	a.FailureReason = r.FailureReason
	a.Report = r.Report
	a.UpdatedAt = now
	if r.Status == AttemptVerified {
		a.VerifiedBy = r.VerifiedBy
		a.VerifiedAt = &now
	}
	return nil
}

// SortFlags returns a deduplicated, sorted, non-nil copy.
func SortFlags(flags []MismatchFlag) []MismatchFlag {
	out := make([]MismatchFlag, 0, len(flags))
	for _, f := range flags {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return out
}

// ExtractedFacts are the facts read from a filing document. A nil field
// means the document did not state it.
type ExtractedFacts struct {
	CompanyName        *string `json:"company_name"`
	RegistrationNumber *string `json:"registration_number"`
}

func (f *ExtractedFacts) IsEmpty() bool {
	return f == nil || (f.CompanyName == nil && f.RegistrationNumber == nil)
}

// MarshalExtracted encodes facts for a JSONB column; nil stays SQL NULL.
func MarshalExtracted(f *ExtractedFacts) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}
