package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/sentinel"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newAttempt(t *testing.T) *VerificationAttempt {
	t.Helper()
	a, err := NewVerificationAttempt(id.NewAttemptID(), id.EntityID(uuid.New()), MethodManualUpload, "doc-1", now)
	require.NoError(t, err)
	return a
}

func TestNewVerificationAttempt(t *testing.T) {
	a := newAttempt(t)
	assert.Equal(t, AttemptPending, a.Status)
	assert.Equal(t, IdentifierCompanyNumber, a.IdentifierType)
	assert.True(t, a.HasDocument())
	assert.NotNil(t, a.Flags)

	_, err := NewVerificationAttempt(id.NewAttemptID(), id.EntityID{}, MethodManualUpload, "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewVerificationAttempt(id.NewAttemptID(), id.EntityID(uuid.New()), "EMAIL", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestResolve_TerminalIsImmutable(t *testing.T) {
	a := newAttempt(t)
	later := now.Add(time.Minute)

	require.NoError(t, a.Resolve(Resolution{
		Status:          AttemptVerified,
		IdentifierValue: "12345678",
		VerifiedBy:      "system",
	}, later))
	assert.Equal(t, AttemptVerified, a.Status)
	require.NotNil(t, a.VerifiedAt)
	assert.Equal(t, later, *a.VerifiedAt)

	err := a.Resolve(Resolution{Status: AttemptFailed, FailureReason: "late"}, later)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	assert.Equal(t, AttemptVerified, a.Status)
	assert.Empty(t, a.FailureReason)
}

func TestResolve_RejectsPendingTarget(t *testing.T) {
	a := newAttempt(t)
	err := a.Resolve(Resolution{Status: AttemptPending}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestResolve_FlagsSortedAndDeduped(t *testing.T) {
	a := newAttempt(t)
	require.NoError(t, a.Resolve(Resolution{
		Status: AttemptFlagged,
		Flags:  []MismatchFlag{FlagRegistryRecordInactive, FlagEnteredNameMismatch, FlagRegistryRecordInactive},
	}, now))
	assert.Equal(t, []MismatchFlag{FlagEnteredNameMismatch, FlagRegistryRecordInactive}, a.Flags)
	assert.Nil(t, a.VerifiedAt)
}

func TestFillEmpty_NeverOverwrites(t *testing.T) {
	e := &LegalEntity{LegalName: "User Entered B.V."}
	changed := e.FillEmpty(EntityPatch{
		LegalName: "Registry Name B.V.",
		LegalForm: "BV",
		Address:   Address{Street: "Damrak", HouseNumber: "1", PostalCode: "1012 LG", City: "Amsterdam", Country: "NL"},
	}, now)

	assert.Equal(t, []string{"legal_form", "address"}, changed)
	assert.Equal(t, "User Entered B.V.", e.LegalName)
	assert.Equal(t, "BV", e.LegalForm)
	assert.Equal(t, "Amsterdam", e.Address.City)
	assert.Equal(t, now, e.UpdatedAt)

	assert.Empty(t, e.FillEmpty(EntityPatch{LegalForm: "NV", Address: Address{City: "Utrecht"}}, now))
	assert.Equal(t, "Amsterdam", e.Address.City)
}

func TestReport_OrderedByType(t *testing.T) {
	r := NewReport(id.EntityID(uuid.New()), now)
	r.Set(ReportEntry{Type: IdentifierEUUniqueID, Outcome: OutcomeAdded})
	r.Set(ReportEntry{Type: IdentifierLEI, Outcome: OutcomeNotAvailable})
	r.Set(ReportEntry{Type: IdentifierCompanyNumber, Outcome: OutcomeExists})
	r.Set(ReportEntry{Type: IdentifierLEI, Outcome: OutcomeError})

	require.Len(t, r.Entries, 3)
	assert.Equal(t, IdentifierCompanyNumber, r.Entries[0].Type)
	assert.Equal(t, IdentifierLEI, r.Entries[1].Type)
	assert.Equal(t, IdentifierEUUniqueID, r.Entries[2].Type)
	assert.Equal(t, OutcomeError, r.Outcome(IdentifierLEI))
	assert.Equal(t, Outcome(""), r.Outcome(IdentifierVAT))
}
