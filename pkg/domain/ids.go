// Package domain holds typed identifiers shared across modules. Distinct
// types stop an attempt id from being passed where an entity id is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "kyb/pkg/domain-errors"
)

type (
	EntityID     uuid.UUID
	AttemptID    uuid.UUID
	IdentifierID uuid.UUID
)

func (id EntityID) String() string     { return uuid.UUID(id).String() }
func (id AttemptID) String() string    { return uuid.UUID(id).String() }
func (id IdentifierID) String() string { return uuid.UUID(id).String() }

func (id EntityID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AttemptID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id IdentifierID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func NewAttemptID() AttemptID       { return AttemptID(uuid.New()) }
func NewIdentifierID() IdentifierID { return IdentifierID(uuid.New()) }

// maxIDLength rejects oversized input before uuid.Parse sees it.
const maxIDLength = 45

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" || strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+kind)
	}
	return u, nil
}

func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID("legal entity id", s)
	return EntityID(u), err
}

func ParseAttemptID(s string) (AttemptID, error) {
	u, err := parseUUID("verification id", s)
	return AttemptID(u), err
}

func ParseIdentifierID(s string) (IdentifierID, error) {
	u, err := parseUUID("identifier id", s)
	return IdentifierID(u), err
}
