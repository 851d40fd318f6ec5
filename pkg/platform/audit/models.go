package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key actions on a legal
// entity. Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	Action    string
	// EntityID is the legal entity the action applies to.
	EntityID string
	// AttemptID links the event to a verification attempt when one exists.
	AttemptID string
	Subject   string
	Decision  string
	Reason    string
	RequestID string
	ActorID   string
	Details   map[string]string
}

type AuditEvent string

const (
	EventDocumentUploaded      AuditEvent = "document_uploaded"
	EventVerificationStarted   AuditEvent = "verification_started"
	EventVerificationRetrigger AuditEvent = "verification_retriggered"
	EventVerificationResolved  AuditEvent = "verification_resolved"
	EventVerificationAbandoned AuditEvent = "verification_abandoned"
	EventIdentifierAdded       AuditEvent = "identifier_added"
	EventIdentifierVerified    AuditEvent = "identifier_verified"
	EventIdentifierConflict    AuditEvent = "identifier_conflict"
	EventIdentifierRetired     AuditEvent = "identifier_retired"
	EventRegistrySnapshotSaved AuditEvent = "registry_snapshot_saved"
	EventEntityEnriched        AuditEvent = "entity_enriched"
)

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
