// Package service runs verification episodes and enrichment for legal
// entities: document extraction, reconciliation, registry lookups,
// identifier derivation and idempotent persistence.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"kyb/internal/derivation"
	"kyb/internal/documents"
	"kyb/internal/enrichment/metrics"
	"kyb/internal/extraction"
	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/audit"
)

// IdentifierStore is the only shared mutable resource of an episode. All
// episode writes go through UpsertIfAbsent; SoftDelete is operator only.
type IdentifierStore interface {
	UpsertIfAbsent(ctx context.Context, entityID id.EntityID, typ models.IdentifierType, value string, meta models.IdentifierMeta) (models.UpsertResult, error)
	GetActive(ctx context.Context, entityID id.EntityID, typ models.IdentifierType) (*models.Identifier, error)
	ListActive(ctx context.Context, entityID id.EntityID) ([]*models.Identifier, error)
	MarkStatus(ctx context.Context, identifierID id.IdentifierID, status models.ValidationStatus) error
	SoftDelete(ctx context.Context, entityID id.EntityID, typ models.IdentifierType) error
}

type AttemptStore interface {
	Create(ctx context.Context, a *models.VerificationAttempt) error
	Get(ctx context.Context, attemptID id.AttemptID) (*models.VerificationAttempt, error)
	Save(ctx context.Context, a *models.VerificationAttempt) error
	ListByEntity(ctx context.Context, entityID id.EntityID) ([]*models.VerificationAttempt, error)
	LatestWithDocument(ctx context.Context, entityID id.EntityID) (*models.VerificationAttempt, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.VerificationAttempt, error)
}

type EntityStore interface {
	Get(ctx context.Context, entityID id.EntityID) (*models.LegalEntity, error)
	FillEmpty(ctx context.Context, entityID id.EntityID, patch models.EntityPatch) ([]string, error)
}

type SnapshotStore interface {
	Upsert(ctx context.Context, snap *models.RegistrySnapshot) error
	Get(ctx context.Context, entityID id.EntityID, source string) (*models.RegistrySnapshot, error)
}

// Extractor turns a filing document into facts.
type Extractor interface {
	Extract(ctx context.Context, doc extraction.Document) (*models.ExtractedFacts, error)
}

// AuditPublisher records audit events. Failures never fail the caller.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Stores groups the persistence ports.
type Stores struct {
	Identifiers IdentifierStore
	Attempts    AttemptStore
	Entities    EntityStore
	Snapshots   SnapshotStore
}

// Registries groups the external authorities. Company registries are keyed
// by ISO country code.
type Registries struct {
	Company  map[string]providers.IdentifierLookup
	LEI      providers.IdentifierLookup
	EInvoice providers.IdentifierLookup
}

// Service orchestrates verification episodes.
type Service struct {
	identifiers IdentifierStore
	attempts    AttemptStore
	entities    EntityStore
	snapshots   SnapshotStore

	company  map[string]providers.IdentifierLookup
	lei      providers.IdentifierLookup
	einvoice providers.IdentifierLookup
	deriver  *derivation.Engine

	extractor Extractor
	documents documents.Store
	auditor   AuditPublisher
	addresses map[string]AddressFormatter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithExtractor(e Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

func WithDocuments(d documents.Store) Option {
	return func(s *Service) {
		s.documents = d
	}
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAddressFormatter registers or replaces the address formatter of a
// country.
func WithAddressFormatter(country string, f AddressFormatter) Option {
	return func(s *Service) {
		s.addresses[strings.ToUpper(country)] = f
	}
}

func New(stores Stores, registries Registries, deriver *derivation.Engine, opts ...Option) *Service {
	company := make(map[string]providers.IdentifierLookup, len(registries.Company))
	for cc, r := range registries.Company {
		company[strings.ToUpper(cc)] = r
	}
	s := &Service{
		identifiers: stores.Identifiers,
		attempts:    stores.Attempts,
		entities:    stores.Entities,
		snapshots:   stores.Snapshots,
		company:     company,
		lei:         registries.LEI,
		einvoice:    registries.EInvoice,
		deriver:     deriver,
		addresses:   defaultAddressFormatters(),
		logger:      slog.Default(),
		tracer:      otel.Tracer("kyb/enrichment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// emit is fire-and-forget.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}
