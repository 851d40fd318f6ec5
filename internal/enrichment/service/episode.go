package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"kyb/internal/extraction"
	"kyb/internal/identity/models"
	"kyb/internal/reconcile"
	"kyb/internal/registry/providers"
	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/audit"
	"kyb/pkg/platform/sentinel"
	"kyb/pkg/requestcontext"
)

const systemActor = "system"

// UploadRequest carries a filing document for a new attempt.
type UploadRequest struct {
	EntityID id.EntityID
	Content  []byte
	MimeType string
	Filename string
	Method   models.VerificationMethod
}

// StartUpload stores the document and creates a PENDING attempt. The
// caller launches the episode.
func (s *Service) StartUpload(ctx context.Context, req UploadRequest) (*models.VerificationAttempt, error) {
	if req.Method == "" {
		req.Method = models.MethodManualUpload
	}
	if req.Method != models.MethodManualUpload && req.Method != models.MethodApplicationUpload {
		return nil, dErrors.New(dErrors.CodeValidation, "method must be MANUAL_UPLOAD or APPLICATION_UPLOAD")
	}
	if len(req.Content) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document is empty")
	}
	if s.documents == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "document store not configured")
	}
	if _, err := s.getEntity(ctx, req.EntityID); err != nil {
		return nil, err
	}

	attemptID := id.NewAttemptID()
	key := req.EntityID.String() + "/" + attemptID.String()
	ref, err := s.documents.Upload(ctx, key, req.Content, req.MimeType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	attempt, err := s.createAttempt(ctx, attemptID, req.EntityID, req.Method, ref)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventDocumentUploaded),
		EntityID:  req.EntityID.String(),
		AttemptID: attemptID.String(),
		Subject:   req.Filename,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor(ctx),
		Details:   map[string]string{"mime_type": req.MimeType, "document_ref": ref},
	})
	return attempt, nil
}

// Retrigger creates a MANUAL_TRIGGER attempt against the entity's latest
// document. Earlier attempts are left untouched.
func (s *Service) Retrigger(ctx context.Context, entityID id.EntityID) (*models.VerificationAttempt, error) {
	if _, err := s.getEntity(ctx, entityID); err != nil {
		return nil, err
	}
	latest, err := s.attempts.LatestWithDocument(ctx, entityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no document uploaded for legal entity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load previous attempt")
	}
	attempt, err := s.createAttempt(ctx, id.NewAttemptID(), entityID, models.MethodManualTrigger, latest.DocumentRef)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventVerificationRetrigger),
		EntityID:  entityID.String(),
		AttemptID: attempt.ID.String(),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor(ctx),
		Details:   map[string]string{"previous_attempt_id": latest.ID.String()},
	})
	return attempt, nil
}

func (s *Service) createAttempt(ctx context.Context, attemptID id.AttemptID, entityID id.EntityID, method models.VerificationMethod, ref string) (*models.VerificationAttempt, error) {
	attempt, err := models.NewVerificationAttempt(attemptID, entityID, method, ref, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification attempt")
	}
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventVerificationStarted),
		EntityID:  entityID.String(),
		AttemptID: attemptID.String(),
		Subject:   string(method),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor(ctx),
	})
	return attempt, nil
}

// ListAttempts returns the entity's attempts newest first.
func (s *Service) ListAttempts(ctx context.Context, entityID id.EntityID) ([]*models.VerificationAttempt, error) {
	if _, err := s.getEntity(ctx, entityID); err != nil {
		return nil, err
	}
	list, err := s.attempts.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification attempts")
	}
	if list == nil {
		list = []*models.VerificationAttempt{}
	}
	return list, nil
}

// RunEpisode executes a PENDING attempt to its terminal status. It is the
// body of the background job. Returning with the attempt still PENDING
// only happens when ctx ends first; RecoverAbandoned handles those.
func (s *Service) RunEpisode(ctx context.Context, attemptID id.AttemptID) error {
	ctx, span := s.tracer.Start(ctx, "enrichment.episode")
	defer span.End()
	span.SetAttributes(attribute.String("attempt.id", attemptID.String()))

	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("load attempt %s: %w", attemptID, err)
	}
	if attempt.IsTerminal() {
		s.logger.InfoContext(ctx, "attempt already resolved, skipping episode",
			"attempt_id", attemptID,
			"status", attempt.Status,
		)
		return nil
	}

	resolution := s.execute(ctx, attempt)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("episode %s interrupted: %w", attemptID, err)
	}
	return s.resolve(ctx, attempt, resolution)
}

func (s *Service) execute(ctx context.Context, attempt *models.VerificationAttempt) models.Resolution {
	entity, err := s.entities.Get(ctx, attempt.EntityID)
	if err != nil {
		return failed(fmt.Sprintf("legal entity unavailable: %v", err))
	}

	var extracted *models.ExtractedFacts
	if attempt.HasDocument() && s.extractor != nil {
		facts, reason := s.extract(ctx, attempt)
		if reason != "" {
			return failed(reason)
		}
		extracted = facts
	}

	declared := reconcile.Declared(entity.LegalName, entity.RegistrationNumber)
	reconciliation := reconcile.Compare(declared, reconcile.FromExtracted(extracted))

	report, registry := s.enrich(ctx, entity, extracted, attempt.ID.String())
	flags := reconcile.MergeFlags(reconciliation, registry)
	report.Flags = flags

	status := reconcile.DeriveStatus(reconciliation, registry)
	res := models.Resolution{
		Status:    status,
		Extracted: extracted,
		Flags:     flags,
		Report:    report,
	}
	if e, ok := report.Entry(models.IdentifierCompanyNumber); ok {
		res.IdentifierValue = e.Value
	}
	switch status {
	case models.AttemptVerified:
		res.VerifiedBy = actor(ctx)
	case models.AttemptFailed:
		res.FailureReason = registryFailure(registry, report)
	}
	return res
}

// extract returns a failure reason instead of an error: extraction
// failures end the episode.
func (s *Service) extract(ctx context.Context, attempt *models.VerificationAttempt) (*models.ExtractedFacts, string) {
	if s.documents == nil {
		return nil, "document store not configured"
	}
	content, mimeType, err := s.documents.Download(ctx, attempt.DocumentRef)
	if err != nil {
		return nil, fmt.Sprintf("document unavailable: %v", err)
	}
	facts, err := s.extractor.Extract(ctx, extraction.Document{Content: content, MimeType: mimeType})
	if err != nil {
		s.logger.WarnContext(ctx, "document extraction failed",
			"attempt_id", attempt.ID,
			"entity_id", attempt.EntityID,
			"error", err,
		)
		if msg := dErrors.MessageOf(err); msg != "" {
			return nil, "extraction failed: " + msg
		}
		return nil, "extraction failed"
	}
	return facts, ""
}

func registryFailure(registry reconcile.RegistryCheck, report *models.Report) string {
	e, _ := report.Entry(models.IdentifierCompanyNumber)
	switch registry.Outcome {
	case reconcile.RegistryError:
		return "company registry unavailable: " + e.Message
	case reconcile.RegistryNotFound, reconcile.RegistrySkipped:
		return e.Message
	default:
		return string(registry.Outcome)
	}
}

func failed(reason string) models.Resolution {
	return models.Resolution{Status: models.AttemptFailed, FailureReason: reason}
}

func (s *Service) resolve(ctx context.Context, attempt *models.VerificationAttempt, res models.Resolution) error {
	if err := attempt.Resolve(res, requestcontext.Now(ctx)); err != nil {
		return fmt.Errorf("resolve attempt %s: %w", attempt.ID, err)
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			s.logger.WarnContext(ctx, "attempt resolved concurrently, result discarded",
				"attempt_id", attempt.ID,
			)
			return nil
		}
		return fmt.Errorf("save attempt %s: %w", attempt.ID, err)
	}

	s.metrics.IncrementEpisode(string(attempt.Status), string(attempt.Method))
	s.logger.InfoContext(ctx, "verification attempt resolved",
		"attempt_id", attempt.ID,
		"entity_id", attempt.EntityID,
		"status", attempt.Status,
		"flags", attempt.Flags,
		"failure_reason", attempt.FailureReason,
	)
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventVerificationResolved),
		EntityID:  attempt.EntityID.String(),
		AttemptID: attempt.ID.String(),
		Decision:  string(attempt.Status),
		Reason:    attempt.FailureReason,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor(ctx),
	})
	return nil
}

// RecoverAbandoned fails attempts left PENDING for longer than threshold,
// typically by a restart mid-episode. A re-trigger is the recovery path.
func (s *Service) RecoverAbandoned(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-threshold)
	stale, err := s.attempts.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale attempts: %w", err)
	}
	recovered := 0
	for _, attempt := range stale {
		if err := attempt.Resolve(failed(models.FailureAbandoned), requestcontext.Now(ctx)); err != nil {
			continue
		}
		if err := s.attempts.Save(ctx, attempt); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				continue
			}
			return recovered, fmt.Errorf("save abandoned attempt %s: %w", attempt.ID, err)
		}
		recovered++
		s.emit(ctx, audit.Event{
			Action:    string(audit.EventVerificationAbandoned),
			EntityID:  attempt.EntityID.String(),
			AttemptID: attempt.ID.String(),
			Decision:  string(models.AttemptFailed),
			Reason:    models.FailureAbandoned,
			ActorID:   systemActor,
		})
	}
	s.metrics.AddAbandoned(recovered)
	return recovered, nil
}

// Snapshot returns the latest snapshot for one registry, or nil when none
// was fetched yet.
func (s *Service) Snapshot(ctx context.Context, entityID id.EntityID, source string) (*models.RegistrySnapshot, error) {
	src, ok := providers.ParseSource(source)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown registry source")
	}
	if _, err := s.getEntity(ctx, entityID); err != nil {
		return nil, err
	}
	snap, err := s.snapshots.Get(ctx, entityID, src.String())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry snapshot")
	}
	return snap, nil
}

// Identifiers returns the entity's active identifiers in report order.
func (s *Service) Identifiers(ctx context.Context, entityID id.EntityID) ([]*models.Identifier, error) {
	if _, err := s.getEntity(ctx, entityID); err != nil {
		return nil, err
	}
	list, err := s.identifiers.ListActive(ctx, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list identifiers")
	}
	if list == nil {
		list = []*models.Identifier{}
	}
	return list, nil
}

// RetireIdentifier soft-deletes the active identifier of a type. The next
// enrichment may then write a new value, which resolves a conflict kept by
// an earlier run.
func (s *Service) RetireIdentifier(ctx context.Context, entityID id.EntityID, typ models.IdentifierType) error {
	if _, err := s.getEntity(ctx, entityID); err != nil {
		return err
	}
	if !typ.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown identifier type %q", typ))
	}
	current, err := s.identifiers.GetActive(ctx, entityID, typ)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no active %s identifier", typ))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identifier")
	}
	if err := s.identifiers.SoftDelete(ctx, entityID, typ); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no active %s identifier", typ))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to retire identifier")
	}

	s.logger.InfoContext(ctx, "identifier retired",
		"entity_id", entityID,
		"type", typ,
		"actor", actor(ctx),
	)
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventIdentifierRetired),
		EntityID:  entityID.String(),
		Subject:   string(typ),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor(ctx),
		Details:   map[string]string{"identifier_id": current.ID.String(), "value": current.Value},
	})
	return nil
}

func actor(ctx context.Context) string {
	if p := requestcontext.Principal(ctx); p != "" {
		return p
	}
	return systemActor
}
