package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kyb/internal/enrichment/service"
	"kyb/internal/identity/models"
	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/httputil"
	"kyb/pkg/requestcontext"
)

// Service defines the verification and enrichment operations exposed over HTTP.
type Service interface {
	StartUpload(ctx context.Context, req service.UploadRequest) (*models.VerificationAttempt, error)
	Retrigger(ctx context.Context, entityID id.EntityID) (*models.VerificationAttempt, error)
	ListAttempts(ctx context.Context, entityID id.EntityID) ([]*models.VerificationAttempt, error)
	Enrich(ctx context.Context, entityID id.EntityID) (*models.Report, error)
	Snapshot(ctx context.Context, entityID id.EntityID, source string) (*models.RegistrySnapshot, error)
	Identifiers(ctx context.Context, entityID id.EntityID) ([]*models.Identifier, error)
	RetireIdentifier(ctx context.Context, entityID id.EntityID, typ models.IdentifierType) error
}

// Launcher starts a verification episode in the background.
type Launcher interface {
	Launch(ctx context.Context, attemptID id.AttemptID) error
}

// Handler wires legal entity verification endpoints to the enrichment service.
type Handler struct {
	service  Service
	launcher Launcher
	logger   *slog.Logger
}

// New constructs a handler with its dependencies.
func New(service Service, launcher Launcher, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		launcher: launcher,
		logger:   logger,
	}
}

// Register mounts the legal entity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/legal-entities/{id}", func(r chi.Router) {
		r.Post("/document", h.HandleUpload)
		r.Post("/document/verify", h.HandleRetrigger)
		r.Get("/verifications", h.HandleListVerifications)
		r.Post("/enrich", h.HandleEnrich)
		r.Get("/registry/{source}", h.HandleSnapshot)
		r.Get("/identifiers", h.HandleIdentifiers)
		r.Delete("/identifiers/{type}", h.HandleRetireIdentifier)
	})
}

// HandleUpload handles POST /legal-entities/{id}/document.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	entityID, ok := h.entityID(w, r)
	if !ok {
		return
	}

	form, err := parseUpload(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid document upload",
			"request_id", requestID,
			"entity_id", entityID,
			"error", err,
		)
		httputil.WriteRequestError(w, requestID, err)
		return
	}

	attempt, err := h.service.StartUpload(ctx, service.UploadRequest{
		EntityID: entityID,
		Content:  form.content,
		MimeType: form.mimeType,
		Filename: form.filename,
		Method:   form.method,
	})
	if err != nil {
		h.fail(ctx, w, "document upload failed", entityID, err)
		return
	}

	if !h.launch(ctx, w, attempt) {
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newStartedResponse(attempt))
}

// HandleRetrigger handles POST /legal-entities/{id}/document/verify.
func (h *Handler) HandleRetrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID, ok := h.entityID(w, r)
	if !ok {
		return
	}

	attempt, err := h.service.Retrigger(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "verification retrigger failed", entityID, err)
		return
	}

	if !h.launch(ctx, w, attempt) {
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, newStartedResponse(attempt))
}

// HandleListVerifications handles GET /legal-entities/{id}/verifications.
func (h *Handler) HandleListVerifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID, ok := h.entityID(w, r)
	if !ok {
		return
	}

	attempts, err := h.service.ListAttempts(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "failed to list verifications", entityID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newAttemptListResponse(attempts))
}

// HandleEnrich handles POST /legal-entities/{id}/enrich.
func (h *Handler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	entityID, ok := h.entityID(w, r)
	if !ok {
		return
	}

	report, err := h.service.Enrich(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "enrichment failed", entityID, err)
		return
	}

	h.logger.InfoContext(ctx, "legal entity enriched",
		"request_id", requestID,
		"entity_id", entityID,
		"entries", len(report.Entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, newReportResponse(report))
}

// HandleSnapshot handles GET /legal-entities/{id}/registry/{source}.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID, ok := h.entityID(w, r)
	if !ok {
		return
	}

	snap, err := h.service.Snapshot(ctx, entityID, chi.URLParam(r, "source"))
	if err != nil {
		h.fail(ctx, w, "failed to load registry snapshot", entityID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

// HandleIdentifiers handles GET /legal-entities/{id}/identifiers.
func (h *Handler) HandleIdentifiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID, ok := h.entityID(w, r)
	if !ok {
		return
	}

	list, err := h.service.Identifiers(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "failed to list identifiers", entityID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newIdentifierListResponse(list))
}

// HandleRetireIdentifier handles DELETE /legal-entities/{id}/identifiers/{type}.
func (h *Handler) HandleRetireIdentifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID, ok := h.entityID(w, r)
	if !ok {
		return
	}
	typ := models.IdentifierType(strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "type"))))

	if err := h.service.RetireIdentifier(ctx, entityID, typ); err != nil {
		h.fail(ctx, w, "failed to retire identifier", entityID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) entityID(w http.ResponseWriter, r *http.Request) (id.EntityID, bool) {
	entityID, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteRequestError(w, requestcontext.RequestID(r.Context()), err)
		return id.EntityID{}, false
	}
	return entityID, true
}

// launch hands the attempt to the background runner. The attempt stays
// PENDING when the runner refuses it and is marked abandoned on restart.
func (h *Handler) launch(ctx context.Context, w http.ResponseWriter, attempt *models.VerificationAttempt) bool {
	if err := h.launcher.Launch(ctx, attempt.ID); err != nil {
		h.fail(ctx, w, "failed to launch verification", attempt.EntityID,
			dErrors.Wrap(err, dErrors.CodeInternal, "verification could not be scheduled"))
		return false
	}
	h.logger.InfoContext(ctx, "verification started",
		"request_id", requestcontext.RequestID(ctx),
		"entity_id", attempt.EntityID,
		"verification_id", attempt.ID,
		"method", attempt.Method,
	)
	return true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, entityID id.EntityID, err error) {
	requestID := requestcontext.RequestID(ctx)
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"entity_id", entityID,
		"error", err,
	)
	httputil.WriteRequestError(w, requestID, err)
}
