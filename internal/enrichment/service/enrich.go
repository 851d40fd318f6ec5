package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"kyb/internal/identity/models"
	"kyb/internal/reconcile"
	"kyb/internal/registry/providers"
	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/audit"
	"kyb/pkg/platform/sentinel"
	pstrings "kyb/pkg/platform/strings"
	"kyb/pkg/requestcontext"
)

const (
	stepCompanyRegistry = "company_registry"
	stepVAT             = "vat_derivation"
	stepLEI             = "lei_lookup"
	stepEInvoice        = "e_invoice_lookup"
	stepEUID            = "euid_derivation"
)

const sourceDerived = "derived"

// run is the state shared between the steps of one enrichment. Only the
// company registry step writes to it; the concurrent steps read.
type run struct {
	entity    *models.LegalEntity
	country   string
	attemptID string
	existing  map[models.IdentifierType]*models.Identifier
	// companyNumber is the number the registries are queried with.
	companyNumber string
	registry      reconcile.RegistryCheck
}

// Enrich runs the registry and derivation phase for an entity without a
// document and returns the aggregate report.
func (s *Service) Enrich(ctx context.Context, entityID id.EntityID) (*models.Report, error) {
	entity, err := s.getEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	report, _ := s.enrich(ctx, entity, nil, "")
	return report, nil
}

// enrich resolves existing identifiers, consults the company registry,
// then runs VAT derivation, LEI and e-invoicing lookups concurrently and
// finally derives the EUID. Every step records its own outcome; none
// aborts another.
func (s *Service) enrich(ctx context.Context, entity *models.LegalEntity, extracted *models.ExtractedFacts, attemptID string) (*models.Report, reconcile.RegistryCheck) {
	ctx, span := s.tracer.Start(ctx, "enrichment.enrich")
	defer span.End()
	span.SetAttributes(attribute.String("entity.id", entity.ID.String()))

	r := &run{
		entity:    entity,
		country:   strings.ToUpper(strings.TrimSpace(entity.Country)),
		attemptID: attemptID,
		existing:  s.loadExisting(ctx, entity.ID),
		registry:  reconcile.RegistryCheck{Outcome: reconcile.RegistryError},
	}
	r.companyNumber = resolveCompanyNumber(entity, r.existing, extracted)

	report := models.NewReport(entity.ID, requestcontext.Now(ctx))
	for _, e := range s.runStep(ctx, stepCompanyRegistry, []models.IdentifierType{
		models.IdentifierCompanyNumber, models.IdentifierTaxIDNational,
	}, func(ctx context.Context) []models.ReportEntry {
		return s.companyRegistryStep(ctx, r)
	}) {
		report.Set(e)
	}

	var vat, lei, einvoice []models.ReportEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vat = s.runStep(gctx, stepVAT, []models.IdentifierType{models.IdentifierVAT}, func(ctx context.Context) []models.ReportEntry {
			return []models.ReportEntry{s.vatStep(ctx, r)}
		})
		return nil
	})
	g.Go(func() error {
		lei = s.runStep(gctx, stepLEI, []models.IdentifierType{models.IdentifierLEI}, func(ctx context.Context) []models.ReportEntry {
			return []models.ReportEntry{s.leiStep(ctx, r)}
		})
		return nil
	})
	g.Go(func() error {
		einvoice = s.runStep(gctx, stepEInvoice, []models.IdentifierType{models.IdentifierEInvoiceParticipant}, func(ctx context.Context) []models.ReportEntry {
			return []models.ReportEntry{s.einvoiceStep(ctx, r)}
		})
		return nil
	})
	_ = g.Wait()
	for _, entries := range [][]models.ReportEntry{vat, lei, einvoice} {
		for _, e := range entries {
			report.Set(e)
		}
	}

	for _, e := range s.runStep(ctx, stepEUID, []models.IdentifierType{models.IdentifierEUUniqueID}, func(ctx context.Context) []models.ReportEntry {
		return []models.ReportEntry{s.euidStep(ctx, r)}
	}) {
		report.Set(e)
	}

	for _, e := range report.Entries {
		s.metrics.IncrementOutcome(string(e.Type), string(e.Outcome))
	}
	return report, r.registry
}

// runStep times and traces one step. A panic inside the step becomes an
// error entry for each type the step owns.
func (s *Service) runStep(ctx context.Context, step string, types []models.IdentifierType, fn func(context.Context) []models.ReportEntry) (entries []models.ReportEntry) {
	ctx, span := s.tracer.Start(ctx, "enrichment."+step)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.ErrorContext(ctx, "enrichment step panicked",
				"step", step,
				"panic", rec,
			)
			span.SetStatus(codes.Error, "panic")
			entries = make([]models.ReportEntry, 0, len(types))
			for _, t := range types {
				entries = append(entries, models.ReportEntry{
					Type:    t,
					Outcome: models.OutcomeError,
					Message: fmt.Sprintf("%s step failed unexpectedly", step),
				})
			}
		}
		s.metrics.ObserveStep(step, time.Since(start))
		span.End()
	}()
	return fn(ctx)
}

func (s *Service) loadExisting(ctx context.Context, entityID id.EntityID) map[models.IdentifierType]*models.Identifier {
	existing := make(map[models.IdentifierType]*models.Identifier)
	list, err := s.identifiers.ListActive(ctx, entityID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load existing identifiers",
			"entity_id", entityID,
			"error", err,
		)
		return existing
	}
	for _, i := range list {
		existing[i.Type] = i
	}
	return existing
}

// resolveCompanyNumber prefers a stored number, then the declared one,
// then the one read from the document.
func resolveCompanyNumber(entity *models.LegalEntity, existing map[models.IdentifierType]*models.Identifier, extracted *models.ExtractedFacts) string {
	if cn := existing[models.IdentifierCompanyNumber]; cn != nil {
		return pstrings.Compact(cn.Value)
	}
	if n := pstrings.Compact(entity.RegistrationNumber); n != "" {
		return n
	}
	if extracted != nil && extracted.RegistrationNumber != nil {
		return pstrings.Compact(*extracted.RegistrationNumber)
	}
	return ""
}

func (s *Service) companyRegistryStep(ctx context.Context, r *run) []models.ReportEntry {
	cn := r.existing[models.IdentifierCompanyNumber]
	if tax := r.existing[models.IdentifierTaxIDNational]; cn.IsVerified() && tax != nil {
		r.registry = s.registryFromSnapshot(ctx, r)
		return []models.ReportEntry{existsEntry(cn), existsEntry(tax)}
	}

	if r.companyNumber == "" {
		r.registry = reconcile.RegistryCheck{Outcome: reconcile.RegistrySkipped}
		return []models.ReportEntry{
			notAvailable(models.IdentifierCompanyNumber, "no company number declared, extracted or on record"),
			s.taxFallback(r, "company registry not consulted"),
		}
	}
	registry, ok := s.company[r.country]
	if !ok {
		r.registry = reconcile.RegistryCheck{Outcome: reconcile.RegistrySkipped}
		msg := fmt.Sprintf("no company registry for country %q", r.country)
		return []models.ReportEntry{
			notAvailable(models.IdentifierCompanyNumber, msg),
			s.taxFallback(r, msg),
		}
	}

	source := registry.Source()
	res, err := registry.LookupByIdentifier(ctx, models.IdentifierCompanyNumber, r.companyNumber, r.country)
	if err != nil {
		r.registry = reconcile.RegistryCheck{Outcome: reconcile.RegistryError}
		s.logger.WarnContext(ctx, "company registry lookup failed",
			"entity_id", r.entity.ID,
			"source", source,
			"retryable", providers.IsRetryable(err),
			"error", err,
		)
		return []models.ReportEntry{
			errorEntry(models.IdentifierCompanyNumber, fmt.Sprintf("%s lookup failed: %v", source, err)),
			errorEntry(models.IdentifierTaxIDNational, fmt.Sprintf("%s unavailable", source)),
		}
	}
	if !res.IsFound() {
		r.registry = reconcile.RegistryCheck{Outcome: reconcile.RegistryNotFound}
		msg := fmt.Sprintf("company number %s not found in %s", r.companyNumber, source)
		if res.Kind == providers.KindMultipleMatches {
			msg = fmt.Sprintf("company number %s matches %d %s entries", r.companyNumber, len(res.Candidates), source)
		}
		return []models.ReportEntry{
			notAvailable(models.IdentifierCompanyNumber, msg),
			s.taxFallback(r, fmt.Sprintf("%s returned no record", source)),
		}
	}

	rec := res.Record
	r.registry = reconcile.CheckRegistryRecord(r.entity.LegalName, rec)
	s.saveSnapshot(ctx, r, rec)
	s.fillEntity(ctx, r, rec)

	if n := pstrings.Compact(rec.RegistrationNumber); n != "" {
		r.companyNumber = n
	}
	entries := []models.ReportEntry{
		s.persist(ctx, r, models.IdentifierCompanyNumber, r.companyNumber, models.IdentifierMeta{
			CountryCode: r.country,
			Status:      models.ValidationVerified,
			SourceName:  source.String(),
			SourceURL:   rec.SourceURL,
		}, fmt.Sprintf("verified against %s", source)),
	}
	if tax := pstrings.Compact(rec.TaxReference); tax != "" {
		entries = append(entries, s.persist(ctx, r, models.IdentifierTaxIDNational, tax, models.IdentifierMeta{
			CountryCode: r.country,
			Status:      models.ValidationVerified,
			SourceName:  source.String(),
			SourceURL:   rec.SourceURL,
		}, fmt.Sprintf("published by %s", source)))
	} else {
		entries = append(entries, s.taxFallback(r, fmt.Sprintf("%s publishes no tax reference", source)))
	}
	return entries
}

// taxFallback reports an already stored tax reference as existing, or
// not_available with msg.
func (s *Service) taxFallback(r *run, msg string) models.ReportEntry {
	if tax := r.existing[models.IdentifierTaxIDNational]; tax != nil {
		return existsEntry(tax)
	}
	return notAvailable(models.IdentifierTaxIDNational, msg)
}

// registryFromSnapshot re-checks the last stored company registry record
// when the lookup itself is skipped, so earlier registry flags persist.
func (s *Service) registryFromSnapshot(ctx context.Context, r *run) reconcile.RegistryCheck {
	verified := reconcile.RegistryCheck{Outcome: reconcile.RegistryVerified}
	registry, ok := s.company[r.country]
	if !ok {
		return verified
	}
	snap, err := s.snapshots.Get(ctx, r.entity.ID, registry.Source().String())
	if err != nil {
		return verified
	}
	var rec providers.Record
	if err := json.Unmarshal(snap.Payload, &rec); err != nil {
		s.logger.WarnContext(ctx, "stored registry snapshot is unreadable",
			"entity_id", r.entity.ID,
			"source", snap.Source,
			"error", err,
		)
		return verified
	}
	return reconcile.CheckRegistryRecord(r.entity.LegalName, &rec)
}

func (s *Service) saveSnapshot(ctx context.Context, r *run, rec *providers.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode registry snapshot", "error", err)
		return
	}
	snap := &models.RegistrySnapshot{
		EntityID:  r.entity.ID,
		Source:    rec.Source.String(),
		Payload:   payload,
		Raw:       rec.Raw,
		FetchedAt: requestcontext.Now(ctx),
	}
	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		s.logger.ErrorContext(ctx, "failed to save registry snapshot",
			"entity_id", r.entity.ID,
			"source", snap.Source,
			"error", err,
		)
		return
	}
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventRegistrySnapshotSaved),
		EntityID:  r.entity.ID.String(),
		AttemptID: r.attemptID,
		Subject:   snap.Source,
		RequestID: requestcontext.RequestID(ctx),
	})
}

// fillEntity copies registry name, legal form and address into fields the
// entity has left empty. User-entered values are never overwritten.
func (s *Service) fillEntity(ctx context.Context, r *run, rec *providers.Record) {
	patch := models.EntityPatch{
		LegalName: pstrings.CollapseSpace(rec.LegalName),
		LegalForm: pstrings.CollapseSpace(rec.LegalForm),
		Address:   s.formatAddress(r.country, rec.Address),
	}
	changed, err := s.entities.FillEmpty(ctx, r.entity.ID, patch)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fill legal entity from registry",
			"entity_id", r.entity.ID,
			"error", err,
		)
		return
	}
	if len(changed) == 0 {
		return
	}
	// The later steps search by the filled name.
	r.entity.FillEmpty(patch, requestcontext.Now(ctx))
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventEntityEnriched),
		EntityID:  r.entity.ID.String(),
		AttemptID: r.attemptID,
		Subject:   rec.Source.String(),
		RequestID: requestcontext.RequestID(ctx),
		Details:   map[string]string{"fields": strings.Join(changed, ",")},
	})
}

func (s *Service) vatStep(ctx context.Context, r *run) models.ReportEntry {
	if v := r.existing[models.IdentifierVAT]; v.IsVerified() {
		return existsEntry(v)
	}
	taxRef, err := s.identifiers.GetActive(ctx, r.entity.ID, models.IdentifierTaxIDNational)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return errorEntry(models.IdentifierVAT, fmt.Sprintf("read tax reference: %v", err))
	}
	res := s.deriver.DeriveVAT(ctx, r.country, taxRef)
	if res.Outcome != models.OutcomeAdded {
		return models.ReportEntry{Type: models.IdentifierVAT, Outcome: res.Outcome, Message: res.Message}
	}
	meta := models.IdentifierMeta{
		CountryCode: r.country,
		Status:      models.ValidationVerified,
		SourceName:  providers.SourceVIES.String(),
	}
	if res.Record != nil {
		meta.SourceURL = res.Record.SourceURL
	}
	return s.persist(ctx, r, models.IdentifierVAT, res.Value, meta, res.Message)
}

// leiStep looks up the LEI by company number and falls back to a name
// search when the number finds nothing or fails.
func (s *Service) leiStep(ctx context.Context, r *run) models.ReportEntry {
	if l := r.existing[models.IdentifierLEI]; l.IsVerified() {
		return existsEntry(l)
	}
	if s.lei == nil {
		return notAvailable(models.IdentifierLEI, "no LEI registry configured")
	}

	var byNumber providers.Result
	var numberErr error
	if r.companyNumber != "" {
		byNumber, numberErr = s.lei.LookupByIdentifier(ctx, models.IdentifierCompanyNumber, r.companyNumber, r.country)
		if numberErr == nil && byNumber.IsFound() {
			return s.persistLEI(ctx, r, byNumber.Record, "found by company number")
		}
	}

	var byName providers.Result
	var nameErr error
	if named, ok := s.lei.(providers.NameLookup); ok && strings.TrimSpace(r.entity.LegalName) != "" {
		byName, nameErr = named.LookupByName(ctx, r.entity.LegalName, r.country)
		if nameErr == nil && byName.IsFound() {
			return s.persistLEI(ctx, r, byName.Record, "found by legal name")
		}
	}

	switch {
	case numberErr != nil:
		return errorEntry(models.IdentifierLEI, fmt.Sprintf("LEI lookup failed: %v", numberErr))
	case nameErr != nil:
		return errorEntry(models.IdentifierLEI, fmt.Sprintf("LEI name search failed: %v", nameErr))
	case byNumber.Kind == providers.KindMultipleMatches:
		return notAvailable(models.IdentifierLEI, fmt.Sprintf("company number matches %d LEI records", len(byNumber.Candidates)))
	case byName.Kind == providers.KindMultipleMatches:
		return notAvailable(models.IdentifierLEI, fmt.Sprintf("legal name matches %d LEI records", len(byName.Candidates)))
	default:
		return notAvailable(models.IdentifierLEI, "no LEI registered for this entity")
	}
}

// persistLEI stores lapsed or retired LEIs as FAILED so they are looked up
// again on the next run.
func (s *Service) persistLEI(ctx context.Context, r *run, rec *providers.Record, how string) models.ReportEntry {
	lei := pstrings.Compact(rec.LEI)
	if lei == "" {
		return errorEntry(models.IdentifierLEI, "LEI record without LEI")
	}
	meta := models.IdentifierMeta{
		CountryCode: r.country,
		Status:      models.ValidationVerified,
		SourceName:  rec.Source.String(),
		SourceURL:   rec.SourceURL,
	}
	msg := how
	if !rec.Active {
		meta.Status = models.ValidationFailed
		msg = fmt.Sprintf("%s; registration status %s", how, rec.LEIStatus)
	}
	return s.persist(ctx, r, models.IdentifierLEI, lei, meta, msg)
}

func (s *Service) einvoiceStep(ctx context.Context, r *run) models.ReportEntry {
	if p := r.existing[models.IdentifierEInvoiceParticipant]; p.IsVerified() {
		return existsEntry(p)
	}
	if s.einvoice == nil {
		return notAvailable(models.IdentifierEInvoiceParticipant, "no e-invoicing directory configured")
	}
	if r.companyNumber == "" {
		return notAvailable(models.IdentifierEInvoiceParticipant, "no company number to look up")
	}
	res, err := s.einvoice.LookupByIdentifier(ctx, models.IdentifierCompanyNumber, r.companyNumber, r.country)
	if err != nil {
		return errorEntry(models.IdentifierEInvoiceParticipant, fmt.Sprintf("%s lookup failed: %v", s.einvoice.Source(), err))
	}
	switch res.Kind {
	case providers.KindFound:
	case providers.KindMultipleMatches:
		return notAvailable(models.IdentifierEInvoiceParticipant, fmt.Sprintf("company number matches %d participants", len(res.Candidates)))
	default:
		return notAvailable(models.IdentifierEInvoiceParticipant, "not registered as an e-invoicing participant")
	}
	return s.persist(ctx, r, models.IdentifierEInvoiceParticipant, res.Record.ParticipantID, models.IdentifierMeta{
		CountryCode: r.country,
		Status:      models.ValidationVerified,
		SourceName:  res.Record.Source.String(),
		SourceURL:   res.Record.SourceURL,
	}, "registered in the e-invoicing directory")
}

func (s *Service) euidStep(ctx context.Context, r *run) models.ReportEntry {
	if e := r.existing[models.IdentifierEUUniqueID]; e.IsVerified() {
		return existsEntry(e)
	}
	cn, err := s.identifiers.GetActive(ctx, r.entity.ID, models.IdentifierCompanyNumber)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return errorEntry(models.IdentifierEUUniqueID, fmt.Sprintf("read company number: %v", err))
	}
	res := s.deriver.DeriveEUID(r.country, cn)
	if res.Outcome != models.OutcomeAdded {
		return models.ReportEntry{Type: models.IdentifierEUUniqueID, Outcome: res.Outcome, Message: res.Message}
	}
	return s.persist(ctx, r, models.IdentifierEUUniqueID, res.Value, models.IdentifierMeta{
		CountryCode: r.country,
		Status:      models.ValidationVerified,
		SourceName:  sourceDerived,
	}, res.Message)
}

// persist writes through UpsertIfAbsent. An existing row with the same
// value is reported as existing and promoted to VERIFIED when this write
// verifies it; a differing value is kept and the conflict reported.
func (s *Service) persist(ctx context.Context, r *run, typ models.IdentifierType, value string, meta models.IdentifierMeta, addedMsg string) models.ReportEntry {
	res, err := s.identifiers.UpsertIfAbsent(ctx, r.entity.ID, typ, value, meta)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist identifier",
			"entity_id", r.entity.ID,
			"type", typ,
			"error", err,
		)
		return errorEntry(typ, fmt.Sprintf("persist %s: %v", typ, err))
	}
	if res.Created {
		s.emit(ctx, s.identifierEvent(ctx, r, audit.EventIdentifierAdded, typ, value, meta.SourceName))
		return models.ReportEntry{Type: typ, Outcome: models.OutcomeAdded, Value: value, Message: addedMsg}
	}

	current, err := s.identifiers.GetActive(ctx, r.entity.ID, typ)
	if err != nil {
		return errorEntry(typ, fmt.Sprintf("read existing %s: %v", typ, err))
	}
	if pstrings.Compact(current.Value) != pstrings.Compact(value) {
		s.logger.WarnContext(ctx, "identifier conflict, existing value kept",
			"entity_id", r.entity.ID,
			"type", typ,
			"source", meta.SourceName,
		)
		s.emit(ctx, s.identifierEvent(ctx, r, audit.EventIdentifierConflict, typ, value, meta.SourceName))
		return models.ReportEntry{
			Type:    typ,
			Outcome: models.OutcomeExists,
			Value:   current.Value,
			Message: fmt.Sprintf("existing value kept; %s reported %s", meta.SourceName, value),
		}
	}
	if meta.Status == models.ValidationVerified && current.Status != models.ValidationVerified {
		if err := s.identifiers.MarkStatus(ctx, current.ID, models.ValidationVerified); err != nil {
			return errorEntry(typ, fmt.Sprintf("verify existing %s: %v", typ, err))
		}
		s.emit(ctx, s.identifierEvent(ctx, r, audit.EventIdentifierVerified, typ, value, meta.SourceName))
		return models.ReportEntry{Type: typ, Outcome: models.OutcomeExists, Value: current.Value, Message: "already recorded; now verified"}
	}
	return models.ReportEntry{Type: typ, Outcome: models.OutcomeExists, Value: current.Value, Message: "already recorded"}
}

func (s *Service) identifierEvent(ctx context.Context, r *run, action audit.AuditEvent, typ models.IdentifierType, value, source string) audit.Event {
	return audit.Event{
		Action:    string(action),
		EntityID:  r.entity.ID.String(),
		AttemptID: r.attemptID,
		Subject:   string(typ),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor(ctx),
		Details:   map[string]string{"value": value, "source": source},
	}
}

func (s *Service) getEntity(ctx context.Context, entityID id.EntityID) (*models.LegalEntity, error) {
	entity, err := s.entities.Get(ctx, entityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "legal entity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load legal entity")
	}
	return entity, nil
}

func existsEntry(i *models.Identifier) models.ReportEntry {
	msg := "already verified"
	if !i.IsVerified() {
		msg = "already recorded"
	}
	return models.ReportEntry{Type: i.Type, Outcome: models.OutcomeExists, Value: i.Value, Message: msg}
}

func notAvailable(t models.IdentifierType, msg string) models.ReportEntry {
	return models.ReportEntry{Type: t, Outcome: models.OutcomeNotAvailable, Message: msg}
}

func errorEntry(t models.IdentifierType, msg string) models.ReportEntry {
	return models.ReportEntry{Type: t, Outcome: models.OutcomeError, Message: msg}
}
