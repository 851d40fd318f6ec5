package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"kyb/internal/derivation"
	"kyb/internal/documents"
	"kyb/internal/extraction"
	"kyb/internal/identity/models"
	"kyb/internal/identity/store/attempt"
	"kyb/internal/identity/store/entity"
	"kyb/internal/identity/store/identifier"
	"kyb/internal/identity/store/snapshot"
	"kyb/internal/registry/providers"
	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/audit"
	auditmemory "kyb/pkg/platform/audit/store/memory"
	"kyb/pkg/requestcontext"
)

type fakeRegistry struct {
	source providers.Source
	byID   func(idType models.IdentifierType, value, country string) (providers.Result, error)
	byName func(name, country string) (providers.Result, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeRegistry) Source() providers.Source { return f.source }

func (f *fakeRegistry) LookupByIdentifier(_ context.Context, idType models.IdentifierType, value, country string) (providers.Result, error) {
	f.record(value)
	if f.byID == nil {
		return providers.NotFound(), nil
	}
	return f.byID(idType, value, country)
}

func (f *fakeRegistry) LookupByName(_ context.Context, name, country string) (providers.Result, error) {
	f.record("name:" + name)
	if f.byName == nil {
		return providers.NotFound(), nil
	}
	return f.byName(name, country)
}

func (f *fakeRegistry) record(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, v)
}

func (f *fakeRegistry) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func found(rec providers.Record) func(models.IdentifierType, string, string) (providers.Result, error) {
	return func(models.IdentifierType, string, string) (providers.Result, error) {
		return providers.Found(rec), nil
	}
}

func ptr(s string) *string { return &s }

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite

	ctx         context.Context
	identifiers *identifier.InMemoryStore
	attempts    *attempt.InMemoryStore
	entities    *entity.InMemoryStore
	snapshots   *snapshot.InMemoryStore
	docs        *documents.FSStore
	auditStore  *auditmemory.InMemoryStore

	kvk    *fakeRegistry
	gleif  *fakeRegistry
	vies   *fakeRegistry
	peppol *fakeRegistry
	engine *extraction.StaticEngine

	entity  *models.LegalEntity
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), epoch)
	s.identifiers = identifier.NewInMemoryStore()
	s.attempts = attempt.NewInMemoryStore()
	s.entities = entity.NewInMemoryStore()
	s.snapshots = snapshot.NewInMemoryStore()
	s.docs = documents.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()

	s.kvk = &fakeRegistry{source: providers.SourceKVK, byID: found(s.kvkRecord(""))}
	s.gleif = &fakeRegistry{source: providers.SourceGLEIF}
	s.vies = &fakeRegistry{source: providers.SourceVIES}
	s.peppol = &fakeRegistry{source: providers.SourcePeppol}
	s.engine = &extraction.StaticEngine{Facts: models.ExtractedFacts{
		CompanyName:        ptr("Acme Holding"),
		RegistrationNumber: ptr("12345678"),
	}}

	s.entity = &models.LegalEntity{
		ID:                 id.EntityID(uuid.New()),
		LegalName:          "Acme Holding B.V.",
		Country:            "NL",
		RegistrationNumber: "12 345 678",
		CreatedAt:          epoch,
		UpdatedAt:          epoch,
	}
	s.Require().NoError(s.entities.Create(s.ctx, s.entity))

	extractor, err := extraction.New(s.engine)
	s.Require().NoError(err)

	s.service = New(
		Stores{
			Identifiers: s.identifiers,
			Attempts:    s.attempts,
			Entities:    s.entities,
			Snapshots:   s.snapshots,
		},
		Registries{
			Company:  map[string]providers.IdentifierLookup{"nl": s.kvk},
			LEI:      s.gleif,
			EInvoice: s.peppol,
		},
		derivation.New(s.vies),
		WithExtractor(extractor),
		WithDocuments(s.docs),
		WithAuditor(auditPublisher{s.auditStore}),
	)
}

type auditPublisher struct {
	store audit.Store
}

func (p auditPublisher) Emit(ctx context.Context, e audit.Event) error {
	return p.store.Append(ctx, e)
}

func (s *ServiceSuite) kvkRecord(rsin string) providers.Record {
	return providers.Record{
		Source:             providers.SourceKVK,
		RegistrationNumber: "12345678",
		LegalName:          "Acme Holding B.V.",
		LegalForm:          "Besloten Vennootschap",
		Active:             true,
		TaxReference:       rsin,
		Address: providers.Address{
			Street:      "Damrak",
			HouseNumber: "1",
			PostalCode:  "1012lg",
			City:        "Amsterdam",
		},
		SourceURL: "https://api.kvk.nl/api/v1/basisprofielen/12345678",
		Raw:       []byte(`{"kvkNummer":"12345678"}`),
	}
}

func (s *ServiceSuite) upload() *models.VerificationAttempt {
	a, err := s.service.StartUpload(s.ctx, UploadRequest{
		EntityID: s.entity.ID,
		Content:  []byte("Uittreksel Handelsregister Acme Holding B.V. KvK 12345678"),
		MimeType: "text/plain",
		Filename: "extract.txt",
	})
	s.Require().NoError(err)
	return a
}

func (s *ServiceSuite) runEpisode() *models.VerificationAttempt {
	a := s.upload()
	s.Require().NoError(s.service.RunEpisode(s.ctx, a.ID))
	resolved, err := s.attempts.Get(s.ctx, a.ID)
	s.Require().NoError(err)
	return resolved
}

func (s *ServiceSuite) activeTypes() map[models.IdentifierType]*models.Identifier {
	list, err := s.identifiers.ListActive(s.ctx, s.entity.ID)
	s.Require().NoError(err)
	out := make(map[models.IdentifierType]*models.Identifier, len(list))
	for _, i := range list {
		out[i.Type] = i
	}
	return out
}

func (s *ServiceSuite) TestConcreteScenario() {
	got := s.runEpisode()

	s.Equal(models.AttemptVerified, got.Status)
	s.Empty(got.Flags)
	s.Equal("12345678", got.IdentifierValue)
	s.Equal(models.MethodManualUpload, got.Method)
	s.Require().NotNil(got.VerifiedAt)
	s.Equal("system", got.VerifiedBy)
	s.Require().NotNil(got.Extracted)
	s.Equal("Acme Holding", *got.Extracted.CompanyName)

	ids := s.activeTypes()
	s.Require().Contains(ids, models.IdentifierCompanyNumber)
	s.Equal("12345678", ids[models.IdentifierCompanyNumber].Value)
	s.Equal(models.ValidationVerified, ids[models.IdentifierCompanyNumber].Status)
	s.Require().Contains(ids, models.IdentifierEUUniqueID)
	s.Equal("NLNHR.12345678", ids[models.IdentifierEUUniqueID].Value)
	s.NotContains(ids, models.IdentifierVAT)
	s.NotContains(ids, models.IdentifierLEI)

	s.Require().NotNil(got.Report)
	s.Equal(models.OutcomeAdded, got.Report.Outcome(models.IdentifierCompanyNumber))
	s.Equal(models.OutcomeAdded, got.Report.Outcome(models.IdentifierEUUniqueID))
	s.Equal(models.OutcomeNotAvailable, got.Report.Outcome(models.IdentifierLEI))
	s.Equal(models.OutcomeNotAvailable, got.Report.Outcome(models.IdentifierVAT))
	s.Equal(models.OutcomeNotAvailable, got.Report.Outcome(models.IdentifierTaxIDNational))
	s.Len(got.Report.Entries, len(models.IdentifierTypes))
}

func (s *ServiceSuite) TestFillsOnlyEmptyEntityFields() {
	s.runEpisode()

	e, err := s.entities.Get(s.ctx, s.entity.ID)
	s.Require().NoError(err)
	s.Equal("Acme Holding B.V.", e.LegalName)
	s.Equal("Besloten Vennootschap", e.LegalForm)
	s.Equal(models.Address{
		Street:      "Damrak",
		HouseNumber: "1",
		PostalCode:  "1012 LG",
		City:        "Amsterdam",
		Country:     "NL",
	}, e.Address)

	snap, err := s.service.Snapshot(s.ctx, s.entity.ID, "kvk")
	s.Require().NoError(err)
	s.Require().NotNil(snap)
	s.JSONEq(`{"kvkNummer":"12345678"}`, string(snap.Raw))
}

func (s *ServiceSuite) fullRegistries() {
	s.kvk.byID = found(s.kvkRecord("123456789"))
	s.vies.byID = found(providers.Record{Source: providers.SourceVIES, Active: true})
	s.gleif.byID = found(providers.Record{
		Source:    providers.SourceGLEIF,
		LEI:       "724500VKKSH9QOLTFR81",
		LEIStatus: "ISSUED",
		Active:    true,
	})
	s.peppol.byID = found(providers.Record{
		Source:        providers.SourcePeppol,
		ParticipantID: "0106:12345678",
		Active:        true,
	})
}

func (s *ServiceSuite) TestIdempotence() {
	s.fullRegistries()

	first, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)
	for _, e := range first.Entries {
		s.Equal(models.OutcomeAdded, e.Outcome, "first run %s: %s", e.Type, e.Message)
	}
	before := s.activeTypes()
	s.Len(before, len(models.IdentifierTypes))

	second, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)
	for _, e := range second.Entries {
		s.Equal(models.OutcomeExists, e.Outcome, "second run %s: %s", e.Type, e.Message)
	}
	after := s.activeTypes()
	s.Len(after, len(models.IdentifierTypes))
	for typ, i := range before {
		s.Equal(i.ID, after[typ].ID)
		s.Equal(i.Value, after[typ].Value)
	}
	// company number and tax reference are verified, so the registry is
	// not consulted again
	s.Len(s.kvk.Calls(), 1)
}

func (s *ServiceSuite) TestVATFallsBackToB02() {
	s.kvk.byID = found(s.kvkRecord("123456789"))
	s.vies.byID = func(_ models.IdentifierType, value, _ string) (providers.Result, error) {
		if value == "NL123456789B02" {
			return providers.Found(providers.Record{Source: providers.SourceVIES, Active: true}), nil
		}
		return providers.NotFound(), nil
	}

	report, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)

	s.Equal(models.OutcomeAdded, report.Outcome(models.IdentifierVAT))
	ids := s.activeTypes()
	s.Require().Contains(ids, models.IdentifierVAT)
	s.Equal("NL123456789B02", ids[models.IdentifierVAT].Value)
	s.Equal([]string{"NL123456789B01", "NL123456789B02"}, s.vies.Calls())
}

func (s *ServiceSuite) TestPartialFailureIsolation() {
	s.fullRegistries()
	s.peppol.byID = func(models.IdentifierType, string, string) (providers.Result, error) {
		return providers.Result{}, providers.NewProviderError(providers.ErrorTimeout, providers.SourcePeppol, "request timed out", nil)
	}

	report, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)

	for _, e := range report.Entries {
		if e.Type == models.IdentifierEInvoiceParticipant {
			s.Equal(models.OutcomeError, e.Outcome)
			continue
		}
		s.Equal(models.OutcomeAdded, e.Outcome, "%s: %s", e.Type, e.Message)
	}
	ids := s.activeTypes()
	s.Contains(ids, models.IdentifierLEI)
	s.Contains(ids, models.IdentifierVAT)
	s.NotContains(ids, models.IdentifierEInvoiceParticipant)
}

func (s *ServiceSuite) TestPanickingStepIsIsolated() {
	s.fullRegistries()
	s.gleif.byID = func(models.IdentifierType, string, string) (providers.Result, error) {
		panic("boom")
	}

	report, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)
	s.Equal(models.OutcomeError, report.Outcome(models.IdentifierLEI))
	s.Equal(models.OutcomeAdded, report.Outcome(models.IdentifierVAT))
	s.Equal(models.OutcomeAdded, report.Outcome(models.IdentifierEInvoiceParticipant))
}

func (s *ServiceSuite) TestStatusDerivation() {
	s.Run("name mismatch flags regardless of registry", func() {
		s.engine.Facts.CompanyName = ptr("Globex Corporation")
		got := s.runEpisode()
		s.Equal(models.AttemptFlagged, got.Status)
		s.Equal([]models.MismatchFlag{models.FlagEnteredNameMismatch}, got.Flags)
		// registry data is still persisted
		s.Contains(s.activeTypes(), models.IdentifierCompanyNumber)
	})

	s.Run("inactive registry record flags", func() {
		s.SetupTest()
		rec := s.kvkRecord("")
		rec.Active = false
		s.kvk.byID = found(rec)
		got := s.runEpisode()
		s.Equal(models.AttemptFlagged, got.Status)
		s.Equal([]models.MismatchFlag{models.FlagRegistryRecordInactive}, got.Flags)
	})

	s.Run("registry not found fails", func() {
		s.SetupTest()
		s.kvk.byID = nil
		got := s.runEpisode()
		s.Equal(models.AttemptFailed, got.Status)
		s.Contains(got.FailureReason, "not found in kvk")
		s.Nil(got.VerifiedAt)
	})

	s.Run("registry outage fails without aborting other steps", func() {
		s.SetupTest()
		s.kvk.byID = func(models.IdentifierType, string, string) (providers.Result, error) {
			return providers.Result{}, providers.NewProviderError(providers.ErrorProviderOutage, providers.SourceKVK, "unexpected status 503", nil)
		}
		s.peppol.byID = found(providers.Record{Source: providers.SourcePeppol, ParticipantID: "0106:12345678", Active: true})
		got := s.runEpisode()
		s.Equal(models.AttemptFailed, got.Status)
		s.Contains(got.FailureReason, "company registry unavailable")
		s.Equal(models.OutcomeError, got.Report.Outcome(models.IdentifierCompanyNumber))
		s.Equal(models.OutcomeAdded, got.Report.Outcome(models.IdentifierEInvoiceParticipant))
	})
}

func (s *ServiceSuite) TestExtractionFailureFailsEpisode() {
	s.engine.Err = errors.New("model unavailable")

	got := s.runEpisode()
	s.Equal(models.AttemptFailed, got.Status)
	s.Contains(got.FailureReason, "extraction failed")
	s.Empty(s.activeTypes())
	s.Empty(s.kvk.Calls())
}

func (s *ServiceSuite) TestConflictKeepsExistingValue() {
	s.fullRegistries()
	_, err := s.identifiers.UpsertIfAbsent(s.ctx, s.entity.ID, models.IdentifierLEI, "5493001KJTIIGC8Y1R12", models.IdentifierMeta{
		Status:     models.ValidationPending,
		SourceName: "manual",
	})
	s.Require().NoError(err)

	report, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)

	entry, ok := report.Entry(models.IdentifierLEI)
	s.Require().True(ok)
	s.Equal(models.OutcomeExists, entry.Outcome)
	s.Equal("5493001KJTIIGC8Y1R12", entry.Value)
	s.Contains(entry.Message, "724500VKKSH9QOLTFR81")

	s.Equal("5493001KJTIIGC8Y1R12", s.activeTypes()[models.IdentifierLEI].Value)

	events, err := s.auditStore.ListByEntity(s.ctx, s.entity.ID.String())
	s.Require().NoError(err)
	var conflicts int
	for _, e := range events {
		if e.Action == string(audit.EventIdentifierConflict) {
			conflicts++
		}
	}
	s.Equal(1, conflicts)
}

func (s *ServiceSuite) TestRetireIdentifierResolvesConflict() {
	s.fullRegistries()
	_, err := s.identifiers.UpsertIfAbsent(s.ctx, s.entity.ID, models.IdentifierLEI, "5493001KJTIIGC8Y1R12", models.IdentifierMeta{
		Status:     models.ValidationPending,
		SourceName: "manual",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.RetireIdentifier(s.ctx, s.entity.ID, models.IdentifierLEI))
	s.Nil(s.activeTypes()[models.IdentifierLEI])

	report, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)
	s.Equal(models.OutcomeAdded, report.Outcome(models.IdentifierLEI))
	s.Equal("724500VKKSH9QOLTFR81", s.activeTypes()[models.IdentifierLEI].Value)

	events, err := s.auditStore.ListByEntity(s.ctx, s.entity.ID.String())
	s.Require().NoError(err)
	var retired []audit.Event
	for _, e := range events {
		if e.Action == string(audit.EventIdentifierRetired) {
			retired = append(retired, e)
		}
	}
	s.Require().Len(retired, 1)
	s.Equal("5493001KJTIIGC8Y1R12", retired[0].Details["value"])
}

func (s *ServiceSuite) TestRetireIdentifierErrors() {
	err := s.service.RetireIdentifier(s.ctx, s.entity.ID, models.IdentifierVAT)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.RetireIdentifier(s.ctx, s.entity.ID, models.IdentifierType("IBAN"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	err = s.service.RetireIdentifier(s.ctx, id.EntityID(uuid.New()), models.IdentifierLEI)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestSameValueIsPromotedToVerified() {
	res, err := s.identifiers.UpsertIfAbsent(s.ctx, s.entity.ID, models.IdentifierCompanyNumber, "12345678", models.IdentifierMeta{
		Status: models.ValidationPending,
	})
	s.Require().NoError(err)

	report, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)

	s.Equal(models.OutcomeExists, report.Outcome(models.IdentifierCompanyNumber))
	cn := s.activeTypes()[models.IdentifierCompanyNumber]
	s.Equal(res.IdentifierID, cn.ID)
	s.Equal(models.ValidationVerified, cn.Status)
}

func (s *ServiceSuite) TestLEIFallsBackToNameSearch() {
	s.gleif.byName = func(name, _ string) (providers.Result, error) {
		return providers.Found(providers.Record{
			Source:    providers.SourceGLEIF,
			LEI:       "724500VKKSH9QOLTFR81",
			LEIStatus: "LAPSED",
			Active:    false,
		}), nil
	}

	report, err := s.service.Enrich(s.ctx, s.entity.ID)
	s.Require().NoError(err)

	s.Equal(models.OutcomeAdded, report.Outcome(models.IdentifierLEI))
	s.Equal([]string{"12345678", "name:Acme Holding B.V."}, s.gleif.Calls())
	lei := s.activeTypes()[models.IdentifierLEI]
	s.Require().NotNil(lei)
	s.Equal(models.ValidationFailed, lei.Status)
}

func (s *ServiceSuite) TestLEINameSearchUsesRegistryFilledName() {
	unnamed := &models.LegalEntity{
		ID:                 id.EntityID(uuid.New()),
		Country:            "NL",
		RegistrationNumber: "12345678",
		CreatedAt:          epoch,
		UpdatedAt:          epoch,
	}
	s.Require().NoError(s.entities.Create(s.ctx, unnamed))
	s.gleif.byName = func(name, _ string) (providers.Result, error) {
		if name != "Acme Holding B.V." {
			return providers.NotFound(), nil
		}
		return providers.Found(providers.Record{
			Source:    providers.SourceGLEIF,
			LEI:       "724500VKKSH9QOLTFR81",
			LEIStatus: "ISSUED",
			Active:    true,
		}), nil
	}

	report, err := s.service.Enrich(s.ctx, unnamed.ID)
	s.Require().NoError(err)

	s.Equal(models.OutcomeAdded, report.Outcome(models.IdentifierLEI))
	s.Equal([]string{"12345678", "name:Acme Holding B.V."}, s.gleif.Calls())

	stored, err := s.entities.Get(s.ctx, unnamed.ID)
	s.Require().NoError(err)
	s.Equal("Acme Holding B.V.", stored.LegalName)
}

func (s *ServiceSuite) TestRetrigger() {
	s.Run("without a document", func() {
		_, err := s.service.Retrigger(s.ctx, s.entity.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("reuses the latest document", func() {
		first := s.runEpisode()
		next, err := s.service.Retrigger(s.ctx, s.entity.ID)
		s.Require().NoError(err)
		s.Equal(models.AttemptPending, next.Status)
		s.Equal(models.MethodManualTrigger, next.Method)
		s.Equal(first.DocumentRef, next.DocumentRef)
		s.NotEqual(first.ID, next.ID)

		s.Require().NoError(s.service.RunEpisode(s.ctx, next.ID))
		got, err := s.attempts.Get(s.ctx, next.ID)
		s.Require().NoError(err)
		s.Equal(models.AttemptVerified, got.Status)
		s.Equal(models.OutcomeExists, got.Report.Outcome(models.IdentifierCompanyNumber))

		prev, err := s.attempts.Get(s.ctx, first.ID)
		s.Require().NoError(err)
		s.Equal(first.UpdatedAt, prev.UpdatedAt)
	})
}

func (s *ServiceSuite) TestUnknownEntity() {
	missing := id.EntityID(uuid.New())

	_, err := s.service.Enrich(s.ctx, missing)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.ListAttempts(s.ctx, missing)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.StartUpload(s.ctx, UploadRequest{EntityID: missing, Content: []byte("x")})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestStartUploadValidation() {
	_, err := s.service.StartUpload(s.ctx, UploadRequest{EntityID: s.entity.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.StartUpload(s.ctx, UploadRequest{
		EntityID: s.entity.ID,
		Content:  []byte("x"),
		Method:   models.MethodManualTrigger,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	a, err := s.service.StartUpload(s.ctx, UploadRequest{
		EntityID: s.entity.ID,
		Content:  []byte("x"),
		Method:   models.MethodApplicationUpload,
	})
	s.Require().NoError(err)
	s.Equal(models.MethodApplicationUpload, a.Method)

	content, _, err := s.docs.Download(s.ctx, a.DocumentRef)
	s.Require().NoError(err)
	s.Equal([]byte("x"), content)
}

func (s *ServiceSuite) TestListAttemptsNewestFirst() {
	first := s.upload()
	later := requestcontext.WithTime(context.Background(), epoch.Add(time.Minute))
	second, err := s.service.Retrigger(later, s.entity.ID)
	s.Require().NoError(err)

	list, err := s.service.ListAttempts(s.ctx, s.entity.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(second.ID, list[0].ID)
	s.Equal(first.ID, list[1].ID)
}

func (s *ServiceSuite) TestRunEpisodeSkipsTerminalAttempt() {
	got := s.runEpisode()
	calls := len(s.kvk.Calls())

	s.Require().NoError(s.service.RunEpisode(s.ctx, got.ID))
	s.Len(s.kvk.Calls(), calls)
}

func (s *ServiceSuite) TestRunEpisodeLeavesPendingWhenCancelled() {
	a := s.upload()
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	err := s.service.RunEpisode(ctx, a.ID)
	s.ErrorIs(err, context.Canceled)

	got, err := s.attempts.Get(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.AttemptPending, got.Status)
}

func (s *ServiceSuite) TestRecoverAbandoned() {
	stale := s.upload()
	fresh, err := s.service.Retrigger(requestcontext.WithTime(context.Background(), epoch.Add(55*time.Minute)), s.entity.ID)
	s.Require().NoError(err)

	now := requestcontext.WithTime(context.Background(), epoch.Add(time.Hour))
	n, err := s.service.RecoverAbandoned(now, 10*time.Minute)
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.attempts.Get(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(models.AttemptFailed, got.Status)
	s.Equal(models.FailureAbandoned, got.FailureReason)

	got, err = s.attempts.Get(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.AttemptPending, got.Status)
}

func (s *ServiceSuite) TestSnapshot() {
	_, err := s.service.Snapshot(s.ctx, s.entity.ID, "companies-house")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	snap, err := s.service.Snapshot(s.ctx, s.entity.ID, "gleif")
	s.Require().NoError(err)
	s.Nil(snap)
}

func (s *ServiceSuite) TestAuditTrail() {
	s.runEpisode()

	events, err := s.auditStore.ListByEntity(s.ctx, s.entity.ID.String())
	s.Require().NoError(err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, string(audit.EventVerificationStarted))
	s.Contains(actions, string(audit.EventDocumentUploaded))
	s.Contains(actions, string(audit.EventRegistrySnapshotSaved))
	s.Contains(actions, string(audit.EventEntityEnriched))
	s.Contains(actions, string(audit.EventIdentifierAdded))
	s.Equal(string(audit.EventVerificationResolved), actions[len(actions)-1])
}

func TestFormatAddress(t *testing.T) {
	s := New(Stores{}, Registries{}, nil)

	nl := s.formatAddress("nl", providers.Address{Street: "Damrak", HouseNumber: "1", PostalCode: "1012 lg", City: "Amsterdam"})
	assert.Equal(t, "1012 LG", nl.PostalCode)
	assert.Equal(t, "NL", nl.Country)

	generic := s.formatAddress("LU", providers.Address{Lines: []string{"12 Rue de la Gare", "L-1616 Luxembourg"}})
	assert.Equal(t, "12 Rue de la Gare", generic.Street)
	assert.Equal(t, "L-1616 Luxembourg", generic.City)
	assert.Equal(t, "LU", generic.Country)

	assert.True(t, s.formatAddress("NL", providers.Address{Country: "NL"}).IsEmpty())
}

func TestResolveCompanyNumber(t *testing.T) {
	e := &models.LegalEntity{RegistrationNumber: "12 345 678"}
	assert.Equal(t, "12345678", resolveCompanyNumber(e, nil, nil))

	existing := map[models.IdentifierType]*models.Identifier{
		models.IdentifierCompanyNumber: {Value: "87654321"},
	}
	assert.Equal(t, "87654321", resolveCompanyNumber(e, existing, nil))

	require.Equal(t, "11223344", resolveCompanyNumber(&models.LegalEntity{}, nil, &models.ExtractedFacts{RegistrationNumber: ptr("1122 3344")}))
	assert.Empty(t, resolveCompanyNumber(&models.LegalEntity{}, nil, nil))
}
