package kvk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	"kyb/internal/registry/providers/contract"
)

const basisprofielACME = `{
  "kvkNummer": "12345678",
  "naam": "ACME Holding B.V.",
  "materieleRegistratie": {"datumAanvang": "20150101"},
  "_embedded": {
    "eigenaar": {"rsin": "123456789", "rechtsvorm": "BeslotenVennootschap", "uitgebreideRechtsvorm": "Besloten Vennootschap"},
    "hoofdvestiging": {
      "adressen": [
        {"type": "postadres", "straatnaam": "Postbus", "huisnummer": 100, "postcode": "1000AA", "plaats": "Amsterdam", "land": "Nederland"},
        {"type": "bezoekadres", "straatnaam": "Damrak", "huisnummer": 1, "huisletter": "A", "postcode": "1012LG", "plaats": "Amsterdam", "land": "Nederland"}
      ]
    }
  }
}`

const basisprofielDissolved = `{
  "kvkNummer": "87654321",
  "naam": "Old Trading B.V.",
  "materieleRegistratie": {"datumAanvang": "20010101", "datumEinde": "20200101"}
}`

func newStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		switch r.URL.Path {
		case "/v1/basisprofielen/12345678":
			_, _ = w.Write([]byte(basisprofielACME))
		case "/v1/basisprofielen/87654321":
			_, _ = w.Write([]byte(basisprofielDissolved))
		case "/v1/basisprofielen/11111111":
			_, _ = w.Write([]byte(`{"kvkNummer": 11111111`))
		case "/v1/basisprofielen/22222222":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/v1/basisprofielen/33333333":
			w.WriteHeader(http.StatusUnauthorized)
		case "/v2/zoeken":
			switch r.URL.Query().Get("naam") {
			case "ACME Holding BV":
				_, _ = w.Write([]byte(`{"resultaten": [
					{"kvkNummer": "12345678", "naam": "ACME Holding B.V.", "type": "hoofdvestiging"},
					{"kvkNummer": "12345678", "naam": "ACME Holding B.V.", "type": "rechtspersoon"},
					{"kvkNummer": "23456789", "naam": "ACME Trading B.V.", "type": "hoofdvestiging"}
				]}`))
			case "ACME":
				_, _ = w.Write([]byte(`{"resultaten": [
					{"kvkNummer": "12345678", "naam": "ACME Holding B.V."},
					{"kvkNummer": "23456789", "naam": "ACME Trading B.V."}
				]}`))
			default:
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"fout": [{"code": "IPD5200", "omschrijving": "Geen resultaten gevonden"}]}`))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClientContract(t *testing.T) {
	srv := newStub(t)
	defer srv.Close()
	client := New(srv.URL, "test-key")

	suite := contract.Suite{
		Client: client,
		Cases: []contract.LookupCase{
			{
				Name:         "active company",
				Type:         models.IdentifierCompanyNumber,
				Value:        "1234 5678",
				Country:      "NL",
				ExpectedKind: providers.KindFound,
				ValidateFunc: func(t *testing.T, res providers.Result) {
					rec := res.Record
					assert.Equal(t, "12345678", rec.RegistrationNumber)
					assert.Equal(t, "ACME Holding B.V.", rec.LegalName)
					assert.Equal(t, "Besloten Vennootschap", rec.LegalForm)
					assert.Equal(t, "123456789", rec.TaxReference)
					assert.True(t, rec.Active)
					assert.Equal(t, providers.Address{
						Street: "Damrak", HouseNumber: "1A", PostalCode: "1012LG", City: "Amsterdam", Country: "NL",
					}, rec.Address)
					assert.Contains(t, rec.SourceURL, "/v1/basisprofielen/12345678")
				},
			},
			{
				Name:         "dissolved company is found but inactive",
				Type:         models.IdentifierCompanyNumber,
				Value:        "87654321",
				Country:      "NL",
				ExpectedKind: providers.KindFound,
				ValidateFunc: func(t *testing.T, res providers.Result) {
					assert.False(t, res.Record.Active)
					assert.Empty(t, res.Record.TaxReference)
				},
			},
			{
				Name:         "unknown number",
				Type:         models.IdentifierCompanyNumber,
				Value:        "99999999",
				Country:      "NL",
				ExpectedKind: providers.KindNotFound,
			},
			{
				Name:         "non-dutch entity",
				Type:         models.IdentifierCompanyNumber,
				Value:        "12345678",
				Country:      "DE",
				ExpectedKind: providers.KindNotFound,
			},
			{
				Name:         "malformed number",
				Type:         models.IdentifierCompanyNumber,
				Value:        "12AB",
				Country:      "NL",
				ExpectedKind: providers.KindNotFound,
			},
			{
				Name:         "unsupported identifier type",
				Type:         models.IdentifierLEI,
				Value:        "12345678",
				Country:      "NL",
				ExpectedKind: providers.KindNotFound,
			},
		},
	}
	suite.Run(t)

	errorCases := []contract.ErrorCase{
		{Name: "malformed payload", Client: client, Type: models.IdentifierCompanyNumber, Value: "11111111", Country: "NL", ExpectedError: providers.ErrorBadData},
		{Name: "outage", Client: client, Type: models.IdentifierCompanyNumber, Value: "22222222", Country: "NL", ExpectedError: providers.ErrorProviderOutage, ExpectedRetry: true},
		{Name: "bad credentials", Client: client, Type: models.IdentifierCompanyNumber, Value: "33333333", Country: "NL", ExpectedError: providers.ErrorAuthentication},
	}
	for i := range errorCases {
		errorCases[i].Run(t)
	}
}

func TestLookupByName(t *testing.T) {
	srv := newStub(t)
	defer srv.Close()
	client := New(srv.URL, "test-key")
	ctx := context.Background()

	t.Run("exact match among establishments", func(t *testing.T) {
		res, err := client.LookupByName(ctx, "ACME Holding BV", "NL")
		require.NoError(t, err)
		require.True(t, res.IsFound())
		assert.Equal(t, "12345678", res.Record.RegistrationNumber)
	})

	t.Run("ambiguous name", func(t *testing.T) {
		res, err := client.LookupByName(ctx, "ACME", "NL")
		require.NoError(t, err)
		assert.Equal(t, providers.KindMultipleMatches, res.Kind)
		assert.Len(t, res.Candidates, 2)
	})

	t.Run("no results", func(t *testing.T) {
		res, err := client.LookupByName(ctx, "Nobody", "NL")
		require.NoError(t, err)
		assert.Equal(t, providers.KindNotFound, res.Kind)
	})
}
