package vies

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	"kyb/internal/registry/providers/contract"
)

func TestSplitVAT(t *testing.T) {
	cc, num, ok := SplitVAT(" nl 1234 56789 b01 ")
	assert.True(t, ok)
	assert.Equal(t, "NL", cc)
	assert.Equal(t, "123456789B01", num)

	cc, _, ok = SplitVAT("GR123456789")
	assert.True(t, ok)
	assert.Equal(t, "EL", cc)

	_, _, ok = SplitVAT("123456789")
	assert.False(t, ok)
}

func TestClientContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest-api/ms/NL/vat/123456789B01":
			_, _ = w.Write([]byte(`{"isValid":false,"userError":"INVALID","name":"---","address":"---"}`))
		case "/rest-api/ms/NL/vat/123456789B02":
			_, _ = w.Write([]byte(`{"isValid":true,"userError":"VALID","name":"ACME HOLDING B.V.","address":"\nDAMRAK 00001 A\n1012LG AMSTERDAM\n","vatNumber":"123456789B02"}`))
		case "/rest-api/ms/DE/vat/999999999":
			_, _ = w.Write([]byte(`{"isValid":false,"userError":"MS_UNAVAILABLE"}`))
		case "/rest-api/ms/FR/vat/12345678901":
			_, _ = w.Write([]byte(`{"isValid":false,"userError":"MS_MAX_CONCURRENT_REQ"}`))
		case "/rest-api/ms/BE/vat/0123456789":
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	client := New(srv.URL)

	suite := contract.Suite{
		Client: client,
		Cases: []contract.LookupCase{
			{
				Name: "valid number", Type: models.IdentifierVAT, Value: "NL123456789B02",
				ExpectedKind: providers.KindFound,
				ValidateFunc: func(t *testing.T, res providers.Result) {
					assert.Equal(t, "NL123456789B02", res.Record.VATNumber)
					assert.Equal(t, "ACME HOLDING B.V.", res.Record.LegalName)
					assert.Equal(t, []string{"DAMRAK 00001 A", "1012LG AMSTERDAM"}, res.Record.Address.Lines)
				},
			},
			{
				Name: "invalid number", Type: models.IdentifierVAT, Value: "NL123456789B01",
				ExpectedKind: providers.KindNotFound,
			},
			{
				Name: "unparseable value", Type: models.IdentifierVAT, Value: "123",
				ExpectedKind: providers.KindNotFound,
			},
			{
				Name: "non vat identifier", Type: models.IdentifierCompanyNumber, Value: "NL123456789B02",
				ExpectedKind: providers.KindNotFound,
			},
		},
	}
	suite.Run(t)

	for _, ec := range []contract.ErrorCase{
		{Name: "member state unavailable", Client: client, Type: models.IdentifierVAT, Value: "DE999999999", ExpectedError: providers.ErrorProviderOutage, ExpectedRetry: true},
		{Name: "concurrency limit", Client: client, Type: models.IdentifierVAT, Value: "FR12345678901", ExpectedError: providers.ErrorRateLimited, ExpectedRetry: true},
		{Name: "non json body", Client: client, Type: models.IdentifierVAT, Value: "BE0123456789", ExpectedError: providers.ErrorBadData},
		{Name: "server error", Client: client, Type: models.IdentifierVAT, Value: "AT12345678", ExpectedError: providers.ErrorProviderOutage, ExpectedRetry: true},
	} {
		ec.Run(t)
	}
}
