// Package vies validates EU VAT numbers against the European Commission
// VIES REST service.
package vies

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

var vatPattern = regexp.MustCompile(`^([A-Z]{2})([0-9A-Z+*.]{2,12})$`)

// Client implements providers.IdentifierLookup. VIES has no name search.
type Client struct {
	http *providers.HTTPClient
}

func New(baseURL string, opts ...providers.ClientOption) *Client {
	return &Client{http: providers.NewHTTPClient(providers.SourceVIES, baseURL, opts...)}
}

func (c *Client) Source() providers.Source { return providers.SourceVIES }

// LookupByIdentifier checks a full VAT number such as NL123456789B01.
// VIES answers 200 for both valid and invalid numbers; userError carries
// the verdict and the member state availability.
func (c *Client) LookupByIdentifier(ctx context.Context, idType models.IdentifierType, value, _ string) (providers.Result, error) {
	if idType != models.IdentifierVAT {
		return providers.NotFound(), nil
	}
	country, number, ok := SplitVAT(value)
	if !ok {
		return providers.NotFound(), nil
	}

	resp, err := c.http.Get(ctx, "/rest-api/ms/"+country+"/vat/"+number, nil)
	if err != nil {
		return providers.Result{}, err
	}
	if resp.Status != http.StatusOK {
		return providers.Result{}, providers.ClassifyStatus(providers.SourceVIES, resp.Status)
	}

	var vr checkResponse
	if err := json.Unmarshal(resp.Body, &vr); err != nil {
		return providers.Result{}, providers.NewProviderError(providers.ErrorBadData, providers.SourceVIES, "malformed check response", err)
	}

	switch vr.UserError {
	case "VALID", "":
		if !vr.IsValid {
			return providers.NotFound(), nil
		}
	case "INVALID", "INVALID_INPUT":
		return providers.NotFound(), nil
	case "MS_MAX_CONCURRENT_REQ", "GLOBAL_MAX_CONCURRENT_REQ":
		return providers.Result{}, providers.NewProviderError(providers.ErrorRateLimited, providers.SourceVIES, vr.UserError, nil)
	case "MS_UNAVAILABLE", "TIMEOUT", "SERVICE_UNAVAILABLE":
		return providers.Result{}, providers.NewProviderError(providers.ErrorProviderOutage, providers.SourceVIES, vr.UserError, nil)
	default:
		return providers.Result{}, providers.NewProviderError(providers.ErrorBadData, providers.SourceVIES, "unknown userError "+vr.UserError, nil)
	}

	return providers.Found(providers.Record{
		Source:    providers.SourceVIES,
		LegalName: disclosed(vr.Name),
		Active:    true,
		VATNumber: country + number,
		Address:   providers.Address{Country: country, Lines: addressLines(disclosed(vr.Address))},
		SourceURL: resp.URL,
		Raw:       append(json.RawMessage(nil), resp.Body...),
	}), nil
}

type checkResponse struct {
	IsValid   bool   `json:"isValid"`
	UserError string `json:"userError"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	VATNumber string `json:"vatNumber"`
}

// SplitVAT separates the member state prefix from the number. Greece
// registers under EL in VIES.
func SplitVAT(value string) (country, number string, ok bool) {
	m := vatPattern.FindStringSubmatch(pstrings.Compact(value))
	if m == nil {
		return "", "", false
	}
	country = m[1]
	if country == "GR" {
		country = "EL"
	}
	return country, m[2], true
}

// disclosed drops the placeholder member states return when they withhold
// trader details.
func disclosed(s string) string {
	s = strings.TrimSpace(s)
	if s == "---" {
		return ""
	}
	return s
}

func addressLines(s string) []string {
	if s == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(s, "\n"))
}
