// Package peppol queries the Peppol Directory for e-invoicing participants.
package peppol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

const participantScheme = "iso6523-actorid-upis"

// ICD schemes under which a national company number is registered as a
// Peppol participant.
var companyNumberSchemes = map[string]string{
	"NL": "0106",
	"BE": "0208",
	"SE": "0007",
	"DK": "0184",
	"NO": "0192",
}

// SchemeFor returns the ICD scheme for company numbers of a country.
func SchemeFor(countryCode string) (string, bool) {
	s, ok := companyNumberSchemes[strings.ToUpper(strings.TrimSpace(countryCode))]
	return s, ok
}

type Client struct {
	http *providers.HTTPClient
}

func New(baseURL string, opts ...providers.ClientOption) *Client {
	return &Client{http: providers.NewHTTPClient(providers.SourcePeppol, baseURL, opts...)}
}

func (c *Client) Source() providers.Source { return providers.SourcePeppol }

// LookupByIdentifier accepts either a participant id ("0106:12345678") or
// a company number, which is mapped to its country's ICD scheme.
func (c *Client) LookupByIdentifier(ctx context.Context, idType models.IdentifierType, value, countryCode string) (providers.Result, error) {
	var participant string
	switch idType {
	case models.IdentifierEInvoiceParticipant:
		participant = strings.ToLower(strings.TrimSpace(value))
		if !strings.Contains(participant, ":") {
			return providers.NotFound(), nil
		}
	case models.IdentifierCompanyNumber:
		scheme, ok := SchemeFor(countryCode)
		number := pstrings.Compact(value)
		if !ok || number == "" {
			return providers.NotFound(), nil
		}
		participant = scheme + ":" + number
	default:
		return providers.NotFound(), nil
	}

	records, target, err := c.search(ctx, url.Values{"participant": {participantScheme + "::" + participant}})
	if err != nil {
		return providers.Result{}, err
	}
	switch len(records) {
	case 0:
		return providers.NotFound(), nil
	case 1:
		records[0].SourceURL = target
		return providers.Found(records[0]), nil
	default:
		return providers.MultipleMatches(records), nil
	}
}

func (c *Client) LookupByName(ctx context.Context, name, countryCode string) (providers.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return providers.NotFound(), nil
	}
	q := url.Values{"name": {name}}
	if cc := strings.ToUpper(strings.TrimSpace(countryCode)); cc != "" {
		q.Set("country", cc)
	}
	records, _, err := c.search(ctx, q)
	if err != nil {
		return providers.Result{}, err
	}
	return providers.ResolveByName(name, records), nil
}

type searchResponse struct {
	Matches []json.RawMessage `json:"matches"`
}

type match struct {
	ParticipantID struct {
		Scheme string `json:"scheme"`
		Value  string `json:"value"`
	} `json:"participantID"`
	Entities []struct {
		Name []struct {
			Name string `json:"name"`
		} `json:"name"`
		CountryCode string `json:"countryCode"`
	} `json:"entities"`
}

func (c *Client) search(ctx context.Context, q url.Values) ([]providers.Record, string, error) {
	resp, err := c.http.Get(ctx, "/search/1.0/json", q)
	if err != nil {
		return nil, "", err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, resp.URL, nil
	default:
		return nil, "", providers.ClassifyStatus(providers.SourcePeppol, resp.Status)
	}

	var sr searchResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return nil, "", providers.NewProviderError(providers.ErrorBadData, providers.SourcePeppol, "malformed search response", err)
	}
	records := make([]providers.Record, 0, len(sr.Matches))
	for _, raw := range sr.Matches {
		var m match
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, "", providers.NewProviderError(providers.ErrorBadData, providers.SourcePeppol, "malformed match", err)
		}
		if m.ParticipantID.Value == "" {
			return nil, "", providers.NewProviderError(providers.ErrorBadData, providers.SourcePeppol, "match without participant id", nil)
		}
		rec := providers.Record{
			Source:        providers.SourcePeppol,
			ParticipantID: strings.ToLower(m.ParticipantID.Value),
			Active:        true,
			Raw:           append(json.RawMessage(nil), raw...),
		}
		if len(m.Entities) > 0 {
			e := m.Entities[0]
			if len(e.Name) > 0 {
				rec.LegalName = e.Name[0].Name
			}
			rec.Address.Country = e.CountryCode
		}
		if _, number, ok := strings.Cut(rec.ParticipantID, ":"); ok {
			rec.RegistrationNumber = strings.ToUpper(number)
		}
		records = append(records, rec)
	}
	return records, resp.URL, nil
}
