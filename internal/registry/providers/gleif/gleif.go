// Package gleif queries the GLEIF LEI records API.
package gleif

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

var leiPattern = regexp.MustCompile(`^[A-Z0-9]{18}[0-9]{2}$`)

// Client implements providers.Registry for GLEIF. LEIs can be looked up
// directly or through the company number the entity is registered under.
type Client struct {
	http *providers.HTTPClient
}

func New(baseURL string, opts ...providers.ClientOption) *Client {
	opts = append([]providers.ClientOption{providers.WithHeader("Accept", "application/vnd.api+json")}, opts...)
	return &Client{http: providers.NewHTTPClient(providers.SourceGLEIF, baseURL, opts...)}
}

func (c *Client) Source() providers.Source { return providers.SourceGLEIF }

func (c *Client) LookupByIdentifier(ctx context.Context, idType models.IdentifierType, value, countryCode string) (providers.Result, error) {
	value = pstrings.Compact(value)
	if value == "" {
		return providers.NotFound(), nil
	}

	switch idType {
	case models.IdentifierLEI:
		if !leiPattern.MatchString(value) {
			return providers.NotFound(), nil
		}
		return c.getByLEI(ctx, value)
	case models.IdentifierCompanyNumber:
		q := url.Values{"filter[entity.registeredAs]": {value}}
		if cc := strings.ToUpper(strings.TrimSpace(countryCode)); cc != "" {
			q.Set("filter[entity.legalAddress.country]", cc)
		}
		records, target, err := c.search(ctx, q)
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
	default:
		return providers.NotFound(), nil
	}
}

// LookupByName searches by legal name. Fuzzy hits are resolved with
// providers.ResolveByName so only an exact normalized match is Found.
func (c *Client) LookupByName(ctx context.Context, name, countryCode string) (providers.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return providers.NotFound(), nil
	}
	q := url.Values{"filter[entity.legalName]": {name}}
	if cc := strings.ToUpper(strings.TrimSpace(countryCode)); cc != "" {
		q.Set("filter[entity.legalAddress.country]", cc)
	}
	records, _, err := c.search(ctx, q)
	if err != nil {
		return providers.Result{}, err
	}
	return providers.ResolveByName(name, records), nil
}

func (c *Client) getByLEI(ctx context.Context, lei string) (providers.Result, error) {
	resp, err := c.http.Get(ctx, "/api/v1/lei-records/"+lei, nil)
	if err != nil {
		return providers.Result{}, err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return providers.NotFound(), nil
	default:
		return providers.Result{}, providers.ClassifyStatus(providers.SourceGLEIF, resp.Status)
	}

	var single struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &single); err != nil || len(single.Data) == 0 {
		return providers.Result{}, providers.NewProviderError(providers.ErrorBadData, providers.SourceGLEIF, "malformed lei record", err)
	}
	rec, err := parseRecord(single.Data)
	if err != nil {
		return providers.Result{}, err
	}
	rec.SourceURL = resp.URL
	return providers.Found(*rec), nil
}

func (c *Client) search(ctx context.Context, q url.Values) ([]providers.Record, string, error) {
	q.Set("page[size]", "10")
	resp, err := c.http.Get(ctx, "/api/v1/lei-records", q)
	if err != nil {
		return nil, "", err
	}
	if resp.Status != http.StatusOK {
		return nil, "", providers.ClassifyStatus(providers.SourceGLEIF, resp.Status)
	}

	var list struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, "", providers.NewProviderError(providers.ErrorBadData, providers.SourceGLEIF, "malformed search response", err)
	}
	records := make([]providers.Record, 0, len(list.Data))
	for _, raw := range list.Data {
		rec, err := parseRecord(raw)
		if err != nil {
			return nil, "", err
		}
		records = append(records, *rec)
	}
	return records, resp.URL, nil
}

type leiRecord struct {
	Attributes struct {
		LEI    string `json:"lei"`
		Entity struct {
			LegalName struct {
				Name string `json:"name"`
			} `json:"legalName"`
			RegisteredAs string `json:"registeredAs"`
			Status       string `json:"status"`
			LegalForm    struct {
				ID    string `json:"id"`
				Other string `json:"other"`
			} `json:"legalForm"`
			LegalAddress struct {
				AddressLines []string `json:"addressLines"`
				City         string   `json:"city"`
				PostalCode   string   `json:"postalCode"`
				Country      string   `json:"country"`
			} `json:"legalAddress"`
		} `json:"entity"`
		Registration struct {
			Status string `json:"status"`
		} `json:"registration"`
	} `json:"attributes"`
}

// parseRecord maps one JSON:API resource. The LEI is active only when
// the entity is ACTIVE and the registration is ISSUED.
func parseRecord(raw json.RawMessage) (*providers.Record, error) {
	var lr leiRecord
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providers.SourceGLEIF, "malformed lei record", err)
	}
	a := lr.Attributes
	if !leiPattern.MatchString(a.LEI) || strings.TrimSpace(a.Entity.LegalName.Name) == "" {
		return nil, providers.NewProviderError(providers.ErrorBadData, providers.SourceGLEIF, "lei record missing lei or legal name", nil)
	}

	legalForm := a.Entity.LegalForm.Other
	if legalForm == "" {
		legalForm = a.Entity.LegalForm.ID
	}

	return &providers.Record{
		Source:             providers.SourceGLEIF,
		RegistrationNumber: a.Entity.RegisteredAs,
		LegalName:          a.Entity.LegalName.Name,
		LegalForm:          legalForm,
		Active:             a.Entity.Status == "ACTIVE" && a.Registration.Status == "ISSUED",
		LEI:                a.LEI,
		LEIStatus:          a.Registration.Status,
		Address: providers.Address{
			PostalCode: a.Entity.LegalAddress.PostalCode,
			City:       a.Entity.LegalAddress.City,
			Country:    a.Entity.LegalAddress.Country,
			Lines:      a.Entity.LegalAddress.AddressLines,
		},
		Raw: append(json.RawMessage(nil), raw...),
	}, nil
}
