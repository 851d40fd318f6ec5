// Package kvk is the client for the Dutch Chamber of Commerce (KVK) APIs:
// basisprofiel lookup by KVK number and company search by name.
package kvk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

var kvkNumber = regexp.MustCompile(`^[0-9]{8}$`)

// Client implements providers.Registry for the KVK.
type Client struct {
	http *providers.HTTPClient
}

func New(baseURL, apiKey string, opts ...providers.ClientOption) *Client {
	opts = append([]providers.ClientOption{providers.WithHeader("apikey", apiKey)}, opts...)
	return &Client{http: providers.NewHTTPClient(providers.SourceKVK, baseURL, opts...)}
}

func (c *Client) Source() providers.Source { return providers.SourceKVK }

// LookupByIdentifier fetches the basisprofiel of a KVK number. Non-Dutch
// entities and numbers that are not eight digits cannot exist in the KVK
// and are NotFound without a call.
func (c *Client) LookupByIdentifier(ctx context.Context, idType models.IdentifierType, value, countryCode string) (providers.Result, error) {
	if idType != models.IdentifierCompanyNumber || !isNL(countryCode) {
		return providers.NotFound(), nil
	}
	number := pstrings.Compact(value)
	if !kvkNumber.MatchString(number) {
		return providers.NotFound(), nil
	}

	resp, err := c.http.Get(ctx, "/v1/basisprofielen/"+number, nil)
	if err != nil {
		return providers.Result{}, err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return providers.NotFound(), nil
	default:
		return providers.Result{}, providers.ClassifyStatus(providers.SourceKVK, resp.Status)
	}

	rec, err := parseBasisprofiel(resp.Body)
	if err != nil {
		return providers.Result{}, err
	}
	rec.SourceURL = resp.URL
	return providers.Found(*rec), nil
}

// LookupByName searches by trade or legal name and resolves the candidate
// list with providers.ResolveByName.
func (c *Client) LookupByName(ctx context.Context, name, countryCode string) (providers.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" || !isNL(countryCode) {
		return providers.NotFound(), nil
	}

	resp, err := c.http.Get(ctx, "/v2/zoeken", url.Values{"naam": {name}})
	if err != nil {
		return providers.Result{}, err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return providers.NotFound(), nil
	default:
		return providers.Result{}, providers.ClassifyStatus(providers.SourceKVK, resp.Status)
	}

	candidates, err := parseZoeken(resp.Body)
	if err != nil {
		return providers.Result{}, err
	}
	return providers.ResolveByName(name, candidates), nil
}

func isNL(countryCode string) bool {
	return strings.EqualFold(strings.TrimSpace(countryCode), "NL")
}

type basisprofiel struct {
	KvkNummer            string `json:"kvkNummer"`
	Naam                 string `json:"naam"`
	MaterieleRegistratie struct {
		DatumAanvang string `json:"datumAanvang"`
		DatumEinde   string `json:"datumEinde"`
	} `json:"materieleRegistratie"`
	Embedded struct {
		Eigenaar struct {
			RSIN                  string `json:"rsin"`
			Rechtsvorm            string `json:"rechtsvorm"`
			UitgebreideRechtsvorm string `json:"uitgebreideRechtsvorm"`
		} `json:"eigenaar"`
		Hoofdvestiging struct {
			Adressen []adres `json:"adressen"`
		} `json:"hoofdvestiging"`
	} `json:"_embedded"`
}

type adres struct {
	Type                 string          `json:"type"`
	Straatnaam           string          `json:"straatnaam"`
	Huisnummer           json.RawMessage `json:"huisnummer"`
	Huisletter           string          `json:"huisletter"`
	HuisnummerToevoeging string          `json:"huisnummerToevoeging"`
	Postcode             string          `json:"postcode"`
	Plaats               string          `json:"plaats"`
	Land                 string          `json:"land"`
}

func parseBasisprofiel(body []byte) (*providers.Record, error) {
	var bp basisprofiel
	if err := json.Unmarshal(body, &bp); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providers.SourceKVK, "malformed basisprofiel", err)
	}
	if !kvkNumber.MatchString(bp.KvkNummer) || strings.TrimSpace(bp.Naam) == "" {
		return nil, providers.NewProviderError(providers.ErrorBadData, providers.SourceKVK, "basisprofiel missing kvkNummer or naam", nil)
	}

	legalForm := bp.Embedded.Eigenaar.UitgebreideRechtsvorm
	if legalForm == "" {
		legalForm = bp.Embedded.Eigenaar.Rechtsvorm
	}

	rec := &providers.Record{
		Source:             providers.SourceKVK,
		RegistrationNumber: bp.KvkNummer,
		LegalName:          strings.TrimSpace(bp.Naam),
		LegalForm:          legalForm,
		Active:             bp.MaterieleRegistratie.DatumEinde == "",
		TaxReference:       pstrings.Compact(bp.Embedded.Eigenaar.RSIN),
		Address:            pickAddress(bp.Embedded.Hoofdvestiging.Adressen),
		Raw:                compactJSON(body),
	}
	return rec, nil
}

// pickAddress prefers the visiting address over the postal address.
func pickAddress(adressen []adres) providers.Address {
	var chosen *adres
	for i := range adressen {
		if adressen[i].Type == "bezoekadres" {
			chosen = &adressen[i]
			break
		}
	}
	if chosen == nil && len(adressen) > 0 {
		chosen = &adressen[0]
	}
	if chosen == nil {
		return providers.Address{}
	}
	return providers.Address{
		Street:      chosen.Straatnaam,
		HouseNumber: houseNumber(chosen),
		PostalCode:  chosen.Postcode,
		City:        chosen.Plaats,
		Country:     countryCode(chosen.Land),
	}
}

// houseNumber joins number, letter and addition. The KVK sends the number
// as a JSON number; older fixtures send a string.
func houseNumber(a *adres) string {
	var num string
	if len(a.Huisnummer) > 0 {
		var n int
		if err := json.Unmarshal(a.Huisnummer, &n); err == nil && n > 0 {
			num = strconv.Itoa(n)
		} else {
			_ = json.Unmarshal(a.Huisnummer, &num)
		}
	}
	num += a.Huisletter
	if a.HuisnummerToevoeging != "" {
		num += "-" + a.HuisnummerToevoeging
	}
	return num
}

func countryCode(land string) string {
	switch strings.ToLower(strings.TrimSpace(land)) {
	case "", "nederland", "netherlands":
		return "NL"
	case "belgië", "belgie", "belgium":
		return "BE"
	case "duitsland", "germany":
		return "DE"
	default:
		return land
	}
}

type zoekenResponse struct {
	Resultaten []struct {
		KvkNummer string `json:"kvkNummer"`
		Naam      string `json:"naam"`
		Type      string `json:"type"`
		Adres     struct {
			BinnenlandsAdres struct {
				Straatnaam string `json:"straatnaam"`
				Plaats     string `json:"plaats"`
				Postcode   string `json:"postcode"`
			} `json:"binnenlandsAdres"`
		} `json:"adres"`
	} `json:"resultaten"`
}

// parseZoeken returns one candidate per KVK number; the search API lists a
// company once per establishment.
func parseZoeken(body []byte) ([]providers.Record, error) {
	var zr zoekenResponse
	if err := json.Unmarshal(body, &zr); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providers.SourceKVK, "malformed search response", err)
	}
	seen := make(map[string]struct{}, len(zr.Resultaten))
	candidates := make([]providers.Record, 0, len(zr.Resultaten))
	for _, r := range zr.Resultaten {
		if !kvkNumber.MatchString(r.KvkNummer) {
			return nil, providers.NewProviderError(providers.ErrorBadData, providers.SourceKVK, "search result without valid kvkNummer", nil)
		}
		if _, dup := seen[r.KvkNummer]; dup {
			continue
		}
		seen[r.KvkNummer] = struct{}{}
		raw, _ := json.Marshal(r)
		candidates = append(candidates, providers.Record{
			Source:             providers.SourceKVK,
			RegistrationNumber: r.KvkNummer,
			LegalName:          r.Naam,
			Active:             true,
			Address: providers.Address{
				Street:     r.Adres.BinnenlandsAdres.Straatnaam,
				PostalCode: r.Adres.BinnenlandsAdres.Postcode,
				City:       r.Adres.BinnenlandsAdres.Plaats,
				Country:    "NL",
			},
			Raw: raw,
		})
	}
	return candidates, nil
}

func compactJSON(body []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return append(json.RawMessage(nil), body...)
	}
	return buf.Bytes()
}
