package service

import (
	"regexp"
	"strings"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

// AddressFormatter maps a registry address onto the entity's address
// fields in the conventions of one country.
type AddressFormatter func(providers.Address) models.Address

func defaultAddressFormatters() map[string]AddressFormatter {
	return map[string]AddressFormatter{
		"NL": formatDutchAddress,
		"BE": formatGenericAddress,
		"DE": formatGenericAddress,
	}
}

func (s *Service) formatAddress(country string, a providers.Address) models.Address {
	f, ok := s.addresses[strings.ToUpper(country)]
	if !ok {
		f = formatGenericAddress
	}
	out := f(a)
	if out.Street == "" && out.PostalCode == "" && out.City == "" {
		return models.Address{}
	}
	if out.Country == "" {
		out.Country = strings.ToUpper(country)
	}
	return out
}

var dutchPostalCode = regexp.MustCompile(`^([0-9]{4})([A-Z]{2})$`)

// formatDutchAddress writes postal codes as "1234 AB".
func formatDutchAddress(a providers.Address) models.Address {
	out := formatGenericAddress(a)
	if m := dutchPostalCode.FindStringSubmatch(pstrings.Compact(out.PostalCode)); m != nil {
		out.PostalCode = m[1] + " " + m[2]
	}
	if out.Country == "" && !out.IsEmpty() {
		out.Country = "NL"
	}
	return out
}

// formatGenericAddress copies structured fields and falls back to the
// first unstructured line for the street.
func formatGenericAddress(a providers.Address) models.Address {
	out := models.Address{
		Street:      pstrings.CollapseSpace(a.Street),
		HouseNumber: pstrings.CollapseSpace(a.HouseNumber),
		PostalCode:  strings.ToUpper(pstrings.CollapseSpace(a.PostalCode)),
		City:        pstrings.CollapseSpace(a.City),
		Country:     strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if out.Street == "" && len(a.Lines) > 0 {
		out.Street = pstrings.CollapseSpace(a.Lines[0])
	}
	if out.City == "" && len(a.Lines) > 1 {
		out.City = pstrings.CollapseSpace(a.Lines[len(a.Lines)-1])
	}
	return out
}
