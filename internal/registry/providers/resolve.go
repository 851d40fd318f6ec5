package providers

import (
	pstrings "kyb/pkg/platform/strings"
)

// ResolveByName picks the single candidate whose legal name equals query
// ignoring case, punctuation and whitespace runs. Zero candidates is
// NotFound; otherwise anything but exactly one exact match is
// MultipleMatches carrying every candidate, so the caller never gets a guess.
func ResolveByName(query string, candidates []Record) Result {
	if len(candidates) == 0 {
		return NotFound()
	}
	want := pstrings.FoldName(query)
	var match *Record
	for i := range candidates {
		if pstrings.FoldName(candidates[i].LegalName) != want {
			continue
		}
		if match != nil {
			return MultipleMatches(candidates)
		}
		match = &candidates[i]
	}
	if match == nil {
		return MultipleMatches(candidates)
	}
	return Found(*match)
}
