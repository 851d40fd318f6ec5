package models

import (
	"slices"
	"time"

	id "kyb/pkg/domain"
)

// Outcome is the per-identifier result of an enrichment episode.
type Outcome string

const (
	OutcomeAdded        Outcome = "added"
	OutcomeExists       Outcome = "exists"
	OutcomeNotAvailable Outcome = "not_available"
	OutcomeError        Outcome = "error"
)

type ReportEntry struct {
	Type    IdentifierType `json:"type"`
	Outcome Outcome        `json:"outcome"`
	Value   string         `json:"value,omitempty"`
	Message string         `json:"message"`
}

// Report aggregates one entry per identifier type attempted. It is built
// after every step has settled and is not safe for concurrent writes.
type Report struct {
	EntityID    id.EntityID    `json:"entity_id"`
	Entries     []ReportEntry  `json:"entries"`
	Flags       []MismatchFlag `json:"flags,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

func NewReport(entityID id.EntityID, now time.Time) *Report {
	return &Report{EntityID: entityID, Entries: []ReportEntry{}, GeneratedAt: now}
}

// Set records the entry for e.Type, replacing an earlier one.
func (r *Report) Set(e ReportEntry) {
	for i := range r.Entries {
		if r.Entries[i].Type == e.Type {
			r.Entries[i] = e
			return
		}
	}
	r.Entries = append(r.Entries, e)
	slices.SortStableFunc(r.Entries, func(a, b ReportEntry) int {
		return typeRank(a.Type) - typeRank(b.Type)
	})
}

func (r *Report) Entry(t IdentifierType) (ReportEntry, bool) {
	for _, e := range r.Entries {
		if e.Type == t {
			return e, true
		}
	}
	return ReportEntry{}, false
}

func (r *Report) Outcome(t IdentifierType) Outcome {
	e, _ := r.Entry(t)
	return e.Outcome
}

func typeRank(t IdentifierType) int {
	if i := slices.Index(IdentifierTypes, t); i >= 0 {
		return i
	}
	return len(IdentifierTypes)
}
