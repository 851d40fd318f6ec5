package handler

import (
	"encoding/json"
	"time"

	"kyb/internal/identity/models"
)

const statusPending = "pending"

// StartedResponse is returned when an episode was accepted.
type StartedResponse struct {
	VerificationID string `json:"verificationId"`
	Status         string `json:"status"`
}

func newStartedResponse(a *models.VerificationAttempt) *StartedResponse {
	return &StartedResponse{VerificationID: a.ID.String(), Status: statusPending}
}

// ExtractedResponse mirrors the facts read from the document.
type ExtractedResponse struct {
	CompanyName        *string `json:"companyName"`
	RegistrationNumber *string `json:"registrationNumber"`
}

// AttemptResponse is one verification attempt.
type AttemptResponse struct {
	ID              string             `json:"id"`
	IdentifierType  string             `json:"identifierType"`
	IdentifierValue string             `json:"identifierValue,omitempty"`
	Method          string             `json:"method"`
	Status          string             `json:"status"`
	ExtractedData   *ExtractedResponse `json:"extractedData,omitempty"`
	MismatchFlags   []string           `json:"mismatchFlags"`
	FailureReason   string             `json:"failureReason,omitempty"`
	VerifiedBy      string             `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time         `json:"verifiedAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// AttemptListResponse lists attempts newest first.
type AttemptListResponse struct {
	Verifications []AttemptResponse `json:"verifications"`
}

func newAttemptListResponse(attempts []*models.VerificationAttempt) *AttemptListResponse {
	out := &AttemptListResponse{Verifications: make([]AttemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		resp := AttemptResponse{
			ID:              a.ID.String(),
			IdentifierType:  string(a.IdentifierType),
			IdentifierValue: a.IdentifierValue,
			Method:          string(a.Method),
			Status:          string(a.Status),
			MismatchFlags:   make([]string, 0, len(a.Flags)),
			FailureReason:   a.FailureReason,
			VerifiedBy:      a.VerifiedBy,
			VerifiedAt:      a.VerifiedAt,
			CreatedAt:       a.CreatedAt,
			UpdatedAt:       a.UpdatedAt,
		}
		if a.Extracted != nil {
			resp.ExtractedData = &ExtractedResponse{
				CompanyName:        a.Extracted.CompanyName,
				RegistrationNumber: a.Extracted.RegistrationNumber,
			}
		}
		for _, f := range a.Flags {
			resp.MismatchFlags = append(resp.MismatchFlags, string(f))
		}
		out.Verifications = append(out.Verifications, resp)
	}
	return out
}

// ReportEntryResponse is the outcome for one identifier type.
type ReportEntryResponse struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ReportResponse is the enrichment report.
type ReportResponse struct {
	EntityID    string                `json:"entityId"`
	Entries     []ReportEntryResponse `json:"entries"`
	Flags       []string              `json:"flags,omitempty"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

func newReportResponse(r *models.Report) *ReportResponse {
	out := &ReportResponse{
		EntityID:    r.EntityID.String(),
		Entries:     make([]ReportEntryResponse, 0, len(r.Entries)),
		GeneratedAt: r.GeneratedAt,
	}
	for _, e := range r.Entries {
		out.Entries = append(out.Entries, ReportEntryResponse{
			Type:    string(e.Type),
			Outcome: string(e.Outcome),
			Value:   e.Value,
			Message: e.Message,
		})
	}
	for _, f := range r.Flags {
		out.Flags = append(out.Flags, string(f))
	}
	return out
}

// SnapshotResponse is the latest registry payload, or hasData false.
type SnapshotResponse struct {
	HasData   bool            `json:"hasData"`
	Source    string          `json:"source,omitempty"`
	FetchedAt *time.Time      `json:"fetchedAt,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func newSnapshotResponse(snap *models.RegistrySnapshot) *SnapshotResponse {
	if snap == nil {
		return &SnapshotResponse{HasData: false}
	}
	fetchedAt := snap.FetchedAt
	return &SnapshotResponse{
		HasData:   true,
		Source:    snap.Source,
		FetchedAt: &fetchedAt,
		Data:      snap.Payload,
	}
}

// IdentifierResponse is one active identifier.
type IdentifierResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Value       string    `json:"value"`
	CountryCode string    `json:"countryCode,omitempty"`
	Status      string    `json:"validationStatus"`
	SourceName  string    `json:"sourceName,omitempty"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type IdentifierListResponse struct {
	Identifiers []IdentifierResponse `json:"identifiers"`
}

func newIdentifierListResponse(list []*models.Identifier) *IdentifierListResponse {
	out := &IdentifierListResponse{Identifiers: make([]IdentifierResponse, 0, len(list))}
	for _, i := range list {
		out.Identifiers = append(out.Identifiers, IdentifierResponse{
			ID:          i.ID.String(),
			Type:        string(i.Type),
			Value:       i.Value,
			CountryCode: i.CountryCode,
			Status:      string(i.Status),
			SourceName:  i.SourceName,
			SourceURL:   i.SourceURL,
			CreatedAt:   i.CreatedAt,
		})
	}
	return out
}
