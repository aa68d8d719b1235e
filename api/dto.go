/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing
  field renaming and version evolution without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in the domain layer, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/jcbloome/calaim-visit-engine/reconcile"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

// =============================================================================
// VISIT TYPES
// =============================================================================

// DraftRequest is the body of a draft save.
type DraftRequest struct {
	SocialWorkerEmail string         `json:"social_worker_email"`
	SocialWorkerName  string         `json:"social_worker_name,omitempty"`
	MemberID          string         `json:"member_id"`
	ClaimDay          string         `json:"claim_day"`
	Flagged           *bool          `json:"flagged,omitempty"`
	TotalScore        *float64       `json:"total_score,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// TransitionRequest is the body of a submit or sign-off call.
type TransitionRequest struct {
	SocialWorkerEmail string `json:"social_worker_email"`
}

// VisitDTO represents a visit record in API responses.
type VisitDTO struct {
	VisitID           string         `json:"visit_id"`
	SocialWorkerEmail string         `json:"social_worker_email"`
	SocialWorkerName  string         `json:"social_worker_name,omitempty"`
	MemberID          string         `json:"member_id"`
	ClaimDay          string         `json:"claim_day"`
	VisitMonth        string         `json:"visit_month"`
	Status            string         `json:"status"`
	SignedOff         bool           `json:"signed_off"`
	ClaimStatus       string         `json:"claim_status,omitempty"`
	ClaimSubmitted    bool           `json:"claim_submitted"`
	ClaimPaid         bool           `json:"claim_paid"`
	Flagged           bool           `json:"flagged"`
	TotalScore        float64        `json:"total_score"`
	Extra             map[string]any `json:"extra,omitempty"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

func toVisitDTO(rec *visit.Record) VisitDTO {
	return VisitDTO{
		VisitID:           rec.VisitID,
		SocialWorkerEmail: rec.SocialWorkerEmail,
		SocialWorkerName:  rec.SocialWorkerName,
		MemberID:          rec.MemberID,
		ClaimDay:          rec.ClaimDay,
		VisitMonth:        rec.VisitMonth,
		Status:            string(rec.Status),
		SignedOff:         rec.SignedOff,
		ClaimStatus:       rec.ClaimStatus,
		ClaimSubmitted:    rec.ClaimSubmitted,
		ClaimPaid:         rec.ClaimPaid,
		Flagged:           rec.Flagged,
		TotalScore:        rec.TotalScore,
		Extra:             rec.Extra,
		CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         rec.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SUMMARY TYPES
// =============================================================================

// SummaryRowDTO is one worker's reconciled month.
type SummaryRowDTO struct {
	Key               string `json:"key"`
	DisplayName       string `json:"display_name"`
	AssignedTotal     int    `json:"assigned_total"`
	AssignedActive    int    `json:"assigned_active"`
	OnHold            int    `json:"on_hold"`
	Completed         int    `json:"completed"`
	Outstanding       int    `json:"outstanding"`
	ClaimsCount       int    `json:"claims_count"`
	ClaimsTotalAmount string `json:"claims_total_amount"`
}

// SourceDTO reports how one scan went. Truncation and partial reads are
// informational, never request failures.
type SourceDTO struct {
	Truncated bool `json:"truncated"`
	Partial   bool `json:"partial"`
}

// SummaryDTO is the full reconciliation response, scan counters included.
type SummaryDTO struct {
	RunID          string               `json:"run_id"`
	Month          string               `json:"month"`
	Rows           []SummaryRowDTO      `json:"rows"`
	ScannedMembers int                  `json:"scanned_members"`
	ScannedVisits  int                  `json:"scanned_visits"`
	ScannedClaims  int                  `json:"scanned_claims"`
	Sources        map[string]SourceDTO `json:"sources"`
}

func toSummaryDTO(sum *reconcile.Summary) SummaryDTO {
	rows := make([]SummaryRowDTO, len(sum.Rows))
	for i, r := range sum.Rows {
		rows[i] = SummaryRowDTO{
			Key:               r.Key,
			DisplayName:       r.DisplayName,
			AssignedTotal:     r.AssignedTotal,
			AssignedActive:    r.AssignedActive,
			OnHold:            r.OnHold,
			Completed:         r.Completed,
			Outstanding:       r.Outstanding,
			ClaimsCount:       r.ClaimsCount,
			ClaimsTotalAmount: r.ClaimsTotalAmount.StringFixed(2),
		}
	}
	return SummaryDTO{
		RunID:          sum.RunID,
		Month:          sum.Month,
		Rows:           rows,
		ScannedMembers: sum.Members.Scanned,
		ScannedVisits:  sum.Visits.Scanned,
		ScannedClaims:  sum.Claims.Scanned,
		Sources: map[string]SourceDTO{
			"members": {Truncated: sum.Members.Truncated, Partial: sum.Members.Partial},
			"visits":  {Truncated: sum.Visits.Truncated, Partial: sum.Visits.Partial},
			"claims":  {Truncated: sum.Claims.Truncated, Partial: sum.Claims.Partial},
		},
	}
}

// ErrorDTO is the error envelope for all failure responses.
type ErrorDTO struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
