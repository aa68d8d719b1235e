/*
Package visit owns the lifecycle of a social-worker visit record.

PURPOSE:
  A visit record is created as a draft by its owning social worker,
  edited in place while it stays a draft, then moves one-way through
  submitted to signed-off. An orthogonal claim-lock flag, set by the
  external billing workflow, freezes the record regardless of status.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: the mutable aggregate, idempotently keyed by VisitID
  - Status: draft -> submitted -> signedOff (terminal)
  - Claim lock: any claim linkage blocks further edits
  - VisitMonth: always derived from ClaimDay, never stored independently

DESIGN PRINCIPLES:
  1. One writer wins: all mutation goes through Store.Mutate, atomic per
     visit id, so a lost race surfaces as a precondition failure.
  2. No partial writes: every check runs before persistence.
  3. Eligibility first: the rule evaluator (eligibility.go) runs against
     a fresh member snapshot before any state-machine logic.

SEE ALSO:
  - eligibility.go: member-eligibility business rules
  - service.go: the state machine operations
  - store/sqlite, store/memory: Store implementations
*/
package visit

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// STATUS - one-way lifecycle
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusSignedOff Status = "signedOff"
)

// Action names a mutating operation for eligibility evaluation.
type Action string

const (
	ActionSave    Action = "save"
	ActionSubmit  Action = "submit"
	ActionSignOff Action = "signoff"
)

// =============================================================================
// RECORD - the visit aggregate
// =============================================================================

// Record is one visit. VisitID is caller supplied, globally unique, and
// immutable once created; it doubles as the idempotency key for draft
// saves.
type Record struct {
	VisitID string `json:"visit_id"`

	// Ownership. Email is normalized to lowercase on first write and may
	// never be overwritten by a different owner.
	SocialWorkerEmail string `json:"social_worker_email"`
	SocialWorkerName  string `json:"social_worker_name,omitempty"`

	MemberID string `json:"member_id"`

	// ClaimDay is the calendar date of the visit, "YYYY-MM-DD".
	// VisitMonth is always ClaimDay[0:7], recomputed on every write.
	ClaimDay   string `json:"claim_day"`
	VisitMonth string `json:"visit_month"`

	Status    Status `json:"status"`
	SignedOff bool   `json:"signed_off"`

	// Claim linkage, written only by the external billing workflow.
	// Any of these being set claim-locks the record.
	ClaimStatus    string `json:"claim_status,omitempty"`
	ClaimSubmitted bool   `json:"claim_submitted"`
	ClaimPaid      bool   `json:"claim_paid"`

	Flagged    bool    `json:"flagged"`
	TotalScore float64 `json:"total_score"`

	// Extra carries the form payload fields this engine does not
	// interpret (assessment answers, narrative, etc.).
	Extra map[string]any `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClaimLocked reports whether the record is tied to the billing
// workflow. The set of non-draft claim statuses is not enumerated
// upstream, so anything non-empty and not "draft" counts.
func (r *Record) ClaimLocked() bool {
	if r.ClaimSubmitted || r.ClaimPaid {
		return true
	}
	cs := strings.ToLower(strings.TrimSpace(r.ClaimStatus))
	return cs != "" && cs != "draft"
}

// MonthOf derives the visit month from a claim day ("2025-01-15" -> "2025-01").
func MonthOf(claimDay string) string {
	if len(claimDay) < 7 {
		return ""
	}
	return claimDay[:7]
}

// =============================================================================
// STORE - persistence contract
// =============================================================================

// Store persists visit records. Mutate must be atomic with respect to
// other writers of the same visit id: the read-check-write sequence in
// fn runs under the backing store's native transaction primitive.
type Store interface {
	// Get returns the record, or nil if none exists.
	Get(ctx context.Context, visitID string) (*Record, error)

	// Mutate loads the record for visitID (nil if absent), applies fn,
	// and persists the returned record, all atomically per visit id.
	// If fn returns an error nothing is written and the error is
	// returned unchanged.
	Mutate(ctx context.Context, visitID string, fn func(existing *Record) (*Record, error)) (*Record, error)

	// VisitsByMonth returns one page of records with the given visit
	// month, ordered by visit id, strictly after the cursor id.
	VisitsByMonth(ctx context.Context, month, cursor string, limit int) ([]Record, error)
}
