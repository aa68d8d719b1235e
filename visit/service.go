/*
service.go - Visit record state machine

PURPOSE:
  Orchestrates the lifecycle of one visit record:
  1. CreateOrUpdateDraft: idempotent draft save, keyed by visit id
  2. Submit: draft -> submitted (one-way)
  3. SignOff: submitted -> signedOff (terminal)

LIFECYCLE:
  ┌───────┐   Submit    ┌───────────┐   SignOff   ┌───────────┐
  │ draft │ ──────────▶ │ submitted │ ──────────▶ │ signedOff │
  └───────┘             └───────────┘             └───────────┘
      ▲                        │
      └── edits by owner only; claim lock freezes everything

ORDER OF CHECKS (every mutating call):
  1. Input validation (no I/O)
  2. Eligibility rules against a fresh member snapshot
  3. Inside the store's atomic Mutate: ownership, signed-off,
     claim-lock, status transition — then the single write

  A concurrent writer losing the race inside Mutate sees one of the
  same precondition reasons, never silent data loss.

SEE ALSO:
  - eligibility.go: rule evaluator
  - types.go: Record and Store contracts
*/
package visit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jcbloome/calaim-visit-engine/member"
)

// Service runs the visit lifecycle. All dependencies are injected;
// there is no package-level client state.
type Service struct {
	Store     Store
	Members   member.Source
	Evaluator *Evaluator
	Logger    *zap.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewService wires a Service with a default evaluator.
func NewService(store Store, members member.Source, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:     store,
		Members:   members,
		Evaluator: &Evaluator{},
		Logger:    logger,
	}
}

// DraftInput is the caller-supplied payload for a draft save.
type DraftInput struct {
	VisitID           string
	SocialWorkerEmail string
	SocialWorkerName  string
	MemberID          string
	ClaimDay          string

	Flagged    *bool
	TotalScore *float64

	// Extra carries uninterpreted form fields, merged key-wise into the
	// stored record.
	Extra map[string]any
}

// =============================================================================
// DRAFT SAVE
// =============================================================================

// CreateOrUpdateDraft creates the record on first save and merges the
// payload on subsequent saves by the same owner while the record is
// still a draft.
func (s *Service) CreateOrUpdateDraft(ctx context.Context, in DraftInput) (*Record, error) {
	if err := validateDraftInput(in); err != nil {
		return nil, err
	}
	owner := strings.ToLower(strings.TrimSpace(in.SocialWorkerEmail))

	memberID, err := s.memberIDFor(ctx, in.VisitID, in.MemberID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligibility(ctx, memberID, ActionSave); err != nil {
		return nil, err
	}

	now := s.now()
	rec, err := s.Store.Mutate(ctx, in.VisitID, func(existing *Record) (*Record, error) {
		if existing == nil {
			created := &Record{
				VisitID:           in.VisitID,
				SocialWorkerEmail: owner,
				SocialWorkerName:  in.SocialWorkerName,
				MemberID:          memberID,
				ClaimDay:          in.ClaimDay,
				VisitMonth:        MonthOf(in.ClaimDay),
				Status:            StatusDraft,
				SignedOff:         false,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			applyOptional(created, in)
			return created, nil
		}

		if err := checkEditable(existing, owner); err != nil {
			return nil, err
		}
		if existing.Status != StatusDraft {
			return nil, &PreconditionError{
				Rule:   RuleNotDraft,
				Reason: fmt.Sprintf("visit is already %s and cannot be edited as a draft", existing.Status),
			}
		}

		merged := *existing
		merged.ClaimDay = in.ClaimDay
		merged.VisitMonth = MonthOf(in.ClaimDay)
		if in.SocialWorkerName != "" {
			merged.SocialWorkerName = in.SocialWorkerName
		}
		if in.MemberID != "" {
			merged.MemberID = in.MemberID
		}
		applyOptional(&merged, in)
		merged.UpdatedAt = now
		return &merged, nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("visit draft saved",
		zap.String("visit_id", rec.VisitID),
		zap.String("visit_month", rec.VisitMonth),
		zap.String("owner", rec.SocialWorkerEmail),
	)
	return rec, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Submit moves a draft to submitted.
func (s *Service) Submit(ctx context.Context, visitID, workerEmail string) (*Record, error) {
	return s.transition(ctx, visitID, workerEmail, ActionSubmit)
}

// SignOff moves a submitted visit to signedOff. Terminal: once signed
// off, no field of the record may ever change again.
func (s *Service) SignOff(ctx context.Context, visitID, workerEmail string) (*Record, error) {
	return s.transition(ctx, visitID, workerEmail, ActionSignOff)
}

func (s *Service) transition(ctx context.Context, visitID, workerEmail string, action Action) (*Record, error) {
	if visitID == "" {
		return nil, &ValidationError{Field: "visitId", Reason: "is required"}
	}
	owner := strings.ToLower(strings.TrimSpace(workerEmail))
	if owner == "" {
		return nil, &ValidationError{Field: "socialWorkerEmail", Reason: "is required"}
	}

	existing, err := s.Store.Get(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("visit %q: %w", visitID, ErrNotFound)
	}
	if err := s.checkEligibility(ctx, existing.MemberID, action); err != nil {
		return nil, err
	}

	now := s.now()
	rec, err := s.Store.Mutate(ctx, visitID, func(existing *Record) (*Record, error) {
		if existing == nil {
			return nil, fmt.Errorf("visit %q: %w", visitID, ErrNotFound)
		}
		if err := checkEditable(existing, owner); err != nil {
			return nil, err
		}

		next := *existing
		switch action {
		case ActionSubmit:
			if existing.Status != StatusDraft {
				return nil, &PreconditionError{
					Rule:   RuleTransition,
					Reason: fmt.Sprintf("only draft visits can be submitted; this visit is %s", existing.Status),
				}
			}
			next.Status = StatusSubmitted
		case ActionSignOff:
			if existing.Status != StatusSubmitted {
				return nil, &PreconditionError{
					Rule:   RuleTransition,
					Reason: fmt.Sprintf("only submitted visits can be signed off; this visit is %s", existing.Status),
				}
			}
			next.Status = StatusSignedOff
			next.SignedOff = true
		default:
			return nil, fmt.Errorf("unknown action %q", action)
		}

		next.VisitMonth = MonthOf(next.ClaimDay)
		next.UpdatedAt = now
		return &next, nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("visit transitioned",
		zap.String("visit_id", rec.VisitID),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

// Get returns the visit record, or ErrNotFound.
func (s *Service) Get(ctx context.Context, visitID string) (*Record, error) {
	rec, err := s.Store.Get(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("visit %q: %w", visitID, ErrNotFound)
	}
	return rec, nil
}

// =============================================================================
// INTERNAL CHECKS
// =============================================================================

func validateDraftInput(in DraftInput) error {
	if in.VisitID == "" {
		return &ValidationError{Field: "visitId", Reason: "is required"}
	}
	if in.ClaimDay == "" {
		return &ValidationError{Field: "claimDay", Reason: "is required"}
	}
	if _, err := time.Parse("2006-01-02", in.ClaimDay); err != nil {
		return &ValidationError{Field: "claimDay", Reason: "must be a valid YYYY-MM-DD date"}
	}
	if strings.TrimSpace(in.SocialWorkerEmail) == "" {
		return &ValidationError{Field: "socialWorkerEmail", Reason: "is required"}
	}
	return nil
}

// checkEditable enforces the checks shared by every mutation of an
// existing record, in a fixed order: ownership, terminal sign-off,
// claim lock.
func checkEditable(existing *Record, owner string) error {
	if existing.SocialWorkerEmail != "" && existing.SocialWorkerEmail != owner {
		return &PreconditionError{
			Rule:   RuleOwnership,
			Reason: "this visit belongs to a different social worker",
		}
	}
	if existing.SignedOff {
		return &PreconditionError{
			Rule:   RuleSignedOff,
			Reason: "cannot edit a signed-off visit",
		}
	}
	if existing.ClaimLocked() {
		return &PreconditionError{
			Rule:   RuleClaimLocked,
			Reason: "this visit is tied to a submitted or paid claim and can no longer be edited",
		}
	}
	return nil
}

// memberIDFor resolves which member a draft save concerns: the payload's
// member id, or the stored one when the payload omits it.
func (s *Service) memberIDFor(ctx context.Context, visitID, inputMemberID string) (string, error) {
	if inputMemberID != "" {
		return inputMemberID, nil
	}
	existing, err := s.Store.Get(ctx, visitID)
	if err != nil {
		return "", err
	}
	if existing == nil || existing.MemberID == "" {
		return "", &ValidationError{Field: "memberId", Reason: "is required"}
	}
	return existing.MemberID, nil
}

// checkEligibility fetches a fresh member snapshot and runs the rule
// evaluator. A snapshot is never reused across calls.
func (s *Service) checkEligibility(ctx context.Context, memberID string, action Action) error {
	snap, err := s.Members.Lookup(ctx, memberID)
	if err != nil {
		return fmt.Errorf("fetching member snapshot: %w", err)
	}
	if err := s.Evaluator.Evaluate(snap, action); err != nil {
		s.Logger.Info("visit action denied by eligibility rules",
			zap.String("member_id", memberID),
			zap.String("action", string(action)),
			zap.String("reason", err.Error()),
		)
		return err
	}
	return nil
}

func applyOptional(rec *Record, in DraftInput) {
	if in.Flagged != nil {
		rec.Flagged = *in.Flagged
	}
	if in.TotalScore != nil {
		rec.TotalScore = *in.TotalScore
	}
	if len(in.Extra) > 0 {
		if rec.Extra == nil {
			rec.Extra = make(map[string]any, len(in.Extra))
		}
		for k, v := range in.Extra {
			rec.Extra[k] = v
		}
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
