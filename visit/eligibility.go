/*
eligibility.go - Member-eligibility business rules

PURPOSE:
  Decides whether a visit action (save draft, submit, sign off) is
  permitted for a member, from a read-only snapshot of the member record.

RULES (fixed order, first failure wins):
  1. Status:  must be "authorized" or "authorized <anything>"
  2. Hold:    any truthy spelling of the hold flag suspends visits
  3. Kaiser:  for Kaiser plans, an authorization end date strictly
              before today's local calendar date suspends visits

The evaluator runs on EVERY mutating call. Eligibility can change
between requests, so a snapshot is never cached across calls.

SEE ALSO:
  - member/member.go: Snapshot definition
  - identity/identity.go: Truthy
*/
package visit

import (
	"fmt"
	"strings"
	"time"

	"github.com/jcbloome/calaim-visit-engine/identity"
	"github.com/jcbloome/calaim-visit-engine/member"
)

// Rule identifiers, reported on denials.
const (
	RuleStatus      = "member_status"
	RuleHold        = "member_hold"
	RuleKaiserAuth  = "kaiser_authorization"
	RuleOwnership   = "ownership"
	RuleSignedOff   = "signed_off"
	RuleClaimLocked = "claim_locked"
	RuleNotDraft    = "not_draft"
	RuleTransition  = "transition"
)

// Evaluator applies the member-eligibility rules. Zero value is usable;
// Now is injectable for tests and defaults to time.Now.
type Evaluator struct {
	Now func() time.Time
}

// Evaluate checks whether action is permitted for the member. Returns
// nil on allow, or a *PreconditionError naming the rule that denied.
// The action itself does not change which rules run; every mutating
// call is gated the same way.
func (e *Evaluator) Evaluate(m *member.Snapshot, action Action) error {
	// Rule 1: status family "Authorized" / "Authorized *".
	status := strings.ToLower(strings.TrimSpace(m.Status))
	if status != "authorized" && !strings.HasPrefix(status, "authorized ") {
		return &PreconditionError{
			Rule:   RuleStatus,
			Reason: "only Authorized members can have social worker visits",
		}
	}

	// Rule 2: hold flag.
	if identity.Truthy(m.HoldForSocialWorker) {
		return &PreconditionError{
			Rule:   RuleHold,
			Reason: "member is on hold for social worker visits",
		}
	}

	// Rule 3: Kaiser authorization expiry, local calendar dates only.
	if strings.Contains(strings.ToLower(m.HealthPlan), "kaiser") {
		end, ok := parseEndDate(m.AuthorizationEndDate)
		if ok {
			today := e.today()
			if end.Before(today) {
				return &PreconditionError{
					Rule: RuleKaiserAuth,
					Reason: fmt.Sprintf("authorization ended on %s; visits are suspended",
						end.Format("2006-01-02")),
				}
			}
		}
		// Unparseable or absent end date means no expiry on record.
	}

	return nil
}

func (e *Evaluator) today() time.Time {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// parseEndDate accepts "YYYY-MM-DD..." and "M/D/YYYY..." prefixes, then
// falls back to a few generic layouts. The result is truncated to local
// midnight so only calendar dates compare.
func parseEndDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if len(s) >= 10 {
		if t, err := time.ParseInLocation("2006-01-02", s[:10], time.Local); err == nil {
			return t, true
		}
	}

	// M/D/YYYY with optional trailing time.
	head := s
	if i := strings.IndexByte(s, ' '); i > 0 {
		head = s[:i]
	}
	for _, layout := range []string{"1/2/2006", "01/02/2006"} {
		if t, err := time.ParseInLocation(layout, head, time.Local); err == nil {
			return t, true
		}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local), true
		}
	}

	return time.Time{}, false
}
