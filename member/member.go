/*
Package member provides read-only access to member eligibility snapshots.

PURPOSE:
  The visit engine never owns member data. Eligibility rules run against a
  point-in-time snapshot of a member record sourced from the upstream
  case-management system (Caspio), either directly over REST or through
  the synchronized Redis cache the portal keeps warm.

KEY TYPES:
  Snapshot: immutable input for one rule evaluation
  Source:   lookup-by-id interface, one implementation per backend

STALENESS:
  A snapshot is fetched fresh for every mutating call. Staleness between
  fetch and write is the caller's responsibility; there is no locking
  across systems.

IMPLEMENTATIONS:
  - redis.go:  RedisSource (synchronized cache)
  - caspio.go: CaspioSource (direct REST lookup)
  - StaticSource below (tests and demos)

SEE ALSO:
  - visit/eligibility.go: consumes Snapshot
*/
package member

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no snapshot exists for a member id.
var ErrNotFound = errors.New("member not found")

// Snapshot is a point-in-time copy of a member record. It is immutable
// input for one eligibility evaluation and is never written back.
type Snapshot struct {
	MemberID   string `json:"member_id"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	HealthPlan string `json:"health_plan"`

	// Status is free text from the upstream system. Only the literal
	// family "Authorized"/"Authorized *" is eligible for visit actions.
	Status string `json:"status"`

	// HoldForSocialWorker arrives as a bool, a number, or free text
	// ("Y", "1", "Hold for SW", ...). Interpreted via identity.Truthy.
	HoldForSocialWorker any `json:"hold_for_social_worker"`

	// AuthorizationEndDate is only meaningful when HealthPlan contains
	// "kaiser". Accepts "YYYY-MM-DD..." or "M/D/YYYY" prefixes.
	AuthorizationEndDate string `json:"authorization_end_date,omitempty"`
}

// Source looks up member snapshots by id.
type Source interface {
	// Lookup returns the current snapshot for a member.
	// Returns ErrNotFound when the member is unknown.
	Lookup(ctx context.Context, memberID string) (*Snapshot, error)
}

// =============================================================================
// STATIC SOURCE - fixed map, for tests and demo seeding
// =============================================================================

// StaticSource serves snapshots from a fixed map.
type StaticSource struct {
	Members map[string]*Snapshot
}

// NewStaticSource builds a StaticSource from a list of snapshots.
func NewStaticSource(snapshots ...*Snapshot) *StaticSource {
	m := make(map[string]*Snapshot, len(snapshots))
	for _, s := range snapshots {
		m[s.MemberID] = s
	}
	return &StaticSource{Members: m}
}

func (s *StaticSource) Lookup(_ context.Context, memberID string) (*Snapshot, error) {
	snap, ok := s.Members[memberID]
	if !ok {
		return nil, fmt.Errorf("member %q: %w", memberID, ErrNotFound)
	}
	cp := *snap
	return &cp, nil
}
