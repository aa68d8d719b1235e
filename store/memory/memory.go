// Package memory provides in-memory store implementations (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jcbloome/calaim-visit-engine/reconcile"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

// =============================================================================
// MEMORY STORE - visits, assigned members, claims
// =============================================================================

// Store holds all three collections in memory. It implements
// visit.Store, reconcile.MemberSource, and reconcile.ClaimSource.
type Store struct {
	mu      sync.RWMutex
	visits  map[string]visit.Record
	members []reconcile.AssignedMember
	claims  []reconcile.ClaimRow
}

func New() *Store {
	return &Store{visits: make(map[string]visit.Record)}
}

// =============================================================================
// VISIT STORE
// =============================================================================

func (s *Store) Get(_ context.Context, visitID string) (*visit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.visits[visitID]
	if !ok {
		return nil, nil
	}
	cp := cloneRecord(rec)
	return &cp, nil
}

// Mutate applies fn under the store lock, giving the same atomic
// read-check-write the sqlite implementation gets from a transaction.
func (s *Store) Mutate(_ context.Context, visitID string, fn func(existing *visit.Record) (*visit.Record, error)) (*visit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *visit.Record
	if rec, ok := s.visits[visitID]; ok {
		cp := cloneRecord(rec)
		existing = &cp
	}

	next, err := fn(existing)
	if err != nil {
		return nil, err
	}

	s.visits[visitID] = cloneRecord(*next)
	out := cloneRecord(*next)
	return &out, nil
}

func (s *Store) VisitsByMonth(_ context.Context, month, cursor string, limit int) ([]visit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.visits))
	for id, rec := range s.visits {
		if rec.VisitMonth == month && id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]visit.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRecord(s.visits[id]))
	}
	return out, nil
}

// =============================================================================
// RECONCILIATION SOURCES
// =============================================================================

// SeedMembers replaces the assigned-member collection.
func (s *Store) SeedMembers(members ...reconcile.AssignedMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append([]reconcile.AssignedMember{}, members...)
	sort.Slice(s.members, func(i, j int) bool { return s.members[i].MemberID < s.members[j].MemberID })
}

// SeedClaims replaces the claims collection.
func (s *Store) SeedClaims(claims ...reconcile.ClaimRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append([]reconcile.ClaimRow{}, claims...)
	sort.Slice(s.claims, func(i, j int) bool { return s.claims[i].ClaimID < s.claims[j].ClaimID })
}

func (s *Store) AssignedMembers(_ context.Context, cursor string, limit int) ([]reconcile.AssignedMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reconcile.AssignedMember
	for _, m := range s.members {
		if m.Worker == "" {
			continue
		}
		if m.MemberID > cursor {
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ClaimsByMonth(_ context.Context, month, cursor string, limit int) ([]reconcile.ClaimRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reconcile.ClaimRow
	for _, c := range s.claims {
		if c.ClaimMonth != month {
			continue
		}
		if c.ClaimID > cursor {
			out = append(out, c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func cloneRecord(rec visit.Record) visit.Record {
	cp := rec
	if rec.Extra != nil {
		cp.Extra = make(map[string]any, len(rec.Extra))
		for k, v := range rec.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}
