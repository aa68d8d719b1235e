package reconcile_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcbloome/calaim-visit-engine/reconcile"
	"github.com/jcbloome/calaim-visit-engine/store/memory"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func seedVisit(t *testing.T, st *memory.Store, rec visit.Record) {
	t.Helper()
	_, err := st.Mutate(context.Background(), rec.VisitID, func(_ *visit.Record) (*visit.Record, error) {
		rec.VisitMonth = visit.MonthOf(rec.ClaimDay)
		return &rec, nil
	})
	require.NoError(t, err)
}

func newBuilder(st *memory.Store) *reconcile.Builder {
	return reconcile.NewBuilder(st, st, st, nil)
}

func dollars(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// =============================================================================
// VALIDATION
// =============================================================================

func TestBuildSummary_MonthValidation(t *testing.T) {
	b := newBuilder(memory.New())

	for _, bad := range []string{"", "2025", "2025-1", "2025/01", "25-01", "2025-01-15", "january"} {
		_, err := b.BuildSummary(context.Background(), bad)
		require.Error(t, err, "month %q", bad)
		assert.True(t, visit.IsValidation(err))
	}

	_, err := b.BuildSummary(context.Background(), "2025-01")
	assert.NoError(t, err)
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestBuildSummary_SingleWorkerCounts(t *testing.T) {
	st := memory.New()
	st.SeedMembers(
		reconcile.AssignedMember{MemberID: "M-1", Worker: "Worker A"},
		reconcile.AssignedMember{MemberID: "M-2", Worker: "Worker A"},
		reconcile.AssignedMember{MemberID: "M-3", Worker: "Worker A", Hold: "Y"},
	)
	seedVisit(t, st, visit.Record{
		VisitID: "v-1", SocialWorkerEmail: "worker.a@x.org", SocialWorkerName: "Worker A",
		MemberID: "M-1", ClaimDay: "2025-01-10", Status: visit.StatusSignedOff, SignedOff: true,
	})
	seedVisit(t, st, visit.Record{
		VisitID: "v-2", SocialWorkerEmail: "worker.a@x.org", SocialWorkerName: "Worker A",
		MemberID: "M-2", ClaimDay: "2025-01-12", Status: visit.StatusSubmitted, SignedOff: false,
	})
	st.SeedClaims(reconcile.ClaimRow{
		ClaimID: "c-1", Worker: "Worker A", ClaimMonth: "2025-01", TotalAmount: dollars(50),
	})

	b := newBuilder(st)
	sum, err := b.BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)

	// The visit identifies the worker by email, which normalizes to a
	// different key than the member collection's free-text name. The
	// member-scan row still joins with the claims row.
	var row *reconcile.Row
	for i := range sum.Rows {
		if sum.Rows[i].Key == "worker a" {
			row = &sum.Rows[i]
		}
	}
	require.NotNil(t, row)

	assert.Equal(t, 3, row.AssignedTotal)
	assert.Equal(t, 2, row.AssignedActive)
	assert.Equal(t, 1, row.OnHold)
	assert.Equal(t, 1, row.ClaimsCount)
	assert.True(t, dollars(50).Equal(row.ClaimsTotalAmount))
}

func TestBuildSummary_WorkerAScenario(t *testing.T) {
	// One consistent identity: 3 assigned (1 on hold), 1 signed-off
	// visit plus 1 still in flight, one $50 claim.
	st := memory.New()
	st.SeedMembers(
		reconcile.AssignedMember{MemberID: "M-1", Worker: "A"},
		reconcile.AssignedMember{MemberID: "M-2", Worker: "A"},
		reconcile.AssignedMember{MemberID: "M-3", Worker: "A", Hold: "1"},
	)
	seedVisit(t, st, visit.Record{
		VisitID: "v-1", SocialWorkerEmail: "A", MemberID: "M-1",
		ClaimDay: "2025-01-10", Status: visit.StatusSignedOff, SignedOff: true,
	})
	seedVisit(t, st, visit.Record{
		VisitID: "v-2", SocialWorkerEmail: "A", MemberID: "M-2",
		ClaimDay: "2025-01-12", Status: visit.StatusDraft, SignedOff: false,
	})
	st.SeedClaims(reconcile.ClaimRow{
		ClaimID: "c-1", Worker: "A", ClaimMonth: "2025-01", TotalAmount: dollars(50),
	})

	sum, err := newBuilder(st).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)
	require.Len(t, sum.Rows, 1)

	row := sum.Rows[0]
	assert.Equal(t, 3, row.AssignedTotal)
	assert.Equal(t, 2, row.AssignedActive)
	assert.Equal(t, 1, row.OnHold)
	assert.Equal(t, 1, row.Completed)
	assert.Equal(t, 1, row.Outstanding)
	assert.Equal(t, 1, row.ClaimsCount)
	assert.True(t, dollars(50).Equal(row.ClaimsTotalAmount))

	assert.Equal(t, 3, sum.Members.Scanned)
	assert.Equal(t, 2, sum.Visits.Scanned)
	assert.Equal(t, 1, sum.Claims.Scanned)
}

func TestBuildSummary_EmptyKeyRecordsDropped(t *testing.T) {
	st := memory.New()
	st.SeedMembers(
		reconcile.AssignedMember{MemberID: "M-1", Worker: "Alice"},
		reconcile.AssignedMember{MemberID: "M-2", Worker: "!!!"}, // normalizes to empty
	)
	seedVisit(t, st, visit.Record{
		VisitID: "v-1", SocialWorkerEmail: "???", MemberID: "M-9",
		ClaimDay: "2025-01-05", Status: visit.StatusSignedOff, SignedOff: true,
	})

	sum, err := newBuilder(st).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)

	require.Len(t, sum.Rows, 1)
	assert.Equal(t, "alice", sum.Rows[0].Key)
	for _, row := range sum.Rows {
		assert.NotEmpty(t, row.Key, "no row may exist for the empty key")
	}

	// Dropped records still count as scanned.
	assert.Equal(t, 2, sum.Members.Scanned)
	assert.Equal(t, 1, sum.Visits.Scanned)
}

func TestBuildSummary_SetSemantics(t *testing.T) {
	st := memory.New()
	st.SeedMembers(reconcile.AssignedMember{MemberID: "M-1", Worker: "Alice"})
	// Two signed-off visits for the same member dedupe in completed.
	seedVisit(t, st, visit.Record{
		VisitID: "v-1", SocialWorkerEmail: "Alice", MemberID: "M-1",
		ClaimDay: "2025-01-03", Status: visit.StatusSignedOff, SignedOff: true,
	})
	seedVisit(t, st, visit.Record{
		VisitID: "v-2", SocialWorkerEmail: "Alice", MemberID: "M-1",
		ClaimDay: "2025-01-20", Status: visit.StatusSignedOff, SignedOff: true,
	})

	sum, err := newBuilder(st).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)
	require.Len(t, sum.Rows, 1)
	assert.Equal(t, 1, sum.Rows[0].Completed)
	assert.Equal(t, 0, sum.Rows[0].Outstanding)
}

func TestBuildSummary_OtherMonthsExcluded(t *testing.T) {
	st := memory.New()
	st.SeedMembers(reconcile.AssignedMember{MemberID: "M-1", Worker: "Alice"})
	seedVisit(t, st, visit.Record{
		VisitID: "v-dec", SocialWorkerEmail: "Alice", MemberID: "M-1",
		ClaimDay: "2024-12-31", Status: visit.StatusSignedOff, SignedOff: true,
	})
	st.SeedClaims(reconcile.ClaimRow{
		ClaimID: "c-dec", Worker: "Alice", ClaimMonth: "2024-12", TotalAmount: dollars(75),
	})

	sum, err := newBuilder(st).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)
	require.Len(t, sum.Rows, 1)

	row := sum.Rows[0]
	assert.Equal(t, 0, row.Completed)
	assert.Equal(t, 0, row.ClaimsCount)
	assert.Equal(t, 1, row.Outstanding)
}

// =============================================================================
// END-TO-END ORDERING
// =============================================================================

func TestBuildSummary_EndToEndOrdering(t *testing.T) {
	st := memory.New()

	// Alice Smith: 5 assigned, 1 on hold -> 4 active, 3 completed -> 1 outstanding.
	members := []reconcile.AssignedMember{
		{MemberID: "A-1", Worker: "Alice Smith"},
		{MemberID: "A-2", Worker: "Alice Smith"},
		{MemberID: "A-3", Worker: "Alice Smith"},
		{MemberID: "A-4", Worker: "Alice Smith"},
		{MemberID: "A-5", Worker: "Alice Smith", Hold: "Y"},
		// Bob Lee: 2 assigned, both active.
		{MemberID: "B-1", Worker: "bob.lee"},
		{MemberID: "B-2", Worker: "bob.lee"},
	}
	st.SeedMembers(members...)

	for _, m := range []string{"A-1", "A-2", "A-3"} {
		seedVisit(t, st, visit.Record{
			VisitID: "va-" + m, SocialWorkerEmail: "ALICE  SMITH!", MemberID: m,
			ClaimDay: "2025-01-10", Status: visit.StatusSignedOff, SignedOff: true,
		})
	}
	for _, m := range []string{"B-1", "B-2"} {
		seedVisit(t, st, visit.Record{
			VisitID: "vb-" + m, SocialWorkerEmail: "Bob Lee", MemberID: m,
			ClaimDay: "2025-01-20", Status: visit.StatusSignedOff, SignedOff: true,
		})
	}

	sum, err := newBuilder(st).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)
	require.Len(t, sum.Rows, 2)

	alice, bob := sum.Rows[0], sum.Rows[1]
	assert.Equal(t, "alice smith", alice.Key, "higher outstanding sorts first")
	assert.Equal(t, 5, alice.AssignedTotal)
	assert.Equal(t, 4, alice.AssignedActive)
	assert.Equal(t, 3, alice.Completed)
	assert.Equal(t, 1, alice.Outstanding)

	assert.Equal(t, "bob lee", bob.Key)
	assert.Equal(t, 2, bob.AssignedActive)
	assert.Equal(t, 2, bob.Completed)
	assert.Equal(t, 0, bob.Outstanding)
}

func TestBuildSummary_TieBreaksAlphabetical(t *testing.T) {
	st := memory.New()
	st.SeedMembers(
		reconcile.AssignedMember{MemberID: "M-1", Worker: "Zoe"},
		reconcile.AssignedMember{MemberID: "M-2", Worker: "Ann"},
	)

	sum, err := newBuilder(st).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)
	require.Len(t, sum.Rows, 2)
	assert.Equal(t, "Ann", sum.Rows[0].DisplayName)
	assert.Equal(t, "Zoe", sum.Rows[1].DisplayName)
}

func TestBuildSummary_DisplayNamePreference(t *testing.T) {
	st := memory.New()
	// No member-scan presence for this worker; the visit scan supplies
	// the name.
	seedVisit(t, st, visit.Record{
		VisitID: "v-1", SocialWorkerEmail: "carol.j@x.org", SocialWorkerName: "Carol J",
		MemberID: "M-1", ClaimDay: "2025-01-08", Status: visit.StatusSignedOff, SignedOff: true,
	})

	sum, err := newBuilder(st).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)
	require.Len(t, sum.Rows, 1)
	assert.Equal(t, "Carol J", sum.Rows[0].DisplayName)
}

func TestBuildSummary_RunIDAssigned(t *testing.T) {
	sum, err := newBuilder(memory.New()).BuildSummary(context.Background(), "2025-01")
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
}
