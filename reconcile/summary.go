/*
summary.go - Monthly per-worker reconciliation

PURPOSE:
  Joins three independently-updated collections — assigned members,
  visit records, claims — into one ranked per-worker summary for a
  month. The collections disagree on how a worker is identified (name,
  email, opaque id), so the join key is the normalized identity.

ALGORITHM:
  1. Scan assigned members; bucket member ids per worker key into
     assigned-total and assigned-active sets (hold flag excludes from
     active and increments on-hold).
  2. Scan the month's visits; signed-off visits add the member id to
     the worker's completed set.
  3. Scan the month's claims; accumulate count and decimal total.
  4. Union the key spaces, compute outstanding = max(0, active-completed),
     sort deterministically.

  The three scans read disjoint collections and run concurrently.
  Records whose identity normalizes to empty are silently dropped —
  never bucketed under the empty key — but still count as scanned.

BEST-EFFORT POLICY:
  A failed or capped scan degrades the summary instead of aborting it.
  The response carries per-source counters and truncation/partial flags
  so the caller can tell a complete summary from a degraded one.

SEE ALSO:
  - scanner.go: pagination contract
  - identity/identity.go: join key
*/
package reconcile

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jcbloome/calaim-visit-engine/identity"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

// =============================================================================
// SOURCE RECORDS AND INTERFACES
// =============================================================================

// AssignedMember is one row of the assigned-member collection: a member
// currently assigned to a social worker.
type AssignedMember struct {
	MemberID   string
	Worker     string // free-text worker identifier (name or email)
	WorkerName string // display name, when distinct from Worker
	Hold       any    // boolean-like; see identity.Truthy
}

// ClaimRow is one row of the claims collection.
type ClaimRow struct {
	ClaimID     string
	Worker      string // free-text worker identifier
	ClaimMonth  string // "YYYY-MM"
	TotalAmount decimal.Decimal
}

// MemberSource pages through members with a non-empty assigned worker.
type MemberSource interface {
	AssignedMembers(ctx context.Context, cursor string, limit int) ([]AssignedMember, error)
}

// VisitSource pages through visit records for a month.
// Satisfied by visit.Store.
type VisitSource interface {
	VisitsByMonth(ctx context.Context, month, cursor string, limit int) ([]visit.Record, error)
}

// ClaimSource pages through claim rows for a month.
type ClaimSource interface {
	ClaimsByMonth(ctx context.Context, month, cursor string, limit int) ([]ClaimRow, error)
}

// =============================================================================
// OUTPUT
// =============================================================================

// Row is one worker's reconciled month. Ephemeral: recomputed per
// request, never persisted.
type Row struct {
	Key               string          `json:"key"`
	DisplayName       string          `json:"display_name"`
	AssignedTotal     int             `json:"assigned_total"`
	AssignedActive    int             `json:"assigned_active"`
	OnHold            int             `json:"on_hold"`
	Completed         int             `json:"completed"`
	Outstanding       int             `json:"outstanding"`
	ClaimsCount       int             `json:"claims_count"`
	ClaimsTotalAmount decimal.Decimal `json:"claims_total_amount"`
}

// SourceStats describes how one scan went.
type SourceStats struct {
	Scanned   int  `json:"scanned"`
	Truncated bool `json:"truncated"` // safety cap hit; results may be incomplete
	Partial   bool `json:"partial"`   // a page fetch failed mid-scan
}

// Summary is the ranked result of one reconciliation run.
type Summary struct {
	RunID   string      `json:"run_id"`
	Month   string      `json:"month"`
	Rows    []Row       `json:"rows"`
	Members SourceStats `json:"members"`
	Visits  SourceStats `json:"visits"`
	Claims  SourceStats `json:"claims"`
}

// =============================================================================
// BUILDER
// =============================================================================

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Builder computes monthly summaries. All dependencies are injected.
type Builder struct {
	Members MemberSource
	Visits  VisitSource
	Claims  ClaimSource
	Logger  *zap.Logger

	// Scan sizing; zero picks the scanner defaults.
	PageSize int
	MaxPages int
}

// NewBuilder wires a Builder over the three collection sources.
func NewBuilder(members MemberSource, visits VisitSource, claims ClaimSource, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Members: members, Visits: visits, Claims: claims, Logger: logger}
}

// per-worker accumulation, one map per scan so the three goroutines
// never share state.
type memberBucket struct {
	name     string
	assigned map[string]bool
	active   map[string]bool
	onHold   int
}

type visitBucket struct {
	name      string
	completed map[string]bool
}

type claimBucket struct {
	count int
	total decimal.Decimal
}

// BuildSummary reconciles one month. The month must match YYYY-MM or
// the call fails before any scan is attempted.
func (b *Builder) BuildSummary(ctx context.Context, month string) (*Summary, error) {
	if !monthPattern.MatchString(month) {
		return nil, &visit.ValidationError{Field: "month", Reason: "must match YYYY-MM"}
	}

	runID := uuid.NewString()

	var (
		wg sync.WaitGroup

		memberBuckets map[string]*memberBucket
		visitBuckets  map[string]*visitBucket
		claimBuckets  map[string]*claimBucket

		memberStats SourceStats
		visitStats  SourceStats
		claimStats  SourceStats
	)

	// The three collections are disjoint, so the scans run concurrently.
	// Pages within each scan stay strictly ordered.
	wg.Add(3)
	go func() {
		defer wg.Done()
		memberBuckets, memberStats = b.scanMembers(ctx, runID)
	}()
	go func() {
		defer wg.Done()
		visitBuckets, visitStats = b.scanVisits(ctx, runID, month)
	}()
	go func() {
		defer wg.Done()
		claimBuckets, claimStats = b.scanClaims(ctx, runID, month)
	}()
	wg.Wait()

	rows := joinBuckets(memberBuckets, visitBuckets, claimBuckets)
	sortRows(rows)

	return &Summary{
		RunID:   runID,
		Month:   month,
		Rows:    rows,
		Members: memberStats,
		Visits:  visitStats,
		Claims:  claimStats,
	}, nil
}

func (b *Builder) scanMembers(ctx context.Context, runID string) (map[string]*memberBucket, SourceStats) {
	buckets := make(map[string]*memberBucket)

	scanner := &Scanner[AssignedMember]{
		Fetch:    b.Members.AssignedMembers,
		Key:      func(m AssignedMember) string { return m.MemberID },
		PageSize: b.PageSize,
		MaxPages: b.MaxPages,
	}
	scan := scanner.Start(ctx)
	for {
		m, ok := scan.Next()
		if !ok {
			break
		}
		key := identity.Normalize(m.Worker)
		if key == "" {
			continue
		}
		bkt := buckets[key]
		if bkt == nil {
			bkt = &memberBucket{assigned: make(map[string]bool), active: make(map[string]bool)}
			buckets[key] = bkt
		}
		if bkt.name == "" {
			if m.WorkerName != "" {
				bkt.name = m.WorkerName
			} else {
				bkt.name = m.Worker
			}
		}
		bkt.assigned[m.MemberID] = true
		if identity.Truthy(m.Hold) {
			bkt.onHold++
		} else {
			bkt.active[m.MemberID] = true
		}
	}
	return buckets, b.finishScan(scan.Scanned(), scan.Truncated(), scan.Err(), runID, "members")
}

func (b *Builder) scanVisits(ctx context.Context, runID, month string) (map[string]*visitBucket, SourceStats) {
	buckets := make(map[string]*visitBucket)

	scanner := &Scanner[visit.Record]{
		Fetch: func(ctx context.Context, cursor string, limit int) ([]visit.Record, error) {
			return b.Visits.VisitsByMonth(ctx, month, cursor, limit)
		},
		Key:      func(v visit.Record) string { return v.VisitID },
		PageSize: b.PageSize,
		MaxPages: b.MaxPages,
	}
	scan := scanner.Start(ctx)
	for {
		v, ok := scan.Next()
		if !ok {
			break
		}
		// Only a signed-off visit counts as completed.
		if !v.SignedOff {
			continue
		}
		key := identity.Normalize(workerOf(v))
		if key == "" {
			continue
		}
		bkt := buckets[key]
		if bkt == nil {
			bkt = &visitBucket{completed: make(map[string]bool)}
			buckets[key] = bkt
		}
		if bkt.name == "" && v.SocialWorkerName != "" {
			bkt.name = v.SocialWorkerName
		}
		bkt.completed[v.MemberID] = true
	}
	return buckets, b.finishScan(scan.Scanned(), scan.Truncated(), scan.Err(), runID, "visits")
}

func (b *Builder) scanClaims(ctx context.Context, runID, month string) (map[string]*claimBucket, SourceStats) {
	buckets := make(map[string]*claimBucket)

	scanner := &Scanner[ClaimRow]{
		Fetch: func(ctx context.Context, cursor string, limit int) ([]ClaimRow, error) {
			return b.Claims.ClaimsByMonth(ctx, month, cursor, limit)
		},
		Key:      func(c ClaimRow) string { return c.ClaimID },
		PageSize: b.PageSize,
		MaxPages: b.MaxPages,
	}
	scan := scanner.Start(ctx)
	for {
		c, ok := scan.Next()
		if !ok {
			break
		}
		key := identity.Normalize(c.Worker)
		if key == "" {
			continue
		}
		bkt := buckets[key]
		if bkt == nil {
			bkt = &claimBucket{}
			buckets[key] = bkt
		}
		bkt.count++
		bkt.total = bkt.total.Add(c.TotalAmount)
	}
	return buckets, b.finishScan(scan.Scanned(), scan.Truncated(), scan.Err(), runID, "claims")
}

// finishScan packages scan outcome into stats and logs degraded runs.
func (b *Builder) finishScan(scanned int, truncated bool, err error, runID, source string) SourceStats {
	stats := SourceStats{Scanned: scanned, Truncated: truncated, Partial: err != nil}
	if truncated {
		b.Logger.Warn("scan hit safety cap; summary may be incomplete",
			zap.String("run_id", runID),
			zap.String("source", source),
			zap.Int("scanned", scanned),
		)
	}
	if err != nil {
		b.Logger.Warn("scan stopped early on fetch failure; keeping partial results",
			zap.String("run_id", runID),
			zap.String("source", source),
			zap.Int("scanned", scanned),
			zap.Error(err),
		)
	}
	return stats
}

// =============================================================================
// JOIN AND ORDERING
// =============================================================================

func joinBuckets(members map[string]*memberBucket, visits map[string]*visitBucket, claims map[string]*claimBucket) []Row {
	keys := make(map[string]bool)
	for k := range members {
		keys[k] = true
	}
	for k := range visits {
		keys[k] = true
	}
	for k := range claims {
		keys[k] = true
	}

	rows := make([]Row, 0, len(keys))
	for k := range keys {
		row := Row{Key: k, ClaimsTotalAmount: decimal.Zero}

		if mb := members[k]; mb != nil {
			row.AssignedTotal = len(mb.assigned)
			row.AssignedActive = len(mb.active)
			row.OnHold = mb.onHold
			row.DisplayName = mb.name
		}
		if vb := visits[k]; vb != nil {
			row.Completed = len(vb.completed)
			if row.DisplayName == "" {
				row.DisplayName = vb.name
			}
		}
		if cb := claims[k]; cb != nil {
			row.ClaimsCount = cb.count
			row.ClaimsTotalAmount = cb.total
		}
		if row.DisplayName == "" {
			row.DisplayName = k
		}

		if out := row.AssignedActive - row.Completed; out > 0 {
			row.Outstanding = out
		}
		rows = append(rows, row)
	}
	return rows
}

// sortRows orders rows by outstanding desc, then assigned-active desc,
// then claims total desc, then display name asc. Total and stable.
func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Outstanding != b.Outstanding {
			return a.Outstanding > b.Outstanding
		}
		if a.AssignedActive != b.AssignedActive {
			return a.AssignedActive > b.AssignedActive
		}
		if cmp := a.ClaimsTotalAmount.Cmp(b.ClaimsTotalAmount); cmp != 0 {
			return cmp > 0
		}
		return a.DisplayName < b.DisplayName
	})
}

// workerOf picks the visit's worker identifier: email is the owner key,
// name is the fallback for legacy records saved without one.
func workerOf(v visit.Record) string {
	if v.SocialWorkerEmail != "" {
		return v.SocialWorkerEmail
	}
	return v.SocialWorkerName
}
