/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements visit.Store plus the two reconciliation sources
  (reconcile.MemberSource, reconcile.ClaimSource) using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  visit.Store:            visit record persistence + month pagination
  reconcile.MemberSource: assigned-member pagination
  reconcile.ClaimSource:  claims pagination

CONDITIONAL WRITES:
  Visit mutation runs the read-check-write sequence inside one SQL
  transaction, so concurrent writers to the same visit id serialize on
  the database and a lost race surfaces as a precondition failure from
  the business checks, never as silent data loss.

KEY TABLES:
  visits:  the mutable visit aggregates, keyed by visit_id
  members: mirror of the assigned-member collection (written by the
           sync job, read by reconciliation)
  claims:  mirror of the claims collection (written by billing sync)

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/calaim.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - visit/types.go: Store contract
  - store/memory: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/jcbloome/calaim-visit-engine/reconcile"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps Mutate transactions serialized.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Visit records (the mutable aggregate)
	CREATE TABLE IF NOT EXISTS visits (
		visit_id TEXT PRIMARY KEY,
		social_worker_email TEXT NOT NULL,
		social_worker_name TEXT,
		member_id TEXT NOT NULL,
		claim_day TEXT NOT NULL,
		visit_month TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		signed_off BOOLEAN NOT NULL DEFAULT FALSE,
		claim_status TEXT DEFAULT '',
		claim_submitted BOOLEAN NOT NULL DEFAULT FALSE,
		claim_paid BOOLEAN NOT NULL DEFAULT FALSE,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		total_score REAL NOT NULL DEFAULT 0,
		extra_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: month scan ordered by visit_id for cursoring
	CREATE INDEX IF NOT EXISTS idx_visits_month_id
		ON visits(visit_month, visit_id);
	CREATE INDEX IF NOT EXISTS idx_visits_worker
		ON visits(social_worker_email);

	-- Assigned-member mirror (written by the upstream sync job)
	CREATE TABLE IF NOT EXISTS members (
		member_id TEXT PRIMARY KEY,
		worker TEXT NOT NULL DEFAULT '',
		worker_name TEXT DEFAULT '',
		hold TEXT DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_worker
		ON members(worker) WHERE worker != '';

	-- Claims mirror (written by the billing sync)
	CREATE TABLE IF NOT EXISTS claims (
		claim_id TEXT PRIMARY KEY,
		worker TEXT NOT NULL DEFAULT '',
		claim_month TEXT NOT NULL,
		total_amount TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_month_id
		ON claims(claim_month, claim_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// VISIT STORE (visit.Store interface)
// =============================================================================

// Get returns the visit record, or nil if none exists.
func (s *Store) Get(ctx context.Context, visitID string) (*visit.Record, error) {
	return s.getVisit(ctx, s.db, visitID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getVisit(ctx context.Context, db queryer, visitID string) (*visit.Record, error) {
	row := db.QueryRowContext(ctx, `
		SELECT visit_id, social_worker_email, social_worker_name, member_id,
		       claim_day, visit_month, status, signed_off,
		       claim_status, claim_submitted, claim_paid,
		       flagged, total_score, extra_json, created_at, updated_at
		FROM visits WHERE visit_id = ?
	`, visitID)

	rec, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load visit %q: %w", visitID, err)
	}
	return rec, nil
}

// Mutate runs fn inside a SQL transaction: load, check, write. The
// transaction is the native conditional-write primitive that serializes
// concurrent writers of the same visit id.
func (s *Store) Mutate(ctx context.Context, visitID string, fn func(existing *visit.Record) (*visit.Record, error)) (*visit.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.getVisit(ctx, tx, visitID)
	if err != nil {
		return nil, err
	}

	next, err := fn(existing)
	if err != nil {
		// Business checks failed: nothing is written.
		return nil, err
	}

	extraJSON := []byte("null")
	if next.Extra != nil {
		extraJSON, _ = json.Marshal(next.Extra)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO visits
		(visit_id, social_worker_email, social_worker_name, member_id,
		 claim_day, visit_month, status, signed_off,
		 claim_status, claim_submitted, claim_paid,
		 flagged, total_score, extra_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(visit_id) DO UPDATE SET
			social_worker_email = excluded.social_worker_email,
			social_worker_name  = excluded.social_worker_name,
			member_id           = excluded.member_id,
			claim_day           = excluded.claim_day,
			visit_month         = excluded.visit_month,
			status              = excluded.status,
			signed_off          = excluded.signed_off,
			claim_status        = excluded.claim_status,
			claim_submitted     = excluded.claim_submitted,
			claim_paid          = excluded.claim_paid,
			flagged             = excluded.flagged,
			total_score         = excluded.total_score,
			extra_json          = excluded.extra_json,
			updated_at          = excluded.updated_at
	`,
		next.VisitID,
		next.SocialWorkerEmail,
		next.SocialWorkerName,
		next.MemberID,
		next.ClaimDay,
		next.VisitMonth,
		string(next.Status),
		next.SignedOff,
		next.ClaimStatus,
		next.ClaimSubmitted,
		next.ClaimPaid,
		next.Flagged,
		next.TotalScore,
		string(extraJSON),
		next.CreatedAt.UTC().Format(time.RFC3339Nano),
		next.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to write visit %q: %w", visitID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit visit %q: %w", visitID, err)
	}
	return next, nil
}

// VisitsByMonth returns one page of visits for the month, ordered by
// visit id strictly after the cursor.
func (s *Store) VisitsByMonth(ctx context.Context, month, cursor string, limit int) ([]visit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT visit_id, social_worker_email, social_worker_name, member_id,
		       claim_day, visit_month, status, signed_off,
		       claim_status, claim_submitted, claim_paid,
		       flagged, total_score, extra_json, created_at, updated_at
		FROM visits
		WHERE visit_month = ? AND visit_id > ?
		ORDER BY visit_id
		LIMIT ?
	`, month, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits for %s: %w", month, err)
	}
	defer rows.Close()

	var out []visit.Record
	for rows.Next() {
		rec, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner) (*visit.Record, error) {
	var (
		rec                  visit.Record
		status               string
		name, claimStatus    sql.NullString
		extraJSON            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&rec.VisitID, &rec.SocialWorkerEmail, &name, &rec.MemberID,
		&rec.ClaimDay, &rec.VisitMonth, &status, &rec.SignedOff,
		&claimStatus, &rec.ClaimSubmitted, &rec.ClaimPaid,
		&rec.Flagged, &rec.TotalScore, &extraJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = visit.Status(status)
	rec.SocialWorkerName = name.String
	rec.ClaimStatus = claimStatus.String
	if extraJSON.Valid && extraJSON.String != "" && extraJSON.String != "null" {
		_ = json.Unmarshal([]byte(extraJSON.String), &rec.Extra)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// =============================================================================
// ASSIGNED-MEMBER MIRROR (reconcile.MemberSource interface)
// =============================================================================

// UpsertAssignedMember is the sync-job write path for the member mirror.
func (s *Store) UpsertAssignedMember(ctx context.Context, m reconcile.AssignedMember) error {
	hold := ""
	if m.Hold != nil {
		hold = fmt.Sprintf("%v", m.Hold)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (member_id, worker, worker_name, hold, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(member_id) DO UPDATE SET
			worker = excluded.worker,
			worker_name = excluded.worker_name,
			hold = excluded.hold,
			updated_at = excluded.updated_at
	`, m.MemberID, m.Worker, m.WorkerName, hold, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert member %q: %w", m.MemberID, err)
	}
	return nil
}

// AssignedMembers pages through members with a non-empty assigned
// worker, ordered by member id strictly after the cursor.
func (s *Store) AssignedMembers(ctx context.Context, cursor string, limit int) ([]reconcile.AssignedMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, worker, worker_name, hold
		FROM members
		WHERE worker != '' AND member_id > ?
		ORDER BY member_id
		LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query assigned members: %w", err)
	}
	defer rows.Close()

	var out []reconcile.AssignedMember
	for rows.Next() {
		var m reconcile.AssignedMember
		var hold string
		if err := rows.Scan(&m.MemberID, &m.Worker, &m.WorkerName, &hold); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		m.Hold = hold
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// CLAIMS MIRROR (reconcile.ClaimSource interface)
// =============================================================================

// UpsertClaim is the billing-sync write path for the claims mirror.
func (s *Store) UpsertClaim(ctx context.Context, c reconcile.ClaimRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (claim_id, worker, claim_month, total_amount, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
			worker = excluded.worker,
			claim_month = excluded.claim_month,
			total_amount = excluded.total_amount,
			updated_at = excluded.updated_at
	`, c.ClaimID, c.Worker, c.ClaimMonth, c.TotalAmount.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert claim %q: %w", c.ClaimID, err)
	}
	return nil
}

// ClaimsByMonth pages through the month's claims, ordered by claim id
// strictly after the cursor.
func (s *Store) ClaimsByMonth(ctx context.Context, month, cursor string, limit int) ([]reconcile.ClaimRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id, worker, claim_month, total_amount
		FROM claims
		WHERE claim_month = ? AND claim_id > ?
		ORDER BY claim_id
		LIMIT ?
	`, month, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims for %s: %w", month, err)
	}
	defer rows.Close()

	var out []reconcile.ClaimRow
	for rows.Next() {
		var c reconcile.ClaimRow
		var amount string
		if err := rows.Scan(&c.ClaimID, &c.Worker, &c.ClaimMonth, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan claim row: %w", err)
		}
		// Missing or non-numeric amounts default to zero by policy.
		if d, err := decimal.NewFromString(amount); err == nil {
			c.TotalAmount = d
		} else {
			c.TotalAmount = decimal.Zero
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
