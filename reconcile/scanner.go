/*
scanner.go - Paginated collection scanner

PURPOSE:
  Walks an entire filtered collection in bounded pages. Each page is
  keyed by a stable sort key; the last key of one page is the cursor
  for the next, so pages must be fetched strictly in order.

TERMINATION:
  - Short page: end of data.
  - MaxPages reached: safety cap. NOT an error — the caller treats the
    result as "may be incomplete" (Truncated()).
  - Fetch failure mid-scan: graceful stop with what was read (Err()).
    Best-effort by policy; one flaky backend must not abort a whole
    monthly summary.

The scan is lazy, finite, non-restartable, and read-only. Records whose
key repeats across pages are deduplicated, but still count as scanned.
*/
package reconcile

import "context"

// Scanner defaults, used when the caller leaves the knobs zero.
const (
	DefaultPageSize = 200
	DefaultMaxPages = 50
)

// PageFunc fetches one page of records with keys strictly after cursor,
// ordered by key, at most limit records.
type PageFunc[T any] func(ctx context.Context, cursor string, limit int) ([]T, error)

// Scanner drives a cursor walk over one collection.
type Scanner[T any] struct {
	// Fetch retrieves one page. Required.
	Fetch PageFunc[T]

	// Key extracts the stable sort key used for cursoring and dedup.
	// Required.
	Key func(T) string

	PageSize int
	MaxPages int
}

// Start begins a scan. The returned Scan is single-use.
func (s *Scanner[T]) Start(ctx context.Context) *Scan[T] {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Scan[T]{
		ctx:      ctx,
		fetch:    s.Fetch,
		key:      s.Key,
		pageSize: pageSize,
		maxPages: maxPages,
		seen:     make(map[string]bool),
	}
}

// Scan is a lazy, finite, non-restartable sequence of records.
type Scan[T any] struct {
	ctx      context.Context
	fetch    PageFunc[T]
	key      func(T) string
	pageSize int
	maxPages int

	cursor    string
	page      []T
	pos       int
	pages     int
	scanned   int
	seen      map[string]bool
	done      bool
	truncated bool
	err       error
}

// Next returns the next record. ok is false once the scan is exhausted,
// capped, or stopped by a fetch failure.
func (sc *Scan[T]) Next() (T, bool) {
	var zero T
	for {
		for sc.pos < len(sc.page) {
			rec := sc.page[sc.pos]
			sc.pos++
			k := sc.key(rec)
			if sc.seen[k] {
				continue
			}
			sc.seen[k] = true
			return rec, true
		}
		if sc.done {
			return zero, false
		}
		if !sc.fetchNextPage() {
			return zero, false
		}
	}
}

// fetchNextPage loads one more page. Returns false when nothing more
// can be read.
func (sc *Scan[T]) fetchNextPage() bool {
	if sc.pages >= sc.maxPages {
		sc.done = true
		sc.truncated = true
		return false
	}

	page, err := sc.fetch(sc.ctx, sc.cursor, sc.pageSize)
	if err != nil {
		// Best-effort: keep what we have, record the failure.
		sc.done = true
		sc.err = err
		return false
	}
	sc.pages++
	sc.scanned += len(page)
	if len(page) > 0 {
		sc.cursor = sc.key(page[len(page)-1])
	}
	if len(page) < sc.pageSize {
		sc.done = true
	}
	sc.page = page
	sc.pos = 0
	return len(page) > 0 || !sc.done
}

// Drain consumes the rest of the scan and returns all remaining records.
func (sc *Scan[T]) Drain() []T {
	var out []T
	for {
		rec, ok := sc.Next()
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

// Scanned is the number of records actually read from the backend,
// including ones dropped by dedup.
func (sc *Scan[T]) Scanned() int { return sc.scanned }

// Truncated reports whether the MaxPages safety cap cut the scan short.
func (sc *Scan[T]) Truncated() bool { return sc.truncated }

// Err returns the fetch failure that stopped the scan early, if any.
// A truncated scan is not an error.
func (sc *Scan[T]) Err() error { return sc.err }
