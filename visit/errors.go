/*
errors.go - Error taxonomy for the visit engine

PURPOSE:
  All error categories in one place. Callers route on the category
  (validation vs precondition vs not-found), end users see the reason.

ERROR CATEGORIES:
  1. Validation  - malformed input, rejected before any I/O
  2. Precondition - business rule said no; reason is user-visible
  3. Not found   - missing visit/member

USAGE:
  if visit.IsPrecondition(err) {
      // 409 with the reason string
  }

Nothing here is retried automatically; the caller decides.
*/
package visit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input failures.
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition is the root of all business-rule denials.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotFound is returned when a referenced visit doesn't exist.
	ErrNotFound = errors.New("visit not found")
)

// =============================================================================
// STRUCTURED ERRORS - carry the user-visible reason
// =============================================================================

// ValidationError reports malformed caller input. Raised before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PreconditionError reports a business-rule denial. Rule identifies
// which check fired; Reason is safe to show to an end user.
type PreconditionError struct {
	Rule   string
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether err is a caller-input failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsPrecondition reports whether err is a business-rule denial.
func IsPrecondition(err error) bool { return errors.Is(err, ErrPrecondition) }

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
