/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers match them with errors.Is / errors.As; the HTTP layer maps them
  to status codes.

ERROR CATEGORIES:
  1. Query errors - illegal algebra arity, dangerous destructive queries
  2. Overlay errors - use of a committed or aborted virtualization scope
  3. Normalization errors - amounts that cannot be completed unambiguously
  4. Exchange errors - no rate defined for a currency at a date

USAGE:
  if errors.Is(err, generic.ErrInvalidState) {
      // the overlay is already committed or aborted
  }

SEE ALSO:
  - virtual/overlay.go: returns ErrInvalidState
  - ledger/normalize.go: returns AmbiguousNormalizationError
  - exchange/table.go: returns NoExchangeRateError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMalformedQuery is returned when a query tree violates the arity rules
	// of the algebra (zero operands, missing or unexpected children).
	ErrMalformedQuery = errors.New("malformed query")

	// ErrInvalidState is returned by any operation on an overlay that has
	// already been committed or aborted.
	ErrInvalidState = errors.New("invalid state")

	// ErrAmbiguousNormalization is returned when missing amounts cannot be
	// completed, or when strict normalization meets an unresolvable
	// many-payer/many-payee voucher.
	ErrAmbiguousNormalization = errors.New("ambiguous normalization")

	// ErrNoExchangeRate is returned when a conversion needs a rate that is
	// not defined for the requested date.
	ErrNoExchangeRate = errors.New("no exchange rate")

	// ErrNotFound is returned when a referenced voucher does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDangerousQuery is returned when a bulk delete is requested under a
	// query broad enough to need explicit confirmation.
	ErrDangerousQuery = errors.New("dangerous query")

	// ErrMalformedSubtotal is returned when a subtotal specification mixes
	// incompatible options.
	ErrMalformedSubtotal = errors.New("malformed subtotal specification")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedQueryError describes which node of a tree is illegal.
type MalformedQueryError struct {
	Op     Operator
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query (%s): %s", e.Op, e.Reason)
}

func (e *MalformedQueryError) Unwrap() error {
	return ErrMalformedQuery
}

// StateError reports the operation attempted on a terminated overlay.
type StateError struct {
	Operation string
	State     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s an overlay that is %s", e.Operation, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// AmbiguousNormalizationError names the (user, currency) group that could
// not be completed.
type AmbiguousNormalizationError struct {
	User     string
	Currency string
	Missing  int
	Reason   string
}

func (e *AmbiguousNormalizationError) Error() string {
	if e.Reason != "" {
		return "ambiguous normalization: " + e.Reason
	}
	return fmt.Sprintf("ambiguous normalization: %d legs without amount for user %q in %s",
		e.Missing, e.User, e.Currency)
}

func (e *AmbiguousNormalizationError) Unwrap() error {
	return ErrAmbiguousNormalization
}

// NoExchangeRateError names the missing rate.
type NoExchangeRateError struct {
	Currency string
	Date     Date
}

func (e *NoExchangeRateError) Error() string {
	return fmt.Sprintf("no exchange rate for %s on %s", e.Currency, e.Date)
}

func (e *NoExchangeRateError) Unwrap() error {
	return ErrNoExchangeRate
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedQuery) ||
		errors.Is(err, ErrMalformedSubtotal) ||
		errors.Is(err, ErrAmbiguousNormalization) ||
		errors.Is(err, ErrDangerousQuery) ||
		errors.Is(err, ErrNoExchangeRate)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
