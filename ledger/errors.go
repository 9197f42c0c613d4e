/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All ledger error types in one place. Callers (the API layer, tests) use
  errors.Is/errors.As against these rather than matching message strings.

ERROR CATEGORIES:
  1. Not-found conditions - missing account or transaction
  2. Validation errors - rejected input
  3. Store failures - propagated from the authoritative store, wrapped

SOFT FAILURES:
  A missing account during a balance effect is NOT an error: the mutation
  still completes and the skip is reported as an AccountMissingWarning on
  the result, so tests can assert on it instead of scraping log output.

SEE ALSO:
  - service.go: Produces these errors and warnings
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when a referenced transaction
	// doesn't exist. Delete treats this as already-gone and succeeds.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidTransaction is returned when input fails validation
	// (zero amount, missing account reference, missing currency or date).
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AccountMissingWarning reports that a balance effect was skipped because
// the owning account could not be found. The record write still happened;
// only the account update was skipped.
type AccountMissingWarning struct {
	AccountID     AccountID
	TransactionID TransactionID
}

func (w *AccountMissingWarning) Error() string {
	return fmt.Sprintf("balance effect skipped: account %s not found (tx: %s)",
		w.AccountID, w.TransactionID)
}

func (w *AccountMissingWarning) Unwrap() error {
	return ErrAccountNotFound
}

// ValidationError reports which field of a mutation input was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidTransaction
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransaction)
}
