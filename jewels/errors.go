/*
errors.go - Centralized error types for the jewels engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the HTTP layer maps these
  onto status codes.

ERROR CATEGORIES:
  1. Validation errors - malformed entries, non-positive amounts
  2. Business outcomes - insufficient balance (expected, not a fault)
  3. Store errors - missing rows, transient persistence failures

SEE ALSO:
  - api/handlers.go: Status-code mapping
  - store/sqlite: Wraps driver failures as ErrStorageUnavailable
*/
package jewels

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransaction is returned for malformed ledger entries:
	// neither pure-earn nor pure-redeem, or a negative amount. Rejected
	// before any write, never retried.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInvalidAmount is returned for non-positive redeem/adjust amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance is returned when a redemption exceeds the
	// active balance. This is an expected business outcome, not a system
	// fault; callers render a message rather than retry.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransactionNotFound is returned when a transaction ID is unknown.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrOptionNotFound is returned when a redemption option is unknown
	// or inactive.
	ErrOptionNotFound = errors.New("redemption option not found")

	// ErrRuleNotFound is returned when no active earn rule exists.
	ErrRuleNotFound = errors.New("earn rule not found")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the
	// same idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrStorageUnavailable is returned for transient persistence
	// failures. Propagated to the caller for retry with backoff; the
	// engine performs no silent retries that could double-append.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransactionError details which field made an entry malformed.
type InvalidTransactionError struct {
	Field  string
	Detail string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s (%s)", e.Detail, e.Field)
}

func (e *InvalidTransactionError) Unwrap() error {
	return ErrInvalidTransaction
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Jewels
	Requested Jewels
	Shortfall Jewels
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %d, requested %d, shortfall %d",
		e.UserID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsClientError returns true if the error is due to invalid client input
// or an expected business outcome the caller should surface as 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
// Note: a user with zero transactions is NOT a missing resource - the
// aggregator yields a zero summary instead.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrOptionNotFound) ||
		errors.Is(err, ErrRuleNotFound)
}
