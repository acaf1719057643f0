/*
store.go - Persistence contract for the jewels ledger

PURPOSE:
  Defines the interface between the ledger engine and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage - the engine never cares which.

APPEND-ONLY CONTRACT:
  The Store interface enforces append-only semantics at the boundary,
  not just by convention:
  - Append(): the ONLY write operation on the ledger
  - NO Update() or Delete() methods exist
  Corrections are new offsetting transactions.

IDEMPOTENCY:
  A write carrying an idempotency key is rejected if the key already
  exists. This prevents duplicate transactions from network retries or
  user double-clicks.

CONDITIONAL APPEND:
  TxStore.WithTx is the serializable append-with-precondition primitive
  the redemption engine needs: read the balance and append the redeem
  entry as one atomic unit, so no concurrent writer can consume the
  balance in between.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (same patterns apply to PostgreSQL)
  - jewels/store: In-memory for testing and development

SEE ALSO:
  - ledger.go: Validating writer on top of Store
  - redeem.go: Uses TxStore for admission control
*/
package jewels

import "context"

// =============================================================================
// STORE - Append-only transaction persistence
// =============================================================================

// Store handles persistence of ledger transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a transaction durably before returning success.
	// Returns ErrDuplicateIdempotencyKey if the entry's key exists.
	// This is the ONLY write operation.
	Append(ctx context.Context, tx Transaction) error

	// ListByUser returns all of a user's transactions, oldest first
	// (CreatedAt, then insertion order) for deterministic folding.
	ListByUser(ctx context.Context, userID UserID) ([]Transaction, error)

	// Get returns a transaction by ID, or ErrTransactionNotFound.
	Get(ctx context.Context, id TransactionID) (Transaction, error)

	// Users returns the distinct user IDs present in the ledger.
	// Used by the expiry sweeper.
	Users(ctx context.Context) ([]UserID, error)

	// Exists checks if an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic read-then-append
// =============================================================================

// TxStore extends Store with transaction support. The redemption engine
// runs its balance re-verification and append inside WithTx so that the
// admission check and the write commit as a single serializable unit.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, nothing fn wrote is kept.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// REFERENCE DATA - Read-only from the engine's perspective
// =============================================================================

// OptionCatalog lists redemption options. The ledger engine only reads
// these; managing the catalog is an admin concern.
type OptionCatalog interface {
	// GetOption returns an option by ID, or ErrOptionNotFound.
	GetOption(ctx context.Context, id OptionID) (RedemptionOption, error)

	// ListOptions returns options, active ones first.
	ListOptions(ctx context.Context) ([]RedemptionOption, error)
}

// RuleStore persists earn-rule configuration (see earnrule.go).
type RuleStore interface {
	// SaveRule inserts or updates a rule.
	SaveRule(ctx context.Context, rule EarnRule) error

	// ActiveRule returns the currently active earn rule, or ErrRuleNotFound.
	ActiveRule(ctx context.Context) (EarnRule, error)

	// ListRules returns all configured rules.
	ListRules(ctx context.Context) ([]EarnRule, error)
}
