/*
ledger.go - Validating writer over the append-only store

PURPOSE:
  The Ledger is the single write path into the transaction log. Every
  earn, redemption, adjustment, and bonus goes through Write, which
  rejects malformed entries before anything reaches the store.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. AUDITABLE: Every balance change is traceable with reason and actor
  4. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  If a mistake is made, you don't edit the transaction. Instead a new
  offsetting entry is appended (see adjust.go). Both remain in the
  ledger; the net effect is the correction, the history is preserved.

SEE ALSO:
  - store.go: Low-level persistence interface
  - adjust.go: Administrative corrections
*/
package jewels

import "context"

// Ledger validates and appends transactions. It is the only component
// that writes to the store; everything else reads.
type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// Write validates tx and appends it. Fails with ErrInvalidTransaction
// before any write for malformed entries, and ErrDuplicateIdempotencyKey
// if the entry's key was already used.
func (l *Ledger) Write(ctx context.Context, tx Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

// Transactions returns a user's full history, oldest first. Read-only.
func (l *Ledger) Transactions(ctx context.Context, userID UserID) ([]Transaction, error) {
	return l.Store.ListByUser(ctx, userID)
}

// Get returns a single transaction by ID.
func (l *Ledger) Get(ctx context.Context, id TransactionID) (Transaction, error) {
	return l.Store.Get(ctx, id)
}
