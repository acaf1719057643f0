/*
redeem.go - Admission-controlled spending

PURPOSE:
  The RedemptionEngine is the only path that spends jewels on a user's
  behalf, and the one place where "active balance never goes negative"
  is enforced. Administrative removals deliberately bypass it (see
  adjust.go).

ADMISSION CONTROL:
  The crux of this component: the balance check and the append must
  execute as a single serializable unit. Two concurrent redemptions
  that each pass the check against a stale balance read must not both
  commit when their combined total exceeds the balance.

  Serialization is two-layered:
  1. A per-user mutex serializes redemptions for the same user inside
     this process. Different users never contend.
  2. When the store supports transactions (TxStore), the balance is
     re-verified and the entry appended inside WithTx, so the check
     also holds against writers outside the mutex.

FAILURE SEMANTICS:
  - amount <= 0            -> ErrInvalidAmount, nothing written
  - amount > active        -> InsufficientBalanceError, nothing written
  - storage failure        -> propagated, nothing partial remains;
                              the caller retries, the engine never does

SEE ALSO:
  - balance.go: The fold the admission check reads
  - adjust.go: The documented asymmetry for admin removals
*/
package jewels

import (
	"context"
	"sync"
	"time"
)

// RedemptionEngine admits or rejects spends against the active balance.
type RedemptionEngine struct {
	Store   Store
	Agg     *Aggregator
	Catalog OptionCatalog // optional; required only for RedeemOption

	locks sync.Map // UserID -> *sync.Mutex
}

func NewRedemptionEngine(store Store, agg *Aggregator) *RedemptionEngine {
	return &RedemptionEngine{Store: store, Agg: agg}
}

func (e *RedemptionEngine) userLock(userID UserID) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Redeem spends amount jewels for the user. On success the appended
// transaction is returned; on rejection nothing is written.
func (e *RedemptionEngine) Redeem(ctx context.Context, userID UserID, amount Jewels, reason Reason, opts RedeemOptions) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	tx, err := NewRedeem(userID, amount, reason, opts)
	if err != nil {
		return Transaction{}, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if tx.IdempotencyKey != "" {
		exists, err := e.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return Transaction{}, err
		}
		if exists {
			return Transaction{}, ErrDuplicateIdempotencyKey
		}
	}

	// First admission check against the (possibly cached) summary.
	// Cheap rejection before opening a store transaction.
	summary, err := e.Agg.Summarize(ctx, userID)
	if err != nil {
		return Transaction{}, err
	}
	if amount > summary.ActiveBalance {
		return Transaction{}, &InsufficientBalanceError{
			UserID:    userID,
			Available: summary.ActiveBalance,
			Requested: amount,
			Shortfall: amount - summary.ActiveBalance,
		}
	}

	if txStore, ok := e.Store.(TxStore); ok {
		// Re-verify and append as one unit: the transactional view sees
		// every committed write, so a concurrent consumer cannot slip in
		// between the check and the append. The re-fold runs at the
		// current instant, not tx.CreatedAt, so entries committed after
		// this tx was constructed still count.
		err = txStore.WithTx(ctx, func(s Store) error {
			fresh, _, err := foldSummary(ctx, s, userID, time.Now().UTC())
			if err != nil {
				return err
			}
			if amount > fresh.ActiveBalance {
				return &InsufficientBalanceError{
					UserID:    userID,
					Available: fresh.ActiveBalance,
					Requested: amount,
					Shortfall: amount - fresh.ActiveBalance,
				}
			}
			return s.Append(ctx, tx)
		})
	} else {
		err = e.Store.Append(ctx, tx)
	}
	if err != nil {
		return Transaction{}, err
	}

	e.Agg.Invalidate(userID)
	return tx, nil
}

// RedeemOption spends the jewels required by a catalog option. The
// option must exist and be active; the appended entry references it.
func (e *RedemptionEngine) RedeemOption(ctx context.Context, userID UserID, optionID OptionID, opts RedeemOptions) (Transaction, error) {
	if e.Catalog == nil {
		return Transaction{}, ErrOptionNotFound
	}
	option, err := e.Catalog.GetOption(ctx, optionID)
	if err != nil {
		return Transaction{}, err
	}
	if !option.Active {
		return Transaction{}, ErrOptionNotFound
	}

	opts.ReferenceID = string(option.ID)
	if opts.Note == "" {
		opts.Note = option.Description
	}
	return e.Redeem(ctx, userID, option.JewelsRequired, ReasonRedemptionRequest, opts)
}
