/*
Package jewels provides the loyalty points ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for the jewels
  loyalty program: an append-only ledger of earn/redeem transactions,
  balance aggregation with point expiration, admission-controlled
  redemption, administrative adjustments, and tier placement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Jewels: An integral point quantity (points are indivisible)
  - Transaction: An immutable ledger entry, either pure-earn or pure-redeem
  - Summary: Derived per-user balance state, always recomputable
  - RedemptionOption: Read-only reward catalog reference data

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only offset
  2. Single source of truth: balances are folded from the transaction
     log; there is no authoritative stored balance
  3. Type Safety: Strong typing for IDs prevents mixing user/tx IDs
  4. Auditability: Every transaction carries reason, note, and actor

USAGE:
  tx, _ := jewels.NewEarn("user-42", 500, jewels.ReasonBookingReward,
      jewels.EarnOptions{ExpiresAt: &expiry, ReferenceID: "booking-9"})

SEE ALSO:
  - store.go: Persistence contract (append-only)
  - balance.go: Summary folding with expiry-at-read-time
  - redeem.go: Admission-controlled spending
*/
package jewels

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// JEWELS - Integral point quantity
// =============================================================================

// Jewels is a count of loyalty points. Points are indivisible, so the
// ledger works in integers; fractional math only happens at the earn-rule
// boundary (see earnrule.go).
type Jewels int64

func (j Jewels) IsNegative() bool { return j < 0 }
func (j Jewels) IsPositive() bool { return j > 0 }
func (j Jewels) IsZero() bool     { return j == 0 }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string
type OptionID string
type RuleID string

// NewTransactionID returns a fresh unique transaction ID.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// Reason classifies why a transaction was written. Stored verbatim so the
// ledger remains self-explanatory for audits.
type Reason string

const (
	ReasonBookingReward     Reason = "booking_reward"     // Earn from a completed booking
	ReasonManualAdjustment  Reason = "manual_adjustment"  // Admin correction (earn or remove)
	ReasonManualRedemption  Reason = "manual_redemption"  // Admin-initiated spend on behalf of a user
	ReasonTierBonus         Reason = "tier_bonus"         // One-time bonus for crossing a tier
	ReasonRedemptionRequest Reason = "redemption_request" // User spend (reward catalog)
)

// ValidReason reports whether r is one of the enumerated reasons.
func ValidReason(r Reason) bool {
	switch r {
	case ReasonBookingReward, ReasonManualAdjustment, ReasonManualRedemption,
		ReasonTierBonus, ReasonRedemptionRequest:
		return true
	}
	return false
}

// Transaction is a single immutable ledger entry. Exactly one of Earned or
// Redeemed is non-zero. Corrections are new offsetting transactions, never
// edits.
type Transaction struct {
	ID       TransactionID
	UserID   UserID
	Earned   Jewels
	Redeemed Jewels
	Reason   Reason

	// Note carries the human-readable audit reason for manual entries.
	Note string

	// ReferenceID links to the originating booking or redemption option.
	ReferenceID string

	// IdempotencyKey guards against duplicate appends from retries.
	// Empty means no idempotency protection for this entry.
	IdempotencyKey string

	// ExpiresAt is set only on earn entries. Nil means the lot never
	// expires (manual corrections may choose either policy).
	ExpiresAt *time.Time

	// Audit fields
	CreatedBy     string // Actor who created this transaction
	CreatedByType string // "user", "admin", "system"
	CreatedAt     time.Time
}

// IsEarn reports whether the entry adds jewels.
func (tx Transaction) IsEarn() bool { return tx.Earned > 0 }

// IsRedeem reports whether the entry spends jewels.
func (tx Transaction) IsRedeem() bool { return tx.Redeemed > 0 }

// ExpiredAt reports whether this earn lot is past its expiry horizon at
// the given instant. Redeem entries and never-expiring lots return false.
func (tx Transaction) ExpiredAt(at time.Time) bool {
	return tx.ExpiresAt != nil && !tx.ExpiresAt.After(at)
}

// Validate checks the pure-earn XOR pure-redeem shape and the reason enum.
// Invalid transactions are rejected before any write.
func (tx Transaction) Validate() error {
	if tx.UserID == "" {
		return &InvalidTransactionError{Field: "user_id", Detail: "missing user"}
	}
	if tx.Earned < 0 || tx.Redeemed < 0 {
		return &InvalidTransactionError{Field: "amount", Detail: "negative amount"}
	}
	if tx.Earned == 0 && tx.Redeemed == 0 {
		return &InvalidTransactionError{Field: "amount", Detail: "neither earn nor redeem"}
	}
	if tx.Earned > 0 && tx.Redeemed > 0 {
		return &InvalidTransactionError{Field: "amount", Detail: "both earn and redeem"}
	}
	if !ValidReason(tx.Reason) {
		return &InvalidTransactionError{Field: "reason", Detail: "unknown reason: " + string(tx.Reason)}
	}
	if tx.Redeemed > 0 && tx.ExpiresAt != nil {
		return &InvalidTransactionError{Field: "expires_at", Detail: "expiry on redeem entry"}
	}
	return nil
}

// =============================================================================
// TRANSACTION CONSTRUCTORS
// =============================================================================

// EarnOptions configures optional fields on an earn entry.
type EarnOptions struct {
	ExpiresAt      *time.Time
	Note           string
	ReferenceID    string
	IdempotencyKey string
	CreatedBy      string
	CreatedByType  string
}

// RedeemOptions configures optional fields on a redeem entry.
type RedeemOptions struct {
	Note           string
	ReferenceID    string
	IdempotencyKey string
	CreatedBy      string
	CreatedByType  string
}

// NewEarn builds an earn transaction. The entry is validated so callers
// get InvalidTransaction before anything reaches the store.
func NewEarn(userID UserID, amount Jewels, reason Reason, opts EarnOptions) (Transaction, error) {
	tx := Transaction{
		ID:             NewTransactionID(),
		UserID:         userID,
		Earned:         amount,
		Reason:         reason,
		Note:           opts.Note,
		ReferenceID:    opts.ReferenceID,
		IdempotencyKey: opts.IdempotencyKey,
		ExpiresAt:      opts.ExpiresAt,
		CreatedBy:      opts.CreatedBy,
		CreatedByType:  opts.CreatedByType,
		CreatedAt:      time.Now().UTC(),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// NewRedeem builds a redeem transaction.
func NewRedeem(userID UserID, amount Jewels, reason Reason, opts RedeemOptions) (Transaction, error) {
	tx := Transaction{
		ID:             NewTransactionID(),
		UserID:         userID,
		Redeemed:       amount,
		Reason:         reason,
		Note:           opts.Note,
		ReferenceID:    opts.ReferenceID,
		IdempotencyKey: opts.IdempotencyKey,
		CreatedBy:      opts.CreatedBy,
		CreatedByType:  opts.CreatedByType,
		CreatedAt:      time.Now().UTC(),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// =============================================================================
// SUMMARY - Derived balance state (never authoritative)
// =============================================================================

// Summary is the folded balance view for one user at a point in time.
// It is always recomputable from the transaction log.
type Summary struct {
	UserID UserID
	AsOf   time.Time

	// Lifetime jewels earned, including expired lots. Drives tier placement.
	TotalEarned Jewels

	// Lifetime jewels redeemed.
	TotalRedeemed Jewels

	// Spendable jewels: non-expired earn lots minus all redemptions.
	ActiveBalance Jewels
}

// TotalBalance aliases ActiveBalance, kept for API compatibility with
// the platform's original payload shape.
func (s Summary) TotalBalance() Jewels { return s.ActiveBalance }

// =============================================================================
// REDEMPTION OPTION - Reward catalog reference data
// =============================================================================

// RedemptionOption is a catalog entry users can spend jewels on.
// Read-only from the ledger's perspective; not part of the balance invariant.
type RedemptionOption struct {
	ID             OptionID
	JewelsRequired Jewels
	Description    string
	Active         bool
	CreatedAt      time.Time
}
