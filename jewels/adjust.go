/*
adjust.go - Administrative corrections

PURPOSE:
  Lets an admin add or remove jewels outside the normal earn/redeem
  flows, with a mandatory audit note. Corrections are offsetting
  entries; the ledger history is never rewritten.

THE ASYMMETRY (deliberate, do not "fix"):
  AdjustRemove is NOT bounded by the current active balance. An admin
  can force a balance negative - chargebacks and fraud corrections need
  exactly that. Normal redemption (redeem.go) is balance-bounded. This
  mirrors observed production behavior and is a product policy
  decision; if product owners ever want symmetric validation, the
  change belongs here, guarded by a flag, not silently.

EXPIRY POLICY:
  Whether manually added jewels expire is configurable per service
  instance (ExpiryHorizon). The default is no expiry: a correction
  should not silently evaporate a year later.

SEE ALSO:
  - redeem.go: The balance-bounded counterpart
  - ledger.go: The validating write path both use
*/
package jewels

import (
	"context"
	"time"
)

// AdjustmentService appends administrative earn/remove corrections.
type AdjustmentService struct {
	Ledger *Ledger
	Agg    *Aggregator

	// ExpiryHorizon, when non-zero, sets ExpiresAt on manually added
	// jewels. Zero means manual additions never expire.
	ExpiryHorizon time.Duration
}

func NewAdjustmentService(ledger *Ledger, agg *Aggregator) *AdjustmentService {
	return &AdjustmentService{Ledger: ledger, Agg: agg}
}

// AdjustAdd appends a manual earn entry. The note is required: an
// unexplained correction is useless in an audit.
func (s *AdjustmentService) AdjustAdd(ctx context.Context, userID UserID, amount Jewels, note, actor string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if note == "" {
		return Transaction{}, &InvalidTransactionError{Field: "note", Detail: "adjustment requires an audit note"}
	}

	var expiresAt *time.Time
	if s.ExpiryHorizon > 0 {
		t := time.Now().UTC().Add(s.ExpiryHorizon)
		expiresAt = &t
	}

	tx, err := NewEarn(userID, amount, ReasonManualAdjustment, EarnOptions{
		ExpiresAt:     expiresAt,
		Note:          note,
		CreatedBy:     actor,
		CreatedByType: "admin",
	})
	if err != nil {
		return Transaction{}, err
	}
	if err := s.Ledger.Write(ctx, tx); err != nil {
		return Transaction{}, err
	}
	s.Agg.Invalidate(userID)
	return tx, nil
}

// AdjustRemove appends a manual redeem entry. Unlike RedemptionEngine.Redeem
// this is NOT bounded by the active balance and may drive it negative.
// See the package comment for why.
func (s *AdjustmentService) AdjustRemove(ctx context.Context, userID UserID, amount Jewels, note, actor string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if note == "" {
		return Transaction{}, &InvalidTransactionError{Field: "note", Detail: "adjustment requires an audit note"}
	}

	tx, err := NewRedeem(userID, amount, ReasonManualAdjustment, RedeemOptions{
		Note:          note,
		CreatedBy:     actor,
		CreatedByType: "admin",
	})
	if err != nil {
		return Transaction{}, err
	}
	if err := s.Ledger.Write(ctx, tx); err != nil {
		return Transaction{}, err
	}
	s.Agg.Invalidate(userID)
	return tx, nil
}
