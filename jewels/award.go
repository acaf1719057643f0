/*
award.go - Booking reward accrual

PURPOSE:
  Turns a completed booking into an earn transaction using the active
  earn rule, then grants any tier bonus the earn unlocked. This is the
  monotonic append path: no balance check, fully concurrent across and
  within users.

TIER BONUS:
  A tier can carry a one-time bonus (Tier.Bonus). When the booking
  reward pushes the lifetime-earned total across a tier threshold, the
  bonus is appended as a separate tier_bonus transaction so the ledger
  records the crossing explicitly. The bonus idempotency key is derived
  from user+tier, so replays cannot double-grant it.

SEE ALSO:
  - earnrule.go: The conversion applied here
  - tier.go: Threshold ladder and placement
*/
package jewels

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Awarder appends booking rewards and tier bonuses.
type Awarder struct {
	Ledger *Ledger
	Agg    *Aggregator
	Rules  RuleStore
	Tiers  *TierEngine
}

func NewAwarder(ledger *Ledger, agg *Aggregator, rules RuleStore, tiers *TierEngine) *Awarder {
	return &Awarder{Ledger: ledger, Agg: agg, Rules: rules, Tiers: tiers}
}

// AwardResult reports what a booking earned.
type AwardResult struct {
	Reward Transaction
	// Bonus is set when the reward crossed a tier threshold with a
	// configured bonus.
	Bonus *Transaction
	// Status is the tier placement after the award.
	Status TierStatus
}

// Award converts a booking's value to jewels and appends the earn.
// bookingRef identifies the booking for audit and idempotency: awarding
// the same booking twice is rejected with ErrDuplicateIdempotencyKey.
func (a *Awarder) Award(ctx context.Context, userID UserID, bookingValue decimal.Decimal, bookingRef string) (AwardResult, error) {
	rule, err := a.Rules.ActiveRule(ctx)
	if err != nil {
		return AwardResult{}, err
	}

	amount := rule.JewelsFor(bookingValue)
	if amount <= 0 {
		return AwardResult{}, ErrInvalidAmount
	}

	earnedBefore := Jewels(0)
	if summary, err := a.Agg.Summarize(ctx, userID); err == nil {
		earnedBefore = summary.TotalEarned
	} else {
		return AwardResult{}, err
	}

	now := time.Now().UTC()
	tx, err := NewEarn(userID, amount, ReasonBookingReward, EarnOptions{
		ExpiresAt:      rule.ExpiryFrom(now),
		Note:           fmt.Sprintf("booking reward (%s)", rule.Name),
		ReferenceID:    bookingRef,
		IdempotencyKey: "booking-reward-" + bookingRef,
		CreatedBy:      "booking-service",
		CreatedByType:  "system",
	})
	if err != nil {
		return AwardResult{}, err
	}
	if err := a.Ledger.Write(ctx, tx); err != nil {
		return AwardResult{}, err
	}
	a.Agg.Invalidate(userID)

	result := AwardResult{Reward: tx}

	bonus, err := a.grantTierBonus(ctx, userID, earnedBefore, earnedBefore+amount)
	if err != nil {
		// The reward is committed; a bonus failure must not undo it.
		// Surface the award and let the caller retry the bonus via the
		// idempotency key.
		return result, err
	}
	result.Bonus = bonus

	earnedAfter := earnedBefore + amount
	if bonus != nil {
		earnedAfter += bonus.Earned
	}
	result.Status = a.Tiers.Place(earnedAfter)
	return result, nil
}

// grantTierBonus appends a tier_bonus earn when [before, after] crossed
// a threshold whose tier carries a bonus. Only the highest newly
// reached tier grants.
func (a *Awarder) grantTierBonus(ctx context.Context, userID UserID, before, after Jewels) (*Transaction, error) {
	if a.Tiers == nil {
		return nil, nil
	}

	var crossed *Tier
	for _, tier := range a.Tiers.Tiers() {
		if tier.Bonus > 0 && before < tier.Threshold && after >= tier.Threshold {
			t := tier
			crossed = &t
		}
	}
	if crossed == nil {
		return nil, nil
	}

	tx, err := NewEarn(userID, crossed.Bonus, ReasonTierBonus, EarnOptions{
		Note:           fmt.Sprintf("reached %s tier", crossed.Name),
		IdempotencyKey: fmt.Sprintf("tier-bonus-%s-%s", userID, crossed.Name),
		CreatedBy:      "tier-engine",
		CreatedByType:  "system",
	})
	if err != nil {
		return nil, err
	}
	if err := a.Ledger.Write(ctx, tx); err != nil {
		return nil, err
	}
	a.Agg.Invalidate(userID)
	return &tx, nil
}
