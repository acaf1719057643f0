/*
tier.go - Tier placement from lifetime earnings

PURPOSE:
  Maps a user's lifetime earned total onto a named tier ladder and a
  progress fraction toward the next tier. Pure function of
  Summary.TotalEarned: redeeming jewels never demotes a tier, and
  expired lots still count (they were earned).

CONFIGURATION:
  Thresholds are static construction-time configuration, not derived
  from redemption history. A typical ladder:

    {Bronze: 0, Silver: 300, Gold: 1000}

  Lifetime earned 500 -> Silver, progress 200/700 toward Gold.
*/
package jewels

import (
	"context"
	"sort"
)

// Tier is one rung of the ladder.
type Tier struct {
	Name string
	// Threshold is the lifetime-earned total at which the tier begins.
	Threshold Jewels
	// Bonus, when non-zero, is a one-time jewel grant when a user first
	// crosses into this tier (reason tier_bonus). See award.go.
	Bonus Jewels
}

// TierStatus is the derived placement for one user.
type TierStatus struct {
	Current Tier
	// Next is nil at the top tier.
	Next *Tier
	// Progress is (earned - current threshold) / (next - current),
	// clamped to 1.0 at the top tier.
	Progress float64
	// JewelsToNext is 0 at the top tier.
	JewelsToNext Jewels
	// LifetimeEarned the placement was computed from.
	LifetimeEarned Jewels
}

// TierEngine places users on a configured ladder.
type TierEngine struct {
	Agg   *Aggregator
	tiers []Tier // sorted ascending by Threshold
}

// NewTierEngine sorts the ladder by threshold. At least one tier is
// expected and the lowest threshold should be 0 so every user lands
// somewhere.
func NewTierEngine(agg *Aggregator, tiers []Tier) *TierEngine {
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	return &TierEngine{Agg: agg, tiers: sorted}
}

// DefaultTiers is the platform's standard ladder.
var DefaultTiers = []Tier{
	{Name: "Bronze", Threshold: 0},
	{Name: "Silver", Threshold: 300},
	{Name: "Gold", Threshold: 1000},
}

// TierFor returns the user's current placement.
func (e *TierEngine) TierFor(ctx context.Context, userID UserID) (TierStatus, error) {
	summary, err := e.Agg.Summarize(ctx, userID)
	if err != nil {
		return TierStatus{}, err
	}
	return e.Place(summary.TotalEarned), nil
}

// Place computes the placement for a lifetime-earned total. Exposed so
// the award path can detect tier crossings without a second fold.
func (e *TierEngine) Place(earned Jewels) TierStatus {
	status := TierStatus{LifetimeEarned: earned}
	if len(e.tiers) == 0 {
		return status
	}

	idx := 0
	for i, tier := range e.tiers {
		if earned >= tier.Threshold {
			idx = i
		}
	}
	status.Current = e.tiers[idx]

	if idx == len(e.tiers)-1 {
		// Top tier: progress clamps to 1.0.
		status.Progress = 1.0
		return status
	}

	next := e.tiers[idx+1]
	status.Next = &next
	status.JewelsToNext = next.Threshold - earned
	span := next.Threshold - status.Current.Threshold
	if span > 0 {
		status.Progress = float64(earned-status.Current.Threshold) / float64(span)
	}
	return status
}

// Tiers returns the configured ladder, ascending.
func (e *TierEngine) Tiers() []Tier {
	return append([]Tier(nil), e.tiers...)
}
