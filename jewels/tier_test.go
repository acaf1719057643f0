package jewels_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villaluz/jewels-engine/jewels"
	"github.com/villaluz/jewels-engine/jewels/store"
)

// =============================================================================
// PLACEMENT TESTS
// =============================================================================

func TestTierEngine_Place_LadderBoundaries(t *testing.T) {
	engine := jewels.NewTierEngine(nil, jewels.DefaultTiers)

	cases := []struct {
		earned jewels.Jewels
		tier   string
	}{
		{0, "Bronze"},
		{299, "Bronze"},
		{300, "Silver"}, // threshold is inclusive
		{999, "Silver"},
		{1000, "Gold"},
		{50000, "Gold"},
	}
	for _, tc := range cases {
		status := engine.Place(tc.earned)
		assert.Equal(t, tc.tier, status.Current.Name, "earned=%d", tc.earned)
	}
}

func TestTierEngine_Place_ProgressTowardNext(t *testing.T) {
	// GIVEN: Lifetime earned 500 on the Bronze/Silver/Gold ladder
	// WHEN: Placing
	// THEN: Silver, 200 of the 700-jewel span toward Gold

	engine := jewels.NewTierEngine(nil, jewels.DefaultTiers)

	status := engine.Place(500)
	assert.Equal(t, "Silver", status.Current.Name)
	require.NotNil(t, status.Next)
	assert.Equal(t, "Gold", status.Next.Name)
	assert.Equal(t, jewels.Jewels(500), status.JewelsToNext)
	assert.InDelta(t, 200.0/700.0, status.Progress, 1e-9)
}

func TestTierEngine_Place_TopTierClampsProgress(t *testing.T) {
	engine := jewels.NewTierEngine(nil, jewels.DefaultTiers)

	status := engine.Place(5000)
	assert.Equal(t, "Gold", status.Current.Name)
	assert.Nil(t, status.Next)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, jewels.Jewels(0), status.JewelsToNext)
}

func TestTierEngine_UnsortedLadderIsSorted(t *testing.T) {
	engine := jewels.NewTierEngine(nil, []jewels.Tier{
		{Name: "Gold", Threshold: 1000},
		{Name: "Bronze", Threshold: 0},
		{Name: "Silver", Threshold: 300},
	})

	tiers := engine.Tiers()
	require.Len(t, tiers, 3)
	assert.Equal(t, "Bronze", tiers[0].Name)
	assert.Equal(t, "Silver", tiers[1].Name)
	assert.Equal(t, "Gold", tiers[2].Name)
}

// =============================================================================
// TIER VS LEDGER TESTS
// =============================================================================

func TestTierFor_RedemptionNeverDemotes(t *testing.T) {
	// GIVEN: A user who earned 400 and redeemed all of it
	// WHEN: Placing their tier
	// THEN: Still Silver - tiers follow lifetime earned, not balance

	now := time.Now().UTC()
	mem := store.NewMemory()
	agg := jewels.NewAggregator(mem)
	engine := jewels.NewTierEngine(agg, jewels.DefaultTiers)
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, earnAt("user-1", 400, now.Add(-2*time.Hour), nil)))
	require.NoError(t, mem.Append(ctx, redeemAt("user-1", 400, now.Add(-time.Hour))))

	status, err := engine.TierFor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Silver", status.Current.Name)
	assert.Equal(t, jewels.Jewels(400), status.LifetimeEarned)
}

func TestTierFor_ExpiredLotsStillCount(t *testing.T) {
	// Expired jewels were still earned; tier placement keeps them.
	now := time.Now().UTC()
	mem := store.NewMemory()
	agg := jewels.NewAggregator(mem)
	engine := jewels.NewTierEngine(agg, jewels.DefaultTiers)
	ctx := context.Background()

	expired := now.Add(-time.Hour)
	require.NoError(t, mem.Append(ctx, earnAt("user-1", 1200, now.AddDate(-2, 0, 0), &expired)))

	status, err := engine.TierFor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Gold", status.Current.Name)

	s, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(0), s.ActiveBalance, "tier counts expired lots, active balance does not")
}
