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
// TEST SETUP
// =============================================================================

// newTestAggregator pins the aggregator clock so expiry boundaries are
// deterministic.
func newTestAggregator(now time.Time) (*jewels.Aggregator, *store.Memory) {
	mem := store.NewMemory()
	agg := jewels.NewAggregator(mem)
	agg.Clock = func() time.Time { return now }
	return agg, mem
}

// =============================================================================
// FOLD TESTS
// =============================================================================

func TestAggregator_Summarize_EarnMinusRedeem(t *testing.T) {
	// GIVEN: 100 earned, then 30 redeemed
	// WHEN: Summarizing
	// THEN: Active 70, lifetime earned 100, lifetime redeemed 30

	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	agg, mem := newTestAggregator(now)
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, earnAt("user-1", 100, now.AddDate(0, -2, 0), nil)))
	require.NoError(t, mem.Append(ctx, redeemAt("user-1", 30, now.AddDate(0, -1, 0))))

	s, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(70), s.ActiveBalance)
	assert.Equal(t, jewels.Jewels(100), s.TotalEarned)
	assert.Equal(t, jewels.Jewels(30), s.TotalRedeemed)
	assert.Equal(t, s.ActiveBalance, s.TotalBalance())
}

func TestAggregator_Summarize_ZeroTransactionUser(t *testing.T) {
	// A user with no history gets a zero summary, never an error.
	now := time.Now().UTC()
	agg, _ := newTestAggregator(now)

	s, err := agg.Summarize(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(0), s.ActiveBalance)
	assert.Equal(t, jewels.Jewels(0), s.TotalEarned)
	assert.Equal(t, jewels.Jewels(0), s.TotalRedeemed)
}

func TestAggregator_Summarize_ExpiredLotDropsFromActive(t *testing.T) {
	// GIVEN: A 100-jewel lot whose expiry passed and a 50-jewel live lot
	// WHEN: Summarizing at now
	// THEN: Active counts only the live lot; lifetime earned counts both

	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	agg, mem := newTestAggregator(now)
	ctx := context.Background()

	pastExpiry := now.AddDate(0, 0, -1)
	futureExpiry := now.AddDate(1, 0, 0)
	require.NoError(t, mem.Append(ctx, earnAt("user-1", 100, now.AddDate(-1, 0, 0), &pastExpiry)))
	require.NoError(t, mem.Append(ctx, earnAt("user-1", 50, now.AddDate(0, -1, 0), &futureExpiry)))

	s, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(50), s.ActiveBalance)
	assert.Equal(t, jewels.Jewels(150), s.TotalEarned, "expired lots still count toward lifetime earned")
}

func TestAggregator_Summarize_ExpiryBoundaryIsInclusive(t *testing.T) {
	// A lot expiring exactly at "now" no longer counts as active.
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	agg, mem := newTestAggregator(now)
	ctx := context.Background()

	expiry := now
	require.NoError(t, mem.Append(ctx, earnAt("user-1", 100, now.AddDate(-1, 0, 0), &expiry)))

	s, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(0), s.ActiveBalance)
}

func TestAggregator_Summarize_RedemptionsAlwaysDeduct(t *testing.T) {
	// GIVEN: A lot earned, partially redeemed, then expired
	// WHEN: Summarizing after expiry
	// THEN: The redemption still deducts; active can go negative from
	//       expiry alone, and that is faithful bookkeeping

	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	agg, mem := newTestAggregator(now)
	ctx := context.Background()

	pastExpiry := now.AddDate(0, 0, -10)
	require.NoError(t, mem.Append(ctx, earnAt("user-1", 100, now.AddDate(-1, 0, 0), &pastExpiry)))
	require.NoError(t, mem.Append(ctx, redeemAt("user-1", 40, now.AddDate(0, -6, 0))))

	s, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(-40), s.ActiveBalance)
	assert.Equal(t, jewels.Jewels(40), s.TotalRedeemed)
}

// =============================================================================
// HISTORICAL READ TESTS
// =============================================================================

func TestAggregator_SummarizeAt_ReproducesPastBalance(t *testing.T) {
	// GIVEN: An earn in January that expires in May, a redeem in March
	// WHEN: Summarizing as of February, April, and June
	// THEN: Each read reproduces the balance exactly as it existed then

	jan := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	may := time.Date(2026, time.May, 15, 0, 0, 0, 0, time.UTC)

	agg, mem := newTestAggregator(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, earnAt("user-1", 100, jan, &may)))
	require.NoError(t, mem.Append(ctx, redeemAt("user-1", 30, mar)))

	// February: only the earn exists, not yet expired
	s, err := agg.SummarizeAt(ctx, "user-1", jan.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(100), s.ActiveBalance)
	assert.Equal(t, jewels.Jewels(0), s.TotalRedeemed)

	// April: redeem applied, lot still live
	s, err = agg.SummarizeAt(ctx, "user-1", mar.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(70), s.ActiveBalance)

	// June: lot expired, redemption still deducted
	s, err = agg.SummarizeAt(ctx, "user-1", may.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(-30), s.ActiveBalance)
	assert.Equal(t, jewels.Jewels(100), s.TotalEarned)
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestAggregator_Cache_InvalidatedOnDemand(t *testing.T) {
	// GIVEN: A cached summary
	// WHEN: A new entry is appended and the cache invalidated
	// THEN: The next read reflects the append

	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	agg, mem := newTestAggregator(now)
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, earnAt("user-1", 100, now.AddDate(0, -1, 0), nil)))
	s, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, jewels.Jewels(100), s.ActiveBalance)

	require.NoError(t, mem.Append(ctx, redeemAt("user-1", 25, now)))
	agg.Invalidate("user-1")

	s, err = agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(75), s.ActiveBalance)
}

func TestAggregator_Cache_SelfExpiresAtBoundary(t *testing.T) {
	// GIVEN: A cached summary whose lot expires in an hour
	// WHEN: The clock crosses the expiry boundary (no sweeper involved)
	// THEN: The cache entry is not reused; the re-fold drops the lot

	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	agg, mem := newTestAggregator(now)
	ctx := context.Background()

	expiry := now.Add(time.Hour)
	require.NoError(t, mem.Append(ctx, earnAt("user-1", 100, now.AddDate(0, -1, 0), &expiry)))

	s, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, jewels.Jewels(100), s.ActiveBalance)

	agg.Clock = func() time.Time { return now.Add(2 * time.Hour) }

	s, err = agg.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(0), s.ActiveBalance,
		"correct balance must not depend on the sweeper having run")
}

func TestAggregator_SummarizeAt_BypassesCache(t *testing.T) {
	// Historical reads re-fold even when a current summary is cached.
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	agg, mem := newTestAggregator(now)
	ctx := context.Background()

	earn := earnAt("user-1", 100, now.AddDate(0, -2, 0), nil)
	require.NoError(t, mem.Append(ctx, earn))

	_, err := agg.Summarize(ctx, "user-1")
	require.NoError(t, err)

	s, err := agg.SummarizeAt(ctx, "user-1", now.AddDate(0, -3, 0))
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(0), s.ActiveBalance, "entry did not exist yet at asOf")
}
