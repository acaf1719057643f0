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

// recordingSweeps captures sweep runs in memory for assertions.
type recordingSweeps struct {
	runs []jewels.SweepRun
}

func (r *recordingSweeps) RecordSweep(_ context.Context, run jewels.SweepRun) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *recordingSweeps) ListSweeps(_ context.Context, limit int) ([]jewels.SweepRun, error) {
	if limit > len(r.runs) {
		limit = len(r.runs)
	}
	return r.runs[:limit], nil
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestSweeper_InvalidatesUsersWhoseLotsCrossed(t *testing.T) {
	// GIVEN: user-a with a lot expiring inside the sweep window, user-b
	//        with a lot far in the future
	// WHEN: Sweeping
	// THEN: Only user-a's summary is invalidated, both users are scanned

	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	agg := jewels.NewAggregator(mem)
	agg.Clock = func() time.Time { return base }
	recorder := &recordingSweeps{}
	sweeper := jewels.NewSweeper(mem, agg, recorder)
	ctx := context.Background()

	expiringSoon := base.Add(30 * time.Minute)
	farFuture := base.AddDate(1, 0, 0)
	require.NoError(t, mem.Append(ctx, earnAt("user-a", 100, base.AddDate(-1, 0, 0), &expiringSoon)))
	require.NoError(t, mem.Append(ctx, earnAt("user-b", 100, base.AddDate(-1, 0, 0), &farFuture)))

	// Warm both caches at base time
	_, err := agg.Summarize(ctx, "user-a")
	require.NoError(t, err)
	_, err = agg.Summarize(ctx, "user-b")
	require.NoError(t, err)

	// First pass establishes the window start
	_, err = sweeper.Sweep(ctx, base)
	require.NoError(t, err)

	run, err := sweeper.Sweep(ctx, base.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, run.UsersScanned)
	assert.Equal(t, 1, run.LotsExpired)
	assert.Equal(t, 1, run.Invalidated)

	// Balances reflect the crossing regardless of cache state
	agg.Clock = func() time.Time { return base.Add(time.Hour) }
	sA, err := agg.Summarize(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(0), sA.ActiveBalance)
	sB, err := agg.Summarize(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, jewels.Jewels(100), sB.ActiveBalance)
}

func TestSweeper_RepeatedSweepIsIdempotent(t *testing.T) {
	// GIVEN: A lot that crossed expiry and was already swept
	// WHEN: Sweeping again over a later window
	// THEN: The lot is not counted twice

	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	agg := jewels.NewAggregator(mem)
	sweeper := jewels.NewSweeper(mem, agg, nil)
	ctx := context.Background()

	expiry := base.Add(30 * time.Minute)
	require.NoError(t, mem.Append(ctx, earnAt("user-a", 100, base.AddDate(-1, 0, 0), &expiry)))

	_, err := sweeper.Sweep(ctx, base)
	require.NoError(t, err)

	first, err := sweeper.Sweep(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, first.LotsExpired)

	second, err := sweeper.Sweep(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, second.LotsExpired, "a lot crosses its boundary exactly once")
}

func TestSweeper_RecordsAuditTrail(t *testing.T) {
	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	agg := jewels.NewAggregator(mem)
	recorder := &recordingSweeps{}
	sweeper := jewels.NewSweeper(mem, agg, recorder)
	ctx := context.Background()

	_, err := sweeper.Sweep(ctx, base)
	require.NoError(t, err)
	_, err = sweeper.Sweep(ctx, base.Add(time.Hour))
	require.NoError(t, err)

	runs, err := recorder.ListSweeps(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.NotEmpty(t, runs[0].ID)
	assert.Equal(t, base, runs[0].StartedAt)
}
