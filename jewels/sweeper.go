/*
sweeper.go - Periodic expiry sweep

PURPOSE:
  Expiry is a read-time comparison (balance.go), so no transaction ever
  changes when a lot expires. The sweeper's only externally observable
  effect is invalidating cached summaries whose earn lots crossed their
  expiry boundary since the last pass, so subsequent Summarize calls
  re-fold with the updated "now".

IDEMPOTENCY:
  A sweep that runs twice over the same boundary invalidates an
  already-invalid cache entry - a no-op. Runs are recorded for audit
  and UI display.

SEE ALSO:
  - balance.go: Cache entries carry their own expiry boundary too, so
    a correct balance never depends on the sweeper having run
  - api/scheduler.go: Drives Sweep on a ticker
*/
package jewels

import (
	"context"
	"sync"
	"time"
)

// SweepRun records one sweeper pass.
type SweepRun struct {
	ID           string
	StartedAt    time.Time
	CompletedAt  time.Time
	UsersScanned int
	// LotsExpired counts earn lots whose expiry crossed since the
	// previous pass.
	LotsExpired int
	// Invalidated counts cached summaries dropped.
	Invalidated int
}

// SweepRecorder persists sweep runs. Optional: a nil recorder just
// skips the audit trail.
type SweepRecorder interface {
	RecordSweep(ctx context.Context, run SweepRun) error
	ListSweeps(ctx context.Context, limit int) ([]SweepRun, error)
}

// Sweeper walks all users and invalidates summaries whose lots expired.
type Sweeper struct {
	Store    Store
	Agg      *Aggregator
	Recorder SweepRecorder

	mu      sync.Mutex
	lastRun time.Time
}

func NewSweeper(store Store, agg *Aggregator, recorder SweepRecorder) *Sweeper {
	return &Sweeper{Store: store, Agg: agg, Recorder: recorder}
}

// Sweep performs one pass at 'now'. Safe to call concurrently; passes
// are serialized.
func (sw *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepRun, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	since := sw.lastRun
	run := SweepRun{
		ID:        string(NewTransactionID()),
		StartedAt: now,
	}

	users, err := sw.Store.Users(ctx)
	if err != nil {
		return SweepRun{}, err
	}

	for _, userID := range users {
		run.UsersScanned++

		expired, err := sw.lotsExpiredBetween(ctx, userID, since, now)
		if err != nil {
			return SweepRun{}, err
		}
		if expired > 0 {
			run.LotsExpired += expired
			sw.Agg.Invalidate(userID)
			run.Invalidated++
		}
	}

	run.CompletedAt = time.Now().UTC()
	sw.lastRun = now

	if sw.Recorder != nil {
		if err := sw.Recorder.RecordSweep(ctx, run); err != nil {
			return run, err
		}
	}
	return run, nil
}

// lotsExpiredBetween counts earn lots whose ExpiresAt falls in (since, now].
func (sw *Sweeper) lotsExpiredBetween(ctx context.Context, userID UserID, since, now time.Time) (int, error) {
	txs, err := sw.Store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, tx := range txs {
		if tx.ExpiresAt == nil || tx.Earned == 0 {
			continue
		}
		if tx.ExpiresAt.After(since) && !tx.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}
