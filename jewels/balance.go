/*
balance.go - Balance aggregation with expiry-at-read-time

PURPOSE:
  Computes a user's Summary by folding their transaction sequence. This
  is the central calculation that answers "how many jewels can this
  user spend?" and "how many have they ever earned?".

KEY INSIGHT:
  Expiry is a read-time comparison, not a stored state change. An earn
  lot past its ExpiresAt simply stops counting toward the active
  balance; it still counts toward lifetime earned (tier placement).
  No transaction is ever mutated when a lot expires.

FOLD ALGORITHM (per entry, oldest first):
  - Earned  -> TotalEarned += Earned, always
  - Earned  -> ActiveBalance += Earned, only if not expired at asOf
  - Redeemed -> TotalRedeemed += Redeemed, ActiveBalance -= Redeemed,
    unconditionally

HISTORICAL READS:
  Summarize with a past asOf reproduces the balance exactly as it
  existed then: entries created after asOf are excluded, and expiry is
  judged against asOf. This is an auditability requirement.

CACHING:
  Folding is O(n) per call. Current-time reads go through a per-user
  cache holding the folded summary plus the earliest future expiry
  boundary. An entry is reused until a new transaction is appended for
  that user, the sweeper invalidates it, or "now" crosses the boundary.
  The cache is a derived index - never authoritative. Historical reads
  always bypass it.

SEE ALSO:
  - sweeper.go: Invalidates cache entries when lots cross expiry
  - redeem.go: Reads active balance for admission control
*/
package jewels

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// AGGREGATOR - Folds the transaction log into summaries
// =============================================================================

// Aggregator derives per-user summaries from the transaction log.
type Aggregator struct {
	Store Store

	mu    sync.Mutex
	cache map[UserID]*cachedSummary
	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

type cachedSummary struct {
	summary Summary
	// nextExpiry is the earliest ExpiresAt strictly after summary.AsOf
	// among the user's earn lots. Nil = no future boundary; the entry
	// stays valid until the next append.
	nextExpiry *time.Time
}

// NewAggregator creates an aggregator with summary caching enabled.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		Store: store,
		cache: make(map[UserID]*cachedSummary),
		Clock: func() time.Time { return time.Now().UTC() },
	}
}

// Summarize returns the user's summary as of now, served from the cache
// when possible. A user with zero transactions yields a zero summary,
// not an error - new users start at zero.
func (a *Aggregator) Summarize(ctx context.Context, userID UserID) (Summary, error) {
	now := a.Clock()

	a.mu.Lock()
	if entry, ok := a.cache[userID]; ok && entryValidAt(entry, now) {
		s := entry.summary
		s.AsOf = now
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	s, next, err := a.fold(ctx, userID, now)
	if err != nil {
		return Summary{}, err
	}

	a.mu.Lock()
	a.cache[userID] = &cachedSummary{summary: s, nextExpiry: next}
	a.mu.Unlock()
	return s, nil
}

// SummarizeAt reproduces the summary as it existed at asOf. Historical
// reads always re-fold and bypass the cache.
func (a *Aggregator) SummarizeAt(ctx context.Context, userID UserID, asOf time.Time) (Summary, error) {
	s, _, err := a.fold(ctx, userID, asOf)
	return s, err
}

// Invalidate drops the cached summary for a user. Called on every
// append for that user and by the expiry sweeper.
func (a *Aggregator) Invalidate(userID UserID) {
	a.mu.Lock()
	delete(a.cache, userID)
	a.mu.Unlock()
}

// NextExpiry returns the earliest future expiry boundary for a user's
// earn lots at the given instant, or nil if none. Used by the sweeper.
func (a *Aggregator) NextExpiry(ctx context.Context, userID UserID, at time.Time) (*time.Time, error) {
	_, next, err := a.fold(ctx, userID, at)
	return next, err
}

func entryValidAt(entry *cachedSummary, now time.Time) bool {
	if now.Before(entry.summary.AsOf) {
		// Clock went backwards relative to the cached fold; re-fold.
		return false
	}
	return entry.nextExpiry == nil || now.Before(*entry.nextExpiry)
}

func (a *Aggregator) fold(ctx context.Context, userID UserID, asOf time.Time) (Summary, *time.Time, error) {
	return foldSummary(ctx, a.Store, userID, asOf)
}

// foldSummary replays a user's transaction sequence up to asOf. It is
// package-level so the redemption engine can re-verify against a
// transactional store view (see redeem.go).
func foldSummary(ctx context.Context, store Store, userID UserID, asOf time.Time) (Summary, *time.Time, error) {
	txs, err := store.ListByUser(ctx, userID)
	if err != nil {
		return Summary{}, nil, err
	}

	s := Summary{UserID: userID, AsOf: asOf}
	var next *time.Time

	for _, tx := range txs {
		if tx.CreatedAt.After(asOf) {
			// Historical read: this entry did not exist yet.
			continue
		}
		if tx.Earned > 0 {
			s.TotalEarned += tx.Earned
			if !tx.ExpiredAt(asOf) {
				s.ActiveBalance += tx.Earned
				if tx.ExpiresAt != nil && (next == nil || tx.ExpiresAt.Before(*next)) {
					t := *tx.ExpiresAt
					next = &t
				}
			}
		}
		if tx.Redeemed > 0 {
			s.TotalRedeemed += tx.Redeemed
			s.ActiveBalance -= tx.Redeemed
		}
	}
	return s, next, nil
}
