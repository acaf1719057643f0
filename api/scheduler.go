/*
scheduler.go - Periodic expiry sweep scheduler

PURPOSE:
  Drives jewels.Sweeper on a background ticker so cached summaries get
  invalidated close to when earn lots cross their expiry boundary, and
  so the sweep audit trail accumulates without manual triggering.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each tick delegates to Sweeper.Sweep with the current time
  - Correctness never depends on this running: expiry is evaluated at
    read time, the scheduler only keeps caches fresh and the audit
    trail populated

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(sweeper)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - jewels/sweeper.go: The sweep itself
  - cmd/server/main.go: Wires the scheduler at startup
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/villaluz/jewels-engine/jewels"
)

// ExpiryScheduler runs the expiry sweeper on a fixed interval.
type ExpiryScheduler struct {
	Sweeper  *jewels.Sweeper
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(sweeper *jewels.Sweeper) *ExpiryScheduler {
	return &ExpiryScheduler{
		Sweeper:  sweeper,
		Interval: 1 * time.Hour,
		Enabled:  true,
		stop:     make(chan bool),
	}
}

// Start begins the scheduler.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.Interval)
	es.wg.Add(1)

	go es.run()

	log.Printf("[Sweeper] Started with interval: %v", es.Interval)
}

// Stop stops the scheduler.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (es *ExpiryScheduler) run() {
	defer es.wg.Done()

	// Sweep immediately on start
	es.sweep()

	for {
		select {
		case <-es.ticker.C:
			es.sweep()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpiryScheduler) sweep() {
	ctx := context.Background()
	run, err := es.Sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("[Sweeper] Sweep failed: %v", err)
		return
	}
	if run.LotsExpired > 0 {
		log.Printf("[Sweeper] Completed: %d users scanned, %d lots expired, %d summaries invalidated",
			run.UsersScanned, run.LotsExpired, run.Invalidated)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (es *ExpiryScheduler) RunNow() {
	es.sweep()
}
