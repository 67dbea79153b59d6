/*
scheduler.go - Background maintenance scheduler

PURPOSE:
  Periodically sweeps the record store for duplicate accrual records
  and prunes stale throttle bookkeeping, so long-running servers stay
  healthy without manual admin calls.

DESIGN:
  - Runs a background goroutine with configurable sweep interval
  - Voids duplicates for every known user via RecordStore.VoidDuplicates
  - Drops expired throttle state via Throttle.Cleanup
  - Clears cached summaries only when something was actually voided

CONFIGURATION:
  - SweepInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewMaintenanceScheduler(eng)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Dedup endpoint (manual sweep)
  - engine/throttle.go: Cleanup
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/toil-engine/engine"
)

// MaintenanceScheduler handles periodic dedup and throttle cleanup.
type MaintenanceScheduler struct {
	Engine        *engine.Engine
	SweepInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMaintenanceScheduler creates a new scheduler.
func NewMaintenanceScheduler(eng *engine.Engine) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		Engine:        eng,
		SweepInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ms *MaintenanceScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ms.ticker = time.NewTicker(ms.SweepInterval)
	ms.wg.Add(1)

	go ms.run()

	log.Printf("[Scheduler] Started with sweep interval: %v", ms.SweepInterval)
}

// Stop stops the scheduler.
func (ms *MaintenanceScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker != nil {
		ms.ticker.Stop()
		close(ms.stop)
		ms.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ms *MaintenanceScheduler) run() {
	defer ms.wg.Done()

	// Run immediately on start
	ms.sweep()

	for {
		select {
		case <-ms.ticker.C:
			ms.sweep()
		case <-ms.stop:
			return
		}
	}
}

func (ms *MaintenanceScheduler) sweep() {
	ctx := context.Background()

	users, err := ms.Engine.Store().ListUsers(ctx)
	if err != nil {
		log.Printf("[Scheduler] Failed to list users: %v", err)
		return
	}

	voided := 0
	for _, userID := range users {
		n, err := ms.Engine.Store().VoidDuplicates(ctx, userID)
		if err != nil {
			log.Printf("[Scheduler] Dedup failed for %s: %v", userID, err)
			continue
		}
		voided += n
	}
	if voided > 0 {
		ms.Engine.ClearCache()
		log.Printf("[Scheduler] Voided %d duplicate records", voided)
	}

	if dropped := ms.Engine.Throttle().Cleanup(); dropped > 0 {
		log.Printf("[Scheduler] Dropped %d stale throttle entries", dropped)
	}
}
