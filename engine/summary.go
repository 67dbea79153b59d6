/*
summary.go - Monthly summary aggregation with a time-boxed read cache

PURPOSE:
  Derives the per-user per-month TOIL summary from the record store:
  accrued (active records), used (usage records), remaining. The cache
  exists purely to absorb high-frequency UI re-renders; it is never a
  source of truth. Any discrepancy is resolved by invalidation, never by
  trusting the cache over the store.

INVALIDATION:
  - Per key, immediately on any record mutation for that key
  - Wholesale, whenever a schedule changes (every previously computed
    scheduledHours value is suspect)
  - Passively, by TTL expiry

SEE ALSO:
  - store.go:  RecordStore the summaries are projected from
  - engine.go: Invalidates on write, clears on schedule change
*/
package engine

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// CONFIG
// =============================================================================

type CacheConfig struct {
	// TTL bounds how long a cached summary may serve reads.
	TTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 5 * time.Minute}
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type cachedSummary struct {
	summary Summary
	expires time.Time
}

// Aggregator computes monthly summaries with a TTL read cache.
// Reads never block: they return cached or synchronously recomputed data.
type Aggregator struct {
	store RecordStore

	mu    sync.Mutex
	cache map[calcKey]cachedSummary
	ttl   time.Duration

	now func() time.Time
}

func NewAggregator(store RecordStore, cfg CacheConfig) *Aggregator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	return &Aggregator{
		store: store,
		cache: make(map[calcKey]cachedSummary),
		ttl:   cfg.TTL,
		now:   time.Now,
	}
}

// Summary returns the cached summary when fresh, otherwise recomputes
// synchronously from the store.
func (a *Aggregator) Summary(ctx context.Context, userID UserID, month MonthYear) (Summary, error) {
	k := calcKey{userID, month}

	a.mu.Lock()
	if c, ok := a.cache[k]; ok && a.now().Before(c.expires) {
		a.mu.Unlock()
		return c.summary, nil
	}
	a.mu.Unlock()

	return a.Recompute(ctx, userID, month)
}

// Recompute bypasses the cache, projects the summary from the store, and
// refreshes the cache entry.
func (a *Aggregator) Recompute(ctx context.Context, userID UserID, month MonthYear) (Summary, error) {
	records, err := a.store.ListByUserMonth(ctx, userID, month)
	if err != nil {
		return Summary{}, err
	}
	usage, err := a.store.ListUsageByUserMonth(ctx, userID, month)
	if err != nil {
		return Summary{}, err
	}

	accrued := ZeroHours()
	for _, r := range records {
		if r.Status != StatusActive {
			continue
		}
		accrued = accrued.Add(r.Hours)
	}
	used := ZeroHours()
	for _, u := range usage {
		used = used.Add(u.Hours)
	}

	s := Summary{
		UserID:     userID,
		MonthYear:  month,
		Accrued:    accrued,
		Used:       used,
		Remaining:  accrued.Sub(used).ClampZero(),
		ComputedAt: a.now().UTC(),
	}

	a.mu.Lock()
	a.cache[calcKey{userID, month}] = cachedSummary{summary: s, expires: a.now().Add(a.ttl)}
	a.mu.Unlock()

	return s, nil
}

// Invalidate drops the cache entry for one (user, month) key.
func (a *Aggregator) Invalidate(userID UserID, month MonthYear) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, calcKey{userID, month})
}

// Clear drops every cache entry. Used when a schedule changes and after
// bulk data fixes.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[calcKey]cachedSummary)
}
