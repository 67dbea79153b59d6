package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// stubStore is a minimal RecordStore that counts reads, so tests can tell
// cache hits from recomputations.
type stubStore struct {
	records []Record
	usage   []UsageRecord
	reads   int
}

func (s *stubStore) Append(_ context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *stubStore) ListByUser(_ context.Context, userID UserID) ([]Record, error) {
	var out []Record
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) ListByUserMonth(_ context.Context, userID UserID, month MonthYear) ([]Record, error) {
	s.reads++
	var out []Record
	for _, r := range s.records {
		if r.UserID == userID && r.MonthYear == month {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) VoidDuplicates(_ context.Context, _ UserID) (int, error) { return 0, nil }

func (s *stubStore) AppendUsage(_ context.Context, rec UsageRecord) error {
	s.usage = append(s.usage, rec)
	return nil
}

func (s *stubStore) ListUsageByUserMonth(_ context.Context, userID UserID, month MonthYear) ([]UsageRecord, error) {
	var out []UsageRecord
	for _, u := range s.usage {
		if u.UserID == userID && u.MonthYear == month {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubStore) ListUsers(_ context.Context) ([]UserID, error) { return nil, nil }

func newTestAggregator(st *stubStore, ttl time.Duration) (*Aggregator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)}
	agg := NewAggregator(st, CacheConfig{TTL: ttl})
	agg.now = clock.Now
	return agg, clock
}

func h(v float64) Hours {
	return Hours{Value: decimal.NewFromFloat(v)}
}

func activeRecord(id string, hours float64) Record {
	return Record{
		ID: RecordID(id), UserID: "u1",
		Date:      time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		Hours:     h(hours),
		MonthYear: "2024-03",
		Status:    StatusActive,
	}
}

// =============================================================================
// PROJECTION
// =============================================================================

func TestAggregator_SumsActiveMinusUsage(t *testing.T) {
	// GIVEN: 2h + 1.5h active, 3h voided, and 1h used
	// THEN:  accrued 3.5, used 1, remaining 2.5
	st := &stubStore{}
	st.records = append(st.records, activeRecord("r1", 2), activeRecord("r2", 1.5))
	voided := activeRecord("r3", 3)
	voided.Status = StatusVoided
	st.records = append(st.records, voided)
	st.usage = append(st.usage, UsageRecord{ID: "use-1", UserID: "u1", MonthYear: "2024-03", Hours: h(1)})

	agg, _ := newTestAggregator(st, time.Minute)

	s, err := agg.Summary(context.Background(), "u1", "2024-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.Accrued.Equal(h(3.5)) {
		t.Fatalf("accrued: expected 3.5, got %s", s.Accrued)
	}
	if !s.Used.Equal(h(1)) {
		t.Fatalf("used: expected 1, got %s", s.Used)
	}
	if !s.Remaining.Equal(h(2.5)) {
		t.Fatalf("remaining: expected 2.5, got %s", s.Remaining)
	}
}

func TestAggregator_RemainingNeverNegative(t *testing.T) {
	st := &stubStore{}
	st.records = append(st.records, activeRecord("r1", 1))
	st.usage = append(st.usage, UsageRecord{ID: "use-1", UserID: "u1", MonthYear: "2024-03", Hours: h(5)})

	agg, _ := newTestAggregator(st, time.Minute)

	s, err := agg.Summary(context.Background(), "u1", "2024-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.Remaining.IsZero() {
		t.Fatalf("remaining should clamp to zero, got %s", s.Remaining)
	}
}

func TestAggregator_EmptyMonthIsZero(t *testing.T) {
	agg, _ := newTestAggregator(&stubStore{}, time.Minute)

	s, err := agg.Summary(context.Background(), "u1", "2024-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.Accrued.IsZero() || !s.Used.IsZero() || !s.Remaining.IsZero() {
		t.Fatalf("expected all-zero summary, got %+v", s)
	}
}

// =============================================================================
// CACHING
// =============================================================================

func TestAggregator_CachesWithinTTL(t *testing.T) {
	st := &stubStore{}
	st.records = append(st.records, activeRecord("r1", 2))
	agg, clock := newTestAggregator(st, 5*time.Minute)
	ctx := context.Background()

	agg.Summary(ctx, "u1", "2024-03")
	reads := st.reads

	clock.Advance(time.Minute)
	agg.Summary(ctx, "u1", "2024-03")
	if st.reads != reads {
		t.Fatal("summary within TTL should come from cache")
	}

	clock.Advance(5 * time.Minute)
	agg.Summary(ctx, "u1", "2024-03")
	if st.reads == reads {
		t.Fatal("expired entry should recompute from the store")
	}
}

func TestAggregator_InvalidateForcesRecompute(t *testing.T) {
	st := &stubStore{}
	st.records = append(st.records, activeRecord("r1", 2))
	agg, _ := newTestAggregator(st, 5*time.Minute)
	ctx := context.Background()

	agg.Summary(ctx, "u1", "2024-03")
	st.records = append(st.records, activeRecord("r2", 1))

	// Still cached: the new record is invisible.
	s, _ := agg.Summary(ctx, "u1", "2024-03")
	if !s.Accrued.Equal(h(2)) {
		t.Fatalf("expected stale 2h before invalidation, got %s", s.Accrued)
	}

	agg.Invalidate("u1", "2024-03")
	s, _ = agg.Summary(ctx, "u1", "2024-03")
	if !s.Accrued.Equal(h(3)) {
		t.Fatalf("expected fresh 3h after invalidation, got %s", s.Accrued)
	}
}

func TestAggregator_ClearDropsAllKeys(t *testing.T) {
	st := &stubStore{}
	st.records = append(st.records, activeRecord("r1", 2))
	agg, _ := newTestAggregator(st, 5*time.Minute)
	ctx := context.Background()

	agg.Summary(ctx, "u1", "2024-03")
	reads := st.reads

	agg.Clear()
	agg.Summary(ctx, "u1", "2024-03")
	if st.reads == reads {
		t.Fatal("clear should evict every cached summary")
	}
}
