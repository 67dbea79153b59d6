package engine_test

import (
	"context"
	"testing"

	"github.com/warp/toil-engine/engine"
)

// =============================================================================
// LOCAL DELIVERY
// =============================================================================

func TestSynchronizer_TopicRouting(t *testing.T) {
	s := engine.NewSynchronizer(nil)
	defer s.Close()

	var summaries, all, errors int
	s.Subscribe(engine.TopicSummaryUpdated, func(engine.Event) { summaries++ })
	s.Subscribe(engine.TopicAll, func(engine.Event) { all++ })
	s.Subscribe(engine.TopicCalculationError, func(engine.Event) { errors++ })

	s.Publish(context.Background(), engine.Event{
		Topic: engine.TopicSummaryUpdated, UserID: "u1", MonthYear: "2024-03",
	})

	if summaries != 1 {
		t.Fatalf("topic subscriber: expected 1 delivery, got %d", summaries)
	}
	if all != 1 {
		t.Fatalf("all subscriber: expected 1 delivery, got %d", all)
	}
	if errors != 0 {
		t.Fatalf("unrelated topic delivered %d times", errors)
	}
}

func TestSynchronizer_Unsubscribe(t *testing.T) {
	s := engine.NewSynchronizer(nil)
	defer s.Close()

	calls := 0
	unsubscribe := s.Subscribe(engine.TopicSummaryUpdated, func(engine.Event) { calls++ })

	s.Publish(context.Background(), engine.Event{Topic: engine.TopicSummaryUpdated})
	unsubscribe()
	s.Publish(context.Background(), engine.Event{Topic: engine.TopicSummaryUpdated})

	if calls != 1 {
		t.Fatalf("expected 1 delivery after unsubscribe, got %d", calls)
	}
}

func TestSynchronizer_SubscriberPanicContained(t *testing.T) {
	s := engine.NewSynchronizer(nil)
	defer s.Close()

	delivered := false
	s.Subscribe(engine.TopicSummaryUpdated, func(engine.Event) { panic("bad subscriber") })
	s.Subscribe(engine.TopicSummaryUpdated, func(engine.Event) { delivered = true })

	s.Publish(context.Background(), engine.Event{Topic: engine.TopicSummaryUpdated})

	if !delivered {
		t.Fatal("a panicking subscriber must not block the others")
	}
}

func TestSynchronizer_StampsIDAndOrigin(t *testing.T) {
	s := engine.NewSynchronizer(nil)
	defer s.Close()

	var got engine.Event
	s.Subscribe(engine.TopicSummaryUpdated, func(ev engine.Event) { got = ev })
	s.Publish(context.Background(), engine.Event{Topic: engine.TopicSummaryUpdated})

	if got.ID == "" {
		t.Fatal("published event should carry an ID")
	}
	if got.Origin != s.Origin() {
		t.Fatalf("expected origin %q, got %q", s.Origin(), got.Origin)
	}
	if got.At.IsZero() {
		t.Fatal("published event should carry a timestamp")
	}
}

// =============================================================================
// CROSS-CONTEXT DELIVERY
// =============================================================================

func TestSynchronizer_CrossContextDelivery(t *testing.T) {
	// GIVEN: two synchronizers sharing one notifier, like two engine
	//        instances over one store
	// WHEN:  context A publishes
	// THEN:  context B receives it; A does not hear its own echo
	notifier := engine.NewLoopbackNotifier()
	a := engine.NewSynchronizer(notifier)
	defer a.Close()
	b := engine.NewSynchronizer(notifier)
	defer b.Close()

	deliveredToA := 0
	deliveredToB := 0
	a.Subscribe(engine.TopicSummaryUpdated, func(engine.Event) { deliveredToA++ })
	b.Subscribe(engine.TopicSummaryUpdated, func(engine.Event) { deliveredToB++ })

	a.Publish(context.Background(), engine.Event{
		Topic: engine.TopicSummaryUpdated, UserID: "u1", MonthYear: "2024-03",
	})

	if deliveredToB != 1 {
		t.Fatalf("remote context: expected 1 delivery, got %d", deliveredToB)
	}
	// A's subscriber fired once from the local publish; the broadcast echo
	// carries A's origin and is dropped.
	if deliveredToA != 1 {
		t.Fatalf("origin context: expected exactly 1 delivery, got %d", deliveredToA)
	}
}

func TestSynchronizer_CloseStopsRemoteDelivery(t *testing.T) {
	notifier := engine.NewLoopbackNotifier()
	a := engine.NewSynchronizer(notifier)
	defer a.Close()
	b := engine.NewSynchronizer(notifier)

	received := 0
	b.Subscribe(engine.TopicSummaryUpdated, func(engine.Event) { received++ })

	b.Close()
	a.Publish(context.Background(), engine.Event{Topic: engine.TopicSummaryUpdated})

	if received != 0 {
		t.Fatalf("closed context received %d events", received)
	}
}
