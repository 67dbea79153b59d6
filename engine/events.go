/*
events.go - Publish/subscribe fan-out for summary and calculation events

PURPOSE:
  Notifies every interested consumer when a summary changes, a calculation
  starts or fails, or a schedule changes. Consumers may live in this
  process or in another context sharing the same store; cross-context
  delivery rides on the ChangeNotifier transport.

ROUTING:
  The bus is topic-only. Payloads always carry UserID and MonthYear;
  filtering by user or month is the subscriber's responsibility.

ORIGIN TRACKING:
  Every synchronizer stamps outgoing events with its own origin ID and
  drops incoming remote events bearing that ID, so a broadcast never
  echoes back to its source.

SEE ALSO:
  - store.go:  ChangeNotifier interface
  - engine.go: Publishes through this synchronizer
*/
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// EVENTS
// =============================================================================

type Topic string

const (
	TopicSummaryUpdated     Topic = "summary-updated"
	TopicCalculationStarted Topic = "calculation-started"
	TopicCalculationError   Topic = "calculation-error"
	TopicScheduleChanged    Topic = "schedule-changed"

	// TopicAll subscribes to every topic.
	TopicAll Topic = "all"
)

// Event is the payload delivered to subscribers. UserID and MonthYear are
// always set; Summary only on summary-updated, Error only on
// calculation-error.
type Event struct {
	ID        string    `json:"id"`
	Topic     Topic     `json:"topic"`
	UserID    UserID    `json:"userId"`
	MonthYear MonthYear `json:"monthYear"`
	Summary   *Summary  `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
	Origin    string    `json:"origin"`
}

type Handler func(Event)

// =============================================================================
// SYNCHRONIZER
// =============================================================================

// Synchronizer fans events out to local subscribers and, when a notifier
// is configured, to every other execution context.
type Synchronizer struct {
	mu     sync.Mutex
	subs   map[Topic]map[int]Handler
	nextID int

	origin     string
	notifier   ChangeNotifier
	stopListen func()
	closed     bool
}

// NewSynchronizer creates a synchronizer. notifier may be nil for purely
// in-process use.
func NewSynchronizer(notifier ChangeNotifier) *Synchronizer {
	s := &Synchronizer{
		subs:     make(map[Topic]map[int]Handler),
		origin:   uuid.NewString(),
		notifier: notifier,
	}
	if notifier != nil {
		s.stopListen = notifier.Listen(s.deliverRemote)
	}
	return s
}

// Subscribe registers a handler for a topic (or TopicAll) and returns its
// unsubscribe function.
func (s *Synchronizer) Subscribe(topic Topic, h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[topic] == nil {
		s.subs[topic] = make(map[int]Handler)
	}
	id := s.nextID
	s.nextID++
	s.subs[topic][id] = h

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[topic], id)
	}
}

// Publish delivers the event to local subscribers, then broadcasts it to
// other contexts. Handler panics are contained: one misbehaving subscriber
// must not break the trigger that published.
func (s *Synchronizer) Publish(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.Origin = s.origin

	s.deliverLocal(ev)

	if s.notifier != nil {
		if err := s.notifier.Broadcast(ctx, ev); err != nil {
			log.Printf("[Events] broadcast failed for %s: %v", ev.Topic, err)
		}
	}
}

// deliverRemote handles events broadcast by other contexts.
func (s *Synchronizer) deliverRemote(ev Event) {
	if ev.Origin == s.origin {
		return
	}
	s.deliverLocal(ev)
}

func (s *Synchronizer) deliverLocal(ev Event) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.subs[ev.Topic])+len(s.subs[TopicAll]))
	for _, h := range s.subs[ev.Topic] {
		handlers = append(handlers, h)
	}
	for _, h := range s.subs[TopicAll] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Events] subscriber panic on %s: %v", ev.Topic, r)
				}
			}()
			h(ev)
		}()
	}
}

// Origin returns this synchronizer's context identity, as stamped on the
// events it publishes.
func (s *Synchronizer) Origin() string { return s.origin }

// Close stops listening for remote events.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.stopListen != nil {
		s.stopListen()
	}
}

// =============================================================================
// LOOPBACK NOTIFIER - In-process transport
// =============================================================================

// LoopbackNotifier is a ChangeNotifier connecting synchronizers within one
// process. Useful for tests and for multiple engine consumers sharing a
// process; cross-process transports live next to their stores.
type LoopbackNotifier struct {
	mu        sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

func NewLoopbackNotifier() *LoopbackNotifier {
	return &LoopbackNotifier{listeners: make(map[int]func(Event))}
}

func (n *LoopbackNotifier) Broadcast(_ context.Context, ev Event) error {
	n.mu.Lock()
	handlers := make([]func(Event), 0, len(n.listeners))
	for _, h := range n.listeners {
		handlers = append(handlers, h)
	}
	n.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (n *LoopbackNotifier) Listen(handler func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = handler
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}
