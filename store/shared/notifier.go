/*
notifier.go - Cross-context change notification over the shared directory

PURPOSE:
  Implements engine.ChangeNotifier for contexts that only share a
  filesystem. Broadcast appends the event to a bounded journal; every
  other context's watcher tails the journal and delivers new events. This
  is the filesystem analogue of the browser's storage-change signal: a
  write in one context is observed by the others without the consumers
  themselves polling the store.

JOURNAL:
  toil_events.json holds the last maxJournal events with monotonically
  increasing sequence numbers. Watchers remember the last sequence they
  delivered; echo suppression by origin is the Synchronizer's job.
*/
package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warp/toil-engine/engine"
)

const (
	eventsFile = "toil_events.json"
	maxJournal = 100
)

type journalEntry struct {
	Seq   uint64       `json:"seq"`
	Event engine.Event `json:"event"`
}

// Notifier implements engine.ChangeNotifier over a shared directory.
type Notifier struct {
	store *Store
	dir   string

	pollInterval time.Duration

	mu        sync.Mutex
	listeners map[int]func(engine.Event)
	nextID    int
	lastSeq   uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewNotifier creates a notifier over the store's directory and starts
// its watcher. Close releases the watcher goroutine.
func NewNotifier(store *Store, pollInterval time.Duration) *Notifier {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	n := &Notifier{
		store:        store,
		dir:          store.dir,
		pollInterval: pollInterval,
		listeners:    make(map[int]func(engine.Event)),
		done:         make(chan struct{}),
	}
	// Start tailing from the current journal head so old events are not
	// replayed into a new context.
	if entries, err := n.readJournal(); err == nil && len(entries) > 0 {
		n.lastSeq = entries[len(entries)-1].Seq
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.watch(ctx)
	return n
}

// Broadcast appends the event to the shared journal.
func (n *Notifier) Broadcast(ctx context.Context, ev engine.Event) error {
	return n.store.withLock(ctx, func() error {
		entries, err := n.readJournal()
		if err != nil {
			return err
		}
		var seq uint64 = 1
		if len(entries) > 0 {
			seq = entries[len(entries)-1].Seq + 1
		}
		entries = append(entries, journalEntry{Seq: seq, Event: ev})
		if len(entries) > maxJournal {
			entries = entries[len(entries)-maxJournal:]
		}
		return n.store.saveDocument(eventsFile, entries)
	})
}

// Listen registers a handler for events written by other contexts.
func (n *Notifier) Listen(handler func(engine.Event)) func() {
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

// Close stops the watcher.
func (n *Notifier) Close() {
	n.cancel()
	<-n.done
}

// =============================================================================
// WATCHER
// =============================================================================

func (n *Notifier) watch(ctx context.Context) {
	defer close(n.done)
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.deliverNew()
		}
	}
}

func (n *Notifier) deliverNew() {
	entries, err := n.readJournal()
	if err != nil {
		log.Printf("[SharedStore] reading event journal: %v", err)
		return
	}

	n.mu.Lock()
	var fresh []journalEntry
	for _, e := range entries {
		if e.Seq > n.lastSeq {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) > 0 {
		n.lastSeq = fresh[len(fresh)-1].Seq
	}
	handlers := make([]func(engine.Event), 0, len(n.listeners))
	for _, h := range n.listeners {
		handlers = append(handlers, h)
	}
	n.mu.Unlock()

	for _, e := range fresh {
		for _, h := range handlers {
			h(e.Event)
		}
	}
}

func (n *Notifier) readJournal() ([]journalEntry, error) {
	path := filepath.Join(n.dir, eventsFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var entries []journalEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Journal corruption only costs notifications, never records.
		backup := path + ".corrupt"
		_ = os.Rename(path, backup)
		log.Printf("[SharedStore] corrupt event journal reset (backed up to %s): %v", backup, err)
		return nil, nil
	}
	return entries, nil
}
