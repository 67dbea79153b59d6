// Package store provides RecordStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/toil-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[engine.UserID][]engine.Record
	usage   map[engine.UserID][]engine.UsageRecord
	byID    map[engine.RecordID]bool
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[engine.UserID][]engine.Record),
		usage:   make(map[engine.UserID][]engine.UsageRecord),
		byID:    make(map[engine.RecordID]bool),
	}
}

// Append merges by record ID: re-appending an existing ID is a no-op.
func (m *Memory) Append(_ context.Context, rec engine.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byID[rec.ID] {
		return nil
	}
	m.byID[rec.ID] = true

	recs := m.records[rec.UserID]
	// Insert in date order so month listings come back chronological.
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].Date.After(rec.Date)
	})
	recs = append(recs, engine.Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	m.records[rec.UserID] = recs
	return nil
}

func (m *Memory) ListByUser(_ context.Context, userID engine.UserID) ([]engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Record, len(m.records[userID]))
	copy(out, m.records[userID])
	return out, nil
}

func (m *Memory) ListByUserMonth(_ context.Context, userID engine.UserID, month engine.MonthYear) ([]engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Record
	for _, r := range m.records[userID] {
		if r.MonthYear == month {
			out = append(out, r)
		}
	}
	return out, nil
}

// VoidDuplicates keeps the most recently created active record per
// (userID, date, entryID) key and voids the rest.
func (m *Memory) VoidDuplicates(_ context.Context, userID engine.UserID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.records[userID]
	keep := make(map[string]int) // dedup key -> index of newest active record
	for i, r := range recs {
		if r.Status != engine.StatusActive {
			continue
		}
		k := r.DedupKey()
		j, seen := keep[k]
		if !seen || r.CreatedAt.After(recs[j].CreatedAt) {
			keep[k] = i
		}
	}

	voided := 0
	for i, r := range recs {
		if r.Status != engine.StatusActive {
			continue
		}
		if keep[r.DedupKey()] != i {
			recs[i].Status = engine.StatusVoided
			voided++
		}
	}
	return voided, nil
}

func (m *Memory) AppendUsage(_ context.Context, rec engine.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byID[rec.ID] {
		return nil
	}
	m.byID[rec.ID] = true
	m.usage[rec.UserID] = append(m.usage[rec.UserID], rec)
	return nil
}

func (m *Memory) ListUsageByUserMonth(_ context.Context, userID engine.UserID, month engine.MonthYear) ([]engine.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.UsageRecord
	for _, u := range m.usage[userID] {
		if u.MonthYear == month {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]engine.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[engine.UserID]bool)
	var out []engine.UserID
	for u := range m.records {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for u := range m.usage {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
