/*
registry.go - In-memory collaborator registries

PURPOSE:
  The engine consumes three external collaborators: the time-entry store,
  the work-schedule store, and the holiday provider. In the full product
  these live elsewhere; the server carries small in-memory registries so
  the API is usable end to end and schedule changes flow through the
  engine's invalidation path.
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/toil-engine/engine"
	"github.com/warp/toil-engine/schedule"
)

// ScheduleRegistry implements engine.ScheduleSource.
type ScheduleRegistry struct {
	mu        sync.RWMutex
	schedules map[engine.UserID]*schedule.WorkSchedule
}

func NewScheduleRegistry() *ScheduleRegistry {
	return &ScheduleRegistry{schedules: make(map[engine.UserID]*schedule.WorkSchedule)}
}

func (r *ScheduleRegistry) UserSchedule(_ context.Context, userID engine.UserID) (*schedule.WorkSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.schedules[userID]
	if !ok {
		return nil, engine.ErrMissingSchedule
	}
	return ws, nil
}

func (r *ScheduleRegistry) Assign(userID engine.UserID, ws *schedule.WorkSchedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[userID] = ws
}

// HolidayRegistry implements engine.HolidaySource.
type HolidayRegistry struct {
	mu       sync.RWMutex
	holidays []schedule.Holiday
}

func NewHolidayRegistry() *HolidayRegistry {
	return &HolidayRegistry{}
}

func (r *HolidayRegistry) Holidays(_ context.Context) ([]schedule.Holiday, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schedule.Holiday, len(r.holidays))
	copy(out, r.holidays)
	return out, nil
}

func (r *HolidayRegistry) Replace(holidays []schedule.Holiday) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holidays = append([]schedule.Holiday(nil), holidays...)
}

// EntryRegistry implements engine.EntrySource.
type EntryRegistry struct {
	mu      sync.RWMutex
	entries map[engine.UserID][]engine.TimeEntry
}

func NewEntryRegistry() *EntryRegistry {
	return &EntryRegistry{entries: make(map[engine.UserID][]engine.TimeEntry)}
}

func (r *EntryRegistry) DayEntries(_ context.Context, date time.Time, userID engine.UserID) ([]engine.TimeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []engine.TimeEntry
	for _, e := range r.entries[userID] {
		if schedule.SameDay(e.Date, date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *EntryRegistry) Add(entries ...engine.TimeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.UserID] = append(r.entries[e.UserID], e)
	}
}
