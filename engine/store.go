/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the engine and everything that holds state
  for it: the durable record store, the cross-context change notifier, and
  the external collaborators the engine reads from (time entries, schedules,
  holidays).

MERGE-ON-WRITE CONTRACT:
  The persisted record collection is shared between execution contexts.
  Implementations must union by record ID on write - re-read current state,
  merge, write back - so two writers appending records for different days
  never erase each other. Last-writer-wins overwrite is disallowed.
  Callers must treat the stored records as a set, not a sequence.

IMPLEMENTATIONS:
  - engine/store:  In-memory, for tests and single-process use
  - store/sqlite:  SQLite, production persistence
  - store/shared:  Shared JSON document with a lock-lease merge protocol

SEE ALSO:
  - events.go: The Synchronizer built on ChangeNotifier
*/
package engine

import (
	"context"
	"time"

	"github.com/warp/toil-engine/schedule"
)

// =============================================================================
// RECORD STORE - Durable keyed storage for accrual and usage records
// =============================================================================

// RecordStore persists TOIL accrual and usage records.
//
// INVARIANTS:
//   - Append unions by record ID: re-appending an existing ID is a no-op
//   - Records are never edited in place; VoidDuplicates flips Status only
//   - After VoidDuplicates, at most one active record exists per
//     (userID, date, entryID) key
type RecordStore interface {
	// Append persists an accrual record, merging by ID with current state.
	Append(ctx context.Context, rec Record) error

	// ListByUser returns all accrual records for a user, active and voided.
	ListByUser(ctx context.Context, userID UserID) ([]Record, error)

	// ListByUserMonth returns the user's accrual records for one month.
	ListByUserMonth(ctx context.Context, userID UserID, month MonthYear) ([]Record, error)

	// VoidDuplicates voids all but the most recently created record per
	// (userID, date, entryID) key. Returns the number voided.
	VoidDuplicates(ctx context.Context, userID UserID) (int, error)

	// AppendUsage persists a TOIL consumption record, merging by ID.
	AppendUsage(ctx context.Context, rec UsageRecord) error

	// ListUsageByUserMonth returns the user's usage records for one month.
	ListUsageByUserMonth(ctx context.Context, userID UserID, month MonthYear) ([]UsageRecord, error)

	// ListUsers returns every user with at least one record of either kind.
	ListUsers(ctx context.Context) ([]UserID, error)
}

// =============================================================================
// CHANGE NOTIFIER - Cross-context signal transport
// =============================================================================

// ChangeNotifier carries events between execution contexts (processes,
// tabs, components sharing a store). The concrete transport - loopback,
// shared storage, broker - is an implementation detail.
type ChangeNotifier interface {
	// Broadcast delivers the event to every other listening context.
	Broadcast(ctx context.Context, ev Event) error

	// Listen registers a handler for events broadcast by other contexts.
	// The returned stop function unregisters it.
	Listen(handler func(Event)) (stop func())
}

// =============================================================================
// EXTERNAL COLLABORATORS - Consumed at their interface boundary only
// =============================================================================

// EntrySource is the external time-entry CRUD store, read-only to the engine.
type EntrySource interface {
	DayEntries(ctx context.Context, date time.Time, userID UserID) ([]TimeEntry, error)
}

// ScheduleSource is the external work-schedule store.
type ScheduleSource interface {
	UserSchedule(ctx context.Context, userID UserID) (*schedule.WorkSchedule, error)
}

// HolidaySource is the external holiday list provider.
type HolidaySource interface {
	Holidays(ctx context.Context) ([]schedule.Holiday, error)
}
