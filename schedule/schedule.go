/*
Package schedule resolves calendar days against rotating fortnight work schedules.

PURPOSE:
  Answers, for any calendar day, the questions the accrual engine needs:
  is this a working day, how many hours are rostered, is it a Rostered Day
  Off (RDO), a holiday, or a weekend - and, when an RDO collides with a
  non-working day, which day it shifted to.

KEY CONCEPTS IN THIS FILE (schedule.go):
  - WorkSchedule: A named two-week (fortnight) rotation
  - WeekPattern:  One week of the rotation - day slots plus RDO designations
  - DaySlot:      Start/end clock times with unpaid breaks
  - Holiday:      A calendar day that is non-working regardless of schedule

INVARIANTS:
  1. A weekday designated as RDO for a week carries no working hours
  2. A weekday absent from the pattern is non-working (weekend slot)
  3. Resolution is pure: identical inputs always yield identical output

SEE ALSO:
  - resolver.go: Day resolution and RDO shifting
*/
package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WORK SCHEDULE - Two-week rotating roster
// =============================================================================

// WorkSchedule is a named fortnight rotation. Weeks is keyed by the
// fortnight week index (1 or 2).
type WorkSchedule struct {
	ID    string
	Name  string
	Weeks map[int]WeekPattern
}

// WeekPattern describes one week of the rotation.
// A weekday present in RDODays has no working hours for that slot.
// A weekday absent from Days entirely is non-working.
type WeekPattern struct {
	Days    map[time.Weekday]DaySlot
	RDODays map[time.Weekday]bool
}

// DaySlot defines the rostered hours for one weekday of one week.
// Times use 24h "HH:MM" clock format.
type DaySlot struct {
	StartTime string
	EndTime   string
	Breaks    Breaks
}

// Breaks are unpaid breaks subtracted from the rostered span.
type Breaks struct {
	LunchMinutes int
	SmokoMinutes int
}

// Hours returns the rostered working hours for the slot: the span between
// StartTime and EndTime minus unpaid breaks, never negative.
func (s DaySlot) Hours() (decimal.Decimal, error) {
	start, err := parseClock(s.StartTime)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid start time %q: %w", s.StartTime, err)
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid end time %q: %w", s.EndTime, err)
	}

	minutes := end - start - s.Breaks.LunchMinutes - s.Breaks.SmokoMinutes
	if minutes < 0 {
		minutes = 0
	}
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)), nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Slot returns the day slot for a fortnight week and weekday, if any.
// RDO-designated weekdays never have a slot.
func (ws *WorkSchedule) Slot(week int, wd time.Weekday) (DaySlot, bool) {
	pattern, ok := ws.Weeks[week]
	if !ok {
		return DaySlot{}, false
	}
	if pattern.RDODays[wd] {
		return DaySlot{}, false
	}
	slot, ok := pattern.Days[wd]
	return slot, ok
}

// IsRDO reports whether a weekday is designated as a Rostered Day Off
// for the given fortnight week.
func (ws *WorkSchedule) IsRDO(week int, wd time.Weekday) bool {
	pattern, ok := ws.Weeks[week]
	if !ok {
		return false
	}
	return pattern.RDODays[wd]
}

// =============================================================================
// HOLIDAY - Non-working regardless of schedule
// =============================================================================

type Holiday struct {
	ID     string
	Name   string
	Date   time.Time
	Region string
}

// HolidayOn returns the holiday falling on the given day, if any.
func HolidayOn(day time.Time, holidays []Holiday) (Holiday, bool) {
	for _, h := range holidays {
		if SameDay(h.Date, day) {
			return h, true
		}
	}
	return Holiday{}, false
}

// =============================================================================
// DAY HELPERS
// =============================================================================

// Day truncates a time to UTC midnight. All resolution is day-granular.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsWeekend reports whether the day is a Saturday or Sunday.
func IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
