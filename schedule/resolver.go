/*
resolver.go - Day resolution against a fortnight schedule

PURPOSE:
  Resolves a calendar day to its effective roster status. This is called
  both by the accrual calculator and independently by read-side displays,
  so it must be pure: same inputs, same answer, always.

FORTNIGHT INDEX:
  The week-1/week-2 index is derived from the ISO week distance between the
  day and a fixed epoch Monday, normalized to {1, 2}. Deterministic for any
  date, past or future.

RDO SHIFTING:
  When a designated RDO lands on a holiday or weekend, the RDO slides
  forward to the next genuine working day within a bounded window. The
  destination day inherits RDO semantics (non-working for accrual) and
  reports where it shifted from. The origin day keeps its holiday/weekend
  status and remains fully non-working.

SEE ALSO:
  - schedule.go: WorkSchedule and Holiday types
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config carries the resolver's tunables.
type Config struct {
	// Epoch anchors the fortnight rotation. Must be a Monday.
	Epoch time.Time

	// ShiftWindowDays bounds how far an RDO may slide forward, and how far
	// back the resolver scans when deciding whether a day is a shift target.
	ShiftWindowDays int
}

// DefaultConfig returns the production configuration: rotation anchored on
// Monday 2024-01-01 (ISO week 1), 7-day shift window.
func DefaultConfig() Config {
	return Config{
		Epoch:           time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ShiftWindowDays: 7,
	}
}

// =============================================================================
// RESOLUTION - The answer for one day
// =============================================================================

// Resolution is the effective roster status of a single day.
type Resolution struct {
	Date         time.Time
	IsWorkingDay bool
	IsRDO        bool
	IsHoliday    bool
	IsWeekend    bool

	// ScheduledHours is the rostered span minus breaks, zero for any
	// non-working day.
	ScheduledHours decimal.Decimal

	// ShiftedFrom is set when this day inherits a shifted RDO.
	ShiftedFrom *time.Time
	ShiftReason ShiftReason
}

// ShiftReason names why an RDO moved off its designated day.
type ShiftReason string

const (
	ShiftNone    ShiftReason = ""
	ShiftHoliday ShiftReason = "holiday"
	ShiftWeekend ShiftReason = "weekend"
)

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	if cfg.ShiftWindowDays <= 0 {
		cfg.ShiftWindowDays = DefaultConfig().ShiftWindowDays
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = DefaultConfig().Epoch
	}
	return &Resolver{cfg: cfg}
}

// Resolve returns the effective roster status for a day.
// Pure: no clock reads, no mutation of inputs.
func (r *Resolver) Resolve(date time.Time, ws *WorkSchedule, holidays []Holiday) Resolution {
	day := Day(date)
	week := r.FortnightWeek(day)
	wd := day.Weekday()

	_, isHoliday := HolidayOn(day, holidays)
	isWeekend := IsWeekend(day)
	designatedRDO := ws != nil && ws.IsRDO(week, wd)

	res := Resolution{
		Date:           day,
		IsHoliday:      isHoliday,
		IsWeekend:      isWeekend,
		IsRDO:          designatedRDO,
		ScheduledHours: decimal.Zero,
	}
	if ws == nil {
		return res
	}

	// A shift target inherits RDO semantics from the origin day.
	if origin, reason, ok := r.shiftedOnto(day, ws, holidays); ok {
		res.IsRDO = true
		res.ShiftedFrom = &origin
		res.ShiftReason = reason
		return res
	}

	if designatedRDO || isHoliday || isWeekend {
		return res
	}

	slot, ok := ws.Slot(week, wd)
	if !ok {
		// No slot for this weekday: non-working, treated as a weekend slot.
		res.IsWeekend = true
		return res
	}

	hours, err := slot.Hours()
	if err != nil {
		// Malformed slot times resolve to a zero-hour working day rather
		// than failing: the calculator then awards all worked hours.
		return res
	}
	res.IsWorkingDay = true
	res.ScheduledHours = hours
	return res
}

// FortnightWeek returns 1 or 2 for the given day, from the ISO week
// distance to the configured epoch.
func (r *Resolver) FortnightWeek(day time.Time) int {
	weeks := int(mondayOf(Day(day)).Sub(mondayOf(Day(r.cfg.Epoch))).Hours() / (24 * 7))
	if ((weeks%2)+2)%2 == 0 {
		return 1
	}
	return 2
}

// mondayOf returns the Monday of the ISO week containing the day.
func mondayOf(day time.Time) time.Time {
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7
	}
	return day.AddDate(0, 0, -(wd - 1))
}

// =============================================================================
// RDO SHIFTING
// =============================================================================

// collides reports whether a designated RDO on the given day must shift,
// and why. An RDO collides when its day is a holiday or a weekend.
func (r *Resolver) collides(day time.Time, holidays []Holiday) (ShiftReason, bool) {
	if _, ok := HolidayOn(day, holidays); ok {
		return ShiftHoliday, true
	}
	if IsWeekend(day) {
		return ShiftWeekend, true
	}
	return ShiftNone, false
}

// shiftTarget walks forward from a collided RDO to the next genuine working
// day within the window. Returns false when no working day exists in range.
func (r *Resolver) shiftTarget(origin time.Time, ws *WorkSchedule, holidays []Holiday) (time.Time, bool) {
	for i := 1; i <= r.cfg.ShiftWindowDays; i++ {
		candidate := origin.AddDate(0, 0, i)
		if r.isGenuineWorkingDay(candidate, ws, holidays) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// shiftedOnto reports whether some earlier day's RDO shifted onto this day.
func (r *Resolver) shiftedOnto(day time.Time, ws *WorkSchedule, holidays []Holiday) (time.Time, ShiftReason, bool) {
	for i := 1; i <= r.cfg.ShiftWindowDays; i++ {
		origin := day.AddDate(0, 0, -i)
		if !ws.IsRDO(r.FortnightWeek(origin), origin.Weekday()) {
			continue
		}
		reason, collided := r.collides(origin, holidays)
		if !collided {
			continue
		}
		if target, ok := r.shiftTarget(origin, ws, holidays); ok && SameDay(target, day) {
			return origin, reason, true
		}
	}
	return time.Time{}, ShiftNone, false
}

// isGenuineWorkingDay is the shift destination test: a rostered slot for
// the day's week/weekday, not an RDO, not a holiday, not a weekend.
func (r *Resolver) isGenuineWorkingDay(day time.Time, ws *WorkSchedule, holidays []Holiday) bool {
	if IsWeekend(day) {
		return false
	}
	if _, ok := HolidayOn(day, holidays); ok {
		return false
	}
	week := r.FortnightWeek(day)
	if ws.IsRDO(week, day.Weekday()) {
		return false
	}
	_, ok := ws.Slot(week, day.Weekday())
	return ok
}
