/*
Package accrual computes the TOIL generated by one user-day.

PURPOSE:
  Given a day's time entries and the resolved roster status, decides how
  many hours count as Time Off In Lieu:

    holiday / weekend / RDO:  every worked hour is TOIL (nothing was
                              rostered, so nothing offsets)
    normal working day:       max(0, worked - rostered)

  Results round to the nearest quarter hour. Zero or negative results
  produce no record - an expected outcome, not an error.

FAILURE SEMANTICS:
  Triggers run on every entry mutation, so nothing here may panic across
  the boundary. Unexpected panics are recovered, logged, and treated as
  "no accrual".

SEE ALSO:
  - schedule: Day resolution, including RDO shifting
  - engine:   Record shape and the orchestration around this calculator
*/
package accrual

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/toil-engine/engine"
	"github.com/warp/toil-engine/schedule"
)

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	// SpecialDayRate scales TOIL on holidays/weekends/RDOs. Held at 1.0
	// (all worked hours) pending product sign-off on a cap.
	SpecialDayRate decimal.Decimal

	// MaxDailyHours is the sanity ceiling on a single day's TOIL.
	MaxDailyHours decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		SpecialDayRate: decimal.NewFromInt(1),
		MaxDailyHours:  decimal.NewFromInt(24),
	}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator implements engine.Calculator against a schedule resolver.
type Calculator struct {
	resolver *schedule.Resolver
	cfg      Config
	now      func() time.Time
}

func New(resolver *schedule.Resolver, cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.SpecialDayRate.IsZero() {
		cfg.SpecialDayRate = def.SpecialDayRate
	}
	if cfg.MaxDailyHours.IsZero() {
		cfg.MaxDailyHours = def.MaxDailyHours
	}
	return &Calculator{resolver: resolver, cfg: cfg, now: time.Now}
}

// Calculate returns the day's TOIL record, or nil when the day yields no
// accrual. Only a missing schedule is an error; everything else that
// cannot accrue resolves to (nil, nil).
func (c *Calculator) Calculate(_ context.Context, in engine.CalcInput) (rec *engine.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Accrual] recovered calculating %s on %s: %v",
				in.UserID, in.Date.Format("2006-01-02"), r)
			rec, err = nil, nil
		}
	}()

	if in.Schedule == nil {
		return nil, engine.ErrMissingSchedule
	}

	selected := selectEntries(in.Entries, in.Date)
	if len(selected) == 0 {
		return nil, nil
	}
	for _, e := range selected {
		if !engine.ValidEntryHours(e.Hours) {
			log.Printf("[Accrual] rejecting %s on %s: entry %s has invalid hours %v",
				in.UserID, in.Date.Format("2006-01-02"), e.ID, e.Hours)
			return nil, nil
		}
	}

	res := c.resolver.Resolve(in.Date, in.Schedule, in.Holidays)

	total := decimal.Zero
	for _, e := range selected {
		total = total.Add(decimal.NewFromFloat(e.Hours))
	}

	var toil decimal.Decimal
	if res.IsHoliday || res.IsWeekend || res.IsRDO {
		toil = total.Mul(c.cfg.SpecialDayRate)
	} else {
		toil = total.Sub(res.ScheduledHours)
	}

	hours := engine.Hours{Value: toil}.ClampZero().RoundQuarter()
	if !hours.IsPositive() {
		return nil, nil
	}
	if hours.Value.GreaterThan(c.cfg.MaxDailyHours) {
		log.Printf("[Accrual] rejecting %s on %s: %s hours exceeds daily bound",
			in.UserID, in.Date.Format("2006-01-02"), hours)
		return nil, nil
	}

	day := schedule.Day(in.Date)
	return &engine.Record{
		ID:        engine.RecordID(uuid.NewString()),
		UserID:    in.UserID,
		Date:      day,
		Hours:     hours,
		MonthYear: engine.MonthYearOf(day),
		EntryID:   largestEntry(selected).ID,
		Status:    engine.StatusActive,
		CreatedAt: c.now().UTC(),
	}, nil
}

// selectEntries keeps entries on the target day, excluding synthetic TOIL
// consumption so accrual input never double-counts usage.
func selectEntries(entries []engine.TimeEntry, date time.Time) []engine.TimeEntry {
	var out []engine.TimeEntry
	for _, e := range entries {
		if !schedule.SameDay(e.Date, date) {
			continue
		}
		if e.IsTOILConsumption() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// largestEntry picks the entry with the most hours as the record's
// canonical source for traceability.
func largestEntry(entries []engine.TimeEntry) engine.TimeEntry {
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Hours > best.Hours {
			best = e
		}
	}
	return best
}
