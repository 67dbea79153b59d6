package accrual_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/toil-engine/accrual"
	"github.com/warp/toil-engine/engine"
	"github.com/warp/toil-engine/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestCalculator() *accrual.Calculator {
	resolver := schedule.NewResolver(schedule.DefaultConfig())
	return accrual.New(resolver, accrual.DefaultConfig())
}

// monFriSchedule rosters Mon-Fri 8h in both fortnight weeks, with Monday
// of week 2 designated as the RDO.
func monFriSchedule() *schedule.WorkSchedule {
	slot := schedule.DaySlot{
		StartTime: "08:00",
		EndTime:   "16:30",
		Breaks:    schedule.Breaks{LunchMinutes: 30},
	}
	days := map[time.Weekday]schedule.DaySlot{
		time.Monday: slot, time.Tuesday: slot, time.Wednesday: slot,
		time.Thursday: slot, time.Friday: slot,
	}
	return &schedule.WorkSchedule{
		ID:   "mon-fri",
		Name: "Mon-Fri fortnight",
		Weeks: map[int]schedule.WeekPattern{
			1: {Days: days, RDODays: map[time.Weekday]bool{}},
			2: {Days: days, RDODays: map[time.Weekday]bool{time.Monday: true}},
		},
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func entry(id string, day time.Time, hours float64) engine.TimeEntry {
	return engine.TimeEntry{ID: id, Date: day, Hours: hours}
}

func calcInput(day time.Time, entries ...engine.TimeEntry) engine.CalcInput {
	return engine.CalcInput{
		UserID:   "user-1",
		Date:     day,
		Entries:  entries,
		Schedule: monFriSchedule(),
	}
}

// =============================================================================
// WORKING DAY: EXCESS OVER ROSTER
// =============================================================================

func TestCalculate_ExcessOverRosteredHours(t *testing.T) {
	// GIVEN: an 8h Wednesday with 10h worked
	// WHEN:  calculating the day
	// THEN:  2h of TOIL accrues
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)

	rec, err := calc.Calculate(context.Background(), calcInput(wed, entry("e1", wed, 10)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromInt(2)), "got %s", rec.Hours)
	assert.Equal(t, engine.StatusActive, rec.Status)
	assert.Equal(t, engine.MonthYear("2024-01"), rec.MonthYear)
}

func TestCalculate_ExactRosterYieldsNothing(t *testing.T) {
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)

	rec, err := calc.Calculate(context.Background(), calcInput(wed, entry("e1", wed, 8)))
	require.NoError(t, err)
	assert.Nil(t, rec, "working exactly the roster accrues nothing")
}

func TestCalculate_UnderRosterYieldsNothing(t *testing.T) {
	// Deficits never produce negative TOIL.
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)

	rec, err := calc.Calculate(context.Background(), calcInput(wed, entry("e1", wed, 5)))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCalculate_MultipleEntriesSummed(t *testing.T) {
	// 6h + 4h on an 8h day leaves 2h of TOIL, tied to the largest entry.
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)

	rec, err := calc.Calculate(context.Background(),
		calcInput(wed, entry("small", wed, 4), entry("big", wed, 6)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "big", rec.EntryID)
}

// =============================================================================
// SPECIAL DAYS: HOLIDAY / WEEKEND / RDO
// =============================================================================

func TestCalculate_SaturdayAllHoursAccrue(t *testing.T) {
	// GIVEN: 3.25h worked on a Saturday
	// THEN:  all 3.25h accrue; nothing was rostered to offset
	calc := newTestCalculator()
	sat := date(2024, time.January, 6)

	rec, err := calc.Calculate(context.Background(), calcInput(sat, entry("e1", sat, 3.25)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromFloat(3.25)), "got %s", rec.Hours)
}

func TestCalculate_HolidayAllHoursAccrue(t *testing.T) {
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)
	in := calcInput(wed, entry("e1", wed, 4))
	in.Holidays = []schedule.Holiday{{ID: "h1", Date: wed}}

	rec, err := calc.Calculate(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromInt(4)))
}

func TestCalculate_RDOAllHoursAccrue(t *testing.T) {
	// Week-2 Monday is the designated RDO.
	calc := newTestCalculator()
	rdo := date(2024, time.January, 8)

	rec, err := calc.Calculate(context.Background(), calcInput(rdo, entry("e1", rdo, 6)))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromInt(6)))
}

func TestCalculate_HolidayRDOSmallEntryStillAccrues(t *testing.T) {
	// A 1h entry on a day that is both a holiday and the RDO accrues the
	// full hour under the special-day rule, not the excess rule.
	calc := newTestCalculator()
	rdo := date(2024, time.January, 8)
	in := calcInput(rdo, entry("e1", rdo, 1))
	in.Holidays = []schedule.Holiday{{ID: "h1", Date: rdo}}

	rec, err := calc.Calculate(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromInt(1)))
}

// =============================================================================
// ROUNDING AND BOUNDS
// =============================================================================

func TestCalculate_RoundsToNearestQuarterHour(t *testing.T) {
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)

	cases := []struct {
		worked float64
		want   float64
	}{
		{8.1, 0},     // 0.1 rounds down to zero, no record
		{8.2, 0.25},  // 0.2 rounds up
		{8.37, 0.25}, // 0.37 rounds down
		{8.38, 0.5},  // 0.38 rounds up
		{10.13, 2.25},
	}
	for _, tc := range cases {
		rec, err := calc.Calculate(context.Background(), calcInput(wed, entry("e1", wed, tc.worked)))
		require.NoError(t, err)
		if tc.want == 0 {
			assert.Nil(t, rec, "worked %.2f should accrue nothing", tc.worked)
			continue
		}
		require.NotNil(t, rec, "worked %.2f", tc.worked)
		assert.True(t, rec.Hours.Value.Equal(decimal.NewFromFloat(tc.want)),
			"worked %.2f: expected %.2f, got %s", tc.worked, tc.want, rec.Hours)
	}
}

func TestCalculate_InvalidHoursRejected(t *testing.T) {
	calc := newTestCalculator()
	sat := date(2024, time.January, 6)

	for _, hours := range []float64{math.NaN(), math.Inf(1), -1, 25} {
		rec, err := calc.Calculate(context.Background(), calcInput(sat, entry("e1", sat, hours)))
		require.NoError(t, err, "invalid input is a no-op, not an error")
		assert.Nil(t, rec, "hours %v must not accrue", hours)
	}
}

// =============================================================================
// INPUT SELECTION
// =============================================================================

func TestCalculate_IgnoresOtherDays(t *testing.T) {
	calc := newTestCalculator()
	sat := date(2024, time.January, 6)

	rec, err := calc.Calculate(context.Background(),
		calcInput(sat, entry("e1", date(2024, time.January, 5), 10)))
	require.NoError(t, err)
	assert.Nil(t, rec, "entries on other days are out of scope")
}

func TestCalculate_ExcludesTOILConsumption(t *testing.T) {
	// Synthetic TOIL-tagged entries are usage, not worked time; counting
	// them would accrue TOIL from spending TOIL.
	calc := newTestCalculator()
	sat := date(2024, time.January, 6)
	consumption := engine.TimeEntry{
		ID: "toil-1", Date: sat, Hours: 4,
		JobNumber: engine.TOILJobNumber, Synthetic: true,
	}

	rec, err := calc.Calculate(context.Background(), calcInput(sat, consumption))
	require.NoError(t, err)
	assert.Nil(t, rec)

	// A real entry alongside consumption still accrues on its own.
	rec, err = calc.Calculate(context.Background(), calcInput(sat, consumption, entry("e1", sat, 2)))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Hours.Value.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "e1", rec.EntryID)
}

func TestCalculate_MissingSchedule(t *testing.T) {
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)
	in := calcInput(wed, entry("e1", wed, 10))
	in.Schedule = nil

	_, err := calc.Calculate(context.Background(), in)
	assert.ErrorIs(t, err, engine.ErrMissingSchedule)
}

func TestCalculate_NoEntriesNoRecord(t *testing.T) {
	calc := newTestCalculator()
	wed := date(2024, time.January, 3)

	rec, err := calc.Calculate(context.Background(), calcInput(wed))
	require.NoError(t, err)
	assert.Nil(t, rec)
}
