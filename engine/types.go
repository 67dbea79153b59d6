/*
Package engine is the TOIL accrual and synchronization core.

PURPOSE:
  Time Off In Lieu (TOIL) is compensatory leave accrued from hours worked
  beyond a rotating roster. This package holds the engine that turns raw
  time entries into durable accrual records, aggregates them into monthly
  summaries, throttles redundant recomputation, and fans summary changes
  out to every interested consumer - in-process or in another context
  sharing the same store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours:       An hour quantity backed by decimal.Decimal
  - Record:      An immutable TOIL accrual unit for one user on one day
  - UsageRecord: A TOIL consumption event
  - Summary:     The derived accrued/used/remaining projection for a month
  - TimeEntry:   Read-only input owned by the external time-entry store

DESIGN PRINCIPLES:
  1. Immutability: accrual records are voided and superseded, never edited
  2. Precision: decimal arithmetic, no floating-point drift
  3. Derivation: summaries are projections, recomputed from records,
     never stored as state of their own

SEE ALSO:
  - store.go:    Persistence and collaborator interfaces
  - engine.go:   The orchestration entry point
  - summary.go:  Monthly aggregation with its read cache
  - throttle.go: Calculation admission control
  - events.go:   Publish/subscribe fan-out
*/
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Decimal-backed hour quantity
// =============================================================================

type Hours struct {
	Value decimal.Decimal
}

func NewHours(v float64) Hours {
	return Hours{Value: decimal.NewFromFloat(v)}
}

func ZeroHours() Hours { return Hours{Value: decimal.Zero} }

func (h Hours) Add(o Hours) Hours    { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) Sub(o Hours) Hours    { return Hours{Value: h.Value.Sub(o.Value)} }
func (h Hours) IsPositive() bool     { return h.Value.IsPositive() }
func (h Hours) IsNegative() bool     { return h.Value.IsNegative() }
func (h Hours) IsZero() bool         { return h.Value.IsZero() }
func (h Hours) Equal(o Hours) bool   { return h.Value.Equal(o.Value) }
func (h Hours) Float64() float64     { f, _ := h.Value.Float64(); return f }
func (h Hours) String() string       { return h.Value.String() }

// GreaterThan reports h > o.
func (h Hours) GreaterThan(o Hours) bool { return h.Value.GreaterThan(o.Value) }

// RoundQuarter rounds to the nearest quarter hour (round(h*4)/4).
func (h Hours) RoundQuarter() Hours {
	four := decimal.NewFromInt(4)
	return Hours{Value: h.Value.Mul(four).Round(0).Div(four)}
}

// ClampZero returns max(0, h).
func (h Hours) ClampZero() Hours {
	if h.IsNegative() {
		return ZeroHours()
	}
	return h
}

func (h Hours) MarshalJSON() ([]byte, error)  { return h.Value.MarshalJSON() }
func (h *Hours) UnmarshalJSON(b []byte) error { return h.Value.UnmarshalJSON(b) }

// ValidEntryHours is the sanity bound on raw entry hours: finite, not NaN,
// non-negative, and at most 24 for a single day.
func ValidEntryHours(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 24
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type RecordID string

// MonthYear identifies a calendar month, formatted "2006-01".
type MonthYear string

func MonthYearOf(t time.Time) MonthYear {
	return MonthYear(t.Format("2006-01"))
}

// Period returns the [first, last] days of the month, UTC midnight.
func (m MonthYear) Period() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", string(m))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q: %w", m, err)
	}
	return start, start.AddDate(0, 1, -1), nil
}

func (m MonthYear) Valid() bool {
	_, err := time.Parse("2006-01", string(m))
	return err == nil
}

// =============================================================================
// TOIL RECORD - One day's accrual for one user
// =============================================================================

type RecordStatus string

const (
	StatusActive RecordStatus = "active"
	StatusVoided RecordStatus = "voided"
)

// Record is the accrual unit: the TOIL hours one user earned on one day.
// Immutable once active; corrections produce a new record plus a void.
type Record struct {
	ID        RecordID     `json:"id"`
	UserID    UserID       `json:"userId"`
	Date      time.Time    `json:"date"`
	Hours     Hours        `json:"hours"`
	MonthYear MonthYear    `json:"monthYear"`
	EntryID   string       `json:"entryId"`
	Status    RecordStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// DedupKey is the identity under which concurrent triggers may race to
// produce the same record. VoidDuplicates keeps one active record per key.
func (r Record) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s", r.UserID, r.Date.UTC().Format("2006-01-02"), r.EntryID)
}

// UsageRecord is a TOIL consumption event tied to a TOIL-tagged time entry.
type UsageRecord struct {
	ID        RecordID  `json:"id"`
	UserID    UserID    `json:"userId"`
	Date      time.Time `json:"date"`
	Hours     Hours     `json:"hours"`
	MonthYear MonthYear `json:"monthYear"`
	EntryID   string    `json:"entryId"`
	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// SUMMARY - Derived monthly projection, never stored
// =============================================================================

// Summary is the per-user per-month TOIL balance.
// Invariant: Remaining == max(0, Accrued - Used).
type Summary struct {
	UserID     UserID    `json:"userId"`
	MonthYear  MonthYear `json:"monthYear"`
	Accrued    Hours     `json:"accrued"`
	Used       Hours     `json:"used"`
	Remaining  Hours     `json:"remaining"`
	ComputedAt time.Time `json:"computedAt"`
}

// =============================================================================
// TIME ENTRY - Read-only input from the external time-entry store
// =============================================================================

// TOILJobNumber tags synthetic entries that represent TOIL consumption.
const TOILJobNumber = "TOIL"

type TimeEntry struct {
	ID          string    `json:"id"`
	UserID      UserID    `json:"userId"`
	Date        time.Time `json:"date"`
	Hours       float64   `json:"hours"`
	StartTime   string    `json:"startTime,omitempty"`
	EndTime     string    `json:"endTime,omitempty"`
	JobNumber   string    `json:"jobNumber,omitempty"`
	Description string    `json:"description"`
	Project     string    `json:"project"`
	Synthetic   bool      `json:"synthetic"`
}

// IsTOILConsumption reports whether the entry records TOIL being used
// rather than hours being worked. Such entries are excluded from accrual
// input to avoid circular double-counting.
func (e TimeEntry) IsTOILConsumption() bool {
	return e.Synthetic && e.JobNumber == TOILJobNumber
}
