/*
engine.go - Orchestration entry point

PURPOSE:
  Combines the calculator, store, throttle, aggregator, and event
  synchronizer into the single flow every trigger goes through:

    trigger -> throttle admission -> calculate -> store (merge) ->
    dedup -> summary recompute -> broadcast

ERROR BOUNDARY:
  Calculation-layer failures are converted into calculation-error events
  here and returned as wrapped errors; nothing ever panics across this
  boundary. A throttle refusal is a distinct no-op (ErrThrottled) - the
  prior summary stands and callers must not treat it as failure.

CACHE COHERENCE:
  The engine subscribes to its own bus: remote summary-updated events
  invalidate the matching local cache entry, and schedule-changed events
  (local or remote) clear the cache wholesale.

SEE ALSO:
  - accrual:   The Calculator implementation
  - recovery.go: Reset-after-repeated-failures facility
*/
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/warp/toil-engine/schedule"
)

// =============================================================================
// CALCULATOR BOUNDARY
// =============================================================================

// CalcInput is the full input for one day's accrual calculation. A single
// typed struct - no positional legacy forms.
type CalcInput struct {
	UserID   UserID
	Date     time.Time
	Entries  []TimeEntry
	Schedule *schedule.WorkSchedule
	Holidays []schedule.Holiday
}

// Calculator computes one day's TOIL record. A nil record with nil error
// means "no accrual" - an expected outcome, not a failure.
type Calculator interface {
	Calculate(ctx context.Context, in CalcInput) (*Record, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// Config wires an engine. Store and Calculator are required; everything
// else has defaults. Sources are optional collaborators used by
// Recalculate.
type Config struct {
	Store      RecordStore
	Calculator Calculator
	Notifier   ChangeNotifier

	Throttle ThrottleConfig
	Cache    CacheConfig
	Recovery RecoveryConfig

	Entries   EntrySource
	Schedules ScheduleSource
	Holidays  HolidaySource
}

type Engine struct {
	store     RecordStore
	calc      Calculator
	throttle  *Throttle
	events    *Synchronizer
	summaries *Aggregator
	recovery  *RecoveryManager

	entries   EntrySource
	schedules ScheduleSource
	holidays  HolidaySource

	unsubscribe []func()
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if cfg.Calculator == nil {
		return nil, fmt.Errorf("engine: calculator is required")
	}

	e := &Engine{
		store:     cfg.Store,
		calc:      cfg.Calculator,
		throttle:  NewThrottle(cfg.Throttle),
		events:    NewSynchronizer(cfg.Notifier),
		summaries: NewAggregator(cfg.Store, cfg.Cache),
		entries:   cfg.Entries,
		schedules: cfg.Schedules,
		holidays:  cfg.Holidays,
	}
	e.recovery = NewRecoveryManager(cfg.Recovery, func() {
		e.summaries.Clear()
		e.throttle.ResumeAll()
	})

	// Cache coherence with other contexts sharing the store. Events this
	// engine published itself are skipped: the local cache is already fresh.
	e.unsubscribe = append(e.unsubscribe,
		e.events.Subscribe(TopicSummaryUpdated, func(ev Event) {
			if ev.Origin == e.events.Origin() {
				return
			}
			e.summaries.Invalidate(ev.UserID, ev.MonthYear)
		}),
		e.events.Subscribe(TopicScheduleChanged, func(Event) {
			e.summaries.Clear()
		}),
	)
	return e, nil
}

// =============================================================================
// CALCULATION FLOW
// =============================================================================

// CalculateAndStore runs the full accrual flow for one user-day.
// Returns the refreshed monthly summary, or nil with:
//   - ErrMissingInput / ErrMissingSchedule for short-circuited input errors
//   - ErrThrottled for a refused admission (deliberate no-op)
//   - a wrapped error, after publishing calculation-error, for real failures
func (e *Engine) CalculateAndStore(ctx context.Context, in CalcInput) (*Summary, error) {
	if in.UserID == "" || in.Date.IsZero() {
		return nil, ErrMissingInput
	}
	if in.Schedule == nil {
		return nil, ErrMissingSchedule
	}

	month := MonthYearOf(in.Date)
	if err := e.throttle.Start(in.UserID, month); err != nil {
		return nil, err
	}
	defer e.throttle.Finish(in.UserID, month)

	e.events.Publish(ctx, Event{
		Topic:     TopicCalculationStarted,
		UserID:    in.UserID,
		MonthYear: month,
	})

	rec, err := e.calc.Calculate(ctx, in)
	if err != nil {
		return nil, e.fail(ctx, in.UserID, month, fmt.Errorf("%w: %v", ErrCalculationFailed, err))
	}

	if rec != nil {
		if err := e.store.Append(ctx, *rec); err != nil {
			return nil, e.fail(ctx, in.UserID, month, fmt.Errorf("append record: %w", err))
		}
		if _, err := e.store.VoidDuplicates(ctx, in.UserID); err != nil {
			return nil, e.fail(ctx, in.UserID, month, fmt.Errorf("void duplicates: %w", err))
		}
	}

	e.summaries.Invalidate(in.UserID, month)
	s, err := e.summaries.Recompute(ctx, in.UserID, month)
	if err != nil {
		return nil, e.fail(ctx, in.UserID, month, fmt.Errorf("recompute summary: %w", err))
	}

	e.events.Publish(ctx, Event{
		Topic:     TopicSummaryUpdated,
		UserID:    in.UserID,
		MonthYear: month,
		Summary:   &s,
	})
	e.recovery.RecordSuccess()
	return &s, nil
}

// Recalculate pulls the day's inputs from the configured collaborator
// sources and runs CalculateAndStore.
func (e *Engine) Recalculate(ctx context.Context, userID UserID, date time.Time) (*Summary, error) {
	if e.entries == nil || e.schedules == nil {
		return nil, fmt.Errorf("engine: collaborator sources not configured")
	}

	ws, err := e.schedules.UserSchedule(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	entries, err := e.entries.DayEntries(ctx, date, userID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	var holidays []schedule.Holiday
	if e.holidays != nil {
		if holidays, err = e.holidays.Holidays(ctx); err != nil {
			return nil, fmt.Errorf("load holidays: %w", err)
		}
	}

	return e.CalculateAndStore(ctx, CalcInput{
		UserID:   userID,
		Date:     date,
		Entries:  entries,
		Schedule: ws,
		Holidays: holidays,
	})
}

// fail publishes a calculation-error event and feeds the recovery manager.
// The error is returned wrapped; it never panics into trigger code.
func (e *Engine) fail(ctx context.Context, userID UserID, month MonthYear, err error) error {
	log.Printf("[Engine] calculation failed for %s/%s: %v", userID, month, err)
	e.events.Publish(ctx, Event{
		Topic:     TopicCalculationError,
		UserID:    userID,
		MonthYear: month,
		Error:     err.Error(),
	})
	e.recovery.RecordFailure()
	return err
}

// =============================================================================
// READ SIDE AND USAGE
// =============================================================================

// Summary returns the monthly summary, cached or recomputed.
func (e *Engine) Summary(ctx context.Context, userID UserID, month MonthYear) (Summary, error) {
	return e.summaries.Summary(ctx, userID, month)
}

// RecordUsage appends a TOIL consumption event and refreshes the summary.
func (e *Engine) RecordUsage(ctx context.Context, usage UsageRecord) (*Summary, error) {
	if usage.UserID == "" || usage.Date.IsZero() {
		return nil, ErrMissingInput
	}
	if usage.ID == "" {
		usage.ID = RecordID(uuid.NewString())
	}
	if usage.MonthYear == "" {
		usage.MonthYear = MonthYearOf(usage.Date)
	}
	if err := e.store.AppendUsage(ctx, usage); err != nil {
		return nil, fmt.Errorf("append usage: %w", err)
	}

	e.summaries.Invalidate(usage.UserID, usage.MonthYear)
	s, err := e.summaries.Recompute(ctx, usage.UserID, usage.MonthYear)
	if err != nil {
		return nil, fmt.Errorf("recompute summary: %w", err)
	}
	e.events.Publish(ctx, Event{
		Topic:     TopicSummaryUpdated,
		UserID:    usage.UserID,
		MonthYear: usage.MonthYear,
		Summary:   &s,
	})
	return &s, nil
}

// NotifyScheduleChanged clears every cached summary and broadcasts the
// change so other contexts do the same.
func (e *Engine) NotifyScheduleChanged(ctx context.Context, userID UserID) {
	e.summaries.Clear()
	e.events.Publish(ctx, Event{
		Topic:  TopicScheduleChanged,
		UserID: userID,
	})
}

// ClearCache forces full cache invalidation. Used after bulk data fixes.
func (e *Engine) ClearCache() {
	e.summaries.Clear()
}

// Subscribe registers an event handler; see Synchronizer.Subscribe.
func (e *Engine) Subscribe(topic Topic, h Handler) func() {
	return e.events.Subscribe(topic, h)
}

// Throttle exposes the admission controller for maintenance and the
// emergency kill-switch.
func (e *Engine) Throttle() *Throttle { return e.throttle }

// Store exposes the underlying record store for read paths and
// maintenance operations that bypass calculation.
func (e *Engine) Store() RecordStore { return e.store }

// Close detaches the engine from its event transport.
func (e *Engine) Close() {
	for _, u := range e.unsubscribe {
		u()
	}
	e.events.Close()
}
