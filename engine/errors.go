/*
errors.go - Centralized error types for the TOIL engine

PURPOSE:
  All engine error types in one place. Callers classify with errors.Is;
  structured errors carry context and unwrap to the sentinels.

ERROR CATEGORIES:
  1. Input errors    - missing schedule/user/date; calculation short-circuits
  2. Admission errors - throttle rejection; a deliberate no-op, not a failure
  3. Storage errors   - lock contention (retryable) and corruption (self-healed)

SEE ALSO:
  - throttle.go: Returns ErrThrottled via the orchestrator
  - store/shared: Returns ErrLockUnavailable and CorruptStateError
*/
package engine

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrThrottled is returned when the calculation throttle refuses
	// admission. This is a deliberate no-op: the prior summary stands and
	// callers must not retry in a tight loop.
	ErrThrottled = errors.New("calculation throttled")

	// ErrCalculationsDisabled is returned while the emergency kill-switch
	// is engaged.
	ErrCalculationsDisabled = errors.New("calculations disabled")

	// ErrMissingSchedule is returned when no work schedule is available
	// for the user being calculated.
	ErrMissingSchedule = errors.New("missing work schedule")

	// ErrMissingInput is returned when the user or date is absent.
	ErrMissingInput = errors.New("missing user or date")

	// ErrLockUnavailable is returned when the store's merge lock cannot be
	// acquired within the retry budget. Retryable.
	ErrLockUnavailable = errors.New("store lock unavailable")

	// ErrCorruptState is the sentinel under CorruptStateError.
	ErrCorruptState = errors.New("corrupt persisted state")

	// ErrCalculationFailed wraps unexpected calculator failures.
	ErrCalculationFailed = errors.New("calculation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ThrottledError reports why admission was refused.
type ThrottledError struct {
	UserID    UserID
	MonthYear MonthYear
	Reason    string // "in-flight", "min-interval", "rate-ceiling", "disabled"
	RetryAt   time.Time
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("calculation throttled for %s/%s: %s", e.UserID, e.MonthYear, e.Reason)
}

func (e *ThrottledError) Unwrap() error {
	if e.Reason == "disabled" {
		return ErrCalculationsDisabled
	}
	return ErrThrottled
}

// CorruptStateError reports a persisted collection that failed to parse
// and was reset. Self-healing: the offending key is already empty by the
// time this error is observed, so it is logged, never fatal.
type CorruptStateError struct {
	Collection string
	Path       string
	Cause      error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt %s at %s (reset to empty): %v", e.Collection, e.Path, e.Cause)
}

func (e *CorruptStateError) Unwrap() error { return ErrCorruptState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsThrottled reports whether the error is a throttle rejection - a no-op
// signal, distinct from failure.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrCalculationsDisabled)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockUnavailable)
}

// IsClientError returns true if the error is due to invalid input rather
// than an engine failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingSchedule) || errors.Is(err, ErrMissingInput)
}
