/*
throttle.go - Calculation admission control (circuit breaker)

PURPOSE:
  Many independent triggers - entry edits, manual recalculation, tab
  refocus - can all ask for the same recomputation. The throttle admits at
  most one in-flight calculation per (user, month), enforces a minimum
  interval between successive calculations for the same key, and caps
  total calculations across all keys in a rolling window.

STATE MACHINE PER KEY:
  idle -> in-progress -> idle. A stuck in-progress entry (caller crash)
  self-heals: Cleanup drops in-flight marks older than the retention
  window, and the store's lock lease bounds the damage meanwhile.

NOT AN ERROR:
  A refusal here is a deliberate no-op. The orchestrator surfaces it as
  ErrThrottled so callers do not retry in a tight loop.

SEE ALSO:
  - engine.go:    Calls Start/Finish around every calculation
  - api/scheduler.go analogue: periodic Cleanup
*/
package engine

import (
	"sync"
	"time"
)

// =============================================================================
// CONFIG
// =============================================================================

type ThrottleConfig struct {
	// MinInterval is the minimum time between successive calculations for
	// the same (user, month) key.
	MinInterval time.Duration

	// WindowLimit caps calculations across all keys per rolling Window.
	WindowLimit int
	Window      time.Duration

	// Retention bounds how long finished-attempt and stale in-flight
	// state is kept before Cleanup drops it.
	Retention time.Duration
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MinInterval: 2 * time.Second,
		WindowLimit: 30,
		Window:      60 * time.Second,
		Retention:   5 * time.Minute,
	}
}

// =============================================================================
// THROTTLE
// =============================================================================

type calcKey struct {
	User  UserID
	Month MonthYear
}

// Throttle is an explicitly constructed instance, not process-wide state;
// tests create isolated throttles with their own clocks.
type Throttle struct {
	mu  sync.Mutex
	cfg ThrottleConfig

	inFlight map[calcKey]time.Time // key -> started at
	lastRun  map[calcKey]time.Time // key -> last admitted attempt
	window   []time.Time           // admitted attempts across all keys
	disabled bool

	now func() time.Time
}

func NewThrottle(cfg ThrottleConfig) *Throttle {
	def := DefaultThrottleConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.WindowLimit <= 0 {
		cfg.WindowLimit = def.WindowLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Throttle{
		cfg:      cfg,
		inFlight: make(map[calcKey]time.Time),
		lastRun:  make(map[calcKey]time.Time),
		now:      time.Now,
	}
}

// CanCalculate reports whether a calculation for the key would currently
// be admitted. Read-only; admission itself goes through Start.
func (t *Throttle) CanCalculate(userID UserID, month MonthYear) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.admitLocked(calcKey{userID, month}, false)
	return err == nil
}

// Start atomically checks admission and marks the key in-flight.
// Returns a ThrottledError (unwrapping to ErrThrottled or
// ErrCalculationsDisabled) when refused.
func (t *Throttle) Start(userID UserID, month MonthYear) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.admitLocked(calcKey{userID, month}, true)
	return err
}

// Finish returns the key to idle.
func (t *Throttle) Finish(userID UserID, month MonthYear) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, calcKey{userID, month})
}

// DisableAll engages the emergency kill-switch: every admission is refused
// until ResumeAll.
func (t *Throttle) DisableAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = true
}

// ResumeAll releases the kill-switch.
func (t *Throttle) ResumeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = false
}

// Cleanup drops recent-attempt records and stale in-flight marks older
// than the retention window. Returns how many entries were removed.
func (t *Throttle) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.cfg.Retention)
	removed := 0
	for k, at := range t.lastRun {
		if at.Before(cutoff) {
			delete(t.lastRun, k)
			removed++
		}
	}
	// Self-heal keys stuck in-progress by a crashed caller.
	for k, at := range t.inFlight {
		if at.Before(cutoff) {
			delete(t.inFlight, k)
			removed++
		}
	}
	t.trimWindowLocked(t.now())
	return removed
}

// =============================================================================
// ADMISSION
// =============================================================================

func (t *Throttle) admitLocked(k calcKey, commit bool) (time.Time, error) {
	now := t.now()

	if t.disabled {
		return now, &ThrottledError{UserID: k.User, MonthYear: k.Month, Reason: "disabled"}
	}
	if _, busy := t.inFlight[k]; busy {
		return now, &ThrottledError{UserID: k.User, MonthYear: k.Month, Reason: "in-flight"}
	}
	if last, ok := t.lastRun[k]; ok && now.Sub(last) < t.cfg.MinInterval {
		return now, &ThrottledError{
			UserID: k.User, MonthYear: k.Month,
			Reason:  "min-interval",
			RetryAt: last.Add(t.cfg.MinInterval),
		}
	}

	t.trimWindowLocked(now)
	if len(t.window) >= t.cfg.WindowLimit {
		return now, &ThrottledError{
			UserID: k.User, MonthYear: k.Month,
			Reason:  "rate-ceiling",
			RetryAt: t.window[0].Add(t.cfg.Window),
		}
	}

	if commit {
		t.inFlight[k] = now
		t.lastRun[k] = now
		t.window = append(t.window, now)
	}
	return now, nil
}

func (t *Throttle) trimWindowLocked(now time.Time) {
	cutoff := now.Add(-t.cfg.Window)
	i := 0
	for i < len(t.window) && t.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		t.window = append([]time.Time(nil), t.window[i:]...)
	}
}
