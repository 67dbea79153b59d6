/*
recovery.go - Error-recovery facility

PURPOSE:
  After repeated calculation failures, forces a full reset of derived
  state: caches cleared, throttle kill-switch released. Gated by a
  cooldown and a maximum attempt count so a persistent fault cannot spin
  the engine into a recovery loop.
*/
package engine

import (
	"log"
	"sync"
	"time"
)

type RecoveryConfig struct {
	// FailureThreshold is how many consecutive failures trigger a reset.
	FailureThreshold int

	// Cooldown is the minimum time between resets.
	Cooldown time.Duration

	// MaxAttempts caps resets until a success clears the count.
	MaxAttempts int
}

func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		MaxAttempts:      3,
	}
}

// RecoveryManager counts consecutive failures and runs the reset hook when
// the threshold is crossed.
type RecoveryManager struct {
	mu  sync.Mutex
	cfg RecoveryConfig

	failures    int
	attempts    int
	lastAttempt time.Time

	reset func()
	now   func() time.Time
}

func NewRecoveryManager(cfg RecoveryConfig, reset func()) *RecoveryManager {
	def := DefaultRecoveryConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &RecoveryManager{cfg: cfg, reset: reset, now: time.Now}
}

// RecordFailure notes a failed calculation. Returns true when it ran a
// recovery reset.
func (m *RecoveryManager) RecordFailure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	if m.failures < m.cfg.FailureThreshold {
		return false
	}
	if m.attempts >= m.cfg.MaxAttempts {
		return false
	}
	if !m.lastAttempt.IsZero() && m.now().Sub(m.lastAttempt) < m.cfg.Cooldown {
		return false
	}

	m.attempts++
	m.lastAttempt = m.now()
	m.failures = 0
	log.Printf("[Recovery] resetting derived state (attempt %d/%d)", m.attempts, m.cfg.MaxAttempts)
	if m.reset != nil {
		m.reset()
	}
	return true
}

// RecordSuccess clears the failure streak and the attempt budget.
func (m *RecoveryManager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = 0
	m.attempts = 0
}
