// Package recovery counts consecutive provider failures and schedules
// provider resubscription after a threshold, with a cooldown.
//
// The policy is timer-free: recordError arms a deadline and the host polls
// Due(now), performs the resubscription, and reports the outcome.
package recovery

import "time"

// Config controls the error threshold and recovery cooldown.
type Config struct {
	MaxConsecutiveErrors int           `json:"max_consecutive_errors"`
	RecoveryDelay        time.Duration `json:"recovery_delay"`
	MaxRecoveryAttempts  int           `json:"max_recovery_attempts"`
}

// DefaultConfig returns the default recovery configuration.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveErrors: 5,
		RecoveryDelay:        5 * time.Second,
		MaxRecoveryAttempts:  5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	if c.RecoveryDelay <= 0 {
		c.RecoveryDelay = def.RecoveryDelay
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = def.MaxRecoveryAttempts
	}
	return c
}

// Policy tracks consecutive provider errors for one session.
type Policy struct {
	config Config

	consecutiveErrors int
	lastErrorAt       time.Time

	recoveryPending  bool
	recoveryDeadline time.Time
	recoveryAttempts int
	fatal            bool
}

// NewPolicy creates a recovery policy.
func NewPolicy(config Config) *Policy {
	return &Policy{config: config.withDefaults()}
}

// RecordError registers a provider failure. It returns true when this error
// crossed the threshold and a recovery has been newly scheduled.
func (p *Policy) RecordError(now time.Time) bool {
	if p.fatal {
		return false
	}

	p.consecutiveErrors++
	p.lastErrorAt = now

	if p.consecutiveErrors >= p.config.MaxConsecutiveErrors && !p.recoveryPending {
		p.recoveryPending = true
		p.recoveryDeadline = now.Add(p.config.RecoveryDelay)
		return true
	}
	return false
}

// RecordSuccess resets the consecutive error count. Called implicitly on
// every accepted fix.
func (p *Policy) RecordSuccess() {
	p.consecutiveErrors = 0
	p.recoveryAttempts = 0
	p.recoveryPending = false
}

// Due reports whether a scheduled recovery should run now.
func (p *Policy) Due(now time.Time) bool {
	return p.recoveryPending && !p.fatal && !now.Before(p.recoveryDeadline)
}

// RecordRecoveryResult registers the outcome of a recovery attempt
// (provider resubscription performed by the host). A successful recovery
// clears all counters. After MaxRecoveryAttempts failed attempts the policy
// turns fatal: the engine recommends stopping the session.
func (p *Policy) RecordRecoveryResult(ok bool, now time.Time) {
	p.recoveryPending = false

	if ok {
		p.consecutiveErrors = 0
		p.recoveryAttempts = 0
		return
	}

	p.recoveryAttempts++
	if p.recoveryAttempts >= p.config.MaxRecoveryAttempts {
		p.fatal = true
		return
	}

	// Failed attempt: rearm with a fresh cooldown.
	p.recoveryPending = true
	p.recoveryDeadline = now.Add(p.config.RecoveryDelay)
}

// Fatal reports whether recovery attempts are exhausted. This is the one
// unrecoverable condition; the host decides whether to stop the session.
func (p *Policy) Fatal() bool {
	return p.fatal
}

// ConsecutiveErrors returns the current consecutive error count.
func (p *Policy) ConsecutiveErrors() int {
	return p.consecutiveErrors
}

// LastErrorAt returns the time of the most recent provider error.
func (p *Policy) LastErrorAt() time.Time {
	return p.lastErrorAt
}

// Reset clears all state for a new session.
func (p *Policy) Reset() {
	cfg := p.config
	*p = Policy{config: cfg}
}
