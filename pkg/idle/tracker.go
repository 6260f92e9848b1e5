// Package idle tracks cumulative stationary time for a tracking session.
//
// The tracker is a two-state machine (active/idle). While idle, each update
// flushes the elapsed time since the previous update into the counters and
// restarts the measurement, so repeated calls accumulate incrementally
// without double counting.
package idle

import "time"

// Snapshot is a read-only view of the idle counters, attached to every
// update event the engine emits.
type Snapshot struct {
	TotalIdle        time.Duration `json:"total_idle"`
	OutsideVisitIdle time.Duration `json:"outside_visit_idle"`
	Idle             bool          `json:"idle"`
	IdleSince        time.Time     `json:"idle_since,omitempty"`
}

// Tracker accumulates idle time below the movement threshold. Counters are
// monotonically non-decreasing for the lifetime of a session; only Reset
// clears them.
type Tracker struct {
	idle      bool
	idleSince time.Time
	lastFlush time.Time

	totalIdle        time.Duration
	outsideVisitIdle time.Duration

	// outsideVisit is true while no semantic visit is active; the
	// outside-visit counter accrues only then.
	outsideVisit bool
}

// NewTracker creates a tracker in the active state with outside-visit
// accrual enabled (no visit active at session start).
func NewTracker() *Tracker {
	return &Tracker{outsideVisit: true}
}

// Restore seeds the counters from persisted values. Intended for session
// start only, before any update.
func (t *Tracker) Restore(totalIdle, outsideVisitIdle time.Duration) {
	if totalIdle > 0 {
		t.totalIdle = totalIdle
	}
	if outsideVisitIdle > 0 {
		t.outsideVisitIdle = outsideVisitIdle
	}
}

// Update advances the state machine with the below-threshold flag for the
// current step. It is called once per ingest and once per heartbeat tick.
func (t *Tracker) Update(belowThreshold bool, now time.Time) {
	if belowThreshold {
		if !t.idle {
			t.idle = true
			t.idleSince = now
			t.lastFlush = now
			return
		}
		t.flush(now)
		return
	}

	if t.idle {
		t.flush(now)
		t.idle = false
		t.idleSince = time.Time{}
		t.lastFlush = time.Time{}
	}
}

// flush adds the elapsed time since the last flush to the counters and
// restarts the measurement window.
func (t *Tracker) flush(now time.Time) {
	elapsed := now.Sub(t.lastFlush)
	if elapsed <= 0 {
		return
	}
	t.totalIdle += elapsed
	if t.outsideVisit {
		t.outsideVisitIdle += elapsed
	}
	t.lastFlush = now
}

// SetOutsideVisitTracking toggles outside-visit accrual. A pending idle
// interval is flushed first so time before the toggle is attributed to the
// state it was accrued in.
func (t *Tracker) SetOutsideVisitTracking(enabled bool, now time.Time) {
	if t.idle {
		t.flush(now)
	}
	t.outsideVisit = enabled
}

// Flush finalizes a pending idle interval without changing state. Called on
// session teardown so no idle duration is lost at the boundary.
func (t *Tracker) Flush(now time.Time) {
	if t.idle {
		t.flush(now)
	}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		TotalIdle:        t.totalIdle,
		OutsideVisitIdle: t.outsideVisitIdle,
		Idle:             t.idle,
		IdleSince:        t.idleSince,
	}
}

// Idle reports whether the subject is currently idle.
func (t *Tracker) Idle() bool {
	return t.idle
}

// OutsideVisitTracking reports whether outside-visit accrual is enabled.
func (t *Tracker) OutsideVisitTracking() bool {
	return t.outsideVisit
}

// Reset clears all counters and state for a new session.
func (t *Tracker) Reset() {
	*t = Tracker{outsideVisit: true}
}
