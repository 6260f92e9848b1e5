// Package engine implements the location update decision engine: the
// stateful filter that turns a raw stream of provider fixes into real
// updates, idle-only updates, and adaptive provider settings.
//
// The engine is not internally thread-safe. All state is mutated through a
// serialized stream of Ingest/Tick calls from a single coordination point
// per session; all timing is injected, all I/O happens at the boundary.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldtrack/fieldtrack/pkg"
	"github.com/fieldtrack/fieldtrack/pkg/geomath"
	"github.com/fieldtrack/fieldtrack/pkg/idle"
	"github.com/fieldtrack/fieldtrack/pkg/motion"
	"github.com/fieldtrack/fieldtrack/pkg/power"
	"github.com/fieldtrack/fieldtrack/pkg/recovery"
)

// Engine orchestrates displacement filtering, idle tracking, movement
// classification, adaptive power policy, and error recovery for one
// tracking session.
type Engine struct {
	config     Config
	sessionID  string
	classifier *motion.Classifier
	idle       *idle.Tracker
	policy     *power.Policy
	recovery   *recovery.Policy

	lastAccepted   *pkg.Fix
	lastAcceptedAt time.Time
	// lastRaw is the previous valid raw fix, the reference for per-step
	// displacement. Sentinel fixes never update it.
	lastRaw     *pkg.Fix
	cumulativeM float64
	lastBelow   bool
	interval    time.Duration

	subscribers []func(Transition)
}

// State is a read-only snapshot of the engine for status and metrics.
type State struct {
	SessionID               string            `json:"session_id"`
	LastAcceptedAt          time.Time         `json:"last_accepted_at,omitempty"`
	CumulativeDisplacementM float64           `json:"cumulative_displacement_m"`
	Class                   pkg.MovementClass `json:"class"`
	Interval                time.Duration     `json:"interval"`
	Settings                power.Settings    `json:"settings"`
	BatteryLevel            float64           `json:"battery_level"`
	Idle                    idle.Snapshot     `json:"idle"`
	ConsecutiveErrors       int               `json:"consecutive_errors"`
	Fatal                   bool              `json:"fatal"`
	Prediction              motion.Prediction `json:"prediction"`
	Trend                   motion.Trend      `json:"trend"`
}

// New creates an engine for a fresh tracking session. Two tracked subjects
// need two independent engine instances.
func New(config Config) *Engine {
	config = config.withDefaults()
	e := &Engine{
		config:     config,
		sessionID:  uuid.NewString(),
		classifier: motion.NewClassifier(config.Motion),
		idle:       idle.NewTracker(),
		policy:     power.NewPolicy(config.Power),
		recovery:   recovery.NewPolicy(config.Recovery),
	}
	e.interval = e.classifier.AdaptiveInterval(pkg.MovementUnknown, e.policy.Current().PowerSavingMultiplier)
	return e
}

// SessionID returns the unique id of this tracking session.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Subscribe registers a state-transition subscriber. Subscribers are
// invoked synchronously from the engine's calling goroutine and must not
// call back into the engine.
func (e *Engine) Subscribe(fn func(Transition)) {
	e.subscribers = append(e.subscribers, fn)
}

func (e *Engine) emit(typ TransitionType, now time.Time, data map[string]interface{}) {
	if len(e.subscribers) == 0 {
		return
	}
	tr := Transition{
		ID:        uuid.NewString(),
		SessionID: e.sessionID,
		Timestamp: now,
		Type:      typ,
		Data:      data,
	}
	for _, fn := range e.subscribers {
		fn(tr)
	}
}

// Ingest consumes one raw fix and returns exactly one update event.
func (e *Engine) Ingest(fix pkg.Fix, now time.Time) UpdateEvent {
	// Sentinel/NaN coordinates carry no position: heartbeat the idle
	// tracker with the current flag and emit idle-only. Displacement and
	// movement buffer stay untouched.
	if !fix.Valid() {
		e.idle.Update(e.lastBelow, now)
		e.emit(TransitionSentinelFix, now, map[string]interface{}{
			"provider": fix.Provider,
		})
		return e.idleOnlyEvent(now)
	}

	// First real fix of the session is accepted unconditionally.
	if e.lastAccepted == nil {
		return e.accept(fix, now, true, false, 0, 0)
	}

	// Cumulative displacement is the path length over raw fixes since the
	// last acceptance, not the straight-line distance to it.
	step := geomath.DistanceMeters(e.lastRaw.Latitude, e.lastRaw.Longitude, fix.Latitude, fix.Longitude)
	e.cumulativeM += step
	e.lastRaw = &fix
	cumulative := e.cumulativeM

	forced := now.Sub(e.lastAcceptedAt) >= e.config.ForceUpdateInterval
	below := cumulative < e.config.MinDistanceForUpdateM

	// Idle bookkeeping runs on every ingest, whatever the outcome.
	wasIdle := e.idle.Idle()
	e.idle.Update(below, now)
	e.lastBelow = below
	e.emitIdleTransition(wasIdle, now)

	if below && !forced {
		e.emit(TransitionIdleOnly, now, map[string]interface{}{
			"step_m":          step,
			"cumulative_m":    cumulative,
			"stationary_step": step < e.config.StationaryStepM,
		})
		return e.idleOnlyEvent(now)
	}

	return e.accept(fix, now, false, forced, step, cumulative)
}

// accept emits a real update and makes the fix the new displacement
// reference.
func (e *Engine) accept(fix pkg.Fix, now time.Time, first, forced bool, step, cumulative float64) UpdateEvent {
	e.cumulativeM = 0
	e.lastAccepted = &fix
	e.lastRaw = &fix
	e.lastAcceptedAt = now

	class := e.classifier.Observe(fix)
	settings := e.policy.Current()
	e.interval = e.classifier.AdaptiveInterval(class, settings.PowerSavingMultiplier)

	// Any accepted fix counts as provider success.
	e.recovery.RecordSuccess()

	typ := TransitionAccepted
	switch {
	case first:
		typ = TransitionFirstFix
	case forced:
		typ = TransitionForcedUpdate
	}
	e.emit(typ, now, map[string]interface{}{
		"step_m":       step,
		"cumulative_m": cumulative,
		"class":        string(class),
		"interval_ms":  e.interval.Milliseconds(),
	})

	return UpdateEvent{
		Kind:                    RealUpdate,
		SessionID:               e.sessionID,
		Timestamp:               now,
		Fix:                     &fix,
		IsFirst:                 first,
		Forced:                  forced,
		StepDisplacementM:       step,
		CumulativeDisplacementM: cumulative,
		Idle:                    e.idle.Snapshot(),
		LastRealUpdate:          now,
		Class:                   class,
		Interval:                e.interval,
		Settings:                settings,
	}
}

func (e *Engine) idleOnlyEvent(now time.Time) UpdateEvent {
	return UpdateEvent{
		Kind:                    IdleOnlyUpdate,
		SessionID:               e.sessionID,
		Timestamp:               now,
		CumulativeDisplacementM: e.cumulativeM,
		Idle:                    e.idle.Snapshot(),
		LastRealUpdate:          e.lastAcceptedAt,
		Class:                   e.classifier.Class(),
		Interval:                e.interval,
		Settings:                e.policy.Current(),
	}
}

func (e *Engine) emitIdleTransition(wasIdle bool, now time.Time) {
	isIdle := e.idle.Idle()
	if wasIdle == isIdle {
		return
	}
	typ := TransitionIdleExit
	if isIdle {
		typ = TransitionIdleEnter
	}
	e.emit(typ, now, nil)
}

// Tick is the host heartbeat: it advances idle bookkeeping with the
// current below-threshold flag and no new fix. Repeated ticks accumulate
// idle time linearly with no double counting.
func (e *Engine) Tick(now time.Time) idle.Snapshot {
	wasIdle := e.idle.Idle()
	e.idle.Update(e.lastBelow, now)
	e.emitIdleTransition(wasIdle, now)
	return e.idle.Snapshot()
}

// OnBatteryLevelChanged feeds a battery level in [0,1] into the adaptive
// policy and refreshes the polling interval if the settings changed.
func (e *Engine) OnBatteryLevelChanged(level float64, now time.Time) power.Settings {
	settings, changed := e.policy.OnBatteryLevel(level)
	if changed {
		e.interval = e.classifier.AdaptiveInterval(e.classifier.Class(), settings.PowerSavingMultiplier)
		e.emit(TransitionSettingsChanged, now, map[string]interface{}{
			"battery":     level,
			"mode":        string(settings.Mode),
			"multiplier":  settings.PowerSavingMultiplier,
			"interval_ms": e.interval.Milliseconds(),
		})
	}
	return settings
}

// RecomputePower re-derives settings from the last known battery level.
// The host calls this on the policy's periodic cadence.
func (e *Engine) RecomputePower(now time.Time) power.Settings {
	before := e.policy.Current()
	settings := e.policy.Recompute(e.policy.BatteryLevel())
	if settings != before {
		e.interval = e.classifier.AdaptiveInterval(e.classifier.Class(), settings.PowerSavingMultiplier)
		e.emit(TransitionSettingsChanged, now, map[string]interface{}{
			"mode":        string(settings.Mode),
			"multiplier":  settings.PowerSavingMultiplier,
			"interval_ms": e.interval.Milliseconds(),
		})
	}
	return settings
}

// SetAccuracyMode overrides the battery-derived accuracy mode.
func (e *Engine) SetAccuracyMode(mode pkg.AccuracyMode, now time.Time) power.Settings {
	settings := e.policy.SetAccuracyMode(mode)
	e.emit(TransitionSettingsChanged, now, map[string]interface{}{
		"mode":       string(settings.Mode),
		"accuracy_m": settings.DesiredAccuracyM,
	})
	return settings
}

// SetVisitID applies the external visit signal. A present id means a visit
// is active and outside-visit idle accrual pauses; an empty id resumes it.
func (e *Engine) SetVisitID(id string, now time.Time) {
	e.idle.SetOutsideVisitTracking(id == "", now)
	e.emit(TransitionVisitChanged, now, map[string]interface{}{
		"visit_id": id,
		"outside":  id == "",
	})
}

// RecordProviderError registers a transient provider failure.
func (e *Engine) RecordProviderError(now time.Time) {
	if scheduled := e.recovery.RecordError(now); scheduled {
		e.emit(TransitionRecoveryScheduled, now, map[string]interface{}{
			"consecutive_errors": e.recovery.ConsecutiveErrors(),
		})
	}
}

// RecoveryDue reports whether the host should resubscribe the provider now.
func (e *Engine) RecoveryDue(now time.Time) bool {
	return e.recovery.Due(now)
}

// RecordRecoveryResult registers the outcome of a host-performed provider
// resubscription.
func (e *Engine) RecordRecoveryResult(ok bool, now time.Time) {
	e.recovery.RecordRecoveryResult(ok, now)
	e.emit(TransitionRecoveryResult, now, map[string]interface{}{"ok": ok})
	if e.recovery.Fatal() {
		e.emit(TransitionFatal, now, nil)
	}
}

// StopRecommended reports the terminal condition: recovery attempts are
// exhausted and the host should stop the session. The engine never
// self-terminates.
func (e *Engine) StopRecommended() bool {
	return e.recovery.Fatal()
}

// AdaptiveInterval returns the current target polling interval, always
// within the configured bounds.
func (e *Engine) AdaptiveInterval() time.Duration {
	return e.interval
}

// IdleSnapshot returns the current idle counters.
func (e *Engine) IdleSnapshot() idle.Snapshot {
	return e.idle.Snapshot()
}

// RestoreIdleTotals seeds idle counters persisted by the host. Call before
// the first ingest.
func (e *Engine) RestoreIdleTotals(total, outsideVisit time.Duration) {
	e.idle.Restore(total, outsideVisit)
}

// Snapshot returns the full engine state for status and metrics.
func (e *Engine) Snapshot() State {
	return State{
		SessionID:               e.sessionID,
		LastAcceptedAt:          e.lastAcceptedAt,
		CumulativeDisplacementM: e.cumulativeM,
		Class:                   e.classifier.Class(),
		Interval:                e.interval,
		Settings:                e.policy.Current(),
		BatteryLevel:            e.policy.BatteryLevel(),
		Idle:                    e.idle.Snapshot(),
		ConsecutiveErrors:       e.recovery.ConsecutiveErrors(),
		Fatal:                   e.recovery.Fatal(),
		Prediction:              e.classifier.Predict(),
		Trend:                   e.classifier.SpeedTrend().Trend,
	}
}

// Close performs the final idle flush at session teardown so no idle
// duration is lost, and returns the final counters.
func (e *Engine) Close(now time.Time) idle.Snapshot {
	e.idle.Flush(now)
	return e.idle.Snapshot()
}
