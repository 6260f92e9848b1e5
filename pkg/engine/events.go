package engine

import (
	"time"

	"github.com/fieldtrack/fieldtrack/pkg"
	"github.com/fieldtrack/fieldtrack/pkg/idle"
	"github.com/fieldtrack/fieldtrack/pkg/power"
)

// UpdateKind discriminates the outcome of one ingest call. Suppression is
// never externally observable; it surfaces as an idle-only update.
type UpdateKind string

const (
	RealUpdate     UpdateKind = "real"
	IdleOnlyUpdate UpdateKind = "idle_only"
)

// UpdateEvent is the decided output for one raw fix.
type UpdateEvent struct {
	Kind      UpdateKind `json:"kind"`
	SessionID string     `json:"session_id"`
	Timestamp time.Time  `json:"timestamp"`

	// Fix is set on real updates only.
	Fix     *pkg.Fix `json:"fix,omitempty"`
	IsFirst bool     `json:"is_first,omitempty"`
	Forced  bool     `json:"forced,omitempty"`

	// StepDisplacementM is the displacement from the previous accepted fix
	// to this one (real updates). CumulativeDisplacementM is the running
	// unaccepted displacement at decision time, before any reset.
	StepDisplacementM       float64 `json:"step_displacement_m"`
	CumulativeDisplacementM float64 `json:"cumulative_displacement_m"`

	Idle           idle.Snapshot `json:"idle"`
	LastRealUpdate time.Time     `json:"last_real_update,omitempty"`

	Class    pkg.MovementClass `json:"class"`
	Interval time.Duration     `json:"interval"`
	Settings power.Settings    `json:"settings"`
}

// TransitionType labels an engine state transition for observability
// subscribers.
type TransitionType string

const (
	TransitionFirstFix          TransitionType = "first_fix"
	TransitionAccepted          TransitionType = "accepted"
	TransitionForcedUpdate      TransitionType = "forced_update"
	TransitionIdleOnly          TransitionType = "idle_only"
	TransitionSentinelFix       TransitionType = "sentinel_fix"
	TransitionIdleEnter         TransitionType = "idle_enter"
	TransitionIdleExit          TransitionType = "idle_exit"
	TransitionSettingsChanged   TransitionType = "settings_changed"
	TransitionVisitChanged      TransitionType = "visit_changed"
	TransitionRecoveryScheduled TransitionType = "recovery_scheduled"
	TransitionRecoveryResult    TransitionType = "recovery_result"
	TransitionFatal             TransitionType = "fatal"
)

// Transition is a state-transition event delivered to subscribers. The
// engine itself stays log-agnostic; the host wires a logging subscriber.
type Transition struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      TransitionType         `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
