// Package pkg defines the shared types of the fieldtrack location engine.
package pkg

import (
	"math"
	"time"
)

// SentinelCoordinate marks an idle-only provider callback that carries no
// real position. Fixes with this latitude or longitude must never be used
// as displacement references.
const SentinelCoordinate = -999

// Fix represents one raw location sample from a platform location provider.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AccuracyM float64   `json:"accuracy_m"` // horizontal accuracy
	SpeedMPS  float64   `json:"speed_mps"`
	AltitudeM float64   `json:"altitude_m"`
	Provider  string    `json:"provider"` // gps|network|fused|nmea
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the fix carries a real position. Sentinel and NaN
// coordinates represent "idle-only, no real fix" callbacks.
func (f Fix) Valid() bool {
	if math.IsNaN(f.Latitude) || math.IsNaN(f.Longitude) {
		return false
	}
	if f.Latitude == SentinelCoordinate || f.Longitude == SentinelCoordinate {
		return false
	}
	return true
}

// IdleOnlyFix returns a sentinel fix for the given provider and time.
func IdleOnlyFix(provider string, ts time.Time) Fix {
	return Fix{
		Latitude:  SentinelCoordinate,
		Longitude: SentinelCoordinate,
		Provider:  provider,
		Timestamp: ts,
	}
}

// MovementClass is the classified movement pattern of the tracked subject.
type MovementClass string

const (
	MovementUnknown    MovementClass = "unknown"
	MovementStationary MovementClass = "stationary"
	MovementWalking    MovementClass = "walking"
	MovementRunning    MovementClass = "running"
	MovementDriving    MovementClass = "driving"
)

// AccuracyMode selects the accuracy/power tradeoff of the location provider.
type AccuracyMode string

const (
	AccuracyUltraHigh        AccuracyMode = "ultra_high"
	AccuracyHigh             AccuracyMode = "high"
	AccuracyBalanced         AccuracyMode = "balanced"
	AccuracyPowerSaving      AccuracyMode = "power_saving"
	AccuracyUltraPowerSaving AccuracyMode = "ultra_power_saving"
)
