// Package power maps battery state and accuracy mode to provider settings.
package power

import (
	"time"

	"github.com/fieldtrack/fieldtrack/pkg"
)

// BaseAccuracyM is the preferred horizontal accuracy before mode scaling.
const BaseAccuracyM = 25.0

// Config controls the battery thresholds and recompute cadence.
type Config struct {
	UltraSavingBattery float64       `json:"ultra_saving_battery"` // level in [0,1]
	SavingBattery      float64       `json:"saving_battery"`
	UltraSavingFactor  float64       `json:"ultra_saving_factor"`
	SavingFactor       float64       `json:"saving_factor"`
	BaseDistanceM      float64       `json:"base_distance_m"` // distance filter before scaling
	RecomputePeriod    time.Duration `json:"recompute_period"`
	MinBatteryDelta    float64       `json:"min_battery_delta"`
}

// DefaultConfig returns the default power policy configuration.
func DefaultConfig() Config {
	return Config{
		UltraSavingBattery: 0.05,
		SavingBattery:      0.15,
		UltraSavingFactor:  5.0,
		SavingFactor:       3.0,
		BaseDistanceM:      10.0,
		RecomputePeriod:    5 * time.Second,
		MinBatteryDelta:    0.01,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.UltraSavingBattery <= 0 {
		c.UltraSavingBattery = def.UltraSavingBattery
	}
	if c.SavingBattery <= c.UltraSavingBattery {
		c.SavingBattery = def.SavingBattery
	}
	if c.UltraSavingFactor <= 0 {
		c.UltraSavingFactor = def.UltraSavingFactor
	}
	if c.SavingFactor <= 0 {
		c.SavingFactor = def.SavingFactor
	}
	if c.BaseDistanceM <= 0 {
		c.BaseDistanceM = def.BaseDistanceM
	}
	if c.RecomputePeriod <= 0 {
		c.RecomputePeriod = def.RecomputePeriod
	}
	if c.MinBatteryDelta <= 0 {
		c.MinBatteryDelta = def.MinBatteryDelta
	}
	return c
}

// Settings is the provider tuning derived from battery level and mode.
type Settings struct {
	Mode                  pkg.AccuracyMode `json:"mode"`
	PowerSavingMultiplier float64          `json:"power_saving_multiplier"`
	DesiredAccuracyM      float64          `json:"desired_accuracy_m"`
	DistanceFilterM       float64          `json:"distance_filter_m"`
}

// accuracyScale returns the threshold scaling of the base accuracy for a
// mode (ULTRA_HIGH..ULTRA_POWER_SAVING).
func accuracyScale(mode pkg.AccuracyMode) float64 {
	switch mode {
	case pkg.AccuracyUltraHigh:
		return 0.5
	case pkg.AccuracyHigh:
		return 0.75
	case pkg.AccuracyBalanced:
		return 1.0
	case pkg.AccuracyPowerSaving:
		return 1.5
	case pkg.AccuracyUltraPowerSaving:
		return 2.0
	default:
		return 1.0
	}
}

// Policy derives Settings from battery level, with an optional explicit
// accuracy-mode override (ULTRA_HIGH/HIGH) that bypasses battery mapping.
type Policy struct {
	config      Config
	override    pkg.AccuracyMode // empty means battery-derived
	lastBattery float64
	current     Settings
}

// NewPolicy creates a policy with balanced settings at full battery.
func NewPolicy(config Config) *Policy {
	p := &Policy{config: config.withDefaults(), lastBattery: 1.0}
	p.current = p.compute(1.0)
	return p
}

// compute is the pure battery-to-settings mapping.
func (p *Policy) compute(battery float64) Settings {
	var mode pkg.AccuracyMode
	var multiplier float64

	switch {
	case battery <= p.config.UltraSavingBattery:
		mode = pkg.AccuracyUltraPowerSaving
		multiplier = p.config.UltraSavingFactor
	case battery <= p.config.SavingBattery:
		mode = pkg.AccuracyPowerSaving
		multiplier = p.config.SavingFactor
	default:
		mode = pkg.AccuracyBalanced
		multiplier = 1.0
	}

	if p.override != "" {
		mode = p.override
	}

	scale := accuracyScale(mode)
	return Settings{
		Mode:                  mode,
		PowerSavingMultiplier: multiplier,
		DesiredAccuracyM:      BaseAccuracyM * scale,
		DistanceFilterM:       p.config.BaseDistanceM * scale,
	}
}

// Recompute re-derives settings from the given battery level.
func (p *Policy) Recompute(battery float64) Settings {
	p.lastBattery = clampLevel(battery)
	p.current = p.compute(p.lastBattery)
	return p.current
}

// OnBatteryLevel applies a battery change event. Settings are recomputed
// only when the level moved by at least MinBatteryDelta; the bool reports
// whether they changed.
func (p *Policy) OnBatteryLevel(level float64) (Settings, bool) {
	level = clampLevel(level)
	if abs(level-p.lastBattery) < p.config.MinBatteryDelta {
		return p.current, false
	}
	before := p.current
	after := p.Recompute(level)
	return after, before != after
}

// SetAccuracyMode overrides the battery-derived mode. Passing an empty mode
// restores battery-derived behavior.
func (p *Policy) SetAccuracyMode(mode pkg.AccuracyMode) Settings {
	p.override = mode
	p.current = p.compute(p.lastBattery)
	return p.current
}

// Current returns the settings from the last recompute.
func (p *Policy) Current() Settings {
	return p.current
}

// BatteryLevel returns the last applied battery level.
func (p *Policy) BatteryLevel() float64 {
	return p.lastBattery
}

// RecomputePeriod returns the periodic recompute cadence for the host timer.
func (p *Policy) RecomputePeriod() time.Duration {
	return p.config.RecomputePeriod
}

func clampLevel(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
