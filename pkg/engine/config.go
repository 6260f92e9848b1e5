package engine

import (
	"time"

	"github.com/fieldtrack/fieldtrack/pkg/motion"
	"github.com/fieldtrack/fieldtrack/pkg/power"
	"github.com/fieldtrack/fieldtrack/pkg/recovery"
)

// Config holds the update engine configuration. Interval bounds and the
// movement buffer size live in the Motion sub-config.
type Config struct {
	// MinDistanceForUpdateM is the cumulative displacement required for a
	// real update between force-update timeouts.
	MinDistanceForUpdateM float64 `json:"min_distance_for_update_m"`

	// ForceUpdateInterval forces a real update when this much time passed
	// since the last accepted fix, regardless of displacement.
	ForceUpdateInterval time.Duration `json:"force_update_interval"`

	// StationaryStepM flags a step displacement as stationary. The flag
	// feeds movement/idle semantics only, never the accept/suppress gate.
	StationaryStepM float64 `json:"stationary_step_m"`

	Motion   motion.Config   `json:"motion"`
	Power    power.Config    `json:"power"`
	Recovery recovery.Config `json:"recovery"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MinDistanceForUpdateM: 50.0,
		ForceUpdateInterval:   15 * time.Second,
		StationaryStepM:       1.0,
		Motion:                motion.DefaultConfig(),
		Power:                 power.DefaultConfig(),
		Recovery:              recovery.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinDistanceForUpdateM <= 0 {
		c.MinDistanceForUpdateM = def.MinDistanceForUpdateM
	}
	if c.ForceUpdateInterval <= 0 {
		c.ForceUpdateInterval = def.ForceUpdateInterval
	}
	if c.StationaryStepM <= 0 {
		c.StationaryStepM = def.StationaryStepM
	}
	return c
}
