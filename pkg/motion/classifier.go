// Package motion classifies movement patterns from a bounded window of
// accepted fixes and derives the target polling interval for the provider.
package motion

import (
	"time"

	"github.com/fieldtrack/fieldtrack/pkg"
	"github.com/fieldtrack/fieldtrack/pkg/geomath"
)

// minSpeedWindow is the number of trailing fixes used for pairwise speeds.
const minSpeedWindow = 3

// epsilonSeconds guards the speed denominator against zero elapsed time.
const epsilonSeconds = 0.001

// Config controls classification thresholds and interval derivation.
type Config struct {
	BufferSize       int           `json:"buffer_size"`
	StationaryMaxMPS float64       `json:"stationary_max_mps"`
	WalkingMaxMPS    float64       `json:"walking_max_mps"`
	RunningMaxMPS    float64       `json:"running_max_mps"`
	StepInterval     time.Duration `json:"step_interval"`
	MinInterval      time.Duration `json:"min_interval"`
	MaxInterval      time.Duration `json:"max_interval"`
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:       10,
		StationaryMaxMPS: 0.5,
		WalkingMaxMPS:    2.0,
		RunningMaxMPS:    8.0,
		StepInterval:     time.Second,
		MinInterval:      500 * time.Millisecond,
		MaxInterval:      30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.StationaryMaxMPS <= 0 {
		c.StationaryMaxMPS = def.StationaryMaxMPS
	}
	if c.WalkingMaxMPS <= c.StationaryMaxMPS {
		c.WalkingMaxMPS = def.WalkingMaxMPS
	}
	if c.RunningMaxMPS <= c.WalkingMaxMPS {
		c.RunningMaxMPS = def.RunningMaxMPS
	}
	if c.StepInterval <= 0 {
		c.StepInterval = def.StepInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = def.MaxInterval
	}
	return c
}

// Classifier buffers recent accepted fixes and classifies the movement
// pattern from the average pairwise speed over the trailing window.
type Classifier struct {
	config    Config
	buffer    []pkg.Fix
	lastClass pkg.MovementClass
	lastSpeed float64
	predictor *Predictor
}

// NewClassifier creates a classifier with the given configuration.
func NewClassifier(config Config) *Classifier {
	config = config.withDefaults()
	return &Classifier{
		config:    config,
		buffer:    make([]pkg.Fix, 0, config.BufferSize),
		lastClass: pkg.MovementUnknown,
		predictor: NewPredictor(),
	}
}

// Observe appends a fix to the buffer, evicting the oldest beyond capacity,
// and returns the updated classification.
func (c *Classifier) Observe(fix pkg.Fix) pkg.MovementClass {
	c.buffer = append(c.buffer, fix)
	if len(c.buffer) > c.config.BufferSize {
		c.buffer = c.buffer[1:]
	}

	if len(c.buffer) < minSpeedWindow {
		c.lastClass = pkg.MovementUnknown
		c.lastSpeed = 0
		c.predictor.Observe(fix, 0)
		return c.lastClass
	}

	speed := c.averageSpeed()
	c.lastSpeed = speed
	c.lastClass = c.classify(speed)
	c.predictor.Observe(fix, speed)
	return c.lastClass
}

// averageSpeed computes the mean pairwise speed over the last three fixes.
func (c *Classifier) averageSpeed() float64 {
	window := c.buffer[len(c.buffer)-minSpeedWindow:]

	var sum float64
	for i := 0; i < len(window)-1; i++ {
		sum += pairSpeed(window[i], window[i+1])
	}
	return sum / float64(len(window)-1)
}

// pairSpeed is the ground speed between two consecutive fixes. Elapsed time
// is floored at epsilonSeconds so identical timestamps never divide by zero.
func pairSpeed(from, to pkg.Fix) float64 {
	elapsed := to.Timestamp.Sub(from.Timestamp).Seconds()
	if elapsed < epsilonSeconds {
		elapsed = epsilonSeconds
	}
	return distanceBetween(from, to) / elapsed
}

func distanceBetween(a, b pkg.Fix) float64 {
	return geomath.DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func (c *Classifier) classify(speed float64) pkg.MovementClass {
	switch {
	case speed < c.config.StationaryMaxMPS:
		return pkg.MovementStationary
	case speed < c.config.WalkingMaxMPS:
		return pkg.MovementWalking
	case speed < c.config.RunningMaxMPS:
		return pkg.MovementRunning
	default:
		return pkg.MovementDriving
	}
}

// Class returns the most recent classification.
func (c *Classifier) Class() pkg.MovementClass {
	return c.lastClass
}

// AverageSpeed returns the most recent average speed in m/s.
func (c *Classifier) AverageSpeed() float64 {
	return c.lastSpeed
}

// BaseInterval maps a movement class to its base polling interval before
// power-saving scaling is applied.
func (c *Classifier) BaseInterval(class pkg.MovementClass) time.Duration {
	switch class {
	case pkg.MovementStationary:
		return c.config.MaxInterval
	case pkg.MovementWalking:
		return 2 * c.config.StepInterval
	case pkg.MovementRunning, pkg.MovementDriving:
		return c.config.StepInterval
	default:
		return c.config.MinInterval
	}
}

// AdaptiveInterval scales the base interval for the class by the current
// power-saving multiplier and clamps it to [MinInterval, MaxInterval].
func (c *Classifier) AdaptiveInterval(class pkg.MovementClass, powerSavingMultiplier float64) time.Duration {
	if powerSavingMultiplier <= 0 {
		powerSavingMultiplier = 1.0
	}
	interval := time.Duration(float64(c.BaseInterval(class)) * powerSavingMultiplier)
	if interval < c.config.MinInterval {
		interval = c.config.MinInterval
	}
	if interval > c.config.MaxInterval {
		interval = c.config.MaxInterval
	}
	return interval
}

// Predict returns the auxiliary position prediction for the current state.
// It never gates whether an update is emitted.
func (c *Classifier) Predict() Prediction {
	return c.predictor.Predict(c.lastClass, c.lastSpeed)
}

// Buffer returns a copy of the current fix window, oldest first.
func (c *Classifier) Buffer() []pkg.Fix {
	out := make([]pkg.Fix, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// Reset clears the buffer and classification state for a new session.
func (c *Classifier) Reset() {
	c.buffer = c.buffer[:0]
	c.lastClass = pkg.MovementUnknown
	c.lastSpeed = 0
	c.predictor = NewPredictor()
}
