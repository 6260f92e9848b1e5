package motion

import (
	"math"
	"testing"
	"time"

	"github.com/fieldtrack/fieldtrack/pkg"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// metersPerLatDegree converts northward meters into degrees of latitude.
const metersPerLatDegree = 111195.0

func fixAt(northM float64, offset time.Duration) pkg.Fix {
	return pkg.Fix{
		Latitude:  59.3293 + northM/metersPerLatDegree,
		Longitude: 18.0686,
		Provider:  "gps",
		Timestamp: testStart.Add(offset),
	}
}

// walk feeds fixes moving north at the given speed, one every interval.
func walk(c *Classifier, count int, speedMPS float64, interval time.Duration) pkg.MovementClass {
	var class pkg.MovementClass
	for i := 0; i < count; i++ {
		northM := speedMPS * interval.Seconds() * float64(i)
		class = c.Observe(fixAt(northM, time.Duration(i)*interval))
	}
	return class
}

func TestClassifierUnknownBelowWindow(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	if class := c.Observe(fixAt(0, 0)); class != pkg.MovementUnknown {
		t.Errorf("1 fix: got %v, want unknown", class)
	}
	if class := c.Observe(fixAt(100, 2*time.Second)); class != pkg.MovementUnknown {
		t.Errorf("2 fixes: got %v, want unknown", class)
	}
}

func TestClassifierSpeedBands(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		expected pkg.MovementClass
	}{
		{"stationary", 0.4, pkg.MovementStationary},
		{"walking", 1.5, pkg.MovementWalking},
		{"running", 4.0, pkg.MovementRunning},
		{"driving", 20.0, pkg.MovementDriving},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := NewClassifier(DefaultConfig())
			got := walk(c, 3, test.speedMPS, 2*time.Second)
			if got != test.expected {
				t.Errorf("speed %.1f m/s: got %v, want %v (avg %.2f)", test.speedMPS, got, test.expected, c.AverageSpeed())
			}
		})
	}
}

func TestClassifierBufferEviction(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	walk(c, 25, 1.0, time.Second)

	buffer := c.Buffer()
	if len(buffer) != 10 {
		t.Fatalf("buffer size = %d, want 10", len(buffer))
	}
	// Oldest entries must have been evicted: first retained fix is #15.
	wantFirst := testStart.Add(15 * time.Second)
	if !buffer[0].Timestamp.Equal(wantFirst) {
		t.Errorf("oldest retained fix at %v, want %v", buffer[0].Timestamp, wantFirst)
	}
}

func TestClassifierZeroElapsedGuard(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	// Three fixes with identical timestamps must not divide by zero.
	for i := 0; i < 3; i++ {
		c.Observe(fixAt(float64(i), 0))
	}
	if math.IsNaN(c.AverageSpeed()) {
		t.Fatal("average speed is NaN with zero elapsed time")
	}
}

func TestBaseInterval(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	tests := []struct {
		class    pkg.MovementClass
		expected time.Duration
	}{
		{pkg.MovementStationary, 30 * time.Second},
		{pkg.MovementWalking, 2 * time.Second},
		{pkg.MovementRunning, time.Second},
		{pkg.MovementDriving, time.Second},
		{pkg.MovementUnknown, 500 * time.Millisecond},
	}

	for _, test := range tests {
		if got := c.BaseInterval(test.class); got != test.expected {
			t.Errorf("BaseInterval(%v) = %v, want %v", test.class, got, test.expected)
		}
	}
}

func TestAdaptiveIntervalClamped(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	tests := []struct {
		name       string
		class      pkg.MovementClass
		multiplier float64
		expected   time.Duration
	}{
		{"stationary ultra power saving clamps at max", pkg.MovementStationary, 5.0, 30 * time.Second},
		{"walking power saving", pkg.MovementWalking, 3.0, 6 * time.Second},
		{"driving balanced", pkg.MovementDriving, 1.0, time.Second},
		{"unknown never below min", pkg.MovementUnknown, 0.1, 500 * time.Millisecond},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := c.AdaptiveInterval(test.class, test.multiplier); got != test.expected {
				t.Errorf("AdaptiveInterval(%v, %.1f) = %v, want %v", test.class, test.multiplier, got, test.expected)
			}
		})
	}
}

func TestClassifierReset(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	walk(c, 5, 2.0, time.Second)

	c.Reset()
	if len(c.Buffer()) != 0 {
		t.Error("buffer not cleared on reset")
	}
	if c.Class() != pkg.MovementUnknown {
		t.Errorf("class after reset = %v, want unknown", c.Class())
	}
}
