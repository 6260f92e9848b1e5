package motion

import (
	"math"
	"testing"
	"time"

	"github.com/fieldtrack/fieldtrack/pkg"
)

func TestPredictorInvalidWithoutHistory(t *testing.T) {
	p := NewPredictor()
	if pred := p.Predict(pkg.MovementWalking, 1.0); pred.Valid {
		t.Error("prediction should be invalid before any observation")
	}

	p.Observe(fixAt(0, 0), 0)
	if pred := p.Predict(pkg.MovementWalking, 1.0); pred.Valid {
		t.Error("prediction should be invalid with a single observation")
	}
}

func TestPredictorExtrapolatesNorthwardMovement(t *testing.T) {
	p := NewPredictor()
	// Steady 2 m/s northward, one fix per second.
	for i := 0; i < 5; i++ {
		p.Observe(fixAt(float64(i)*2, time.Duration(i)*time.Second), 2.0)
	}

	pred := p.Predict(pkg.MovementWalking, 2.0)
	if !pred.Valid {
		t.Fatal("expected a valid prediction")
	}

	lastLat := fixAt(8, 4*time.Second).Latitude
	if pred.Latitude <= lastLat {
		t.Errorf("predicted latitude %.7f not ahead of last fix %.7f", pred.Latitude, lastLat)
	}

	// 5 s at ~2 m/s is ~10 m; smoothing keeps it in the same ballpark.
	predictedM := (pred.Latitude - lastLat) * metersPerLatDegree
	if predictedM < 5 || predictedM > 15 {
		t.Errorf("predicted displacement %.1f m, want roughly 10 m", predictedM)
	}
}

func TestPredictorConfidence(t *testing.T) {
	tests := []struct {
		name     string
		class    pkg.MovementClass
		speedMPS float64
		expected float64
	}{
		{"stationary", pkg.MovementStationary, 0, 0.95},
		{"walking", pkg.MovementWalking, 1.5, 0.85 - 1.5/20},
		{"driving", pkg.MovementDriving, 30, 0.70 - 0.5}, // discount capped at 0.5
		{"unknown", pkg.MovementUnknown, 0, 0.50},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := NewPredictor()
			p.Observe(fixAt(0, 0), test.speedMPS)
			p.Observe(fixAt(1, time.Second), test.speedMPS)

			pred := p.Predict(test.class, test.speedMPS)
			if math.Abs(pred.Confidence-test.expected) > 1e-9 {
				t.Errorf("confidence = %.3f, want %.3f", pred.Confidence, test.expected)
			}
		})
	}
}

func TestSpeedTrend(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		c := NewClassifier(DefaultConfig())
		c.Observe(fixAt(0, 0))
		if got := c.SpeedTrend(); got.Trend != TrendInsufficient {
			t.Errorf("trend = %v, want insufficient_data", got.Trend)
		}
	})

	t.Run("steady", func(t *testing.T) {
		c := NewClassifier(DefaultConfig())
		walk(c, 8, 2.0, time.Second)
		got := c.SpeedTrend()
		if got.Trend != TrendSteady {
			t.Errorf("trend = %v (slope %.3f), want steady", got.Trend, got.SlopeMPS2)
		}
	})

	t.Run("accelerating", func(t *testing.T) {
		c := NewClassifier(DefaultConfig())
		// Speed ramps from 1 m/s to 8 m/s over the window.
		northM := 0.0
		for i := 0; i < 8; i++ {
			speed := 1.0 + float64(i)
			c.Observe(fixAt(northM, time.Duration(i)*time.Second))
			northM += speed
		}
		got := c.SpeedTrend()
		if got.Trend != TrendAccelerating {
			t.Errorf("trend = %v (slope %.3f), want accelerating", got.Trend, got.SlopeMPS2)
		}
	})

	t.Run("duplicate timestamps stay finite", func(t *testing.T) {
		c := NewClassifier(DefaultConfig())
		walk(c, 4, 2.0, time.Second)
		// Repeat the last timestamp; the pairwise speed floor keeps the
		// fit finite.
		c.Observe(fixAt(10, 3*time.Second))
		got := c.SpeedTrend()
		if math.IsNaN(got.SlopeMPS2) || math.IsInf(got.SlopeMPS2, 0) {
			t.Errorf("slope = %v, want finite", got.SlopeMPS2)
		}
	})
}
