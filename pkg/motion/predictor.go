package motion

import (
	"time"

	"github.com/fieldtrack/fieldtrack/pkg"
)

const (
	// Smoothing weights for the exponentially smoothed velocity estimate.
	velocityRetainedWeight = 0.8
	velocitySampleWeight   = 0.2

	// predictionHorizon is how far ahead the position is extrapolated.
	predictionHorizon = 5 * time.Second

	// speedConfidenceDivisor discounts confidence at higher speeds, capped
	// at a 0.5 discount.
	speedConfidenceDivisor = 20.0
	maxSpeedDiscount       = 0.5
)

// Prediction is an extrapolated future position with a confidence estimate.
// It is an auxiliary signal only.
type Prediction struct {
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	Horizon    time.Duration `json:"horizon"`
	Confidence float64       `json:"confidence"`
	Valid      bool          `json:"valid"`
}

// Predictor keeps an exponentially smoothed velocity vector in degrees per
// second and extrapolates a position predictionHorizon ahead.
type Predictor struct {
	lastFix   pkg.Fix
	hasFix    bool
	velLatDeg float64
	velLonDeg float64
	hasVel    bool
}

// NewPredictor creates an empty predictor.
func NewPredictor() *Predictor {
	return &Predictor{}
}

// Observe folds a new accepted fix into the smoothed velocity estimate.
func (p *Predictor) Observe(fix pkg.Fix, speedMPS float64) {
	if !p.hasFix {
		p.lastFix = fix
		p.hasFix = true
		return
	}

	elapsed := fix.Timestamp.Sub(p.lastFix.Timestamp).Seconds()
	if elapsed < epsilonSeconds {
		elapsed = epsilonSeconds
	}

	sampleVelLat := (fix.Latitude - p.lastFix.Latitude) / elapsed
	sampleVelLon := (fix.Longitude - p.lastFix.Longitude) / elapsed

	if !p.hasVel {
		p.velLatDeg = sampleVelLat
		p.velLonDeg = sampleVelLon
		p.hasVel = true
	} else {
		p.velLatDeg = velocityRetainedWeight*p.velLatDeg + velocitySampleWeight*sampleVelLat
		p.velLonDeg = velocityRetainedWeight*p.velLonDeg + velocitySampleWeight*sampleVelLon
	}

	p.lastFix = fix
}

// Predict extrapolates the position predictionHorizon ahead of the last
// observed fix. Confidence depends on the movement class, discounted by
// min(speed/20, 0.5).
func (p *Predictor) Predict(class pkg.MovementClass, speedMPS float64) Prediction {
	if !p.hasFix || !p.hasVel {
		return Prediction{Horizon: predictionHorizon}
	}

	horizonS := predictionHorizon.Seconds()
	discount := speedMPS / speedConfidenceDivisor
	if discount > maxSpeedDiscount {
		discount = maxSpeedDiscount
	}

	confidence := baseConfidence(class) - discount
	if confidence < 0 {
		confidence = 0
	}

	return Prediction{
		Latitude:   p.lastFix.Latitude + p.velLatDeg*horizonS,
		Longitude:  p.lastFix.Longitude + p.velLonDeg*horizonS,
		Horizon:    predictionHorizon,
		Confidence: confidence,
		Valid:      true,
	}
}

func baseConfidence(class pkg.MovementClass) float64 {
	switch class {
	case pkg.MovementStationary:
		return 0.95
	case pkg.MovementWalking:
		return 0.85
	case pkg.MovementRunning:
		return 0.75
	case pkg.MovementDriving:
		return 0.70
	default:
		return 0.50
	}
}
