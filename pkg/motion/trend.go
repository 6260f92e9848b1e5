package motion

import (
	"github.com/sajari/regression"
)

// Trend labels how the subject's speed is evolving over the buffer window.
type Trend string

const (
	TrendInsufficient Trend = "insufficient_data"
	TrendSteady       Trend = "steady"
	TrendAccelerating Trend = "accelerating"
	TrendDecelerating Trend = "decelerating"
)

// trendSlopeThreshold is the minimum speed slope (m/s per second) treated
// as a real acceleration or deceleration rather than noise.
const trendSlopeThreshold = 0.1

// TrendAnalysis is the fitted speed trend over the recent fix window. Like
// the predictor it is an auxiliary signal only.
type TrendAnalysis struct {
	Trend     Trend   `json:"trend"`
	SlopeMPS2 float64 `json:"slope_mps2"`
	R2        float64 `json:"r2"`
	Samples   int     `json:"samples"`
}

// SpeedTrend fits a linear regression of pairwise speed against elapsed
// time over the buffered fixes and classifies the slope.
func (c *Classifier) SpeedTrend() TrendAnalysis {
	if len(c.buffer) < minSpeedWindow {
		return TrendAnalysis{Trend: TrendInsufficient, Samples: len(c.buffer)}
	}

	origin := c.buffer[0].Timestamp

	r := new(regression.Regression)
	r.SetObserved("speed_mps")
	r.SetVar(0, "elapsed_s")

	samples := 0
	for i := 0; i < len(c.buffer)-1; i++ {
		to := c.buffer[i+1]
		speed := pairSpeed(c.buffer[i], to)
		r.Train(regression.DataPoint(speed, []float64{to.Timestamp.Sub(origin).Seconds()}))
		samples++
	}

	if err := r.Run(); err != nil {
		return TrendAnalysis{Trend: TrendInsufficient, Samples: samples}
	}

	slope := r.Coeff(1)
	analysis := TrendAnalysis{SlopeMPS2: slope, R2: r.R2, Samples: samples}
	switch {
	case slope > trendSlopeThreshold:
		analysis.Trend = TrendAccelerating
	case slope < -trendSlopeThreshold:
		analysis.Trend = TrendDecelerating
	default:
		analysis.Trend = TrendSteady
	}
	return analysis
}
