// Package geomath provides great-circle distance math shared by the
// movement classifier and the update engine.
package geomath

import "math"

// earthRadiusM is the mean Earth radius used for haversine distances.
const earthRadiusM = 6371000

// DistanceMeters returns the haversine (great-circle) distance between two
// coordinates in meters. NaN inputs propagate NaN; callers reject sentinel
// coordinates before calling.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLatRad := (lat2 - lat1) * math.Pi / 180
	deltaLonRad := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLatRad/2)*math.Sin(deltaLatRad/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLonRad/2)*math.Sin(deltaLonRad/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}
