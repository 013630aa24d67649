package geo

import (
	"math"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

const (
	earthRadiusKm = 6371.0

	// AverageSpeedKmh is a policy constant, not a physical law: the flat
	// speed assumed for all travel-time estimates.
	AverageSpeedKmh = 50.0
)

// DistanceKm returns the great-circle distance between two coordinates via
// the haversine formula. Pure function; NaN inputs propagate as NaN, callers
// validate coordinate ranges beforehand.
func DistanceKm(a, b models.Coord) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// TravelMinutes estimates travel time for a distance at the assumed average
// speed, rounded up to whole minutes.
func TravelMinutes(km float64) float64 {
	return math.Ceil(km / AverageSpeedKmh * 60)
}
