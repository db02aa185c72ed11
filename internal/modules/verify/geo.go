// Package verify contains pure geographic computation and one-time code
// helpers used to gate arrival and completion transitions.
package verify

import (
	"math"

	"roadcall/internal/types"
)

const (
	earthRadiusKm = 6371.0

	// ArrivalRadiusMeters is the geofence radius for marking arrival.
	ArrivalRadiusMeters = 100.0
)

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula on a spherical-earth approximation. Accuracy/cost
// tradeoff; not geodesic-precise.
func DistanceMeters(a, b types.Coordinates) float64 {
	dLat := degreesToRadians(b.Latitude - a.Latitude)
	dLng := degreesToRadians(b.Longitude - a.Longitude)

	rLat1 := degreesToRadians(a.Latitude)
	rLat2 := degreesToRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c * 1000
}

// WithinArrivalRadius reports whether two points are close enough to count
// as "arrived". Symmetric in its arguments.
func WithinArrivalRadius(a, b types.Coordinates) bool {
	return WithinRadius(a, b, ArrivalRadiusMeters)
}

func WithinRadius(a, b types.Coordinates, radiusMeters float64) bool {
	return DistanceMeters(a, b) <= radiusMeters
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
