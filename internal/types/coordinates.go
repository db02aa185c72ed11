// README: Strict geographic coordinate value type, validated at the boundary.
package types

import (
	"errors"
	"math"
)

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

var ErrBadCoordinates = errors.New("coordinates out of range")

// Validate rejects non-finite or out-of-range latitude/longitude. Location
// payloads are converted to this type at the transport boundary and never
// passed around as loose JSON.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return ErrBadCoordinates
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrBadCoordinates
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrBadCoordinates
	}
	return nil
}
