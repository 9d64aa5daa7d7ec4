// README: Geographic coordinate value object with range validation.
package types

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinate)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, p.Lng)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// PointPtr is a helper for optional coordinates.
func PointPtr(lat, lng float64) *Point {
	return &Point{Lat: lat, Lng: lng}
}
