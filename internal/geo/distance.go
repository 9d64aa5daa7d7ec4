// README: Pure geographic computation helpers (great-circle distance, ordering).
package geo

import (
	"cmp"
	"math"
	"slices"

	"dispatch/internal/types"
)

const (
	// EarthRadiusKm is the mean radius used for every distance in the system.
	EarthRadiusKm    = 6371.0
	radiansPerDegree = math.Pi / 180
)

// DistanceKm returns the great-circle distance between two validated points.
func DistanceKm(a, b types.Point) float64 {
	lat1, lat2 := a.Lat*radiansPerDegree, b.Lat*radiansPerDegree
	halfDLat := (b.Lat - a.Lat) * radiansPerDegree / 2
	halfDLng := (b.Lng - a.Lng) * radiansPerDegree / 2

	sinLat, sinLng := math.Sin(halfDLat), math.Sin(halfDLng)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// Rounding can push h past 1 for antipodal points.
	h = math.Min(1, h)

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// TravelMinutes converts a distance to minutes at a constant speed.
func TravelMinutes(distanceKm, speedKmh float64) float64 {
	if speedKmh <= 0 {
		return 0
	}
	return distanceKm / speedKmh * 60
}

// SortByDistance orders items nearest first. Equal distances keep their
// input order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(dist(a), dist(b))
	})
}
