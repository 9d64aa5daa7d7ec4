// README: Geohash cells used for spatial bucketing.
package geo

import (
	"github.com/mmcloughlin/geohash"

	"dispatch/internal/types"
)

// DefaultCellPrecision gives cells of roughly 5km x 5km.
const DefaultCellPrecision uint = 5

// Cell returns the geohash cell containing p.
func Cell(p types.Point, precision uint) string {
	if precision == 0 {
		precision = DefaultCellPrecision
	}
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, precision)
}

// CellCenter returns the centre coordinate of a geohash cell.
func CellCenter(cell string) types.Point {
	lat, lng := geohash.DecodeCenter(cell)
	return types.Point{Lat: lat, Lng: lng}
}

// Neighbors returns the eight cells surrounding cell.
func Neighbors(cell string) []string {
	return geohash.Neighbors(cell)
}
