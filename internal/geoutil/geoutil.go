// Package geoutil holds the small amount of coordinate arithmetic the
// pipeline needs: lat/lon validation, grid-cell keys for deduplication,
// and great-circle distances.
package geoutil

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

const earthRadiusMeters = 6371000.0

// Coord builds a go-geom coordinate in lon/lat (x/y) order.
func Coord(lat, lon float64) geom.Coord {
	return geom.Coord{lon, lat}
}

// ValidLatLon reports whether the pair is a usable WGS84 coordinate.
func ValidLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lon)
}

// CellKey buckets a coordinate into a grid cell of roughly 1 km by rounding
// to two decimal places. Candidates in the same cell are treated as the
// same place.
func CellKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

// Haversine returns the great-circle distance in meters between two
// coordinates in lon/lat order.
func Haversine(a, b geom.Coord) float64 {
	lat1 := a.Y() * math.Pi / 180
	lat2 := b.Y() * math.Pi / 180
	dLat := (b.Y() - a.Y()) * math.Pi / 180
	dLon := (b.X() - a.X()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Clamp01 bounds a score to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
