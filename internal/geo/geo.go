// Package geo provides great-circle distance and arrival estimates for
// technician tracking.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the spherical radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Arrival estimate parameters: 20 km/h effective speed with a 5 minute floor.
const (
	EffectiveSpeedKmh = 20.0
	MinETAMinutes     = 5
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite and within range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return math.Abs(p.Lat) <= 90 && math.Abs(p.Lng) <= 180
}

// String renders the point with six decimal places.
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// DistanceKm returns the haversine distance between a and b. The second
// return value is false when either point is missing or not finite.
func DistanceKm(a, b *Point) (float64, bool) {
	if a == nil || b == nil || !a.Valid() || !b.Valid() {
		return 0, false
	}
	if *a == *b {
		return 0, true
	}
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	// Rounding can push h fractionally outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h)), true
}

// ETAMinutes converts a distance into whole minutes of travel at the
// effective speed, never less than MinETAMinutes.
func ETAMinutes(km float64) int {
	if math.IsNaN(km) || km < 0 {
		km = 0
	}
	m := int(math.Round(km / EffectiveSpeedKmh * 60))
	if m < MinETAMinutes {
		return MinETAMinutes
	}
	return m
}

// ETA composes DistanceKm and ETAMinutes. It returns false when the
// distance cannot be computed.
func ETA(a, b *Point) (int, bool) {
	km, ok := DistanceKm(a, b)
	if !ok {
		return 0, false
	}
	return ETAMinutes(km), true
}

// FormatDistance renders a distance for display: metres below 1 km,
// otherwise kilometres with one decimal.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
