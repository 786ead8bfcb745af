package domain

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// AlertRadiusKm is the maximum subscriber distance from an event's epicentre.
const AlertRadiusKm = 10.0

// DistanceKm returns the great-circle distance between two coordinates using
// the haversine formula.
func DistanceKm(a, b Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*sinLon*sinLon

	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// WithinRadius reports whether b lies within radiusKm of a, boundary inclusive.
func WithinRadius(a, b Coordinate, radiusKm float64) bool {
	return DistanceKm(a, b) <= radiusKm
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
