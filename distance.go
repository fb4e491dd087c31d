package co2bed

import "math"

// EarthRadiusKm is the mean Earth radius used by GreatCircleDistanceKm.
const EarthRadiusKm = 6371.0

// DefaultRoadDistanceFactor leaves road distances as the great-circle
// distance. WithRoadDistanceFactor(1.2) approximates real road routing.
const DefaultRoadDistanceFactor = 1.0

// GreatCircleDistanceKm returns the haversine distance between a and b on a
// sphere of radius EarthRadiusKm.
func GreatCircleDistanceKm(a, b Point) float64 {
	φ1 := a.Lat * math.Pi / 180
	φ2 := b.Lat * math.Pi / 180
	Δφ := (b.Lat - a.Lat) * math.Pi / 180
	Δλ := (b.Lon - a.Lon) * math.Pi / 180

	sinΔφ := math.Sin(Δφ / 2)
	sinΔλ := math.Sin(Δλ / 2)
	h := sinΔφ*sinΔφ + math.Cos(φ1)*math.Cos(φ2)*sinΔλ*sinΔλ
	// Rounding can push h just outside [0, 1] for antipodal points.
	h = math.Min(math.Max(h, 0), 1)

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
