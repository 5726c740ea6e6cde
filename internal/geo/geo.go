package geo

import "math"

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000.0

// Coordinates is a point on the Earth's surface in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the great-circle distance in meters between two points,
// computed with the spherical law of cosines.
func Distance(from, to Coordinates) float64 {
	if from == to {
		return 0
	}
	const dr = math.Pi / 180.0
	cos := math.Sin(from.Lat*dr)*math.Sin(to.Lat*dr) +
		math.Cos(from.Lat*dr)*math.Cos(to.Lat*dr)*math.Cos(math.Abs(from.Lng-to.Lng)*dr)
	// rounding can push nearly identical points just outside acos' domain
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * EarthRadius
}
