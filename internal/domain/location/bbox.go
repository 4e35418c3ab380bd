package location

import "math"

// Meters per degree of latitude, and approximately per degree of longitude at
// the equator.
const metersPerDegree = 111320.0

// Floor on cos(latitude) so longitude spans stay bounded near the poles.
const minCosLat = 0.01

// boundingBox is an axis-aligned pre-filter rectangle in degrees.
type boundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// boundingBoxForRadius computes the coarse filter box for a radius search
// around (lat, lon). The box is inflated by 10% so candidates sitting exactly
// on the radius are not lost to the degree conversion, and clamped to valid
// coordinate ranges. Boxes that would cross the ±180° meridian are clamped
// rather than wrapped; locations within radius but across the dateline can be
// missed. That is a known limitation accepted for the ≤10 km radii this
// search is used with.
func boundingBoxForRadius(lat, lon, radiusMeters float64) boundingBox {
	buffered := radiusMeters * 1.1

	latDelta := buffered / metersPerDegree

	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < minCosLat {
		cosLat = minCosLat
	}
	lonDelta := buffered / (metersPerDegree * cosLat)

	return boundingBox{
		MinLat: clamp(lat-latDelta, -90, 90),
		MaxLat: clamp(lat+latDelta, -90, 90),
		MinLon: clamp(lon-lonDelta, -180, 180),
		MaxLon: clamp(lon+lonDelta, -180, 180),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
