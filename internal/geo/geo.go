// Package geo provides the pure geometric primitives used by the tracking
// core: great-circle distance, containment tests and polyline
// simplification. All functions are stateless and safe for concurrent use.
package geo

import (
	"math"
	"time"
)

// EarthRadiusM is the Earth's mean radius in meters.
const EarthRadiusM = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimedPoint is a position fix with its observation time, as stored in the
// history log.
type TimedPoint struct {
	Point
	Time time.Time `json:"time"`
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// InCircle reports whether p lies within radiusMeters of center. The
// boundary (distance == radius) counts as inside.
func InCircle(p, center Point, radiusMeters float64) bool {
	return Haversine(p, center) <= radiusMeters
}

// InPolygon reports whether p lies inside the ring using the ray-casting
// parity test. The ring is treated as open: the edge from the last vertex
// back to the first is implied. Rings with fewer than 3 vertices never
// contain anything.
func InPolygon(p Point, ring []Point) bool {
	if len(ring) < 3 {
		return false
	}

	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			cross := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Simplify reduces a polyline of fixes with the Douglas-Peucker algorithm.
// The first and last points are always kept, and no removed point deviates
// more than epsilonMeters from the segment that replaces it. Perpendicular
// distance is computed on a local planar projection, which is accurate for
// the span of a vehicle track.
func Simplify(points []TimedPoint, epsilonMeters float64) []TimedPoint {
	if len(points) <= 2 || epsilonMeters <= 0 {
		out := make([]TimedPoint, len(points))
		copy(out, points)
		return out
	}

	keep := make([]bool, len(points))
	keep[0], keep[len(points)-1] = true, true
	simplifySegment(points, 0, len(points)-1, epsilonMeters, keep)

	out := make([]TimedPoint, 0, len(points))
	for i, k := range keep {
		if k {
			out = append(out, points[i])
		}
	}
	return out
}

func simplifySegment(points []TimedPoint, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}

	maxDist := 0.0
	maxIdx := first
	for i := first + 1; i < last; i++ {
		d := perpendicularDistance(points[i].Point, points[first].Point, points[last].Point)
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist > epsilon {
		keep[maxIdx] = true
		simplifySegment(points, first, maxIdx, epsilon, keep)
		simplifySegment(points, maxIdx, last, epsilon, keep)
	}
}

// perpendicularDistance projects onto a plane tangent at segment start and
// measures the distance from p to the a-b segment in meters.
func perpendicularDistance(p, a, b Point) float64 {
	// Meters per degree at this latitude.
	latScale := EarthRadiusM * math.Pi / 180
	lngScale := latScale * math.Cos(toRad(a.Lat))

	px := (p.Lng - a.Lng) * lngScale
	py := (p.Lat - a.Lat) * latScale
	bx := (b.Lng - a.Lng) * lngScale
	by := (b.Lat - a.Lat) * latScale

	segLenSq := bx*bx + by*by
	if segLenSq == 0 {
		return math.Hypot(px, py)
	}

	t := (px*bx + py*by) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(px-t*bx, py-t*by)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
