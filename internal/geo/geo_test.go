package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		expectedM float64
		tolerance float64
	}{
		{
			name:      "same location",
			a:         Point{Lat: 40.736097, Lng: -74.039373},
			b:         Point{Lat: 40.736097, Lng: -74.039373},
			expectedM: 0,
			tolerance: 0.001,
		},
		{
			name:      "one degree of longitude at the equator",
			a:         Point{Lat: 0, Lng: 0},
			b:         Point{Lat: 0, Lng: 1},
			expectedM: 111195,
			tolerance: 50,
		},
		{
			name:      "one degree of latitude",
			a:         Point{Lat: 52, Lng: 13},
			b:         Point{Lat: 53, Lng: 13},
			expectedM: 111195,
			tolerance: 50,
		},
		{
			name:      "new york to boston",
			a:         Point{Lat: 40.7128, Lng: -74.0060},
			b:         Point{Lat: 42.3601, Lng: -71.0589},
			expectedM: 306000,
			tolerance: 5000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.a, tt.b)
			assert.InDelta(t, tt.expectedM, got, tt.tolerance)
		})
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := Point{Lat: 48.8566, Lng: 2.3522}
	b := Point{Lat: 51.5074, Lng: -0.1278}
	assert.InDelta(t, Haversine(a, b), Haversine(b, a), 1e-9)
}

func TestInCircleBoundary(t *testing.T) {
	center := Point{Lat: 0, Lng: 0}
	p := Point{Lat: 0, Lng: 0.001}
	dist := Haversine(p, center)

	// Exactly on the boundary counts as inside.
	assert.True(t, InCircle(p, center, dist))
	assert.True(t, InCircle(p, center, dist+1))
	assert.False(t, InCircle(p, center, dist*0.99))
}

func TestInPolygon(t *testing.T) {
	square := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 1},
		{Lat: 1, Lng: 1},
		{Lat: 1, Lng: 0},
	}

	tests := []struct {
		name   string
		p      Point
		inside bool
	}{
		{"center", Point{Lat: 0.5, Lng: 0.5}, true},
		{"outside east", Point{Lat: 0.5, Lng: 1.5}, false},
		{"outside north", Point{Lat: 1.5, Lng: 0.5}, false},
		{"far away", Point{Lat: -20, Lng: 60}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.inside, InPolygon(tt.p, square))
		})
	}
}

// Containment must not depend on where the ring starts or which way it
// winds.
func TestInPolygonRingInvariance(t *testing.T) {
	ring := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 1},
		{Lat: 1, Lng: 1},
		{Lat: 1, Lng: 0},
	}
	p := Point{Lat: 0.25, Lng: 0.75}

	want := InPolygon(p, ring)

	rotated := append(ring[2:], ring[:2]...)
	assert.Equal(t, want, InPolygon(p, rotated))

	reversed := make([]Point, len(ring))
	for i, v := range ring {
		reversed[len(ring)-1-i] = v
	}
	assert.Equal(t, want, InPolygon(p, reversed))
}

func TestInPolygonDegenerateRing(t *testing.T) {
	assert.False(t, InPolygon(Point{}, nil))
	assert.False(t, InPolygon(Point{}, []Point{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}))
}

func timedLine(lats, lngs []float64) []TimedPoint {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	out := make([]TimedPoint, len(lats))
	for i := range lats {
		out[i] = TimedPoint{
			Point: Point{Lat: lats[i], Lng: lngs[i]},
			Time:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestSimplifyStraightLine(t *testing.T) {
	points := timedLine(
		[]float64{0, 0, 0, 0, 0},
		[]float64{0, 0.01, 0.02, 0.03, 0.04},
	)

	got := Simplify(points, 10)
	assert.Len(t, got, 2)
	assert.Equal(t, points[0], got[0])
	assert.Equal(t, points[4], got[1])
}

func TestSimplifyKeepsSignificantDeviation(t *testing.T) {
	// Middle point deviates ~1.1 km from the straight line.
	points := timedLine(
		[]float64{0, 0.01, 0},
		[]float64{0, 0.01, 0.02},
	)

	got := Simplify(points, 100)
	assert.Len(t, got, 3)
}

func TestSimplifyDeviationWithinTolerance(t *testing.T) {
	// ~11 m deviation, below a 50 m tolerance.
	points := timedLine(
		[]float64{0, 0.0001, 0},
		[]float64{0, 0.01, 0.02},
	)

	got := Simplify(points, 50)
	assert.Len(t, got, 2)
}

func TestSimplifyShortInputCopied(t *testing.T) {
	points := timedLine([]float64{1, 2}, []float64{3, 4})

	got := Simplify(points, 10)
	assert.Equal(t, points, got)

	// Must be a copy, not an alias.
	got[0].Lat = 99
	assert.Equal(t, 1.0, points[0].Lat)
}

func TestSimplifyZeroEpsilonKeepsAll(t *testing.T) {
	points := timedLine([]float64{0, 0, 0}, []float64{0, 0.01, 0.02})
	assert.Len(t, Simplify(points, 0), 3)
}

func TestPerpendicularDistanceZeroLengthSegment(t *testing.T) {
	a := Point{Lat: 10, Lng: 10}
	p := Point{Lat: 10, Lng: 10.001}
	d := perpendicularDistance(p, a, a)
	assert.InDelta(t, Haversine(p, a), d, 1.0)
	assert.False(t, math.IsNaN(d))
}
