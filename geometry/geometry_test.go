package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAngleDegCardinalDirections(t *testing.T) {
	origin := Point{0, 0}

	assert.InDelta(t, 0.0, AngleDeg(origin, Point{1, 0}), 1e-9)
	assert.InDelta(t, 90.0, AngleDeg(origin, Point{0, 1}), 1e-9)
	assert.InDelta(t, 180.0, AngleDeg(origin, Point{-1, 0}), 1e-9)
	assert.InDelta(t, -90.0, AngleDeg(origin, Point{0, -1}), 1e-9)
}

func TestAngleDegRoundTrip(t *testing.T) {
	for _, theta := range []float64{-179, -90, -0.5, 0, 0.5, 45, 90, 179, 180} {
		rad := theta * math.Pi / 180
		got := AngleDeg(Point{0, 0}, Point{math.Cos(rad), math.Sin(rad)})
		assert.InDelta(t, theta, got, 1e-6)
	}
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, Distance(Point{0, 0}, Point{3, 4}))
	assert.Equal(t, 0.0, Distance(Point{1, 1}, Point{1, 1}))
}

func TestPolygonCentroidSquare(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	c := PolygonCentroid(square)
	assert.InDelta(t, 5.0, c.X, 1e-9)
	assert.InDelta(t, 5.0, c.Y, 1e-9)
}

func TestPolygonCentroidSinglePoint(t *testing.T) {
	c := PolygonCentroid([]Point{{3, 4}})
	assert.Equal(t, Point{3, 4}, c)
}

func TestPolygonCentroidEmpty(t *testing.T) {
	c := PolygonCentroid(nil)
	assert.Equal(t, Point{}, c)
}

func TestCircularAngleDiff(t *testing.T) {
	assert.InDelta(t, 20.0, CircularAngleDiff(350, 10), 1e-9)
	assert.InDelta(t, 20.0, CircularAngleDiff(10, 350), 1e-9)
	assert.InDelta(t, 0.0, CircularAngleDiff(10, 10), 1e-9)
	assert.InDelta(t, 180.0, CircularAngleDiff(0, 180), 1e-9)
	assert.InDelta(t, 5.0, CircularAngleDiff(-178, 177), 1e-9)
}

func TestCircularAngleDiffRange(t *testing.T) {
	for a := -180.0; a <= 180; a += 37 {
		for b := -180.0; b <= 180; b += 53 {
			d := CircularAngleDiff(a, b)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.LessOrEqual(t, d, 180.0)
		}
	}
}

func TestNormalizeAngle(t *testing.T) {
	assert.InDelta(t, 180.0, NormalizeAngle(180), 1e-9)
	assert.InDelta(t, -179.0, NormalizeAngle(181), 1e-9)
	assert.InDelta(t, 0.0, NormalizeAngle(360), 1e-9)
	assert.InDelta(t, 10.0, NormalizeAngle(370), 1e-9)
	assert.InDelta(t, -170.0, NormalizeAngle(-530), 1e-9)
}

func TestMMToPXAndBack(t *testing.T) {
	const mmPerPx = 0.5
	px := MMToPX(150, 100, mmPerPx)
	assert.InDelta(t, 300.0, px.X, 1e-9)
	assert.InDelta(t, 200.0, px.Y, 1e-9)

	mm := PXToMM(px.X, px.Y, mmPerPx)
	assert.InDelta(t, 150.0, mm.X, 1e-9)
	assert.InDelta(t, 100.0, mm.Y, 1e-9)
}

func TestMMToPXRoundTripRandomized(t *testing.T) {
	scales := []float64{0.1, 0.25, 0.5, 1.0, 2.0}
	coords := []Point{{0, 0}, {123.456, 789.012}, {-50, 300}, {300, 200}}

	for _, s := range scales {
		for _, c := range coords {
			px := MMToPX(c.X, c.Y, s)
			back := PXToMM(px.X, px.Y, s)
			assert.InDelta(t, c.X, back.X, 1e-9)
			assert.InDelta(t, c.Y, back.Y, 1e-9)
		}
	}
}
