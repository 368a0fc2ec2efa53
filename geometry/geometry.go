// Package geometry provides the pure arithmetic primitives used to reason
// about logo positions on a rectified plate: angles, distances, centroids
// and the millimetre/pixel conversions that bridge the two coordinate
// spaces the detector works in.
//
// Every function here is allocation-free and has no dependency on OpenCV;
// the engine is expressed in millimetres everywhere except where it must
// cross into pixel space for an OpenCV-style call.
package geometry

import "math"

// Point is a planar coordinate. It is used both for millimetre positions on
// the plate and for pixel positions in a rectified frame; callers are
// responsible for keeping the two spaces straight.
type Point struct {
	X, Y float64
}

// AngleDeg returns the angle of the vector p1-p0, in degrees, using atan2.
// The result lies in (-180, 180].
func AngleDeg(p0, p1 Point) float64 {
	dx := p1.X - p0.X
	dy := p1.Y - p0.Y
	return NormalizeAngle(math.Atan2(dy, dx) * 180 / math.Pi)
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Hypot(dx, dy)
}

// PolygonCentroid returns the arithmetic mean of a nonempty set of vertices.
// Unlike the area-weighted centroid, this is defined for any nonempty set
// of points, including degenerate (collinear) polygons, which is what the
// detector needs when averaging a homography-projected quadrilateral.
func PolygonCentroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return Point{X: sx / n, Y: sy / n}
}

// CircularAngleDiff returns the minimum angular difference between two
// angles expressed in degrees, in [0, 180]. It correctly handles wraparound,
// e.g. the difference between 350 and 10 is 20, not 340.
func CircularAngleDiff(a, b float64) float64 {
	diff := math.Abs(a - b)
	diff = math.Mod(diff, 360)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// NormalizeAngle folds an arbitrary angle in degrees into (-180, 180].
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	switch {
	case deg <= -180:
		deg += 360
	case deg > 180:
		deg -= 360
	}
	return deg
}

// MMToPX converts a millimetre coordinate to pixels, given the plate's
// mm_per_px scale. It scales by the multiplicative inverse of mmPerPx.
func MMToPX(xMM, yMM, mmPerPx float64) Point {
	scale := 1.0 / mmPerPx
	return Point{X: xMM * scale, Y: yMM * scale}
}

// PXToMM converts a pixel coordinate to millimetres, given the plate's
// mm_per_px scale.
func PXToMM(xPx, yPx, mmPerPx float64) Point {
	return Point{X: xPx * mmPerPx, Y: yPx * mmPerPx}
}
