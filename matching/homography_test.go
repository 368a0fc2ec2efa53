package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// applyH is a test-local alias for projectPoint, used to build synthetic
// correspondences from a known ground-truth homography.
func applyH(h [9]float64, p Point2) Point2 {
	return projectPoint(h, p)
}

func TestEstimateHomographyRANSACRecoversPureTranslation(t *testing.T) {
	h := [9]float64{1, 0, 15, 0, 1, 7, 0, 0, 1}

	src := []Point2{{0, 0}, {50, 0}, {50, 50}, {0, 50}, {25, 25}, {10, 40}}
	dst := make([]Point2, len(src))
	for i, p := range src {
		dst[i] = applyH(h, p)
	}

	result := EstimateHomographyRANSAC(src, dst, 1.0, 42)
	require.True(t, result.OK)
	assert.Equal(t, len(src), result.InlierCount)
	assert.Less(t, result.MeanReprojErr, 1e-6)

	for i, p := range src {
		got := projectPoint(result.H, p)
		assert.InDelta(t, dst[i].X, got.X, 1e-3)
		assert.InDelta(t, dst[i].Y, got.Y, 1e-3)
	}
}

func TestEstimateHomographyRANSACRejectsOutliers(t *testing.T) {
	h := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

	src := []Point2{{0, 0}, {50, 0}, {50, 50}, {0, 50}, {25, 25}, {10, 40}, {30, 5}}
	dst := make([]Point2, len(src))
	for i, p := range src {
		dst[i] = applyH(h, p)
	}
	// Corrupt one correspondence far from the true mapping.
	dst[len(dst)-1] = Point2{X: 900, Y: 900}

	result := EstimateHomographyRANSAC(src, dst, 2.0, 7)
	require.True(t, result.OK)
	assert.Equal(t, len(src)-1, result.InlierCount)
	assert.False(t, result.Inliers[len(dst)-1])
}

func TestEstimateHomographyRANSACIsDeterministicForFixedSeed(t *testing.T) {
	h := [9]float64{0.98, 0.02, 12, -0.02, 0.97, 30, 0.0001, -0.0002, 1}

	src := []Point2{{0, 0}, {60, 0}, {60, 40}, {0, 40}, {30, 20}, {10, 35}, {50, 5}}
	dst := make([]Point2, len(src))
	for i, p := range src {
		dst[i] = applyH(h, p)
	}

	a := EstimateHomographyRANSAC(src, dst, 1.0, 99)
	b := EstimateHomographyRANSAC(src, dst, 1.0, 99)
	assert.Equal(t, a.H, b.H)
	assert.Equal(t, a.InlierCount, b.InlierCount)
}

func TestEstimateHomographyRANSACFailsWithTooFewPoints(t *testing.T) {
	result := EstimateHomographyRANSAC([]Point2{{0, 0}, {1, 1}}, []Point2{{0, 0}, {1, 1}}, 1.0, 1)
	assert.False(t, result.OK)
}

func TestProjectPointIdentity(t *testing.T) {
	id := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	p := projectPoint(id, Point2{X: 12.5, Y: -3.25})
	assert.InDelta(t, 12.5, p.X, 1e-12)
	assert.InDelta(t, -3.25, p.Y, 1e-12)
}

func TestProjectPointScalesByPerspectiveDivisor(t *testing.T) {
	h := [9]float64{2, 0, 0, 0, 2, 0, 0, 0, 2}
	p := projectPoint(h, Point2{X: 4, Y: 6})
	assert.InDelta(t, 4, p.X, 1e-12)
	assert.InDelta(t, 6, p.Y, 1e-12)
}
