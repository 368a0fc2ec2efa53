package matching

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Point2 is a plain 2D point in whatever pixel space the caller is working
// in (template space or ROI space); it carries no unit information.
type Point2 struct {
	X, Y float64
}

// RansacResult is the outcome of a RANSAC homography estimation.
type RansacResult struct {
	H             [9]float64
	Inliers       []bool
	InlierCount   int
	MeanReprojErr float64
	OK            bool
}

// EstimateHomographyRANSAC fits a homography mapping src points to dst
// points, rejecting outlier correspondences via RANSAC. ransacReprojThresh
// is the pixel-space distance below which a correspondence counts as an
// inlier. seed controls the sampling sequence: identical src, dst,
// threshold and seed always produce an identical result, since no other
// source of randomness is involved.
//
// This hand-rolled RANSAC (rather than a vision-library binding) exists
// specifically because the engine's determinism contract needs a sampler
// whose seed it controls end to end.
func EstimateHomographyRANSAC(src, dst []Point2, ransacReprojThresh float64, seed int64) RansacResult {
	n := len(src)
	if n < 4 || len(dst) != n {
		return RansacResult{}
	}

	const maxIters = 1000
	rng := rand.New(rand.NewSource(seed))

	bestCount := -1
	bestErr := math.Inf(1)
	var bestH [9]float64
	var bestInliers []bool

	for iter := 0; iter < maxIters; iter++ {
		idx := sampleFour(rng, n)
		sampleSrc := []Point2{src[idx[0]], src[idx[1]], src[idx[2]], src[idx[3]]}
		sampleDst := []Point2{dst[idx[0]], dst[idx[1]], dst[idx[2]], dst[idx[3]]}

		h, ok := fitHomographyDLT(sampleSrc, sampleDst)
		if !ok {
			continue
		}

		inliers, count, meanErr := classifyInliers(h, src, dst, ransacReprojThresh)
		if count > bestCount || (count == bestCount && meanErr < bestErr) {
			bestCount = count
			bestErr = meanErr
			bestH = h
			bestInliers = inliers
		}
	}

	if bestCount < 4 {
		return RansacResult{}
	}

	// Refit using every inlier from the winning hypothesis; a least-squares
	// fit over the full inlier set is more accurate than the minimal
	// 4-point sample that found it.
	refinedSrc := make([]Point2, 0, bestCount)
	refinedDst := make([]Point2, 0, bestCount)
	for i, in := range bestInliers {
		if in {
			refinedSrc = append(refinedSrc, src[i])
			refinedDst = append(refinedDst, dst[i])
		}
	}
	refinedH, ok := fitHomographyDLT(refinedSrc, refinedDst)
	if !ok {
		refinedH = bestH
	}

	finalInliers, finalCount, finalErr := classifyInliers(refinedH, src, dst, ransacReprojThresh)
	return RansacResult{
		H:             refinedH,
		Inliers:       finalInliers,
		InlierCount:   finalCount,
		MeanReprojErr: finalErr,
		OK:            true,
	}
}

func sampleFour(rng *rand.Rand, n int) [4]int {
	var idx [4]int
	for i := range idx {
		for {
			candidate := rng.Intn(n)
			dup := false
			for j := 0; j < i; j++ {
				if idx[j] == candidate {
					dup = true
					break
				}
			}
			if !dup {
				idx[i] = candidate
				break
			}
		}
	}
	return idx
}

// classifyInliers reprojects every src point through h and marks it an
// inlier if its distance to the corresponding dst point is below thresh.
// meanErr is the mean reprojection error over inliers only (+Inf if none).
func classifyInliers(h [9]float64, src, dst []Point2, thresh float64) ([]bool, int, float64) {
	inliers := make([]bool, len(src))
	count := 0
	sumErr := 0.0
	for i := range src {
		proj := projectPoint(h, src[i])
		d := math.Hypot(proj.X-dst[i].X, proj.Y-dst[i].Y)
		if d < thresh {
			inliers[i] = true
			count++
			sumErr += d
		}
	}
	if count == 0 {
		return inliers, 0, math.Inf(1)
	}
	return inliers, count, sumErr / float64(count)
}

// projectPoint applies a row-major 3x3 homography to a point in
// homogeneous coordinates.
func projectPoint(h [9]float64, p Point2) Point2 {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point2{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point2{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// fitHomographyDLT solves for the homography mapping src to dst via the
// direct linear transform: the least-squares solution is the right
// singular vector of the stacked correspondence matrix associated with its
// smallest singular value. It requires at least 4 correspondences, and
// works for any n >= 4 (used both for minimal RANSAC samples and for the
// full-inlier refit).
func fitHomographyDLT(src, dst []Point2) ([9]float64, bool) {
	n := len(src)
	if n < 4 {
		return [9]float64{}, false
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return [9]float64{}, false
	}

	var vMat mat.Dense
	svd.VTo(&vMat)

	_, cols := vMat.Dims()
	last := cols - 1
	var h [9]float64
	for r := 0; r < 9; r++ {
		h[r] = vMat.At(r, last)
	}

	if h[8] == 0 {
		return [9]float64{}, false
	}
	scale := 1.0 / h[8]
	for i := range h {
		h[i] *= scale
	}
	return h, true
}
