package imageutil

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Homography is a 3x3 row-major projective transform mapping raw camera
// pixels to rectified plate pixels.
type Homography [9]float64

// Identity is the no-op homography, used when a frame is already
// plate-aligned and no calibration is available.
var Identity = Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}

// IsIdentity reports whether h is exactly the identity matrix.
func (h Homography) IsIdentity() bool {
	return h == Identity
}

// Determinant2x2 returns the determinant of the homography's top-left 2x2
// block, used to reject reflective or degenerate transforms.
func (h Homography) Determinant2x2() float64 {
	return h[0]*h[4] - h[1]*h[3]
}

// Determinant3x3 returns the determinant of the full matrix, used to check
// that the homography is non-singular.
func (h Homography) Determinant3x3() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

// Finite reports whether every entry of h is a finite number.
func (h Homography) Finite() bool {
	for _, v := range h {
		if v != v || v > 1e308 || v < -1e308 { // NaN and overflow guard
			return false
		}
	}
	return true
}

// ToMat builds the gocv.Mat representation of the homography, suitable for
// cv2-style warpPerspective/perspectiveTransform calls. The caller owns the
// returned Mat and must Close it.
func (h Homography) ToMat() gocv.Mat {
	mat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			mat.SetDoubleAt(r, c, h[r*3+c])
		}
	}
	return mat
}

// Rectify warps frame into plate coordinates using the given homography and
// target size (in pixels). If h is the identity matrix, the frame is
// returned unchanged (cloned, so ownership is uniform regardless of path).
func Rectify(frame gocv.Mat, h Homography, size image.Point) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, errors.New("imageutil: input frame is empty")
	}
	if size.X <= 0 || size.Y <= 0 {
		return gocv.Mat{}, errors.Errorf("imageutil: rectified size must be positive, got %v", size)
	}
	if !h.Finite() {
		return gocv.Mat{}, errors.New("imageutil: homography contains non-finite values")
	}
	if det := h.Determinant3x3(); det == 0 {
		return gocv.Mat{}, errors.New("imageutil: homography is singular")
	}

	if h.IsIdentity() {
		return frame.Clone(), nil
	}

	hMat := h.ToMat()
	defer hMat.Close()

	out := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(frame, &out, hMat, size,
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return out, nil
}
