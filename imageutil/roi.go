// Package imageutil provides the OpenCV-backed image operations the
// detection engine needs: region-of-interest extraction with boundary
// clipping, perspective rectification, alpha/contour/grabcut mask
// derivation, and the contrast enhancement applied before feature
// extraction.
//
// All functions here operate on gocv.Mat and own none of the Mats they are
// handed; callers remain responsible for closing both inputs and outputs.
package imageutil

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ROI is a region extracted from a parent frame, together with the offset
// at which the (possibly clipped) region begins in that parent frame's
// pixel space. Adding Offset to any coordinate recovered in the ROI's own
// pixel space reconstructs the corresponding frame-space coordinate.
type ROI struct {
	Mat    gocv.Mat
	Offset image.Point
}

// Close releases the ROI's underlying Mat.
func (r ROI) Close() error {
	return r.Mat.Close()
}

// ExtractROI returns the sub-image of img centred on center with the given
// size (both in pixels), clipped to img's boundaries. The returned ROI's
// Offset records where the clipped region starts in img; it must be added
// to any ROI-space coordinate to map it back into img's pixel space.
//
// ExtractROI reports ok=false, with a zero-valued ROI, when the requested
// window does not overlap img at all.
func ExtractROI(img gocv.Mat, center image.Point, size image.Point) (roi ROI, ok bool, err error) {
	if img.Empty() {
		return ROI{}, false, errors.New("imageutil: input image is empty")
	}
	if size.X <= 0 || size.Y <= 0 {
		return ROI{}, false, errors.Errorf("imageutil: roi size must be positive, got %v", size)
	}

	w, h := img.Cols(), img.Rows()

	x1 := center.X - size.X/2
	y1 := center.Y - size.Y/2
	x2 := x1 + size.X
	y2 := y1 + size.Y

	cx1, cy1 := max(x1, 0), max(y1, 0)
	cx2, cy2 := min(x2, w), min(y2, h)

	if cx2 <= cx1 || cy2 <= cy1 {
		return ROI{}, false, nil
	}

	rect := image.Rect(cx1, cy1, cx2, cy2)
	region := img.Region(rect)
	clone := region.Clone()
	if err := region.Close(); err != nil {
		clone.Close()
		return ROI{}, false, err
	}

	return ROI{Mat: clone, Offset: image.Pt(cx1, cy1)}, true, nil
}
