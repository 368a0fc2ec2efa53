// Package fallback implements the exhaustive scale x angle template
// matcher used when the primary feature-matching path fails to produce an
// accepted pose. It is deliberately simple relative to the primary path:
// no descriptors, no RANSAC, just normalized cross-correlation over a
// small hypothesis grid.
package fallback

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/alignpress/engine/config"
)

// Result is the outcome of a fallback search.
type Result struct {
	Found      bool
	CenterPX   image.Point // relative to the ROI's own pixel space
	AngleDeg   float64
	Confidence float64 // the winning correlation score
}

// Search renders the template at every (scale, angle) combination in
// params' grid, restricted by mask when provided, and scores each
// hypothesis against roi by normalized cross-correlation. It reports the
// best-scoring hypothesis if its score exceeds params.MatchThreshold.
func Search(roi gocv.Mat, templateGray gocv.Mat, mask gocv.Mat, templateAngleDeg float64, params config.FallbackParams) (Result, error) {
	best := Result{}
	bestScore := float32(-1)

	for _, scale := range params.Scales {
		for _, angleOffset := range params.AnglesDeg {
			rendered, renderedMask, size, ok := transformTemplate(templateGray, mask, scale, angleOffset)
			if !ok {
				continue
			}

			if size.X > roi.Cols() || size.Y > roi.Rows() {
				rendered.Close()
				if !renderedMask.Empty() {
					renderedMask.Close()
				}
				continue
			}

			score, loc, ok := matchTemplate(roi, rendered, renderedMask)
			rendered.Close()
			if !renderedMask.Empty() {
				renderedMask.Close()
			}
			if !ok {
				continue
			}

			if score > bestScore {
				bestScore = score
				best = Result{
					Found:      true,
					CenterPX:   image.Pt(loc.X+size.X/2, loc.Y+size.Y/2),
					AngleDeg:   templateAngleDeg + angleOffset,
					Confidence: float64(score),
				}
			}
		}
	}

	if !best.Found || float64(bestScore) <= params.MatchThreshold {
		return Result{}, nil
	}
	return best, nil
}

// transformTemplate produces a rotated and scaled copy of the template
// (and its mask, if present), recentred so no content is clipped by the
// rotation.
func transformTemplate(gray gocv.Mat, mask gocv.Mat, scale, angleDeg float64) (out gocv.Mat, outMask gocv.Mat, size image.Point, ok bool) {
	if gray.Empty() || scale <= 0 {
		return gocv.Mat{}, gocv.Mat{}, image.Point{}, false
	}

	w, h := gray.Cols(), gray.Rows()
	center := image.Pt(w/2, h/2)

	diag := math.Hypot(float64(w), float64(h)) * scale
	outSize := image.Pt(int(math.Ceil(diag)), int(math.Ceil(diag)))

	rot := gocv.GetRotationMatrix2D(image.Pt(w/2, h/2), angleDeg, scale)
	defer rot.Close()
	// Recentre the rotation so the padded output frame keeps the content
	// in view instead of rotating about the original, smaller frame.
	rot.SetDoubleAt(0, 2, rot.GetDoubleAt(0, 2)+float64(outSize.X)/2-float64(center.X))
	rot.SetDoubleAt(1, 2, rot.GetDoubleAt(1, 2)+float64(outSize.Y)/2-float64(center.Y))

	warped := gocv.NewMat()
	gocv.WarpAffine(gray, &warped, rot, outSize)

	var warpedMask gocv.Mat
	if !mask.Empty() {
		warpedMask = gocv.NewMat()
		gocv.WarpAffine(mask, &warpedMask, rot, outSize)
	}

	return warped, warpedMask, outSize, true
}

// matchTemplate runs normalized cross-correlation of templ against roi,
// restricted to mask when non-empty, and returns the peak score and its
// top-left location.
func matchTemplate(roi, templ, mask gocv.Mat) (float32, image.Point, bool) {
	if templ.Cols() > roi.Cols() || templ.Rows() > roi.Rows() {
		return 0, image.Point{}, false
	}

	result := gocv.NewMat()
	defer result.Close()

	if !mask.Empty() {
		gocv.MatchTemplateWithMask(roi, templ, &result, gocv.TmCcoeffNormed, mask)
	} else {
		gocv.MatchTemplate(roi, templ, &result, gocv.TmCcoeffNormed, gocv.NewMat())
	}

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	return maxVal, maxLoc, true
}
