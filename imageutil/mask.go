package imageutil

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// TransparencyMethod selects how a binary matchable-region mask is derived
// from a template that is expected to carry transparency.
type TransparencyMethod string

const (
	// MethodThreshold binarises the alpha channel at its midpoint.
	MethodThreshold TransparencyMethod = "threshold"
	// MethodContour finds external contours in the alpha channel and fills
	// them, smoothing over small holes left by anti-aliased edges.
	MethodContour TransparencyMethod = "contour"
	// MethodGrabCut runs iterative foreground segmentation seeded by the
	// alpha hint, for templates whose alpha channel is only a rough guide.
	MethodGrabCut TransparencyMethod = "grabcut"
)

// AlphaChannel extracts the alpha plane of a 4-channel (BGRA) Mat. It
// returns ok=false if img does not carry an alpha channel.
func AlphaChannel(img gocv.Mat) (alpha gocv.Mat, ok bool, err error) {
	if img.Channels() != 4 {
		return gocv.Mat{}, false, nil
	}
	channels := gocv.Split(img)
	defer func() {
		for i, ch := range channels {
			if i != 3 {
				ch.Close()
			}
		}
	}()
	if len(channels) != 4 {
		return gocv.Mat{}, false, errors.New("imageutil: unexpected channel count splitting BGRA mat")
	}
	return channels[3], true, nil
}

// DeriveMask produces a single-channel 8-bit binary mask (0 or 255) that
// governs which pixels of a template participate in feature extraction and
// fallback correlation, per the requested TransparencyMethod.
//
// alpha is the template's alpha plane (see AlphaChannel); it is read but
// not closed by DeriveMask. gray is the template converted to grayscale,
// used as the image to segment when method is MethodGrabCut.
func DeriveMask(method TransparencyMethod, alpha gocv.Mat, gray gocv.Mat) (gocv.Mat, error) {
	if alpha.Empty() {
		return gocv.Mat{}, errors.New("imageutil: alpha plane is empty")
	}

	switch method {
	case MethodThreshold, "":
		return thresholdMask(alpha)
	case MethodContour:
		return contourMask(alpha)
	case MethodGrabCut:
		return grabCutMask(alpha, gray)
	default:
		return gocv.Mat{}, errors.Errorf("imageutil: unsupported transparency method %q", method)
	}
}

// thresholdMask binarises the alpha channel at its midpoint value (127):
// anything more opaque than half becomes matchable.
func thresholdMask(alpha gocv.Mat) (gocv.Mat, error) {
	mask := gocv.NewMat()
	gocv.Threshold(alpha, &mask, 127, 255, gocv.ThresholdBinary)
	return mask, nil
}

// contourMask binarises the alpha channel, finds its external contours and
// fills them solid, closing small gaps an anti-aliased silhouette leaves in
// a plain threshold.
func contourMask(alpha gocv.Mat) (gocv.Mat, error) {
	binary, err := thresholdMask(alpha)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer binary.Close()

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	mask := gocv.NewMatWithSize(alpha.Rows(), alpha.Cols(), gocv.MatTypeCV8UC1)
	white := gocv.Scalar{Val1: 255, Val2: 255, Val3: 255, Val4: 255}
	for i := 0; i < contours.Size(); i++ {
		gocv.DrawContours(&mask, contours, i, white, -1)
	}
	return mask, nil
}

// grabCutMask runs OpenCV's iterative foreground segmentation, seeded by the
// alpha hint's bounding box, to recover a mask for templates whose alpha
// channel is present but only loosely traces the logo's silhouette.
func grabCutMask(alpha gocv.Mat, gray gocv.Mat) (gocv.Mat, error) {
	if gray.Empty() {
		return gocv.Mat{}, errors.New("imageutil: grabcut requires a grayscale reference image")
	}

	binary, err := thresholdMask(alpha)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer binary.Close()

	seedRect := boundingBoxOfNonZero(binary)
	if seedRect.Empty() {
		return gocv.Mat{}, errors.New("imageutil: alpha hint has no non-zero region to seed grabcut")
	}

	color := gocv.NewMat()
	defer color.Close()
	gocv.CvtColor(gray, &color, gocv.ColorGrayToBGR)

	gcMask := gocv.NewMatWithSize(gray.Rows(), gray.Cols(), gocv.MatTypeCV8UC1)
	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	gocv.GrabCut(color, &gcMask, seedRect, &bgdModel, &fgdModel, 5, gocv.GCInitWithRect)

	mask := gocv.NewMat()
	// GrabCut labels pixels 0 (background), 1 (foreground), 2 (probable
	// background) and 3 (probable foreground); treat the two foreground
	// labels as matchable.
	gocv.InRangeWithScalar(gcMask,
		gocv.NewScalar(1, 0, 0, 0),
		gocv.NewScalar(1, 0, 0, 0),
		&mask)
	probable := gocv.NewMat()
	defer probable.Close()
	gocv.InRangeWithScalar(gcMask,
		gocv.NewScalar(3, 0, 0, 0),
		gocv.NewScalar(3, 0, 0, 0),
		&probable)
	gocv.BitwiseOr(mask, probable, &mask)
	gcMask.Close()

	return mask, nil
}

// boundingBoxOfNonZero returns the smallest rectangle enclosing every
// non-zero pixel of a single-channel mask.
func boundingBoxOfNonZero(mask gocv.Mat) image.Rectangle {
	nz := gocv.NewMat()
	defer nz.Close()
	gocv.FindNonZero(mask, &nz)
	if nz.Empty() || nz.Rows() == 0 {
		return image.Rectangle{}
	}
	return gocv.BoundingRect(nz)
}
