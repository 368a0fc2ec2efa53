package imageutil

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// claheClipLimit and claheTileSize mirror the contrast-limited adaptive
// histogram equalisation parameters used when preparing frames and
// templates for feature detection: a clip limit of 2.0 avoids amplifying
// noise in flat fabric regions, and an 8x8 tile grid adapts to local
// lighting without over-fragmenting small logos.
const (
	claheClipLimit = 2.0
	claheTileSize  = 8
)

// ToGray converts img to single-channel grayscale, tolerating inputs that
// are already grayscale (returned as a clone) or carry an alpha channel
// (converted from BGRA, dropping alpha).
func ToGray(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.Mat{}, errors.New("imageutil: input image is empty")
	}

	switch img.Channels() {
	case 1:
		return img.Clone(), nil
	case 3:
		gray := gocv.NewMat()
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
		return gray, nil
	case 4:
		gray := gocv.NewMat()
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
		return gray, nil
	default:
		return gocv.Mat{}, errors.Errorf("imageutil: cannot convert %d-channel image to grayscale", img.Channels())
	}
}

// EnhanceContrast applies CLAHE to a single-channel grayscale image,
// improving feature repeatability under uneven press-bay lighting before
// descriptors are extracted from either a live frame or a stored template.
func EnhanceContrast(gray gocv.Mat) (gocv.Mat, error) {
	if gray.Empty() {
		return gocv.Mat{}, errors.New("imageutil: input image is empty")
	}
	if gray.Channels() != 1 {
		return gocv.Mat{}, errors.New("imageutil: contrast enhancement requires a single-channel image")
	}

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileSize, claheTileSize))
	defer clahe.Close()

	out := gocv.NewMat()
	clahe.Apply(gray, &out)
	return out, nil
}
