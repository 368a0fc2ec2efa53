// Package engine implements the per-frame planar logo detector: for each
// configured logo it rectifies the frame, extracts a search ROI, runs
// feature matching plus RANSAC pose recovery, falls back to exhaustive
// template matching when that fails, and assembles an ordered list of
// results. The engine is stateless across frames; everything here is a
// pure function of (configuration, template store, one frame).
package engine

import (
	"image"
	"math"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/alignpress/engine/config"
	"github.com/alignpress/engine/fallback"
	"github.com/alignpress/engine/geometry"
	"github.com/alignpress/engine/imageutil"
	"github.com/alignpress/engine/matching"
	"github.com/alignpress/engine/template"
)

// minMatchesForRansac is the minimum number of ratio-test survivors
// required before a RANSAC homography estimate is even attempted.
const minMatchesForRansac = 4

// Engine owns a validated configuration, the loaded template store, and a
// feature detector, for the lifetime of one detection session.
type Engine struct {
	cfg        *config.Config
	store      *template.Store
	detector   *matching.Detector
	homography imageutil.Homography
}

// New constructs an Engine from a validated configuration. Construction
// fails with a *config.Error if any template is missing, unreadable, or
// too weak, per the template store's contract.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	detector, err := matching.NewDetector(cfg.Features)
	if err != nil {
		return nil, err
	}

	store, err := template.Load(cfg.Logos, detector)
	if err != nil {
		detector.Close()
		return nil, err
	}

	h := imageutil.Identity
	if cfg.Plane.Homography != nil {
		h = imageutil.Homography(*cfg.Plane.Homography)
	}

	return &Engine{cfg: cfg, store: store, detector: detector, homography: h}, nil
}

// Close releases the template store and feature detector.
func (e *Engine) Close() error {
	if err := e.store.Close(); err != nil {
		e.detector.Close()
		return err
	}
	return e.detector.Close()
}

// rectifiedSize is the pixel extent of the plate once rectified, derived
// from its physical size and mm_per_px.
func (e *Engine) rectifiedSize() image.Point {
	return image.Pt(
		int(math.Round(e.cfg.Plane.WidthMM/e.cfg.Plane.MMPerPX)),
		int(math.Round(e.cfg.Plane.HeightMM/e.cfg.Plane.MMPerPX)),
	)
}

// Detect runs the full pipeline over one BGR frame, in configuration
// order. homographyOverride, if non-nil, replaces the engine's configured
// homography for this call only.
func (e *Engine) Detect(frame gocv.Mat, homographyOverride *imageutil.Homography) ([]Result, error) {
	if frame.Empty() {
		return nil, errors.New("engine: input frame is empty")
	}
	if frame.Channels() != 3 {
		return nil, errors.Errorf("engine: input frame must be BGR (3 channels), got %d", frame.Channels())
	}

	h := e.homography
	if homographyOverride != nil {
		h = *homographyOverride
	}

	rectified, err := imageutil.Rectify(frame, h, e.rectifiedSize())
	if err != nil {
		return nil, errors.Wrap(err, "engine: rectifying frame")
	}
	defer rectified.Close()

	rectifiedGray, err := imageutil.ToGray(rectified)
	if err != nil {
		return nil, errors.Wrap(err, "engine: converting rectified frame to grayscale")
	}
	defer rectifiedGray.Close()

	enhanced, err := imageutil.EnhanceContrast(rectifiedGray)
	if err != nil {
		return nil, errors.Wrap(err, "engine: enhancing rectified frame contrast")
	}
	defer enhanced.Close()

	results := make([]Result, 0, len(e.store.Names()))
	for _, name := range e.store.Names() {
		results = append(results, e.detectLogo(enhanced, e.store.Get(name)))
	}
	return results, nil
}

// pose is the primary or fallback detector's raw output, before the
// engine applies coordinate conversion and tolerance checks.
type pose struct {
	centerPX   image.Point // in the ROI's own pixel space
	angleDeg   float64
	method     Method
	confidence float64
	inliers    *int
	reprojErr  *float64
}

func (e *Engine) detectLogo(frame gocv.Mat, entry *template.Entry) Result {
	start := time.Now()
	spec := entry.Spec
	elapsed := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	expectedPX := e.expectedCenterPX(spec)
	searchSize := e.searchWindowPX(spec.ROI)

	roi, ok, err := imageutil.ExtractROI(frame, expectedPX, searchSize)
	if err != nil || !ok {
		return notFound(spec.Name, StateRoiOutside, elapsed())
	}
	defer roi.Close()

	if p, state, ok := e.detectPrimary(roi.Mat, entry); ok {
		return e.finalizeResult(p, roi.Offset, spec, StateFoundPrimary, elapsed())
	} else if e.cfg.Fallback.Enabled {
		if p, ok := e.detectFallback(roi.Mat, entry); ok {
			return e.finalizeResult(p, roi.Offset, spec, StateFoundFallback, elapsed())
		}
		return notFound(spec.Name, StateFallbackFailed, elapsed())
	} else {
		return notFound(spec.Name, state, elapsed())
	}
}

// expectedCenterPX converts a logo's configured millimetre position into
// pixels in the rectified frame.
func (e *Engine) expectedCenterPX(spec config.LogoSpec) image.Point {
	p := geometry.MMToPX(spec.PositionMM[0], spec.PositionMM[1], e.cfg.Plane.MMPerPX)
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// searchWindowPX converts a logo's ROI footprint and margin factor into a
// pixel-space search window size.
func (e *Engine) searchWindowPX(roi config.RoiSpec) image.Point {
	scale := roi.MarginFactor / e.cfg.Plane.MMPerPX
	return image.Pt(
		int(math.Round(roi.WidthMM*scale)),
		int(math.Round(roi.HeightMM*scale)),
	)
}

// detectPrimary runs feature matching, RANSAC homography estimation and
// pose decomposition over the ROI. ok is false if any stage failed; state
// then explains why, for the NotFound diagnostic.
func (e *Engine) detectPrimary(roi gocv.Mat, entry *template.Entry) (pose, State, bool) {
	roiMask := gocv.NewMat()
	defer roiMask.Close()
	keypoints, descriptors := e.detector.DetectAndCompute(roi, roiMask)
	defer descriptors.Close()

	if len(keypoints) == 0 || descriptors.Empty() {
		return pose{}, StateTooFewMatches, false
	}

	matches, err := matching.MatchDescriptors(entry.Descriptors, descriptors, e.detector.NormType(), e.cfg.Matching)
	if err != nil || len(matches) < minMatchesForRansac || len(matches) < e.cfg.Thresholds.MinInliers {
		return pose{}, StateTooFewMatches, false
	}

	templatePts := make([]matching.Point2, len(matches))
	roiPts := make([]matching.Point2, len(matches))
	for i, m := range matches {
		templatePts[i] = matching.Point2{X: float64(entry.Keypoints[m.TemplateIdx].X), Y: float64(entry.Keypoints[m.TemplateIdx].Y)}
		roiPts[i] = matching.Point2{X: float64(keypoints[m.QueryIdx].X), Y: float64(keypoints[m.QueryIdx].Y)}
	}

	seed := e.cfg.Fallback.RANSACSeed
	result := matching.EstimateHomographyRANSAC(templatePts, roiPts, e.cfg.Thresholds.MaxReprojErrorPX, seed)
	if !result.OK {
		return pose{}, StateRansacRejected, false
	}

	if result.InlierCount < e.cfg.Thresholds.MinInliers {
		return pose{}, StateRansacRejected, false
	}
	if result.MeanReprojErr > e.cfg.Thresholds.MaxReprojErrorPX {
		return pose{}, StateRansacRejected, false
	}
	if !isWellConditioned(result.H) {
		return pose{}, StateRansacRejected, false
	}

	corners := entry.Corners
	projected := make([]geometry.Point, 4)
	for i, c := range corners {
		p := matching.Point2{X: float64(c.X), Y: float64(c.Y)}
		proj := projectThrough(result.H, p)
		projected[i] = geometry.Point{X: proj.X, Y: proj.Y}
	}
	centroid := geometry.PolygonCentroid(projected)
	angle := geometry.AngleDeg(projected[0], projected[1])

	confidence := ransacConfidence(result.InlierCount, len(matches), result.MeanReprojErr)

	inliers := result.InlierCount
	reprojErr := result.MeanReprojErr

	return pose{
		centerPX:   image.Pt(int(math.Round(centroid.X)), int(math.Round(centroid.Y))),
		angleDeg:   angle,
		method:     methodForFeatureType(e.detector),
		confidence: confidence,
		inliers:    &inliers,
		reprojErr:  &reprojErr,
	}, StateFoundPrimary, true
}

func (e *Engine) detectFallback(roi gocv.Mat, entry *template.Entry) (pose, bool) {
	result, err := fallback.Search(roi, entry.Gray, entry.Mask, entry.Spec.AngleDeg, e.cfg.Fallback)
	if err != nil || !result.Found {
		return pose{}, false
	}

	return pose{
		centerPX:   result.CenterPX,
		angleDeg:   geometry.NormalizeAngle(result.AngleDeg),
		method:     MethodFallback,
		confidence: result.Confidence,
	}, true
}

// finalizeResult converts a pose in ROI pixel space into the engine's
// millimetre-space Result, computing deviation and tolerance flags.
func (e *Engine) finalizeResult(p pose, roiOffset image.Point, spec config.LogoSpec, state State, elapsedMS float64) Result {
	framePX := geometry.Point{
		X: float64(p.centerPX.X + roiOffset.X),
		Y: float64(p.centerPX.Y + roiOffset.Y),
	}
	detectedMM := geometry.PXToMM(framePX.X, framePX.Y, e.cfg.Plane.MMPerPX)
	expectedMM := geometry.Point{X: spec.PositionMM[0], Y: spec.PositionMM[1]}

	errMM := geometry.Distance(detectedMM, expectedMM)
	angleErrDeg := geometry.CircularAngleDiff(p.angleDeg, spec.AngleDeg)

	position := [2]float64{detectedMM.X, detectedMM.Y}
	method := string(p.method)

	return Result{
		Name:                   spec.Name,
		Found:                  true,
		PositionMM:             &position,
		AngleDeg:               ptrF(geometry.NormalizeAngle(p.angleDeg)),
		ErrorMM:                ptrF(errMM),
		AngleErrorDeg:          ptrF(angleErrDeg),
		Confidence:             ptrF(clamp01(p.confidence)),
		Inliers:                p.inliers,
		ReprojErrorPX:          p.reprojErr,
		MethodUsed:             ptrS(method),
		ProcessingTimeMS:       elapsedMS,
		MeetsPositionTolerance: errMM <= e.cfg.Thresholds.MaxPositionErrorMM,
		MeetsAngleTolerance:    angleErrDeg <= e.cfg.Thresholds.MaxAngleErrorDeg,
		State:                  state,
	}
}

// ExpectedPositionsPX returns every configured logo's expected centre in
// rectified-frame pixel space, for UI overlays.
func (e *Engine) ExpectedPositionsPX() map[string]image.Point {
	out := make(map[string]image.Point, len(e.cfg.Logos))
	for _, spec := range e.cfg.Logos {
		out[spec.Name] = e.expectedCenterPX(spec)
	}
	return out
}

// ROIBoundsPX returns the search window bounds, in rectified-frame pixel
// space, for the named logo, or ok=false if no such logo is configured.
func (e *Engine) ROIBoundsPX(name string) (bounds image.Rectangle, ok bool) {
	for _, spec := range e.cfg.Logos {
		if spec.Name != name {
			continue
		}
		center := e.expectedCenterPX(spec)
		size := e.searchWindowPX(spec.ROI)
		x1 := center.X - size.X/2
		y1 := center.Y - size.Y/2
		return image.Rect(x1, y1, x1+size.X, y1+size.Y), true
	}
	return image.Rectangle{}, false
}

func projectThrough(h [9]float64, p matching.Point2) matching.Point2 {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return matching.Point2{X: math.Inf(1), Y: math.Inf(1)}
	}
	return matching.Point2{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// isWellConditioned rejects homographies that are technically non-singular
// but describe an implausible transform for a rigid planar logo: a
// reflection (negative 2x2 determinant) or extreme shear/scale.
func isWellConditioned(h [9]float64) bool {
	det2x2 := h[0]*h[4] - h[1]*h[3]
	if det2x2 <= 0 {
		return false
	}

	a, b, c, d := h[0], h[1], h[3], h[4]
	normF := math.Sqrt(a*a + b*b + c*c + d*d)
	if normF == 0 {
		return false
	}
	// A condition-number proxy: Frobenius norm of the 2x2 block versus its
	// determinant. A rigid rotation/uniform scale makes this exactly 1; a sheared
	// or near-singular block blows it up.
	condProxy := (normF * normF) / (2 * det2x2)
	return condProxy < 10
}

// ransacConfidence normalises inlier count against the number of tentative
// matches, tempered by reprojection error so a geometrically tight fit
// scores higher than a loose one with the same inlier ratio.
func ransacConfidence(inliers, matches int, meanReprojErr float64) float64 {
	if matches == 0 {
		return 0
	}
	ratio := float64(inliers) / float64(matches)
	errorFactor := 1.0 / (1.0 + meanReprojErr)
	return clamp01(ratio * errorFactor)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func methodForFeatureType(d *matching.Detector) Method {
	switch d.Kind() {
	case config.FeatureAKAZE:
		return MethodAKAZERansac
	case config.FeatureSIFT:
		return MethodSIFTRansac
	default:
		return MethodORBRansac
	}
}
