// Package matching wires the configured FeatureType to a concrete gocv
// descriptor extractor and the matcher (brute-force or FLANN, with Lowe's
// ratio test and optional cross-checking) that compares a template's
// descriptors against a region of interest's descriptors.
package matching

import (
	"sort"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/alignpress/engine/config"
)

// Detector wraps a gocv feature detector/descriptor extractor, hiding the
// differences between ORB, AKAZE and SIFT behind one interface and
// recording which distance metric its descriptors must be compared with.
type Detector struct {
	kind  config.FeatureType
	orb   *gocv.ORB
	akaze *gocv.AKAZE
	sift  *gocv.SIFT
}

// NewDetector builds a Detector for the given feature parameters. The
// caller owns the returned Detector and must Close it.
func NewDetector(p config.FeatureParams) (*Detector, error) {
	switch p.Type {
	case config.FeatureORB, "":
		nfeatures := p.NFeatures
		if nfeatures <= 0 {
			nfeatures = 500
		}
		scale := p.ScaleFactor
		if scale <= 1.0 {
			scale = 1.2
		}
		nlevels := p.NLevels
		if nlevels <= 0 {
			nlevels = 8
		}
		edgeThreshold := p.EdgeThreshold
		if edgeThreshold <= 0 {
			edgeThreshold = 31
		}
		patchSize := p.PatchSize
		if patchSize <= 0 {
			patchSize = 31
		}
		orb := gocv.NewORBWithParams(nfeatures, float32(scale), nlevels, edgeThreshold,
			0, 2, gocv.ORBScoreHarris, patchSize, 20)
		return &Detector{kind: config.FeatureORB, orb: &orb}, nil

	case config.FeatureAKAZE:
		akaze := gocv.NewAKAZE()
		return &Detector{kind: config.FeatureAKAZE, akaze: &akaze}, nil

	case config.FeatureSIFT:
		sift := gocv.NewSIFT()
		return &Detector{kind: config.FeatureSIFT, sift: &sift}, nil

	default:
		return nil, errors.Errorf("matching: unknown feature type %q", p.Type)
	}
}

// Close releases the underlying gocv detector.
func (d *Detector) Close() error {
	switch d.kind {
	case config.FeatureORB:
		return d.orb.Close()
	case config.FeatureAKAZE:
		return d.akaze.Close()
	case config.FeatureSIFT:
		return d.sift.Close()
	}
	return nil
}

// Kind reports which feature family this detector extracts.
func (d *Detector) Kind() config.FeatureType {
	return d.kind
}

// NormType reports the distance metric this detector's descriptors must be
// compared with: Hamming for the binary ORB/AKAZE descriptors, L2 for
// SIFT's floating-point descriptors.
func (d *Detector) NormType() gocv.NormType {
	switch d.kind {
	case config.FeatureSIFT:
		return gocv.NormL2
	default:
		return gocv.NormHamming
	}
}

// DetectAndCompute extracts keypoints and descriptors from img, optionally
// restricted to the non-zero region of mask. The caller owns the returned
// descriptors Mat.
func (d *Detector) DetectAndCompute(img gocv.Mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	switch d.kind {
	case config.FeatureAKAZE:
		return d.akaze.DetectAndCompute(img, mask)
	case config.FeatureSIFT:
		return d.sift.DetectAndCompute(img, mask)
	default:
		return d.orb.DetectAndCompute(img, mask)
	}
}

// Match is a single surviving descriptor correspondence between a template
// keypoint and a ROI keypoint, after the ratio test (and optional
// cross-check) has been applied.
type Match struct {
	TemplateIdx int
	QueryIdx    int
	Distance    float32
}

// descriptorMatcher abstracts over gocv's BFMatcher and FlannBasedMatcher,
// whichever config.MatchingParams.Algorithm selects.
type descriptorMatcher interface {
	KnnMatch(query, train gocv.Mat, k int) [][]gocv.DMatch
	Match(query, train gocv.Mat) []gocv.DMatch
	Close() error
}

// newMatcher builds the matcher p.Algorithm names. FLANN's indexed search
// (gocv's binding only exposes the KDTree index) is only valid over L2
// float descriptors, so it is rejected for the binary ORB/AKAZE norm
// rather than silently matching brute-force instead.
func newMatcher(norm gocv.NormType, algorithm config.MatchAlgorithm) (descriptorMatcher, error) {
	switch algorithm {
	case config.MatchFLANN:
		if norm != gocv.NormL2 {
			return nil, errors.New("matching: flann requires float (L2) descriptors; ORB/AKAZE's binary descriptors need bruteforce")
		}
		m := gocv.NewFlannBasedMatcher()
		return m, nil
	default:
		return gocv.NewBFMatcherWithParams(norm, false), nil
	}
}

// MatchDescriptors compares template descriptors against query (ROI)
// descriptors using p.Algorithm's matcher over the given norm, applies
// Lowe's ratio test, and optionally enforces cross-checking (a match only
// survives if the reverse nearest-neighbour search agrees).
func MatchDescriptors(templateDesc, queryDesc gocv.Mat, norm gocv.NormType, p config.MatchingParams) ([]Match, error) {
	if templateDesc.Empty() || queryDesc.Empty() {
		return nil, nil
	}
	if queryDesc.Rows() < 2 {
		return nil, nil
	}

	matcher, err := newMatcher(norm, p.Algorithm)
	if err != nil {
		return nil, err
	}
	defer matcher.Close()

	forward := matcher.KnnMatch(templateDesc, queryDesc, 2)
	ratio := p.RatioTestThreshold
	if ratio <= 0 {
		ratio = 0.75
	}

	survivors := make([]Match, 0, len(forward))
	for _, pair := range forward {
		if len(pair) < 2 {
			if len(pair) == 1 {
				survivors = append(survivors, Match{TemplateIdx: pair[0].QueryIdx, QueryIdx: pair[0].TrainIdx, Distance: pair[0].Distance})
			}
			continue
		}
		best, second := pair[0], pair[1]
		if best.Distance < ratio*second.Distance {
			survivors = append(survivors, Match{TemplateIdx: best.QueryIdx, QueryIdx: best.TrainIdx, Distance: best.Distance})
		}
	}

	if p.CrossCheck {
		survivors, err = crossCheck(survivors, templateDesc, queryDesc, norm, p.Algorithm)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Distance < survivors[j].Distance })
	return survivors, nil
}

// crossCheck keeps only matches whose ROI keypoint's nearest template
// neighbour is the same template keypoint the forward pass picked,
// eliminating many-to-one matches that the ratio test alone lets through.
func crossCheck(forward []Match, templateDesc, queryDesc gocv.Mat, norm gocv.NormType, algorithm config.MatchAlgorithm) ([]Match, error) {
	if len(forward) == 0 {
		return forward, nil
	}

	matcher, err := newMatcher(norm, algorithm)
	if err != nil {
		return nil, err
	}
	defer matcher.Close()

	reverse := matcher.Match(queryDesc, templateDesc)
	bestTemplateForQuery := make(map[int]int, len(reverse))
	for _, m := range reverse {
		bestTemplateForQuery[m.QueryIdx] = m.TrainIdx
	}

	kept := make([]Match, 0, len(forward))
	for _, m := range forward {
		if bestTemplateForQuery[m.QueryIdx] == m.TemplateIdx {
			kept = append(kept, m)
		}
	}
	return kept, nil
}
