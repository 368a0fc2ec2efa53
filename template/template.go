// Package template owns the per-logo reference data the engine matches
// against: the decoded template image, its derived matchable-region mask,
// and the keypoints/descriptors extracted from it once at construction
// time and retained for the engine's lifetime.
package template

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/alignpress/engine/config"
	"github.com/alignpress/engine/imageutil"
	"github.com/alignpress/engine/matching"
)

// minKeypoints is the small positive minimum a template's retained
// keypoint count must reach for the logo to be considered usable.
const minKeypoints = 10

// Corners is the canonical corner quadrilateral of a template, spanning its
// full size in template pixel space: top-left, top-right, bottom-right,
// bottom-left.
type Corners [4]image.Point

// Entry is one logo's retained reference data.
type Entry struct {
	Spec        config.LogoSpec
	Gray        gocv.Mat
	Mask        gocv.Mat // empty if the template has no transparency
	Keypoints   []gocv.KeyPoint
	Descriptors gocv.Mat
	Corners     Corners
	Size        image.Point
}

// Close releases the Mats owned by this entry.
func (e *Entry) Close() error {
	if err := e.Gray.Close(); err != nil {
		return err
	}
	if !e.Mask.Empty() {
		if err := e.Mask.Close(); err != nil {
			return err
		}
	}
	return e.Descriptors.Close()
}

// Store is the set of loaded template entries, indexed in configuration
// order and by name.
type Store struct {
	order  []string
	byName map[string]*Entry
}

// Load decodes and extracts features for every logo in logos, in order,
// using detector to run feature extraction. It fails fast on the first
// logo whose template cannot be read or whose extracted keypoint count is
// too small to be usable, returning a *config.Error identifying the
// offending logo.
func Load(logos []config.LogoSpec, detector *matching.Detector) (*Store, error) {
	store := &Store{
		order:  make([]string, 0, len(logos)),
		byName: make(map[string]*Entry, len(logos)),
	}

	for _, spec := range logos {
		entry, err := loadOne(spec, detector)
		if err != nil {
			store.Close()
			return nil, err
		}
		store.order = append(store.order, spec.Name)
		store.byName[spec.Name] = entry
	}

	return store, nil
}

func loadOne(spec config.LogoSpec, detector *matching.Detector) (*Entry, error) {
	raw := gocv.IMRead(spec.TemplatePath, gocv.IMReadUnchanged)
	if raw.Empty() {
		return nil, &config.Error{Kind: config.KindTemplateUnavailable, Logo: spec.Name, Field: "template_path",
			Message: spec.TemplatePath + " could not be decoded as an image"}
	}
	defer raw.Close()

	gray, err := imageutil.ToGray(raw)
	if err != nil {
		return nil, &config.Error{Kind: config.KindTemplateUnavailable, Logo: spec.Name, Field: "template_path", Message: err.Error()}
	}

	enhanced, err := imageutil.EnhanceContrast(gray)
	gray.Close()
	if err != nil {
		return nil, &config.Error{Kind: config.KindTemplateUnavailable, Logo: spec.Name, Field: "template_path", Message: err.Error()}
	}

	var mask gocv.Mat
	hasMask := false
	if spec.HasTransparency {
		alpha, ok, err := imageutil.AlphaChannel(raw)
		if err != nil {
			enhanced.Close()
			return nil, &config.Error{Kind: config.KindInvalidConfiguration, Logo: spec.Name, Field: "has_transparency", Message: err.Error()}
		}
		if ok {
			defer alpha.Close()
			derived, err := imageutil.DeriveMask(imageutil.TransparencyMethod(spec.TransparencyMethod), alpha, enhanced)
			if err != nil {
				enhanced.Close()
				return nil, &config.Error{Kind: config.KindInvalidConfiguration, Logo: spec.Name, Field: "transparency_method", Message: err.Error()}
			}
			mask = derived
			hasMask = true
		}
	}

	var keypoints []gocv.KeyPoint
	var descriptors gocv.Mat
	if hasMask {
		keypoints, descriptors = detector.DetectAndCompute(enhanced, mask)
	} else {
		empty := gocv.NewMat()
		keypoints, descriptors = detector.DetectAndCompute(enhanced, empty)
		empty.Close()
	}

	if len(keypoints) < minKeypoints {
		enhanced.Close()
		if hasMask {
			mask.Close()
		}
		descriptors.Close()
		return nil, config.TooWeak(spec.Name, "template_path", "extracted %d keypoints, need at least %d", len(keypoints), minKeypoints)
	}

	size := image.Pt(enhanced.Cols(), enhanced.Rows())
	entry := &Entry{
		Spec:        spec,
		Gray:        enhanced,
		Keypoints:   keypoints,
		Descriptors: descriptors,
		Corners:     canonicalCorners(size),
		Size:        size,
	}
	if hasMask {
		entry.Mask = mask
	}
	return entry, nil
}

func canonicalCorners(size image.Point) Corners {
	return Corners{
		image.Pt(0, 0),
		image.Pt(size.X, 0),
		image.Pt(size.X, size.Y),
		image.Pt(0, size.Y),
	}
}

// Get returns the entry for name, or nil if no such logo was loaded.
func (s *Store) Get(name string) *Entry {
	return s.byName[name]
}

// Names returns the loaded logo names, in configuration order.
func (s *Store) Names() []string {
	return s.order
}

// Close releases every retained entry's Mats.
func (s *Store) Close() error {
	var first error
	for _, name := range s.order {
		if e := s.byName[name]; e != nil {
			if err := e.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
