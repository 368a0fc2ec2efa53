package config

import (
	"os"
	"path/filepath"
)

// Validate performs the second validation pass described for the engine's
// consumed configuration: every logo's expected position lies inside the
// plate, every template_path resolves to a readable file, every ROI
// dimension is positive, thresholds are positive, and feature/matching/
// fallback parameters are in range. It does not open or decode template
// images; that is the template store's job, and failures there surface as
// TemplateUnavailable/TemplateTooWeak instead.
func (c *Config) Validate() error {
	if c.Plane.WidthMM <= 0 {
		return invalid("", "plane.width_mm", "must be positive, got %v", c.Plane.WidthMM)
	}
	if c.Plane.HeightMM <= 0 {
		return invalid("", "plane.height_mm", "must be positive, got %v", c.Plane.HeightMM)
	}
	if c.Plane.MMPerPX <= 0 {
		return invalid("", "plane.mm_per_px", "must be positive, got %v", c.Plane.MMPerPX)
	}
	if c.Plane.Homography != nil {
		if !homographyFinite(*c.Plane.Homography) {
			return invalid("", "plane.homography", "contains non-finite values")
		}
		if homographyDet3x3(*c.Plane.Homography) == 0 {
			return invalid("", "plane.homography", "is singular")
		}
	}

	if len(c.Logos) == 0 {
		return invalid("", "logos", "at least one logo must be configured")
	}

	seen := make(map[string]bool, len(c.Logos))
	for i := range c.Logos {
		logo := &c.Logos[i]
		if logo.Name == "" {
			return invalid("", "logos[].name", "must be non-empty")
		}
		if seen[logo.Name] {
			return invalid(logo.Name, "name", "duplicate logo name")
		}
		seen[logo.Name] = true

		if logo.TemplatePath == "" {
			return invalid(logo.Name, "template_path", "must be non-empty")
		}
		if info, err := os.Stat(logo.TemplatePath); err != nil || info.IsDir() {
			return unavailable(logo.Name, "template_path", "%s does not resolve to a readable file", logo.TemplatePath)
		}

		x, y := logo.PositionMM[0], logo.PositionMM[1]
		if x <= 0 || x >= c.Plane.WidthMM || y <= 0 || y >= c.Plane.HeightMM {
			return invalid(logo.Name, "position_mm", "(%v, %v) must lie strictly inside the plate [0, %v] x [0, %v]",
				x, y, c.Plane.WidthMM, c.Plane.HeightMM)
		}
		if logo.AngleDeg <= -180 || logo.AngleDeg > 180 {
			return invalid(logo.Name, "angle_deg", "must lie in (-180, 180], got %v", logo.AngleDeg)
		}

		if logo.ROI.WidthMM <= 0 {
			return invalid(logo.Name, "roi.width_mm", "must be positive, got %v", logo.ROI.WidthMM)
		}
		if logo.ROI.HeightMM <= 0 {
			return invalid(logo.Name, "roi.height_mm", "must be positive, got %v", logo.ROI.HeightMM)
		}
		if logo.ROI.MarginFactor < 1.0 {
			return invalid(logo.Name, "roi.margin_factor", "must be >= 1.0, got %v", logo.ROI.MarginFactor)
		}

		if logo.HasTransparency {
			switch logo.TransparencyMethod {
			case TransparencyThreshold, TransparencyContour, TransparencyGrabCut:
			default:
				return invalid(logo.Name, "transparency_method", "unknown variant %q", logo.TransparencyMethod)
			}
		}
	}

	if c.Thresholds.MaxPositionErrorMM <= 0 {
		return invalid("", "thresholds.max_position_error_mm", "must be positive, got %v", c.Thresholds.MaxPositionErrorMM)
	}
	if c.Thresholds.MaxAngleErrorDeg <= 0 {
		return invalid("", "thresholds.max_angle_error_deg", "must be positive, got %v", c.Thresholds.MaxAngleErrorDeg)
	}
	if c.Thresholds.MinInliers <= 0 {
		return invalid("", "thresholds.min_inliers", "must be positive, got %v", c.Thresholds.MinInliers)
	}
	if c.Thresholds.MaxReprojErrorPX <= 0 {
		return invalid("", "thresholds.max_reproj_error_px", "must be positive, got %v", c.Thresholds.MaxReprojErrorPX)
	}

	switch c.Features.Type {
	case FeatureORB, FeatureAKAZE, FeatureSIFT:
	default:
		return invalid("", "feature_params.type", "unknown variant %q", c.Features.Type)
	}
	if c.Features.NFeatures <= 0 {
		return invalid("", "feature_params.nfeatures", "must be positive, got %v", c.Features.NFeatures)
	}
	if c.Features.ScaleFactor <= 1.0 {
		return invalid("", "feature_params.scale_factor", "must be > 1.0, got %v", c.Features.ScaleFactor)
	}
	if c.Features.NLevels <= 0 {
		return invalid("", "feature_params.nlevels", "must be positive, got %v", c.Features.NLevels)
	}

	switch c.Matching.Algorithm {
	case MatchBruteForce, MatchFLANN:
	default:
		return invalid("", "matching_params.algorithm", "unknown variant %q", c.Matching.Algorithm)
	}
	if c.Matching.Algorithm == MatchFLANN && c.Features.Type != FeatureSIFT {
		return invalid("", "matching_params.algorithm", "flann requires feature_params.type SIFT (float descriptors); ORB/AKAZE's binary descriptors only support bruteforce, got %v", c.Features.Type)
	}
	if c.Matching.RatioTestThreshold <= 0 || c.Matching.RatioTestThreshold >= 1 {
		return invalid("", "matching_params.ratio_test_threshold", "must lie in (0, 1), got %v", c.Matching.RatioTestThreshold)
	}

	if c.Fallback.Enabled {
		if len(c.Fallback.Scales) == 0 {
			return invalid("", "fallback.scales", "must be non-empty when fallback is enabled")
		}
		for _, s := range c.Fallback.Scales {
			if s <= 0 {
				return invalid("", "fallback.scales", "entries must be positive, got %v", s)
			}
		}
		if len(c.Fallback.AnglesDeg) == 0 {
			return invalid("", "fallback.angles_deg", "must be non-empty when fallback is enabled")
		}
		if c.Fallback.MatchThreshold <= 0 || c.Fallback.MatchThreshold > 1 {
			return invalid("", "fallback.match_threshold", "must lie in (0, 1], got %v", c.Fallback.MatchThreshold)
		}
	}

	return nil
}

func homographyFinite(h Homography) bool {
	for _, v := range h {
		if v != v || v > 1e308 || v < -1e308 {
			return false
		}
	}
	return true
}

func homographyDet3x3(h Homography) float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

func resolveTemplatePaths(cfg *Config, configPath string) {
	base := filepath.Dir(configPath)
	for i := range cfg.Logos {
		p := cfg.Logos[i].TemplatePath
		if p == "" || filepath.IsAbs(p) {
			continue
		}
		cfg.Logos[i].TemplatePath = filepath.Join(base, p)
	}
}
