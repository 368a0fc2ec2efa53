// Package config defines the validated configuration types the engine is
// constructed from: the plate geometry, the ordered list of logos to
// detect, acceptance thresholds, and the feature/matching/fallback
// parameter blocks. Loading raw YAML into these types and performing the
// construction-time validation that turns malformed input into a tagged
// error is this package's whole job; engine.New runs Validate again on the
// *Config it is handed.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FeatureType selects the descriptor family used for primary detection.
type FeatureType string

const (
	FeatureORB   FeatureType = "ORB"
	FeatureAKAZE FeatureType = "AKAZE"
	FeatureSIFT  FeatureType = "SIFT"
)

// TransparencyMethod mirrors imageutil.TransparencyMethod as a config-layer
// string enum, validated independently so the config package has no
// dependency on gocv.
type TransparencyMethod string

const (
	TransparencyThreshold TransparencyMethod = "threshold"
	TransparencyContour   TransparencyMethod = "contour"
	TransparencyGrabCut   TransparencyMethod = "grabcut"
)

// MatchAlgorithm selects how template descriptors are matched against ROI
// descriptors.
type MatchAlgorithm string

const (
	MatchBruteForce MatchAlgorithm = "bruteforce"
	MatchFLANN      MatchAlgorithm = "flann"
)

// Homography is a 3x3 row-major projective transform, as loaded from YAML.
type Homography [9]float64

// PlaneConfig describes the physical plate a logo is detected against.
type PlaneConfig struct {
	WidthMM    float64     `yaml:"width_mm"`
	HeightMM   float64     `yaml:"height_mm"`
	MMPerPX    float64     `yaml:"mm_per_px"`
	Homography *Homography `yaml:"homography,omitempty"`
}

// RoiSpec is the search region around a logo's expected position.
type RoiSpec struct {
	WidthMM      float64 `yaml:"width_mm"`
	HeightMM     float64 `yaml:"height_mm"`
	MarginFactor float64 `yaml:"margin_factor"`
}

// LogoSpec is a single logo the engine is configured to detect.
type LogoSpec struct {
	Name               string             `yaml:"name"`
	TemplatePath       string             `yaml:"template_path"`
	PositionMM         [2]float64         `yaml:"position_mm"`
	AngleDeg           float64            `yaml:"angle_deg"`
	ROI                RoiSpec            `yaml:"roi"`
	HasTransparency    bool               `yaml:"has_transparency"`
	TransparencyMethod TransparencyMethod `yaml:"transparency_method,omitempty"`
}

// Thresholds is the acceptance policy applied to a recovered pose.
type Thresholds struct {
	MaxPositionErrorMM float64 `yaml:"max_position_error_mm"`
	MaxAngleErrorDeg   float64 `yaml:"max_angle_error_deg"`
	MinInliers         int     `yaml:"min_inliers"`
	MaxReprojErrorPX   float64 `yaml:"max_reproj_error_px"`
}

// FeatureParams controls descriptor extraction.
type FeatureParams struct {
	Type          FeatureType `yaml:"type"`
	NFeatures     int         `yaml:"nfeatures"`
	ScaleFactor   float64     `yaml:"scale_factor"`
	NLevels       int         `yaml:"nlevels"`
	EdgeThreshold int         `yaml:"edge_threshold"`
	PatchSize     int         `yaml:"patch_size"`
}

// MatchingParams controls descriptor matching policy.
type MatchingParams struct {
	Algorithm          MatchAlgorithm `yaml:"algorithm"`
	RatioTestThreshold float64        `yaml:"ratio_test_threshold"`
	CrossCheck         bool           `yaml:"cross_check"`
}

// FallbackParams controls the secondary template-matching detector.
type FallbackParams struct {
	Enabled        bool      `yaml:"enabled"`
	Scales         []float64 `yaml:"scales"`
	AnglesDeg      []float64 `yaml:"angles_deg"`
	MatchThreshold float64   `yaml:"match_threshold"`
	// RANSACSeed is forwarded to the primary detector's RANSAC pass (the
	// zero default included) so repeated detect calls over identical input
	// reproduce identical homography estimates.
	RANSACSeed int64 `yaml:"ransac_seed,omitempty"`
}

// Config is the full, validated engine configuration.
type Config struct {
	Plane      PlaneConfig    `yaml:"plane"`
	Logos      []LogoSpec     `yaml:"logos"`
	Thresholds Thresholds     `yaml:"thresholds"`
	Features   FeatureParams  `yaml:"feature_params"`
	Matching   MatchingParams `yaml:"matching_params"`
	Fallback   FallbackParams `yaml:"fallback"`
}

// Load reads and validates a Config from a YAML file. Relative
// template_path entries are resolved against the directory the config file
// lives in so that config and template assets can move together.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}

	resolveTemplatePaths(&cfg, path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
