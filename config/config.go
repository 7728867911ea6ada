// Package config holds the per-dataset settings read from config.yaml.
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the dataset root.
const FileName = "config.yaml"

// Config is the full set of dataset settings. Keys missing from config.yaml keep their defaults.
type Config struct {
	// Processes is the size of the worker pools of the detect and undistort stages.
	Processes int `yaml:"processes"`
	// WorkerFailurePolicy is "isolate" or "fail_fast".
	WorkerFailurePolicy string `yaml:"worker_failure_policy"`

	UseExifSize       bool    `yaml:"use_exif_size"`
	DefaultFocalPrior float64 `yaml:"default_focal_prior"`

	FeatureType        string  `yaml:"feature_type"`
	FeatureMaxFrames   int     `yaml:"feature_max_frames"`
	FeatureProcessSize int     `yaml:"feature_process_size"`
	HarrisThreshold    float64 `yaml:"harris_threshold"`

	MatchingLowesRatio     float64 `yaml:"matching_lowes_ratio"`
	RobustMatchingMinMatch int     `yaml:"robust_matching_min_match"`
	MinTrackLength         int     `yaml:"min_track_length"`

	// DepthmapResolution is the width of each perspective view a panorama is split into.
	DepthmapResolution      int     `yaml:"depthmap_resolution"`
	UndistortedImageMaxSize int     `yaml:"undistorted_image_max_size"`
	UndistortedImageFormat  string  `yaml:"undistorted_image_format"`
	PanoramaOverlapDegrees  float64 `yaml:"panorama_overlap_degrees"`
	// PanoramaObservationPolicy is "all" or "nearest".
	PanoramaObservationPolicy string `yaml:"panorama_observation_policy"`
	UndistortTracksFromPoints bool   `yaml:"undistort_tracks_from_points"`
}

// Default returns the settings used when config.yaml is absent.
func Default() *Config {
	return &Config{
		Processes:                 1,
		WorkerFailurePolicy:       "isolate",
		UseExifSize:               true,
		DefaultFocalPrior:         0.85,
		FeatureType:               "HARRIS",
		FeatureMaxFrames:          4000,
		FeatureProcessSize:        2048,
		HarrisThreshold:           0.01,
		MatchingLowesRatio:        0.8,
		RobustMatchingMinMatch:    20,
		MinTrackLength:            2,
		DepthmapResolution:        640,
		UndistortedImageMaxSize:   100000,
		UndistortedImageFormat:    "jpg",
		PanoramaOverlapDegrees:    5,
		PanoramaObservationPolicy: "all",
		UndistortTracksFromPoints: true,
	}
}

// Parse reads YAML settings over the defaults and validates them.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing "+FileName)
	}
	if err := cfg.Validate(FileName); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path from fs. A missing file yields the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return Parse(data)
}

// Validate ensures all settings are usable.
func (c *Config) Validate(path string) error {
	if c.Processes < 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("processes must be at least 1, got %d", c.Processes))
	}
	switch c.WorkerFailurePolicy {
	case "isolate", "fail_fast":
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "worker_failure_policy")
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("worker_failure_policy must be isolate or fail_fast, got %q", c.WorkerFailurePolicy))
	}
	if c.FeatureType == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "feature_type")
	}
	if c.FeatureMaxFrames < 1 || c.FeatureProcessSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("feature_max_frames and feature_process_size must be positive"))
	}
	if c.MatchingLowesRatio <= 0 || c.MatchingLowesRatio > 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("matching_lowes_ratio must be in (0, 1], got %v", c.MatchingLowesRatio))
	}
	if c.MinTrackLength < 2 {
		return utils.NewConfigValidationError(path, errors.Errorf("min_track_length must be at least 2, got %d", c.MinTrackLength))
	}
	if c.DepthmapResolution < 2 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("depthmap_resolution must be at least 2, got %d", c.DepthmapResolution))
	}
	if c.UndistortedImageMaxSize < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("undistorted_image_max_size must be positive, got %d", c.UndistortedImageMaxSize))
	}
	switch c.UndistortedImageFormat {
	case "jpg", "png", "tiff":
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "undistorted_image_format")
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("undistorted_image_format must be jpg, png or tiff, got %q", c.UndistortedImageFormat))
	}
	if c.PanoramaOverlapDegrees <= 0 || c.PanoramaOverlapDegrees >= 60 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("panorama_overlap_degrees must be in (0, 60), got %v", c.PanoramaOverlapDegrees))
	}
	switch c.PanoramaObservationPolicy {
	case "all", "nearest":
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "panorama_observation_policy")
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("panorama_observation_policy must be all or nearest, got %q", c.PanoramaObservationPolicy))
	}
	return nil
}
