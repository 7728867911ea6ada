// Package features detects interest points in images and describes them for matching.
package features

import (
	"context"
	"image"
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/sfm/config"
)

// Feature is an interest point in pixel coordinates of the full resolution image.
type Feature struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Angle float64 `json:"angle"`
}

// FeatureData holds the features of one image with one descriptor and one color per feature.
type FeatureData struct {
	Points      []Feature   `json:"points"`
	Descriptors [][]float32 `json:"descriptors"`
	Colors      [][3]int    `json:"colors"`
}

// Len returns the number of features.
func (fd *FeatureData) Len() int {
	if fd == nil {
		return 0
	}
	return len(fd.Points)
}

// CheckValid makes sure every feature has a descriptor and a color.
func (fd *FeatureData) CheckValid() error {
	if len(fd.Descriptors) != len(fd.Points) || len(fd.Colors) != len(fd.Points) {
		return errors.Errorf("feature data has %d points, %d descriptors and %d colors",
			len(fd.Points), len(fd.Descriptors), len(fd.Colors))
	}
	return nil
}

// Filter returns the features for which keep is true, in order.
func (fd *FeatureData) Filter(keep func(f Feature) bool) *FeatureData {
	out := &FeatureData{}
	for i, p := range fd.Points {
		if !keep(p) {
			continue
		}
		out.Points = append(out.Points, p)
		out.Descriptors = append(out.Descriptors, fd.Descriptors[i])
		out.Colors = append(out.Colors, fd.Colors[i])
	}
	return out
}

// SortBySize orders features by increasing size. Equal sizes keep their order.
func (fd *FeatureData) SortBySize() {
	order := make([]int, len(fd.Points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fd.Points[order[a]].Size < fd.Points[order[b]].Size
	})
	points := make([]Feature, len(order))
	descriptors := make([][]float32, len(order))
	colors := make([][3]int, len(order))
	for i, j := range order {
		points[i], descriptors[i], colors[i] = fd.Points[j], fd.Descriptors[j], fd.Colors[j]
	}
	fd.Points, fd.Descriptors, fd.Colors = points, descriptors, colors
}

// An Extractor finds features in an image.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) (*FeatureData, error)
}

// HarrisFeatureType is the feature_type of the built in Harris corner extractor.
const HarrisFeatureType = "HARRIS"

// NewExtractor returns the extractor cfg.FeatureType names.
func NewExtractor(cfg *config.Config) (Extractor, error) {
	switch cfg.FeatureType {
	case HarrisFeatureType:
		return &HarrisExtractor{
			MaxFrames:   cfg.FeatureMaxFrames,
			ProcessSize: cfg.FeatureProcessSize,
			Threshold:   cfg.HarrisThreshold,
		}, nil
	default:
		return nil, errors.Errorf("unknown feature type %q", cfg.FeatureType)
	}
}
