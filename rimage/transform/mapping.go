package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/sfm/spatialmath"
	"go.viam.com/sfm/utils"
)

// OutOfFrame marks a destination pixel whose ray the source camera does not see.
const OutOfFrame = float32(-1)

// PixelMapping stores, for every destination pixel, the source pixel position to sample. Pixel
// (x, y) lives at index y*Width+x of X and Y. Positions are continuous pixel coordinates: the
// center of source pixel (i, j) is (i+0.5, j+0.5).
type PixelMapping struct {
	Width  int
	Height int
	X      []float32
	Y      []float32
}

// NewPixelMapping returns a mapping with every pixel out of frame.
func NewPixelMapping(width, height int) *PixelMapping {
	m := &PixelMapping{Width: width, Height: height, X: make([]float32, width*height), Y: make([]float32, width*height)}
	for i := range m.X {
		m.X[i], m.Y[i] = OutOfFrame, OutOfFrame
	}
	return m
}

// At returns the source position for destination pixel (x, y) and whether it is in frame.
func (m *PixelMapping) At(x, y int) (float32, float32, bool) {
	i := y*m.Width + x
	sx, sy := m.X[i], m.Y[i]
	return sx, sy, sx != OutOfFrame && sy != OutOfFrame
}

// BuildMapping computes, for each pixel of a width×height destination image taken with dst, where
// its ray lands in src. destinationToSource rotates rays from the destination frame into the
// source frame and may be nil when both cameras share a frame. dst is resized to width×height; src
// must already have the size of the raster that will be sampled.
//
// Rays src cannot image, or that land outside src's [0, w)×[0, h), get OutOfFrame. The result
// depends only on the arguments.
func BuildMapping(
	src, dst Camera,
	width, height int,
	destinationToSource *spatialmath.RotationMatrix,
) (*PixelMapping, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid mapping size (%d, %d)", width, height)
	}
	if src == nil || dst == nil {
		return nil, errors.New("mapping needs a source and a destination camera")
	}
	if err := src.CheckValid(); err != nil {
		return nil, err
	}
	sized, err := WithSize(dst, width, height)
	if err != nil {
		return nil, err
	}
	if err := sized.CheckValid(); err != nil {
		return nil, err
	}
	srcWidth, srcHeight := src.Size()

	m := NewPixelMapping(width, height)
	utils.ParallelForEachRow(height, func(y int) {
		for x := 0; x < width; x++ {
			ray := sized.PixelBearing(r2.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			if destinationToSource != nil {
				ray = destinationToSource.Apply(ray)
			}
			px, ok := src.Project(ray)
			if !ok || !InImage(px, srcWidth, srcHeight) {
				continue
			}
			i := y*width + x
			m.X[i], m.Y[i] = float32(px.X), float32(px.Y)
		}
	})
	return m, nil
}
