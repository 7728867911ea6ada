// Package transform contains the camera projection models of a reconstruction, the conversion of
// any of them into an equivalent pinhole camera, and the pixel mappings used to resample rasters
// from one camera into another.
package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ProjectionType is the tag of a camera projection family as written in reconstruction files.
type ProjectionType string

const (
	// PerspectiveProjection is a pinhole with two radial distortion terms.
	PerspectiveProjection = ProjectionType("perspective")
	// BrownProjection is the Brown-Conrady model with separate focal lengths, principal point,
	// three radial and two tangential terms.
	BrownProjection = ProjectionType("brown")
	// FisheyeProjection is an equidistant fisheye with two radial terms on the incidence angle.
	FisheyeProjection = ProjectionType("fisheye")
	// SphericalProjection is a full equirectangular panorama.
	SphericalProjection = ProjectionType("spherical")
	// EquirectangularProjection is accepted on read as an alias of SphericalProjection.
	EquirectangularProjection = ProjectionType("equirectangular")
)

// ErrUnsupportedProjection is returned for a projection family that has no conversion or mapping.
var ErrUnsupportedProjection = errors.New("unsupported camera projection")

// NewUnsupportedProjectionError wraps ErrUnsupportedProjection with the offending tag.
func NewUnsupportedProjectionError(projection ProjectionType) error {
	return errors.Wrapf(ErrUnsupportedProjection, "projection %q", projection)
}

// ErrInvalidCamera is when a camera has missing or out of range parameters.
var ErrInvalidCamera = errors.New("invalid camera parameters")

// NewInvalidCameraError is used when a camera fails CheckValid.
func NewInvalidCameraError(id, msg string) error {
	return errors.Wrapf(ErrInvalidCamera, "camera %q: %s", id, msg)
}

// Camera is one of *PerspectiveCamera, *BrownCamera, *FisheyeCamera or *SphericalCamera. The set is
// closed: type switches over Camera list all four and treat anything else as unsupported.
//
//sumtype:decl
type Camera interface {
	ID() string
	ProjectionType() ProjectionType
	Size() (width, height int)
	// Project maps a point expressed in the camera frame to pixel coordinates. ok is false when
	// the model cannot image the point, e.g. it is behind a perspective camera.
	Project(p r3.Vector) (px r2.Point, ok bool)
	// PixelBearing returns the unit-length ray through a pixel position in the camera frame.
	PixelBearing(px r2.Point) r3.Vector
	CheckValid() error

	isCamera()
}

// The normalized image plane has its origin at the image center and is scaled by the larger image
// dimension. Pixel coordinates have their origin at the top-left corner of the top-left pixel.
func normalizer(width, height int) float64 {
	return math.Max(float64(width), float64(height))
}

// PixelToNormalized converts pixel coordinates to normalized image coordinates.
func PixelToNormalized(px r2.Point, width, height int) r2.Point {
	s := normalizer(width, height)
	return r2.Point{X: (px.X - float64(width)/2) / s, Y: (px.Y - float64(height)/2) / s}
}

// NormalizedToPixel converts normalized image coordinates to pixel coordinates.
func NormalizedToPixel(n r2.Point, width, height int) r2.Point {
	s := normalizer(width, height)
	return r2.Point{X: n.X*s + float64(width)/2, Y: n.Y*s + float64(height)/2}
}

// InImage reports whether px lies inside [0, width)×[0, height).
func InImage(px r2.Point, width, height int) bool {
	return px.X >= 0 && px.Y >= 0 && px.X < float64(width) && px.Y < float64(height)
}

// WithSize returns a copy of cam with a different pixel size. Intrinsics are normalized, so the
// copy images the same field of view when the aspect ratio is kept.
func WithSize(cam Camera, width, height int) (Camera, error) {
	switch c := cam.(type) {
	case *PerspectiveCamera:
		out := *c
		out.Width, out.Height = width, height
		return &out, nil
	case *BrownCamera:
		out := *c
		out.Width, out.Height = width, height
		return &out, nil
	case *FisheyeCamera:
		out := *c
		out.Width, out.Height = width, height
		return &out, nil
	case *SphericalCamera:
		out := *c
		out.Width, out.Height = width, height
		return &out, nil
	default:
		return nil, NewUnsupportedProjectionError(projectionOf(cam))
	}
}

func projectionOf(cam Camera) ProjectionType {
	if cam == nil {
		return ProjectionType("<nil>")
	}
	return ProjectionType(fmt.Sprintf("%T", cam))
}

func checkSize(id string, width, height int) error {
	if width <= 0 || height <= 0 {
		return NewInvalidCameraError(id, fmt.Sprintf("invalid size (%d, %d)", width, height))
	}
	return nil
}

func checkFocal(id string, name string, focal float64) error {
	if focal <= 0 || math.IsNaN(focal) || math.IsInf(focal, 0) {
		return NewInvalidCameraError(id, fmt.Sprintf("invalid focal length %s = %v", name, focal))
	}
	return nil
}
