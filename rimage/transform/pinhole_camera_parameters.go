package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// PerspectiveCamera is a pinhole camera with square pixels, a centered principal point and an
// optional two term radial distortion. With K1 = K2 = 0 it is the canonical pinhole every
// undistorted shot uses.
type PerspectiveCamera struct {
	CameraID string  `json:"id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Focal    float64 `json:"focal"`
	K1       float64 `json:"k1"`
	K2       float64 `json:"k2"`
}

// NewPinholeCamera returns an undistorted perspective camera.
func NewPinholeCamera(id string, width, height int, focal float64) *PerspectiveCamera {
	return &PerspectiveCamera{CameraID: id, Width: width, Height: height, Focal: focal}
}

func (*PerspectiveCamera) isCamera() {}

// ID returns the camera identifier.
func (c *PerspectiveCamera) ID() string { return c.CameraID }

// ProjectionType returns PerspectiveProjection.
func (c *PerspectiveCamera) ProjectionType() ProjectionType { return PerspectiveProjection }

// Size returns the pixel size.
func (c *PerspectiveCamera) Size() (int, int) { return c.Width, c.Height }

// IsPinhole reports whether the camera carries no distortion.
func (c *PerspectiveCamera) IsPinhole() bool { return c.K1 == 0 && c.K2 == 0 }

// CheckValid checks if the fields for PerspectiveCamera have valid inputs.
func (c *PerspectiveCamera) CheckValid() error {
	if c == nil {
		return NewInvalidCameraError("", "camera does not exist")
	}
	if err := checkSize(c.CameraID, c.Width, c.Height); err != nil {
		return err
	}
	if err := checkFocal(c.CameraID, "focal", c.Focal); err != nil {
		return err
	}
	return checkDistortion(c.CameraID, c.radial())
}

func (c *PerspectiveCamera) radial() *RadialDistortion {
	return &RadialDistortion{K1: c.K1, K2: c.K2}
}

// Project maps a camera-frame point to pixels. Points on or behind the image plane are rejected.
func (c *PerspectiveCamera) Project(p r3.Vector) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	x, y := c.radial().Distort(p.X/p.Z, p.Y/p.Z)
	return NormalizedToPixel(r2.Point{X: c.Focal * x, Y: c.Focal * y}, c.Width, c.Height), true
}

// PixelBearing returns the unit ray through px.
func (c *PerspectiveCamera) PixelBearing(px r2.Point) r3.Vector {
	n := PixelToNormalized(px, c.Width, c.Height)
	x, y := c.radial().Undistort(n.X/c.Focal, n.Y/c.Focal)
	return r3.Vector{X: x, Y: y, Z: 1}.Normalize()
}
