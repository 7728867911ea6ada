package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// BrownCamera has separate focal lengths, an offset principal point and Brown-Conrady distortion.
// CX and CY are normalized offsets from the image center.
type BrownCamera struct {
	CameraID string  `json:"id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FocalX   float64 `json:"focal_x"`
	FocalY   float64 `json:"focal_y"`
	CX       float64 `json:"c_x"`
	CY       float64 `json:"c_y"`
	K1       float64 `json:"k1"`
	K2       float64 `json:"k2"`
	K3       float64 `json:"k3"`
	P1       float64 `json:"p1"`
	P2       float64 `json:"p2"`
}

func (*BrownCamera) isCamera() {}

// ID returns the camera identifier.
func (c *BrownCamera) ID() string { return c.CameraID }

// ProjectionType returns BrownProjection.
func (c *BrownCamera) ProjectionType() ProjectionType { return BrownProjection }

// Size returns the pixel size.
func (c *BrownCamera) Size() (int, int) { return c.Width, c.Height }

// CheckValid checks if the fields for BrownCamera have valid inputs.
func (c *BrownCamera) CheckValid() error {
	if c == nil {
		return NewInvalidCameraError("", "camera does not exist")
	}
	if err := checkSize(c.CameraID, c.Width, c.Height); err != nil {
		return err
	}
	if err := checkFocal(c.CameraID, "focal_x", c.FocalX); err != nil {
		return err
	}
	if err := checkFocal(c.CameraID, "focal_y", c.FocalY); err != nil {
		return err
	}
	return checkDistortion(c.CameraID, c.distortion())
}

func (c *BrownCamera) distortion() *BrownConrady {
	return &BrownConrady{RadialK1: c.K1, RadialK2: c.K2, RadialK3: c.K3, TangentialP1: c.P1, TangentialP2: c.P2}
}

// Project maps a camera-frame point to pixels. Points on or behind the image plane are rejected.
func (c *BrownCamera) Project(p r3.Vector) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	x, y := c.distortion().Distort(p.X/p.Z, p.Y/p.Z)
	n := r2.Point{X: c.FocalX*x + c.CX, Y: c.FocalY*y + c.CY}
	return NormalizedToPixel(n, c.Width, c.Height), true
}

// PixelBearing returns the unit ray through px.
func (c *BrownCamera) PixelBearing(px r2.Point) r3.Vector {
	n := PixelToNormalized(px, c.Width, c.Height)
	x, y := c.distortion().Undistort((n.X-c.CX)/c.FocalX, (n.Y-c.CY)/c.FocalY)
	return r3.Vector{X: x, Y: y, Z: 1}.Normalize()
}

// FisheyeCamera is an equidistant fisheye. It images points up to and beyond 90° from the optical
// axis; only the point straight behind the lens is rejected.
type FisheyeCamera struct {
	CameraID string  `json:"id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Focal    float64 `json:"focal"`
	K1       float64 `json:"k1"`
	K2       float64 `json:"k2"`
}

func (*FisheyeCamera) isCamera() {}

// ID returns the camera identifier.
func (c *FisheyeCamera) ID() string { return c.CameraID }

// ProjectionType returns FisheyeProjection.
func (c *FisheyeCamera) ProjectionType() ProjectionType { return FisheyeProjection }

// Size returns the pixel size.
func (c *FisheyeCamera) Size() (int, int) { return c.Width, c.Height }

// CheckValid checks if the fields for FisheyeCamera have valid inputs.
func (c *FisheyeCamera) CheckValid() error {
	if c == nil {
		return NewInvalidCameraError("", "camera does not exist")
	}
	if err := checkSize(c.CameraID, c.Width, c.Height); err != nil {
		return err
	}
	if err := checkFocal(c.CameraID, "focal", c.Focal); err != nil {
		return err
	}
	return checkDistortion(c.CameraID, c.distortion())
}

func (c *FisheyeCamera) distortion() *FisheyeDistortion {
	return &FisheyeDistortion{K1: c.K1, K2: c.K2}
}

// Project maps a camera-frame point to pixels.
func (c *FisheyeCamera) Project(p r3.Vector) (r2.Point, bool) {
	l := math.Hypot(p.X, p.Y)
	if l == 0 {
		if p.Z <= 0 {
			return r2.Point{}, false
		}
		return NormalizedToPixel(r2.Point{}, c.Width, c.Height), true
	}
	theta := math.Atan2(l, p.Z)
	s := c.Focal * c.distortion().Radius(theta) / l
	return NormalizedToPixel(r2.Point{X: s * p.X, Y: s * p.Y}, c.Width, c.Height), true
}

// PixelBearing returns the unit ray through px.
func (c *FisheyeCamera) PixelBearing(px r2.Point) r3.Vector {
	n := PixelToNormalized(px, c.Width, c.Height)
	r := math.Hypot(n.X, n.Y)
	if r == 0 {
		return r3.Vector{Z: 1}
	}
	theta := c.distortion().Theta(r / c.Focal)
	s := math.Sin(theta) / r
	return r3.Vector{X: n.X * s, Y: n.Y * s, Z: math.Cos(theta)}
}

// SphericalCamera is an equirectangular panorama covering the full sphere: longitude spans the
// width, latitude spans the height, and the optical axis (+Z) is at the image center.
type SphericalCamera struct {
	CameraID string `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (*SphericalCamera) isCamera() {}

// ID returns the camera identifier.
func (c *SphericalCamera) ID() string { return c.CameraID }

// ProjectionType returns SphericalProjection.
func (c *SphericalCamera) ProjectionType() ProjectionType { return SphericalProjection }

// Size returns the pixel size.
func (c *SphericalCamera) Size() (int, int) { return c.Width, c.Height }

// CheckValid checks if the fields for SphericalCamera have valid inputs.
func (c *SphericalCamera) CheckValid() error {
	if c == nil {
		return NewInvalidCameraError("", "camera does not exist")
	}
	return checkSize(c.CameraID, c.Width, c.Height)
}

// Project maps any non-zero camera-frame point into [0, w)×[0, h). Straight behind wraps to
// column zero and straight down lands on the last row.
func (c *SphericalCamera) Project(p r3.Vector) (r2.Point, bool) {
	if p.X == 0 && p.Y == 0 && p.Z == 0 {
		return r2.Point{}, false
	}
	lon := math.Atan2(p.X, p.Z)
	lat := math.Atan2(-p.Y, math.Hypot(p.X, p.Z))
	x := (lon/(2*math.Pi) + 0.5) * float64(c.Width)
	if x >= float64(c.Width) {
		x -= float64(c.Width)
	}
	y := math.Min((0.5-lat/math.Pi)*float64(c.Height), math.Nextafter(float64(c.Height), 0))
	return r2.Point{X: x, Y: y}, true
}

// PixelBearing returns the unit ray through px.
func (c *SphericalCamera) PixelBearing(px r2.Point) r3.Vector {
	lon := (px.X/float64(c.Width) - 0.5) * 2 * math.Pi
	lat := (0.5 - px.Y/float64(c.Height)) * math.Pi
	return r3.Vector{
		X: math.Cos(lat) * math.Sin(lon),
		Y: -math.Sin(lat),
		Z: math.Cos(lat) * math.Cos(lon),
	}
}
