package transform

import (
	"math"
)

// maxPinholeHalfFOV caps the half field of view kept when a wide lens becomes a pinhole. Past it
// a pinhole spends most of its pixels on the outer border.
var maxPinholeHalfFOV = 75 * math.Pi / 180

// PinholeFromCamera returns the distortion-free perspective camera a shot of cam is undistorted
// into. It keeps the id and pixel size of cam.
//
// Perspective cameras keep their focal length. Brown cameras take the mean of their two focal
// lengths, with the principal point moved to the image center. Fisheye cameras get the focal
// length under which the left and right image borders keep the incidence angle they had in the
// fisheye, capped at maxPinholeHalfFOV. Spherical cameras have no pinhole equivalent and return
// ErrUnsupportedProjection.
func PinholeFromCamera(cam Camera) (*PerspectiveCamera, error) {
	switch c := cam.(type) {
	case *PerspectiveCamera:
		return NewPinholeCamera(c.CameraID, c.Width, c.Height, c.Focal), nil
	case *BrownCamera:
		return NewPinholeCamera(c.CameraID, c.Width, c.Height, (c.FocalX+c.FocalY)/2), nil
	case *FisheyeCamera:
		return NewPinholeCamera(c.CameraID, c.Width, c.Height, fisheyeEquivalentFocal(c)), nil
	case *SphericalCamera:
		return nil, NewUnsupportedProjectionError(SphericalProjection)
	default:
		return nil, NewUnsupportedProjectionError(projectionOf(cam))
	}
}

func fisheyeEquivalentFocal(c *FisheyeCamera) float64 {
	edge := float64(c.Width) / (2 * normalizer(c.Width, c.Height))
	theta := c.distortion().Theta(edge / c.Focal)
	if theta <= 0 || math.IsNaN(theta) {
		return c.Focal
	}
	return edge / math.Tan(math.Min(theta, maxPinholeHalfFOV))
}
