package undistort

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/spatialmath"
)

// PanoramaCameraID is the id of the camera every panorama sub-shot shares.
const PanoramaCameraID = "perspective_panorama_camera"

// MaxOverlapDegrees bounds the extra field of view given to each cube face. The face frustums must
// stay narrower than a half space.
const MaxOverlapDegrees = 60

type cubeFace struct {
	name     string
	rotation *spatialmath.RotationMatrix
}

var (
	xAxis = r3.Vector{X: 1}
	yAxis = r3.Vector{Y: 1}

	cubeFaces = []cubeFace{
		{"front", spatialmath.NewRotationAboutAxis(yAxis, -0)},
		{"left", spatialmath.NewRotationAboutAxis(yAxis, -math.Pi/2)},
		{"back", spatialmath.NewRotationAboutAxis(yAxis, -math.Pi)},
		{"right", spatialmath.NewRotationAboutAxis(yAxis, -3*math.Pi/2)},
		{"top", spatialmath.NewRotationAboutAxis(xAxis, -math.Pi/2)},
		{"bottom", spatialmath.NewRotationAboutAxis(xAxis, math.Pi/2)},
	}
)

// SubShotID is the id of the sub-shot of panorama shot looking through face.
func SubShotID(shot, face string) string {
	return fmt.Sprintf("%s_perspective_view_%s", shot, face)
}

// PanoramaCamera is the square pinhole used by every sub-shot of a panorama. Its field of view is
// 90 degrees widened by overlapDegrees, so neighboring faces share a band of that width.
func PanoramaCamera(subshotWidth int, overlapDegrees float64) *transform.PerspectiveCamera {
	halfFOV := (90 + overlapDegrees) * math.Pi / 360
	return transform.NewPinholeCamera(PanoramaCameraID, subshotWidth, subshotWidth, 0.5/math.Tan(halfFOV))
}

// DecomposePanorama splits a spherical shot into the six cube faces front, left, back, right, top
// and bottom, always in that order. Each sub-shot shares the optical center of shot and rotates it
// by its face; its camera is PanoramaCamera. The result depends only on the arguments.
func DecomposePanorama(
	shot *reconstruction.Shot,
	subshotWidth int,
	overlapDegrees float64,
) ([]*reconstruction.Shot, error) {
	if _, ok := shot.Camera.(*transform.SphericalCamera); !ok {
		return nil, errors.Errorf("shot %q is not a panorama", shot.ID)
	}
	if subshotWidth < 1 {
		return nil, errors.Errorf("invalid sub-shot width %d", subshotWidth)
	}
	if overlapDegrees <= 0 || overlapDegrees >= MaxOverlapDegrees {
		return nil, errors.Errorf("panorama overlap must be in (0, %d) degrees, got %v", MaxOverlapDegrees, overlapDegrees)
	}

	cam := PanoramaCamera(subshotWidth, overlapDegrees)
	rotation := shot.Pose.RotationMatrix()
	origin := shot.Pose.Origin()
	subshots := make([]*reconstruction.Shot, 0, len(cubeFaces))
	for _, face := range cubeFaces {
		subshots = append(subshots, &reconstruction.Shot{
			ID:       SubShotID(shot.ID, face.name),
			Camera:   cam,
			Pose:     spatialmath.NewPoseFromOrigin(face.rotation.Mul(rotation), origin),
			Metadata: copyMetadata(shot.Metadata),
		})
	}
	return subshots, nil
}

// relativeRotation rotates rays of the sub-shot frame into the frame of its parent shot.
func relativeRotation(parent, sub *reconstruction.Shot) *spatialmath.RotationMatrix {
	return parent.Pose.RotationMatrix().Mul(sub.Pose.RotationMatrix().Transpose())
}

func copyMetadata(md map[string]interface{}) map[string]interface{} {
	if md == nil {
		return nil
	}
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
