package spatialmath

import (
	"github.com/golang/geo/r3"
)

// Pose maps world coordinates into a camera frame: x_cam = R·x_world + t. The rotation is kept as a
// Rodrigues vector, the representation used in reconstruction files.
type Pose struct {
	Rotation    r3.Vector
	Translation r3.Vector
}

// NewPose returns a pose from a Rodrigues rotation and a translation.
func NewPose(rotation, translation r3.Vector) Pose {
	return Pose{Rotation: rotation, Translation: translation}
}

// NewPoseFromOrigin returns the pose with rotation R whose optical center sits at origin.
func NewPoseFromOrigin(rotation *RotationMatrix, origin r3.Vector) Pose {
	return Pose{
		Rotation:    rotation.AxisAngle(),
		Translation: rotation.Apply(origin).Mul(-1),
	}
}

// RotationMatrix returns R.
func (p Pose) RotationMatrix() *RotationMatrix {
	return NewRotationFromAxisAngle(p.Rotation)
}

// TransformPoint maps a world point into the camera frame.
func (p Pose) TransformPoint(world r3.Vector) r3.Vector {
	return p.RotationMatrix().Apply(world).Add(p.Translation)
}

// TransformPointInverse maps a camera-frame point back into the world.
func (p Pose) TransformPointInverse(local r3.Vector) r3.Vector {
	return p.RotationMatrix().Transpose().Apply(local.Sub(p.Translation))
}

// Origin is the camera center in world coordinates, -Rᵀt.
func (p Pose) Origin() r3.Vector {
	return p.RotationMatrix().Transpose().Apply(p.Translation).Mul(-1)
}

// PoseAlmostEqual compares rotation matrices and translations within epsilon.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	if !RotationAlmostEqual(a.RotationMatrix(), b.RotationMatrix(), epsilon) {
		return false
	}
	return a.Translation.Sub(b.Translation).Norm() <= epsilon
}
