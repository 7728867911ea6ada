package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// a 45 degree rotation around the x axis in the representations used here.
var (
	th    = math.Pi / 4.
	q45x  = quat.Number{Real: math.Cos(th / 2.), Imag: math.Sin(th / 2.)}
	aa45x = r3.Vector{X: th}
)

func TestAxisAngleRoundTrip(t *testing.T) {
	q := AxisAngleToQuat(aa45x)
	test.That(t, q.Real, test.ShouldAlmostEqual, q45x.Real)
	test.That(t, q.Imag, test.ShouldAlmostEqual, q45x.Imag)

	rm := NewRotationFromAxisAngle(aa45x)
	test.That(t, rm.At(0, 0), test.ShouldAlmostEqual, 1)
	test.That(t, rm.At(1, 1), test.ShouldAlmostEqual, math.Cos(th))
	test.That(t, rm.At(1, 2), test.ShouldAlmostEqual, -math.Sin(th))
	test.That(t, rm.At(2, 1), test.ShouldAlmostEqual, math.Sin(th))

	back := rm.AxisAngle()
	test.That(t, back.X, test.ShouldAlmostEqual, th)
	test.That(t, back.Y, test.ShouldAlmostEqual, 0)
	test.That(t, back.Z, test.ShouldAlmostEqual, 0)

	for _, v := range []r3.Vector{{}, {X: 0.1, Y: -2, Z: 0.5}, {Z: math.Pi - 1e-3}, {X: 1.2, Y: 1.2, Z: 1.2}} {
		again := NewRotationFromAxisAngle(NewRotationFromAxisAngle(v).AxisAngle())
		test.That(t, RotationAlmostEqual(again, NewRotationFromAxisAngle(v), 1e-9), test.ShouldBeTrue)
	}
}

func TestRotationComposition(t *testing.T) {
	a := NewRotationAboutAxis(r3.Vector{Y: 1}, math.Pi/2)
	b := NewRotationAboutAxis(r3.Vector{X: 1}, -math.Pi/2)
	v := r3.Vector{X: 0.3, Y: -0.2, Z: 1}

	composed := a.Mul(b).Apply(v)
	sequential := a.Apply(b.Apply(v))
	test.That(t, composed.Sub(sequential).Norm(), test.ShouldBeLessThan, 1e-12)

	identity := a.Mul(a.Transpose())
	test.That(t, RotationAlmostEqual(identity, NewIdentityRotation(), 1e-12), test.ShouldBeTrue)

	// rotating +z by 90 degrees about +y gives +x
	x := a.Apply(r3.Vector{Z: 1})
	test.That(t, x.X, test.ShouldAlmostEqual, 1)
	test.That(t, x.Z, test.ShouldAlmostEqual, 0)
}

func TestPose(t *testing.T) {
	rotation := NewRotationFromAxisAngle(r3.Vector{X: 0.2, Y: 0.4, Z: -0.1})
	origin := r3.Vector{X: 1, Y: 2, Z: 3}
	pose := NewPoseFromOrigin(rotation, origin)

	test.That(t, pose.Origin().Sub(origin).Norm(), test.ShouldBeLessThan, 1e-9)
	test.That(t, pose.TransformPoint(origin).Norm(), test.ShouldBeLessThan, 1e-9)

	world := r3.Vector{X: -4, Y: 0.5, Z: 10}
	local := pose.TransformPoint(world)
	test.That(t, pose.TransformPointInverse(local).Sub(world).Norm(), test.ShouldBeLessThan, 1e-9)

	test.That(t, PoseAlmostEqual(pose, NewPose(pose.Rotation, pose.Translation), 1e-12), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(pose, NewPose(pose.Rotation, r3.Vector{}), 1e-3), test.ShouldBeFalse)
}
