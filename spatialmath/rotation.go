// Package spatialmath holds the rotation and pose types used to place shots in the world.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix is a 3x3 rotation matrix stored row-major.
type RotationMatrix struct {
	mat [9]float64
}

// NewIdentityRotation returns the rotation that does nothing.
func NewIdentityRotation() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// NewRotationMatrix returns a RotationMatrix from nine row-major values. It does not check orthonormality.
func NewRotationMatrix(m [9]float64) *RotationMatrix {
	return &RotationMatrix{m}
}

// NewRotationFromAxisAngle converts a Rodrigues vector (axis scaled by angle in radians) into a matrix.
func NewRotationFromAxisAngle(v r3.Vector) *RotationMatrix {
	return QuatToRotationMatrix(AxisAngleToQuat(v))
}

// NewRotationAboutAxis returns a rotation of angle radians around axis (need not be unit length).
func NewRotationAboutAxis(axis r3.Vector, angle float64) *RotationMatrix {
	return NewRotationFromAxisAngle(axis.Normalize().Mul(angle))
}

// AxisAngleToQuat converts a Rodrigues vector into a unit quaternion.
func AxisAngleToQuat(v r3.Vector) quat.Number {
	return quat.Exp(quat.Number{Imag: v.X / 2, Jmag: v.Y / 2, Kmag: v.Z / 2})
}

// QuatToAxisAngle converts a unit quaternion into a Rodrigues vector with angle in [0, pi].
func QuatToAxisAngle(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	l := quat.Log(q)
	return r3.Vector{X: 2 * l.Imag, Y: 2 * l.Jmag, Z: 2 * l.Kmag}
}

// QuatToRotationMatrix converts a quaternion to a rotation matrix. The quaternion is normalized first.
func QuatToRotationMatrix(q quat.Number) *RotationMatrix {
	n := quat.Abs(q)
	w, x, y, z := q.Real/n, q.Imag/n, q.Jmag/n, q.Kmag/n
	return &RotationMatrix{[9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}}
}

// At returns the value at row, col.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Dense returns the matrix as a gonum dense matrix.
func (rm *RotationMatrix) Dense() *mat.Dense {
	values := rm.mat
	return mat.NewDense(3, 3, values[:])
}

// Apply rotates v.
func (rm *RotationMatrix) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.mat[0]*v.X + rm.mat[1]*v.Y + rm.mat[2]*v.Z,
		Y: rm.mat[3]*v.X + rm.mat[4]*v.Y + rm.mat[5]*v.Z,
		Z: rm.mat[6]*v.X + rm.mat[7]*v.Y + rm.mat[8]*v.Z,
	}
}

// Transpose returns the inverse rotation.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	m := rm.mat
	return &RotationMatrix{[9]float64{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}}
}

// Mul returns rm·other, i.e. other applied first.
func (rm *RotationMatrix) Mul(other *RotationMatrix) *RotationMatrix {
	var product mat.Dense
	product.Mul(rm.Dense(), other.Dense())
	out := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[i*3+j] = product.At(i, j)
		}
	}
	return out
}

// Quaternion converts the matrix into a unit quaternion with a non-negative real part.
func (rm *RotationMatrix) Quaternion() quat.Number {
	m := rm.mat
	trace := m[0] + m[4] + m[8]
	var q quat.Number
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{Real: 0.25 / s, Imag: (m[7] - m[5]) * s, Jmag: (m[2] - m[6]) * s, Kmag: (m[3] - m[1]) * s}
	case m[0] > m[4] && m[0] > m[8]:
		s := 2 * math.Sqrt(1+m[0]-m[4]-m[8])
		q = quat.Number{Real: (m[7] - m[5]) / s, Imag: 0.25 * s, Jmag: (m[1] + m[3]) / s, Kmag: (m[2] + m[6]) / s}
	case m[4] > m[8]:
		s := 2 * math.Sqrt(1+m[4]-m[0]-m[8])
		q = quat.Number{Real: (m[2] - m[6]) / s, Imag: (m[1] + m[3]) / s, Jmag: 0.25 * s, Kmag: (m[5] + m[7]) / s}
	default:
		s := 2 * math.Sqrt(1+m[8]-m[0]-m[4])
		q = quat.Number{Real: (m[3] - m[1]) / s, Imag: (m[2] + m[6]) / s, Jmag: (m[5] + m[7]) / s, Kmag: 0.25 * s}
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// AxisAngle converts the matrix into a Rodrigues vector.
func (rm *RotationMatrix) AxisAngle() r3.Vector {
	return QuatToAxisAngle(rm.Quaternion())
}

// RotationAlmostEqual reports whether every entry of a and b differs by at most epsilon.
func RotationAlmostEqual(a, b *RotationMatrix, epsilon float64) bool {
	for i := range a.mat {
		if math.Abs(a.mat[i]-b.mat[i]) > epsilon {
			return false
		}
	}
	return true
}
