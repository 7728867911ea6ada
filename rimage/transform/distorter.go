package transform

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// RadialDistortionType is the two term polynomial on the squared radius of perspective cameras.
	RadialDistortionType = DistortionType("radial")
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// FisheyeDistortionType is the polynomial on the incidence angle of equidistant fisheye lenses.
	FisheyeDistortionType = DistortionType("fisheye")
)

// Distorter maps undistorted normalized coordinates to distorted ones and back.
type Distorter interface {
	ModelType() DistortionType
	Parameters() []float64
	Distort(x, y float64) (float64, float64)
	Undistort(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion parameters"), msg)
}

// distorterOf returns the lens distortion of cam, nil for models without one.
func distorterOf(cam Camera) Distorter {
	switch c := cam.(type) {
	case *PerspectiveCamera:
		return c.radial()
	case *BrownCamera:
		return c.distortion()
	case *FisheyeCamera:
		return c.distortion()
	}
	return nil
}

// checkDistortion rejects coefficients that are not finite numbers.
func checkDistortion(id string, d Distorter) error {
	if d == nil {
		return nil
	}
	for i, p := range d.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			msg := fmt.Sprintf("%s coefficient %d is %v", d.ModelType(), i, p)
			return NewInvalidCameraError(id, InvalidDistortionError(msg).Error())
		}
	}
	return nil
}

const (
	maxIterations = 20
	tolerance     = 1e-10
)

// RadialDistortion scales a point by 1 + k1*r² + k2*r⁴.
type RadialDistortion struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
}

// ModelType returns RadialDistortionType.
func (rd *RadialDistortion) ModelType() DistortionType { return RadialDistortionType }

// Parameters returns k1, k2.
func (rd *RadialDistortion) Parameters() []float64 { return []float64{rd.K1, rd.K2} }

// Distort applies the model.
func (rd *RadialDistortion) Distort(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	d := 1 + r2*(rd.K1+rd.K2*r2)
	return x * d, y * d
}

// Undistort inverts Distort by solving ru*(1 + k1*ru² + k2*ru⁴) = rd for the undistorted radius.
func (rd *RadialDistortion) Undistort(x, y float64) (float64, float64) {
	if rd.K1 == 0 && rd.K2 == 0 {
		return x, y
	}
	rDist := math.Hypot(x, y)
	if rDist == 0 {
		return x, y
	}
	ru := rDist
	for i := 0; i < maxIterations; i++ {
		ru2 := ru * ru
		f := ru*(1+ru2*(rd.K1+rd.K2*ru2)) - rDist
		if math.Abs(f) < tolerance {
			break
		}
		df := 1 + 3*rd.K1*ru2 + 5*rd.K2*ru2*ru2
		if df == 0 {
			break
		}
		ru -= f / df
	}
	s := ru / rDist
	return x * s, y * s
}

// BrownConrady is the radial and tangential lens model:
//
//	x_d = x_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x_u*y_u + p2*(r² + 2*x_u²)
//	y_d = y_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x_u*y_u + p1*(r² + 2*y_u²)
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// ModelType returns BrownConradyDistortionType.
func (bc *BrownConrady) ModelType() DistortionType { return BrownConradyDistortionType }

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// Distort applies the forward model.
func (bc *BrownConrady) Distort(xu, yu float64) (float64, float64) {
	if bc == nil {
		return xu, yu
	}
	r2 := xu*xu + yu*yu
	r4 := r2 * r2
	radDist := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
	return xu*radDist + 2.0*bc.TangentialP1*xu*yu + bc.TangentialP2*(r2+2.0*xu*xu),
		yu*radDist + 2.0*bc.TangentialP2*xu*yu + bc.TangentialP1*(r2+2.0*yu*yu)
}

// Undistort finds the undistorted coordinates that Distort sends to (xd, yd) with Newton-Raphson,
// starting from the distorted point.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc == nil {
		return xd, yd
	}
	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		r2 := xu*xu + yu*yu
		r4 := r2 * r2

		xdEst, ydEst := bc.Distort(xu, yu)
		errX := xdEst - xd
		errY := ydEst - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// J = [[dxd/dxu, dxd/dyu], [dyd/dxu, dyd/dyu]]
		radDist := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
		dRad := 2.0 * (bc.RadialK1 + 2.0*bc.RadialK2*r2 + 3.0*bc.RadialK3*r4)
		dxdDxu := radDist + xu*xu*dRad + 2.0*bc.TangentialP1*yu + 6.0*bc.TangentialP2*xu
		dxdDyu := xu*yu*dRad + 2.0*bc.TangentialP1*xu + 2.0*bc.TangentialP2*yu
		dydDxu := xu*yu*dRad + 2.0*bc.TangentialP2*yu + 2.0*bc.TangentialP1*xu
		dydDyu := radDist + yu*yu*dRad + 2.0*bc.TangentialP2*xu + 6.0*bc.TangentialP1*yu

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}
	return xu, yu
}

// FisheyeDistortion is the equidistant model with radius f*θ*(1 + k1*θ² + k2*θ⁴) where θ is the
// angle between a ray and the optical axis. Distort and Undistort work on θ directly.
type FisheyeDistortion struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
}

// ModelType returns FisheyeDistortionType.
func (fd *FisheyeDistortion) ModelType() DistortionType { return FisheyeDistortionType }

// Parameters returns k1, k2.
func (fd *FisheyeDistortion) Parameters() []float64 { return []float64{fd.K1, fd.K2} }

// Radius returns θ*(1 + k1*θ² + k2*θ⁴).
func (fd *FisheyeDistortion) Radius(theta float64) float64 {
	t2 := theta * theta
	return theta * (1 + t2*(fd.K1+fd.K2*t2))
}

// Theta solves Radius(θ) = r for θ.
func (fd *FisheyeDistortion) Theta(r float64) float64 {
	theta := r
	for i := 0; i < maxIterations; i++ {
		t2 := theta * theta
		f := fd.Radius(theta) - r
		if math.Abs(f) < tolerance {
			break
		}
		df := 1 + 3*fd.K1*t2 + 5*fd.K2*t2*t2
		if df == 0 {
			break
		}
		theta -= f / df
	}
	return theta
}

// Distort maps the point (tanθ·cosφ, tanθ·sinφ) of an ideal pinhole to its fisheye position.
func (fd *FisheyeDistortion) Distort(x, y float64) (float64, float64) {
	l := math.Hypot(x, y)
	if l == 0 {
		return x, y
	}
	s := fd.Radius(math.Atan(l)) / l
	return x * s, y * s
}

// Undistort inverts Distort. Points at or beyond 90° of incidence have no pinhole position and
// come back as infinities.
func (fd *FisheyeDistortion) Undistort(x, y float64) (float64, float64) {
	r := math.Hypot(x, y)
	if r == 0 {
		return x, y
	}
	theta := fd.Theta(r)
	if theta >= math.Pi/2 {
		return math.Inf(sign(x)), math.Inf(sign(y))
	}
	s := math.Tan(theta) / r
	return x * s, y * s
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
