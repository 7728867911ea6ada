package rimage

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec2D represents the gradient of an image at a point.
// Magnitude is non-negative and direction is in [0, 2pi).
type Vec2D struct {
	magnitude float64
	direction float64
}

// Magnitude is the length of the gradient.
func (g Vec2D) Magnitude() float64 {
	return g.magnitude
}

// Direction is the angle of the gradient from the x axis towards the y axis (down).
func (g Vec2D) Direction() float64 {
	return g.direction
}

// Gradient holds the Sobel derivatives of a grayscale matrix, indexed (row, column).
type Gradient struct {
	X *mat.Dense
	Y *mat.Dense
}

// SobelGradient convolves gray with both Sobel kernels.
func SobelGradient(gray *mat.Dense) Gradient {
	sobelX, sobelY := GetSobelX(), GetSobelY()
	return Gradient{
		X: ConvolveGrayFloat64(gray, &sobelX),
		Y: ConvolveGrayFloat64(gray, &sobelY),
	}
}

// At returns the gradient at column x, row y.
func (g Gradient) At(x, y int) Vec2D {
	dx, dy := g.X.At(y, x), g.Y.At(y, x)
	return Vec2D{magnitude: math.Hypot(dx, dy), direction: radZeroTo2Pi(math.Atan2(dy, dx))}
}

// DominantDirection is the magnitude weighted mean direction of the gradients within radius of
// (x, y), in [0, 2pi). Pixels outside the matrix are ignored and a flat window yields 0.
func (g Gradient) DominantDirection(x, y, radius int) float64 {
	rows, cols := g.X.Dims()
	var sumX, sumY float64
	for yy := max(0, y-radius); yy <= min(rows-1, y+radius); yy++ {
		for xx := max(0, x-radius); xx <= min(cols-1, x+radius); xx++ {
			sumX += g.X.At(yy, xx)
			sumY += g.Y.At(yy, xx)
		}
	}
	if sumX == 0 && sumY == 0 {
		return 0
	}
	return radZeroTo2Pi(math.Atan2(sumY, sumX))
}

// changes the radians from between -pi,pi to 0,2pi
func radZeroTo2Pi(rad float64) float64 {
	if rad < 0. {
		rad += 2. * math.Pi
	}
	return rad
}
