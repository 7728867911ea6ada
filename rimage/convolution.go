package rimage

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/utils"
)

// Kernel is a convolution matrix stored row-major.
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// At returns the kernel value at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}, 3, 3}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}, 3, 3}
}

// GaussianKernel returns a normalized square kernel covering three sigmas on each side.
func GaussianKernel(sigma float64) Kernel {
	radius := int(math.Max(1, math.Ceil(3*sigma)))
	size := 2*radius + 1
	content := make([][]float64, size)
	sum := 0.
	for y := 0; y < size; y++ {
		content[y] = make([]float64, size)
		for x := 0; x < size; x++ {
			dx, dy := float64(x-radius), float64(y-radius)
			content[y][x] = math.Exp(-0.5 * (dx*dx + dy*dy) / (sigma * sigma))
			sum += content[y][x]
		}
	}
	for y := range content {
		for x := range content[y] {
			content[y][x] /= sum
		}
	}
	return Kernel{content, size, size}
}

// ConvolveGrayFloat64 convolves a float image with filter centered on each pixel. Borders
// replicate the nearest edge value. There is no clamping of the result.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) *mat.Dense {
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	ax, ay := filter.Width/2, filter.Height/2
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			sum := 0.
			for ky := 0; ky < filter.Height; ky++ {
				yy := clampInt(y+ky-ay, 0, h-1)
				for kx := 0; kx < filter.Width; kx++ {
					xx := clampInt(x+kx-ax, 0, w-1)
					sum += m.At(yy, xx) * filter.At(kx, ky)
				}
			}
			result.Set(y, x, sum)
		}
	})
	return result
}

// GrayDense converts img to luminance in [0, 1] as a height×width matrix.
func GrayDense(img image.Image) *mat.Dense {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	m := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			m.Set(y, x, float64(gray.Pix[y*gray.Stride+x*4])/255)
		}
	}
	return m
}
