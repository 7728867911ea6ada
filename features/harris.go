package features

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/rimage"
)

const (
	harrisK           = 0.04
	harrisSigma       = 1.5
	descriptorSigma   = 1.0
	descriptorRadius  = 4
	descriptorSpacing = 1
)

// HarrisExtractor finds Harris corners on a grayscale copy of the image shrunk to ProcessSize and
// describes each with a normalized 8x8 intensity patch.
type HarrisExtractor struct {
	MaxFrames   int
	ProcessSize int
	// Threshold is the minimum corner response relative to the strongest corner of the image.
	Threshold float64
}

type corner struct {
	x, y     int
	response float64
}

// Extract implements Extractor.
func (h *HarrisExtractor) Extract(ctx context.Context, img image.Image) (*FeatureData, error) {
	b := img.Bounds()
	scale := 1.
	work := img
	if largest := math.Max(float64(b.Dx()), float64(b.Dy())); h.ProcessSize > 0 && largest > float64(h.ProcessSize) {
		w, hh := rimage.CappedSize(b.Dx(), b.Dy(), float64(h.ProcessSize))
		work = rimage.Resize(img, w, hh, rimage.Area)
		scale = float64(b.Dx()) / float64(w)
	}
	gray := rimage.GrayDense(work)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gradient := rimage.SobelGradient(gray)
	response := harrisResponse(gradient)
	corners := h.selectCorners(response)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	descriptorBlur := rimage.GaussianKernel(descriptorSigma)
	smooth := rimage.ConvolveGrayFloat64(gray, &descriptorBlur)
	colorSource := imaging.Clone(img)

	out := &FeatureData{}
	for _, c := range corners {
		desc := describe(smooth, c.x, c.y)
		if desc == nil {
			continue
		}
		x := (float64(c.x) + 0.5) * scale
		y := (float64(c.y) + 0.5) * scale
		px := image.Point{X: int(x), Y: int(y)}
		if !px.In(colorSource.Bounds()) {
			px = colorSource.Bounds().Min
		}
		clr := colorSource.NRGBAAt(px.X, px.Y)
		angle := gradient.DominantDirection(c.x, c.y, descriptorRadius) * 180 / math.Pi
		out.Points = append(out.Points, Feature{X: x, Y: y, Size: descriptorRadius * scale, Angle: angle})
		out.Descriptors = append(out.Descriptors, desc)
		out.Colors = append(out.Colors, [3]int{int(clr.R), int(clr.G), int(clr.B)})
	}
	return out, nil
}

// harrisResponse returns det(M) - k·trace(M)² of the blurred structure tensor M at every pixel.
func harrisResponse(gradient rimage.Gradient) *mat.Dense {
	ix, iy := gradient.X, gradient.Y
	rows, cols := ix.Dims()
	ixx := mat.NewDense(rows, cols, nil)
	iyy := mat.NewDense(rows, cols, nil)
	ixy := mat.NewDense(rows, cols, nil)
	ixx.MulElem(ix, ix)
	iyy.MulElem(iy, iy)
	ixy.MulElem(ix, iy)

	window := rimage.GaussianKernel(harrisSigma)
	sxx := rimage.ConvolveGrayFloat64(ixx, &window)
	syy := rimage.ConvolveGrayFloat64(iyy, &window)
	sxy := rimage.ConvolveGrayFloat64(ixy, &window)

	response := mat.NewDense(rows, cols, nil)
	response.Apply(func(i, j int, _ float64) float64 {
		a, b, c := sxx.At(i, j), syy.At(i, j), sxy.At(i, j)
		trace := a + b
		return a*b - c*c - harrisK*trace*trace
	}, response)
	return response
}

// selectCorners keeps 3x3 local maxima above the relative threshold, strongest first, at most
// MaxFrames of them. Corners too close to the border for a descriptor are skipped.
func (h *HarrisExtractor) selectCorners(response *mat.Dense) []corner {
	rows, cols := response.Dims()
	maxResponse := mat.Max(response)
	if maxResponse <= 0 {
		return nil
	}
	threshold := h.Threshold * maxResponse
	margin := descriptorRadius * descriptorSpacing

	var corners []corner
	for y := margin; y < rows-margin; y++ {
		for x := margin; x < cols-margin; x++ {
			r := response.At(y, x)
			if r <= threshold || r <= 0 {
				continue
			}
			// ties go to the later pixel in raster order
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					n := response.At(y+dy, x+dx)
					later := dy > 0 || (dy == 0 && dx > 0)
					if n > r || (later && n == r) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				corners = append(corners, corner{x: x, y: y, response: r})
			}
		}
	}
	sort.SliceStable(corners, func(i, j int) bool {
		return corners[i].response > corners[j].response
	})
	if h.MaxFrames > 0 && len(corners) > h.MaxFrames {
		corners = corners[:h.MaxFrames]
	}
	return corners
}

// describe samples a (2r)x(2r) patch around (x, y) and normalizes it to zero mean and unit
// length. Flat patches have no descriptor.
func describe(smooth *mat.Dense, x, y int) []float32 {
	size := 2 * descriptorRadius
	values := make([]float64, 0, size*size)
	sum := 0.
	for dy := -descriptorRadius; dy < descriptorRadius; dy++ {
		for dx := -descriptorRadius; dx < descriptorRadius; dx++ {
			v := smooth.At(y+dy*descriptorSpacing, x+dx*descriptorSpacing)
			values = append(values, v)
			sum += v
		}
	}
	mean := sum / float64(len(values))
	norm := 0.
	for i := range values {
		values[i] -= mean
		norm += values[i] * values[i]
	}
	norm = math.Sqrt(norm)
	if norm < 1e-9 {
		return nil
	}
	desc := make([]float32, len(values))
	for i, v := range values {
		desc[i] = float32(v / norm)
	}
	return desc
}
