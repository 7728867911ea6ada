package rimage

import (
	"image"
	"math"

	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/utils"
)

// Remap builds a m.Width×m.Height image whose pixel (x, y) samples img at the source position
// m stores for it. Out of frame pixels are zero. The output has the pixel kind of img after
// asPlanar, so label rasters remapped with Nearest only contain values present in img.
func Remap(img image.Image, m *transform.PixelMapping, interp Interpolation) image.Image {
	_, src := asPlanar(img)
	out, dst := newLike(src, m.Width, m.Height)
	maxValue := src.maxValue()

	utils.ParallelForEachRow(m.Height, func(y int) {
		for x := 0; x < m.Width; x++ {
			sx, sy, ok := m.At(x, y)
			if !ok {
				continue
			}
			if interp == Nearest {
				ix := clampInt(int(math.Floor(float64(sx))), 0, src.width-1)
				iy := clampInt(int(math.Floor(float64(sy))), 0, src.height-1)
				for c := 0; c < src.channels; c++ {
					dst.set(x, y, c, src.at(ix, iy, c))
				}
				continue
			}
			fx := float64(sx) - 0.5
			fy := float64(sy) - 0.5
			x0 := int(math.Floor(fx))
			y0 := int(math.Floor(fy))
			wx := fx - float64(x0)
			wy := fy - float64(y0)
			xa, xb := clampInt(x0, 0, src.width-1), clampInt(x0+1, 0, src.width-1)
			ya, yb := clampInt(y0, 0, src.height-1), clampInt(y0+1, 0, src.height-1)
			for c := 0; c < src.channels; c++ {
				top := float64(src.at(xa, ya, c))*(1-wx) + float64(src.at(xb, ya, c))*wx
				bottom := float64(src.at(xa, yb, c))*(1-wx) + float64(src.at(xb, yb, c))*wx
				v := math.Round(top*(1-wy) + bottom*wy)
				dst.set(x, y, c, uint32(math.Min(math.Max(v, 0), maxValue)))
			}
		}
	})
	return out
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
