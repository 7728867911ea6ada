// Package rimage decodes, resamples and encodes the rasters that travel with shots: color images
// and the label rasters (masks, segmentations, detections) whose values must never be blended.
package rimage

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Interpolation selects how a raster is sampled between pixel centers.
type Interpolation int

const (
	// Nearest copies the closest source pixel. Label rasters always use it.
	Nearest Interpolation = iota
	// Bilinear blends the four surrounding source pixels.
	Bilinear
	// Area averages every source pixel under a destination pixel when shrinking. When remapping
	// through a pixel mapping it falls back to Bilinear.
	Area
)

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case Area:
		return "area"
	}
	return fmt.Sprintf("Interpolation(%d)", int(i))
}

// planar is a view of an image whose pixels are stored interleaved in one byte slice, 8 or 16
// bits per big-endian channel, as the image package lays out Gray, Gray16, NRGBA and NRGBA64.
type planar struct {
	pix      []uint8
	stride   int
	width    int
	height   int
	channels int
	depth    int
}

func (p *planar) offset(x, y, c int) int {
	return y*p.stride + (x*p.channels+c)*p.depth
}

func (p *planar) at(x, y, c int) uint32 {
	i := p.offset(x, y, c)
	if p.depth == 1 {
		return uint32(p.pix[i])
	}
	return uint32(p.pix[i])<<8 | uint32(p.pix[i+1])
}

func (p *planar) set(x, y, c int, v uint32) {
	i := p.offset(x, y, c)
	if p.depth == 1 {
		p.pix[i] = uint8(v)
		return
	}
	p.pix[i] = uint8(v >> 8)
	p.pix[i+1] = uint8(v)
}

func (p *planar) maxValue() float64 {
	if p.depth == 1 {
		return 0xff
	}
	return 0xffff
}

// asPlanar returns img as one of *image.Gray, *image.Gray16, *image.NRGBA or *image.NRGBA64 with
// its origin at (0, 0), converting when needed, together with a planar view of it. 16-bit images
// stay 16-bit and gray images stay gray.
func asPlanar(img image.Image) (image.Image, *planar) {
	img = originAtZero(img)
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		return src, &planar{pix: src.Pix, stride: src.Stride, width: b.Dx(), height: b.Dy(), channels: 1, depth: 1}
	case *image.Gray16:
		return src, &planar{pix: src.Pix, stride: src.Stride, width: b.Dx(), height: b.Dy(), channels: 1, depth: 2}
	case *image.NRGBA:
		return src, &planar{pix: src.Pix, stride: src.Stride, width: b.Dx(), height: b.Dy(), channels: 4, depth: 1}
	case *image.NRGBA64:
		return src, &planar{pix: src.Pix, stride: src.Stride, width: b.Dx(), height: b.Dy(), channels: 4, depth: 2}
	case *image.RGBA64:
		converted := image.NewNRGBA64(b)
		draw.Draw(converted, b, src, b.Min, draw.Src)
		return asPlanar(converted)
	default:
		return asPlanar(imaging.Clone(img))
	}
}

// newLike allocates an empty image of the same planar kind as p.
func newLike(p *planar, width, height int) (image.Image, *planar) {
	r := image.Rect(0, 0, width, height)
	switch {
	case p.channels == 1 && p.depth == 1:
		return asPlanar(image.NewGray(r))
	case p.channels == 1:
		return asPlanar(image.NewGray16(r))
	case p.depth == 1:
		return asPlanar(image.NewNRGBA(r))
	default:
		return asPlanar(image.NewNRGBA64(r))
	}
}

func originAtZero(img image.Image) image.Image {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		return img
	}
	switch src := img.(type) {
	case *image.Gray:
		out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
		return out
	case *image.Gray16:
		out := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
		return out
	case *image.NRGBA64, *image.RGBA64:
		out := image.NewNRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
		return out
	default:
		return imaging.Clone(img)
	}
}

// Is16Bit reports whether img carries 16 bits per channel.
func Is16Bit(img image.Image) bool {
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return true
	}
	return false
}

// Labels returns the set of distinct pixel values of img.
func Labels(img image.Image) map[[4]uint32]struct{} {
	_, p := asPlanar(img)
	labels := map[[4]uint32]struct{}{}
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			var v [4]uint32
			for c := 0; c < p.channels; c++ {
				v[c] = p.at(x, y, c)
			}
			labels[v] = struct{}{}
		}
	}
	return labels
}
