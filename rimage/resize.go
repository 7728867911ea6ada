package rimage

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resize scales img to width×height. Nearest keeps the pixel kind of img and never blends values.
// Area and Bilinear keep 16-bit images 16-bit; 8-bit images come back as *image.NRGBA, or
// *image.Gray when img is gray.
func Resize(img image.Image, width, height int, interp Interpolation) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	switch interp {
	case Nearest:
		return resizeNearest(img, width, height)
	case Bilinear:
		return resizeFiltered(img, width, height, imaging.Linear)
	case Area:
		return resizeFiltered(img, width, height, imaging.Box)
	}
	return resizeNearest(img, width, height)
}

func resizeNearest(img image.Image, width, height int) image.Image {
	_, src := asPlanar(img)
	out, _ := newLike(src, width, height)
	draw.NearestNeighbor.Scale(out.(draw.Image), out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

func resizeFiltered(img image.Image, width, height int, filter imaging.ResampleFilter) image.Image {
	if Is16Bit(img) {
		// nfnt widens its kernel when shrinking, which averages like an area filter.
		return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	}
	resized := imaging.Resize(img, width, height, filter)
	if _, ok := img.(*image.Gray); ok {
		gray := image.NewGray(resized.Bounds())
		draw.Draw(gray, gray.Bounds(), resized, image.Point{}, draw.Src)
		return gray
	}
	return resized
}

// CappedSize returns the size of a width×height image shrunk, keeping its aspect ratio, until
// neither side exceeds maxSize. Images already within the cap keep their size.
func CappedSize(width, height int, maxSize float64) (int, int) {
	factor := maxSize / math.Max(float64(width), float64(height))
	if factor >= 1 {
		return width, height
	}
	w := int(math.Max(1, math.Round(float64(width)*factor)))
	h := int(math.Max(1, math.Round(float64(height)*factor)))
	return w, h
}

// ScaleToMaxSize shrinks img with interp so that neither side exceeds maxSize.
func ScaleToMaxSize(img image.Image, maxSize float64, interp Interpolation) image.Image {
	b := img.Bounds()
	w, h := CappedSize(b.Dx(), b.Dy(), maxSize)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return Resize(img, w, h, interp)
}
