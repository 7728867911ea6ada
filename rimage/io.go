package rimage

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
	// webp registers its decoder with the image package.
	_ "golang.org/x/image/webp"
)

// Format is an encoding rasters can be written in.
type Format string

const (
	// FormatJPEG is lossy 8-bit color.
	FormatJPEG = Format("jpg")
	// FormatPNG is lossless and is what label rasters are written as.
	FormatPNG = Format("png")
	// FormatTIFF is lossless and keeps 16-bit channels.
	FormatTIFF = Format("tiff")
)

// JPEGQuality is the quality written JPEG files use.
var JPEGQuality = 95

// ParseFormat accepts a format name or a file extension, with or without the dot.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return "", errors.Errorf("unsupported image format %q", s)
	}
}

// Extension is the file extension, with its dot, files of f are written with.
func (f Format) Extension() string {
	return "." + string(f)
}

// IsImageFile reports whether path has an extension DecodeImage can read.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// DecodeImage reads a jpeg, png, tiff or webp raster without changing its pixel kind, so 16-bit
// files stay 16-bit.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", errors.Wrap(err, "decoding image")
	}
	return img, format, nil
}

// DecodeImageConfig reads only the size and color model of a raster.
func DecodeImageConfig(r io.Reader) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, "", errors.Wrap(err, "decoding image header")
	}
	return cfg, format, nil
}

// EncodeImage writes img as f.
func EncodeImage(w io.Writer, img image.Image, f Format) error {
	var err error
	switch f {
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return errors.Errorf("unsupported image format %q", f)
	}
	return errors.Wrapf(err, "encoding %s", f)
}

// EncodeImageBytes is EncodeImage into memory.
func EncodeImageBytes(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
