package rimage

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestCappedSize(t *testing.T) {
	w, h := CappedSize(2000, 1000, 640)
	test.That(t, w, test.ShouldEqual, 640)
	test.That(t, h, test.ShouldEqual, 320)

	w, h = CappedSize(300, 200, 640)
	test.That(t, w, test.ShouldEqual, 300)
	test.That(t, h, test.ShouldEqual, 200)

	w, h = CappedSize(1000, 3, 10)
	test.That(t, w, test.ShouldEqual, 10)
	test.That(t, h, test.ShouldEqual, 1)
}

func TestResizeNearestKeepsKindAndLabels(t *testing.T) {
	src := labelImage(30, 20)
	out := Resize(src, 13, 7, Nearest)
	gray, ok := out.(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gray.Bounds(), test.ShouldResemble, image.Rect(0, 0, 13, 7))
	srcLabels := Labels(src)
	for label := range Labels(out) {
		_, ok := srcLabels[label]
		test.That(t, ok, test.ShouldBeTrue)
	}
}

func TestResizeArea(t *testing.T) {
	// a 2x2 checker of 0 and 200 averages to 100
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if (x+y)%2 == 0 {
				src.SetGray(x, y, color.Gray{Y: 200})
			}
		}
	}
	out := Resize(src, 2, 2, Area)
	gray, ok := out.(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldAlmostEqual, 100, 2)

	color8 := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	_, ok = Resize(color8, 5, 5, Area).(*image.NRGBA)
	test.That(t, ok, test.ShouldBeTrue)

	deep := image.NewGray16(image.Rect(0, 0, 10, 10))
	test.That(t, Is16Bit(Resize(deep, 5, 5, Area)), test.ShouldBeTrue)
}

func TestScaleToMaxSize(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	same := ScaleToMaxSize(src, 1e9, Nearest)
	test.That(t, same, test.ShouldEqual, image.Image(src))

	out := ScaleToMaxSize(src, 50, Area)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 50)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 25)
}

func TestEncodeDecode(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 6, 4))
	img.SetGray16(2, 3, color.Gray16{Y: 40000})

	data, err := EncodeImageBytes(img, FormatTIFF)
	test.That(t, err, test.ShouldBeNil)
	back, format, err := DecodeImage(bytes.NewReader(data))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, "tiff")
	test.That(t, Is16Bit(back), test.ShouldBeTrue)
	r, _, _, _ := back.At(2, 3).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(40000))

	data, err = EncodeImageBytes(labelImage(8, 8), FormatPNG)
	test.That(t, err, test.ShouldBeNil)
	cfg, format, err := DecodeImageConfig(bytes.NewReader(data))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, "png")
	test.That(t, cfg.Width, test.ShouldEqual, 8)

	data, err = EncodeImageBytes(image.NewNRGBA(image.Rect(0, 0, 4, 4)), FormatJPEG)
	test.That(t, err, test.ShouldBeNil)
	_, format, err = DecodeImage(bytes.NewReader(data))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, "jpeg")

	_, err = EncodeImageBytes(img, Format("bmp"))
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = DecodeImage(bytes.NewReader([]byte("nope")))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".JPEG")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, FormatJPEG)
	test.That(t, f.Extension(), test.ShouldEqual, ".jpg")
	f, err = ParseFormat("tif")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, FormatTIFF)
	_, err = ParseFormat("gif")
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, IsImageFile("a/b.WEBP"), test.ShouldBeTrue)
	test.That(t, IsImageFile("a/b.txt"), test.ShouldBeFalse)
}
