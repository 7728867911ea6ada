// Package exif extracts the per-image metadata the reconstruction starts from and derives the
// initial camera models from it.
package exif

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	goexif "github.com/rwcarlsen/goexif/exif"

	"go.viam.com/sfm/rimage/transform"
)

// GPS is a capture position.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	DOP       float64 `json:"dop"`
}

// Metadata is what is known about one image before reconstruction.
type Metadata struct {
	Make           string  `json:"make"`
	Model          string  `json:"model"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	ProjectionType string  `json:"projection_type"`
	FocalRatio     float64 `json:"focal_ratio"`
	Orientation    int     `json:"orientation"`
	CaptureTime    float64 `json:"capture_time"`
	GPS            *GPS    `json:"gps,omitempty"`
	Camera         string  `json:"camera"`
}

// Extract reads EXIF tags from r. Images without EXIF come back with unknown make and model and
// zero size and focal; callers fill the size from the image itself.
func Extract(r io.Reader) (*Metadata, error) {
	md := &Metadata{
		Make:           "unknown",
		Model:          "unknown",
		ProjectionType: string(transform.PerspectiveProjection),
		Orientation:    1,
	}
	x, err := goexif.Decode(r)
	if err != nil {
		if goexif.IsCriticalError(err) {
			return md, nil
		}
		if x == nil {
			return nil, errors.Wrap(err, "reading exif")
		}
	}
	if v, err := stringTag(x, goexif.Make); err == nil && v != "" {
		md.Make = v
	}
	if v, err := stringTag(x, goexif.Model); err == nil && v != "" {
		md.Model = v
	}
	if v, err := intTag(x, goexif.PixelXDimension); err == nil {
		md.Width = v
	}
	if v, err := intTag(x, goexif.PixelYDimension); err == nil {
		md.Height = v
	}
	if v, err := intTag(x, goexif.Orientation); err == nil && v >= 1 && v <= 8 {
		md.Orientation = v
	}
	if v, err := intTag(x, goexif.FocalLengthIn35mmFilm); err == nil && v > 0 {
		md.FocalRatio = float64(v) / 36.0
	}
	if tm, err := x.DateTime(); err == nil {
		md.CaptureTime = float64(tm.UnixNano()) / 1e9
	}
	if lat, long, err := x.LatLong(); err == nil {
		md.GPS = &GPS{Latitude: lat, Longitude: long}
		if tag, err := x.Get(goexif.GPSAltitude); err == nil {
			if num, den, err := tag.Rat2(0); err == nil && den != 0 {
				md.GPS.Altitude = float64(num) / float64(den)
			}
		}
	}
	return md, nil
}

func stringTag(x *goexif.Exif, name goexif.FieldName) (string, error) {
	tag, err := x.Get(name)
	if err != nil {
		return "", err
	}
	v, err := tag.StringVal()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(v, "\x00")), nil
}

func intTag(x *goexif.Exif, name goexif.FieldName) (int, error) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, err
	}
	return tag.Int(0)
}

// CameraID identifies the camera model an image was taken with, so images from the same camera
// share intrinsics.
func CameraID(md *Metadata) string {
	return strings.ToLower(fmt.Sprintf("v2 %s %s %d %d %s %.4f",
		strings.TrimSpace(md.Make), strings.TrimSpace(md.Model),
		md.Width, md.Height, md.ProjectionType, md.FocalRatio))
}

// ApplyOverrides sets the fields of md named in overrides, which use the JSON field names.
func (md *Metadata) ApplyOverrides(overrides map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           md,
	})
	if err != nil {
		return err
	}
	return errors.Wrap(decoder.Decode(overrides), "applying exif overrides")
}

// CameraFromMetadata builds the initial camera of md's camera id. Without a known focal ratio the
// focal length is defaultFocalPrior.
func CameraFromMetadata(md *Metadata, defaultFocalPrior float64) (transform.Camera, error) {
	focal := md.FocalRatio
	if focal <= 0 || math.IsNaN(focal) {
		focal = defaultFocalPrior
	}
	id := md.Camera
	if id == "" {
		id = CameraID(md)
	}
	switch transform.ProjectionType(md.ProjectionType) {
	case transform.PerspectiveProjection, "":
		return &transform.PerspectiveCamera{CameraID: id, Width: md.Width, Height: md.Height, Focal: focal}, nil
	case transform.BrownProjection:
		return &transform.BrownCamera{
			CameraID: id, Width: md.Width, Height: md.Height, FocalX: focal, FocalY: focal,
		}, nil
	case transform.FisheyeProjection:
		return &transform.FisheyeCamera{CameraID: id, Width: md.Width, Height: md.Height, Focal: focal}, nil
	case transform.SphericalProjection, transform.EquirectangularProjection:
		return &transform.SphericalCamera{CameraID: id, Width: md.Width, Height: md.Height}, nil
	default:
		return nil, transform.NewUnsupportedProjectionError(transform.ProjectionType(md.ProjectionType))
	}
}
