package undistort

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"go.viam.com/sfm/dataset"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage"
	"go.viam.com/sfm/rimage/transform"
)

// NoSizeCap is the maximum size given to rasters that are never shrunk.
const NoSizeCap = 1e9

// RasterKind is one of the rasters a shot may have.
type RasterKind int

const (
	// ColorImage is the photograph itself.
	ColorImage RasterKind = iota
	// Mask marks the pixels to ignore with zero.
	Mask
	// Segmentation holds one class label per pixel.
	Segmentation
	// Detection holds one instance label per pixel.
	Detection
)

// RasterKinds lists every kind in the order they are processed.
var RasterKinds = []RasterKind{ColorImage, Mask, Segmentation, Detection}

func (k RasterKind) String() string {
	switch k {
	case ColorImage:
		return "image"
	case Mask:
		return "mask"
	case Segmentation:
		return "segmentation"
	case Detection:
		return "detection"
	}
	return "unknown"
}

// Interpolation is the resampling a kind uses. Labels are only ever copied, never blended.
func (k RasterKind) Interpolation() rimage.Interpolation {
	if k == ColorImage {
		return rimage.Area
	}
	return rimage.Nearest
}

// UndistortRaster resamples img, a raster of shot, into each of subshots and returns the results
// keyed by sub-shot id. Outputs are shrunk with interp so neither side exceeds maxSize.
//
// Non-panoramic outputs keep the size of img, so a low resolution mask stays low resolution.
//
// Panoramas are first resized to 4w×2w, w being the sub-shot width, and each face samples that
// resized image. The Area policy becomes Bilinear for that sampling.
func UndistortRaster(
	shot *reconstruction.Shot,
	subshots []*reconstruction.Shot,
	img image.Image,
	interp rimage.Interpolation,
	maxSize float64,
) (map[string]image.Image, error) {
	bounds := img.Bounds()
	out := make(map[string]image.Image, len(subshots))
	switch shot.Camera.(type) {
	case *transform.PerspectiveCamera, *transform.BrownCamera, *transform.FisheyeCamera:
		if len(subshots) != 1 {
			return nil, errors.Errorf("shot %q must have exactly one sub-shot, got %d", shot.ID, len(subshots))
		}
		sub := subshots[0]
		src, err := transform.WithSize(shot.Camera, bounds.Dx(), bounds.Dy())
		if err != nil {
			return nil, err
		}
		m, err := transform.BuildMapping(src, sub.Camera, bounds.Dx(), bounds.Dy(), nil)
		if err != nil {
			return nil, errors.Wrapf(err, "mapping %q", sub.ID)
		}
		out[sub.ID] = rimage.ScaleToMaxSize(rimage.Remap(img, m, interp), maxSize, interp)
	case *transform.SphericalCamera:
		if len(subshots) == 0 {
			return nil, errors.Errorf("panorama %q has no sub-shots", shot.ID)
		}
		width, _ := subshots[0].Camera.Size()
		resized := rimage.Resize(img, 4*width, 2*width, interp)
		src, err := transform.WithSize(shot.Camera, 4*width, 2*width)
		if err != nil {
			return nil, err
		}
		sampling := interp
		if sampling == rimage.Area {
			sampling = rimage.Bilinear
		}
		for _, sub := range subshots {
			w, h := sub.Camera.Size()
			m, err := transform.BuildMapping(src, sub.Camera, w, h, relativeRotation(shot, sub))
			if err != nil {
				return nil, errors.Wrapf(err, "mapping %q", sub.ID)
			}
			out[sub.ID] = rimage.ScaleToMaxSize(rimage.Remap(resized, m, sampling), maxSize, interp)
		}
	default:
		return nil, errors.Wrapf(transform.NewUnsupportedProjectionError(projectionName(shot.Camera)), "shot %q", shot.ID)
	}
	return out, nil
}

// ShotTask undistorts every raster an original shot has and writes one output per sub-shot and
// kind. Missing rasters are skipped.
type ShotTask struct {
	Shot     *reconstruction.Shot
	SubShots []*reconstruction.Shot
}

// Run loads the rasters of the task's shot from data and saves the undistorted ones to udata.
// It returns the kinds that were written.
func (t ShotTask) Run(ctx context.Context, data *dataset.DataSet, udata *dataset.UndistortedDataSet) ([]RasterKind, error) {
	var written []RasterKind
	for _, kind := range RasterKinds {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		img, err := load(data, kind, t.Shot.ID)
		if err != nil {
			return written, errors.Wrapf(err, "loading %s of %q", kind, t.Shot.ID)
		}
		if img == nil {
			continue
		}
		maxSize := float64(NoSizeCap)
		if kind == ColorImage {
			maxSize = float64(data.Config().UndistortedImageMaxSize)
		}
		outputs, err := UndistortRaster(t.Shot, t.SubShots, img, kind.Interpolation(), maxSize)
		if err != nil {
			return written, err
		}
		for _, sub := range t.SubShots {
			if err := save(udata, kind, sub.ID, outputs[sub.ID]); err != nil {
				return written, errors.Wrapf(err, "saving %s of %q", kind, sub.ID)
			}
		}
		written = append(written, kind)
	}
	return written, nil
}

func load(data *dataset.DataSet, kind RasterKind, shot string) (image.Image, error) {
	switch kind {
	case ColorImage:
		return data.LoadImage(shot)
	case Mask:
		return data.LoadMask(shot)
	case Segmentation:
		return data.LoadSegmentation(shot)
	case Detection:
		return data.LoadDetection(shot)
	}
	return nil, errors.Errorf("unknown raster kind %d", kind)
}

func save(udata *dataset.UndistortedDataSet, kind RasterKind, shot string, img image.Image) error {
	switch kind {
	case ColorImage:
		return udata.SaveImage(shot, img)
	case Mask:
		return udata.SaveMask(shot, img)
	case Segmentation:
		return udata.SaveSegmentation(shot, img)
	case Detection:
		return udata.SaveDetection(shot, img)
	}
	return errors.Errorf("unknown raster kind %d", kind)
}
