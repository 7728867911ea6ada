package dataset

import (
	"image"
	"path"

	"github.com/spf13/afero"

	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage"
	"go.viam.com/sfm/tracking"
)

// UndistortedDataSet is the output of the undistortion stage, a sub-folder of a dataset keyed by
// sub-shot id.
type UndistortedDataSet struct {
	parent *DataSet
	fs     afero.Fs
	format rimage.Format
}

// UndistortedDataSet opens the sub-folder subfolder, "undistorted" when empty. Color images are
// written in the dataset's undistorted_image_format.
func (d *DataSet) UndistortedDataSet(subfolder string) (*UndistortedDataSet, error) {
	format, err := rimage.ParseFormat(d.config.UndistortedImageFormat)
	if err != nil {
		return nil, err
	}
	return &UndistortedDataSet{
		parent: d,
		fs:     afero.NewBasePathFs(d.fs, orDefault(subfolder, DefaultUndistortedSubfolder)),
		format: format,
	}, nil
}

// Parent returns the dataset the sub-folder belongs to.
func (u *UndistortedDataSet) Parent() *DataSet {
	return u.parent
}

// ImageFormat is the format color images are written in.
func (u *UndistortedDataSet) ImageFormat() rimage.Format {
	return u.format
}

// SaveReconstruction writes the undistorted reconstructions.
func (u *UndistortedDataSet) SaveReconstruction(recs []*reconstruction.Reconstruction) error {
	return saveReconstruction(u.fs, ReconstructionFile, recs)
}

// LoadReconstruction reads the undistorted reconstructions.
func (u *UndistortedDataSet) LoadReconstruction() ([]*reconstruction.Reconstruction, error) {
	return loadReconstruction(u.fs, ReconstructionFile)
}

// SaveTracksManager writes the undistorted tracks.
func (u *UndistortedDataSet) SaveTracksManager(tm *tracking.TracksManager) error {
	return saveTracks(u.fs, TracksFile, tm)
}

// LoadTracksManager reads the undistorted tracks, or nil when none were written.
func (u *UndistortedDataSet) LoadTracksManager() (*tracking.TracksManager, error) {
	return loadTracks(u.fs, TracksFile)
}

// SaveImage writes the color image of a sub-shot.
func (u *UndistortedDataSet) SaveImage(shot string, img image.Image) error {
	return saveRaster(u.fs, u.imagePath(shot), img, u.format)
}

// LoadImage reads the color image of a sub-shot, or nil.
func (u *UndistortedDataSet) LoadImage(shot string) (image.Image, error) {
	return loadRaster(u.fs, u.imagePath(shot))
}

// SaveMask writes the mask of a sub-shot.
func (u *UndistortedDataSet) SaveMask(shot string, img image.Image) error {
	return saveRaster(u.fs, labelPath(MasksDir, shot), img, rimage.FormatPNG)
}

// LoadMask reads the mask of a sub-shot, or nil.
func (u *UndistortedDataSet) LoadMask(shot string) (image.Image, error) {
	return loadRaster(u.fs, labelPath(MasksDir, shot))
}

// SaveSegmentation writes the segmentation of a sub-shot.
func (u *UndistortedDataSet) SaveSegmentation(shot string, img image.Image) error {
	return saveRaster(u.fs, labelPath(SegmentationsDir, shot), img, rimage.FormatPNG)
}

// LoadSegmentation reads the segmentation of a sub-shot, or nil.
func (u *UndistortedDataSet) LoadSegmentation(shot string) (image.Image, error) {
	return loadRaster(u.fs, labelPath(SegmentationsDir, shot))
}

// SaveDetection writes the detection raster of a sub-shot.
func (u *UndistortedDataSet) SaveDetection(shot string, img image.Image) error {
	return saveRaster(u.fs, labelPath(DetectionsDir, shot), img, rimage.FormatPNG)
}

// LoadDetection reads the detection raster of a sub-shot, or nil.
func (u *UndistortedDataSet) LoadDetection(shot string) (image.Image, error) {
	return loadRaster(u.fs, labelPath(DetectionsDir, shot))
}

// ImageExists reports whether the color image of a sub-shot was written.
func (u *UndistortedDataSet) ImageExists(shot string) bool {
	return exists(u.fs, u.imagePath(shot))
}

func (u *UndistortedDataSet) imagePath(shot string) string {
	return path.Join(ImagesDir, shot+u.format.Extension())
}
