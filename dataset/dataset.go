// Package dataset reads and writes the artifacts of a reconstruction project. A dataset is a
// directory holding config.yaml, the source images and everything the pipeline stages produce.
//
// Loaders of optional artifacts return a nil value and a nil error when the artifact is absent.
// Every key is written by exactly one worker, so concurrent saves to different keys need no
// coordination.
package dataset

import (
	"bytes"
	"encoding/json"
	"image"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"go.viam.com/sfm/config"
	"go.viam.com/sfm/exif"
	"go.viam.com/sfm/features"
	"go.viam.com/sfm/matching"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage"
	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/tracking"
)

// Artifact locations relative to the dataset root.
const (
	ImagesDir                   = "images"
	MasksDir                    = "masks"
	SegmentationsDir            = "segmentations"
	DetectionsDir               = "detections"
	ExifDir                     = "exif"
	FeaturesDir                 = "features"
	MatchesDir                  = "matches"
	ReportsDir                  = "reports"
	ExifOverridesFile           = "exif_overrides.json"
	CameraModelsFile            = "camera_models.json"
	CameraModelsOverridesFile   = "camera_models_overrides.json"
	TracksFile                  = "tracks.csv"
	ReconstructionFile          = "reconstruction.json"
	ProfileLogFile              = "profile.log"
	DefaultUndistortedSubfolder = "undistorted"
)

// DataSet is a reconstruction project rooted at a directory of fs.
type DataSet struct {
	fs     afero.Fs
	config *config.Config
}

// New opens the dataset in the directory dir of the local filesystem.
func New(dir string) (*DataSet, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "opening dataset")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("dataset path %q is not a directory", dir)
	}
	return NewFromFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// NewFromFs opens the dataset rooted at the top of fs and reads its config.yaml.
func NewFromFs(fs afero.Fs) (*DataSet, error) {
	cfg, err := config.Load(fs, config.FileName)
	if err != nil {
		return nil, err
	}
	return &DataSet{fs: fs, config: cfg}, nil
}

// Config returns the dataset settings.
func (d *DataSet) Config() *config.Config {
	return d.config
}

// Fs returns the filesystem the dataset lives in.
func (d *DataSet) Fs() afero.Fs {
	return d.fs
}

// Images returns the names of the files of the images directory that are rasters, sorted.
func (d *DataSet) Images() ([]string, error) {
	entries, err := afero.ReadDir(d.fs, ImagesDir)
	if err != nil {
		return nil, errors.Wrap(err, "listing images")
	}
	images := lo.FilterMap(entries, func(e os.FileInfo, _ int) (string, bool) {
		return e.Name(), !e.IsDir() && rimage.IsImageFile(e.Name())
	})
	sort.Strings(images)
	return images, nil
}

// LoadImage decodes the image called name.
func (d *DataSet) LoadImage(name string) (image.Image, error) {
	return loadRaster(d.fs, path.Join(ImagesDir, name))
}

// ImageSize reads the size of image from its header.
func (d *DataSet) ImageSize(name string) (int, int, error) {
	f, err := d.fs.Open(path.Join(ImagesDir, name))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "opening image %q", name)
	}
	defer f.Close()
	cfg, _, err := rimage.DecodeImageConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "image %q", name)
	}
	return cfg.Width, cfg.Height, nil
}

// LoadMask returns the mask of image or nil. Zero mask pixels exclude the pixel from detection.
func (d *DataSet) LoadMask(name string) (image.Image, error) {
	return loadRaster(d.fs, labelPath(MasksDir, name))
}

// LoadSegmentation returns the segmentation of image or nil.
func (d *DataSet) LoadSegmentation(name string) (image.Image, error) {
	return loadRaster(d.fs, labelPath(SegmentationsDir, name))
}

// LoadDetection returns the detection raster of image or nil.
func (d *DataSet) LoadDetection(name string) (image.Image, error) {
	return loadRaster(d.fs, labelPath(DetectionsDir, name))
}

// ExifExists reports whether metadata of image was already extracted.
func (d *DataSet) ExifExists(name string) bool {
	return exists(d.fs, exifPath(name))
}

// LoadExif reads the extracted metadata of image.
func (d *DataSet) LoadExif(name string) (*exif.Metadata, error) {
	md := &exif.Metadata{}
	if err := readJSON(d.fs, exifPath(name), md); err != nil {
		return nil, err
	}
	return md, nil
}

// SaveExif writes the extracted metadata of image.
func (d *DataSet) SaveExif(name string, md *exif.Metadata) error {
	return writeJSON(d.fs, exifPath(name), md)
}

// ExtractExif reads the EXIF tags of image.
func (d *DataSet) ExtractExif(name string) (*exif.Metadata, error) {
	f, err := d.fs.Open(path.Join(ImagesDir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "opening image %q", name)
	}
	defer f.Close()
	return exif.Extract(f)
}

// LoadExifOverrides reads the per-image metadata overrides, or nil when there are none.
func (d *DataSet) LoadExifOverrides() (map[string]map[string]interface{}, error) {
	if !exists(d.fs, ExifOverridesFile) {
		return nil, nil
	}
	var overrides map[string]map[string]interface{}
	if err := readJSON(d.fs, ExifOverridesFile, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

// LoadCameraModels reads the camera models found by the metadata stage.
func (d *DataSet) LoadCameraModels() (map[string]transform.Camera, error) {
	data, err := afero.ReadFile(d.fs, CameraModelsFile)
	if err != nil {
		return nil, errors.Wrap(err, "reading camera models")
	}
	return transform.UnmarshalCameras(data)
}

// SaveCameraModels writes the camera models.
func (d *DataSet) SaveCameraModels(cameras map[string]transform.Camera) error {
	data, err := transform.MarshalCameras(cameras)
	if err != nil {
		return err
	}
	return writeFile(d.fs, CameraModelsFile, data)
}

// LoadCameraModelsOverrides reads camera_models_overrides.json as raw attributes keyed by camera
// id, or nil when there is no such file. The key "all" applies to every camera.
func (d *DataSet) LoadCameraModelsOverrides() (map[string]map[string]interface{}, error) {
	if !exists(d.fs, CameraModelsOverridesFile) {
		return nil, nil
	}
	var overrides map[string]map[string]interface{}
	if err := readJSON(d.fs, CameraModelsOverridesFile, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

// FeaturesExist reports whether features of image were already detected.
func (d *DataSet) FeaturesExist(name string) bool {
	return exists(d.fs, featuresPath(name))
}

// LoadFeatures reads the features of image, or nil when there are none.
func (d *DataSet) LoadFeatures(name string) (*features.FeatureData, error) {
	if !d.FeaturesExist(name) {
		return nil, nil
	}
	fd := &features.FeatureData{}
	if err := readJSON(d.fs, featuresPath(name), fd); err != nil {
		return nil, err
	}
	if err := fd.CheckValid(); err != nil {
		return nil, errors.Wrapf(err, "features of %q", name)
	}
	return fd, nil
}

// SaveFeatures writes the features of image.
func (d *DataSet) SaveFeatures(name string, fd *features.FeatureData) error {
	return writeJSON(d.fs, featuresPath(name), fd)
}

// MatchesExist reports whether matches of image were already computed.
func (d *DataSet) MatchesExist(name string) bool {
	return exists(d.fs, matchesPath(name))
}

// LoadMatches reads the matches of image against other images keyed by the other image, or nil
// when there are none. Each match indexes first into the features of name.
func (d *DataSet) LoadMatches(name string) (map[string][]matching.Match, error) {
	if !d.MatchesExist(name) {
		return nil, nil
	}
	var m map[string][]matching.Match
	if err := readJSON(d.fs, matchesPath(name), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveMatches writes the matches of image.
func (d *DataSet) SaveMatches(name string, m map[string][]matching.Match) error {
	return writeJSON(d.fs, matchesPath(name), m)
}

// LoadAllMatches collects the saved matches of images into pairs.
func (d *DataSet) LoadAllMatches(images []string) (map[matching.Pair][]matching.Match, error) {
	all := map[matching.Pair][]matching.Match{}
	for _, im1 := range images {
		m, err := d.LoadMatches(im1)
		if err != nil {
			return nil, err
		}
		for im2, matches := range m {
			pair := matching.NewPair(im1, im2)
			if pair[0] != im1 {
				matches = lo.Map(matches, func(mt matching.Match, _ int) matching.Match {
					return matching.Match{mt[1], mt[0]}
				})
			}
			all[pair] = append(all[pair], matches...)
		}
	}
	return all, nil
}

// LoadTracksManager reads filename, or tracks.csv when filename is empty. A missing file yields
// nil.
func (d *DataSet) LoadTracksManager(filename string) (*tracking.TracksManager, error) {
	return loadTracks(d.fs, orDefault(filename, TracksFile))
}

// SaveTracksManager writes tm to tracks.csv.
func (d *DataSet) SaveTracksManager(tm *tracking.TracksManager) error {
	return saveTracks(d.fs, TracksFile, tm)
}

// ReconstructionExists reports whether a reconstruction was already saved.
func (d *DataSet) ReconstructionExists() bool {
	return exists(d.fs, ReconstructionFile)
}

// LoadReconstruction reads filename, or reconstruction.json when filename is empty.
func (d *DataSet) LoadReconstruction(filename string) ([]*reconstruction.Reconstruction, error) {
	return loadReconstruction(d.fs, orDefault(filename, ReconstructionFile))
}

// SaveReconstruction writes recs to reconstruction.json.
func (d *DataSet) SaveReconstruction(recs []*reconstruction.Reconstruction) error {
	return saveReconstruction(d.fs, ReconstructionFile, recs)
}

// SaveReport writes a JSON report under reports/.
func (d *DataSet) SaveReport(name string, report interface{}) error {
	return writeJSON(d.fs, path.Join(ReportsDir, name), report)
}

// LoadReport reads a report written by SaveReport into out.
func (d *DataSet) LoadReport(name string, out interface{}) error {
	return readJSON(d.fs, path.Join(ReportsDir, name), out)
}

// AppendProfileLog appends one line to profile.log.
func (d *DataSet) AppendProfileLog(line string) error {
	f, err := d.fs.OpenFile(ProfileLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening profile log")
	}
	if _, err := f.WriteString(strings.TrimRight(line, "\n") + "\n"); err != nil {
		//nolint:errcheck
		f.Close()
		return errors.Wrap(err, "writing profile log")
	}
	return f.Close()
}

func exifPath(name string) string {
	return path.Join(ExifDir, name+".exif")
}

func featuresPath(name string) string {
	return path.Join(FeaturesDir, name+".features.json")
}

func matchesPath(name string) string {
	return path.Join(MatchesDir, name+"_matches.json")
}

func labelPath(dir, name string) string {
	return path.Join(dir, name+rimage.FormatPNG.Extension())
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func exists(fs afero.Fs, name string) bool {
	ok, err := afero.Exists(fs, name)
	return err == nil && ok
}

func writeFile(fs afero.Fs, name string, data []byte) error {
	if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %q", name)
	}
	return errors.Wrapf(afero.WriteFile(fs, name, data, 0o644), "writing %q", name)
}

func writeJSON(fs afero.Fs, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return errors.Wrapf(err, "encoding %q", name)
	}
	return writeFile(fs, name, data)
}

func readJSON(fs afero.Fs, name string, out interface{}) error {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return errors.Wrapf(err, "reading %q", name)
	}
	return errors.Wrapf(json.Unmarshal(data, out), "decoding %q", name)
}

func loadRaster(fs afero.Fs, name string) (image.Image, error) {
	if !exists(fs, name) {
		return nil, nil
	}
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", name)
	}
	img, _, err := rimage.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "%q", name)
	}
	return img, nil
}

func saveRaster(fs afero.Fs, name string, img image.Image, f rimage.Format) error {
	data, err := rimage.EncodeImageBytes(img, f)
	if err != nil {
		return errors.Wrapf(err, "%q", name)
	}
	return writeFile(fs, name, data)
}

func loadTracks(fs afero.Fs, name string) (*tracking.TracksManager, error) {
	if !exists(fs, name) {
		return nil, nil
	}
	f, err := fs.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", name)
	}
	defer f.Close()
	tm, err := tracking.ReadTracks(f)
	return tm, errors.Wrapf(err, "%q", name)
}

func saveTracks(fs afero.Fs, name string, tm *tracking.TracksManager) error {
	var buf bytes.Buffer
	if err := tracking.WriteTracks(&buf, tm); err != nil {
		return err
	}
	return writeFile(fs, name, buf.Bytes())
}

func loadReconstruction(fs afero.Fs, name string) ([]*reconstruction.Reconstruction, error) {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", name)
	}
	recs, err := reconstruction.Unmarshal(data)
	return recs, errors.Wrapf(err, "%q", name)
}

func saveReconstruction(fs afero.Fs, name string, recs []*reconstruction.Reconstruction) error {
	data, err := reconstruction.Marshal(recs)
	if err != nil {
		return err
	}
	return writeFile(fs, name, data)
}
