package dataset

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"go.viam.com/test"

	"go.viam.com/sfm/exif"
	"go.viam.com/sfm/features"
	"go.viam.com/sfm/matching"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage"
	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/spatialmath"
	"go.viam.com/sfm/tracking"
)

func writeImage(t *testing.T, fs afero.Fs, name string, img image.Image) {
	t.Helper()
	data, err := rimage.EncodeImageBytes(img, rimage.FormatPNG)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, afero.WriteFile(fs, name, data, 0o644), test.ShouldBeNil)
}

func newTestDataSet(t *testing.T) (*DataSet, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "images/b.png", image.NewGray(image.Rect(0, 0, 6, 4)))
	writeImage(t, fs, "images/a.png", image.NewGray(image.Rect(0, 0, 6, 4)))
	test.That(t, afero.WriteFile(fs, "images/notes.txt", []byte("x"), 0o644), test.ShouldBeNil)
	d, err := NewFromFs(fs)
	test.That(t, err, test.ShouldBeNil)
	return d, fs
}

func TestDataSetImages(t *testing.T) {
	d, fs := newTestDataSet(t)
	test.That(t, d.Config().Processes, test.ShouldEqual, 1)

	images, err := d.Images()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, images, test.ShouldResemble, []string{"a.png", "b.png"})

	w, h, err := d.ImageSize("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w, test.ShouldEqual, 6)
	test.That(t, h, test.ShouldEqual, 4)

	img, err := d.LoadImage("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 6)

	mask, err := d.LoadMask("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mask, test.ShouldBeNil)

	writeImage(t, fs, "masks/a.png.png", image.NewGray(image.Rect(0, 0, 6, 4)))
	mask, err = d.LoadMask("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mask, test.ShouldNotBeNil)

	_, _, err = d.ImageSize("missing.png")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDataSetConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	test.That(t, afero.WriteFile(fs, "config.yaml", []byte("processes: 4\n"), 0o644), test.ShouldBeNil)
	d, err := NewFromFs(fs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Config().Processes, test.ShouldEqual, 4)

	test.That(t, afero.WriteFile(fs, "config.yaml", []byte("processes: 0\n"), 0o644), test.ShouldBeNil)
	_, err = NewFromFs(fs)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(t.TempDir() + "/missing")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDataSetMetadata(t *testing.T) {
	d, fs := newTestDataSet(t)
	test.That(t, d.ExifExists("a.png"), test.ShouldBeFalse)

	md, err := d.ExtractExif("a.png")
	test.That(t, err, test.ShouldBeNil)
	md.Width, md.Height = 6, 4
	md.Camera = exif.CameraID(md)
	test.That(t, d.SaveExif("a.png", md), test.ShouldBeNil)
	test.That(t, d.ExifExists("a.png"), test.ShouldBeTrue)
	back, err := d.LoadExif("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, md)

	overrides, err := d.LoadExifOverrides()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, overrides, test.ShouldBeNil)
	test.That(t, afero.WriteFile(fs, ExifOverridesFile, []byte(`{"a.png": {"projection_type": "spherical"}}`), 0o644),
		test.ShouldBeNil)
	overrides, err = d.LoadExifOverrides()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, overrides["a.png"]["projection_type"], test.ShouldEqual, "spherical")

	cameras := map[string]transform.Camera{
		"c": transform.NewPinholeCamera("c", 6, 4, 0.85),
		"f": &transform.FisheyeCamera{CameraID: "f", Width: 6, Height: 4, Focal: 0.5, K1: 0.01},
	}
	test.That(t, d.SaveCameraModels(cameras), test.ShouldBeNil)
	loaded, err := d.LoadCameraModels()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded, test.ShouldResemble, cameras)

	camOverrides, err := d.LoadCameraModelsOverrides()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, camOverrides, test.ShouldBeNil)
}

func TestDataSetFeaturesAndMatches(t *testing.T) {
	d, _ := newTestDataSet(t)
	fd, err := d.LoadFeatures("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fd, test.ShouldBeNil)

	fd = &features.FeatureData{
		Points:      []features.Feature{{X: 1, Y: 2, Size: 3}},
		Descriptors: [][]float32{{0.5, 0.25}},
		Colors:      [][3]int{{1, 2, 3}},
	}
	test.That(t, d.SaveFeatures("a.png", fd), test.ShouldBeNil)
	test.That(t, d.FeaturesExist("a.png"), test.ShouldBeTrue)
	back, err := d.LoadFeatures("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, fd)

	test.That(t, d.SaveMatches("b.png", map[string][]matching.Match{"a.png": {{0, 1}, {2, 3}}}), test.ShouldBeNil)
	all, err := d.LoadAllMatches([]string{"a.png", "b.png"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, all, test.ShouldResemble, map[matching.Pair][]matching.Match{{"a.png", "b.png"}: {{1, 0}, {3, 2}}})
}

func TestDataSetTracksAndReconstruction(t *testing.T) {
	d, _ := newTestDataSet(t)
	tm, err := d.LoadTracksManager("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tm, test.ShouldBeNil)

	tm = tracking.NewTracksManager()
	tm.AddObservation("a.png", "0", tracking.NewObservation(1, 2, 1, [3]int{1, 1, 1}, 0))
	test.That(t, d.SaveTracksManager(tm), test.ShouldBeNil)
	back, err := d.LoadTracksManager("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, tm)

	test.That(t, d.ReconstructionExists(), test.ShouldBeFalse)
	_, err = d.LoadReconstruction("")
	test.That(t, err, test.ShouldNotBeNil)

	rec := reconstruction.NewReconstruction()
	rec.AddCamera(transform.NewPinholeCamera("c", 6, 4, 0.85))
	_, err = rec.CreateShot("a.png", "c", spatialmath.NewPose(r3.Vector{Y: 0.5}, r3.Vector{X: 1}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.SaveReconstruction([]*reconstruction.Reconstruction{rec}), test.ShouldBeNil)
	recs, err := d.LoadReconstruction("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(rec, recs[0]), test.ShouldBeEmpty)

	recs, err = d.LoadReconstruction(ReconstructionFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, recs, test.ShouldHaveLength, 1)
}

func TestDataSetReports(t *testing.T) {
	d, fs := newTestDataSet(t)
	test.That(t, d.SaveReport("features/a.png.json", map[string]interface{}{"num_features": 3}), test.ShouldBeNil)
	var report map[string]interface{}
	test.That(t, d.LoadReport("features/a.png.json", &report), test.ShouldBeNil)
	test.That(t, report["num_features"], test.ShouldEqual, 3.0)

	test.That(t, d.AppendProfileLog("detect_features: 1.5"), test.ShouldBeNil)
	test.That(t, d.AppendProfileLog("match_features: 2\n"), test.ShouldBeNil)
	data, err := afero.ReadFile(fs, ProfileLogFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Split(string(data), "\n"), test.ShouldResemble, []string{"detect_features: 1.5", "match_features: 2", ""})
}

func TestUndistortedDataSet(t *testing.T) {
	d, fs := newTestDataSet(t)
	u, err := d.UndistortedDataSet("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, u.Parent(), test.ShouldEqual, d)
	test.That(t, u.ImageFormat(), test.ShouldEqual, rimage.FormatJPEG)

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	test.That(t, u.SaveImage("s_perspective_view_front", img), test.ShouldBeNil)
	test.That(t, u.ImageExists("s_perspective_view_front"), test.ShouldBeTrue)
	ok, err := afero.Exists(fs, "undistorted/images/s_perspective_view_front.jpg")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)

	mask := image.NewGray(image.Rect(0, 0, 3, 1))
	mask.SetGray(1, 0, color.Gray{Y: 7})
	test.That(t, u.SaveMask("s", mask), test.ShouldBeNil)
	back, err := u.LoadMask("s")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, mask)

	seg, err := u.LoadSegmentation("s")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seg, test.ShouldBeNil)

	tm := tracking.NewTracksManager()
	tm.AddObservation("s", "1", tracking.NewObservation(1, 1, 1, [3]int{}, 0))
	test.That(t, u.SaveTracksManager(tm), test.ShouldBeNil)
	ok, err = afero.Exists(fs, "undistorted/tracks.csv")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)

	custom, err := d.UndistortedDataSet("other")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, custom.SaveDetection("s", mask), test.ShouldBeNil)
	ok, err = afero.Exists(fs, "other/detections/s.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
}
