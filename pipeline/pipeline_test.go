package pipeline

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.viam.com/test"

	"go.viam.com/sfm/dataset"
	"go.viam.com/sfm/features"
	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage"
	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/spatialmath"
	"go.viam.com/sfm/tracking"
	"go.viam.com/sfm/undistort"
)

const pipelineConfig = `
processes: 2
robust_matching_min_match: 3
depthmap_resolution: 16
undistorted_image_format: png
`

// gridExtractor finds the same four features in every image and takes two seconds doing it.
type gridExtractor struct {
	clock *clock.Mock
	fail  string
}

func (g *gridExtractor) Extract(ctx context.Context, img image.Image) (*features.FeatureData, error) {
	g.clock.Add(2 * time.Second)
	if g.fail != "" && img.Bounds().Dx() == 41 {
		return nil, errors.New(g.fail)
	}
	fd := &features.FeatureData{}
	for i := 0; i < 4; i++ {
		descriptor := make([]float32, 4)
		descriptor[i] = 1
		fd.Points = append(fd.Points, features.Feature{X: float64(5 + 5*i), Y: float64(5 + 5*i), Size: float64(4 - i)})
		fd.Descriptors = append(fd.Descriptors, descriptor)
		fd.Colors = append(fd.Colors, [3]int{i, i, i})
	}
	return fd, nil
}

type fixedReconstructor struct{}

func (fixedReconstructor) Reconstruct(
	ctx context.Context,
	data *dataset.DataSet,
	tracks *tracking.TracksManager,
) ([]*reconstruction.Reconstruction, interface{}, error) {
	rec := reconstruction.NewReconstruction()
	rec.AddCamera(&transform.PerspectiveCamera{CameraID: "cam", Width: 40, Height: 30, Focal: 0.9})
	for _, shot := range tracks.ShotIDs() {
		if _, err := rec.CreateShot(shot, "cam", spatialmath.NewPose(r3.Vector{}, r3.Vector{})); err != nil {
			return nil, nil, err
		}
	}
	return []*reconstruction.Reconstruction{rec}, map[string]int{"num_shots": len(rec.Shots)}, nil
}

func writeImage(t *testing.T, fs afero.Fs, name string, img image.Image) {
	t.Helper()
	data, err := rimage.EncodeImageBytes(img, rimage.FormatPNG)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, afero.WriteFile(fs, name, data, 0o644), test.ShouldBeNil)
}

func testDataSet(t *testing.T) (*dataset.DataSet, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	test.That(t, afero.WriteFile(fs, "config.yaml", []byte(pipelineConfig), 0o644), test.ShouldBeNil)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writeImage(t, fs, "images/"+name, image.NewNRGBA(image.Rect(0, 0, 40, 30)))
	}
	// everything in c.png is masked out
	writeImage(t, fs, "masks/c.png.png", image.NewGray(image.Rect(0, 0, 20, 15)))
	d, err := dataset.NewFromFs(fs)
	test.That(t, err, test.ShouldBeNil)
	return d, fs
}

func profileLines(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	data, err := afero.ReadFile(fs, dataset.ProfileLogFile)
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunAll(t *testing.T) {
	d, fs := testDataSet(t)
	mock := clock.NewMock()
	logger, logs := logging.NewObservedTestLogger(t)
	r, err := NewRunner(d, logger,
		WithClock(mock),
		WithExtractor(&gridExtractor{clock: mock}),
		WithReconstructor(fixedReconstructor{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.RunID(), test.ShouldNotBeEmpty)

	test.That(t, r.RunAll(context.Background()), test.ShouldBeNil)
	test.That(t, profileLines(t, fs), test.ShouldResemble, []string{
		"extract_metadata: 0",
		"detect_features: 6",
		"match_features: 0",
		"create_tracks: 0",
		"reconstruct: 0",
	})

	md, err := d.LoadExif("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Width, test.ShouldEqual, 40)
	test.That(t, md.Camera, test.ShouldEqual, "v2 unknown unknown 40 30 perspective 0.0000")
	cameras, err := d.LoadCameraModels()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cameras, test.ShouldHaveLength, 1)

	fd, err := d.LoadFeatures("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fd.Len(), test.ShouldEqual, 4)
	test.That(t, fd.Points[0].Size, test.ShouldEqual, 1.)
	test.That(t, d.FeaturesExist("c.png"), test.ShouldBeFalse)
	test.That(t, logs.FilterMessage("no features found").Len(), test.ShouldEqual, 1)

	var detect struct {
		RunID   string       `json:"run_id"`
		Details detectReport `json:"details"`
	}
	test.That(t, d.LoadReport(ReportName(StageDetect), &detect), test.ShouldBeNil)
	test.That(t, detect.RunID, test.ShouldEqual, r.RunID())
	test.That(t, detect.Details.Empty, test.ShouldResemble, []string{"c.png"})
	test.That(t, detect.Details.Features.Count, test.ShouldEqual, 2)
	test.That(t, detect.Details.Features.Total, test.ShouldEqual, 8.)
	var perImage imageFeaturesReport
	test.That(t, d.LoadReport("features/b.png.json", &perImage), test.ShouldBeNil)
	test.That(t, perImage.NumFeatures, test.ShouldEqual, 4)
	test.That(t, perImage.WallTime, test.ShouldBeGreaterThanOrEqualTo, 2.)

	matches, err := d.LoadMatches("a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, matches["b.png"], test.ShouldHaveLength, 4)
	var match struct {
		Details matchReport `json:"details"`
	}
	test.That(t, d.LoadReport(ReportName(StageMatch), &match), test.ShouldBeNil)
	test.That(t, match.Details.Pairs, test.ShouldEqual, 3)
	test.That(t, match.Details.MatchedPairs, test.ShouldEqual, 1)

	tm, err := d.LoadTracksManager("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tm.TrackIDs(), test.ShouldHaveLength, 4)
	var tracks struct {
		Details tracksReport `json:"details"`
	}
	test.That(t, d.LoadReport(ReportName(StageTracks), &tracks), test.ShouldBeNil)
	test.That(t, tracks.Details.Tracks, test.ShouldEqual, 4)
	test.That(t, tracks.Details.TrackLength.Max, test.ShouldEqual, 2.)
	test.That(t, tracks.Details.ViewGraph, test.ShouldEqual, 1)

	recs, err := d.LoadReconstruction("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, recs[0].Shots, test.ShouldHaveLength, 2)

	test.That(t, r.Undistort(context.Background(), undistort.StageOptions{}), test.ShouldBeNil)
	var undistorted struct {
		Details undistort.Report `json:"details"`
	}
	test.That(t, d.LoadReport(ReportName(StageUndistort), &undistorted), test.ShouldBeNil)
	test.That(t, undistorted.Details.SubShots, test.ShouldEqual, 2)
	test.That(t, undistorted.Details.RastersWritten["image"], test.ShouldEqual, 2)
}

func TestDetectSkipsExisting(t *testing.T) {
	d, fs := testDataSet(t)
	mock := clock.NewMock()
	extractor := &gridExtractor{clock: mock}
	r, err := NewRunner(d, logging.NewTestLogger(t), WithClock(mock), WithExtractor(extractor))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.DetectFeatures(context.Background()), test.ShouldBeNil)

	logger, logs := logging.NewObservedTestLogger(t)
	again, err := NewRunner(d, logger, WithClock(mock), WithExtractor(extractor))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.DetectFeatures(context.Background()), test.ShouldBeNil)
	test.That(t, logs.FilterMessage("skip recomputing features").Len(), test.ShouldEqual, 2)
	// only c.png, whose features were never saved, is detected again
	test.That(t, profileLines(t, fs), test.ShouldResemble, []string{"detect_features: 6", "detect_features: 2"})
}

func TestStageFailureStillReports(t *testing.T) {
	d, fs := testDataSet(t)
	writeImage(t, fs, "images/b.png", image.NewNRGBA(image.Rect(0, 0, 41, 30)))
	mock := clock.NewMock()
	logger, logs := logging.NewObservedTestLogger(t)
	r, err := NewRunner(d, logger, WithClock(mock), WithExtractor(&gridExtractor{clock: mock, fail: "boom"}))
	test.That(t, err, test.ShouldBeNil)

	err = r.DetectFeatures(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "boom")
	test.That(t, logs.FilterMessage("unit failed").Len(), test.ShouldEqual, 1)
	test.That(t, d.FeaturesExist("a.png"), test.ShouldBeTrue)

	var report StageReport
	test.That(t, d.LoadReport(ReportName(StageDetect), &report), test.ShouldBeNil)
	test.That(t, report.Error, test.ShouldContainSubstring, "boom")
	test.That(t, profileLines(t, fs), test.ShouldResemble, []string{"detect_features: 6"})
}

func TestReconstructWithoutSolver(t *testing.T) {
	d, fs := testDataSet(t)
	r, err := NewRunner(d, logging.NewTestLogger(t), WithClock(clock.NewMock()))
	test.That(t, err, test.ShouldBeNil)
	err = r.Reconstruct(context.Background())
	test.That(t, errors.Is(err, ErrNoReconstructor), test.ShouldBeTrue)
	test.That(t, profileLines(t, fs), test.ShouldResemble, []string{"reconstruct: 0"})
}

func TestReconstructRecomputes(t *testing.T) {
	d, _ := testDataSet(t)
	test.That(t, d.SaveReconstruction([]*reconstruction.Reconstruction{reconstruction.NewReconstruction()}), test.ShouldBeNil)
	tm := tracking.NewTracksManager()
	tm.AddObservation("a.png", "1", tracking.NewObservation(5, 5, 1, [3]int{}, 0))
	tm.AddObservation("b.png", "1", tracking.NewObservation(6, 5, 1, [3]int{}, 0))
	test.That(t, d.SaveTracksManager(tm), test.ShouldBeNil)

	logger, logs := logging.NewObservedTestLogger(t)
	r, err := NewRunner(d, logger, WithClock(clock.NewMock()), WithReconstructor(fixedReconstructor{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Reconstruct(context.Background()), test.ShouldBeNil)
	test.That(t, logs.FilterMessage("overwriting existing reconstruction").Len(), test.ShouldEqual, 1)

	recs, err := d.LoadReconstruction("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, recs, test.ShouldHaveLength, 1)
	test.That(t, recs[0].Shots, test.ShouldHaveLength, 2)
}

func TestCameraOverrides(t *testing.T) {
	d, fs := testDataSet(t)
	overrides := `{"all": {"projection_type": "fisheye", "width": 40, "height": 30, "focal": 0.5, "k1": 0.1}}`
	test.That(t, afero.WriteFile(fs, dataset.CameraModelsOverridesFile, []byte(overrides), 0o644), test.ShouldBeNil)
	exifOverrides := `{"b.png": {"make": "Acme"}}`
	test.That(t, afero.WriteFile(fs, dataset.ExifOverridesFile, []byte(exifOverrides), 0o644), test.ShouldBeNil)

	r, err := NewRunner(d, logging.NewTestLogger(t), WithClock(clock.NewMock()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.ExtractMetadata(context.Background()), test.ShouldBeNil)

	md, err := d.LoadExif("b.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Make, test.ShouldEqual, "Acme")
	cameras, err := d.LoadCameraModels()
	test.That(t, err, test.ShouldBeNil)
	for _, cam := range cameras {
		test.That(t, cam.ProjectionType(), test.ShouldEqual, transform.FisheyeProjection)
	}
}

func TestUnmasked(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 10, 10))
	mask.SetGray(2, 3, color.Gray{Y: 255})
	keep := unmasked(mask, image.Rect(0, 0, 20, 20))
	test.That(t, keep(features.Feature{X: 4.5, Y: 6.5}), test.ShouldBeTrue)
	test.That(t, keep(features.Feature{X: 8, Y: 6}), test.ShouldBeFalse)
	// out of range coordinates clamp to the border
	test.That(t, keep(features.Feature{X: -3, Y: 100}), test.ShouldBeFalse)
}

func TestSummarize(t *testing.T) {
	test.That(t, summarize(nil), test.ShouldResemble, Summary{})
	s := summarize([]float64{1, 2, 6})
	test.That(t, s, test.ShouldResemble, Summary{Count: 3, Total: 9, Mean: 3, Median: 2, Max: 6})
}
