package cli

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/sfm/dataset"
	"go.viam.com/sfm/pipeline"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage"
	"go.viam.com/sfm/tracking"
)

type emptyReconstructor struct {
	called bool
}

func (e *emptyReconstructor) Reconstruct(
	ctx context.Context,
	data *dataset.DataSet,
	tracks *tracking.TracksManager,
) ([]*reconstruction.Reconstruction, interface{}, error) {
	e.called = true
	return nil, map[string]int{"num_tracks": len(tracks.TrackIDs())}, nil
}

func testDataSetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	test.That(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755), test.ShouldBeNil)
	data, err := rimage.EncodeImageBytes(image.NewNRGBA(image.Rect(0, 0, 32, 24)), rimage.FormatPNG)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, "images", "a.png"), data, 0o644), test.ShouldBeNil)
	return dir
}

func TestExtractMetadataCommand(t *testing.T) {
	dir := testDataSetDir(t)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	err := NewApp(out, errOut).Run([]string{"sfm", "extract_metadata", dir})
	test.That(t, err, test.ShouldBeNil)

	_, err = os.Stat(filepath.Join(dir, "camera_models.json"))
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(filepath.Join(dir, "exif", "a.png.exif"))
	test.That(t, err, test.ShouldBeNil)
	profile, err := os.ReadFile(filepath.Join(dir, "profile.log"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(profile), test.ShouldStartWith, "extract_metadata: ")
}

func TestCommandErrors(t *testing.T) {
	dir := testDataSetDir(t)

	t.Run("missing dataset argument", func(t *testing.T) {
		err := NewApp(&bytes.Buffer{}, &bytes.Buffer{}).Run([]string{"sfm", "detect_features"})
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("missing dataset directory", func(t *testing.T) {
		err := NewApp(&bytes.Buffer{}, &bytes.Buffer{}).Run([]string{"sfm", "detect_features", filepath.Join(dir, "nope")})
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("unknown log level", func(t *testing.T) {
		err := NewApp(&bytes.Buffer{}, &bytes.Buffer{}).Run([]string{"sfm", "--log-level", "loud", "detect_features", dir})
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("reconstruct without a solver", func(t *testing.T) {
		err := NewApp(&bytes.Buffer{}, &bytes.Buffer{}).Run([]string{"sfm", "reconstruct", dir})
		test.That(t, errors.Is(err, pipeline.ErrNoReconstructor), test.ShouldBeTrue)
	})

	t.Run("undistort without a reconstruction", func(t *testing.T) {
		err := NewApp(&bytes.Buffer{}, &bytes.Buffer{}).Run([]string{
			"sfm", "undistort", "--output", "flat", "--reconstruction-index", "0", dir,
		})
		test.That(t, err, test.ShouldNotBeNil)
		_, statErr := os.Stat(filepath.Join(dir, "reports", "undistort.json"))
		test.That(t, statErr, test.ShouldBeNil)
	})
}

func TestRunCommandWithReconstructor(t *testing.T) {
	dir := testDataSetDir(t)
	solver := &emptyReconstructor{}
	SetRunnerOptions(pipeline.WithReconstructor(solver))
	t.Cleanup(func() { SetRunnerOptions() })

	err := NewApp(&bytes.Buffer{}, &bytes.Buffer{}).Run([]string{"sfm", "--log-level", "warn", "run", dir})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, solver.called, test.ShouldBeTrue)
	for _, report := range []string{"features.json", "matches.json", "tracks.json", "reconstruction.json"} {
		_, err := os.Stat(filepath.Join(dir, "reports", report))
		test.That(t, err, test.ShouldBeNil)
	}
}
