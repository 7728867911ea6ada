// Package pipeline runs the reconstruction stages over a dataset in order: metadata, feature
// detection, matching, track building, reconstruction and, on demand, undistortion.
//
// Every stage appends "<stage>: <seconds>" to the dataset's profile.log and writes its report
// under reports/, also when it fails.
package pipeline

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/sfm/dataset"
	"go.viam.com/sfm/features"
	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/matching"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/tracking"
)

// Stage names, used in profile.log and as report names.
const (
	StageMetadata    = "extract_metadata"
	StageDetect      = "detect_features"
	StageMatch       = "match_features"
	StageTracks      = "create_tracks"
	StageReconstruct = "reconstruct"
	StageUndistort   = "undistort"
)

var reportNames = map[string]string{
	StageMetadata:    "metadata.json",
	StageDetect:      "features.json",
	StageMatch:       "matches.json",
	StageTracks:      "tracks.json",
	StageReconstruct: "reconstruction.json",
	StageUndistort:   "undistort.json",
}

// ReportName is the file under reports/ a stage writes its StageReport to.
func ReportName(stage string) string {
	if name, ok := reportNames[stage]; ok {
		return name
	}
	return stage + ".json"
}

var (
	// ErrEmptyFeatureSet is what detecting an image with no usable feature yields. The image is
	// skipped and the stage goes on.
	ErrEmptyFeatureSet = errors.New("no features left after masking")
	// ErrNoReconstructor is returned by the reconstruct stage when no solver was supplied.
	ErrNoReconstructor = errors.New("no reconstructor configured")
)

// A Reconstructor solves camera poses and 3D points from tracks. It returns the reconstructions
// found and a report that is stored with the stage report.
type Reconstructor interface {
	Reconstruct(
		ctx context.Context,
		data *dataset.DataSet,
		tracks *tracking.TracksManager,
	) ([]*reconstruction.Reconstruction, interface{}, error)
}

// StageReport is written to reports/ after each stage.
type StageReport struct {
	RunID    string      `json:"run_id"`
	Stage    string      `json:"stage"`
	WallTime float64     `json:"wall_time"`
	Error    string      `json:"error,omitempty"`
	Details  interface{} `json:"details,omitempty"`
}

// Runner runs stages over one dataset.
type Runner struct {
	data          *dataset.DataSet
	logger        logging.Logger
	clock         clock.Clock
	runID         string
	extractor     features.Extractor
	matcher       matching.Matcher
	reconstructor Reconstructor
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock stages are timed with.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithExtractor replaces the feature extractor chosen by feature_type.
func WithExtractor(e features.Extractor) Option {
	return func(r *Runner) { r.extractor = e }
}

// WithMatcher replaces the brute force matcher.
func WithMatcher(m matching.Matcher) Option {
	return func(r *Runner) { r.matcher = m }
}

// WithReconstructor supplies the solver of the reconstruct stage.
func WithReconstructor(rc Reconstructor) Option {
	return func(r *Runner) { r.reconstructor = rc }
}

// NewRunner returns a Runner over data.
func NewRunner(data *dataset.DataSet, logger logging.Logger, opts ...Option) (*Runner, error) {
	r := &Runner{
		data:   data,
		logger: logger,
		clock:  clock.New(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.extractor == nil {
		extractor, err := features.NewExtractor(data.Config())
		if err != nil {
			return nil, err
		}
		r.extractor = extractor
	}
	if r.matcher == nil {
		r.matcher = &matching.BruteForceMatcher{LowesRatio: data.Config().MatchingLowesRatio}
	}
	return r, nil
}

// RunID identifies this runner in every report it writes.
func (r *Runner) RunID() string {
	return r.runID
}

// RunAll runs metadata extraction, detection, matching, track building and reconstruction, and
// stops at the first stage that fails.
func (r *Runner) RunAll(ctx context.Context) error {
	stages := []func(context.Context) error{
		r.ExtractMetadata,
		r.DetectFeatures,
		r.MatchFeatures,
		r.CreateTracks,
		r.Reconstruct,
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stage(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runStage times fn, then appends to profile.log and writes the stage report whatever fn
// returned.
func (r *Runner) runStage(
	ctx context.Context,
	name string,
	fn func(ctx context.Context, logger logging.Logger) (interface{}, error),
) error {
	logger := r.logger.Sublogger(name)
	logger.Infow("starting stage", "run_id", r.runID)
	start := r.clock.Now()
	details, err := fn(ctx, logger)
	wallTime := r.clock.Since(start).Seconds()

	report := StageReport{RunID: r.runID, Stage: name, WallTime: wallTime, Details: details}
	if err != nil {
		report.Error = err.Error()
		logger.Errorw("stage failed", "error", err, "wall_time", wallTime)
	} else {
		logger.Infow("stage done", "wall_time", wallTime)
	}
	return multierr.Combine(
		err,
		r.data.AppendProfileLog(fmt.Sprintf("%s: %v", name, wallTime)),
		r.data.SaveReport(ReportName(name), report),
	)
}
