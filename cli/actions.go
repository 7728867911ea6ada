package cli

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/sfm/dataset"
	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/pipeline"
	"go.viam.com/sfm/undistort"
)

// runnerOptions are passed to every runner the CLI builds. Programs embedding the CLI set a
// reconstructor here.
var runnerOptions []pipeline.Option

// SetRunnerOptions replaces the options of the runners built by the actions.
func SetRunnerOptions(opts ...pipeline.Option) {
	runnerOptions = opts
}

func newLogger(c *cli.Context) (logging.Logger, error) {
	logger := logging.NewLogger("sfm")
	if c.Bool(debugFlag) {
		logger = logging.NewDebugLogger("sfm")
	}
	if s := c.String(logLevelFlag); s != "" {
		level, err := logging.LevelFromString(s)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	return logger, nil
}

func newRunner(c *cli.Context) (*pipeline.Runner, logging.Logger, error) {
	if c.NArg() != 1 {
		return nil, nil, errors.New("expected exactly one dataset directory")
	}
	data, err := dataset.New(c.Args().First())
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(c)
	if err != nil {
		return nil, nil, err
	}
	r, err := pipeline.NewRunner(data, logger, runnerOptions...)
	if err != nil {
		return nil, nil, err
	}
	return r, logger, nil
}

func stageAction(run func(ctx context.Context, r *pipeline.Runner) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, logger, err := newRunner(c)
		if err != nil {
			return err
		}
		//nolint:errcheck
		defer logger.Sync()
		return run(c.Context, r)
	}
}

var (
	// ExtractMetadataAction runs the metadata stage.
	ExtractMetadataAction = stageAction(func(ctx context.Context, r *pipeline.Runner) error {
		return r.ExtractMetadata(ctx)
	})
	// DetectFeaturesAction runs the detect stage.
	DetectFeaturesAction = stageAction(func(ctx context.Context, r *pipeline.Runner) error {
		return r.DetectFeatures(ctx)
	})
	// MatchFeaturesAction runs the match stage.
	MatchFeaturesAction = stageAction(func(ctx context.Context, r *pipeline.Runner) error {
		return r.MatchFeatures(ctx)
	})
	// CreateTracksAction runs the track stage.
	CreateTracksAction = stageAction(func(ctx context.Context, r *pipeline.Runner) error {
		return r.CreateTracks(ctx)
	})
	// ReconstructAction runs the reconstruct stage.
	ReconstructAction = stageAction(func(ctx context.Context, r *pipeline.Runner) error {
		return r.Reconstruct(ctx)
	})
	// RunAllAction runs every stage up to reconstruction.
	RunAllAction = stageAction(func(ctx context.Context, r *pipeline.Runner) error {
		return r.RunAll(ctx)
	})
)

// UndistortAction runs the undistort stage with the options given as flags.
func UndistortAction(c *cli.Context) error {
	opts := undistort.StageOptions{
		Output:              c.String(outputFlag),
		ReconstructionFile:  c.String(reconstructionFlag),
		TracksFile:          c.String(tracksFlag),
		ReconstructionIndex: c.Int(reconstructionIndexFlag),
	}
	return stageAction(func(ctx context.Context, r *pipeline.Runner) error {
		return r.Undistort(ctx, opts)
	})(c)
}

// VersionAction prints the version of the main module.
func VersionAction(c *cli.Context) error {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return errors.New("error reading build info")
	}
	if c.Bool(debugFlag) {
		printf(c.App.Writer, "%s", info.String())
	}
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	version := "?"
	if rev, ok := settings["vcs.revision"]; ok && len(rev) >= 8 {
		version = rev[:8]
		if settings["vcs.modified"] == "true" {
			version += "+"
		}
	}
	printf(c.App.Writer, "Version %s Git=%s", info.Main.Version, version)
	return nil
}

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
