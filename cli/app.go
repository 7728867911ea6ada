// Package cli contains the sfm command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	debugFlag               = "debug"
	logLevelFlag            = "log-level"
	outputFlag              = "output"
	reconstructionFlag      = "reconstruction"
	tracksFlag              = "tracks"
	reconstructionIndexFlag = "reconstruction-index"
)

var undistortFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  outputFlag,
		Usage: "sub-folder of the dataset the undistorted dataset is written to",
		Value: "undistorted",
	},
	&cli.StringFlag{
		Name:  reconstructionFlag,
		Usage: "reconstruction `FILE` to undistort instead of reconstruction.json",
	},
	&cli.StringFlag{
		Name:  tracksFlag,
		Usage: "tracks `FILE` to undistort instead of tracks.csv",
	},
	&cli.IntFlag{
		Name:  reconstructionIndexFlag,
		Usage: "index of the reconstruction to undistort in the reconstruction file",
	},
}

var app = &cli.App{
	Name:            "sfm",
	Usage:           "run structure from motion stages over a dataset directory",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  logLevelFlag,
			Usage: "minimum level logged: debug, info, warn or error",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "extract_metadata",
			Usage:     "read image metadata and build camera models",
			ArgsUsage: "<dataset>",
			Action:    ExtractMetadataAction,
		},
		{
			Name:      "detect_features",
			Usage:     "detect features in every image",
			ArgsUsage: "<dataset>",
			Action:    DetectFeaturesAction,
		},
		{
			Name:      "match_features",
			Usage:     "match features between every pair of images",
			ArgsUsage: "<dataset>",
			Action:    MatchFeaturesAction,
		},
		{
			Name:      "create_tracks",
			Usage:     "join matches into tracks",
			ArgsUsage: "<dataset>",
			Action:    CreateTracksAction,
		},
		{
			Name:      "reconstruct",
			Usage:     "solve poses and points from tracks",
			ArgsUsage: "<dataset>",
			Action:    ReconstructAction,
		},
		{
			Name:      "undistort",
			Usage:     "convert a reconstruction into an equivalent one made of pinhole cameras",
			ArgsUsage: "<dataset>",
			Flags:     undistortFlags,
			Action:    UndistortAction,
		},
		{
			Name:      "run",
			Usage:     "run every stage up to reconstruction",
			ArgsUsage: "<dataset>",
			Action:    RunAllAction,
		},
		{
			Name:   "version",
			Usage:  "print version info for this program",
			Action: VersionAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
