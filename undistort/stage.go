package undistort

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/sfm/dataset"
	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/utils"
)

// StageOptions selects what the undistortion stage reads and where it writes.
type StageOptions struct {
	// Output is the sub-folder written to, "undistorted" when empty.
	Output string
	// ReconstructionFile and TracksFile replace the default inputs when set.
	ReconstructionFile  string
	TracksFile          string
	ReconstructionIndex int
}

// ShotFailure is a shot whose rasters could not be undistorted.
type ShotFailure struct {
	Shot  string `json:"shot"`
	Error string `json:"error"`
}

// Report summarizes one run of the stage.
type Report struct {
	Shots           int            `json:"num_shots"`
	SubShots        int            `json:"num_subshots"`
	ObservationsIn  int            `json:"num_observations_in"`
	ObservationsOut int            `json:"num_observations_out"`
	RastersWritten  map[string]int `json:"rasters_written"`
	Failures        []ShotFailure  `json:"failures"`
}

// Run undistorts reconstruction number opts.ReconstructionIndex of data. The undistorted
// reconstruction and tracks are saved before any raster is touched, then the rasters of each
// original shot are resampled on a pool of data.Config().Processes workers.
//
// Existing outputs are overwritten. The report is returned even when the run fails, as far as
// it got.
func Run(ctx context.Context, data *dataset.DataSet, opts StageOptions, logger logging.Logger) (*Report, error) {
	report := &Report{RastersWritten: map[string]int{}}
	cfg := data.Config()
	policy, err := utils.ParseFailurePolicy(cfg.WorkerFailurePolicy)
	if err != nil {
		return report, err
	}
	remapOpts, err := OptionsFromConfig(cfg)
	if err != nil {
		return report, err
	}
	udata, err := data.UndistortedDataSet(opts.Output)
	if err != nil {
		return report, err
	}

	recs, err := data.LoadReconstruction(opts.ReconstructionFile)
	if err != nil {
		return report, err
	}
	if opts.ReconstructionIndex < 0 || opts.ReconstructionIndex >= len(recs) {
		return report, errors.Errorf("reconstruction index %d out of range, dataset has %d", opts.ReconstructionIndex, len(recs))
	}
	rec := recs[opts.ReconstructionIndex]
	tm, err := data.LoadTracksManager(opts.TracksFile)
	if err != nil {
		return report, err
	}

	result, err := NewRemapper(remapOpts, logger).Undistort(rec, tm)
	if err != nil {
		return report, err
	}
	report.Shots = len(rec.Shots)
	report.SubShots = len(result.Reconstruction.Shots)
	report.ObservationsIn = result.ObservationsIn
	report.ObservationsOut = result.ObservationsOut

	if err := udata.SaveReconstruction([]*reconstruction.Reconstruction{result.Reconstruction}); err != nil {
		return report, err
	}
	if result.Tracks != nil {
		if err := udata.SaveTracksManager(result.Tracks); err != nil {
			return report, err
		}
	}

	tasks := lo.Map(rec.ShotIDs(), func(id string, _ int) ShotTask {
		return ShotTask{Shot: rec.Shots[id], SubShots: result.SubShots[id]}
	})
	written := make([][]RasterKind, len(tasks))
	index := lo.SliceToMap(lo.Range(len(tasks)), func(i int) (string, int) { return tasks[i].Shot.ID, i })
	err = utils.ParallelMap(ctx, tasks,
		utils.PoolOptions{Processes: cfg.Processes, Policy: policy},
		func(t ShotTask) string { return t.Shot.ID },
		func(ctx context.Context, t ShotTask) error {
			kinds, err := t.Run(ctx, data, udata)
			written[index[t.Shot.ID]] = kinds
			return err
		})
	for i, kinds := range written {
		for _, k := range kinds {
			report.RastersWritten[k.String()] += len(tasks[i].SubShots)
		}
	}
	for _, failure := range utils.WorkerFailures(err) {
		logger.Warnw("could not undistort shot", "shot", failure.Key, "error", failure.Err)
		report.Failures = append(report.Failures, ShotFailure{Shot: failure.Key, Error: failure.Err.Error()})
	}
	return report, err
}
