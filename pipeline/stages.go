package pipeline

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/sfm/dataset"
	"go.viam.com/sfm/exif"
	"go.viam.com/sfm/features"
	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/matching"
	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/tracking"
	"go.viam.com/sfm/undistort"
	"go.viam.com/sfm/utils"
)

// allCamerasKey in camera_models_overrides.json overrides every camera.
const allCamerasKey = "all"

type metadataReport struct {
	Images    int `json:"num_images"`
	Extracted int `json:"num_extracted"`
	Cameras   int `json:"num_cameras"`
}

// ExtractMetadata reads or extracts the metadata of every image, applies exif_overrides.json to
// newly extracted metadata and saves one camera model per camera id, after applying
// camera_models_overrides.json.
func (r *Runner) ExtractMetadata(ctx context.Context) error {
	return r.runStage(ctx, StageMetadata, func(ctx context.Context, logger logging.Logger) (interface{}, error) {
		report := &metadataReport{}
		cfg := r.data.Config()
		images, err := r.data.Images()
		if err != nil {
			return report, err
		}
		report.Images = len(images)
		overrides, err := r.data.LoadExifOverrides()
		if err != nil {
			return report, err
		}

		cameras := map[string]transform.Camera{}
		for _, name := range images {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			var md *exif.Metadata
			if r.data.ExifExists(name) {
				logger.Infow("loading existing metadata", "image", name)
				if md, err = r.data.LoadExif(name); err != nil {
					return report, err
				}
			} else {
				logger.Infow("extracting metadata", "image", name)
				if md, err = r.extractMetadata(name, cfg.UseExifSize); err != nil {
					return report, err
				}
				if override, ok := overrides[name]; ok {
					if err := md.ApplyOverrides(override); err != nil {
						return report, errors.Wrapf(err, "image %q", name)
					}
				}
				if err := r.data.SaveExif(name, md); err != nil {
					return report, err
				}
				report.Extracted++
			}
			if _, ok := cameras[md.Camera]; ok {
				continue
			}
			cam, err := exif.CameraFromMetadata(md, cfg.DefaultFocalPrior)
			if err != nil {
				return report, errors.Wrapf(err, "image %q", name)
			}
			cameras[md.Camera] = cam
		}

		if err := r.applyCameraOverrides(cameras); err != nil {
			return report, err
		}
		report.Cameras = len(cameras)
		return report, r.data.SaveCameraModels(cameras)
	})
}

func (r *Runner) extractMetadata(name string, useExifSize bool) (*exif.Metadata, error) {
	md, err := r.data.ExtractExif(name)
	if err != nil {
		return nil, err
	}
	if md.Width <= 0 || md.Height <= 0 || !useExifSize {
		if md.Width, md.Height, err = r.data.ImageSize(name); err != nil {
			return nil, err
		}
	}
	md.Camera = exif.CameraID(md)
	return md, nil
}

func (r *Runner) applyCameraOverrides(cameras map[string]transform.Camera) error {
	overrides, err := r.data.LoadCameraModelsOverrides()
	if err != nil || overrides == nil {
		return err
	}
	if all, ok := overrides[allCamerasKey]; ok {
		for id := range cameras {
			cam, err := transform.CameraFromMap(id, all)
			if err != nil {
				return errors.Wrapf(err, "overriding camera %q", id)
			}
			cameras[id] = cam
		}
		return nil
	}
	for id, attrs := range overrides {
		cam, err := transform.CameraFromMap(id, attrs)
		if err != nil {
			return errors.Wrapf(err, "overriding camera %q", id)
		}
		cameras[id] = cam
	}
	return nil
}

type imageFeaturesReport struct {
	Image       string  `json:"image"`
	NumFeatures int     `json:"num_features"`
	WallTime    float64 `json:"wall_time"`
}

type detectReport struct {
	Images   int       `json:"num_images"`
	Skipped  []string  `json:"skipped"`
	Empty    []string  `json:"empty"`
	Features Summary   `json:"num_features"`
	Times    Summary   `json:"wall_times"`
	Failures []failure `json:"failures"`
}

type failure struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

func failuresOf(err error, logger logging.Logger) []failure {
	return lo.Map(utils.WorkerFailures(err), func(wf *utils.WorkerFailure, _ int) failure {
		logger.Warnw("unit failed", "unit", wf.Key, "error", wf.Err)
		return failure{Unit: wf.Key, Error: wf.Err.Error()}
	})
}

type detectOutcome int

const (
	detected detectOutcome = iota
	skipped
	empty
)

// DetectFeatures extracts features of every image on a pool of `processes` workers. Images whose
// features exist are skipped; images left without features after masking are logged and skipped.
func (r *Runner) DetectFeatures(ctx context.Context) error {
	return r.runStage(ctx, StageDetect, func(ctx context.Context, logger logging.Logger) (interface{}, error) {
		report := &detectReport{}
		cfg := r.data.Config()
		policy, err := utils.ParseFailurePolicy(cfg.WorkerFailurePolicy)
		if err != nil {
			return report, err
		}
		images, err := r.data.Images()
		if err != nil {
			return report, err
		}
		report.Images = len(images)

		outcomes := make([]detectOutcome, len(images))
		results := make([]*imageFeaturesReport, len(images))
		index := lo.SliceToMap(lo.Range(len(images)), func(i int) (string, int) { return images[i], i })
		err = utils.ParallelMap(ctx, images,
			utils.PoolOptions{Processes: cfg.Processes, Policy: policy},
			func(name string) string { return name },
			func(ctx context.Context, name string) error {
				i := index[name]
				if r.data.FeaturesExist(name) {
					logger.Infow("skip recomputing features", "image", name)
					outcomes[i] = skipped
					return nil
				}
				res, err := r.detect(ctx, name)
				if errors.Is(err, ErrEmptyFeatureSet) {
					logger.Warnw("no features found", "image", name)
					outcomes[i] = empty
					return nil
				}
				results[i] = res
				return err
			})
		for i, name := range images {
			switch outcomes[i] {
			case skipped:
				report.Skipped = append(report.Skipped, name)
			case empty:
				report.Empty = append(report.Empty, name)
			case detected:
			}
		}
		done := lo.Compact(results)
		report.Features = summarize(lo.Map(done, func(res *imageFeaturesReport, _ int) float64 { return float64(res.NumFeatures) }))
		report.Times = summarize(lo.Map(done, func(res *imageFeaturesReport, _ int) float64 { return res.WallTime }))
		report.Failures = failuresOf(err, logger)
		return report, err
	})
}

func (r *Runner) detect(ctx context.Context, name string) (*imageFeaturesReport, error) {
	start := r.clock.Now()
	img, err := r.data.LoadImage(name)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.Errorf("image %q not found", name)
	}
	fd, err := r.extractor.Extract(ctx, img)
	if err != nil {
		return nil, errors.Wrapf(err, "extracting features of %q", name)
	}
	mask, err := r.data.LoadMask(name)
	if err != nil {
		return nil, err
	}
	if mask != nil {
		fd = fd.Filter(unmasked(mask, img.Bounds()))
	}
	if fd.Len() == 0 {
		return nil, ErrEmptyFeatureSet
	}
	fd.SortBySize()
	if err := r.data.SaveFeatures(name, fd); err != nil {
		return nil, err
	}
	res := &imageFeaturesReport{Image: name, NumFeatures: fd.Len(), WallTime: r.clock.Since(start).Seconds()}
	return res, r.data.SaveReport("features/"+name+".json", res)
}

// unmasked keeps features whose pixel is non-zero in mask. The mask is stretched over the image
// when their sizes differ.
func unmasked(mask image.Image, imageBounds image.Rectangle) func(features.Feature) bool {
	mb := mask.Bounds()
	sx := float64(mb.Dx()) / float64(imageBounds.Dx())
	sy := float64(mb.Dy()) / float64(imageBounds.Dy())
	return func(f features.Feature) bool {
		x := mb.Min.X + clamp(int(math.Floor(f.X*sx)), 0, mb.Dx()-1)
		y := mb.Min.Y + clamp(int(math.Floor(f.Y*sy)), 0, mb.Dy()-1)
		return color.GrayModel.Convert(mask.At(x, y)).(color.Gray).Y != 0
	}
}

func clamp(v, low, high int) int {
	return max(low, min(v, high))
}

type matchReport struct {
	WallTimes    map[string]float64 `json:"wall_times"`
	Pairs        int                `json:"num_pairs"`
	MatchedPairs int                `json:"num_pairs_matched"`
	PairMatches  map[string]int     `json:"pair_matches"`
	Failures     []failure          `json:"failures"`
}

// MatchFeatures matches every pair of images and saves the pairs with at least
// robust_matching_min_match matches.
func (r *Runner) MatchFeatures(ctx context.Context) error {
	return r.runStage(ctx, StageMatch, func(ctx context.Context, logger logging.Logger) (interface{}, error) {
		report := &matchReport{WallTimes: map[string]float64{}, PairMatches: map[string]int{}}
		cfg := r.data.Config()
		policy, err := utils.ParseFailurePolicy(cfg.WorkerFailurePolicy)
		if err != nil {
			return report, err
		}
		images, err := r.data.Images()
		if err != nil {
			return report, err
		}
		start := r.clock.Now()
		featureData, err := r.loadFeatures(images)
		if err != nil {
			return report, err
		}
		loaded := r.clock.Now()
		report.WallTimes["load_features"] = loaded.Sub(start).Seconds()

		pairs := matching.AllPairs(images)
		report.Pairs = len(pairs)
		found := make([][]matching.Match, len(pairs))
		index := lo.SliceToMap(lo.Range(len(pairs)), func(i int) (matching.Pair, int) { return pairs[i], i })
		err = utils.ParallelMap(ctx, pairs,
			utils.PoolOptions{Processes: cfg.Processes, Policy: policy},
			func(p matching.Pair) string { return p[0] + "&" + p[1] },
			func(ctx context.Context, p matching.Pair) error {
				a, b := featureData[p[0]], featureData[p[1]]
				if a == nil || b == nil {
					return nil
				}
				found[index[p]] = r.matcher.Match(a, b)
				return nil
			})
		report.WallTimes["match"] = r.clock.Since(loaded).Seconds()
		report.Failures = failuresOf(err, logger)
		if err != nil {
			return report, err
		}

		byImage := map[string]map[string][]matching.Match{}
		for i, p := range pairs {
			report.PairMatches[p[0]+"&"+p[1]] = len(found[i])
			if len(found[i]) < cfg.RobustMatchingMinMatch {
				continue
			}
			report.MatchedPairs++
			if byImage[p[0]] == nil {
				byImage[p[0]] = map[string][]matching.Match{}
			}
			byImage[p[0]][p[1]] = found[i]
		}
		for _, name := range images {
			if err := r.data.SaveMatches(name, byImage[name]); err != nil {
				return report, err
			}
		}
		logger.Infow("matched pairs", "pairs", len(pairs), "kept", report.MatchedPairs)
		return report, nil
	})
}

func (r *Runner) loadFeatures(images []string) (map[string]*features.FeatureData, error) {
	featureData := map[string]*features.FeatureData{}
	for _, name := range images {
		fd, err := r.data.LoadFeatures(name)
		if err != nil {
			return nil, err
		}
		if fd != nil {
			featureData[name] = fd
		}
	}
	return featureData, nil
}

type tracksReport struct {
	WallTimes   map[string]float64 `json:"wall_times"`
	Tracks      int                `json:"num_tracks"`
	TrackLength Summary            `json:"track_length"`
	ViewGraph   int                `json:"view_graph"`
}

// CreateTracks joins the saved matches into tracks and saves tracks.csv.
func (r *Runner) CreateTracks(ctx context.Context) error {
	return r.runStage(ctx, StageTracks, func(ctx context.Context, logger logging.Logger) (interface{}, error) {
		report := &tracksReport{WallTimes: map[string]float64{}}
		images, err := r.data.Images()
		if err != nil {
			return report, err
		}

		start := r.clock.Now()
		featureData, err := r.loadFeatures(images)
		if err != nil {
			return report, err
		}
		featuresEnd := r.clock.Now()
		matches, err := r.data.LoadAllMatches(images)
		if err != nil {
			return report, err
		}
		matchesEnd := r.clock.Now()
		tm := tracking.BuildTracks(featureData, matches, r.data.Config().MinTrackLength)
		tracksEnd := r.clock.Now()

		report.WallTimes["load_features"] = featuresEnd.Sub(start).Seconds()
		report.WallTimes["load_matches"] = matchesEnd.Sub(featuresEnd).Seconds()
		report.WallTimes["compute_tracks"] = tracksEnd.Sub(matchesEnd).Seconds()
		trackIDs := tm.TrackIDs()
		report.Tracks = len(trackIDs)
		report.TrackLength = summarize(lo.Map(trackIDs, func(id string, _ int) float64 {
			return float64(len(tm.TrackObservations(id)))
		}))
		report.ViewGraph = len(tm.ViewGraphEdges())
		logger.Infow("built tracks", "tracks", report.Tracks, "view_graph_edges", report.ViewGraph)
		return report, r.data.SaveTracksManager(tm)
	})
}

// Reconstruct runs the configured Reconstructor over the saved tracks and saves what it finds.
// Unlike detection it never skips: tracks may have changed since the last run.
func (r *Runner) Reconstruct(ctx context.Context) error {
	return r.runStage(ctx, StageReconstruct, func(ctx context.Context, logger logging.Logger) (interface{}, error) {
		if r.reconstructor == nil {
			return nil, ErrNoReconstructor
		}
		tm, err := r.data.LoadTracksManager("")
		if err != nil {
			return nil, err
		}
		if tm == nil {
			return nil, errors.New("no tracks to reconstruct from")
		}
		if r.data.ReconstructionExists() {
			logger.Infow("overwriting existing reconstruction", "file", dataset.ReconstructionFile)
		}
		recs, report, err := r.reconstructor.Reconstruct(ctx, r.data, tm)
		if err != nil {
			return report, err
		}
		logger.Infow("reconstructed", "reconstructions", len(recs))
		return report, r.data.SaveReconstruction(recs)
	})
}

// Undistort runs the undistortion stage.
func (r *Runner) Undistort(ctx context.Context, opts undistort.StageOptions) error {
	return r.runStage(ctx, StageUndistort, func(ctx context.Context, logger logging.Logger) (interface{}, error) {
		return undistort.Run(ctx, r.data, opts, logger)
	})
}
