// Package undistort turns a reconstruction whose shots use arbitrary camera projections into one
// where every shot is a distortion-free pinhole, and resamples the rasters of each shot to match.
//
// Perspective, brown and fisheye shots map one to one onto a sub-shot with the same id. Spherical
// shots are split into the six cube faces of DecomposePanorama.
package undistort

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/sfm/config"
	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/reconstruction"
	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/tracking"
)

// ObservationPolicy decides which of several overlapping panorama sub-shots keep an observation.
type ObservationPolicy string

const (
	// KeepAll keeps the observation in every sub-shot whose image contains it.
	KeepAll = ObservationPolicy("all")
	// KeepNearest keeps it only in the containing sub-shot whose optical axis is closest to the ray.
	KeepNearest = ObservationPolicy("nearest")
)

// ParseObservationPolicy parses "all" or "nearest".
func ParseObservationPolicy(s string) (ObservationPolicy, error) {
	switch p := ObservationPolicy(s); p {
	case KeepAll, KeepNearest:
		return p, nil
	case "":
		return KeepAll, nil
	default:
		return "", errors.Errorf("unknown panorama observation policy %q", s)
	}
}

// Options configures a Remapper.
type Options struct {
	// SubshotWidth is the side of each panorama sub-shot.
	SubshotWidth   int
	OverlapDegrees float64
	Policy         ObservationPolicy
	// TracksFromPoints reprojects observations of triangulated tracks from their 3D point instead
	// of from the observed pixel.
	TracksFromPoints bool
}

// OptionsFromConfig reads Options from dataset settings.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := ParseObservationPolicy(cfg.PanoramaObservationPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		SubshotWidth:     cfg.DepthmapResolution,
		OverlapDegrees:   cfg.PanoramaOverlapDegrees,
		Policy:           policy,
		TracksFromPoints: cfg.UndistortTracksFromPoints,
	}, nil
}

// Result is an undistorted reconstruction.
type Result struct {
	Reconstruction *reconstruction.Reconstruction
	// Tracks is nil when no tracks were given.
	Tracks *tracking.TracksManager
	// SubShots holds, for each original shot id, its sub-shots in order.
	SubShots        map[string][]*reconstruction.Shot
	ObservationsIn  int
	ObservationsOut int
}

// A Remapper builds undistorted reconstructions and tracks.
type Remapper struct {
	opts   Options
	logger logging.Logger
}

// NewRemapper returns a Remapper.
func NewRemapper(opts Options, logger logging.Logger) *Remapper {
	return &Remapper{opts: opts, logger: logger}
}

// SubShots returns the pinhole sub-shots of shot.
func (r *Remapper) SubShots(shot *reconstruction.Shot) ([]*reconstruction.Shot, error) {
	switch shot.Camera.(type) {
	case *transform.PerspectiveCamera, *transform.BrownCamera, *transform.FisheyeCamera:
		pinhole, err := transform.PinholeFromCamera(shot.Camera)
		if err != nil {
			return nil, err
		}
		return []*reconstruction.Shot{{
			ID:       shot.ID,
			Camera:   pinhole,
			Pose:     shot.Pose,
			Metadata: copyMetadata(shot.Metadata),
		}}, nil
	case *transform.SphericalCamera:
		return DecomposePanorama(shot, r.opts.SubshotWidth, r.opts.OverlapDegrees)
	default:
		return nil, errors.Wrapf(transform.NewUnsupportedProjectionError(projectionName(shot.Camera)), "shot %q", shot.ID)
	}
}

// Undistort converts rec, and tm when not nil, into pinhole sub-shots. Shots are visited in id
// order. Any shot whose camera has no pinhole conversion fails the whole call.
func (r *Remapper) Undistort(rec *reconstruction.Reconstruction, tm *tracking.TracksManager) (*Result, error) {
	result := &Result{
		Reconstruction: reconstruction.NewReconstruction(),
		SubShots:       map[string][]*reconstruction.Shot{},
	}
	urec := result.Reconstruction
	for id, p := range rec.Points {
		urec.Points[id] = p
	}
	urec.ReferenceLLA = rec.ReferenceLLA
	if tm != nil {
		result.Tracks = tracking.NewTracksManager()
	}

	for _, id := range rec.ShotIDs() {
		shot := rec.Shots[id]
		subshots, err := r.SubShots(shot)
		if err != nil {
			return nil, err
		}
		for _, sub := range subshots {
			if err := urec.AddShot(sub); err != nil {
				return nil, err
			}
		}
		result.SubShots[id] = subshots

		if tm == nil {
			continue
		}
		in, out := r.remapTracks(rec, shot, subshots, tm, result.Tracks)
		result.ObservationsIn += in
		result.ObservationsOut += out
	}
	r.logger.Debugw("undistorted reconstruction",
		"shots", len(rec.Shots), "subshots", len(urec.Shots),
		"observations_in", result.ObservationsIn, "observations_out", result.ObservationsOut)
	return result, nil
}

type candidate struct {
	shot        string
	observation tracking.Observation
	alignment   float64
}

// remapTracks copies the observations of shot into the sub-shots whose image contains them and
// returns how many observations were read and written.
func (r *Remapper) remapTracks(
	rec *reconstruction.Reconstruction,
	shot *reconstruction.Shot,
	subshots []*reconstruction.Shot,
	tm, out *tracking.TracksManager,
) (int, int) {
	observations := tm.ShotObservations(shot.ID)
	written := 0
	for track, obs := range observations {
		ray := r.worldRay(rec, shot, track, obs)
		var kept []candidate
		for _, sub := range subshots {
			local := sub.Pose.RotationMatrix().Apply(ray)
			px, ok := sub.Camera.Project(local)
			if !ok {
				continue
			}
			w, h := sub.Camera.Size()
			if !transform.InImage(px, w, h) {
				continue
			}
			moved := obs
			moved.Point = px
			kept = append(kept, candidate{shot: sub.ID, observation: moved, alignment: local.Z / local.Norm()})
		}
		if r.opts.Policy == KeepNearest && len(kept) > 1 {
			best := kept[0]
			for _, c := range kept[1:] {
				if c.alignment > best.alignment {
					best = c
				}
			}
			kept = []candidate{best}
		}
		for _, c := range kept {
			out.AddObservation(c.shot, track, c.observation)
		}
		written += len(kept)
	}
	return len(observations), written
}

// worldRay is the direction, in world axes and from the optical center of shot, along which obs
// was seen.
func (r *Remapper) worldRay(
	rec *reconstruction.Reconstruction,
	shot *reconstruction.Shot,
	track string,
	obs tracking.Observation,
) r3.Vector {
	if r.opts.TracksFromPoints {
		if p, ok := rec.Points[track]; ok {
			ray := p.Coordinates.Sub(shot.Pose.Origin())
			if ray.Norm() > 0 && !math.IsNaN(ray.Norm()) {
				return ray
			}
		}
	}
	bearing := shot.Camera.PixelBearing(obs.Point)
	return shot.Pose.RotationMatrix().Transpose().Apply(bearing)
}

func projectionName(cam transform.Camera) transform.ProjectionType {
	if cam == nil {
		return "<nil>"
	}
	return cam.ProjectionType()
}
