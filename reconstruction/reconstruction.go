// Package reconstruction holds the cameras, posed shots and 3D points produced by a
// structure-from-motion solve.
package reconstruction

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/spatialmath"
)

// Shot is one posed image. Camera is shared by every shot taken with the same camera model.
type Shot struct {
	ID     string
	Camera transform.Camera
	Pose   spatialmath.Pose
	// Metadata holds the per-shot attributes of reconstruction files that are carried through
	// untouched (orientation, capture_time, gps_position, ...).
	Metadata map[string]interface{}
}

// Point is a triangulated 3D point.
type Point struct {
	ID          string
	Coordinates r3.Vector
	Color       [3]float64
}

// Reconstruction is a set of cameras, shots and points in one world frame.
type Reconstruction struct {
	Cameras      map[string]transform.Camera
	Shots        map[string]*Shot
	Points       map[string]*Point
	ReferenceLLA map[string]float64
}

// NewReconstruction returns an empty Reconstruction.
func NewReconstruction() *Reconstruction {
	return &Reconstruction{
		Cameras: map[string]transform.Camera{},
		Shots:   map[string]*Shot{},
		Points:  map[string]*Point{},
	}
}

// AddCamera registers cam under its id and returns the registered camera. A camera with the same
// id already present is kept, so shots that derive equal cameras end up sharing one.
func (r *Reconstruction) AddCamera(cam transform.Camera) transform.Camera {
	if existing, ok := r.Cameras[cam.ID()]; ok {
		return existing
	}
	r.Cameras[cam.ID()] = cam
	return cam
}

// AddShot adds shot, registering its camera if needed. Shot ids are unique.
func (r *Reconstruction) AddShot(shot *Shot) error {
	if shot == nil || shot.Camera == nil {
		return errors.New("shot and its camera must not be nil")
	}
	if _, ok := r.Shots[shot.ID]; ok {
		return errors.Errorf("shot %q already exists", shot.ID)
	}
	shot.Camera = r.AddCamera(shot.Camera)
	r.Shots[shot.ID] = shot
	return nil
}

// CreateShot adds a shot with the registered camera cameraID.
func (r *Reconstruction) CreateShot(id, cameraID string, pose spatialmath.Pose) (*Shot, error) {
	cam, ok := r.Cameras[cameraID]
	if !ok {
		return nil, errors.Errorf("unknown camera %q for shot %q", cameraID, id)
	}
	shot := &Shot{ID: id, Camera: cam, Pose: pose}
	if err := r.AddShot(shot); err != nil {
		return nil, err
	}
	return shot, nil
}

// AddPoint adds or replaces a point.
func (r *Reconstruction) AddPoint(p *Point) {
	r.Points[p.ID] = p
}

// ShotIDs returns shot ids in lexical order.
func (r *Reconstruction) ShotIDs() []string {
	ids := lo.Keys(r.Shots)
	sort.Strings(ids)
	return ids
}

// PointIDs returns point ids in lexical order.
func (r *Reconstruction) PointIDs() []string {
	ids := lo.Keys(r.Points)
	sort.Strings(ids)
	return ids
}
