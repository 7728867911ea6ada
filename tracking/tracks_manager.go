// Package tracking holds the observations that tie 2D features in shots to 3D tracks.
package tracking

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"
)

// Observation is one sighting of a track in one shot. Point is in pixel coordinates of the shot's
// camera.
type Observation struct {
	Point          r2.Point
	Scale          float64
	Color          [3]int
	FeatureID      int
	SegmentationID int
	InstanceID     int
}

// NoSegmentation is the SegmentationID and InstanceID of observations without labels.
const NoSegmentation = -1

// NewObservation returns an unlabeled observation.
func NewObservation(x, y, scale float64, color [3]int, featureID int) Observation {
	return Observation{
		Point:          r2.Point{X: x, Y: y},
		Scale:          scale,
		Color:          color,
		FeatureID:      featureID,
		SegmentationID: NoSegmentation,
		InstanceID:     NoSegmentation,
	}
}

// TracksManager indexes observations by shot and by track. It is not safe for concurrent writes.
type TracksManager struct {
	byShot  map[string]map[string]Observation
	byTrack map[string]map[string]Observation
}

// NewTracksManager returns an empty TracksManager.
func NewTracksManager() *TracksManager {
	return &TracksManager{
		byShot:  map[string]map[string]Observation{},
		byTrack: map[string]map[string]Observation{},
	}
}

// AddObservation records that shot sees track at obs, replacing an earlier observation of the pair.
func (tm *TracksManager) AddObservation(shot, track string, obs Observation) {
	if tm.byShot[shot] == nil {
		tm.byShot[shot] = map[string]Observation{}
	}
	if tm.byTrack[track] == nil {
		tm.byTrack[track] = map[string]Observation{}
	}
	tm.byShot[shot][track] = obs
	tm.byTrack[track][shot] = obs
}

// RemoveObservation forgets the observation of track in shot.
func (tm *TracksManager) RemoveObservation(shot, track string) {
	delete(tm.byShot[shot], track)
	if len(tm.byShot[shot]) == 0 {
		delete(tm.byShot, shot)
	}
	delete(tm.byTrack[track], shot)
	if len(tm.byTrack[track]) == 0 {
		delete(tm.byTrack, track)
	}
}

// Observation returns the observation of track in shot.
func (tm *TracksManager) Observation(shot, track string) (Observation, bool) {
	obs, ok := tm.byShot[shot][track]
	return obs, ok
}

// ShotIDs returns the ids of shots with at least one observation, sorted.
func (tm *TracksManager) ShotIDs() []string {
	ids := lo.Keys(tm.byShot)
	sort.Strings(ids)
	return ids
}

// TrackIDs returns the ids of tracks with at least one observation, sorted.
func (tm *TracksManager) TrackIDs() []string {
	ids := lo.Keys(tm.byTrack)
	sort.Strings(ids)
	return ids
}

// ShotObservations returns track id to observation for shot. The map must not be modified.
func (tm *TracksManager) ShotObservations(shot string) map[string]Observation {
	return tm.byShot[shot]
}

// TrackObservations returns shot id to observation for track. The map must not be modified.
func (tm *TracksManager) TrackObservations(track string) map[string]Observation {
	return tm.byTrack[track]
}

// NumObservations is the total number of (shot, track) observations.
func (tm *TracksManager) NumObservations() int {
	n := 0
	for _, obs := range tm.byShot {
		n += len(obs)
	}
	return n
}

// ViewGraphEdges counts, for every pair of shots, the tracks both see. Keys are ordered pairs
// with the lexically smaller shot first.
func (tm *TracksManager) ViewGraphEdges() map[[2]string]int {
	edges := map[[2]string]int{}
	for _, shots := range tm.byTrack {
		ids := lo.Keys(shots)
		sort.Strings(ids)
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				edges[[2]string{ids[i], ids[j]}]++
			}
		}
	}
	return edges
}
