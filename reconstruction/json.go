package reconstruction

import (
	"encoding/json"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/spatialmath"
)

type shotJSON struct {
	Rotation    [3]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
	Camera      string     `json:"camera"`
}

type pointJSON struct {
	Coordinates [3]float64 `json:"coordinates"`
	Color       [3]float64 `json:"color"`
}

type reconstructionJSON struct {
	Cameras      map[string]map[string]interface{} `json:"cameras"`
	Shots        map[string]json.RawMessage        `json:"shots"`
	Points       map[string]pointJSON              `json:"points"`
	ReferenceLLA map[string]float64                `json:"reference_lla,omitempty"`
}

func vec(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func arr(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Unmarshal parses a reconstruction.json document, a list of reconstructions.
func Unmarshal(data []byte) ([]*Reconstruction, error) {
	var docs []reconstructionJSON
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, errors.Wrap(err, "parsing reconstructions")
	}
	out := make([]*Reconstruction, 0, len(docs))
	for i, doc := range docs {
		rec, err := fromJSON(doc)
		if err != nil {
			return nil, errors.Wrapf(err, "reconstruction %d", i)
		}
		out = append(out, rec)
	}
	return out, nil
}

func fromJSON(doc reconstructionJSON) (*Reconstruction, error) {
	rec := NewReconstruction()
	cameras, err := transform.CamerasFromMaps(doc.Cameras)
	if err != nil {
		return nil, err
	}
	for _, cam := range cameras {
		rec.AddCamera(cam)
	}
	for id, raw := range doc.Shots {
		var s shotJSON
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Wrapf(err, "shot %q", id)
		}
		var metadata map[string]interface{}
		if err := json.Unmarshal(raw, &metadata); err != nil {
			return nil, errors.Wrapf(err, "shot %q", id)
		}
		for _, k := range []string{"rotation", "translation", "camera"} {
			delete(metadata, k)
		}
		if len(metadata) == 0 {
			metadata = nil
		}
		shot, err := rec.CreateShot(id, s.Camera, spatialmath.NewPose(vec(s.Rotation), vec(s.Translation)))
		if err != nil {
			return nil, err
		}
		shot.Metadata = metadata
	}
	for id, p := range doc.Points {
		rec.AddPoint(&Point{ID: id, Coordinates: vec(p.Coordinates), Color: p.Color})
	}
	rec.ReferenceLLA = doc.ReferenceLLA
	return rec, nil
}

// Marshal writes reconstructions as an indented reconstruction.json document.
func Marshal(recs []*Reconstruction) ([]byte, error) {
	docs := make([]reconstructionJSON, 0, len(recs))
	for _, rec := range recs {
		doc, err := toJSON(rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return json.MarshalIndent(docs, "", "    ")
}

func toJSON(rec *Reconstruction) (reconstructionJSON, error) {
	cameras, err := transform.CamerasToMaps(rec.Cameras)
	if err != nil {
		return reconstructionJSON{}, err
	}
	doc := reconstructionJSON{
		Cameras:      cameras,
		Shots:        make(map[string]json.RawMessage, len(rec.Shots)),
		Points:       make(map[string]pointJSON, len(rec.Points)),
		ReferenceLLA: rec.ReferenceLLA,
	}
	for id, shot := range rec.Shots {
		fields := make(map[string]interface{}, len(shot.Metadata)+3)
		for k, v := range shot.Metadata {
			fields[k] = v
		}
		fields["rotation"] = arr(shot.Pose.Rotation)
		fields["translation"] = arr(shot.Pose.Translation)
		fields["camera"] = shot.Camera.ID()
		raw, err := json.Marshal(fields)
		if err != nil {
			return reconstructionJSON{}, errors.Wrapf(err, "shot %q", id)
		}
		doc.Shots[id] = raw
	}
	for id, p := range rec.Points {
		doc.Points[id] = pointJSON{Coordinates: arr(p.Coordinates), Color: p.Color}
	}
	return doc, nil
}
