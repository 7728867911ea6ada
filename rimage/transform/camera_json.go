package transform

import (
	"encoding/json"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const projectionTypeKey = "projection_type"

// CameraFromMap builds a camera from its attribute map as found in camera_models.json and
// reconstruction files. The map's projection_type selects the model.
func CameraFromMap(id string, attributes map[string]interface{}) (Camera, error) {
	raw, ok := attributes[projectionTypeKey]
	if !ok {
		return nil, errors.Errorf("camera %q has no %s", id, projectionTypeKey)
	}
	tag, ok := raw.(string)
	if !ok {
		return nil, errors.Errorf("camera %q has a non-string %s %v", id, projectionTypeKey, raw)
	}

	var cam Camera
	switch ProjectionType(tag) {
	case PerspectiveProjection:
		cam = &PerspectiveCamera{}
	case BrownProjection:
		cam = &BrownCamera{}
	case FisheyeProjection:
		cam = &FisheyeCamera{}
	case SphericalProjection, EquirectangularProjection:
		cam = &SphericalCamera{}
	default:
		return nil, NewUnsupportedProjectionError(ProjectionType(tag))
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           cam,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrapf(err, "decoding camera %q", id)
	}
	setID(cam, id)
	if err := checkDistortion(id, distorterOf(cam)); err != nil {
		return nil, err
	}
	return cam, nil
}

func setID(cam Camera, id string) {
	switch c := cam.(type) {
	case *PerspectiveCamera:
		c.CameraID = id
	case *BrownCamera:
		c.CameraID = id
	case *FisheyeCamera:
		c.CameraID = id
	case *SphericalCamera:
		c.CameraID = id
	}
}

// CameraToMap is the inverse of CameraFromMap. The id is not part of the map.
func CameraToMap(cam Camera) (map[string]interface{}, error) {
	if cam == nil {
		return nil, errors.New("cannot encode a nil camera")
	}
	switch cam.(type) {
	case *PerspectiveCamera, *BrownCamera, *FisheyeCamera, *SphericalCamera:
	default:
		return nil, NewUnsupportedProjectionError(projectionOf(cam))
	}
	attributes := map[string]interface{}{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &attributes,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(cam); err != nil {
		return nil, errors.Wrapf(err, "encoding camera %q", cam.ID())
	}
	delete(attributes, "id")
	attributes[projectionTypeKey] = string(cam.ProjectionType())
	return attributes, nil
}

// CamerasFromMaps decodes a map of camera id to attribute map.
func CamerasFromMaps(raw map[string]map[string]interface{}) (map[string]Camera, error) {
	cameras := make(map[string]Camera, len(raw))
	for id, attributes := range raw {
		cam, err := CameraFromMap(id, attributes)
		if err != nil {
			return nil, err
		}
		cameras[id] = cam
	}
	return cameras, nil
}

// CamerasToMaps encodes cameras keyed by id.
func CamerasToMaps(cameras map[string]Camera) (map[string]map[string]interface{}, error) {
	raw := make(map[string]map[string]interface{}, len(cameras))
	for id, cam := range cameras {
		attributes, err := CameraToMap(cam)
		if err != nil {
			return nil, err
		}
		raw[id] = attributes
	}
	return raw, nil
}

// UnmarshalCameras parses a camera_models.json document.
func UnmarshalCameras(data []byte) (map[string]Camera, error) {
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing cameras")
	}
	return CamerasFromMaps(raw)
}

// MarshalCameras writes cameras as an indented camera_models.json document.
func MarshalCameras(cameras map[string]Camera) ([]byte, error) {
	raw, err := CamerasToMaps(cameras)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(raw, "", "    ")
}

// SortedCameraIDs returns the ids of cameras in lexical order.
func SortedCameraIDs(cameras map[string]Camera) []string {
	ids := lo.Keys(cameras)
	sort.Strings(ids)
	return ids
}
