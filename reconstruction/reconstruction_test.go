package reconstruction

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"go.viam.com/sfm/rimage/transform"
	"go.viam.com/sfm/spatialmath"
)

func sampleReconstruction(t *testing.T) *Reconstruction {
	t.Helper()
	rec := NewReconstruction()
	rec.AddCamera(&transform.BrownCamera{CameraID: "brown", Width: 640, Height: 480, FocalX: 0.8, FocalY: 0.81, K1: 0.1})
	rec.AddCamera(&transform.SphericalCamera{CameraID: "pano", Width: 2000, Height: 1000})

	shot, err := rec.CreateShot("a.jpg", "brown", spatialmath.NewPose(r3.Vector{X: 0.1, Y: 0.2}, r3.Vector{Z: 3}))
	test.That(t, err, test.ShouldBeNil)
	shot.Metadata = map[string]interface{}{"orientation": float64(1), "capture_time": 12.5}
	_, err = rec.CreateShot("p.jpg", "pano", spatialmath.NewPose(r3.Vector{}, r3.Vector{X: 1}))
	test.That(t, err, test.ShouldBeNil)

	rec.AddPoint(&Point{ID: "7", Coordinates: r3.Vector{X: 1, Y: 2, Z: 3}, Color: [3]float64{255, 0, 10}})
	rec.ReferenceLLA = map[string]float64{"latitude": 40.4, "longitude": -3.7, "altitude": 650}
	return rec
}

func TestCreateShot(t *testing.T) {
	rec := sampleReconstruction(t)
	test.That(t, rec.ShotIDs(), test.ShouldResemble, []string{"a.jpg", "p.jpg"})
	test.That(t, rec.PointIDs(), test.ShouldResemble, []string{"7"})

	_, err := rec.CreateShot("a.jpg", "brown", spatialmath.Pose{})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = rec.CreateShot("b.jpg", "missing", spatialmath.Pose{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, rec.AddShot(nil), test.ShouldNotBeNil)
}

func TestAddCameraDeduplicates(t *testing.T) {
	rec := NewReconstruction()
	first := transform.NewPinholeCamera("c", 10, 10, 1)
	second := transform.NewPinholeCamera("c", 10, 10, 1)
	test.That(t, rec.AddCamera(first), test.ShouldEqual, first)
	test.That(t, rec.AddCamera(second), test.ShouldEqual, first)
	test.That(t, rec.Cameras, test.ShouldHaveLength, 1)

	err := rec.AddShot(&Shot{ID: "s", Camera: second})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Shots["s"].Camera, test.ShouldEqual, first)
}

func TestJSONRoundTrip(t *testing.T) {
	rec := sampleReconstruction(t)
	data, err := Marshal([]*Reconstruction{rec})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, `"projection_type": "spherical"`)
	test.That(t, string(data), test.ShouldContainSubstring, `"reference_lla"`)

	back, err := Unmarshal(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldHaveLength, 1)
	test.That(t, cmp.Diff(rec, back[0]), test.ShouldBeEmpty)
}

func TestUnmarshalOpenSfMDocument(t *testing.T) {
	doc := `[{
		"cameras": {"v2 sony": {"projection_type": "perspective", "width": 1000, "height": 750, "focal": 0.9, "k1": -0.1, "k2": 0.02}},
		"shots": {"01.jpg": {"rotation": [0, 0, 0], "translation": [0, 0, 1], "camera": "v2 sony", "orientation": 1}},
		"points": {"1": {"coordinates": [1, 1, 5], "color": [1, 2, 3]}}
	}]`
	recs, err := Unmarshal([]byte(doc))
	test.That(t, err, test.ShouldBeNil)
	rec := recs[0]
	shot := rec.Shots["01.jpg"]
	test.That(t, shot.Camera.ProjectionType(), test.ShouldEqual, transform.PerspectiveProjection)
	test.That(t, shot.Pose.Origin().Z, test.ShouldAlmostEqual, -1)
	test.That(t, shot.Metadata, test.ShouldResemble, map[string]interface{}{"orientation": float64(1)})
	test.That(t, rec.Points["1"].Coordinates, test.ShouldResemble, r3.Vector{X: 1, Y: 1, Z: 5})
	test.That(t, rec.ReferenceLLA, test.ShouldBeNil)

	_, err = Unmarshal([]byte(`[{"cameras": {}, "shots": {"x": {"camera": "nope"}}}]`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Unmarshal([]byte(`{`))
	test.That(t, err, test.ShouldNotBeNil)
}
