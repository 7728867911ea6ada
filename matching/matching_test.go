package matching

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/sfm/features"
)

func featureData(descriptors ...[]float32) *features.FeatureData {
	fd := &features.FeatureData{}
	for i, d := range descriptors {
		fd.Points = append(fd.Points, features.Feature{X: float64(i)})
		fd.Descriptors = append(fd.Descriptors, d)
		fd.Colors = append(fd.Colors, [3]int{})
	}
	return fd
}

func TestBruteForceMatcher(t *testing.T) {
	a := featureData([]float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0, 0, 1})
	b := featureData([]float32{0, 0.9, 0.1}, []float32{0.05, 0, 1}, []float32{1, 0.1, 0}, []float32{-1, -1, -1})
	m := &BruteForceMatcher{LowesRatio: 0.8}
	test.That(t, m.Match(a, b), test.ShouldResemble, []Match{{0, 2}, {1, 0}, {2, 1}})
}

func TestBruteForceMatcherRatio(t *testing.T) {
	// the second feature of b is as close to a[0] as the first one, so a[0] is ambiguous
	a := featureData([]float32{1, 0}, []float32{0, 1})
	b := featureData([]float32{0.9, 0.1}, []float32{0.9, -0.1}, []float32{0, 1})
	m := &BruteForceMatcher{LowesRatio: 0.8}
	test.That(t, m.Match(a, b), test.ShouldResemble, []Match{{1, 2}})

	test.That(t, m.Match(featureData([]float32{1}), b), test.ShouldBeNil)
}

func TestAllPairs(t *testing.T) {
	pairs := AllPairs([]string{"c", "a", "b", "a"})
	test.That(t, pairs, test.ShouldResemble, []Pair{{"a", "b"}, {"a", "c"}, {"b", "c"}})
	test.That(t, AllPairs([]string{"a"}), test.ShouldBeNil)
	test.That(t, NewPair("z", "y"), test.ShouldResemble, Pair{"y", "z"})
}
