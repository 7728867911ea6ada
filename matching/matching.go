// Package matching pairs features of two images by descriptor similarity.
package matching

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"go.viam.com/sfm/features"
)

// Match is a pair of feature indices, the first into the first image and the second into the
// second image.
type Match [2]int

// Matcher finds matches between the features of two images.
type Matcher interface {
	Match(a, b *features.FeatureData) []Match
}

// BruteForceMatcher compares every descriptor pair and keeps matches that pass Lowe's ratio test
// in both directions.
type BruteForceMatcher struct {
	LowesRatio float64
}

// Match implements Matcher. Matches are ordered by their index into a.
func (m *BruteForceMatcher) Match(a, b *features.FeatureData) []Match {
	if a.Len() < 2 || b.Len() < 2 {
		return nil
	}
	forward := m.oneWay(a.Descriptors, b.Descriptors)
	backward := m.oneWay(b.Descriptors, a.Descriptors)
	matches := lo.FilterMap(lo.Keys(forward), func(i int, _ int) (Match, bool) {
		j := forward[i]
		back, ok := backward[j]
		return Match{i, j}, ok && back == i
	})
	sort.Slice(matches, func(i, j int) bool { return matches[i][0] < matches[j][0] })
	return matches
}

func (m *BruteForceMatcher) oneWay(from, to [][]float32) map[int]int {
	out := map[int]int{}
	for i, d := range from {
		best, second := math.Inf(1), math.Inf(1)
		bestIndex := -1
		for j, e := range to {
			dist := squaredDistance(d, e)
			switch {
			case dist < best:
				second = best
				best, bestIndex = dist, j
			case dist < second:
				second = dist
			}
		}
		// squared distances, so the ratio is squared too
		if bestIndex >= 0 && best < m.LowesRatio*m.LowesRatio*second {
			out[i] = bestIndex
		}
	}
	return out
}

func squaredDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Pair is an unordered pair of images, stored with the lexically smaller name first.
type Pair [2]string

// NewPair orders a and b.
func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{a, b}
}

// AllPairs returns every unordered pair of distinct images in lexical order.
func AllPairs(images []string) []Pair {
	sorted := append([]string(nil), images...)
	sort.Strings(sorted)
	sorted = lo.Uniq(sorted)
	var pairs []Pair
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			pairs = append(pairs, Pair{sorted[i], sorted[j]})
		}
	}
	return pairs
}
