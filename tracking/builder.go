package tracking

import (
	"sort"
	"strconv"

	"github.com/samber/lo"

	"go.viam.com/sfm/features"
	"go.viam.com/sfm/matching"
)

type featureNode struct {
	image string
	index int
}

type unionFind struct {
	parent map[featureNode]featureNode
	rank   map[featureNode]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[featureNode]featureNode{}, rank: map[featureNode]int{}}
}

func (uf *unionFind) find(n featureNode) featureNode {
	p, ok := uf.parent[n]
	if !ok {
		uf.parent[n] = n
		return n
	}
	if p == n {
		return n
	}
	root := uf.find(p)
	uf.parent[n] = root
	return root
}

func (uf *unionFind) union(a, b featureNode) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

func nodeLess(a, b featureNode) bool {
	if a.image != b.image {
		return a.image < b.image
	}
	return a.index < b.index
}

// BuildTracks joins matched features into tracks. A track is dropped when it has fewer than
// minLength observations or sees two features of the same image. Track ids are consecutive
// integers assigned in order of each track's first (image, feature) node.
func BuildTracks(
	featureData map[string]*features.FeatureData,
	matches map[matching.Pair][]matching.Match,
	minLength int,
) *TracksManager {
	uf := newUnionFind()
	pairs := lo.Keys(matches)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	for _, pair := range pairs {
		for _, m := range matches[pair] {
			uf.union(featureNode{pair[0], m[0]}, featureNode{pair[1], m[1]})
		}
	}

	components := map[featureNode][]featureNode{}
	for n := range uf.parent {
		root := uf.find(n)
		components[root] = append(components[root], n)
	}

	var tracks [][]featureNode
	for _, nodes := range components {
		if len(nodes) < minLength {
			continue
		}
		images := lo.Uniq(lo.Map(nodes, func(n featureNode, _ int) string { return n.image }))
		if len(images) != len(nodes) {
			continue
		}
		sort.Slice(nodes, func(i, j int) bool { return nodeLess(nodes[i], nodes[j]) })
		tracks = append(tracks, nodes)
	}
	sort.Slice(tracks, func(i, j int) bool { return nodeLess(tracks[i][0], tracks[j][0]) })

	tm := NewTracksManager()
	for id, nodes := range tracks {
		track := strconv.Itoa(id)
		for _, n := range nodes {
			fd := featureData[n.image]
			if fd == nil || n.index < 0 || n.index >= fd.Len() {
				continue
			}
			p := fd.Points[n.index]
			tm.AddObservation(n.image, track, NewObservation(p.X, p.Y, p.Size, fd.Colors[n.index], n.index))
		}
	}
	return tm
}
