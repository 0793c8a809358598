package pose

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PAFGrouperConfig controls part-affinity-field instance grouping.
type PAFGrouperConfig struct {
	// NPoints is the number of equally spaced positions sampled along the
	// segment between two candidate peaks when scoring an edge.
	NPoints int
	// MinEdgeScore is the minimum mean alignment score for a candidate
	// edge to survive.
	MinEdgeScore float64
	// MaxEdgeLength is the maximum segment length in full-resolution
	// pixels; longer candidates are rejected outright. Zero disables the
	// length gate.
	MaxEdgeLength float64
	// MinInstancePeaks discards assembled instances with fewer matched
	// peaks. Zero keeps everything.
	MinInstancePeaks int
	// ScoreMean aggregates instance score as the mean of peak confidences
	// instead of the sum.
	ScoreMean bool
	// PAFStride is the downsampling factor of the part-affinity field
	// relative to full resolution; peak coordinates are divided by it when
	// sampling the field.
	PAFStride int
}

// DefaultPAFGrouperConfig returns production-default grouping parameters.
func DefaultPAFGrouperConfig() PAFGrouperConfig {
	return PAFGrouperConfig{
		NPoints:          10,
		MinEdgeScore:     0.05,
		MaxEdgeLength:    0,
		MinInstancePeaks: 2,
		PAFStride:        1,
	}
}

// PAFGrouper reconstructs multi-animal instances from an unordered bag of
// per-node peaks plus a part-affinity vector field, for the bottom-up flow
// where no centroid crop has partitioned peaks by animal.
//
// The algorithm: score every candidate (source peak, destination peak) pair
// per skeleton edge by a line integral over the field, greedily match pairs
// per edge type by descending score, then merge matched edges that share a
// peak into instances via union-find. Tie-breaking is by score then
// insertion order, so identical inputs always produce identical groupings.
type PAFGrouper struct {
	Skeleton *Skeleton
	Config   PAFGrouperConfig

	edgeOrder []int // Edge indices sorted root-to-leaf by source node
}

// NewPAFGrouper builds a grouper for the given skeleton. Edges are matched
// in the skeleton's topological order so instances assemble root to leaf
// regardless of declaration order.
func NewPAFGrouper(skeleton *Skeleton, cfg PAFGrouperConfig) *PAFGrouper {
	if cfg.NPoints <= 0 {
		cfg.NPoints = 10
	}
	if cfg.PAFStride <= 0 {
		cfg.PAFStride = 1
	}
	pos := make([]int, skeleton.Len())
	for i, n := range skeleton.SortedOrder() {
		pos[n] = i
	}
	edges := skeleton.Edges()
	order := make([]int, len(edges))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pos[edges[order[a]].Source] < pos[edges[order[b]].Source]
	})
	return &PAFGrouper{Skeleton: skeleton, Config: cfg, edgeOrder: order}
}

// edgeCandidate is one scored (source peak, destination peak) pairing for a
// skeleton edge. order preserves insertion order for deterministic ties.
type edgeCandidate struct {
	src   int // Index into peaks
	dst   int
	score float64
	order int
}

// Group assembles instances from peaks and a part-affinity field. pafs
// holds two planes per skeleton edge, in edge order: pafs[2e] is the x
// component and pafs[2e+1] the y component for edge e. Peaks carry
// full-resolution coordinates.
func (g *PAFGrouper) Group(peaks []Peak, pafs []*mat.Dense) []*Instance {
	if len(peaks) == 0 {
		return nil
	}
	edges := g.Skeleton.Edges()

	// Index peaks by channel for candidate enumeration.
	byChannel := make(map[int][]int)
	for i, pk := range peaks {
		byChannel[pk.Channel] = append(byChannel[pk.Channel], i)
	}

	// Union-find over peak indices; only peaks joined by an accepted edge
	// end up in the same instance.
	parent := make([]int, len(peaks))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			// Root at the smaller index for deterministic components.
			if ra < rb {
				parent[rb] = ra
			} else {
				parent[ra] = rb
			}
		}
	}

	matched := make([]bool, len(peaks))

	// Root-to-leaf edge processing; PAF planes stay indexed by declared
	// edge order.
	for _, e := range g.edgeOrder {
		edge := edges[e]
		srcPeaks := byChannel[edge.Source]
		dstPeaks := byChannel[edge.Destination]
		if len(srcPeaks) == 0 || len(dstPeaks) == 0 {
			continue
		}

		// Enumerate and score every candidate pair for this edge type.
		var candidates []edgeCandidate
		for _, si := range srcPeaks {
			for _, di := range dstPeaks {
				score, ok := g.scoreEdge(peaks[si], peaks[di], pafs[2*e], pafs[2*e+1])
				if !ok {
					continue
				}
				candidates = append(candidates, edgeCandidate{
					src:   si,
					dst:   di,
					score: score,
					order: len(candidates),
				})
			}
		}
		if len(candidates) == 0 {
			continue
		}

		// Greedy bipartite matching: best score first, insertion order
		// breaks exact ties; each peak joins at most one pairing per edge
		// type.
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return candidates[i].order < candidates[j].order
		})
		usedSrc := make(map[int]bool)
		usedDst := make(map[int]bool)
		for _, c := range candidates {
			if usedSrc[c.src] || usedDst[c.dst] {
				continue
			}
			usedSrc[c.src] = true
			usedDst[c.dst] = true
			union(c.src, c.dst)
			matched[c.src] = true
			matched[c.dst] = true
		}
	}

	// Merge matched peaks into instances by connected component. Iterate
	// in peak order so instance ordering is reproducible.
	components := make(map[int][]int)
	var roots []int
	for i := range peaks {
		if !matched[i] {
			continue
		}
		r := find(i)
		if _, seen := components[r]; !seen {
			roots = append(roots, r)
		}
		components[r] = append(components[r], i)
	}

	var instances []*Instance
	for _, r := range roots {
		inst := g.buildInstance(peaks, components[r])
		if inst != nil {
			instances = append(instances, inst)
		}
	}

	// A peak matched to no edge forms a singleton instance only when the
	// skeleton has a single node type; otherwise it is dropped as noise.
	if g.Skeleton.Len() == 1 {
		for i, pk := range peaks {
			if matched[i] {
				continue
			}
			inst := NewInstance(g.Skeleton)
			inst.Grouped = true
			inst.Points[pk.Channel] = pk.Point()
			inst.Scores[pk.Channel] = pk.Score
			inst.Score = pk.Score
			instances = append(instances, inst)
		}
	}

	return instances
}

// scoreEdge computes the mean dot product of the sampled field vectors with
// the normalised segment direction over NPoints positions between src and
// dst. Returns ok=false for rejected candidates (zero-length or over-long
// segments, or score below the minimum).
func (g *PAFGrouper) scoreEdge(src, dst Peak, pafX, pafY *mat.Dense) (float64, bool) {
	dx := dst.X - src.X
	dy := dst.Y - src.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return 0, false
	}
	if g.Config.MaxEdgeLength > 0 && length > g.Config.MaxEdgeLength {
		return 0, false
	}
	ux, uy := dx/length, dy/length

	h, w := pafX.Dims()
	stride := float64(g.Config.PAFStride)
	n := g.Config.NPoints
	scores := make([]float64, 0, n)
	for k := 0; k < n; k++ {
		var t float64
		if n > 1 {
			t = float64(k) / float64(n-1)
		} else {
			t = 0.5
		}
		sy := (src.Y + t*dy) / stride
		sx := (src.X + t*dx) / stride
		fx := bilinear(pafX, h, w, sy, sx)
		fy := bilinear(pafY, h, w, sy, sx)
		scores = append(scores, fx*ux+fy*uy)
	}
	score := floats.Sum(scores) / float64(len(scores))
	if score < g.Config.MinEdgeScore {
		return 0, false
	}
	return score, true
}

// buildInstance assembles one instance from the peaks of a connected
// component. When two peaks of the same node type land in one component
// (possible via distinct edge types sharing a neighbour), the higher-scored
// peak wins; ties keep the earlier peak.
func (g *PAFGrouper) buildInstance(peaks []Peak, members []int) *Instance {
	inst := NewInstance(g.Skeleton)
	inst.Grouped = true
	n := 0
	for _, i := range members {
		pk := peaks[i]
		if inst.Points[pk.Channel].Visible() {
			if !(pk.Score > inst.Scores[pk.Channel]) {
				continue
			}
			n-- // Replacing, not adding
		}
		inst.Points[pk.Channel] = pk.Point()
		inst.Scores[pk.Channel] = pk.Score
		n++
	}
	if g.Config.MinInstancePeaks > 0 && n < g.Config.MinInstancePeaks {
		return nil
	}
	if g.Config.ScoreMean {
		inst.Score = inst.MeanScore()
	} else {
		inst.Score = inst.SumScores()
	}
	return inst
}
