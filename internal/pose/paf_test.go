package pose

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// twoAnimalScene builds peaks for two animals on a head -> tail skeleton
// plus a part-affinity field pointing +x along each animal's body row.
func twoAnimalScene() (*Skeleton, []Peak, []*mat.Dense) {
	s := MustSkeleton("worm", []string{"head", "tail"}, [][2]string{{"head", "tail"}})

	peaks := []Peak{
		{Channel: 0, X: 1, Y: 1, Score: 0.9}, // animal A head
		{Channel: 1, X: 4, Y: 1, Score: 0.8}, // animal A tail
		{Channel: 0, X: 1, Y: 4, Score: 0.7}, // animal B head
		{Channel: 1, X: 4, Y: 4, Score: 0.6}, // animal B tail
	}

	pafX := mat.NewDense(6, 6, nil)
	pafY := mat.NewDense(6, 6, nil)
	for x := 0; x < 6; x++ {
		pafX.Set(1, x, 1)
		pafX.Set(4, x, 1)
	}
	return s, peaks, []*mat.Dense{pafX, pafY}
}

func TestPAFGrouper_TwoAnimals(t *testing.T) {
	s, peaks, pafs := twoAnimalScene()
	g := NewPAFGrouper(s, DefaultPAFGrouperConfig())

	instances := g.Group(peaks, pafs)
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}

	a, b := instances[0], instances[1]
	if a.Points[0].Y != 1 || a.Points[1].Y != 1 {
		t.Errorf("instance A points = %+v, want both on row 1", a.Points)
	}
	if b.Points[0].Y != 4 || b.Points[1].Y != 4 {
		t.Errorf("instance B points = %+v, want both on row 4", b.Points)
	}
	if !a.Grouped || !b.Grouped {
		t.Error("grouped instances must be flagged Grouped")
	}
	if got := a.Score; math.Abs(got-1.7) > 1e-12 {
		t.Errorf("instance A score = %v, want sum 1.7", got)
	}
}

func TestPAFGrouper_ScoreMean(t *testing.T) {
	s, peaks, pafs := twoAnimalScene()
	cfg := DefaultPAFGrouperConfig()
	cfg.ScoreMean = true
	g := NewPAFGrouper(s, cfg)

	instances := g.Group(peaks, pafs)
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}
	if got := instances[0].Score; math.Abs(got-0.85) > 1e-12 {
		t.Errorf("mean score = %v, want 0.85", got)
	}
}

func TestPAFGrouper_Deterministic(t *testing.T) {
	s, peaks, pafs := twoAnimalScene()
	g := NewPAFGrouper(s, DefaultPAFGrouperConfig())

	first := g.Group(peaks, pafs)
	for run := 0; run < 5; run++ {
		again := g.Group(peaks, pafs)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d instances, first run had %d", run, len(again), len(first))
		}
		for i := range first {
			for n := range first[i].Points {
				if first[i].Points[n] != again[i].Points[n] {
					t.Fatalf("run %d instance %d node %d: %+v != %+v",
						run, i, n, again[i].Points[n], first[i].Points[n])
				}
			}
		}
	}
}

func TestPAFGrouper_MaxEdgeLength(t *testing.T) {
	s, peaks, pafs := twoAnimalScene()
	cfg := DefaultPAFGrouperConfig()
	cfg.MaxEdgeLength = 2 // body length is 3
	g := NewPAFGrouper(s, cfg)

	if instances := g.Group(peaks, pafs); len(instances) != 0 {
		t.Errorf("expected no instances with all edges over length, got %d", len(instances))
	}
}

func TestPAFGrouper_MinInstancePeaks(t *testing.T) {
	s, _, pafs := twoAnimalScene()
	g := NewPAFGrouper(s, DefaultPAFGrouperConfig())

	// A lone head with no tail candidate cannot form an edge and is
	// dropped as noise on a multi-node skeleton.
	peaks := []Peak{{Channel: 0, X: 1, Y: 1, Score: 0.9}}
	if instances := g.Group(peaks, pafs); len(instances) != 0 {
		t.Errorf("expected unmatched peak to be dropped, got %d instances", len(instances))
	}
}

func TestPAFGrouper_SingleNodeSingletons(t *testing.T) {
	s := MustSkeleton("dot", []string{"body"}, nil)
	g := NewPAFGrouper(s, DefaultPAFGrouperConfig())

	peaks := []Peak{
		{Channel: 0, X: 1, Y: 1, Score: 0.9},
		{Channel: 0, X: 5, Y: 5, Score: 0.4},
	}
	instances := g.Group(peaks, nil)
	if len(instances) != 2 {
		t.Fatalf("expected one singleton per peak, got %d", len(instances))
	}
	if instances[0].Points[0].X != 1 || instances[1].Points[0].X != 5 {
		t.Errorf("singleton order not preserved: %+v", instances)
	}
}

func TestPAFGrouper_EdgeOrderFollowsTopology(t *testing.T) {
	// Edges declared leaf-first; the grouper still processes them from the
	// skeleton's root downward.
	s := MustSkeleton("fly", []string{"head", "thorax", "abdomen"},
		[][2]string{{"thorax", "abdomen"}, {"head", "thorax"}})

	g := NewPAFGrouper(s, DefaultPAFGrouperConfig())
	if len(g.edgeOrder) != 2 || g.edgeOrder[0] != 1 || g.edgeOrder[1] != 0 {
		t.Errorf("edge order = %v, want [1 0] (head->thorax before thorax->abdomen)", g.edgeOrder)
	}
}

func TestPAFGrouper_NoPeaks(t *testing.T) {
	s, _, pafs := twoAnimalScene()
	g := NewPAFGrouper(s, DefaultPAFGrouperConfig())
	if instances := g.Group(nil, pafs); instances != nil {
		t.Errorf("expected nil for no peaks, got %v", instances)
	}
}

func TestPAFGrouper_PAFStride(t *testing.T) {
	// Same scene at half-resolution field: peaks stay in full-resolution
	// coordinates, field sampling divides by the stride.
	s := MustSkeleton("worm", []string{"head", "tail"}, [][2]string{{"head", "tail"}})
	peaks := []Peak{
		{Channel: 0, X: 2, Y: 2, Score: 0.9},
		{Channel: 1, X: 8, Y: 2, Score: 0.8},
	}
	pafX := mat.NewDense(3, 6, nil)
	pafY := mat.NewDense(3, 6, nil)
	for x := 0; x < 6; x++ {
		pafX.Set(1, x, 1)
	}

	cfg := DefaultPAFGrouperConfig()
	cfg.PAFStride = 2
	g := NewPAFGrouper(s, cfg)

	instances := g.Group(peaks, []*mat.Dense{pafX, pafY})
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(instances))
	}
	if instances[0].Points[1].X != 8 {
		t.Errorf("tail point = %+v, want full-resolution x 8", instances[0].Points[1])
	}
}
