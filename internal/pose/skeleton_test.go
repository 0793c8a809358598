package pose

import (
	"testing"
)

func testSkeleton(t *testing.T) *Skeleton {
	t.Helper()
	return MustSkeleton("fly", []string{"head", "thorax", "abdomen"}, [][2]string{
		{"head", "thorax"},
		{"thorax", "abdomen"},
	})
}

func TestNewSkeleton(t *testing.T) {
	s := testSkeleton(t)

	if s.Name() != "fly" {
		t.Errorf("Name() = %q, want fly", s.Name())
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if s.NumEdges() != 2 {
		t.Errorf("NumEdges() = %d, want 2", s.NumEdges())
	}
}

func TestSkeleton_NodeIndex(t *testing.T) {
	s := testSkeleton(t)

	if i := s.NodeIndex("thorax"); i != 1 {
		t.Errorf("NodeIndex(thorax) = %d, want 1", i)
	}
	if i := s.NodeIndex("wing"); i != -1 {
		t.Errorf("NodeIndex(wing) = %d, want -1 for absent node", i)
	}
}

func TestSkeleton_Edges(t *testing.T) {
	s := testSkeleton(t)

	edges := s.Edges()
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	if edges[0].Source != 0 || edges[0].Destination != 1 {
		t.Errorf("edge 0 = %v, want {0 1}", edges[0])
	}
	if edges[1].Source != 1 || edges[1].Destination != 2 {
		t.Errorf("edge 1 = %v, want {1 2}", edges[1])
	}
}

func TestSkeleton_EdgeNames(t *testing.T) {
	s := testSkeleton(t)

	names := s.EdgeNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 edge name pairs, got %d", len(names))
	}
	if names[0] != [2]string{"head", "thorax"} {
		t.Errorf("edge names 0 = %v", names[0])
	}
}

func TestNewSkeleton_Errors(t *testing.T) {
	if _, err := NewSkeleton("dup", []string{"a", "a"}, nil); err == nil {
		t.Error("expected error for duplicate node name")
	}
	if _, err := NewSkeleton("bad-edge", []string{"a", "b"}, [][2]string{{"a", "c"}}); err == nil {
		t.Error("expected error for edge referencing unknown node")
	}
}

func TestSkeleton_SortedOrder(t *testing.T) {
	// Chain c -> b -> a declared out of order: topological order must put
	// sources before destinations.
	s := MustSkeleton("chain", []string{"a", "b", "c"}, [][2]string{
		{"b", "a"},
		{"c", "b"},
	})

	order := s.SortedOrder()
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes in order, got %d", len(order))
	}
	pos := make(map[int]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	// c(2) before b(1) before a(0)
	if !(pos[2] < pos[1] && pos[1] < pos[0]) {
		t.Errorf("order %v does not respect edge direction", order)
	}
}
