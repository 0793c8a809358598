package pose

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Skeleton is a directed graph of named anatomical landmarks ("nodes") and
// the connections between them ("edges", e.g. "head" -> "thorax").
//
// Node order is significant: every peak, point and score array in the
// toolkit is indexed positionally by a skeleton's node index. Skeletons are
// immutable after construction and shared by reference across all pipeline
// stages without synchronisation.
type Skeleton struct {
	name  string
	nodes []string
	edges [][2]int

	index map[string]int
	graph *simple.DirectedGraph
}

// Edge is a named connection between two skeleton nodes, identified by node
// indices into the skeleton's node list.
type Edge struct {
	Source      int
	Destination int
}

// NewSkeleton builds a skeleton from ordered node names and (source,
// destination) name pairs. Edge endpoints must reference declared nodes and
// node names must be unique.
func NewSkeleton(name string, nodes []string, edges [][2]string) (*Skeleton, error) {
	s := &Skeleton{
		name:  name,
		nodes: append([]string(nil), nodes...),
		index: make(map[string]int, len(nodes)),
		graph: simple.NewDirectedGraph(),
	}
	for i, n := range nodes {
		if _, dup := s.index[n]; dup {
			return nil, fmt.Errorf("skeleton %q: duplicate node %q", name, n)
		}
		s.index[n] = i
		s.graph.AddNode(simple.Node(i))
	}
	for _, e := range edges {
		src, ok := s.index[e[0]]
		if !ok {
			return nil, fmt.Errorf("skeleton %q: edge source %q is not a node", name, e[0])
		}
		dst, ok := s.index[e[1]]
		if !ok {
			return nil, fmt.Errorf("skeleton %q: edge destination %q is not a node", name, e[1])
		}
		if src == dst {
			return nil, fmt.Errorf("skeleton %q: self edge on %q", name, e[0])
		}
		s.edges = append(s.edges, [2]int{src, dst})
		s.graph.SetEdge(s.graph.NewEdge(simple.Node(src), simple.Node(dst)))
	}
	return s, nil
}

// MustSkeleton is NewSkeleton that panics on error; intended for fixed
// skeleton literals in tests and examples.
func MustSkeleton(name string, nodes []string, edges [][2]string) *Skeleton {
	s, err := NewSkeleton(name, nodes, edges)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the skeleton's name.
func (s *Skeleton) Name() string { return s.name }

// Len returns the number of nodes.
func (s *Skeleton) Len() int { return len(s.nodes) }

// Nodes returns the ordered node names. Callers must not mutate the result.
func (s *Skeleton) Nodes() []string { return s.nodes }

// NodeName returns the name of node i.
func (s *Skeleton) NodeName(i int) string { return s.nodes[i] }

// NodeIndex returns the index of the named node, or -1 if absent.
func (s *Skeleton) NodeIndex(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Edges returns the ordered edge list as node index pairs. Edge order is
// significant: part-affinity-field channels are indexed positionally by edge.
func (s *Skeleton) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	for i, e := range s.edges {
		out[i] = Edge{Source: e[0], Destination: e[1]}
	}
	return out
}

// NumEdges returns the number of edges.
func (s *Skeleton) NumEdges() int { return len(s.edges) }

// EdgeNames returns the edge list as (source name, destination name) pairs.
func (s *Skeleton) EdgeNames() [][2]string {
	out := make([][2]string, len(s.edges))
	for i, e := range s.edges {
		out[i] = [2]string{s.nodes[e[0]], s.nodes[e[1]]}
	}
	return out
}

// SortedOrder returns the node indices in topological order when the edge
// graph is acyclic, falling back to declaration order for cyclic skeletons.
// PAF grouping uses it to process edges root to leaf.
func (s *Skeleton) SortedOrder() []int {
	order, err := topo.Sort(s.graph)
	if err != nil {
		out := make([]int, len(s.nodes))
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, len(order))
	for _, n := range order {
		out = append(out, int(n.ID()))
	}
	return out
}
