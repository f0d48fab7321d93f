package graph

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestShortestPathLine(t *testing.T) {
	g := lineGraph(t)

	d, ok := g.ShortestDistance(1, 3)
	if !ok || d != 250 {
		t.Fatalf("ShortestDistance(1,3) = %v, %v; want 250, true", d, ok)
	}
	nodes, ok := g.ShortestPathNodes(1, 3)
	if !ok || !reflect.DeepEqual(nodes, []NodeID{1, 2, 3}) {
		t.Errorf("ShortestPathNodes(1,3) = %v, %v", nodes, ok)
	}
	edges, ok := g.ShortestPathEdges(1, 3)
	if !ok || !reflect.DeepEqual(edges, []EdgeID{12, 23}) {
		t.Errorf("ShortestPathEdges(1,3) = %v, %v", edges, ok)
	}

	// Undirected edges work both ways.
	back, ok := g.ShortestPathNodes(3, 1)
	if !ok || !reflect.DeepEqual(back, []NodeID{3, 2, 1}) {
		t.Errorf("ShortestPathNodes(3,1) = %v, %v", back, ok)
	}
}

func TestShortestPathSameNode(t *testing.T) {
	g := lineGraph(t)

	p, err := g.ShortestPath(2, 2)
	if err != nil {
		t.Fatalf("ShortestPath(2,2): %v", err)
	}
	if p.Length != 0 || !reflect.DeepEqual(p.Nodes, []NodeID{2}) || len(p.Edges) != 0 {
		t.Errorf("ShortestPath(2,2) = %+v", p)
	}
}

func TestShortestPathNotFoundVersusUnreachable(t *testing.T) {
	g, err := New(GraphData{
		Nodes: []Node{{ID: 1}, {ID: 2}, {ID: 3}},
		Edges: []Edge{{ID: 1, Source: 1, Target: 2, Length: 5}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := g.ShortestPath(1, 3); !errors.Is(err, ErrNoPath) {
		t.Errorf("unreachable: got %v, want ErrNoPath", err)
	}
	if _, err := g.ShortestPath(1, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown: got %v, want ErrNotFound", err)
	}
	if _, ok := g.ShortestDistance(1, 3); ok {
		t.Error("ShortestDistance reported a path to an unreachable node")
	}
	if _, ok := g.ShortestPathNodes(1, 3); ok {
		t.Error("ShortestPathNodes reported a path to an unreachable node")
	}
	if _, ok := g.ShortestPathEdges(1, 3); ok {
		t.Error("ShortestPathEdges reported a path to an unreachable node")
	}
}

func TestShortestPathPrefersShorterDetour(t *testing.T) {
	g, err := New(GraphData{
		Nodes: []Node{{ID: 1}, {ID: 2}, {ID: 3}},
		Edges: []Edge{
			{ID: 1, Source: 1, Target: 3, Length: 100},
			{ID: 2, Source: 1, Target: 2, Length: 30},
			{ID: 3, Source: 2, Target: 3, Length: 30},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	edges, _ := g.ShortestPathEdges(1, 3)
	if !reflect.DeepEqual(edges, []EdgeID{2, 3}) {
		t.Errorf("edges = %v, want [2 3]", edges)
	}
	if next, ok := g.NextNode(1, 3); !ok || next != 2 {
		t.Errorf("NextNode(1,3) = %v, %v", next, ok)
	}
	if _, ok := g.NextNode(3, 3); ok {
		t.Error("NextNode at target must report false")
	}
}

func TestShortestPathTieBreakIsStable(t *testing.T) {
	data := GraphData{
		Nodes: []Node{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
		Edges: []Edge{
			{ID: 10, Source: 1, Target: 2, Length: 1},
			{ID: 11, Source: 1, Target: 3, Length: 1},
			{ID: 12, Source: 2, Target: 4, Length: 1},
			{ID: 13, Source: 3, Target: 4, Length: 1},
		},
	}
	for i := 0; i < 5; i++ {
		g, err := New(data)
		if err != nil {
			t.Fatal(err)
		}
		nodes, _ := g.ShortestPathNodes(1, 4)
		if !reflect.DeepEqual(nodes, []NodeID{1, 2, 4}) {
			t.Fatalf("run %d: nodes = %v, want first-discovered route [1 2 4]", i, nodes)
		}
	}
}

func TestReachable(t *testing.T) {
	g, err := New(GraphData{
		Nodes: []Node{{ID: 4}, {ID: 1}, {ID: 2}, {ID: 3}},
		Edges: []Edge{
			{ID: 1, Source: 1, Target: 2, Length: 5},
			{ID: 2, Source: 3, Target: 4, Length: 5},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.ReachableNodes(2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []NodeID{1, 2}) {
		t.Errorf("ReachableNodes(2) = %v", got)
	}
	edges, err := g.ReachableEdges(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].ID != 2 {
		t.Errorf("ReachableEdges(4) = %v", edges)
	}
	if _, err := g.ReachableNodes(77); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReachableNodes(77) err = %v", err)
	}
}

// randomGraph builds a sparse undirected graph from a seed. Some nodes end up
// disconnected so that unreachable pairs are exercised too.
func randomGraph(seed int64, n int) *Graph {
	r := rand.New(rand.NewSource(seed))
	b := NewBuilder(false)
	for i := 1; i <= n; i++ {
		b.AddNode(Node{ID: NodeID(i)})
	}
	edges := r.Intn(2*n) + 1
	for i := 0; i < edges; i++ {
		u := NodeID(r.Intn(n) + 1)
		v := NodeID(r.Intn(n) + 1)
		b.AddEdge(Edge{ID: EdgeID(i + 1), Source: u, Target: v, Length: float64(r.Intn(500) + 1)})
	}
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

func TestPathfindingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("distance equals summed edge lengths and node count is edges+1", prop.ForAll(
		func(seed int64, n int) bool {
			g := randomGraph(seed, n)
			for a := 1; a <= n; a++ {
				for b := 1; b <= n; b++ {
					d, ok := g.ShortestDistance(NodeID(a), NodeID(b))
					nodes, okNodes := g.ShortestPathNodes(NodeID(a), NodeID(b))
					edges, okEdges := g.ShortestPathEdges(NodeID(a), NodeID(b))
					if ok != okNodes || ok != okEdges {
						return false
					}
					if !ok {
						continue
					}
					var sum float64
					for _, id := range edges {
						e, _ := g.Edge(id)
						sum += e.Length
					}
					if sum != d || len(nodes) != len(edges)+1 {
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 12),
	))

	properties.Property("a node reaches itself with a zero-length single-node path", prop.ForAll(
		func(seed int64, n int) bool {
			g := randomGraph(seed, n)
			for a := 1; a <= n; a++ {
				p, err := g.ShortestPath(NodeID(a), NodeID(a))
				if err != nil || p.Length != 0 || len(p.Nodes) != 1 || p.Nodes[0] != NodeID(a) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 12),
	))

	properties.Property("reachable nodes agree with pathfinding and are idempotent", prop.ForAll(
		func(seed int64, n int) bool {
			g := randomGraph(seed, n)
			first, err := g.ReachableNodes(1)
			if err != nil {
				return false
			}
			second, _ := g.ReachableNodes(1)
			if !reflect.DeepEqual(first, second) {
				return false
			}
			in := make(map[NodeID]bool)
			for _, id := range first {
				in[id] = true
			}
			for b := 1; b <= n; b++ {
				if _, ok := g.ShortestDistance(1, NodeID(b)); ok != in[NodeID(b)] {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
