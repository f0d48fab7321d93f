// Package graph provides the railway network graph and shortest-path queries
// used by the simulation.
//
// A Graph is built once, through New or a Builder, and is read-only afterwards.
// It is safe for concurrent readers.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// NodeID and EdgeID are stable integer identifiers.
type (
	NodeID int64
	EdgeID int64
)

// Node is a geographic point in the network.
type Node struct {
	ID  NodeID  `json:"node_id" yaml:"node_id"`
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Point returns the node location as an orb point (lon, lat).
func (n Node) Point() orb.Point { return orb.Point{n.Lon, n.Lat} }

// Edge connects two nodes. Geometry runs from Source to Target.
type Edge struct {
	ID       EdgeID         `json:"edge_id" yaml:"edge_id"`
	Source   NodeID         `json:"u" yaml:"u"`
	Target   NodeID         `json:"v" yaml:"v"`
	Length   float64        `json:"length" yaml:"length"` // metres
	Geometry orb.LineString `json:"geometry,omitempty" yaml:"geometry,omitempty"`
}

// Other returns the endpoint opposite n. The second value is false if n is
// not an endpoint of e.
func (e Edge) Other(n NodeID) (NodeID, bool) {
	switch n {
	case e.Source:
		return e.Target, true
	case e.Target:
		return e.Source, true
	}
	return 0, false
}

func (e Edge) clone() Edge {
	e.Geometry = e.Geometry.Clone()
	return e
}

// GraphData is the serialisable input representation of a network graph.
// Edges without geometry are schematic: an explicit Length is kept as is and
// the geometry becomes the straight segment between the endpoints.
type GraphData struct {
	Directed bool   `json:"directed,omitempty" yaml:"directed"`
	Nodes    []Node `json:"nodes" yaml:"nodes"`
	Edges    []Edge `json:"edges" yaml:"edges"`
}

// Graph is an immutable weighted graph of railway nodes and edges.
type Graph struct {
	directed bool
	nodes    map[NodeID]Node
	edges    map[EdgeID]Edge
	nodeIDs  []NodeID            // sorted
	edgeIDs  []EdgeID            // discovery order
	adj      map[NodeID][]EdgeID // outgoing (or incident when undirected), discovery order

	// Shortest-path trees per source, filled lazily.
	mu    sync.Mutex
	trees map[NodeID]*pathTree
}

// Builder accumulates nodes and edges. Build validates and freezes them.
type Builder struct {
	directed bool
	nodes    []Node
	edges    []Edge
}

// NewBuilder returns an empty builder.
func NewBuilder(directed bool) *Builder {
	return &Builder{directed: directed}
}

// AddNode queues a node for construction.
func (b *Builder) AddNode(n Node) *Builder {
	b.nodes = append(b.nodes, n)
	return b
}

// AddEdge queues an edge for construction.
func (b *Builder) AddEdge(e Edge) *Builder {
	b.edges = append(b.edges, e)
	return b
}

// Build validates the queued elements and returns the graph. Any invalid
// element aborts construction with an error wrapping ErrInvalidElement.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		directed: b.directed,
		nodes:    make(map[NodeID]Node, len(b.nodes)),
		edges:    make(map[EdgeID]Edge, len(b.edges)),
		adj:      make(map[NodeID][]EdgeID, len(b.nodes)),
		trees:    make(map[NodeID]*pathTree),
	}
	for _, n := range b.nodes {
		if err := g.addNode(n); err != nil {
			return nil, err
		}
	}
	sort.Slice(g.nodeIDs, func(i, j int) bool { return g.nodeIDs[i] < g.nodeIDs[j] })
	for _, e := range b.edges {
		if err := g.addEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// New builds a Graph from GraphData.
func New(data GraphData) (*Graph, error) {
	b := NewBuilder(data.Directed)
	for _, n := range data.Nodes {
		b.AddNode(n)
	}
	for _, e := range data.Edges {
		b.AddEdge(e)
	}
	return b.Build()
}

func (g *Graph) addNode(n Node) error {
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: node %d already exists", ErrInvalidElement, n.ID)
	}
	if n.Lat < -90 || n.Lat > 90 || n.Lon < -180 || n.Lon > 180 {
		return fmt.Errorf("%w: node %d has out of range coordinates (%f, %f)", ErrInvalidElement, n.ID, n.Lat, n.Lon)
	}
	g.nodes[n.ID] = n
	g.nodeIDs = append(g.nodeIDs, n.ID)
	return nil
}

func (g *Graph) addEdge(e Edge) error {
	if _, exists := g.edges[e.ID]; exists {
		return fmt.Errorf("%w: edge %d already exists", ErrInvalidElement, e.ID)
	}
	src, ok := g.nodes[e.Source]
	if !ok {
		return fmt.Errorf("%w: edge %d: source node %d not found", ErrInvalidElement, e.ID, e.Source)
	}
	dst, ok := g.nodes[e.Target]
	if !ok {
		return fmt.Errorf("%w: edge %d: target node %d not found", ErrInvalidElement, e.ID, e.Target)
	}
	if e.Length < 0 {
		return fmt.Errorf("%w: edge %d has negative length %f", ErrInvalidElement, e.ID, e.Length)
	}

	switch {
	case len(e.Geometry) >= 2:
		e.Geometry = orient(e.Geometry.Clone(), src.Point(), dst.Point())
		e.Length = LineLength(e.Geometry)
	case len(e.Geometry) == 1:
		return fmt.Errorf("%w: edge %d geometry has a single point", ErrInvalidElement, e.ID)
	default:
		e.Geometry = orb.LineString{src.Point(), dst.Point()}
		if e.Length == 0 {
			e.Length = geo.DistanceHaversine(src.Point(), dst.Point())
		}
	}

	g.edges[e.ID] = e
	g.edgeIDs = append(g.edgeIDs, e.ID)
	g.adj[e.Source] = append(g.adj[e.Source], e.ID)
	if !g.directed && e.Source != e.Target {
		g.adj[e.Target] = append(g.adj[e.Target], e.ID)
	}
	return nil
}

// orient reverses ls when its first point is closer to dst than to src.
func orient(ls orb.LineString, src, dst orb.Point) orb.LineString {
	if geo.Distance(ls[0], src) > geo.Distance(ls[0], dst) {
		ls.Reverse()
	}
	return ls
}

// LineLength is the summed great-circle distance between consecutive points, in metres.
func LineLength(ls orb.LineString) float64 {
	var length float64
	for i := 1; i < len(ls); i++ {
		length += geo.DistanceHaversine(ls[i-1], ls[i])
	}
	return length
}

// Directed reports whether edges are one-way.
func (g *Graph) Directed() bool { return g.directed }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node looks up a node by ID.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Edge looks up an edge by ID. The returned edge owns its geometry.
func (g *Graph) Edge(id EdgeID) (Edge, bool) {
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, false
	}
	return e.clone(), true
}

// Nodes returns all nodes ordered by ID.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodeIDs))
	for i, id := range g.nodeIDs {
		out[i] = g.nodes[id]
	}
	return out
}

// Edges returns all edges in the order they were added.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edgeIDs))
	for i, id := range g.edgeIDs {
		out[i] = g.edges[id].clone()
	}
	return out
}

// EdgesOf returns the edges leaving n (every incident edge when undirected).
func (g *Graph) EdgesOf(n NodeID) []Edge {
	ids := g.adj[n]
	out := make([]Edge, len(ids))
	for i, id := range ids {
		out[i] = g.edges[id].clone()
	}
	return out
}

// Neighbors returns the distinct nodes reachable over a single edge from n,
// in discovery order.
func (g *Graph) Neighbors(n NodeID) []NodeID {
	seen := make(map[NodeID]bool)
	var out []NodeID
	for _, id := range g.adj[n] {
		other, _ := g.edges[id].Other(n)
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// EdgeBetween returns the shortest edge usable from a to b. Ties keep the
// edge added first.
func (g *Graph) EdgeBetween(a, b NodeID) (Edge, bool) {
	var (
		best  Edge
		found bool
	)
	for _, id := range g.adj[a] {
		e := g.edges[id]
		if other, _ := e.Other(a); other != b {
			continue
		}
		if !found || e.Length < best.Length {
			best, found = e, true
		}
	}
	if !found {
		return Edge{}, false
	}
	return best.clone(), true
}

// BoundingBox returns the min/max lon/lat over all nodes. It is false for an
// empty graph.
func (g *Graph) BoundingBox() (orb.Bound, bool) {
	if len(g.nodes) == 0 {
		return orb.Bound{}, false
	}
	mp := make(orb.MultiPoint, 0, len(g.nodes))
	for _, id := range g.nodeIDs {
		mp = append(mp, g.nodes[id].Point())
	}
	return mp.Bound(), true
}

// NearestNode returns the node with the smallest great-circle distance to p.
// Ties keep the lower ID. It is false for an empty graph.
func (g *Graph) NearestNode(p orb.Point) (Node, bool) {
	var (
		best     Node
		bestDist float64
		found    bool
	)
	for _, id := range g.nodeIDs {
		n := g.nodes[id]
		d := geo.Distance(p, n.Point())
		if !found || d < bestDist {
			best, bestDist, found = n, d, true
		}
	}
	return best, found
}

// TotalLength is the sum of all edge lengths in metres.
func (g *Graph) TotalLength() float64 {
	var total float64
	for _, id := range g.edgeIDs {
		total += g.edges[id].Length
	}
	return total
}

// PointAlong returns the coordinate offset metres along edge id, measured
// from the endpoint from.
func (g *Graph) PointAlong(id EdgeID, from NodeID, offset float64) (orb.Point, error) {
	e, ok := g.edges[id]
	if !ok {
		return orb.Point{}, fmt.Errorf("edge %d: %w", id, ErrNotFound)
	}
	if from != e.Source && from != e.Target {
		return orb.Point{}, fmt.Errorf("node %d is not an endpoint of edge %d: %w", from, id, ErrNotFound)
	}
	ls := e.Geometry
	if from == e.Target {
		ls = ls.Clone()
		ls.Reverse()
	}
	if e.Length <= 0 || offset <= 0 {
		return ls[0], nil
	}
	if offset >= e.Length {
		return ls[len(ls)-1], nil
	}

	// Schematic edges carry an explicit length, so walk the geometry in
	// proportion rather than in raw metres.
	want := offset / e.Length * LineLength(ls)
	for i := 1; i < len(ls); i++ {
		seg := geo.DistanceHaversine(ls[i-1], ls[i])
		if seg >= want && seg > 0 {
			f := want / seg
			return orb.Point{
				ls[i-1][0] + f*(ls[i][0]-ls[i-1][0]),
				ls[i-1][1] + f*(ls[i][1]-ls[i-1][1]),
			}, nil
		}
		want -= seg
	}
	return ls[len(ls)-1], nil
}
