package graph

import (
	"container/heap"
	"fmt"
	"sort"
)

// Path is the result of a shortest-path query. Nodes has one more entry than
// Edges, and Length is the sum of the edge lengths in path order.
type Path struct {
	From   NodeID   `json:"from"`
	To     NodeID   `json:"to"`
	Nodes  []NodeID `json:"nodes"`
	Edges  []EdgeID `json:"edges"`
	Length float64  `json:"length"` // metres
}

// pathTree is a single-source Dijkstra result. Every distance, node path and
// edge path for a source is read from the same tree.
type pathTree struct {
	source NodeID
	dist   map[NodeID]float64
	via    map[NodeID]EdgeID // edge used to enter the node
	prev   map[NodeID]NodeID
}

type queueItem struct {
	node NodeID
	dist float64
	seq  int
}

// pathQueue orders by distance, then by push order so that equal-length
// alternatives resolve the same way on every run.
type pathQueue []queueItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].seq < q[j].seq
}
func (q pathQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (g *Graph) dijkstra(source NodeID) *pathTree {
	t := &pathTree{
		source: source,
		dist:   map[NodeID]float64{source: 0},
		via:    make(map[NodeID]EdgeID),
		prev:   make(map[NodeID]NodeID),
	}
	done := make(map[NodeID]bool)
	seq := 0
	q := &pathQueue{{node: source, dist: 0, seq: seq}}

	for q.Len() > 0 {
		cur := heap.Pop(q).(queueItem)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true

		for _, id := range g.adj[cur.node] {
			e := g.edges[id]
			next, _ := e.Other(cur.node)
			if done[next] {
				continue
			}
			d := cur.dist + e.Length
			if old, seen := t.dist[next]; seen && d >= old {
				continue
			}
			t.dist[next] = d
			t.via[next] = id
			t.prev[next] = cur.node
			seq++
			heap.Push(q, queueItem{node: next, dist: d, seq: seq})
		}
	}
	return t
}

// tree returns the cached shortest-path tree rooted at source.
func (g *Graph) tree(source NodeID) *pathTree {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.trees[source]; ok {
		return t
	}
	t := g.dijkstra(source)
	g.trees[source] = t
	return t
}

func (t *pathTree) path(to NodeID) (Path, bool) {
	d, ok := t.dist[to]
	if !ok {
		return Path{}, false
	}
	p := Path{From: t.source, To: to, Length: d}
	for n := to; n != t.source; n = t.prev[n] {
		p.Nodes = append(p.Nodes, n)
		p.Edges = append(p.Edges, t.via[n])
	}
	p.Nodes = append(p.Nodes, t.source)
	reverse(p.Nodes)
	reverse(p.Edges)
	if p.Edges == nil {
		p.Edges = []EdgeID{}
	}
	return p, true
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ShortestPath returns the shortest path from start to end. It fails with
// ErrNotFound for an unknown node and ErrNoPath when end is unreachable.
// A path from a node to itself has length 0 and a single node.
func (g *Graph) ShortestPath(start, end NodeID) (Path, error) {
	if !g.HasNode(start) {
		return Path{}, fmt.Errorf("start node %d: %w", start, ErrNotFound)
	}
	if !g.HasNode(end) {
		return Path{}, fmt.Errorf("end node %d: %w", end, ErrNotFound)
	}
	p, ok := g.tree(start).path(end)
	if !ok {
		return Path{}, fmt.Errorf("from %d to %d: %w", start, end, ErrNoPath)
	}
	return p, nil
}

// ShortestDistance returns the shortest-path length in metres. It is false
// when there is no path.
func (g *Graph) ShortestDistance(start, end NodeID) (float64, bool) {
	p, err := g.ShortestPath(start, end)
	if err != nil {
		return 0, false
	}
	return p.Length, true
}

// ShortestPathNodes returns the node sequence of the shortest path.
func (g *Graph) ShortestPathNodes(start, end NodeID) ([]NodeID, bool) {
	p, err := g.ShortestPath(start, end)
	if err != nil {
		return nil, false
	}
	return p.Nodes, true
}

// ShortestPathEdges returns the edge sequence of the shortest path.
func (g *Graph) ShortestPathEdges(start, end NodeID) ([]EdgeID, bool) {
	p, err := g.ShortestPath(start, end)
	if err != nil {
		return nil, false
	}
	return p.Edges, true
}

// NextNode returns the node after current on the shortest path to target.
// It is false when current == target or there is no path.
func (g *Graph) NextNode(current, target NodeID) (NodeID, bool) {
	nodes, ok := g.ShortestPathNodes(current, target)
	if !ok || len(nodes) < 2 {
		return 0, false
	}
	return nodes[1], true
}

// ReachableNodes returns every node reachable from start, start included,
// ordered by ID.
func (g *Graph) ReachableNodes(start NodeID) ([]NodeID, error) {
	if !g.HasNode(start) {
		return nil, fmt.Errorf("start node %d: %w", start, ErrNotFound)
	}
	seen := map[NodeID]bool{start: true}
	queue := []NodeID{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, id := range g.adj[n] {
			next, _ := g.edges[id].Other(n)
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	out := make([]NodeID, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ReachableEdges returns every edge traversable from start, in the order
// they were added to the graph.
func (g *Graph) ReachableEdges(start NodeID) ([]Edge, error) {
	nodes, err := g.ReachableNodes(start)
	if err != nil {
		return nil, err
	}
	in := make(map[NodeID]bool, len(nodes))
	for _, n := range nodes {
		in[n] = true
	}
	var out []Edge
	for _, id := range g.edgeIDs {
		e := g.edges[id]
		if in[e.Source] {
			out = append(out, e.clone())
		}
	}
	return out, nil
}
