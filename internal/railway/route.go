package railway

import (
	"fmt"

	"github.com/cxd309/railsim/internal/graph"
)

// A train between two nodes always runs on to the far node before it can
// turn towards anything else.

// farNode returns the node an on-edge position is heading for.
func farNode(g *graph.Graph, p Position) (graph.Edge, graph.NodeID, error) {
	e, ok := g.Edge(p.Edge)
	if !ok {
		return graph.Edge{}, 0, fmt.Errorf("edge %d: %w", p.Edge, graph.ErrNotFound)
	}
	far, ok := e.Other(p.Node)
	if !ok {
		return graph.Edge{}, 0, fmt.Errorf("node %d is not on edge %d: %w", p.Node, p.Edge, graph.ErrNotFound)
	}
	return e, far, nil
}

// DistanceToTarget returns the metres left from p to target along the route
// the simulation will follow.
func DistanceToTarget(g *graph.Graph, p Position, target graph.NodeID) (float64, error) {
	if !p.OnEdge() {
		path, err := g.ShortestPath(p.Node, target)
		if err != nil {
			return 0, err
		}
		return path.Length, nil
	}
	e, far, err := farNode(g, p)
	if err != nil {
		return 0, err
	}
	rest, err := g.ShortestPath(far, target)
	if err != nil {
		return 0, err
	}
	return (e.Length - p.Offset) + rest.Length, nil
}

// DistanceToNode returns the metres to the next node on the route: the far
// end of the current edge, or 0 when resting on a node.
func DistanceToNode(g *graph.Graph, p Position) (float64, error) {
	if !p.OnEdge() {
		return 0, nil
	}
	e, _, err := farNode(g, p)
	if err != nil {
		return 0, err
	}
	return e.Length - p.Offset, nil
}

// Movement is the outcome of Advance.
type Movement struct {
	Position Position
	Distance float64 // metres actually travelled
	Arrived  bool    // stopped on the target node
	Nodes    []graph.NodeID
}

// Advance moves p up to dist metres along the shortest route to target.
// Movement stops early on reaching target. Without a target (hasTarget false)
// an on-edge position may only run on to the far node.
func Advance(g *graph.Graph, p Position, target graph.NodeID, hasTarget bool, dist float64) (Movement, error) {
	m := Movement{Position: p}

	if p.OnEdge() {
		e, far, err := farNode(g, p)
		if err != nil {
			return m, err
		}
		remaining := e.Length - p.Offset
		if dist < remaining {
			m.Position.Offset += dist
			m.Distance = dist
			return m, nil
		}
		dist -= remaining
		m.Distance = remaining
		m.Position = AtNode(far)
		m.Nodes = append(m.Nodes, far)
	}

	if !hasTarget {
		return m, nil
	}

	for {
		node := m.Position.Node
		if node == target {
			m.Arrived = true
			return m, nil
		}
		if dist <= 0 {
			return m, nil
		}
		path, err := g.ShortestPath(node, target)
		if err != nil {
			return m, err
		}
		e, _ := g.Edge(path.Edges[0])
		next := path.Nodes[1]
		if dist < e.Length {
			m.Position = Position{Node: node, Edge: e.ID, Offset: dist}
			m.Distance += dist
			return m, nil
		}
		dist -= e.Length
		m.Distance += e.Length
		m.Position = AtNode(next)
		m.Nodes = append(m.Nodes, next)
	}
}
