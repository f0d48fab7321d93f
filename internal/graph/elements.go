package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ElementType discriminates network elements.
type ElementType string

const (
	ElementNode ElementType = "node"
	ElementWay  ElementType = "way"
)

// LatLon is a single geometry vertex of a way element.
type LatLon struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Element is one raw network element, in the shape returned by Overpass
// style queries with "out geom".
type Element struct {
	Type     ElementType       `json:"type" yaml:"type"`
	ID       int64             `json:"id" yaml:"id"`
	Lat      *float64          `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty" yaml:"lon,omitempty"`
	Tags     map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Nodes    []int64           `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Geometry []LatLon          `json:"geometry,omitempty" yaml:"geometry,omitempty"`
}

func (el Element) lineString() orb.LineString {
	ls := make(orb.LineString, len(el.Geometry))
	for i, c := range el.Geometry {
		ls[i] = orb.Point{c.Lon, c.Lat}
	}
	return ls
}

// DecodeElements reads a {"elements": [...]} document.
func DecodeElements(r io.Reader) ([]Element, error) {
	var doc struct {
		Elements []Element `json:"elements" yaml:"elements"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding elements: %w", err)
	}
	return doc.Elements, nil
}

// FromElements builds an undirected graph from raw elements.
//
// Node elements become nodes. A reference shared by exactly two ways with no
// matching node element becomes an implicit junction node, placed where the
// two way geometries come closest. Each way then connects consecutive
// existing nodes along its reference list. When the way geometry has one
// vertex per reference, every segment gets its own slice of the geometry and
// the segments after the first get fresh IDs above the largest element ID.
// Otherwise the way yields a single edge between its first two existing nodes
// carrying the whole geometry.
func FromElements(elements []Element) (*Graph, error) {
	b := NewBuilder(false)

	var maxID int64
	known := make(map[int64]bool)
	ways := make(map[int64]Element)
	for _, el := range elements {
		maxID = max(maxID, el.ID)
		switch el.Type {
		case ElementNode:
			if el.Lat == nil || el.Lon == nil {
				return nil, fmt.Errorf("%w: node element %d has no coordinates", ErrInvalidElement, el.ID)
			}
			if known[el.ID] {
				return nil, fmt.Errorf("%w: node element %d appears twice", ErrInvalidElement, el.ID)
			}
			known[el.ID] = true
			b.AddNode(Node{ID: NodeID(el.ID), Lat: *el.Lat, Lon: *el.Lon})
		case ElementWay:
			if len(el.Nodes) < 2 {
				return nil, fmt.Errorf("%w: way %d references fewer than two nodes", ErrInvalidElement, el.ID)
			}
			if _, dup := ways[el.ID]; dup {
				return nil, fmt.Errorf("%w: way %d appears twice", ErrInvalidElement, el.ID)
			}
			ways[el.ID] = el
		default:
			return nil, fmt.Errorf("%w: element %d has unknown type %q", ErrInvalidElement, el.ID, el.Type)
		}
	}

	coords := make(map[int64]orb.Point)
	for _, n := range b.nodes {
		coords[int64(n.ID)] = n.Point()
	}
	for _, n := range implicitNodes(elements, known) {
		known[int64(n.ID)] = true
		coords[int64(n.ID)] = n.Point()
		b.AddNode(n)
	}

	nextID := maxID + 1
	for _, el := range elements {
		if el.Type != ElementWay {
			continue
		}
		var idx []int
		for i, ref := range el.Nodes {
			if known[ref] {
				idx = append(idx, i)
			}
		}
		if len(idx) < 2 {
			return nil, fmt.Errorf("%w: way %d does not connect two existing nodes", ErrInvalidElement, el.ID)
		}

		ls := el.lineString()
		if len(ls) > 0 && len(ls) != len(el.Nodes) {
			b.AddEdge(Edge{
				ID:       EdgeID(el.ID),
				Source:   NodeID(el.Nodes[idx[0]]),
				Target:   NodeID(el.Nodes[idx[1]]),
				Geometry: ls,
			})
			continue
		}

		for k := 1; k < len(idx); k++ {
			from, to := idx[k-1], idx[k]
			e := Edge{
				ID:     EdgeID(el.ID),
				Source: NodeID(el.Nodes[from]),
				Target: NodeID(el.Nodes[to]),
			}
			if k > 1 {
				e.ID = EdgeID(nextID)
				nextID++
			}
			if len(ls) > 0 {
				e.Geometry = append(orb.LineString{}, ls[from:to+1]...)
			}
			b.AddEdge(e)
		}
	}

	return b.Build()
}

// implicitNodes creates junction nodes for references shared by exactly two
// ways that carry geometry but have no node element of their own.
func implicitNodes(elements []Element, known map[int64]bool) []Node {
	refWays := make(map[int64][]Element)
	var order []int64
	for _, el := range elements {
		if el.Type != ElementWay {
			continue
		}
		for _, ref := range el.Nodes {
			if known[ref] {
				continue
			}
			if _, seen := refWays[ref]; !seen {
				order = append(order, ref)
			}
			refWays[ref] = append(refWays[ref], el)
		}
	}

	var out []Node
	for _, ref := range order {
		ways := refWays[ref]
		if len(ways) != 2 || ways[0].ID == ways[1].ID {
			continue
		}
		a, b := ways[0].lineString(), ways[1].lineString()
		if len(a) == 0 || len(b) == 0 {
			continue
		}
		best, bestDist := a[0], math.Inf(1)
		for _, p := range a {
			for _, q := range b {
				if d := geo.Distance(p, q); d < bestDist {
					best, bestDist = p, d
				}
			}
		}
		out = append(out, Node{ID: NodeID(ref), Lat: best.Lat(), Lon: best.Lon()})
	}
	return out
}
