// Package export renders a graph as Graphviz DOT or as a standalone SVG
// document. Both are pure functions of the graph.
package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/cxd309/railsim/internal/graph"
)

// Formats lists the accepted format names.
var Formats = []string{"dot", "svg"}

// Format renders g in the named format.
func Format(g *graph.Graph, format string, opts SVGOptions) (string, error) {
	switch strings.ToLower(format) {
	case "dot":
		return DOT(g), nil
	case "svg":
		return SVG(g, opts), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// DOT returns the graph in DOT notation. Nodes are labelled with their id and
// coordinates, edges with their id and length.
func DOT(g *graph.Graph) string {
	kind, op := "graph", "--"
	if g.Directed() {
		kind, op = "digraph", "->"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s {\n", kind)
	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "    %d [ label = \"Node { id: %d, lat: %g, lon: %g }\" ]\n", n.ID, n.ID, n.Lat, n.Lon)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "    %d %s %d [ label = \"%d (%.1f m)\" ]\n", e.Source, op, e.Target, e.ID, e.Length)
	}
	b.WriteString("}\n")
	return b.String()
}

// SVGOptions controls the SVG canvas.
type SVGOptions struct {
	Width, Height float64
	Margin        float64
	NodeRadius    float64
	NodeColor     string
	EdgeColor     string
	EdgeWidth     float64
}

// DefaultSVGOptions returns a 2500x2500 canvas with small red nodes.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Width:      2500,
		Height:     2500,
		Margin:     10,
		NodeRadius: 2,
		NodeColor:  "red",
		EdgeColor:  "black",
		EdgeWidth:  1,
	}
}

// canvas maps geographic points into SVG coordinates: web mercator, scaled
// uniformly to fit, with y pointing down.
type canvas struct {
	min   orb.Point
	scale float64
	opts  SVGOptions
}

func newCanvas(g *graph.Graph, opts SVGOptions) canvas {
	var pts orb.MultiPoint
	for _, n := range g.Nodes() {
		pts = append(pts, project.WGS84.ToMercator(n.Point()))
	}
	for _, e := range g.Edges() {
		for _, p := range e.Geometry {
			pts = append(pts, project.WGS84.ToMercator(p))
		}
	}

	c := canvas{scale: 1, opts: opts}
	if len(pts) == 0 {
		return c
	}
	bound := pts.Bound()
	c.min = bound.Min

	w, h := bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1]
	innerW, innerH := opts.Width-2*opts.Margin, opts.Height-2*opts.Margin
	switch {
	case w > 0 && h > 0:
		c.scale = min(innerW/w, innerH/h)
	case w > 0:
		c.scale = innerW / w
	case h > 0:
		c.scale = innerH / h
	}
	return c
}

func (c canvas) xy(p orb.Point) (float64, float64) {
	m := project.WGS84.ToMercator(p)
	x := c.opts.Margin + (m[0]-c.min[0])*c.scale
	y := c.opts.Height - c.opts.Margin - (m[1]-c.min[1])*c.scale
	return x, y
}

// SVG draws every edge as a path along its geometry and every node as a circle.
func SVG(g *graph.Graph, opts SVGOptions) string {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts = DefaultSVGOptions()
	}
	c := newCanvas(g, opts)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%g" height="%g" viewBox="0 0 %g %g">`+"\n",
		opts.Width, opts.Height, opts.Width, opts.Height)

	for _, e := range g.Edges() {
		if len(e.Geometry) < 2 {
			continue
		}
		var d strings.Builder
		for i, p := range e.Geometry {
			x, y := c.xy(p)
			cmd := "L"
			if i == 0 {
				cmd = "M"
			}
			fmt.Fprintf(&d, "%s %.2f %.2f ", cmd, x, y)
		}
		fmt.Fprintf(&b, `  <path id="edge-%d" d="%s" stroke="%s" stroke-width="%g" fill="none"/>`+"\n",
			e.ID, strings.TrimSpace(d.String()), html.EscapeString(opts.EdgeColor), opts.EdgeWidth)
	}

	for _, n := range g.Nodes() {
		x, y := c.xy(n.Point())
		fmt.Fprintf(&b, `  <circle id="node-%d" cx="%.2f" cy="%.2f" r="%g" fill="%s"/>`+"\n",
			n.ID, x, y, opts.NodeRadius, html.EscapeString(opts.NodeColor))
	}

	b.WriteString("</svg>\n")
	return b.String()
}
