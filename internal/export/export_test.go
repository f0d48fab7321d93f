package export

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/railsim/internal/graph"
)

func twoNodes(t *testing.T, directed bool) *graph.Graph {
	t.Helper()
	g, err := graph.New(graph.GraphData{
		Directed: directed,
		Nodes: []graph.Node{
			{ID: 2, Lat: 50.0, Lon: 8.0},
			{ID: 3, Lat: 51.0, Lon: 9.0},
		},
		Edges: []graph.Edge{{ID: 1, Source: 2, Target: 3}},
	})
	require.NoError(t, err)
	return g
}

func TestDOT(t *testing.T) {
	dot := DOT(twoNodes(t, false))

	assert.True(t, strings.HasPrefix(dot, "graph {"))
	assert.Contains(t, dot, `2 [ label = "Node { id: 2, lat: 50, lon: 8 }" ]`)
	assert.Contains(t, dot, `3 [ label = "Node { id: 3, lat: 51, lon: 9 }" ]`)
	assert.Contains(t, dot, "2 -- 3")
	assert.True(t, strings.HasSuffix(dot, "}\n"))

	directed := DOT(twoNodes(t, true))
	assert.True(t, strings.HasPrefix(directed, "digraph {"))
	assert.Contains(t, directed, "2 -> 3")
}

func TestSVG(t *testing.T) {
	svg := SVG(twoNodes(t, false), DefaultSVGOptions())

	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, "</svg>")
	assert.Equal(t, 2, strings.Count(svg, "<circle"))
	assert.Equal(t, 1, strings.Count(svg, "<path"))

	var doc struct {
		Circles []struct {
			ID string  `xml:"id,attr"`
			CX float64 `xml:"cx,attr"`
			CY float64 `xml:"cy,attr"`
		} `xml:"circle"`
	}
	require.NoError(t, xml.Unmarshal([]byte(svg), &doc), "output is well-formed")
	require.Len(t, doc.Circles, 2)

	// Node 2 is south-west of node 3: left and lower on the canvas.
	assert.Equal(t, "node-2", doc.Circles[0].ID)
	assert.Less(t, doc.Circles[0].CX, doc.Circles[1].CX)
	assert.Greater(t, doc.Circles[0].CY, doc.Circles[1].CY)
	for _, c := range doc.Circles {
		assert.GreaterOrEqual(t, c.CX, 0.0)
		assert.LessOrEqual(t, c.CX, 2500.0)
		assert.GreaterOrEqual(t, c.CY, 0.0)
		assert.LessOrEqual(t, c.CY, 2500.0)
	}
}

func TestSVGDegenerateGraphs(t *testing.T) {
	empty, err := graph.New(graph.GraphData{})
	require.NoError(t, err)
	assert.Contains(t, SVG(empty, SVGOptions{}), "</svg>", "zero options fall back to defaults")

	schematic, err := graph.New(graph.GraphData{
		Nodes: []graph.Node{{ID: 1}, {ID: 2}},
		Edges: []graph.Edge{{ID: 1, Source: 1, Target: 2, Length: 100}},
	})
	require.NoError(t, err)
	svg := SVG(schematic, DefaultSVGOptions())
	assert.NotContains(t, svg, "NaN")
	assert.NotContains(t, svg, "Inf")
}

func TestFormat(t *testing.T) {
	g := twoNodes(t, false)

	out, err := Format(g, "DOT", DefaultSVGOptions())
	require.NoError(t, err)
	assert.Equal(t, DOT(g), out)

	out, err = Format(g, "svg", DefaultSVGOptions())
	require.NoError(t, err)
	assert.Equal(t, SVG(g, DefaultSVGOptions()), out)

	_, err = Format(g, "png", DefaultSVGOptions())
	assert.Error(t, err)
}
