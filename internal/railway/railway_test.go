package railway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
)

var testProfile = kinematics.Profile{MaxSpeed: 10, MaxAcceleration: 2, MaxDeceleration: 2}

func lineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(graph.GraphData{
		Nodes: []graph.Node{{ID: 1, Lat: 0, Lon: 0}, {ID: 2, Lat: 0, Lon: 0.001}, {ID: 3, Lat: 0, Lon: 0.002}},
		Edges: []graph.Edge{
			{ID: 12, Source: 1, Target: 2, Length: 100},
			{ID: 23, Source: 2, Target: 3, Length: 150},
		},
	})
	require.NoError(t, err)
	return g
}

func TestTrainTargetQueue(t *testing.T) {
	tr := NewTrain(1, 1, testProfile)

	_, ok := tr.NextTarget()
	assert.False(t, ok)

	tr.PushTarget(2)
	tr.PushTarget(3)
	next, ok := tr.NextTarget()
	assert.True(t, ok)
	assert.Equal(t, graph.NodeID(2), next)

	tr.SetNextTarget(5)
	assert.Equal(t, []graph.NodeID{5, 3}, tr.Targets())

	tr.ClearNextTarget()
	assert.Equal(t, []graph.NodeID{3}, tr.Targets())

	popped, ok := tr.PopTarget()
	assert.True(t, ok)
	assert.Equal(t, graph.NodeID(3), popped)
	_, ok = tr.PopTarget()
	assert.False(t, ok)

	tr.SetNextTarget(2)
	assert.Equal(t, []graph.NodeID{2}, tr.Targets())
}

func TestCaptureIsACopy(t *testing.T) {
	tr := NewTrain(7, 1, testProfile)
	tr.PushTarget(3)
	tr.SetSpeed(4)

	s := Capture(tr)
	s.Targets[0] = 99
	tr.SetSpeed(6)

	assert.Equal(t, []graph.NodeID{3}, tr.Targets())
	assert.Equal(t, 4.0, s.Speed)
	assert.Equal(t, KindTrain, s.Kind)
	next, ok := s.NextTarget()
	assert.True(t, ok)
	assert.Equal(t, graph.NodeID(99), next)
}

func TestAdvance(t *testing.T) {
	g := lineGraph(t)

	tests := []struct {
		name    string
		from    Position
		target  graph.NodeID
		dist    float64
		want    Position
		arrived bool
	}{
		{"within first edge", AtNode(1), 3, 40, Position{Node: 1, Edge: 12, Offset: 40}, false},
		{"across a node", AtNode(1), 3, 130, Position{Node: 2, Edge: 23, Offset: 30}, false},
		{"exactly onto target", Position{Node: 1, Edge: 12, Offset: 50}, 3, 200, AtNode(3), true},
		{"overshoot stops at target", AtNode(1), 2, 500, AtNode(2), true},
		{"already at target", AtNode(3), 3, 10, AtNode(3), true},
		{"backwards", AtNode(3), 1, 160, Position{Node: 2, Edge: 12, Offset: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Advance(g, tt.from, tt.target, true, tt.dist)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Position)
			assert.Equal(t, tt.arrived, m.Arrived)
		})
	}
}

func TestAdvanceWithoutTargetStopsAtNode(t *testing.T) {
	g := lineGraph(t)

	m, err := Advance(g, Position{Node: 1, Edge: 12, Offset: 90}, 0, false, 50)
	require.NoError(t, err)
	assert.Equal(t, AtNode(2), m.Position)
	assert.Equal(t, 10.0, m.Distance)
	assert.False(t, m.Arrived)
}

func TestDistanceToTarget(t *testing.T) {
	g := lineGraph(t)

	d, err := DistanceToTarget(g, AtNode(1), 3)
	require.NoError(t, err)
	assert.Equal(t, 250.0, d)

	d, err = DistanceToTarget(g, Position{Node: 1, Edge: 12, Offset: 30}, 3)
	require.NoError(t, err)
	assert.Equal(t, 220.0, d)

	// Mid-edge trains run on to the far node first.
	d, err = DistanceToTarget(g, Position{Node: 1, Edge: 12, Offset: 30}, 1)
	require.NoError(t, err)
	assert.Equal(t, 170.0, d)

	_, err = DistanceToTarget(g, AtNode(1), 42)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestTrainLocation(t *testing.T) {
	g := lineGraph(t)
	tr := NewTrain(1, 1, testProfile)
	tr.SetPosition(Position{Node: 1, Edge: 12, Offset: 50})

	p, err := tr.Location(g)
	require.NoError(t, err)
	assert.InDelta(t, 0.0005, p.Lon(), 1e-9)

	tr.SetPosition(AtNode(3))
	p, err = tr.Location(g)
	require.NoError(t, err)
	assert.Equal(t, 0.002, p.Lon())
}
