package console

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/engine"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

// stepSession applies every queued command by running one tick immediately.
type stepSession struct {
	sim *simulation.Simulation
	set *metrics.Set
}

func newSession(t *testing.T) *stepSession {
	t.Helper()
	g, err := graph.New(graph.GraphData{
		Nodes: []graph.Node{{ID: 1}, {ID: 2}, {ID: 3}},
		Edges: []graph.Edge{
			{ID: 12, Source: 1, Target: 2, Length: 100},
			{ID: 23, Source: 2, Target: 3, Length: 150},
		},
	})
	require.NoError(t, err)

	sim := simulation.New(g)
	set := metrics.DefaultSet()
	set.Register(sim)
	tr := railway.NewTrain(1, 1, kinematics.Profile{MaxSpeed: 10, MaxAcceleration: 2, MaxDeceleration: 2})
	require.NoError(t, sim.AddObject(tr, agent.NewForwardUntilTarget()))
	return &stepSession{sim: sim, set: set}
}

func (s *stepSession) Enqueue(cmd simulation.Command) <-chan simulation.Result {
	ch := s.sim.Enqueue(cmd)
	s.sim.Step(100 * time.Millisecond)
	return ch
}

func (s *stepSession) Frame() *engine.Frame {
	return &engine.Frame{Observation: s.sim.Observe(), State: s.sim.State(), Speedup: s.sim.Speedup()}
}

func (s *stepSession) Metrics() *metrics.Set { return s.set }

// stalledSession never applies commands.
type stalledSession struct{ *stepSession }

func (s stalledSession) Enqueue(simulation.Command) <-chan simulation.Result {
	return make(chan simulation.Result)
}

func TestPauseResumeToggle(t *testing.T) {
	s := newSession(t)
	c := New(s)
	ctx := context.Background()

	out, err := c.Execute(ctx, "pause")
	require.NoError(t, err)
	assert.Equal(t, "Simulation paused", out)
	assert.Equal(t, simulation.Paused, s.sim.State())

	out, err = c.Execute(ctx, "RESUME")
	require.NoError(t, err)
	assert.Equal(t, "Simulation resumed", out)

	_, err = c.Execute(ctx, "toggle")
	require.NoError(t, err)
	assert.Equal(t, simulation.Paused, s.sim.State())
}

func TestSpeedup(t *testing.T) {
	s := newSession(t)
	c := New(s)

	_, err := c.Execute(context.Background(), "speedup 2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, s.sim.Speedup())

	_, err = c.Execute(context.Background(), "speedup fast")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestTargetAndClear(t *testing.T) {
	s := newSession(t)
	c := New(s)
	ctx := context.Background()

	_, err := c.Execute(ctx, "target 1 3")
	require.NoError(t, err)
	st, _ := s.sim.Object(1)
	assert.Equal(t, []graph.NodeID{3}, st.Targets)

	_, err = c.Execute(ctx, "target 9 3")
	assert.ErrorIs(t, err, simulation.ErrObjectNotFound)

	_, err = c.Execute(ctx, "clear 1")
	require.NoError(t, err)
	st, _ = s.sim.Object(1)
	assert.Empty(t, st.Targets)

	_, err = c.Execute(ctx, "target 1")
	assert.ErrorIs(t, err, ErrUsage)
	_, err = c.Execute(ctx, "target x 1")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestObjectQueries(t *testing.T) {
	s := newSession(t)
	c := New(s)
	ctx := context.Background()

	out, err := c.Execute(ctx, "object list")
	require.NoError(t, err)
	assert.Equal(t, "train 1 at node 1, 0.00 m/s, targets []", out)

	out, err = c.Execute(ctx, "object show 1")
	require.NoError(t, err)
	var st railway.State
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, railway.ObjectID(1), st.ID)

	_, err = c.Execute(ctx, "object show 2")
	assert.ErrorIs(t, err, simulation.ErrObjectNotFound)

	_, err = c.Execute(ctx, "object frobnicate")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestFormatObjectOnEdge(t *testing.T) {
	st := railway.State{
		ID:       4,
		Kind:     railway.KindTrain,
		Position: railway.Position{Node: 1, Edge: 12, Offset: 25},
		Speed:    3.5,
		Targets:  []graph.NodeID{3},
	}
	assert.Equal(t, "train 4 at edge 12 +25.0m from node 1, 3.50 m/s, targets [3]", FormatObject(st))
}

func TestMetricsQueries(t *testing.T) {
	s := newSession(t)
	c := New(s)
	ctx := context.Background()

	out, err := c.Execute(ctx, "metrics list")
	require.NoError(t, err)
	assert.Equal(t, "ActionCount\nTargetReached", out)

	_, err = c.Execute(ctx, "speedup 1")
	require.NoError(t, err)
	out, err = c.Execute(ctx, "metrics get ActionCount")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ActionCount = 1"), out)
	assert.Contains(t, out, "stop: 1")

	_, err = c.Execute(ctx, "metrics get Nope")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestUnknownAndEmpty(t *testing.T) {
	c := New(newSession(t))

	out, err := c.Execute(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = c.Execute(context.Background(), "jump")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	out, err = c.Execute(context.Background(), "help")
	require.NoError(t, err)
	assert.Equal(t, Help(), out)
}

func TestSubmitTimesOut(t *testing.T) {
	c := New(stalledSession{newSession(t)})
	c.SetTimeout(10 * time.Millisecond)

	_, err := c.Execute(context.Background(), "pause")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestModelRunsCommands(t *testing.T) {
	s := newSession(t)
	m := NewModel(s)

	m.input.SetValue("pause")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.Empty(t, m.input.Value())

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, "Simulation paused", m.output)
	assert.NoError(t, m.err)

	view := m.View()
	assert.Contains(t, view, "paused")
	assert.Contains(t, view, "> pause")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
