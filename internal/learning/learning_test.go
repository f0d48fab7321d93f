package learning

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/environment"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

var profile = kinematics.Profile{MaxSpeed: 10, MaxAcceleration: 2, MaxDeceleration: 2}

func lineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(graph.GraphData{
		Nodes: []graph.Node{{ID: 1}, {ID: 2}, {ID: 3}},
		Edges: []graph.Edge{
			{ID: 12, Source: 1, Target: 2, Length: 100},
			{ID: 23, Source: 2, Target: 3, Length: 150},
		},
	})
	require.NoError(t, err)
	return g
}

func observe(g *graph.Graph, s railway.State) environment.Observation {
	return environment.NewSnapshot(g, []railway.State{s}, 0, 0, time.Second)
}

func TestDiscretizer(t *testing.T) {
	d := DefaultDiscretizer()
	s := d.Of(1, 3, 5.5, 100, profile)

	assert.Equal(t, State{
		Node:               1,
		Target:             3,
		Speed:              5,
		Ceiling:            10,
		MaxSpeed:           10,
		MaxSpeedPercentage: 50,
	}, s)

	near := d.Of(2, 3, 1, 1, profile)
	assert.Equal(t, 2, near.Ceiling, "ceiling follows braking distance")

	zero := Discretizer{}.Of(1, 3, 3, 100, profile)
	assert.Equal(t, 3, zero.Speed, "zero discretizer falls back to defaults")
}

func TestDiscretizeObservation(t *testing.T) {
	g := lineGraph(t)
	d := DefaultDiscretizer()

	obs := observe(g, railway.State{ID: 1, Position: railway.AtNode(1), Profile: profile, Targets: []graph.NodeID{3}})
	s, ok := d.Discretize(obs, 1)
	require.True(t, ok)
	assert.Equal(t, d.Of(1, 3, 0, 250, profile), s)

	_, ok = d.Discretize(obs, 2)
	assert.False(t, ok, "missing object")

	noTarget := observe(g, railway.State{ID: 1, Position: railway.AtNode(1), Profile: profile})
	_, ok = d.Discretize(noTarget, 1)
	assert.False(t, ok, "no target")
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		index int
		want  agent.Action
	}{
		{0, agent.Stop()},
		{1, agent.Forward(2)},
		{2, agent.Forward(1)},
		{3, agent.Backward(1)},
		{4, agent.Backward(2)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ActionFor(tt.index, profile), "index %d", tt.index)
	}
}

func TestQTableUpdate(t *testing.T) {
	q := NewQTable(0, 0)
	s := State{Node: 1, Target: 3}
	next := State{Node: 2, Target: 3}

	q.Update(s, 1, 10, next, false, 0.5, 0.9)
	v, ok := q.Lookup(s)
	require.True(t, ok)
	assert.InDelta(t, 5.0, v[1], 1e-9)

	q.Update(next, 0, 4, next, true, 0.5, 0.9)
	v, _ = q.Lookup(next)
	assert.InDelta(t, 2.0, v[0], 1e-9)

	q.Update(s, 1, 0, next, false, 0.5, 0.9)
	v, _ = q.Lookup(s)
	assert.InDelta(t, 3.4, v[1], 1e-9)
	assert.Equal(t, 2, q.Len())
}

func TestQTableInitialValue(t *testing.T) {
	q := NewQTable(2, 0)
	v, ok := q.Lookup(State{Node: 7})
	assert.False(t, ok)
	assert.Equal(t, Values{2, 2, 2, 2, 2}, v)
}

func TestQTableCap(t *testing.T) {
	q := NewQTable(0, 1)
	a := State{Node: 1}
	b := State{Node: 2}

	q.Update(a, 0, 1, a, true, 1, 0)
	q.Update(b, 0, 1, b, true, 1, 0)
	q.Update(a, 1, 3, a, true, 1, 0)

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Dropped())
	_, ok := q.Lookup(b)
	assert.False(t, ok)
	v, _ := q.Lookup(a)
	assert.Equal(t, Values{1, 3, 0, 0, 0}, v)
}

func TestQTableEntriesSorted(t *testing.T) {
	q := NewQTable(0, 0)
	for _, n := range []graph.NodeID{3, 1, 2} {
		s := State{Node: n}
		q.Update(s, 0, 1, s, true, 1, 0)
	}
	entries := q.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, graph.NodeID(i+1), e.State.Node)
	}
}

func TestAgentGreedyOnKnownState(t *testing.T) {
	g := lineGraph(t)
	d := DefaultDiscretizer()
	obs := observe(g, railway.State{ID: 1, Position: railway.AtNode(1), Profile: profile, Targets: []graph.NodeID{3}})
	s := d.Of(1, 3, 0, 250, profile)

	q := NewQTable(0, 0)
	q.Update(s, 3, 10, s, true, 1, 0)

	a := NewAgent(q, d)
	assert.Equal(t, agent.Backward(1), a.NextAction(obs, 1))
	dec, ok := a.Last(1)
	require.True(t, ok)
	assert.Equal(t, Decision{State: s, Action: 3}, dec)
	assert.Equal(t, 3, a.BestAction(s))
}

func TestAgentFallsBackOnUnseenState(t *testing.T) {
	g := lineGraph(t)
	obs := observe(g, railway.State{ID: 1, Position: railway.AtNode(1), Profile: profile, Targets: []graph.NodeID{3}})

	a := NewAgent(NewQTable(0, 0), DefaultDiscretizer())
	assert.Equal(t, agent.NewForwardUntilTarget().NextAction(obs, 1), a.NextAction(obs, 1))
	_, ok := a.Last(1)
	assert.False(t, ok)
}

func TestAgentStopsWithoutTarget(t *testing.T) {
	g := lineGraph(t)
	obs := observe(g, railway.State{ID: 1, Position: railway.AtNode(1), Profile: profile})

	a := NewTrainingAgent(NewQTable(0, 0), DefaultDiscretizer(), 1, rand.New(rand.NewSource(1)))
	assert.Equal(t, agent.Stop(), a.NextAction(obs, 1))
}

func TestTrainingAgentExplores(t *testing.T) {
	g := lineGraph(t)
	obs := observe(g, railway.State{ID: 1, Position: railway.AtNode(1), Profile: profile, Targets: []graph.NodeID{3}})

	a := NewTrainingAgent(NewQTable(0, 0), DefaultDiscretizer(), 1, rand.New(rand.NewSource(7)))
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		a.NextAction(obs, 1)
		dec, ok := a.Last(1)
		require.True(t, ok)
		require.GreaterOrEqual(t, dec.Action, 0)
		require.Less(t, dec.Action, NumActions)
		seen[dec.Action] = true
	}
	assert.Len(t, seen, NumActions, "every action explored")
}

func TestReward(t *testing.T) {
	c := DefaultRewardConfig()

	tests := []struct {
		name string
		tr   Transition
		want float64
	}{
		{"progress", Transition{Before: 100, After: 90, Speed: 5, Ceiling: 10}, 10 - 0.1},
		{"arrival", Transition{Before: 5, After: 0, Arrived: true}, 5 - 0.1 + 1000},
		{"overspeed", Transition{Before: 100, After: 90, Speed: 12, Ceiling: 10}, 10 - 0.1 - 50},
		{"stall", Transition{Before: 100, After: 100, Stationary: true, Ceiling: 10}, -0.1 - 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c.Reward(tt.tr), 1e-9)
		})
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	q := NewQTable(1.5, 0)
	d := Discretizer{SpeedStep: 2, PercentStep: 20}
	q.Update(State{Node: 1, Target: 3, Speed: 2}, 1, 10, State{Node: 2, Target: 3}, false, 0.5, 0.9)
	q.Update(State{Node: 2, Target: 3}, 4, -1, State{}, true, 0.5, 0.9)

	var buf bytes.Buffer
	require.NoError(t, SavePolicy(&buf, q, d))

	loaded, ld, err := LoadPolicy(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, d, ld)
	assert.Equal(t, q.Entries(), loaded.Entries())

	v, ok := loaded.Lookup(State{Node: 9})
	assert.False(t, ok)
	assert.Equal(t, 1.5, v[0], "initial value survives")

	capped, _, err := LoadPolicy(bytes.NewReader(buf.Bytes()), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, capped.Len())
	assert.Equal(t, 1, capped.Dropped())
}

func TestPolicyRejectsGarbage(t *testing.T) {
	_, _, err := LoadPolicy(bytes.NewReader([]byte("not a policy")), 0)
	assert.Error(t, err)
}

func TestPolicyFile(t *testing.T) {
	q := NewQTable(0, 0)
	q.Update(State{Node: 1, Target: 2}, 2, 3, State{}, true, 1, 0)
	path := t.TempDir() + "/policy.snappy"

	require.NoError(t, SavePolicyFile(path, q, DefaultDiscretizer()))
	loaded, _, err := LoadPolicyFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, q.Entries(), loaded.Entries())

	_, _, err = LoadPolicyFile(t.TempDir()+"/missing", 0)
	assert.Error(t, err)
}

func trainerConfig() TrainerConfig {
	cfg := DefaultTrainerConfig()
	cfg.Episodes = 20
	cfg.MaxTicks = 1000
	cfg.Step = time.Second
	cfg.Profile = profile
	cfg.Pairs = [][2]graph.NodeID{{1, 3}, {3, 1}}
	return cfg
}

func TestTrainerIsDeterministicWithOneWorker(t *testing.T) {
	g := lineGraph(t)

	run := func() (Stats, []Entry) {
		q := NewQTable(0, 0)
		tr, err := NewTrainer(g, q, trainerConfig(), nil, nil)
		require.NoError(t, err)
		stats, err := tr.Train(context.Background())
		require.NoError(t, err)
		return stats, q.Entries()
	}

	s1, e1 := run()
	s2, e2 := run()
	assert.Equal(t, s1, s2)
	assert.Equal(t, e1, e2)
	assert.Equal(t, 20, s1.Episodes)
	assert.Positive(t, s1.States)
	assert.Equal(t, len(e1), s1.States)
}

func TestTrainerRecordsMetrics(t *testing.T) {
	g := lineGraph(t)
	reg := metrics.NewRegistry()
	cfg := trainerConfig()
	cfg.Workers = 4

	tr, err := NewTrainer(g, NewQTable(0, 0), cfg, nil, reg)
	require.NoError(t, err)
	stats, err := tr.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Episodes)

	var m dto.Metric
	require.NoError(t, reg.TrainingEpisodesTotal.Write(&m))
	assert.Equal(t, 20.0, m.GetCounter().GetValue())
}

func TestTrainerRandomPairs(t *testing.T) {
	g := lineGraph(t)
	cfg := trainerConfig()
	cfg.Pairs = nil
	cfg.Episodes = 5

	tr, err := NewTrainer(g, NewQTable(0, 0), cfg, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		res, err := tr.RunEpisode(i)
		require.NoError(t, err)
		assert.NotEqual(t, res.Start, res.Target)
		assert.LessOrEqual(t, res.Ticks, cfg.MaxTicks)
	}
}

func TestTrainerCancelled(t *testing.T) {
	g := lineGraph(t)
	tr, err := NewTrainer(g, NewQTable(0, 0), trainerConfig(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Train(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewTrainerValidation(t *testing.T) {
	g := lineGraph(t)

	cfg := trainerConfig()
	cfg.Pairs = [][2]graph.NodeID{{1, 42}}
	_, err := NewTrainer(g, NewQTable(0, 0), cfg, nil, nil)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	cfg = trainerConfig()
	cfg.Episodes = 0
	_, err = NewTrainer(g, NewQTable(0, 0), cfg, nil, nil)
	assert.Error(t, err)

	cfg = trainerConfig()
	cfg.Profile.MaxSpeed = 0
	_, err = NewTrainer(g, NewQTable(0, 0), cfg, nil, nil)
	assert.Error(t, err)
}

func TestTrainedPolicyReachesTargetWithoutFallback(t *testing.T) {
	g := lineGraph(t)

	cfg := DefaultTrainerConfig()
	cfg.Profile = profile
	cfg.Pairs = [][2]graph.NodeID{{1, 3}}

	table := NewQTable(0, 0)
	tr, err := NewTrainer(g, table, cfg, nil, nil)
	require.NoError(t, err)
	stats, err := tr.Train(context.Background())
	require.NoError(t, err)
	require.Positive(t, stats.Arrivals)

	a := NewAgent(table, cfg.Discretizer)
	a.Fallback = nil

	sim := simulation.New(g)
	train := railway.NewTrain(1, 1, profile)
	train.PushTarget(3)
	require.NoError(t, sim.AddObject(train, a))

	var reached []simulation.TargetReached
	arrivedAt := -1
	for tick := 0; tick < cfg.MaxTicks && (arrivedAt < 0 || tick < arrivedAt+10); tick++ {
		for _, e := range sim.Step(cfg.Step) {
			if ev, ok := e.(simulation.TargetReached); ok {
				reached = append(reached, ev)
				arrivedAt = tick
			}
		}
	}

	require.Len(t, reached, 1, "greedy policy never stopped on node 3")
	assert.Equal(t, graph.NodeID(3), reached[0].Node)
	assert.Equal(t, railway.ObjectID(1), reached[0].Object)
	assert.Empty(t, train.Targets())
	assert.Equal(t, graph.NodeID(3), train.Position().Node)
	assert.False(t, train.Position().OnEdge())
	assert.Zero(t, train.Speed())
}
