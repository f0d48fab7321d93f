// Package environment is the read-only view of a simulation handed to agents.
package environment

import (
	"sort"
	"time"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/railway"
)

// Observation is what an agent may see. Nothing reachable through it can
// change simulation state: objects are value copies and the graph is
// immutable.
type Observation interface {
	Graph() *graph.Graph
	Objects() []railway.State
	Object(id railway.ObjectID) (railway.State, bool)
	Tick() uint64
	Elapsed() time.Duration
	Step() time.Duration
}

// Snapshot is the Observation taken once per tick.
type Snapshot struct {
	graph   *graph.Graph
	objects []railway.State
	index   map[railway.ObjectID]int
	tick    uint64
	elapsed time.Duration
	step    time.Duration
}

// NewSnapshot copies states into a new snapshot, ordered by object ID.
func NewSnapshot(g *graph.Graph, states []railway.State, tick uint64, elapsed, step time.Duration) *Snapshot {
	objects := make([]railway.State, len(states))
	for i, st := range states {
		objects[i] = copyState(st)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })

	index := make(map[railway.ObjectID]int, len(objects))
	for i, s := range objects {
		index[s.ID] = i
	}
	return &Snapshot{
		graph:   g,
		objects: objects,
		index:   index,
		tick:    tick,
		elapsed: elapsed,
		step:    step,
	}
}

func (s *Snapshot) Graph() *graph.Graph    { return s.graph }
func (s *Snapshot) Tick() uint64           { return s.tick }
func (s *Snapshot) Elapsed() time.Duration { return s.elapsed }
func (s *Snapshot) Step() time.Duration    { return s.step }

// Objects returns copies of every object state.
func (s *Snapshot) Objects() []railway.State {
	out := make([]railway.State, len(s.objects))
	for i, o := range s.objects {
		out[i] = copyState(o)
	}
	return out
}

// Object returns a copy of one object state.
func (s *Snapshot) Object(id railway.ObjectID) (railway.State, bool) {
	i, ok := s.index[id]
	if !ok {
		return railway.State{}, false
	}
	return copyState(s.objects[i]), true
}

func copyState(st railway.State) railway.State {
	st.Targets = append([]graph.NodeID{}, st.Targets...)
	return st
}
