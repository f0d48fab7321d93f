// Package simulation implements the discrete-time executor.
//
// Each call to Step runs one tick:
//
//  1. Drain the command queue and apply every command in arrival order.
//  2. If paused, dispatch any events produced by commands and stop.
//  3. Take one read-only snapshot, ask each object's agent for an action in
//     object ID order, and apply it: integrate speed, then move the object
//     along the shortest route to its next target.
//  4. Dispatch the tick's events, closed by TickCompleted, to every handler
//     in registration order.
//
// A Simulation is driven from a single goroutine. Only Enqueue may be called
// concurrently with Step.
package simulation

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/environment"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/logging"
	"github.com/cxd309/railsim/internal/railway"
)

// State is the executor state.
type State int

const (
	Running State = iota
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Simulation owns the graph, the objects, their agents and the handlers.
type Simulation struct {
	graph    *graph.Graph
	objects  map[railway.ObjectID]railway.Object
	order    []railway.ObjectID
	agents   map[railway.ObjectID]agent.Agent
	handlers []Handler
	logger   logging.Logger

	state   State
	tick    uint64
	elapsed time.Duration
	speedup float64
	step    time.Duration // length of the last running tick
	pending []Event

	autoTargets *rand.Rand

	mu    sync.Mutex
	queue []queuedCommand
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger. The default discards output.
func WithLogger(l logging.Logger) Option {
	return func(s *Simulation) { s.logger = l.With(logging.Component("simulation")) }
}

// WithHandler registers a handler at construction.
func WithHandler(h Handler) Option {
	return func(s *Simulation) { s.handlers = append(s.handlers, h) }
}

// WithSpeedup sets the initial time scale.
func WithSpeedup(f float64) Option {
	return func(s *Simulation) {
		if f > 0 {
			s.speedup = f
		}
	}
}

// WithAutoTargets gives an object whose queue runs empty a random reachable
// node as its next target. The generator is seeded so runs stay reproducible.
func WithAutoTargets(seed int64) Option {
	return func(s *Simulation) { s.autoTargets = rand.New(rand.NewSource(seed)) }
}

// New creates a Running simulation over g with no objects.
func New(g *graph.Graph, opts ...Option) *Simulation {
	s := &Simulation{
		graph:   g,
		objects: make(map[railway.ObjectID]railway.Object),
		agents:  make(map[railway.ObjectID]agent.Agent),
		logger:  logging.NewNopLogger(),
		state:   Running,
		speedup: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddHandler registers h after the existing handlers.
func (s *Simulation) AddHandler(h Handler) {
	s.handlers = append(s.handlers, h)
}

// AddObject places obj in the simulation, controlled by a.
func (s *Simulation) AddObject(obj railway.Object, a agent.Agent) error {
	if obj == nil || a == nil {
		return errors.New("object and agent are required")
	}
	id := obj.ID()
	if _, exists := s.objects[id]; exists {
		return fmt.Errorf("object %d: %w", id, ErrDuplicateObject)
	}
	pos := obj.Position()
	if !s.graph.HasNode(pos.Node) {
		return fmt.Errorf("object %d start node %d: %w", id, pos.Node, graph.ErrNotFound)
	}
	s.objects[id] = obj
	s.agents[id] = a
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	s.order = append(s.order, 0)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = id

	s.pending = append(s.pending, ObjectAdded{EventMeta: s.meta(), Object: id})
	s.logger.Debug("object added", logging.ObjectID(int64(id)), logging.NodeID(int64(pos.Node)))
	return nil
}

// RemoveObject drops an object and its agent. It takes no part in any later tick.
func (s *Simulation) RemoveObject(id railway.ObjectID) error {
	if _, ok := s.objects[id]; !ok {
		return fmt.Errorf("object %d: %w", id, ErrObjectNotFound)
	}
	delete(s.objects, id)
	delete(s.agents, id)
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	s.order = append(s.order[:i], s.order[i+1:]...)

	s.pending = append(s.pending, ObjectRemoved{EventMeta: s.meta(), Object: id})
	s.logger.Debug("object removed", logging.ObjectID(int64(id)))
	return nil
}

// Enqueue queues cmd for the next tick. The returned channel receives the
// outcome once the command has been applied. It is safe for concurrent use.
func (s *Simulation) Enqueue(cmd Command) <-chan Result {
	done := make(chan Result, 1)
	s.mu.Lock()
	s.queue = append(s.queue, queuedCommand{cmd: cmd, done: done})
	s.mu.Unlock()
	return done
}

func (s *Simulation) drain() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, q := range queue {
		msg, err := q.cmd.Apply(s)
		if err != nil {
			s.logger.Warn("command failed", logging.String("command", fmt.Sprintf("%T", q.cmd)), logging.Error(err))
		} else {
			s.logger.Info(msg, logging.String("command", fmt.Sprintf("%T", q.cmd)))
		}
		q.done <- Result{Message: msg, Err: err}
	}
}

func (s *Simulation) setState(to State) {
	if s.state == to {
		return
	}
	s.pending = append(s.pending, StateChanged{EventMeta: s.meta(), From: s.state, To: to})
	s.state = to
}

func (s *Simulation) meta() EventMeta {
	return EventMeta{Tick: s.tick, Elapsed: s.elapsed}
}

// Step runs one tick of length dt (scaled by the speedup factor) and returns
// the events it dispatched.
func (s *Simulation) Step(dt time.Duration) []Event {
	s.drain()

	events := s.pending
	s.pending = nil

	if s.state == Paused {
		s.dispatch(events)
		return events
	}

	dt = time.Duration(float64(dt) * s.speedup)
	s.step = dt
	snapshot := s.Observe()
	meta := EventMeta{Tick: s.tick + 1, Elapsed: s.elapsed + dt}

	for _, id := range s.order {
		obj := s.objects[id]
		action := s.decide(id, snapshot)
		events = append(events, ActionTaken{EventMeta: meta, Object: id, Action: action})
		events = append(events, s.apply(obj, action, dt, meta)...)
	}

	s.tick++
	s.elapsed += dt
	events = append(events, s.pending...)
	events = append(events, TickCompleted{EventMeta: meta, Objects: len(s.order)})
	s.pending = nil

	s.dispatch(events)
	return events
}

// decide asks the object's agent for an action. A panicking agent stops its object.
func (s *Simulation) decide(id railway.ObjectID, obs environment.Observation) (action agent.Action) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("agent panicked", logging.ObjectID(int64(id)), logging.Any("panic", fmt.Sprint(r)))
			action = agent.Stop()
		}
	}()
	return s.agents[id].NextAction(obs, id)
}

// apply integrates one object's motion over dt.
func (s *Simulation) apply(obj railway.Object, action agent.Action, dt time.Duration, meta EventMeta) []Event {
	p := obj.Profile()
	a := action.Signed(p)
	obj.SetAcceleration(a)

	dist, v := p.Step(obj.Speed(), a, dt.Seconds())
	target, hasTarget := obj.NextTarget()

	m, err := railway.Advance(s.graph, obj.Position(), target, hasTarget, dist)
	obj.SetPosition(m.Position)
	if err != nil {
		// No usable route: hold the object where it is.
		s.logger.Warn("object cannot move", logging.ObjectID(int64(obj.ID())), logging.Error(err))
		obj.SetSpeed(0)
		obj.SetAcceleration(0)
		return nil
	}

	switch {
	case m.Arrived:
		obj.SetSpeed(0)
		obj.SetAcceleration(0)
		obj.PopTarget()
		ev := TargetReached{EventMeta: meta, Object: obj.ID(), Node: target, Remaining: len(obj.Targets())}
		s.assignAutoTarget(obj)
		return []Event{ev}
	case !hasTarget && !m.Position.OnEdge():
		obj.SetSpeed(0)
		obj.SetAcceleration(0)
		s.assignAutoTarget(obj)
	default:
		obj.SetSpeed(v)
	}
	return nil
}

func (s *Simulation) assignAutoTarget(obj railway.Object) {
	if s.autoTargets == nil {
		return
	}
	if _, ok := obj.NextTarget(); ok {
		return
	}
	here := obj.Position().Node
	reachable, err := s.graph.ReachableNodes(here)
	if err != nil || len(reachable) < 2 {
		return
	}
	for {
		n := reachable[s.autoTargets.Intn(len(reachable))]
		if n != here {
			obj.PushTarget(n)
			return
		}
	}
}

// Observe returns a read-only snapshot of the current state.
func (s *Simulation) Observe() *environment.Snapshot {
	return environment.NewSnapshot(s.graph, s.Objects(), s.tick, s.elapsed, s.step)
}

// Objects returns the state of every object, ordered by ID.
func (s *Simulation) Objects() []railway.State {
	out := make([]railway.State, len(s.order))
	for i, id := range s.order {
		out[i] = railway.Capture(s.objects[id])
	}
	return out
}

// Object returns the state of one object.
func (s *Simulation) Object(id railway.ObjectID) (railway.State, bool) {
	obj, ok := s.objects[id]
	if !ok {
		return railway.State{}, false
	}
	return railway.Capture(obj), true
}

func (s *Simulation) Graph() *graph.Graph    { return s.graph }
func (s *Simulation) State() State           { return s.state }
func (s *Simulation) Tick() uint64           { return s.tick }
func (s *Simulation) Elapsed() time.Duration { return s.elapsed }
func (s *Simulation) Speedup() float64       { return s.speedup }

// Handlers returns the registered handlers in dispatch order.
func (s *Simulation) Handlers() []Handler {
	return append([]Handler(nil), s.handlers...)
}
