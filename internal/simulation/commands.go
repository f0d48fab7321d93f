package simulation

import (
	"fmt"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/railway"
)

// Command is an instruction to the simulation itself. Commands are queued and
// applied at the start of the next tick, including ticks spent paused.
type Command interface {
	// Apply mutates the simulation and returns a human readable outcome.
	Apply(s *Simulation) (string, error)
}

// Result is the outcome of a queued command.
type Result struct {
	Message string
	Err     error
}

type queuedCommand struct {
	cmd  Command
	done chan Result
}

// Pause moves Running to Paused.
type Pause struct{}

func (Pause) Apply(s *Simulation) (string, error) {
	s.setState(Paused)
	return "Simulation paused", nil
}

// Resume moves Paused to Running.
type Resume struct{}

func (Resume) Apply(s *Simulation) (string, error) {
	s.setState(Running)
	return "Simulation resumed", nil
}

// TogglePause flips between Running and Paused.
type TogglePause struct{}

func (TogglePause) Apply(s *Simulation) (string, error) {
	if s.state == Running {
		return Pause{}.Apply(s)
	}
	return Resume{}.Apply(s)
}

// SetSpeedup scales the simulated time of every following tick.
type SetSpeedup struct {
	Factor float64
}

func (c SetSpeedup) Apply(s *Simulation) (string, error) {
	if c.Factor <= 0 {
		return "", fmt.Errorf("speedup factor must be positive, got %v", c.Factor)
	}
	s.speedup = c.Factor
	return fmt.Sprintf("Speedup factor set to %g", c.Factor), nil
}

// PushTarget appends a target to an object's queue.
type PushTarget struct {
	Object railway.ObjectID
	Node   graph.NodeID
}

func (c PushTarget) Apply(s *Simulation) (string, error) {
	obj, ok := s.objects[c.Object]
	if !ok {
		return "", fmt.Errorf("object %d: %w", c.Object, ErrObjectNotFound)
	}
	if !s.graph.HasNode(c.Node) {
		return "", fmt.Errorf("node %d: %w", c.Node, graph.ErrNotFound)
	}
	obj.PushTarget(c.Node)
	return fmt.Sprintf("Object %d: target %d queued", c.Object, c.Node), nil
}

// ClearTargets empties an object's target queue.
type ClearTargets struct {
	Object railway.ObjectID
}

func (c ClearTargets) Apply(s *Simulation) (string, error) {
	obj, ok := s.objects[c.Object]
	if !ok {
		return "", fmt.Errorf("object %d: %w", c.Object, ErrObjectNotFound)
	}
	for {
		if _, ok := obj.PopTarget(); !ok {
			break
		}
	}
	return fmt.Sprintf("Object %d: targets cleared", c.Object), nil
}

// AddObject places a new object under the control of Agent.
type AddObject struct {
	Object railway.Object
	Agent  agent.Agent
}

func (c AddObject) Apply(s *Simulation) (string, error) {
	if err := s.AddObject(c.Object, c.Agent); err != nil {
		return "", err
	}
	return fmt.Sprintf("Object %d added", c.Object.ID()), nil
}

// RemoveObject drops an object and its agent.
type RemoveObject struct {
	Object railway.ObjectID
}

func (c RemoveObject) Apply(s *Simulation) (string, error) {
	if err := s.RemoveObject(c.Object); err != nil {
		return "", err
	}
	return fmt.Sprintf("Object %d removed", c.Object), nil
}
