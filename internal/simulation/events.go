package simulation

import (
	"fmt"
	"time"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/railway"
)

// Event is an immutable record of something that happened during a tick.
type Event interface {
	Meta() EventMeta
	Kind() string
}

// EventMeta places an event in simulated time. Tick is the 1-based number of
// the tick that produced it and Elapsed the simulated time at its end.
type EventMeta struct {
	Tick    uint64        `json:"tick"`
	Elapsed time.Duration `json:"elapsed"`
}

func (m EventMeta) Meta() EventMeta { return m }

// ActionTaken records the action an agent chose for an object.
type ActionTaken struct {
	EventMeta
	Object railway.ObjectID `json:"object"`
	Action agent.Action     `json:"action"`
}

func (ActionTaken) Kind() string { return "action_taken" }

// TargetReached records an object stopping on its next target.
type TargetReached struct {
	EventMeta
	Object    railway.ObjectID `json:"object"`
	Node      graph.NodeID     `json:"node"`
	Remaining int              `json:"remaining"` // targets still queued
}

func (TargetReached) Kind() string { return "target_reached" }

// StateChanged records a Running/Paused transition.
type StateChanged struct {
	EventMeta
	From State `json:"from"`
	To   State `json:"to"`
}

func (StateChanged) Kind() string { return "state_changed" }

// TickCompleted closes every running tick.
type TickCompleted struct {
	EventMeta
	Objects int `json:"objects"`
}

func (TickCompleted) Kind() string { return "tick_completed" }

// ObjectAdded and ObjectRemoved track the object population.
type ObjectAdded struct {
	EventMeta
	Object railway.ObjectID `json:"object"`
}

func (ObjectAdded) Kind() string { return "object_added" }

type ObjectRemoved struct {
	EventMeta
	Object railway.ObjectID `json:"object"`
}

func (ObjectRemoved) Kind() string { return "object_removed" }

// Describe renders an event on one line for consoles and logs.
func Describe(e Event) string {
	m := e.Meta()
	switch ev := e.(type) {
	case ActionTaken:
		return fmt.Sprintf("[%d] object %d: %s", m.Tick, ev.Object, ev.Action)
	case TargetReached:
		return fmt.Sprintf("[%d] object %d reached node %d (%d left)", m.Tick, ev.Object, ev.Node, ev.Remaining)
	case StateChanged:
		return fmt.Sprintf("[%d] simulation %s", m.Tick, ev.To)
	case TickCompleted:
		return fmt.Sprintf("[%d] tick complete, %d objects", m.Tick, ev.Objects)
	case ObjectAdded:
		return fmt.Sprintf("[%d] object %d added", m.Tick, ev.Object)
	case ObjectRemoved:
		return fmt.Sprintf("[%d] object %d removed", m.Tick, ev.Object)
	default:
		return fmt.Sprintf("[%d] %s", m.Tick, e.Kind())
	}
}
