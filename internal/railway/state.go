package railway

import (
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
)

// State is an immutable copy of an object's observable fields.
type State struct {
	ID           ObjectID           `json:"id"`
	Kind         string             `json:"kind"`
	Position     Position           `json:"position"`
	Speed        float64            `json:"speed"`        // m/s
	Acceleration float64            `json:"acceleration"` // m/s²
	Profile      kinematics.Profile `json:"profile"`
	Targets      []graph.NodeID     `json:"targets"`
}

// Capture copies the current state of o.
func Capture(o Object) State {
	targets := o.Targets()
	if targets == nil {
		targets = []graph.NodeID{}
	}
	return State{
		ID:           o.ID(),
		Kind:         o.Kind(),
		Position:     o.Position(),
		Speed:        o.Speed(),
		Acceleration: o.Acceleration(),
		Profile:      o.Profile(),
		Targets:      targets,
	}
}

// NextTarget returns the front of the captured target queue.
func (s State) NextTarget() (graph.NodeID, bool) {
	if len(s.Targets) == 0 {
		return 0, false
	}
	return s.Targets[0], true
}
