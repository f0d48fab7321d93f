// Package learning implements a tabular Q-learning train agent and its trainer.
//
// Training and live simulation share one Discretizer, so a policy trained
// here keys its table exactly the way the live agent looks it up.
package learning

import (
	"math"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/environment"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
	"github.com/cxd309/railsim/internal/railway"
)

// State is the discrete key of the value table.
type State struct {
	Node               graph.NodeID `json:"node"`
	Target             graph.NodeID `json:"target"`
	Speed              int          `json:"speed"`                // bucket index
	Ceiling            int          `json:"ceiling"`              // bucket index of the braking ceiling
	MaxSpeed           int          `json:"max_speed"`            // m/s, rounded
	MaxSpeedPercentage int          `json:"max_speed_percentage"` // bucketed percent of max speed
}

// Discretizer maps continuous observations to States.
type Discretizer struct {
	SpeedStep   float64 `json:"speed_step" yaml:"speed_step"`     // m/s per speed bucket
	PercentStep int     `json:"percent_step" yaml:"percent_step"` // percent per bucket
}

// DefaultDiscretizer uses 1 m/s speed buckets and 10% percentage buckets.
func DefaultDiscretizer() Discretizer {
	return Discretizer{SpeedStep: 1, PercentStep: 10}
}

func (d Discretizer) normalized() Discretizer {
	if d.SpeedStep <= 0 {
		d.SpeedStep = 1
	}
	if d.PercentStep <= 0 {
		d.PercentStep = 10
	}
	return d
}

// Discretize builds the state of object id. It is false when the object is
// missing, has no target, or cannot reach it.
func (d Discretizer) Discretize(obs environment.Observation, id railway.ObjectID) (State, bool) {
	st, ok := obs.Object(id)
	if !ok {
		return State{}, false
	}
	target, ok := st.NextTarget()
	if !ok {
		return State{}, false
	}
	remaining, err := railway.DistanceToTarget(obs.Graph(), st.Position, target)
	if err != nil {
		return State{}, false
	}
	return d.Of(st.Position.Node, target, st.Speed, remaining, st.Profile), true
}

// Of builds a State from raw values.
func (d Discretizer) Of(node, target graph.NodeID, speed, remaining float64, p kinematics.Profile) State {
	d = d.normalized()
	pct := 0
	if p.MaxSpeed > 0 {
		pct = int(speed/p.MaxSpeed*100) / d.PercentStep * d.PercentStep
	}
	return State{
		Node:               node,
		Target:             target,
		Speed:              int(math.Floor(speed / d.SpeedStep)),
		Ceiling:            int(math.Floor(p.SpeedCeiling(remaining) / d.SpeedStep)),
		MaxSpeed:           int(math.Round(p.MaxSpeed)),
		MaxSpeedPercentage: pct,
	}
}

// NumActions is the size of the discrete action set.
const NumActions = 5

// ActionFor maps an action index to a concrete action for profile p:
// stop, full forward, half forward, half backward, full backward.
func ActionFor(i int, p kinematics.Profile) agent.Action {
	switch i {
	case 1:
		return agent.Forward(p.MaxAcceleration)
	case 2:
		return agent.Forward(p.MaxAcceleration / 2)
	case 3:
		return agent.Backward(p.MaxDeceleration / 2)
	case 4:
		return agent.Backward(p.MaxDeceleration)
	default:
		return agent.Stop()
	}
}
