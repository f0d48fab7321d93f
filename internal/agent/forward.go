package agent

import (
	"github.com/cxd309/railsim/internal/environment"
	"github.com/cxd309/railsim/internal/kinematics"
	"github.com/cxd309/railsim/internal/railway"
)

// ForwardUntilTarget drives towards the next target as fast as the braking
// ceiling allows. It looks one tick ahead: it only accelerates if, after a
// full tick of acceleration, the train could still stop before the target.
type ForwardUntilTarget struct {
	// BrakingFactor scales the deceleration assumed when computing the
	// ceiling. Values below 1 leave a margin. Zero means 1.
	BrakingFactor float64 `json:"braking_factor" yaml:"braking_factor"`
}

// NewForwardUntilTarget returns the agent with full braking assumed.
func NewForwardUntilTarget() *ForwardUntilTarget {
	return &ForwardUntilTarget{BrakingFactor: 1}
}

func (f *ForwardUntilTarget) NextAction(obs environment.Observation, id railway.ObjectID) Action {
	state, ok := obs.Object(id)
	if !ok {
		return Stop()
	}
	target, ok := state.NextTarget()
	if !ok {
		return Stop()
	}
	remaining, err := railway.DistanceToTarget(obs.Graph(), state.Position, target)
	if err != nil || remaining <= 0 {
		return Stop()
	}
	return f.decide(state.Profile, state.Speed, remaining, obs.Step().Seconds())
}

func (f *ForwardUntilTarget) decide(p kinematics.Profile, v, remaining, dt float64) Action {
	factor := f.BrakingFactor
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	decel := p.MaxDeceleration * factor

	// Standing short of the target: always pull away. Arrival clamps at the
	// target node so this cannot overshoot.
	if v <= 0 {
		return Forward(p.MaxAcceleration)
	}

	if v < p.MaxSpeed {
		if s, nv := kinematics.Integrate(v, p.MaxAcceleration, p.MaxSpeed, dt); nv <= kinematics.SpeedCeiling(remaining-s, p.MaxSpeed, decel) {
			return Forward(p.MaxAcceleration)
		}
	}
	if s, nv := kinematics.Integrate(v, 0, p.MaxSpeed, dt); nv <= kinematics.SpeedCeiling(remaining-s, p.MaxSpeed, decel) {
		return Forward(0)
	}

	// Brake just hard enough to stop on the target.
	need := v * v / (2 * remaining)
	return Backward(min(need, p.MaxDeceleration))
}
