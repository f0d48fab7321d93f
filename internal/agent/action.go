// Package agent defines movement actions and the decision agents that choose them.
package agent

import (
	"fmt"
	"math"

	"github.com/cxd309/railsim/internal/kinematics"
)

// ActionKind enumerates the movement actions.
type ActionKind int

const (
	ActionStop ActionKind = iota
	ActionForward
	ActionBackward
)

// String returns the label used in logs and metrics.
func (k ActionKind) String() string {
	switch k {
	case ActionStop:
		return "stop"
	case ActionForward:
		return "forward"
	case ActionBackward:
		return "backward"
	default:
		return "unknown"
	}
}

// Action is a movement command for one object for one tick. Acceleration is
// a non-negative magnitude; the kind gives the direction.
type Action struct {
	Kind         ActionKind `json:"kind"`
	Acceleration float64    `json:"acceleration,omitempty"` // m/s²
}

// Stop brakes at full service deceleration until standstill.
func Stop() Action { return Action{Kind: ActionStop} }

// Forward accelerates by a m/s². Forward(0) holds speed.
func Forward(a float64) Action { return Action{Kind: ActionForward, Acceleration: math.Abs(a)} }

// Backward decelerates by a m/s².
func Backward(a float64) Action { return Action{Kind: ActionBackward, Acceleration: math.Abs(a)} }

// Signed resolves the action to a signed acceleration within p's envelope.
func (a Action) Signed(p kinematics.Profile) float64 {
	switch a.Kind {
	case ActionForward:
		return p.Clamp(a.Acceleration)
	case ActionBackward:
		return p.Clamp(-a.Acceleration)
	default:
		return -p.MaxDeceleration
	}
}

func (a Action) String() string {
	if a.Kind == ActionStop {
		return a.Kind.String()
	}
	return fmt.Sprintf("%s(%.2f)", a.Kind, a.Acceleration)
}
