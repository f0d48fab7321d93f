package agent

import (
	"fmt"

	"github.com/cxd309/railsim/internal/environment"
	"github.com/cxd309/railsim/internal/railway"
)

// Agent chooses the next action for one object from a read-only observation.
type Agent interface {
	NextAction(obs environment.Observation, id railway.ObjectID) Action
}

// Func adapts a plain function to Agent.
type Func func(obs environment.Observation, id railway.ObjectID) Action

func (f Func) NextAction(obs environment.Observation, id railway.ObjectID) Action {
	return f(obs, id)
}

// Kind names the closed set of agent implementations.
type Kind string

const (
	KindForwardUntilTarget Kind = "forward_until_target"
	KindLearning           Kind = "learning"
)

// ParseKind validates an agent kind name. The empty string selects the
// rule-based agent.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindForwardUntilTarget:
		return KindForwardUntilTarget, nil
	case KindLearning:
		return KindLearning, nil
	default:
		return "", fmt.Errorf("unknown agent kind %q", s)
	}
}
