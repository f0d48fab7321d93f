package learning

import (
	"math/rand"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/environment"
	"github.com/cxd309/railsim/internal/railway"
)

// Decision is the last state/action pair the agent produced for an object.
type Decision struct {
	State  State
	Action int
}

// Agent picks actions from a QTable.
//
// In training mode it explores with probability Epsilon and breaks ties
// between equal values at random. Outside training it is greedy and defers
// to Fallback for states the table has never seen.
type Agent struct {
	Table       *QTable
	Discretizer Discretizer
	Epsilon     float64
	Training    bool
	Fallback    agent.Agent

	rng  *rand.Rand
	last map[railway.ObjectID]Decision
}

// NewAgent returns a greedy agent over table, falling back to the rule-based
// agent for unseen states.
func NewAgent(table *QTable, d Discretizer) *Agent {
	return &Agent{
		Table:       table,
		Discretizer: d,
		Fallback:    agent.NewForwardUntilTarget(),
		last:        make(map[railway.ObjectID]Decision),
	}
}

// NewTrainingAgent returns an exploring agent. rng drives every random choice,
// so one seed gives one episode.
func NewTrainingAgent(table *QTable, d Discretizer, epsilon float64, rng *rand.Rand) *Agent {
	a := NewAgent(table, d)
	a.Epsilon = epsilon
	a.Training = true
	a.rng = rng
	return a
}

func (a *Agent) NextAction(obs environment.Observation, id railway.ObjectID) agent.Action {
	delete(a.last, id)
	s, ok := a.Discretizer.Discretize(obs, id)
	if !ok {
		return agent.Stop()
	}
	st, _ := obs.Object(id)

	values, known := a.Table.Lookup(s)
	var idx int
	switch {
	case a.Training && a.rng != nil && a.rng.Float64() < a.Epsilon:
		idx = a.rng.Intn(NumActions)
	case a.Training:
		idx = a.bestRandomTie(values)
	case !known && a.Fallback != nil:
		return a.Fallback.NextAction(obs, id)
	default:
		idx, _ = best(values)
	}

	a.last[id] = Decision{State: s, Action: idx}
	return ActionFor(idx, st.Profile)
}

// BestAction returns the greedy action index for s.
func (a *Agent) BestAction(s State) int {
	values, _ := a.Table.Lookup(s)
	idx, _ := best(values)
	return idx
}

// Last returns the decision made for id on the latest call to NextAction. It
// is false when that call did not consult the table.
func (a *Agent) Last(id railway.ObjectID) (Decision, bool) {
	d, ok := a.last[id]
	return d, ok
}

func (a *Agent) bestRandomTie(v Values) int {
	_, top := best(v)
	var ties []int
	for i, x := range v {
		if x == top {
			ties = append(ties, i)
		}
	}
	if len(ties) == 1 || a.rng == nil {
		return ties[0]
	}
	return ties[a.rng.Intn(len(ties))]
}
