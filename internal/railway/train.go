package railway

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
)

// KindTrain is the Kind of a Train.
const KindTrain = "train"

// Train is the only concrete Object.
type Train struct {
	id           ObjectID
	profile      kinematics.Profile
	position     Position
	speed        float64
	acceleration float64
	targets      []graph.NodeID
}

// NewTrain places a stationary train on node at.
func NewTrain(id ObjectID, at graph.NodeID, profile kinematics.Profile) *Train {
	return &Train{id: id, profile: profile, position: AtNode(at)}
}

func (t *Train) ID() ObjectID                { return t.id }
func (t *Train) Kind() string                { return KindTrain }
func (t *Train) Profile() kinematics.Profile { return t.profile }

func (t *Train) Speed() float64            { return t.speed }
func (t *Train) SetSpeed(v float64)        { t.speed = v }
func (t *Train) Acceleration() float64     { return t.acceleration }
func (t *Train) SetAcceleration(a float64) { t.acceleration = a }
func (t *Train) Position() Position        { return t.position }
func (t *Train) SetPosition(p Position)    { t.position = p }

// NextTarget returns the front of the target queue.
func (t *Train) NextTarget() (graph.NodeID, bool) {
	if len(t.targets) == 0 {
		return 0, false
	}
	return t.targets[0], true
}

// SetNextTarget replaces the front of the queue, or starts one if empty.
func (t *Train) SetNextTarget(n graph.NodeID) {
	if len(t.targets) == 0 {
		t.targets = append(t.targets, n)
		return
	}
	t.targets[0] = n
}

// ClearNextTarget drops the front of the queue, if any.
func (t *Train) ClearNextTarget() {
	t.PopTarget()
}

// PushTarget appends n to the back of the queue.
func (t *Train) PushTarget(n graph.NodeID) {
	t.targets = append(t.targets, n)
}

// PopTarget removes and returns the front of the queue.
func (t *Train) PopTarget() (graph.NodeID, bool) {
	if len(t.targets) == 0 {
		return 0, false
	}
	n := t.targets[0]
	t.targets = t.targets[1:]
	return n, true
}

// Targets returns a copy of the queue.
func (t *Train) Targets() []graph.NodeID {
	return append([]graph.NodeID(nil), t.targets...)
}

// Location interpolates the train's coordinate along its edge geometry.
func (t *Train) Location(g *graph.Graph) (orb.Point, error) {
	if !t.position.OnEdge() {
		n, ok := g.Node(t.position.Node)
		if !ok {
			return orb.Point{}, fmt.Errorf("train %d at node %d: %w", t.id, t.position.Node, graph.ErrNotFound)
		}
		return n.Point(), nil
	}
	return g.PointAlong(t.position.Edge, t.position.Node, t.position.Offset)
}
