// Package railway defines the objects that move over the network and the
// capabilities they expose to the simulation.
package railway

import (
	"github.com/paulmach/orb"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
)

// ObjectID identifies an object within one simulation.
type ObjectID int64

// Position locates an object on the network. At a node Offset is 0 and Edge
// is unused. On an edge, Node is the endpoint the object left from and Offset
// is the distance travelled along Edge from that endpoint.
type Position struct {
	Node   graph.NodeID `json:"node"`
	Edge   graph.EdgeID `json:"edge,omitempty"`
	Offset float64      `json:"offset,omitempty"` // metres
}

// AtNode returns the position resting on node n.
func AtNode(n graph.NodeID) Position { return Position{Node: n} }

// OnEdge reports whether the object is between two nodes.
func (p Position) OnEdge() bool { return p.Offset > 0 }

// GeoLocation resolves an object's geographic coordinate.
type GeoLocation interface {
	Location(g *graph.Graph) (orb.Point, error)
}

// Movable exposes the kinematic state of an object.
type Movable interface {
	Speed() float64
	SetSpeed(v float64)
	Acceleration() float64
	SetAcceleration(a float64)
	Position() Position
	SetPosition(p Position)
}

// NextTarget is a single destination.
type NextTarget interface {
	NextTarget() (graph.NodeID, bool)
	SetNextTarget(n graph.NodeID)
	ClearNextTarget()
}

// MultipleTargets is an ordered destination queue. NextTarget is its front.
type MultipleTargets interface {
	NextTarget
	PushTarget(n graph.NodeID)
	PopTarget() (graph.NodeID, bool)
	Targets() []graph.NodeID
}

// Object is everything the simulation needs to drive an object.
type Object interface {
	GeoLocation
	Movable
	MultipleTargets
	ID() ObjectID
	Kind() string
	Profile() kinematics.Profile
}
