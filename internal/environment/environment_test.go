package environment

import (
	"testing"
	"time"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/railway"
)

func TestSnapshotIsolation(t *testing.T) {
	states := []railway.State{
		{ID: 2, Targets: []graph.NodeID{5}},
		{ID: 1, Speed: 3},
	}
	snap := NewSnapshot(nil, states, 4, 2*time.Second, 500*time.Millisecond)

	states[0].Speed = 99

	objs := snap.Objects()
	if len(objs) != 2 || objs[0].ID != 1 || objs[1].ID != 2 {
		t.Fatalf("Objects() not ordered by ID: %+v", objs)
	}
	if objs[1].Speed != 0 {
		t.Errorf("snapshot saw a later write to the source slice")
	}

	got, ok := snap.Object(2)
	if !ok {
		t.Fatal("Object(2) not found")
	}
	got.Targets[0] = 42
	again, _ := snap.Object(2)
	if again.Targets[0] != 5 {
		t.Errorf("mutating a returned state leaked into the snapshot")
	}

	if _, ok := snap.Object(9); ok {
		t.Error("Object(9) should not be found")
	}
	if snap.Tick() != 4 || snap.Elapsed() != 2*time.Second || snap.Step() != 500*time.Millisecond {
		t.Errorf("clock = %d %v %v", snap.Tick(), snap.Elapsed(), snap.Step())
	}
}
